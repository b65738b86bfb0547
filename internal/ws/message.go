package ws

import "time"

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	MessageScanStarted   MessageType = "scan.started"
	MessageScanProgress  MessageType = "scan.progress"
	MessageScanCompleted MessageType = "scan.completed"
	MessageRegistry      MessageType = "registry.reloaded"
	MessageError         MessageType = "error"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}
