package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestScanResult_duration_serializes_as_milliseconds(t *testing.T) {
	res := ScanResult{
		Hostname: "web-01",
		Category: CategoryBasic,
		Success:  true,
		Duration: 1500 * time.Millisecond,
	}

	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"duration_ms":1500`) {
		t.Errorf("got %s, want duration_ms of 1500", raw)
	}

	var back ScanResult
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Duration != 1500*time.Millisecond {
		t.Errorf("got duration %v after round trip, want 1.5s", back.Duration)
	}
	if back.Hostname != "web-01" || !back.Success {
		t.Errorf("got %+v, want other fields preserved", back)
	}
}
