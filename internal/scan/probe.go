package scan

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

// Resolver turns a hostname into candidate addresses. net.Resolver
// satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Prober checks whether any candidate address accepts connections on the
// management port, returning the first that does.
type Prober interface {
	Probe(ctx context.Context, addresses []string, port int) (string, error)
}

// TCPProber dials the management port with a connect timeout. With ICMP
// assist enabled it pings candidates first and tries responsive addresses
// before silent ones; ping is advisory, a dead ping never skips the dial.
type TCPProber struct {
	connectTimeout time.Duration
	icmpAssist     bool
	logger         *zap.Logger
}

// NewTCPProber builds a prober with the given connect timeout.
func NewTCPProber(connectTimeout time.Duration, icmpAssist bool, logger *zap.Logger) *TCPProber {
	return &TCPProber{
		connectTimeout: connectTimeout,
		icmpAssist:     icmpAssist,
		logger:         logger.Named("probe"),
	}
}

// Probe tries each address in order and returns the first one whose
// management port accepts a TCP connection.
func (p *TCPProber) Probe(ctx context.Context, addresses []string, port int) (string, error) {
	if len(addresses) == 0 {
		return "", fmt.Errorf("%w: no addresses to probe", ErrHostUnreachable)
	}

	ordered := addresses
	if p.icmpAssist {
		ordered = p.orderByPing(ctx, addresses)
	}

	dialer := &net.Dialer{Timeout: p.connectTimeout}
	var lastErr error
	for _, addr := range ordered {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
		if err != nil {
			lastErr = err
			p.logger.Debug("port probe failed",
				zap.String("address", addr),
				zap.Int("port", port),
				zap.Error(err))
			continue
		}
		conn.Close()
		return addr, nil
	}
	return "", fmt.Errorf("%w: port %d closed on all %d addresses: %v",
		ErrHostUnreachable, port, len(ordered), lastErr)
}

// orderByPing pings every candidate once and moves responders to the
// front. Ping failures are expected on networks that filter ICMP, so the
// original order is preserved within each group.
func (p *TCPProber) orderByPing(ctx context.Context, addresses []string) []string {
	alive := make([]string, 0, len(addresses))
	silent := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if p.pingOnce(ctx, addr) {
			alive = append(alive, addr)
		} else {
			silent = append(silent, addr)
		}
	}
	return append(alive, silent...)
}

func (p *TCPProber) pingOnce(ctx context.Context, addr string) bool {
	pinger, err := probing.NewPinger(addr)
	if err != nil {
		p.logger.Debug("failed to create pinger", zap.String("address", addr), zap.Error(err))
		return false
	}
	pinger.Count = 1
	pinger.Timeout = p.connectTimeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := pinger.Run(); runErr != nil {
			p.logger.Debug("ping failed", zap.String("address", addr), zap.Error(runErr))
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		pinger.Stop()
		<-done
	}
	return pinger.Statistics().PacketsRecv > 0
}
