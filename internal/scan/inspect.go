package scan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wardenlabs/hostwarden/pkg/models"
)

// inspectionCommand maps one fact key to the read-only shell command that
// produces it.
type inspectionCommand struct {
	key     string
	command string
}

// inspectionTable is the closed set of commands per category. Nothing
// outside this table ever runs on a remote host.
var inspectionTable = map[models.ScanCategory][]inspectionCommand{
	models.CategoryBasic: {
		{"hostname", "hostname"},
		{"kernel", "uname -r"},
		{"uptime", "cat /proc/uptime | cut -d' ' -f1"},
	},
	models.CategorySystem: {
		{"os", "cat /etc/os-release | grep '^PRETTY_NAME=' | cut -d'\"' -f2"},
		{"arch", "uname -m"},
		{"cpu_count", "nproc"},
		{"memory_total_kb", "grep MemTotal /proc/meminfo | awk '{print $2}'"},
	},
	models.CategoryServices: {
		{"listening_ports", "ss -tlnH | awk '{print $4}'"},
		{"failed_units", "systemctl --failed --no-legend --plain | awk '{print $1}'"},
		{"sshd", "systemctl is-active sshd 2>/dev/null || systemctl is-active ssh"},
	},
	models.CategoryMetrics: {
		{"load_avg", "cat /proc/loadavg | cut -d' ' -f1-3"},
		{"memory_available_kb", "grep MemAvailable /proc/meminfo | awk '{print $2}'"},
		{"disk_used_percent", "df -P / | awk 'NR==2 {print $5}'"},
	},
}

// inspect runs the category's command table over the executor and collects
// trimmed stdout per key. A transport failure on any command fails the
// whole inspection; a non-zero exit only omits that key.
func inspect(ctx context.Context, exec RemoteExecutor, address string, category models.ScanCategory, timeout time.Duration) (map[string]string, error) {
	commands, ok := inspectionTable[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	data := make(map[string]string, len(commands))
	for _, c := range commands {
		res, err := exec.Execute(ctx, address, c.command, timeout)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInspectionFailed, c.key, err)
		}
		if res.ExitCode != 0 {
			continue
		}
		if v := strings.TrimSpace(res.Stdout); v != "" {
			data[c.key] = v
		}
	}
	return data, nil
}
