package platform

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/netsentry/netsentry/internal/command"
)

// ServiceState of a system service.
type ServiceState string

const (
	ServiceRunning ServiceState = "running"
	ServiceStopped ServiceState = "stopped"
	ServiceUnknown ServiceState = "unknown"
)

// ServiceStatus describes a system service.
type ServiceStatus struct {
	Name    string       `json:"name"`
	State   ServiceState `json:"state"`
	Enabled bool         `json:"enabled"`
	PID     int          `json:"pid,omitempty"`
}

const serviceQueryTimeout = 10 * time.Second

// runner is swappable for tests.
var runner command.Runner = command.Run

// GetServiceStatus queries the state of a system service through the
// platform's service manager: systemd on Linux, launchd on macOS, SCM on
// Windows.
func GetServiceStatus(ctx context.Context, name string) ServiceStatus {
	switch Detect().OS {
	case OSLinux:
		return systemdStatus(ctx, name)
	case OSMacOS:
		return launchctlStatus(ctx, name)
	case OSWindows:
		return scStatus(ctx, name)
	default:
		return ServiceStatus{Name: name, State: ServiceUnknown}
	}
}

func systemdStatus(ctx context.Context, name string) ServiceStatus {
	opts := command.Options{Timeout: serviceQueryTimeout}

	active := runner(ctx, "systemctl", []string{"is-active", name}, opts)
	state := ServiceStopped
	if strings.TrimSpace(active.Stdout) == "active" {
		state = ServiceRunning
	}

	enabledRes := runner(ctx, "systemctl", []string{"is-enabled", name}, opts)
	enabled := strings.TrimSpace(enabledRes.Stdout) == "enabled"

	status := ServiceStatus{Name: name, State: state, Enabled: enabled}
	if state == ServiceRunning {
		pidRes := runner(ctx, "systemctl", []string{"show", name, "--property=MainPID", "--value"}, opts)
		if pid, err := strconv.Atoi(strings.TrimSpace(pidRes.Stdout)); err == nil {
			status.PID = pid
		}
	}
	return status
}

func launchctlStatus(ctx context.Context, name string) ServiceStatus {
	result := runner(ctx, "launchctl", []string{"list", name}, command.Options{Timeout: serviceQueryTimeout})
	state := ServiceStopped
	if result.Success() {
		state = ServiceRunning
	}
	return ServiceStatus{Name: name, State: state}
}

func scStatus(ctx context.Context, name string) ServiceStatus {
	result := runner(ctx, "sc", []string{"query", name}, command.Options{Timeout: serviceQueryTimeout})
	state := ServiceStopped
	if strings.Contains(result.Stdout, "RUNNING") {
		state = ServiceRunning
	}
	return ServiceStatus{Name: name, State: state}
}
