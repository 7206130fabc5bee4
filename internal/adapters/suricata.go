package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/netsentry/netsentry/internal/command"
	"github.com/netsentry/netsentry/internal/models"
	"github.com/netsentry/netsentry/internal/platform"
)

const defaultEveLog = "/var/log/suricata/eve.json"

// Suricata reads the EVE JSON log of the suricata IDS and manages its
// daemon state.
type Suricata struct {
	noLifecycle
	toolState
	eveLog string
}

// NewSuricata creates the suricata adapter.
func NewSuricata() *Suricata {
	return &Suricata{toolState: newToolState(), eveLog: defaultEveLog}
}

func (s *Suricata) Info() *models.ToolInfo {
	binary, version, status := s.snapshot()
	return &models.ToolInfo{
		Name:           "suricata",
		DisplayName:    "Suricata",
		Category:       models.CategoryIDSIPS,
		Description:    "Network threat detection engine (IDS/IPS)",
		Version:        version,
		BinaryPath:     binary,
		Status:         status,
		SupportedTasks: []string{"status", "tail_alerts", "rule_reload", "stats"},
	}
}

func (s *Suricata) Detect(ctx context.Context) bool {
	binary := findBinary("suricata")
	if binary == "" {
		s.setDetected("", "", models.StatusUnavailable)
		return false
	}

	version := ""
	if ver := binaryVersion(ctx, binary, "--build-info"); ver != "" {
		for _, line := range strings.Split(ver, "\n") {
			if strings.Contains(strings.ToLower(line), "version") {
				fields := strings.Fields(line)
				if len(fields) > 0 {
					version = fields[len(fields)-1]
				}
				break
			}
		}
	}
	s.setDetected(binary, version, models.StatusAvailable)
	return true
}

func (s *Suricata) HealthCheck(ctx context.Context) models.ToolStatus {
	svc := platform.GetServiceStatus(ctx, "suricata")
	var status models.ToolStatus
	switch {
	case svc.State == platform.ServiceRunning:
		status = models.StatusRunning
	case s.binaryPath() != "":
		status = models.StatusAvailable
	default:
		status = models.StatusUnavailable
	}
	s.setStatus(status)
	return status
}

func (s *Suricata) Execute(ctx context.Context, task string, params map[string]interface{}) (map[string]interface{}, error) {
	binary := s.binaryPath()
	if binary == "" {
		return nil, fmt.Errorf("suricata: %w", ErrNotAvailable)
	}

	switch task {
	case "status":
		svc := platform.GetServiceStatus(ctx, "suricata")
		return map[string]interface{}{"state": string(svc.State), "pid": svc.PID}, nil
	case "tail_alerts":
		return s.tailEve(paramInt(params, "lines", 100)), nil
	case "rule_reload":
		result := runCommand(ctx, binary, []string{"--reload-rules"}, command.Options{Timeout: 30 * time.Second})
		return map[string]interface{}{"success": result.Success(), "output": result.Stdout}, nil
	case "stats":
		return s.latestStats(), nil
	default:
		return nil, errUnknownTask("suricata", task)
	}
}

// tailEve returns the alert-typed events from the tail of the EVE log.
func (s *Suricata) tailEve(lines int) map[string]interface{} {
	text, err := tailFile(s.eveLog, lines)
	if err != nil {
		return map[string]interface{}{
			"alerts": []interface{}{},
			"error":  fmt.Sprintf("EVE log not found: %s", s.eveLog),
		}
	}

	parsed := s.ParseOutput(text, "eve")
	events, _ := parsed["events"].([]map[string]interface{})
	alerts := make([]map[string]interface{}, 0, len(events))
	for _, event := range events {
		if event["event_type"] == "alert" {
			alerts = append(alerts, event)
		}
	}
	return map[string]interface{}{"alerts": alerts, "total": len(alerts)}
}

// latestStats returns the most recent stats-typed event from the EVE log.
func (s *Suricata) latestStats() map[string]interface{} {
	text, err := tailFile(s.eveLog, 500)
	if err != nil {
		return map[string]interface{}{"error": "EVE log not found"}
	}

	parsed := s.ParseOutput(text, "eve")
	events, _ := parsed["events"].([]map[string]interface{})
	var latest map[string]interface{}
	for _, event := range events {
		if event["event_type"] == "stats" {
			latest = event
		}
	}
	if latest == nil {
		latest = map[string]interface{}{}
	}
	return map[string]interface{}{"stats": latest}
}

// ParseOutput decodes line-delimited EVE JSON; undecodable lines are skipped.
func (s *Suricata) ParseOutput(raw string, format string) map[string]interface{} {
	events := []map[string]interface{}{}
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		var event map[string]interface{}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return map[string]interface{}{"events": events}
}

// tailFile returns the last n lines of a file.
func tailFile(path string, n int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}
