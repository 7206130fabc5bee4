package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/netsentry/netsentry/internal/command"
	"github.com/netsentry/netsentry/internal/models"
)

const defaultOssecDir = "/var/ossec"

// OSSEC reads alerts from an OSSEC or Wazuh installation and queries its
// control binary.
type OSSEC struct {
	noLifecycle
	toolState
	// ossecDir is written by Detect only, before any concurrent access.
	ossecDir string
}

// NewOSSEC creates the ossec adapter.
func NewOSSEC() *OSSEC {
	return &OSSEC{toolState: newToolState(), ossecDir: defaultOssecDir}
}

func (o *OSSEC) Info() *models.ToolInfo {
	binary, _, status := o.snapshot()
	return &models.ToolInfo{
		Name:           "ossec",
		DisplayName:    "OSSEC/Wazuh",
		Category:       models.CategoryLogAnalyzer,
		Description:    "Host-based intrusion detection system",
		BinaryPath:     binary,
		Status:         status,
		SupportedTasks: []string{"status", "alerts", "active_responses", "agent_list"},
	}
}

func (o *OSSEC) Detect(ctx context.Context) bool {
	control := filepath.Join(o.ossecDir, "bin", "ossec-control")
	if _, err := statFile(control); err == nil {
		o.setDetected(control, "", models.StatusAvailable)
		return true
	}
	if wazuh := lookPath("wazuh-control"); wazuh != "" {
		o.ossecDir = filepath.Dir(filepath.Dir(wazuh))
		o.setDetected(wazuh, "", models.StatusAvailable)
		return true
	}
	o.setDetected("", "", models.StatusUnavailable)
	return false
}

func (o *OSSEC) HealthCheck(ctx context.Context) models.ToolStatus {
	binary := o.binaryPath()
	if binary == "" {
		return models.StatusUnavailable
	}
	result := runCommand(ctx, binary, []string{"status"}, command.Options{Timeout: versionProbeTimeout})
	status := models.StatusAvailable
	if result.Success() && strings.Contains(strings.ToLower(result.Stdout), "running") {
		status = models.StatusRunning
	}
	o.setStatus(status)
	return status
}

func (o *OSSEC) Execute(ctx context.Context, task string, params map[string]interface{}) (map[string]interface{}, error) {
	binary := o.binaryPath()
	if binary == "" {
		return nil, fmt.Errorf("ossec: %w", ErrNotAvailable)
	}

	switch task {
	case "status":
		result := runCommand(ctx, binary, []string{"status"}, command.Options{Timeout: versionProbeTimeout})
		return map[string]interface{}{"output": result.Stdout, "success": result.Success()}, nil
	case "alerts":
		return o.readAlerts(paramInt(params, "lines", 100)), nil
	case "active_responses":
		logPath := filepath.Join(o.ossecDir, "logs", "active-responses.log")
		text, err := tailFile(logPath, paramInt(params, "lines", 50))
		if err != nil {
			return map[string]interface{}{"responses": []interface{}{}, "error": "Log not found"}, nil
		}
		return map[string]interface{}{"responses": strings.Split(strings.TrimSpace(text), "\n")}, nil
	case "agent_list":
		agentBin := filepath.Join(o.ossecDir, "bin", "agent_control")
		result := runCommand(ctx, agentBin, []string{"-l"}, command.Options{Timeout: versionProbeTimeout})
		return map[string]interface{}{"output": result.Stdout}, nil
	default:
		return nil, errUnknownTask("ossec", task)
	}
}

func (o *OSSEC) readAlerts(lines int) map[string]interface{} {
	jsonLog := filepath.Join(o.ossecDir, "logs", "alerts", "alerts.json")
	if text, err := tailFile(jsonLog, lines); err == nil {
		return o.ParseOutput(text, "json")
	}
	textLog := filepath.Join(o.ossecDir, "logs", "alerts", "alerts.log")
	if text, err := tailFile(textLog, lines); err == nil {
		return o.ParseOutput(text, "text")
	}
	return map[string]interface{}{"alerts": []interface{}{}, "error": "Alerts log not found"}
}

// ParseOutput decodes JSON alert lines, or splits text alerts on blank-line
// boundaries.
func (o *OSSEC) ParseOutput(raw string, format string) map[string]interface{} {
	if format == "json" {
		alerts := []map[string]interface{}{}
		for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
			var alert map[string]interface{}
			if err := json.Unmarshal([]byte(line), &alert); err != nil {
				continue
			}
			alerts = append(alerts, alert)
		}
		return map[string]interface{}{"alerts": alerts, "total": len(alerts)}
	}

	blocks := strings.Split(strings.TrimSpace(raw), "\n\n")
	return map[string]interface{}{"alerts": blocks, "total": len(blocks)}
}
