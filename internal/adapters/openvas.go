package adapters

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/netsentry/netsentry/internal/command"
	"github.com/netsentry/netsentry/internal/models"
)

// OpenVAS talks to a Greenbone vulnerability-management stack through
// gvm-cli (or the legacy omp client).
type OpenVAS struct {
	noLifecycle
	toolState
}

// NewOpenVAS creates the openvas adapter.
func NewOpenVAS() *OpenVAS {
	return &OpenVAS{toolState: newToolState()}
}

func (o *OpenVAS) Info() *models.ToolInfo {
	binary, version, status := o.snapshot()
	return &models.ToolInfo{
		Name:           "openvas",
		DisplayName:    "OpenVAS/GVM",
		Category:       models.CategoryVulnerabilityScanner,
		Description:    "Open vulnerability assessment scanner",
		Version:        version,
		BinaryPath:     binary,
		Status:         status,
		SupportedTasks: []string{"full_scan", "list_tasks", "get_report", "update_feeds"},
	}
}

func (o *OpenVAS) Detect(ctx context.Context) bool {
	binary := findBinary("openvas")
	if binary == "" {
		binary = lookPath("gvm-cli")
	}
	if binary == "" {
		binary = lookPath("omp")
	}
	if binary == "" {
		o.setDetected("", "", models.StatusUnavailable)
		return false
	}

	version := ""
	result := runCommand(ctx, binary, []string{"--version"}, command.Options{Timeout: versionProbeTimeout})
	if result.Success() {
		version = strings.SplitN(strings.TrimSpace(result.Stdout), "\n", 2)[0]
	}
	o.setDetected(binary, version, models.StatusAvailable)
	return true
}

func (o *OpenVAS) HealthCheck(ctx context.Context) models.ToolStatus {
	binary := o.binaryPath()
	if binary == "" {
		return models.StatusUnavailable
	}
	result := runCommand(ctx, binary, []string{"--version"}, command.Options{Timeout: versionProbeTimeout})
	status := models.StatusAvailable
	if !result.Success() {
		status = models.StatusError
	}
	o.setStatus(status)
	return status
}

func (o *OpenVAS) Execute(ctx context.Context, task string, params map[string]interface{}) (map[string]interface{}, error) {
	binary := o.binaryPath()
	if binary == "" {
		return nil, fmt.Errorf("openvas: %w", ErrNotAvailable)
	}

	switch task {
	case "full_scan":
		target := paramString(params, "target", "")
		if target == "" {
			return nil, fmt.Errorf("openvas: target is required")
		}
		payload := fmt.Sprintf("<create_target><name>netsentry-scan</name><hosts>%s</hosts></create_target>", target)
		timeout := time.Duration(paramInt(params, "timeout", 600)) * time.Second
		result := runCommand(ctx, binary, []string{"socket", "--xml", payload}, command.Options{Timeout: timeout})
		return map[string]interface{}{
			"success": result.Success(),
			"output":  result.Stdout,
			"stderr":  result.Stderr,
		}, nil
	case "list_tasks":
		result := runCommand(ctx, binary, []string{"socket", "--xml", "<get_tasks/>"},
			command.Options{Timeout: 30 * time.Second})
		return o.ParseOutput(result.Stdout, "xml"), nil
	case "get_report":
		reportID := paramString(params, "report_id", "")
		payload := fmt.Sprintf("<get_reports report_id=%q/>", reportID)
		result := runCommand(ctx, binary, []string{"socket", "--xml", payload},
			command.Options{Timeout: 60 * time.Second})
		return o.ParseOutput(result.Stdout, "xml"), nil
	case "update_feeds":
		result := runCommand(ctx, "greenbone-feed-sync", nil, command.Options{Timeout: 600 * time.Second})
		return map[string]interface{}{"success": result.Success(), "output": result.Stdout}, nil
	default:
		return nil, errUnknownTask("openvas", task)
	}
}

// ParseOutput pulls the status attributes off a GMP response envelope.
func (o *OpenVAS) ParseOutput(raw string, format string) map[string]interface{} {
	if format != "xml" {
		return map[string]interface{}{"raw": raw}
	}

	var envelope struct {
		Status     string `xml:"status,attr"`
		StatusText string `xml:"status_text,attr"`
	}
	if err := xml.Unmarshal([]byte(strings.TrimSpace(raw)), &envelope); err != nil {
		return map[string]interface{}{"raw": truncateRaw(raw)}
	}
	return map[string]interface{}{
		"status":      envelope.Status,
		"status_text": envelope.StatusText,
		"raw_xml":     truncateRaw(raw),
	}
}
