package adapters

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/netsentry/netsentry/internal/command"
	"github.com/netsentry/netsentry/internal/models"
	"github.com/netsentry/netsentry/internal/platform"
)

const defaultZeekLogDir = "/opt/zeek/logs/current"

// Zeek reads zeek's tab-separated logs and drives live capture.
type Zeek struct {
	noLifecycle
	toolState
	logDir string
}

// NewZeek creates the zeek adapter.
func NewZeek() *Zeek {
	return &Zeek{toolState: newToolState(), logDir: defaultZeekLogDir}
}

func (z *Zeek) Info() *models.ToolInfo {
	binary, version, status := z.snapshot()
	return &models.ToolInfo{
		Name:           "zeek",
		DisplayName:    "Zeek",
		Category:       models.CategoryTrafficAnalyzer,
		Description:    "Network analysis framework for traffic inspection",
		Version:        version,
		BinaryPath:     binary,
		Status:         status,
		SupportedTasks: []string{"status", "connections", "dns", "http", "notices", "capture"},
	}
}

func (z *Zeek) Detect(ctx context.Context) bool {
	binary := findBinary("zeek")
	if binary == "" {
		z.setDetected("", "", models.StatusUnavailable)
		return false
	}

	version := ""
	if ver := binaryVersion(ctx, binary, "--version"); ver != "" {
		version = strings.Fields(ver)[0]
	}
	z.setDetected(binary, version, models.StatusAvailable)
	return true
}

func (z *Zeek) HealthCheck(ctx context.Context) models.ToolStatus {
	svc := platform.GetServiceStatus(ctx, "zeek")
	var status models.ToolStatus
	switch {
	case svc.State == platform.ServiceRunning:
		status = models.StatusRunning
	case z.binaryPath() != "":
		status = models.StatusAvailable
	default:
		status = models.StatusUnavailable
	}
	z.setStatus(status)
	return status
}

func (z *Zeek) Execute(ctx context.Context, task string, params map[string]interface{}) (map[string]interface{}, error) {
	binary := z.binaryPath()
	if binary == "" {
		return nil, fmt.Errorf("zeek: %w", ErrNotAvailable)
	}

	switch task {
	case "status":
		result := runCommand(ctx, binary+"ctl", []string{"status"}, command.Options{Timeout: versionProbeTimeout})
		return map[string]interface{}{"output": result.Stdout, "success": result.Success()}, nil
	case "connections":
		return z.readLog("conn.log", paramInt(params, "lines", 100)), nil
	case "dns":
		return z.readLog("dns.log", paramInt(params, "lines", 100)), nil
	case "http":
		return z.readLog("http.log", paramInt(params, "lines", 100)), nil
	case "notices":
		return z.readLog("notice.log", paramInt(params, "lines", 100)), nil
	case "capture":
		iface := paramString(params, "interface", "eth0")
		duration := paramInt(params, "duration", 60)
		result := runCommand(ctx, binary, []string{"-i", iface, "-C"},
			command.Options{Timeout: time.Duration(duration+10) * time.Second})
		return map[string]interface{}{"success": result.Success(), "output": result.Stdout}, nil
	default:
		return nil, errUnknownTask("zeek", task)
	}
}

func (z *Zeek) readLog(name string, lines int) map[string]interface{} {
	path := filepath.Join(z.logDir, name)
	text, err := tailFile(path, lines)
	if err != nil {
		return map[string]interface{}{
			"entries": []interface{}{},
			"error":   fmt.Sprintf("Log not found: %s", path),
		}
	}
	return z.ParseOutput(text, "zeek_tsv")
}

// ParseOutput splits zeek TSV logs on the #fields header into aligned
// record maps. Non-TSV input is returned raw.
func (z *Zeek) ParseOutput(raw string, format string) map[string]interface{} {
	if format != "zeek_tsv" {
		return map[string]interface{}{"raw": raw}
	}

	var headers []string
	entries := []map[string]interface{}{}
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		switch {
		case strings.HasPrefix(line, "#fields"):
			headers = strings.Split(line, "\t")[1:]
		case strings.HasPrefix(line, "#"):
			continue
		case headers != nil:
			values := strings.Split(line, "\t")
			entry := make(map[string]interface{}, len(headers))
			for i, h := range headers {
				if i < len(values) {
					entry[h] = values[i]
				}
			}
			entries = append(entries, entry)
		}
	}
	return map[string]interface{}{"entries": entries, "total": len(entries)}
}
