package adapters

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/netsentry/netsentry/internal/command"
	"github.com/netsentry/netsentry/internal/models"
)

var clamVersionRe = regexp.MustCompile(`ClamAV\s+([\d.]+)`)

// ClamAV runs on-demand malware scans with clamscan.
type ClamAV struct {
	noLifecycle
	toolState
}

// NewClamAV creates the clamav adapter.
func NewClamAV() *ClamAV {
	return &ClamAV{toolState: newToolState()}
}

func (c *ClamAV) Info() *models.ToolInfo {
	binary, version, status := c.snapshot()
	return &models.ToolInfo{
		Name:           "clamav",
		DisplayName:    "ClamAV",
		Category:       models.CategoryMalwareScanner,
		Description:    "Open source antivirus engine",
		Version:        version,
		BinaryPath:     binary,
		Status:         status,
		SupportedTasks: []string{"scan", "update_signatures", "version"},
	}
}

func (c *ClamAV) Detect(ctx context.Context) bool {
	binary := findBinary("clamscan")
	if binary == "" {
		c.setDetected("", "", models.StatusUnavailable)
		return false
	}

	version := ""
	if ver := binaryVersion(ctx, binary, "--version"); ver != "" {
		if m := clamVersionRe.FindStringSubmatch(ver); m != nil {
			version = m[1]
		} else {
			version = ver
		}
	}
	c.setDetected(binary, version, models.StatusAvailable)
	return true
}

func (c *ClamAV) HealthCheck(ctx context.Context) models.ToolStatus {
	binary := c.binaryPath()
	if binary == "" {
		return models.StatusUnavailable
	}
	result := runCommand(ctx, binary, []string{"--version"}, command.Options{Timeout: versionProbeTimeout})
	status := models.StatusAvailable
	if !result.Success() {
		status = models.StatusError
	}
	c.setStatus(status)
	return status
}

func (c *ClamAV) Execute(ctx context.Context, task string, params map[string]interface{}) (map[string]interface{}, error) {
	binary := c.binaryPath()
	if binary == "" {
		return nil, fmt.Errorf("clamav: %w", ErrNotAvailable)
	}

	switch task {
	case "scan":
		target := paramString(params, "target", "/")
		args := []string{"--infected", "--no-summary"}
		if recursive, ok := params["recursive"].(bool); !ok || recursive {
			args = append(args, "-r")
		}
		args = append(args, target)
		timeout := time.Duration(paramInt(params, "timeout", 600)) * time.Second
		result := runCommand(ctx, binary, args, command.Options{Timeout: timeout})
		return c.ParseOutput(result.Stdout, "text"), nil
	case "update_signatures":
		result := runCommand(ctx, "freshclam", nil, command.Options{Timeout: 300 * time.Second})
		return map[string]interface{}{
			"success": result.Success(),
			"output":  result.Stdout,
			"stderr":  result.Stderr,
		}, nil
	case "version":
		result := runCommand(ctx, binary, []string{"--version"}, command.Options{Timeout: versionProbeTimeout})
		return map[string]interface{}{"version": strings.TrimSpace(result.Stdout)}, nil
	default:
		return nil, errUnknownTask("clamav", task)
	}
}

// ParseOutput extracts "<path>: <signature> FOUND" lines.
func (c *ClamAV) ParseOutput(raw string, format string) map[string]interface{} {
	infections := []map[string]interface{}{}
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if !strings.Contains(line, ": ") || !strings.Contains(line, "FOUND") {
			continue
		}
		idx := strings.LastIndex(line, ": ")
		file := strings.TrimSpace(line[:idx])
		signature := strings.TrimSpace(strings.ReplaceAll(line[idx+2:], "FOUND", ""))
		infections = append(infections, map[string]interface{}{
			"file":      file,
			"signature": signature,
		})
	}
	return map[string]interface{}{"infections": infections, "total": len(infections)}
}
