package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/netsentry/netsentry/internal/command"
	"github.com/netsentry/netsentry/internal/models"
)

// TShark captures and decodes packets with the Wireshark CLI.
type TShark struct {
	noLifecycle
	toolState
}

// NewTShark creates the tshark adapter.
func NewTShark() *TShark {
	return &TShark{toolState: newToolState()}
}

func (t *TShark) Info() *models.ToolInfo {
	binary, version, status := t.snapshot()
	return &models.ToolInfo{
		Name:           "tshark",
		DisplayName:    "TShark",
		Category:       models.CategoryTrafficAnalyzer,
		Description:    "Network protocol analyzer (Wireshark CLI)",
		Version:        version,
		BinaryPath:     binary,
		Status:         status,
		SupportedTasks: []string{"capture", "read_pcap", "interfaces", "stats"},
	}
}

func (t *TShark) Detect(ctx context.Context) bool {
	binary := findBinary("tshark")
	if binary == "" {
		t.setDetected("", "", models.StatusUnavailable)
		return false
	}

	// "TShark (Wireshark) 4.2.2 ..."
	version := ""
	if ver := binaryVersion(ctx, binary, "--version"); ver != "" {
		version = strings.TrimSpace(ver)
		for _, f := range strings.Fields(ver) {
			if f != "" && f[0] >= '0' && f[0] <= '9' {
				version = f
				break
			}
		}
	}
	t.setDetected(binary, version, models.StatusAvailable)
	return true
}

func (t *TShark) HealthCheck(ctx context.Context) models.ToolStatus {
	binary := t.binaryPath()
	if binary == "" {
		return models.StatusUnavailable
	}
	result := runCommand(ctx, binary, []string{"--version"}, command.Options{Timeout: versionProbeTimeout})
	status := models.StatusAvailable
	if !result.Success() {
		status = models.StatusError
	}
	t.setStatus(status)
	return status
}

func (t *TShark) Execute(ctx context.Context, task string, params map[string]interface{}) (map[string]interface{}, error) {
	binary := t.binaryPath()
	if binary == "" {
		return nil, fmt.Errorf("tshark: %w", ErrNotAvailable)
	}

	switch task {
	case "capture":
		iface := paramString(params, "interface", "any")
		duration := paramInt(params, "duration", 30)
		count := paramInt(params, "count", 100)
		args := []string{
			"-i", iface,
			"-a", fmt.Sprintf("duration:%d", duration),
			"-c", fmt.Sprintf("%d", count),
			"-T", "json",
		}
		if filter := paramString(params, "filter", ""); filter != "" {
			args = append(args, "-Y", filter)
		}
		result := runCommand(ctx, binary, args, command.Options{Timeout: time.Duration(duration+30) * time.Second})
		return t.ParseOutput(result.Stdout, "json"), nil
	case "read_pcap":
		pcap := paramString(params, "file", "")
		if pcap == "" {
			return nil, fmt.Errorf("tshark: PCAP file path required")
		}
		args := []string{"-r", pcap, "-T", "json"}
		if filter := paramString(params, "filter", ""); filter != "" {
			args = append(args, "-Y", filter)
		}
		result := runCommand(ctx, binary, args, command.Options{Timeout: 120 * time.Second})
		return t.ParseOutput(result.Stdout, "json"), nil
	case "interfaces":
		result := runCommand(ctx, binary, []string{"-D"}, command.Options{Timeout: versionProbeTimeout})
		interfaces := []string{}
		for _, line := range strings.Split(strings.TrimSpace(result.Stdout), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				interfaces = append(interfaces, line)
			}
		}
		return map[string]interface{}{"interfaces": interfaces}, nil
	case "stats":
		iface := paramString(params, "interface", "any")
		duration := paramInt(params, "duration", 10)
		args := []string{
			"-i", iface,
			"-a", fmt.Sprintf("duration:%d", duration),
			"-q", "-z", "io,stat,1",
		}
		result := runCommand(ctx, binary, args, command.Options{Timeout: time.Duration(duration+15) * time.Second})
		return map[string]interface{}{"stats": result.Stdout}, nil
	default:
		return nil, errUnknownTask("tshark", task)
	}
}

// ParseOutput decodes tshark's -T json packet array.
func (t *TShark) ParseOutput(raw string, format string) map[string]interface{} {
	if format != "json" {
		return map[string]interface{}{"raw": raw}
	}
	var packets []interface{}
	if err := json.Unmarshal([]byte(raw), &packets); err != nil {
		return map[string]interface{}{"packets": []interface{}{}, "raw": truncateRaw(raw)}
	}
	return map[string]interface{}{"packets": packets, "total": len(packets)}
}
