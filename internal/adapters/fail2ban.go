package adapters

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/netsentry/netsentry/internal/command"
	"github.com/netsentry/netsentry/internal/models"
)

var f2bVersionRe = regexp.MustCompile(`v?([\d.]+)`)

// Fail2Ban queries and controls the fail2ban intrusion-prevention daemon
// through fail2ban-client.
type Fail2Ban struct {
	noLifecycle
	toolState
}

// NewFail2Ban creates the fail2ban adapter.
func NewFail2Ban() *Fail2Ban {
	return &Fail2Ban{toolState: newToolState()}
}

func (f *Fail2Ban) Info() *models.ToolInfo {
	binary, version, status := f.snapshot()
	return &models.ToolInfo{
		Name:           "fail2ban",
		DisplayName:    "Fail2Ban",
		Category:       models.CategoryAccessControl,
		Description:    "Intrusion prevention that bans IPs with too many failures",
		Version:        version,
		BinaryPath:     binary,
		Status:         status,
		SupportedTasks: []string{"status", "jail_status", "banned_ips", "ban", "unban"},
	}
}

func (f *Fail2Ban) Detect(ctx context.Context) bool {
	binary := findBinary("fail2ban-client")
	if binary == "" {
		f.setDetected("", "", models.StatusUnavailable)
		return false
	}

	version := ""
	if ver := binaryVersion(ctx, binary, "--version"); ver != "" {
		if m := f2bVersionRe.FindStringSubmatch(ver); m != nil {
			version = m[1]
		} else {
			version = strings.TrimSpace(ver)
		}
	}
	f.setDetected(binary, version, models.StatusAvailable)
	return true
}

func (f *Fail2Ban) HealthCheck(ctx context.Context) models.ToolStatus {
	binary := f.binaryPath()
	if binary == "" {
		return models.StatusUnavailable
	}
	result := runCommand(ctx, binary, []string{"ping"}, command.Options{Timeout: versionProbeTimeout})
	status := models.StatusAvailable
	if result.Success() && strings.Contains(strings.ToLower(result.Stdout), "pong") {
		status = models.StatusRunning
	}
	f.setStatus(status)
	return status
}

func (f *Fail2Ban) Execute(ctx context.Context, task string, params map[string]interface{}) (map[string]interface{}, error) {
	binary := f.binaryPath()
	if binary == "" {
		return nil, fmt.Errorf("fail2ban: %w", ErrNotAvailable)
	}
	opts := command.Options{Timeout: versionProbeTimeout}

	switch task {
	case "status":
		result := runCommand(ctx, binary, []string{"status"}, opts)
		return f.ParseOutput(result.Stdout, "status"), nil
	case "jail_status":
		jail := paramString(params, "jail", "sshd")
		result := runCommand(ctx, binary, []string{"status", jail}, opts)
		return f.ParseOutput(result.Stdout, "jail_status"), nil
	case "banned_ips":
		args := []string{"banned"}
		if jail := paramString(params, "jail", ""); jail != "" {
			args = []string{"get", jail, "banned"}
		}
		result := runCommand(ctx, binary, args, opts)
		return map[string]interface{}{
			"banned":  strings.Split(strings.TrimSpace(result.Stdout), "\n"),
			"success": result.Success(),
		}, nil
	case "ban":
		return f.banAction(ctx, "banip", params)
	case "unban":
		return f.banAction(ctx, "unbanip", params)
	default:
		return nil, errUnknownTask("fail2ban", task)
	}
}

func (f *Fail2Ban) banAction(ctx context.Context, action string, params map[string]interface{}) (map[string]interface{}, error) {
	jail := paramString(params, "jail", "sshd")
	ip := paramString(params, "ip", "")
	if ip == "" {
		return nil, fmt.Errorf("fail2ban: IP address required")
	}
	result := runCommand(ctx, f.binaryPath(), []string{"set", jail, action, ip}, command.Options{Timeout: versionProbeTimeout})
	return map[string]interface{}{"success": result.Success(), "output": result.Stdout}, nil
}

// ParseOutput handles the two fail2ban-client status formats: the global
// jail list and a per-jail counter block.
func (f *Fail2Ban) ParseOutput(raw string, format string) map[string]interface{} {
	switch format {
	case "status":
		jails := []string{}
		for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
			if !strings.Contains(line, "Jail list:") {
				continue
			}
			_, list, _ := strings.Cut(line, ":")
			for _, jail := range strings.Split(list, ",") {
				if jail = strings.TrimSpace(jail); jail != "" {
					jails = append(jails, jail)
				}
			}
		}
		return map[string]interface{}{"jails": jails, "total": len(jails)}

	case "jail_status":
		info := map[string]interface{}{}
		for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.Contains(line, "Currently failed:"):
				info["currently_failed"] = lastInt(line)
			case strings.Contains(line, "Total failed:"):
				info["total_failed"] = lastInt(line)
			case strings.Contains(line, "Currently banned:"):
				info["currently_banned"] = lastInt(line)
			case strings.Contains(line, "Total banned:"):
				info["total_banned"] = lastInt(line)
			case strings.Contains(line, "Banned IP list:"):
				_, list, _ := strings.Cut(line, "Banned IP list:")
				ips := []string{}
				for _, ip := range strings.Fields(list) {
					ips = append(ips, ip)
				}
				info["banned_ips"] = ips
			}
		}
		return info
	}
	return map[string]interface{}{"raw": raw}
}

func lastInt(line string) int {
	parts := strings.Split(line, ":")
	n, _ := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	return n
}
