package adapters

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/netsentry/netsentry/internal/command"
	"github.com/netsentry/netsentry/internal/models"
)

// Nmap drives the nmap network scanner and parses its XML output.
type Nmap struct {
	noLifecycle
	toolState
}

// NewNmap creates the nmap adapter.
func NewNmap() *Nmap {
	return &Nmap{toolState: newToolState()}
}

func (n *Nmap) Info() *models.ToolInfo {
	binary, version, status := n.snapshot()
	return &models.ToolInfo{
		Name:        "nmap",
		DisplayName: "Nmap",
		Category:    models.CategoryNetworkScanner,
		Description: "Network exploration and security auditing tool",
		Version:     version,
		BinaryPath:  binary,
		Status:      status,
		SupportedTasks: []string{
			"quick_scan", "full_scan", "port_scan", "os_detect", "service_detect", "vuln_scan",
		},
	}
}

func (n *Nmap) Detect(ctx context.Context) bool {
	binary := findBinary("nmap")
	if binary == "" {
		n.setDetected("", "", models.StatusUnavailable)
		return false
	}

	// "Nmap version 7.94 ( https://nmap.org )"
	version := ""
	if ver := binaryVersion(ctx, binary, "--version"); ver != "" {
		parts := strings.Fields(ver)
		for i, p := range parts {
			if p == "version" && i+1 < len(parts) {
				version = parts[i+1]
				break
			}
		}
		if version == "" {
			version = ver
		}
	}
	n.setDetected(binary, version, models.StatusAvailable)
	return true
}

func (n *Nmap) HealthCheck(ctx context.Context) models.ToolStatus {
	binary := n.binaryPath()
	if binary == "" {
		return models.StatusUnavailable
	}
	result := runCommand(ctx, binary, []string{"--version"}, command.Options{Timeout: versionProbeTimeout})
	status := models.StatusAvailable
	if !result.Success() {
		status = models.StatusError
	}
	n.setStatus(status)
	return status
}

func (n *Nmap) Execute(ctx context.Context, task string, params map[string]interface{}) (map[string]interface{}, error) {
	binary := n.binaryPath()
	if binary == "" {
		return nil, fmt.Errorf("nmap: %w", ErrNotAvailable)
	}
	target := paramString(params, "target", "")
	if target == "" {
		return nil, fmt.Errorf("nmap: target is required")
	}

	args := n.buildArgs(task, target, params)
	log.Info().Strs("args", args).Msg("Executing nmap")

	result := runCommand(ctx, binary, args, command.Options{})
	if result.TimedOut {
		return map[string]interface{}{"error": "Scan timed out", "command": result.Command}, nil
	}
	if !result.Success() {
		return map[string]interface{}{
			"error":      result.Stderr,
			"command":    result.Command,
			"returncode": result.ReturnCode,
		}, nil
	}

	parsed := n.ParseOutput(result.Stdout, "xml")
	parsed["command"] = result.Command
	return parsed, nil
}

func (n *Nmap) buildArgs(task, target string, params map[string]interface{}) []string {
	// All tasks emit XML on stdout.
	base := []string{"-oX", "-"}
	switch task {
	case "quick_scan":
		return append(base, "-sn", target)
	case "full_scan":
		return append(base, "-sV", "-O", "-A", target)
	case "port_scan":
		ports := paramString(params, "ports", "1-1024")
		return append(base, "-sS", "-p", ports, target)
	case "os_detect":
		return append(base, "-O", target)
	case "service_detect":
		return append(base, "-sV", target)
	case "vuln_scan":
		return append(base, "--script", "vuln", target)
	default:
		if extra := paramString(params, "args", ""); extra != "" {
			return append(append(base, strings.Fields(extra)...), target)
		}
		return append(base, "-sn", target)
	}
}

func (n *Nmap) ParseOutput(raw string, format string) map[string]interface{} {
	if format == "xml" || strings.HasPrefix(strings.TrimSpace(raw), "<?xml") {
		return parseNmapXML(raw)
	}
	return map[string]interface{}{"raw": raw}
}

// nmapRun mirrors the subset of nmap's XML schema the parser consumes.
type nmapRun struct {
	Scanner string     `xml:"scanner,attr"`
	Args    string     `xml:"args,attr"`
	Start   string     `xml:"start,attr"`
	Version string     `xml:"version,attr"`
	Hosts   []nmapHost `xml:"host"`
	Stats   *struct {
		Finished *struct {
			Elapsed string `xml:"elapsed,attr"`
			Summary string `xml:"summary,attr"`
		} `xml:"finished"`
		Hosts *struct {
			Up    string `xml:"up,attr"`
			Down  string `xml:"down,attr"`
			Total string `xml:"total,attr"`
		} `xml:"hosts"`
	} `xml:"runstats"`
}

type nmapHost struct {
	Status *struct {
		State string `xml:"state,attr"`
	} `xml:"status"`
	Addresses []struct {
		Addr     string `xml:"addr,attr"`
		AddrType string `xml:"addrtype,attr"`
		Vendor   string `xml:"vendor,attr"`
	} `xml:"address"`
	Hostnames []struct {
		Name string `xml:"name,attr"`
		Type string `xml:"type,attr"`
	} `xml:"hostnames>hostname"`
	Ports []struct {
		PortID   string `xml:"portid,attr"`
		Protocol string `xml:"protocol,attr"`
		State    *struct {
			State string `xml:"state,attr"`
		} `xml:"state"`
		Service *struct {
			Name      string `xml:"name,attr"`
			Product   string `xml:"product,attr"`
			Version   string `xml:"version,attr"`
			ExtraInfo string `xml:"extrainfo,attr"`
		} `xml:"service"`
	} `xml:"ports>port"`
	OSMatches []struct {
		Name     string `xml:"name,attr"`
		Accuracy string `xml:"accuracy,attr"`
	} `xml:"os>osmatch"`
}

func parseNmapXML(raw string) map[string]interface{} {
	var run nmapRun
	if err := xml.Unmarshal([]byte(raw), &run); err != nil {
		log.Warn().Err(err).Msg("Failed to parse nmap XML")
		return map[string]interface{}{
			"error": fmt.Sprintf("XML parse error: %v", err),
			"raw":   truncateRaw(raw),
		}
	}

	hosts := make([]map[string]interface{}, 0, len(run.Hosts))
	for _, h := range run.Hosts {
		hosts = append(hosts, parseNmapHost(h))
	}

	stats := map[string]interface{}{}
	if run.Stats != nil {
		if f := run.Stats.Finished; f != nil {
			stats["elapsed"] = f.Elapsed
			stats["summary"] = f.Summary
		}
		if hs := run.Stats.Hosts; hs != nil {
			stats["hosts_up"] = atoi(hs.Up)
			stats["hosts_down"] = atoi(hs.Down)
			stats["hosts_total"] = atoi(hs.Total)
		}
	}

	return map[string]interface{}{
		"scan_info": map[string]interface{}{
			"scanner":    run.Scanner,
			"args":       run.Args,
			"start_time": run.Start,
			"version":    run.Version,
		},
		"hosts": hosts,
		"stats": stats,
	}
}

func parseNmapHost(h nmapHost) map[string]interface{} {
	host := map[string]interface{}{
		"status":    "unknown",
		"addresses": map[string]interface{}{},
		"hostnames": []map[string]interface{}{},
		"ports":     []map[string]interface{}{},
		"os":        map[string]interface{}{},
	}

	if h.Status != nil {
		host["status"] = h.Status.State
	}

	addresses := host["addresses"].(map[string]interface{})
	for _, addr := range h.Addresses {
		addresses[addr.AddrType] = addr.Addr
		if addr.AddrType == "mac" {
			addresses["vendor"] = addr.Vendor
		}
	}

	hostnames := []map[string]interface{}{}
	for _, hn := range h.Hostnames {
		hostnames = append(hostnames, map[string]interface{}{"name": hn.Name, "type": hn.Type})
	}
	host["hostnames"] = hostnames

	ports := []map[string]interface{}{}
	for _, p := range h.Ports {
		portInfo := map[string]interface{}{
			"port":     atoi(p.PortID),
			"protocol": p.Protocol,
		}
		if p.State != nil {
			portInfo["state"] = p.State.State
		}
		if p.Service != nil {
			portInfo["service"] = p.Service.Name
			portInfo["product"] = p.Service.Product
			portInfo["version"] = p.Service.Version
			portInfo["extrainfo"] = p.Service.ExtraInfo
		}
		ports = append(ports, portInfo)
	}
	host["ports"] = ports

	if len(h.OSMatches) > 0 {
		host["os"] = map[string]interface{}{
			"name":     h.OSMatches[0].Name,
			"accuracy": h.OSMatches[0].Accuracy,
		}
	}
	return host
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
