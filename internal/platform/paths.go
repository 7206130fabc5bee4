package platform

import (
	"os"

	"github.com/netsentry/netsentry/internal/command"
	"github.com/rs/zerolog/log"
)

// toolPaths maps tool name to the places its binary is conventionally
// installed, per OS. PATH lookup is the fallback.
var toolPaths = map[string]map[OSType][]string{
	"nmap": {
		OSLinux: {"/usr/bin/nmap", "/usr/local/bin/nmap"},
		OSMacOS: {"/opt/homebrew/bin/nmap", "/usr/local/bin/nmap"},
		OSWindows: {
			`C:\Program Files (x86)\Nmap\nmap.exe`,
			`C:\Program Files\Nmap\nmap.exe`,
		},
	},
	"suricata": {
		OSLinux: {"/usr/bin/suricata", "/usr/local/bin/suricata"},
		OSMacOS: {"/opt/homebrew/bin/suricata", "/usr/local/bin/suricata"},
	},
	"zeek": {
		OSLinux: {"/usr/bin/zeek", "/usr/local/bin/zeek", "/opt/zeek/bin/zeek"},
		OSMacOS: {"/opt/homebrew/bin/zeek", "/usr/local/bin/zeek"},
	},
	"openvas": {
		OSLinux: {"/usr/bin/gvm-cli", "/usr/local/bin/gvm-cli"},
	},
	"tshark": {
		OSLinux:   {"/usr/bin/tshark", "/usr/local/bin/tshark"},
		OSMacOS:   {"/opt/homebrew/bin/tshark", "/usr/local/bin/tshark"},
		OSWindows: {`C:\Program Files\Wireshark\tshark.exe`},
	},
	"clamscan": {
		OSLinux:   {"/usr/bin/clamscan", "/usr/local/bin/clamscan"},
		OSMacOS:   {"/opt/homebrew/bin/clamscan", "/usr/local/bin/clamscan"},
		OSWindows: {`C:\Program Files\ClamAV\clamscan.exe`},
	},
	"ossec": {
		OSLinux: {"/var/ossec/bin/ossec-control"},
		OSMacOS: {"/var/ossec/bin/ossec-control"},
	},
	"fail2ban-client": {
		OSLinux: {"/usr/bin/fail2ban-client", "/usr/local/bin/fail2ban-client"},
		OSMacOS: {"/opt/homebrew/bin/fail2ban-client"},
	},
}

// FindToolBinary locates a tool's binary: curated per-OS paths first, then
// PATH. Returns "" when the tool cannot be found.
func FindToolBinary(toolName string) string {
	osType := Detect().OS
	for _, path := range toolPaths[toolName][osType] {
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			log.Debug().Str("tool", toolName).Str("path", path).Msg("Found tool at known path")
			return path
		}
	}

	if path := command.LookPath(toolName); path != "" {
		log.Debug().Str("tool", toolName).Str("path", path).Msg("Found tool in PATH")
		return path
	}
	return ""
}
