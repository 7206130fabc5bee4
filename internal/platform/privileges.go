package platform

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// capNetRaw is bit 13 of the Linux effective capability set.
const capNetRaw = 1 << 13

// IsRoot reports whether the process runs with root privileges. On Windows
// there is no euid; elevation checks are out of scope there and the answer
// is always false.
func IsRoot() bool {
	if runtime.GOOS == "windows" {
		return false
	}
	return os.Geteuid() == 0
}

// CanCapturePackets reports whether the process may open raw sockets: root,
// or CAP_NET_RAW in the effective set on Linux.
func CanCapturePackets() bool {
	if IsRoot() {
		return true
	}
	if runtime.GOOS != "linux" {
		return false
	}

	data, err := readFileFn("/proc/self/status")
	if err != nil {
		return false
	}
	return capEffHasNetRaw(string(data))
}

func capEffHasNetRaw(status string) bool {
	for _, line := range strings.Split(status, "\n") {
		if !strings.HasPrefix(line, "CapEff:") {
			continue
		}
		hexVal := strings.TrimSpace(strings.TrimPrefix(line, "CapEff:"))
		caps, err := strconv.ParseUint(hexVal, 16, 64)
		if err != nil {
			return false
		}
		return caps&capNetRaw != 0
	}
	return false
}
