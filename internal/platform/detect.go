// Package platform answers questions about the host: OS and distro, container
// and WSL indicators, privileges, tool binary locations and service state.
package platform

import (
	"context"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/host"
)

// OSType identifies the operating system family.
type OSType string

const (
	OSLinux   OSType = "linux"
	OSMacOS   OSType = "macos"
	OSWindows OSType = "windows"
	OSUnknown OSType = "unknown"
)

// LinuxDistro identifies a Linux distribution family.
type LinuxDistro string

const (
	DistroDebian  LinuxDistro = "debian"
	DistroUbuntu  LinuxDistro = "ubuntu"
	DistroFedora  LinuxDistro = "fedora"
	DistroCentOS  LinuxDistro = "centos"
	DistroRHEL    LinuxDistro = "rhel"
	DistroArch    LinuxDistro = "arch"
	DistroAlpine  LinuxDistro = "alpine"
	DistroUnknown LinuxDistro = "unknown"
)

// Info describes the detected platform.
type Info struct {
	OS          OSType      `json:"os"`
	Distro      LinuxDistro `json:"distro"`
	Version     string      `json:"version"`
	Arch        string      `json:"arch"`
	IsWSL       bool        `json:"isWsl"`
	IsContainer bool        `json:"isContainer"`
}

var (
	detectOnce sync.Once
	detected   Info

	readFileFn = os.ReadFile
)

// Detect returns the platform info, probed once per process.
func Detect() Info {
	detectOnce.Do(func() {
		detected = probe()
	})
	return detected
}

func probe() Info {
	info := Info{
		OS:     osType(),
		Distro: DistroUnknown,
		Arch:   runtime.GOARCH,
	}

	if hi, err := host.InfoWithContext(context.Background()); err == nil {
		info.Version = hi.PlatformVersion
		if hi.KernelArch != "" {
			info.Arch = hi.KernelArch
		}
	} else {
		log.Debug().Err(err).Msg("Host info probe failed")
	}

	if info.OS == OSLinux {
		info.Distro = detectLinuxDistro()
		if data, err := readFileFn("/proc/version"); err == nil {
			info.IsWSL = strings.Contains(strings.ToLower(string(data)), "microsoft")
		}
	}

	if data, err := readFileFn("/proc/1/cgroup"); err == nil {
		content := string(data)
		info.IsContainer = strings.Contains(content, "docker") || strings.Contains(content, "containerd")
	}
	if !info.IsContainer {
		if _, err := os.Stat("/.dockerenv"); err == nil {
			info.IsContainer = true
		}
	}

	return info
}

func osType() OSType {
	switch runtime.GOOS {
	case "linux":
		return OSLinux
	case "darwin":
		return OSMacOS
	case "windows":
		return OSWindows
	default:
		return OSUnknown
	}
}

func detectLinuxDistro() LinuxDistro {
	data, err := readFileFn("/etc/os-release")
	if err != nil {
		return DistroUnknown
	}
	return distroFromRelease(string(data))
}

// distroFromRelease matches distro keywords in os-release content. Ubuntu is
// checked before Debian because Ubuntu's file mentions both.
func distroFromRelease(content string) LinuxDistro {
	content = strings.ToLower(content)
	switch {
	case strings.Contains(content, "ubuntu"):
		return DistroUbuntu
	case strings.Contains(content, "debian"):
		return DistroDebian
	case strings.Contains(content, "fedora"):
		return DistroFedora
	case strings.Contains(content, "centos"):
		return DistroCentOS
	case strings.Contains(content, "rhel"), strings.Contains(content, "red hat"):
		return DistroRHEL
	case strings.Contains(content, "arch"):
		return DistroArch
	case strings.Contains(content, "alpine"):
		return DistroAlpine
	default:
		return DistroUnknown
	}
}
