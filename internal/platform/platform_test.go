package platform

import (
	"context"
	"runtime"
	"testing"

	"github.com/netsentry/netsentry/internal/command"
	"github.com/stretchr/testify/assert"
)

func TestDistroFromRelease(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    LinuxDistro
	}{
		{"ubuntu", `NAME="Ubuntu"` + "\n" + `ID=ubuntu` + "\n" + `ID_LIKE=debian`, DistroUbuntu},
		{"debian", `PRETTY_NAME="Debian GNU/Linux 12 (bookworm)"`, DistroDebian},
		{"fedora", `NAME="Fedora Linux"`, DistroFedora},
		{"centos", `NAME="CentOS Stream"`, DistroCentOS},
		{"rhel", `NAME="Red Hat Enterprise Linux"`, DistroRHEL},
		{"arch", `NAME="Arch Linux"`, DistroArch},
		{"alpine", `NAME="Alpine Linux"`, DistroAlpine},
		{"unknown", `NAME="SomethingElse"`, DistroUnknown},
		{"empty", "", DistroUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, distroFromRelease(tc.content))
		})
	}
}

func TestCapEffHasNetRaw(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   bool
	}{
		{
			"full root caps",
			"Name:\tnetsentry\nCapEff:\t000001ffffffffff\n",
			true,
		},
		{
			"cap_net_raw only",
			"CapEff:\t0000000000002000\n",
			true,
		},
		{
			"no caps",
			"CapEff:\t0000000000000000\n",
			false,
		},
		{
			"missing line",
			"Name:\tnetsentry\n",
			false,
		},
		{
			"garbage value",
			"CapEff:\tzzzz\n",
			false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, capEffHasNetRaw(tc.status))
		})
	}
}

func TestDetectReturnsCurrentOS(t *testing.T) {
	info := Detect()
	switch runtime.GOOS {
	case "linux":
		assert.Equal(t, OSLinux, info.OS)
	case "darwin":
		assert.Equal(t, OSMacOS, info.OS)
	case "windows":
		assert.Equal(t, OSWindows, info.OS)
	}
	assert.NotEmpty(t, info.Arch)
}

func TestSystemdStatusParsing(t *testing.T) {
	orig := runner
	defer func() { runner = orig }()

	calls := map[string]command.Result{
		"is-active":  {ReturnCode: 0, Stdout: "active\n"},
		"is-enabled": {ReturnCode: 0, Stdout: "enabled\n"},
		"show":       {ReturnCode: 0, Stdout: "1234\n"},
	}
	runner = func(ctx context.Context, name string, args []string, opts command.Options) command.Result {
		return calls[args[0]]
	}

	status := systemdStatus(context.Background(), "suricata")
	assert.Equal(t, ServiceRunning, status.State)
	assert.True(t, status.Enabled)
	assert.Equal(t, 1234, status.PID)
}

func TestSystemdStatusStopped(t *testing.T) {
	orig := runner
	defer func() { runner = orig }()

	runner = func(ctx context.Context, name string, args []string, opts command.Options) command.Result {
		return command.Result{ReturnCode: 3, Stdout: "inactive\n"}
	}

	status := systemdStatus(context.Background(), "suricata")
	assert.Equal(t, ServiceStopped, status.State)
	assert.Zero(t, status.PID)
}

func TestFindToolBinaryUnknownTool(t *testing.T) {
	assert.Empty(t, FindToolBinary("definitely-not-a-real-tool-xyz"))
}
