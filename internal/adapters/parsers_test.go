package adapters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuricataParseEveEvents(t *testing.T) {
	raw := `{"event_type":"alert","alert":{"signature":"ET SCAN","severity":2},"src_ip":"10.0.0.5"}
not json at all
{"event_type":"stats","uptime":120}
{"event_type":"alert","alert":{"signature":"ET EXPLOIT","severity":1}}`

	result := NewSuricata().ParseOutput(raw, "eve")
	events := result["events"].([]map[string]interface{})
	require.Len(t, events, 3)
	assert.Equal(t, "alert", events[0]["event_type"])
	assert.Equal(t, "stats", events[1]["event_type"])
}

func TestSuricataTailAlertsFiltersNonAlerts(t *testing.T) {
	dir := t.TempDir()
	eve := filepath.Join(dir, "eve.json")
	content := `{"event_type":"stats","uptime":1}
{"event_type":"alert","alert":{"signature":"ET SCAN"}}
{"event_type":"flow"}
{"event_type":"alert","alert":{"signature":"ET MALWARE"}}
`
	require.NoError(t, os.WriteFile(eve, []byte(content), 0o644))

	s := NewSuricata()
	s.eveLog = eve
	result := s.tailEve(100)

	alerts := result["alerts"].([]map[string]interface{})
	assert.Len(t, alerts, 2)
	assert.Equal(t, 2, result["total"])
}

func TestSuricataTailAlertsMissingLog(t *testing.T) {
	s := NewSuricata()
	s.eveLog = filepath.Join(t.TempDir(), "missing.json")
	result := s.tailEve(10)
	assert.Contains(t, result, "error")
}

func TestZeekParseTSV(t *testing.T) {
	raw := "#separator \\x09\n" +
		"#path\tconn\n" +
		"#fields\tts\tuid\tid.orig_h\tid.resp_h\n" +
		"#types\ttime\tstring\taddr\taddr\n" +
		"1700000000.123\tCabc123\t192.168.1.5\t8.8.8.8\n" +
		"1700000001.456\tCdef456\t192.168.1.6\t1.1.1.1\n"

	result := NewZeek().ParseOutput(raw, "zeek_tsv")
	entries := result["entries"].([]map[string]interface{})
	require.Len(t, entries, 2)
	assert.Equal(t, 2, result["total"])
	assert.Equal(t, "192.168.1.5", entries[0]["id.orig_h"])
	assert.Equal(t, "8.8.8.8", entries[0]["id.resp_h"])
	assert.Equal(t, "Cdef456", entries[1]["uid"])
}

func TestZeekParseTSVNoHeader(t *testing.T) {
	result := NewZeek().ParseOutput("no header here\njust text\n", "zeek_tsv")
	entries := result["entries"].([]map[string]interface{})
	assert.Empty(t, entries)
}

func TestClamAVParseInfections(t *testing.T) {
	raw := `/home/user/eicar.txt: Eicar-Signature FOUND
/home/user/clean.txt: OK
/tmp/bad with spaces.exe: Win.Trojan.Agent-12345 FOUND`

	result := NewClamAV().ParseOutput(raw, "text")
	infections := result["infections"].([]map[string]interface{})
	require.Len(t, infections, 2)
	assert.Equal(t, 2, result["total"])
	assert.Equal(t, "/home/user/eicar.txt", infections[0]["file"])
	assert.Equal(t, "Eicar-Signature", infections[0]["signature"])
	assert.Equal(t, "/tmp/bad with spaces.exe", infections[1]["file"])
	assert.Equal(t, "Win.Trojan.Agent-12345", infections[1]["signature"])
}

func TestClamAVParseCleanOutput(t *testing.T) {
	result := NewClamAV().ParseOutput("/home/user/clean.txt: OK\n", "text")
	assert.Equal(t, 0, result["total"])
}

func TestFail2BanParseStatus(t *testing.T) {
	raw := `Status
|- Number of jail:	2
` + "`- Jail list:\tsshd, nginx-http-auth"

	result := NewFail2Ban().ParseOutput(raw, "status")
	jails := result["jails"].([]string)
	require.Len(t, jails, 2)
	assert.Equal(t, []string{"sshd", "nginx-http-auth"}, jails)
	assert.Equal(t, 2, result["total"])
}

func TestFail2BanParseJailStatus(t *testing.T) {
	raw := `Status for the jail: sshd
|- Filter
|  |- Currently failed:	3
|  |- Total failed:	42
` + "`- Actions\n" +
		"   |- Currently banned:\t2\n" +
		"   |- Total banned:\t17\n" +
		"   `- Banned IP list:\t203.0.113.5 198.51.100.7"

	result := NewFail2Ban().ParseOutput(raw, "jail_status")
	assert.Equal(t, 3, result["currently_failed"])
	assert.Equal(t, 42, result["total_failed"])
	assert.Equal(t, 2, result["currently_banned"])
	assert.Equal(t, 17, result["total_banned"])
	assert.Equal(t, []string{"203.0.113.5", "198.51.100.7"}, result["banned_ips"])
}

func TestOSSECParseJSONAlerts(t *testing.T) {
	raw := `{"rule":{"level":10,"description":"Multiple auth failures"},"srcip":"203.0.113.9"}
{"rule":{"level":3,"description":"Login ok"}}`

	result := NewOSSEC().ParseOutput(raw, "json")
	alerts := result["alerts"].([]map[string]interface{})
	require.Len(t, alerts, 2)
	assert.Equal(t, 2, result["total"])
	assert.Equal(t, "203.0.113.9", alerts[0]["srcip"])
}

func TestOpenVASParseEnvelope(t *testing.T) {
	raw := `<get_tasks_response status="200" status_text="OK"></get_tasks_response>`
	result := NewOpenVAS().ParseOutput(raw, "xml")
	assert.Equal(t, "200", result["status"])
	assert.Equal(t, "OK", result["status_text"])
}

func TestTSharkParsePackets(t *testing.T) {
	raw := `[{"_source":{"layers":{"ip":{"ip.src":"10.0.0.1"}}}},{"_source":{"layers":{}}}]`
	result := NewTShark().ParseOutput(raw, "json")
	assert.Equal(t, 2, result["total"])

	bad := NewTShark().ParseOutput("not json", "json")
	assert.Contains(t, bad, "raw")
}
