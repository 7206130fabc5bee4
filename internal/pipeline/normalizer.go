// Package pipeline implements the alert pipeline: normalize, deduplicate,
// correlate, classify, persist, dispatch.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/netsentry/netsentry/internal/models"
)

// NormalizedAlert is the tool-agnostic in-flight form of an alert.
type NormalizedAlert struct {
	Title         string
	Description   string
	Severity      models.Severity
	SourceTool    string
	SourceEventID string
	Category      string
	DeviceIP      string
	Fingerprint   string
	Timestamp     time.Time
	RawData       map[string]interface{}
}

// Normalizer converts per-tool raw records into canonical alerts.
type Normalizer struct {
	byTool map[string]func(map[string]interface{}) NormalizedAlert
}

// NewNormalizer creates a normalizer with the built-in per-tool transforms.
func NewNormalizer() *Normalizer {
	n := &Normalizer{}
	n.byTool = map[string]func(map[string]interface{}) NormalizedAlert{
		"nmap":     n.normalizeNmap,
		"suricata": n.normalizeSuricata,
		"zeek":     n.normalizeZeek,
		"openvas":  n.normalizeOpenVAS,
		"clamav":   n.normalizeClamAV,
		"ossec":    n.normalizeOSSEC,
		"fail2ban": n.normalizeFail2Ban,
	}
	return n
}

// Normalize converts one raw record. Unknown tools fall back to a generic
// transform reading conventional field names.
func (n *Normalizer) Normalize(sourceTool string, raw map[string]interface{}) NormalizedAlert {
	var alert NormalizedAlert
	if transform, ok := n.byTool[sourceTool]; ok {
		alert = transform(raw)
	} else {
		alert = n.normalizeGeneric(sourceTool, raw)
	}

	alert.SourceTool = sourceTool
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	if alert.Fingerprint == "" {
		alert.Fingerprint = Fingerprint(alert.SourceTool, alert.Category, alert.Title, alert.DeviceIP)
	}
	return alert
}

// Fingerprint derives the 16-hex-char dedup key. It is a pure function of
// (source tool, category, title, device IP).
func Fingerprint(sourceTool, category, title, deviceIP string) string {
	key := sourceTool + ":" + category + ":" + title + ":" + deviceIP
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

func (n *Normalizer) normalizeNmap(raw map[string]interface{}) NormalizedAlert {
	return NormalizedAlert{
		Title:       rawString(raw, "title", "Nmap finding"),
		Description: rawString(raw, "output", ""),
		Severity:    rawSeverity(raw, models.SeverityInfo),
		Category:    models.AlertCategoryVulnerability,
		DeviceIP:    rawString(raw, "host", ""),
		RawData:     raw,
	}
}

func (n *Normalizer) normalizeSuricata(raw map[string]interface{}) NormalizedAlert {
	alertData, _ := raw["alert"].(map[string]interface{})
	return NormalizedAlert{
		Title:         rawString(alertData, "signature", "Suricata alert"),
		Description:   fmt.Sprintf("Category: %s", rawString(alertData, "category", "unknown")),
		Severity:      suricataSeverity(rawInt(alertData, "severity", 3)),
		SourceEventID: rawStringify(alertData, "signature_id"),
		Category:      models.AlertCategoryIntrusion,
		DeviceIP:      rawString(raw, "src_ip", ""),
		RawData:       raw,
	}
}

func (n *Normalizer) normalizeZeek(raw map[string]interface{}) NormalizedAlert {
	note := rawString(raw, "note", "Zeek notice")
	return NormalizedAlert{
		Title:       note,
		Description: rawString(raw, "msg", ""),
		Severity:    zeekSeverity(note),
		Category:    models.AlertCategoryAnomaly,
		DeviceIP:    rawString(raw, "src", ""),
		RawData:     raw,
	}
}

func (n *Normalizer) normalizeOpenVAS(raw map[string]interface{}) NormalizedAlert {
	return NormalizedAlert{
		Title:         rawString(raw, "name", "OpenVAS finding"),
		Description:   rawString(raw, "description", ""),
		Severity:      cvssSeverity(rawFloat(raw, "cvss_score")),
		SourceEventID: rawString(raw, "oid", ""),
		Category:      models.AlertCategoryVulnerability,
		DeviceIP:      rawString(raw, "host", ""),
		RawData:       raw,
	}
}

func (n *Normalizer) normalizeClamAV(raw map[string]interface{}) NormalizedAlert {
	return NormalizedAlert{
		Title:       fmt.Sprintf("Malware detected: %s", rawString(raw, "signature", "unknown")),
		Description: fmt.Sprintf("File: %s", rawString(raw, "file", "unknown")),
		Severity:    models.SeverityHigh,
		Category:    models.AlertCategoryMalware,
		DeviceIP:    rawString(raw, "host", ""),
		RawData:     raw,
	}
}

func (n *Normalizer) normalizeOSSEC(raw map[string]interface{}) NormalizedAlert {
	return NormalizedAlert{
		Title:         rawString(raw, "description", "OSSEC alert"),
		Description:   rawString(raw, "full_log", ""),
		Severity:      ossecSeverity(rawInt(raw, "level", 0)),
		SourceEventID: rawStringify(raw, "rule_id"),
		Category:      models.AlertCategoryIntrusion,
		DeviceIP:      rawString(raw, "srcip", ""),
		RawData:       raw,
	}
}

func (n *Normalizer) normalizeFail2Ban(raw map[string]interface{}) NormalizedAlert {
	ip := rawString(raw, "ip", "unknown")
	return NormalizedAlert{
		Title:       fmt.Sprintf("IP banned: %s in jail %s", ip, rawString(raw, "jail", "unknown")),
		Description: fmt.Sprintf("Failures: %d", rawInt(raw, "failures", 0)),
		Severity:    models.SeverityMedium,
		Category:    models.AlertCategoryPolicy,
		DeviceIP:    rawString(raw, "ip", ""),
		RawData:     raw,
	}
}

func (n *Normalizer) normalizeGeneric(source string, raw map[string]interface{}) NormalizedAlert {
	title := rawString(raw, "title", "")
	if title == "" {
		title = rawString(raw, "message", fmt.Sprintf("Alert from %s", source))
	}
	deviceIP := rawString(raw, "ip", "")
	if deviceIP == "" {
		deviceIP = rawString(raw, "host", "")
	}
	return NormalizedAlert{
		Title:       title,
		Description: rawString(raw, "description", ""),
		Severity:    rawSeverity(raw, models.SeverityInfo),
		Category:    rawString(raw, "category", models.AlertCategoryUnknown),
		DeviceIP:    deviceIP,
		RawData:     raw,
	}
}

func suricataSeverity(level int) models.Severity {
	switch level {
	case 1:
		return models.SeverityCritical
	case 2:
		return models.SeverityHigh
	case 3:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func zeekSeverity(note string) models.Severity {
	lower := strings.ToLower(note)
	if strings.Contains(lower, "attack") || strings.Contains(lower, "exploit") {
		return models.SeverityCritical
	}
	if strings.Contains(lower, "scan") {
		return models.SeverityMedium
	}
	return models.SeverityInfo
}

func cvssSeverity(score float64) models.Severity {
	switch {
	case score >= 9.0:
		return models.SeverityCritical
	case score >= 7.0:
		return models.SeverityHigh
	case score >= 4.0:
		return models.SeverityMedium
	case score > 0:
		return models.SeverityLow
	default:
		return models.SeverityInfo
	}
}

func ossecSeverity(level int) models.Severity {
	switch {
	case level >= 12:
		return models.SeverityCritical
	case level >= 8:
		return models.SeverityHigh
	case level >= 4:
		return models.SeverityMedium
	case level >= 2:
		return models.SeverityLow
	default:
		return models.SeverityInfo
	}
}

func rawString(raw map[string]interface{}, key, fallback string) string {
	if v, ok := raw[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// rawStringify renders numeric or string ids as strings.
func rawStringify(raw map[string]interface{}, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int:
		return fmt.Sprintf("%d", v)
	}
	return ""
}

func rawInt(raw map[string]interface{}, key string, fallback int) int {
	switch v := raw[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func rawFloat(raw map[string]interface{}, key string) float64 {
	switch v := raw[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func rawSeverity(raw map[string]interface{}, fallback models.Severity) models.Severity {
	if v, ok := raw["severity"].(string); ok {
		if s := models.Severity(v); s.Valid() {
			return s
		}
	}
	return fallback
}
