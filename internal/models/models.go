// Package models defines the shared data model: tools, alerts, devices,
// ports, scans and scheduled jobs.
package models

import "time"

// ToolCategory classifies a security tool by what it does.
type ToolCategory string

const (
	CategoryNetworkScanner       ToolCategory = "network_scanner"
	CategoryIDSIPS               ToolCategory = "ids_ips"
	CategoryVulnerabilityScanner ToolCategory = "vulnerability_scanner"
	CategoryTrafficAnalyzer      ToolCategory = "traffic_analyzer"
	CategoryMalwareScanner       ToolCategory = "malware_scanner"
	CategoryLogAnalyzer          ToolCategory = "log_analyzer"
	CategoryHostMonitor          ToolCategory = "host_monitor"
	CategoryAccessControl        ToolCategory = "access_control"
)

// ToolStatus is the current availability of an external tool.
type ToolStatus string

const (
	StatusUnknown     ToolStatus = "unknown"
	StatusAvailable   ToolStatus = "available"
	StatusUnavailable ToolStatus = "unavailable"
	StatusRunning     ToolStatus = "running"
	StatusError       ToolStatus = "error"
)

// ToolInfo is the descriptor for one external security tool. Name is stable
// and immutable after registration; BinaryPath, Version and Status are
// populated by detect and health checks.
type ToolInfo struct {
	Name           string       `json:"name"`
	DisplayName    string       `json:"displayName"`
	Category       ToolCategory `json:"category"`
	Description    string       `json:"description"`
	Version        string       `json:"version,omitempty"`
	BinaryPath     string       `json:"binaryPath,omitempty"`
	Status         ToolStatus   `json:"status"`
	SupportedTasks []string     `json:"supportedTasks"`
}

// Severity of an alert, ordered critical > high > medium > low > info.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

var severityLevels = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityInfo:     0,
}

// Level returns the numeric rank of a severity; unknown values rank as info.
func (s Severity) Level() int {
	return severityLevels[s]
}

// Valid reports whether s is one of the five known severities.
func (s Severity) Valid() bool {
	_, ok := severityLevels[s]
	return ok
}

// Alert categories.
const (
	AlertCategoryIntrusion     = "intrusion"
	AlertCategoryMalware       = "malware"
	AlertCategoryVulnerability = "vulnerability"
	AlertCategoryPolicy        = "policy"
	AlertCategoryAnomaly       = "anomaly"
	AlertCategoryUnknown       = "unknown"
)

// Alert statuses.
const (
	AlertStatusOpen          = "open"
	AlertStatusAcknowledged  = "acknowledged"
	AlertStatusResolved      = "resolved"
	AlertStatusFalsePositive = "false_positive"
)

// Alert is the persisted form of an alert: identity, triage status, dedup
// counters and audit timestamps on top of the normalized fields.
type Alert struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description,omitempty"`
	Severity      Severity               `json:"severity"`
	Status        string                 `json:"status"`
	SourceTool    string                 `json:"sourceTool"`
	SourceEventID string                 `json:"sourceEventId,omitempty"`
	Category      string                 `json:"category,omitempty"`
	DeviceIP      string                 `json:"deviceIp,omitempty"`
	Fingerprint   string                 `json:"fingerprint,omitempty"`
	Count         int                    `json:"count"`
	FirstSeen     time.Time              `json:"firstSeen"`
	LastSeen      time.Time              `json:"lastSeen"`
	RawData       map[string]interface{} `json:"rawData,omitempty"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	Notes         string                 `json:"notes,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// Device statuses.
const (
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
)

// Device is a network device discovered by scans. Identity is IP, or MAC when
// known.
type Device struct {
	ID         string    `json:"id"`
	IPAddress  string    `json:"ipAddress"`
	MACAddress string    `json:"macAddress,omitempty"`
	Hostname   string    `json:"hostname,omitempty"`
	Vendor     string    `json:"vendor,omitempty"`
	OSFamily   string    `json:"osFamily,omitempty"`
	OSVersion  string    `json:"osVersion,omitempty"`
	DeviceType string    `json:"deviceType,omitempty"`
	Status     string    `json:"status"`
	FirstSeen  time.Time `json:"firstSeen"`
	LastSeen   time.Time `json:"lastSeen"`
	Notes      string    `json:"notes,omitempty"`
	Ports      []Port    `json:"ports"`
}

// Port is owned by one device; keyed by (number, protocol).
type Port struct {
	ID             string `json:"id"`
	DeviceID       string `json:"deviceId"`
	PortNumber     int    `json:"portNumber"`
	Protocol       string `json:"protocol"`
	State          string `json:"state"`
	ServiceName    string `json:"serviceName,omitempty"`
	ServiceVersion string `json:"serviceVersion,omitempty"`
	Banner         string `json:"banner,omitempty"`
}

// Scan statuses. Completed, failed and cancelled are terminal.
const (
	ScanStatusPending   = "pending"
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
	ScanStatusCancelled = "cancelled"
)

// Scan records one scan request and its outcome.
type Scan struct {
	ID              string                 `json:"id"`
	ScanType        string                 `json:"scanType"`
	Tool            string                 `json:"tool"`
	Target          string                 `json:"target"`
	Status          string                 `json:"status"`
	Progress        int                    `json:"progress"`
	StartedAt       *time.Time             `json:"startedAt,omitempty"`
	CompletedAt     *time.Time             `json:"completedAt,omitempty"`
	ResultSummary   string                 `json:"resultSummary,omitempty"`
	ErrorMessage    string                 `json:"errorMessage,omitempty"`
	Parameters      map[string]interface{} `json:"parameters,omitempty"`
	Results         map[string]interface{} `json:"results,omitempty"`
	DevicesFound    int                    `json:"devicesFound"`
	AlertsGenerated int                    `json:"alertsGenerated"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// Terminal reports whether the scan has reached a terminal state.
func (s *Scan) Terminal() bool {
	switch s.Status {
	case ScanStatusCompleted, ScanStatusFailed, ScanStatusCancelled:
		return true
	}
	return false
}

// Trigger kinds for scheduled jobs.
const (
	TriggerCron     = "cron"
	TriggerInterval = "interval"
)

// ScheduledJob is a recurring task definition owned by the scheduler. Cron
// jobs carry a cron expression; interval jobs carry a period in seconds.
type ScheduledJob struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	TriggerKind     string                 `json:"triggerKind"`
	CronExpr        string                 `json:"cronExpr,omitempty"`
	IntervalSeconds int                    `json:"intervalSeconds,omitempty"`
	TaskType        string                 `json:"taskType"`
	TaskParams      map[string]interface{} `json:"taskParams,omitempty"`
	Enabled         bool                   `json:"enabled"`
	LastRun         *time.Time             `json:"lastRun,omitempty"`
	NextRun         *time.Time             `json:"nextRun,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
}
