package adapters

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/netsentry/netsentry/internal/models"
)

var pialertDBPaths = []string{
	"/opt/pialert/db/pialert.db",
	"/home/pi/pialert/db/pialert.db",
}

// PiAlert reads the Pi.Alert presence monitor's SQLite database directly.
type PiAlert struct {
	noLifecycle
	toolState
	// dbPath is written by Detect only, before any concurrent access.
	dbPath string
}

// NewPiAlert creates the pialert adapter.
func NewPiAlert() *PiAlert {
	return &PiAlert{toolState: newToolState(), dbPath: pialertDBPaths[0]}
}

func (p *PiAlert) Info() *models.ToolInfo {
	_, _, status := p.snapshot()
	return &models.ToolInfo{
		Name:           "pialert",
		DisplayName:    "Pi.Alert",
		Category:       models.CategoryHostMonitor,
		Description:    "Network device presence monitor",
		Status:         status,
		SupportedTasks: []string{"list_devices", "new_devices", "events"},
	}
}

func (p *PiAlert) Detect(ctx context.Context) bool {
	for _, path := range pialertDBPaths {
		if _, err := statFile(path); err == nil {
			p.dbPath = path
			p.setStatus(models.StatusAvailable)
			return true
		}
	}
	p.setStatus(models.StatusUnavailable)
	return false
}

func (p *PiAlert) HealthCheck(ctx context.Context) models.ToolStatus {
	status := models.StatusUnavailable
	if _, err := statFile(p.dbPath); err == nil {
		status = models.StatusAvailable
	}
	p.setStatus(status)
	return status
}

func (p *PiAlert) Execute(ctx context.Context, task string, params map[string]interface{}) (map[string]interface{}, error) {
	if _, err := statFile(p.dbPath); err != nil {
		return nil, fmt.Errorf("pialert: %w", ErrNotAvailable)
	}

	switch task {
	case "list_devices":
		return p.query(ctx,
			`SELECT * FROM Devices ORDER BY dev_LastConnection DESC LIMIT ?`,
			"devices", paramInt(params, "limit", 100)), nil
	case "new_devices":
		hours := paramInt(params, "hours", 24)
		return p.query(ctx,
			`SELECT * FROM Devices WHERE dev_FirstConnection >= datetime('now', ? || ' hours') ORDER BY dev_FirstConnection DESC`,
			"devices", fmt.Sprintf("-%d", hours)), nil
	case "events":
		return p.query(ctx,
			`SELECT * FROM Events ORDER BY eve_DateTime DESC LIMIT ?`,
			"events", paramInt(params, "limit", 100)), nil
	default:
		return nil, errUnknownTask("pialert", task)
	}
}

// query runs one read-only statement and returns rows as maps under key.
func (p *PiAlert) query(ctx context.Context, stmt, key string, arg interface{}) map[string]interface{} {
	db, err := sql.Open("sqlite", p.dbPath+"?mode=ro")
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, stmt, arg)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}

	records := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return map[string]interface{}{"error": err.Error()}
		}
		record := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return map[string]interface{}{key: records, "total": len(records)}
}

func (p *PiAlert) ParseOutput(raw string, format string) map[string]interface{} {
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return map[string]interface{}{"raw": raw}
	}
	return result
}
