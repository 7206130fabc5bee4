package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/netsentry/netsentry/internal/models"
)

const defaultNtopngURL = "http://127.0.0.1:3000"

// Ntopng queries the ntopng REST API. Credentials come from the
// NETSEC__NTOPNG__API_USER / NETSEC__NTOPNG__API_PASS environment variables.
type Ntopng struct {
	toolState
	apiURL string
	user   string
	pass   string
	client *http.Client
}

// NewNtopng creates the ntopng adapter.
func NewNtopng() *Ntopng {
	return &Ntopng{
		toolState: newToolState(),
		apiURL:    defaultNtopngURL,
		user:      credential("ntopng", "api_user"),
		pass:      credential("ntopng", "api_pass"),
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (n *Ntopng) Info() *models.ToolInfo {
	_, version, status := n.snapshot()
	return &models.ToolInfo{
		Name:           "ntopng",
		DisplayName:    "ntopng",
		Category:       models.CategoryTrafficAnalyzer,
		Description:    "Network traffic monitoring and analysis",
		Version:        version,
		Status:         status,
		SupportedTasks: []string{"flows", "hosts", "interfaces", "alerts", "stats"},
	}
}

func (n *Ntopng) Detect(ctx context.Context) bool {
	if lookPath("ntopng") != "" {
		n.setStatus(models.StatusAvailable)
		return true
	}
	// No binary; the API may still be reachable.
	if _, err := n.apiGet(ctx, "/lua/rest/v2/get/ntopng/interfaces.lua", nil); err == nil {
		n.setStatus(models.StatusAvailable)
		return true
	}
	n.setStatus(models.StatusUnavailable)
	return false
}

func (n *Ntopng) HealthCheck(ctx context.Context) models.ToolStatus {
	if _, err := n.apiGet(ctx, "/lua/rest/v2/get/ntopng/interfaces.lua", nil); err == nil {
		n.setStatus(models.StatusRunning)
		return models.StatusRunning
	}
	// An adapter never detected stays unavailable; a reachable one that
	// stopped answering is an error.
	n.mu.Lock()
	if n.status != models.StatusUnavailable {
		n.status = models.StatusError
	}
	status := n.status
	n.mu.Unlock()
	return status
}

func (n *Ntopng) Execute(ctx context.Context, task string, params map[string]interface{}) (map[string]interface{}, error) {
	ifid := strconv.Itoa(paramInt(params, "interface_id", 0))
	query := url.Values{"ifid": []string{ifid}}

	var path string
	switch task {
	case "flows":
		path = "/lua/rest/v2/get/flow/active.lua"
	case "hosts":
		path = "/lua/rest/v2/get/host/active.lua"
	case "interfaces":
		path, query = "/lua/rest/v2/get/ntopng/interfaces.lua", nil
	case "alerts":
		path = "/lua/rest/v2/get/flow/alert/list.lua"
	case "stats":
		path = "/lua/rest/v2/get/interface/data.lua"
	default:
		return nil, errUnknownTask("ntopng", task)
	}

	body, err := n.apiGet(ctx, path, query)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, nil
	}
	return n.ParseOutput(string(body), "json"), nil
}

func (n *Ntopng) apiGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := n.apiURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if n.user != "" && n.pass != "" {
		req.SetBasicAuth(n.user, n.pass)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ntopng API returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (n *Ntopng) ParseOutput(raw string, format string) map[string]interface{} {
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return map[string]interface{}{"raw": truncateRaw(raw)}
	}
	return result
}

func (n *Ntopng) Start(ctx context.Context) error { return nil }

// Stop closes idle API connections.
func (n *Ntopng) Stop(ctx context.Context) error {
	n.client.CloseIdleConnections()
	return nil
}
