package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/okanda/warden"
)

const defaultAPIURL = "http://127.0.0.1:8611"

// APIClient talks to a running warden daemon.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// IsReachable checks if the daemon answers its health endpoint.
func (c *APIClient) IsReachable() bool {
	resp, err := c.client.Get(c.baseURL + "/healthz")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

type startRequest struct {
	WorkspaceID string   `json:"workspace_id"`
	Command     []string `json:"command,omitempty"`
}

func (c *APIClient) Start(workspace string, command []string) (warden.Status, error) {
	var st warden.Status
	body, err := json.Marshal(startRequest{WorkspaceID: workspace, Command: command})
	if err != nil {
		return st, err
	}
	resp, err := c.client.Post(c.baseURL+"/start", "application/json", bytes.NewReader(body))
	if err != nil {
		return st, err
	}
	return st, decodeResponse(resp, &st)
}

func (c *APIClient) Stop(workspace string) (warden.Status, error) {
	var st warden.Status
	resp, err := c.client.Post(c.baseURL+"/stop?workspace="+url.QueryEscape(workspace), "application/json", nil)
	if err != nil {
		return st, err
	}
	return st, decodeResponse(resp, &st)
}

func (c *APIClient) StopAll() ([]int, error) {
	var out struct {
		Stopped []int `json:"stopped"`
	}
	resp, err := c.client.Post(c.baseURL+"/stopall", "application/json", nil)
	if err != nil {
		return nil, err
	}
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return out.Stopped, nil
}

func (c *APIClient) Status(workspace string) (warden.Status, error) {
	var st warden.Status
	resp, err := c.client.Get(c.baseURL + "/status?workspace=" + url.QueryEscape(workspace))
	if err != nil {
		return st, err
	}
	return st, decodeResponse(resp, &st)
}

func (c *APIClient) StatusAll() ([]warden.Status, error) {
	var sts []warden.Status
	resp, err := c.client.Get(c.baseURL + "/status")
	if err != nil {
		return nil, err
	}
	return sts, decodeResponse(resp, &sts)
}

func (c *APIClient) Logs(workspace string, tailBytes int64) (warden.LogChunk, error) {
	var chunk warden.LogChunk
	u := c.baseURL + "/logs?workspace=" + url.QueryEscape(workspace)
	if tailBytes > 0 {
		u += "&tail_bytes=" + strconv.FormatInt(tailBytes, 10)
	}
	resp, err := c.client.Get(u)
	if err != nil {
		return chunk, err
	}
	return chunk, decodeResponse(resp, &chunk)
}

func (c *APIClient) Reconcile() (warden.Report, error) {
	var rep warden.Report
	resp, err := c.client.Post(c.baseURL+"/reconcile", "application/json", nil)
	if err != nil {
		return rep, err
	}
	return rep, decodeResponse(resp, &rep)
}

func (c *APIClient) Processes() ([]warden.ProcessInfo, error) {
	var procs []warden.ProcessInfo
	resp, err := c.client.Get(c.baseURL + "/processes")
	if err != nil {
		return nil, err
	}
	return procs, decodeResponse(resp, &procs)
}

func (c *APIClient) KillOrphans() ([]int, error) {
	var out struct {
		Killed []int `json:"killed"`
	}
	resp, err := c.client.Post(c.baseURL+"/processes/kill", "application/json", nil)
	if err != nil {
		return nil, err
	}
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return out.Killed, nil
}

func (c *APIClient) AutoStart(workspace string) (bool, error) {
	var out struct {
		Started bool `json:"started"`
	}
	resp, err := c.client.Post(c.baseURL+"/autostart?workspace="+url.QueryEscape(workspace), "application/json", nil)
	if err != nil {
		return false, err
	}
	if err := decodeResponse(resp, &out); err != nil {
		return false, err
	}
	return out.Started, nil
}

// decodeResponse closes the body, surfacing the daemon's error payload
// on non-2xx status codes.
func decodeResponse(resp *http.Response, v any) error {
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error   string `json:"error"`
			LogTail string `json:"log_tail"`
		}
		b, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(b, &apiErr); err == nil && apiErr.Error != "" {
			if apiErr.LogTail != "" {
				return fmt.Errorf("API error: %s\nservice log tail:\n%s", apiErr.Error, apiErr.LogTail)
			}
			return fmt.Errorf("API error: %s", apiErr.Error)
		}
		return fmt.Errorf("API error: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
