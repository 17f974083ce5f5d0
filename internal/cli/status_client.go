package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/worldland/gpugov/internal/api"
)

// StatusClient reads the status endpoint of a running governor daemon
type StatusClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewStatusClient creates a client for addr, either host:port or a full URL
func NewStatusClient(addr string) *StatusClient {
	baseURL := addr
	if !strings.Contains(addr, "://") {
		baseURL = "http://" + addr
	}
	return &StatusClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// GetStatus returns the daemon and governor status
func (c *StatusClient) GetStatus() (*api.StatusResponse, error) {
	var status api.StatusResponse
	if err := c.doGet("/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListGovernors returns every registered governor
func (c *StatusClient) ListGovernors() ([]api.GovernorResponse, error) {
	var governors []api.GovernorResponse
	if err := c.doGet("/governors", &governors); err != nil {
		return nil, err
	}
	return governors, nil
}

// GetTable returns the table of the named governor, or of the active one
// when name is empty
func (c *StatusClient) GetTable(name string) (*api.TableResponse, error) {
	path := "/table"
	if name != "" {
		path += "?governor=" + url.QueryEscape(name)
	}
	var table api.TableResponse
	if err := c.doGet(path, &table); err != nil {
		return nil, err
	}
	return &table, nil
}

func (c *StatusClient) doGet(path string, result interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("API error %d: %s (%s)", resp.StatusCode, apiErr.Error, apiErr.Code)
		}
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}

	return nil
}
