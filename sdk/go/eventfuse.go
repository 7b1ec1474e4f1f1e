// Package sdk is a thin client for the EventFuse HTTP API.
package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

type Client struct {
	BaseURL    string
	AdminToken string
	HTTP       *http.Client
}

func New(baseURL, adminToken string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{BaseURL: baseURL, AdminToken: adminToken, HTTP: http.DefaultClient}
}

func (c *Client) headers(req *http.Request) {
	if c.AdminToken != "" {
		req.Header.Set("X-Admin-Token", c.AdminToken)
	}
}

func (c *Client) Events(params map[string]string) (*http.Response, error) {
	u, _ := url.Parse(c.BaseURL + "/v1/events")
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	req, _ := http.NewRequest("GET", u.String(), nil)
	c.headers(req)
	return c.HTTP.Do(req)
}

func (c *Client) Event(postKey string) (*http.Response, error) {
	req, _ := http.NewRequest("GET", c.BaseURL+"/v1/events/"+url.PathEscape(postKey), nil)
	c.headers(req)
	return c.HTTP.Do(req)
}

func (c *Client) FusedEvents(tenantID string, limit int) (map[string]interface{}, error) {
	u := fmt.Sprintf("%s/v1/fused-events?tenant=%s", c.BaseURL, url.QueryEscape(tenantID))
	if limit > 0 {
		u += fmt.Sprintf("&limit=%d", limit)
	}
	req, _ := http.NewRequest("GET", u, nil)
	c.headers(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TriggerDispatch() (map[string]interface{}, error) {
	req, _ := http.NewRequest("POST", c.BaseURL+"/v1/admin/dispatch", nil)
	c.headers(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dispatch failed: %s", resp.Status)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DLQDepth(topic string) (int64, error) {
	req, _ := http.NewRequest("GET", c.BaseURL+"/v1/admin/dlq/"+url.PathEscape(topic), nil)
	c.headers(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("dlq depth failed: %s", resp.Status)
	}
	var out struct {
		Depth int64 `json:"depth"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Depth, nil
}
