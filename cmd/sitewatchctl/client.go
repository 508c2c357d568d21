package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"sitewatch/pkg/models"
)

// apiClient talks to a running sitewatch server.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

// checkStarted is the body of an accepted or refused full run.
type checkStarted struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

type approveResponse struct {
	Success bool              `json:"success"`
	Site    models.SiteStatus `json:"site"`
}

// healthResponse mirrors the fields of /healthz the CLI prints.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Running bool   `json:"running"`
	Uptime  string `json:"uptime"`
	Storage *struct {
		Human string `json:"human"`
	} `json:"storage,omitempty"`
}

// apiError carries a non-2xx answer together with its decoded message.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout

	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// doRequest performs an HTTP request and returns the body of a 2xx answer.
func (c *apiClient) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, respBody, &apiError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	return resp.StatusCode, respBody, nil
}

// doJSON performs a request and unmarshals the JSON response into result.
func (c *apiClient) doJSON(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	_, respBody, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}

	return nil
}

func (c *apiClient) sites(ctx context.Context) ([]models.SiteStatus, error) {
	var out []models.SiteStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/sites", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// checkAll asks for a background run. A run already in progress is not an error.
func (c *apiClient) checkAll(ctx context.Context) (*checkStarted, error) {
	_, respBody, err := c.doRequest(ctx, http.MethodPost, "/api/check", nil)

	var (
		out    checkStarted
		apiErr *apiError
	)
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		_ = json.Unmarshal(respBody, &out)
		return &out, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &out, nil
}

func (c *apiClient) checkSite(ctx context.Context, id string) (*models.SiteStatus, error) {
	var out models.SiteStatus
	if err := c.doJSON(ctx, http.MethodPost, "/api/check/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) approve(ctx context.Context, id string) (*models.SiteStatus, error) {
	var out approveResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/approve/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Site, nil
}

func (c *apiClient) getConfig(ctx context.Context) (*models.SitesDocument, error) {
	var out models.SitesDocument
	if err := c.doJSON(ctx, http.MethodGet, "/api/config", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) putConfig(ctx context.Context, doc *models.SitesDocument) error {
	return c.doJSON(ctx, http.MethodPost, "/api/config", doc, nil)
}

func (c *apiClient) health(ctx context.Context) (*healthResponse, error) {
	var out healthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/healthz", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// errorMessage pulls "error" (and validation "problems") out of an error body.
func errorMessage(body []byte) string {
	var decoded struct {
		Error    string   `json:"error"`
		Problems []string `json:"problems"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Error == "" {
		return strings.TrimSpace(string(body))
	}
	if len(decoded.Problems) > 0 {
		return decoded.Error + ": " + strings.Join(decoded.Problems, "; ")
	}
	return decoded.Error
}
