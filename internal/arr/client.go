package arr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client is a Radarr/Sonarr API client. Both families expose the v3
// surface this engine needs under identical paths.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for one instance.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// request performs an HTTP request against the instance API
func (c *Client) request(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, readAPIError(resp.Body))
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// readAPIError extracts a message from an error body. The API returns
// either {"message": ...} or a list of validation failures.
func readAPIError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no error body"
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}

	var list []struct {
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 && list[0].ErrorMessage != "" {
		return list[0].ErrorMessage
	}

	return strings.TrimSpace(string(data))
}

// SystemStatus checks instance reachability and identity
func (c *Client) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	var resp SystemStatus
	if err := c.request(ctx, http.MethodGet, "/api/v3/system/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListCustomFormats returns all custom formats on the instance
func (c *Client) ListCustomFormats(ctx context.Context) ([]CustomFormat, error) {
	var resp []CustomFormat
	if err := c.request(ctx, http.MethodGet, "/api/v3/customformat", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateCustomFormat creates a custom format
func (c *Client) CreateCustomFormat(ctx context.Context, cf *CustomFormat) (*CustomFormat, error) {
	var resp CustomFormat
	if err := c.request(ctx, http.MethodPost, "/api/v3/customformat", cf, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateCustomFormat updates a custom format by its remote id
func (c *Client) UpdateCustomFormat(ctx context.Context, cf *CustomFormat) (*CustomFormat, error) {
	var resp CustomFormat
	if err := c.request(ctx, http.MethodPut, "/api/v3/customformat/"+strconv.Itoa(cf.ID), cf, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListQualityProfiles returns all quality profiles on the instance
func (c *Client) ListQualityProfiles(ctx context.Context) ([]QualityProfile, error) {
	var resp []QualityProfile
	if err := c.request(ctx, http.MethodGet, "/api/v3/qualityprofile", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateQualityProfile creates a quality profile
func (c *Client) CreateQualityProfile(ctx context.Context, p *QualityProfile) (*QualityProfile, error) {
	var resp QualityProfile
	if err := c.request(ctx, http.MethodPost, "/api/v3/qualityprofile", p, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateQualityProfile updates a quality profile by its remote id
func (c *Client) UpdateQualityProfile(ctx context.Context, p *QualityProfile) (*QualityProfile, error) {
	var resp QualityProfile
	if err := c.request(ctx, http.MethodPut, "/api/v3/qualityprofile/"+strconv.Itoa(p.ID), p, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetProfileSchema returns the instance's profile template, including
// every quality it knows. The deployer uses it to map quality names to
// the instance's own identifiers.
func (c *Client) GetProfileSchema(ctx context.Context) (*QualityProfile, error) {
	var resp QualityProfile
	if err := c.request(ctx, http.MethodGet, "/api/v3/qualityprofile/schema", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
