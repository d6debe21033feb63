package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v18.0"
	defaultHTTPTimeout  = 15 * time.Second
	// DefaultMaxMediaBytes caps a voice-note download.
	DefaultMaxMediaBytes = 16 << 20
)

// GraphMediaClient resolves WhatsApp media ids through the Graph API and downloads
// the signed URL it returns. Both calls carry the bearer token.
type GraphMediaClient struct {
	accessToken  string
	graphAPIBase string
	httpClient   *http.Client
	maxBytes     int64
}

func NewGraphMediaClient(accessToken, graphAPIBase string, httpClient *http.Client) *GraphMediaClient {
	if strings.TrimSpace(graphAPIBase) == "" {
		graphAPIBase = defaultGraphAPIBase
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &GraphMediaClient{
		accessToken:  accessToken,
		graphAPIBase: strings.TrimRight(graphAPIBase, "/"),
		httpClient:   httpClient,
		maxBytes:     DefaultMaxMediaBytes,
	}
}

type graphMediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
	ID       string `json:"id"`
}

func (c *GraphMediaClient) Fetch(ctx context.Context, ref MediaRef) ([]byte, error) {
	if c.accessToken == "" {
		return nil, errors.New("audio: graph access token missing")
	}
	downloadURL := ref.URL
	if ref.ID != "" {
		info, err := c.resolve(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		downloadURL = info.URL
	}
	if downloadURL == "" {
		return nil, errors.New("audio: graph media has no download url")
	}
	return download(ctx, c.httpClient, downloadURL, c.maxBytes, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	})
}

func (c *GraphMediaClient) resolve(ctx context.Context, mediaID string) (*graphMediaInfo, error) {
	endpoint := fmt.Sprintf("%s/%s", c.graphAPIBase, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: create media lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audio: media lookup: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var info graphMediaInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("audio: decode media lookup: %w", err)
	}
	return &info, nil
}

// URLMediaClient downloads media that the provider already exposes as a URL. Twilio
// media requires the account SID and auth token as basic auth; Telnyx URLs are public.
type URLMediaClient struct {
	username   string
	password   string
	httpClient *http.Client
	maxBytes   int64
}

func NewURLMediaClient(username, password string, httpClient *http.Client) *URLMediaClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &URLMediaClient{
		username:   username,
		password:   password,
		httpClient: httpClient,
		maxBytes:   DefaultMaxMediaBytes,
	}
}

func (c *URLMediaClient) Fetch(ctx context.Context, ref MediaRef) ([]byte, error) {
	if ref.URL == "" {
		return nil, errors.New("audio: media url missing")
	}
	return download(ctx, c.httpClient, ref.URL, c.maxBytes, func(req *http.Request) {
		if c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}
	})
}

func download(ctx context.Context, client *http.Client, url string, maxBytes int64, decorate func(*http.Request)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: create download request: %w", err)
	}
	if decorate != nil {
		decorate(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audio: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("audio: read media body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("audio: media exceeds %d bytes", maxBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("audio: media body empty")
	}
	return data, nil
}
