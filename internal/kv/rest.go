package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// RESTConfig configures a RESTStore.
type RESTConfig struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

// RESTStore speaks the Vercel KV / Upstash REST dialect:
//
//	GET  {url}/get/{key}  -> {"result": "<value>" | null}
//	POST {url}/set/{key}  body = value -> {"result": "OK"}
//
// The dialect has no conditional write, so RESTStore does not implement Swapper.
type RESTStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewRESTStore(cfg RESTConfig) (*RESTStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("kv rest: URL is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("kv rest: token is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &RESTStore{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
	}, nil
}

func (s *RESTStore) Get(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint("get", key), nil)
	if err != nil {
		return nil, unavailable("get", err)
	}
	body, err := s.do(req)
	if err != nil {
		return nil, unavailable("get", err)
	}

	result := gjson.GetBytes(body, "result")
	if !result.Exists() || result.Type == gjson.Null {
		return nil, ErrNotFound
	}
	if result.Type == gjson.String {
		return []byte(result.String()), nil
	}
	return []byte(result.Raw), nil
}

func (s *RESTStore) Set(ctx context.Context, key string, value []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("set", key), bytes.NewReader(value))
	if err != nil {
		return unavailable("set", err)
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := s.do(req)
	if err != nil {
		return unavailable("set", err)
	}
	if res := gjson.GetBytes(body, "result"); res.String() != "OK" {
		return unavailable("set", fmt.Errorf("unexpected result %q", res.Raw))
	}
	return nil
}

func (s *RESTStore) endpoint(command, key string) string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, command, url.PathEscape(key))
}

func (s *RESTStore) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if msg := gjson.GetBytes(body, "error"); msg.Exists() {
		return nil, fmt.Errorf("store error: %s", msg.String())
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("store error: status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("malformed response")
	}
	return body, nil
}
