package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultRequestTimeout = 5 * time.Second

// StringPtr 空字符串返回 nil
func StringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func IntPtr(value int) *int {
	return &value
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoRequest 发送 GET 请求, 非 200 时同时返回 body 和错误
func DoRequest(ctx context.Context, client HTTPClient, url string, headers map[string]string, timeout time.Duration) ([]byte, int, error) {
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Add(key, value)
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return body, res.StatusCode, fmt.Errorf("failed to get response, status code: %d", res.StatusCode)
	}

	return body, res.StatusCode, nil
}

// ParseJSONResponse parses the JSON response into the given result structure.
func ParseJSONResponse(body []byte, result interface{}) error {
	if !json.Valid(body) {
		return fmt.Errorf("invalid JSON response: %s", truncate(string(body), 256))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
