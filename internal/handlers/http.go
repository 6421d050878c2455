package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	defaultHTTPTimeout = 30 * time.Second

	// defaultMaxBodyBytes — предел тела ответа, попадающего в переменные job.
	defaultMaxBodyBytes = 1 << 20
)

// HTTPRequest — входные переменные task "http".
type HTTPRequest struct {
	// URL — адрес запроса (обязательно).
	URL string `json:"url"`

	// Method — HTTP-метод. Default: GET.
	Method string `json:"method"`

	// Headers — заголовки запроса.
	Headers map[string]string `json:"headers"`

	// Body — тело запроса, сериализуется в JSON.
	Body any `json:"body"`

	// TimeoutSec — таймаут запроса в секундах. Default: 30.
	TimeoutSec float64 `json:"timeout_sec"`
}

// HTTPResponse — результат task "http", становится переменными job.
type HTTPResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	// Body — JSON ответа или строка, если ответ не JSON.
	Body any `json:"body"`
}

// HTTP выполняет HTTP-запросы для task "http".
type HTTP struct {
	Client *http.Client

	// MaxBodyBytes — предел тела ответа (default: 1 MiB).
	// Больший ответ — ошибка обработчика.
	MaxBodyBytes int64
}

// Do выполняет запрос, описанный переменными job.
func (h *HTTP) Do(ctx context.Context, in HTTPRequest) (HTTPResponse, error) {
	if in.URL == "" {
		return HTTPResponse{}, fmt.Errorf("%w: url is required", ErrHTTPRequest)
	}

	method := strings.ToUpper(in.Method)
	if method == "" {
		method = http.MethodGet
	}

	timeout := defaultHTTPTimeout
	if in.TimeoutSec > 0 {
		timeout = time.Duration(in.TimeoutSec * float64(time.Second))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if in.Body != nil {
		data, err := json.Marshal(in.Body)
		if err != nil {
			return HTTPResponse{}, fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, in.URL, bodyReader)
	if err != nil {
		return HTTPResponse{}, fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}
	for key, val := range in.Headers {
		req.Header.Set(key, val)
	}
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client().Do(req)
	if err != nil {
		return HTTPResponse{}, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	limit := h.maxBodyBytes()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return HTTPResponse{}, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}
	if int64(len(respBody)) > limit {
		return HTTPResponse{}, fmt.Errorf("%w: response body exceeds %d bytes", ErrHTTPRequest, limit)
	}

	out := buildResponse(resp, respBody)
	if resp.StatusCode >= 400 {
		return out, fmt.Errorf("%w: HTTP %d: %s", ErrHTTPStatus, resp.StatusCode, truncate(string(respBody), 200))
	}
	return out, nil
}

func (h *HTTP) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h *HTTP) maxBodyBytes() int64 {
	if h.MaxBodyBytes > 0 {
		return h.MaxBodyBytes
	}
	return defaultMaxBodyBytes
}

func buildResponse(resp *http.Response, body []byte) HTTPResponse {
	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		parsed = string(body)
	}

	return HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       parsed,
	}
}

// truncate обрезает s до maxLen байт, не разрывая UTF-8 руну.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
