package report

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultUserAgent = "telemetry-relay"

// Sender delivers records to a collection endpoint over HTTP.
type Sender struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

// NewSender creates a sender for the given collection endpoint with
// standard transport settings. The timeout applies to the whole request.
func NewSender(endpoint string, timeout time.Duration) *Sender {
	return &Sender{
		endpoint:  endpoint,
		userAgent: defaultUserAgent,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Send delivers a record via HTTP POST as a urlencoded form body.
// A nil return means the collector accepted the record. A 4xx response
// is returned as an *HTTPError recognized by IsClientError; everything
// else (network error, timeout, 5xx) means the collector is unreachable.
func (s *Sender) Send(ctx context.Context, record Record) error {
	body := encodeForm(record, time.Now())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return nil
	}

	return &HTTPError{StatusCode: resp.StatusCode}
}

// encodeForm renders record fields as a urlencoded form body. The
// queue-time field is sent as elapsed milliseconds since enqueue, which
// is what the collector expects.
func encodeForm(record Record, now time.Time) string {
	values := make(url.Values, len(record))
	for k, v := range record {
		if k == QueueTimeKey {
			if qt, ok := v.(float64); ok {
				elapsed := int64((unixSeconds(now) - qt) * 1000)
				if elapsed < 0 {
					elapsed = 0
				}
				values.Set(k, strconv.FormatInt(elapsed, 10))
				continue
			}
		}
		values.Set(k, formatScalar(v))
	}
	return values.Encode()
}

func formatScalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// HTTPError represents an HTTP error response from the collector.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsClientError returns true for 4xx errors (shouldn't retry).
func IsClientError(err error) bool {
	if he, ok := err.(*HTTPError); ok {
		return he.StatusCode >= 400 && he.StatusCode < 500
	}
	return false
}
