package relay

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	// ErrInvalidResponse means the gateway returned a shape lacking the
	// expected content or object.
	ErrInvalidResponse = errors.New("gateway returned invalid response")
	// ErrModelNotSupported means the gateway rejected the model identifier.
	ErrModelNotSupported = errors.New("model not supported")
	// ErrTimeout means a bounded wait expired.
	ErrTimeout = errors.New("timeout")
	// ErrStopped means the dispatcher has stopped and no longer accepts events.
	ErrStopped = errors.New("dispatcher stopped")
)

// ErrGateway is a transport or protocol error from a provider.
type ErrGateway struct {
	Provider string
	Message  string
}

func (e *ErrGateway) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrAPI is a provider-reported logical error.
type ErrAPI struct {
	Provider string
	Message  string
}

func (e *ErrAPI) Error() string {
	return fmt.Sprintf("%s api error: %s", e.Provider, e.Message)
}

// ErrHTTP is a non-2xx HTTP status from a provider.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration // parsed from the Retry-After header, 0 if absent
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrTool is a tool lookup or execution failure.
type ErrTool struct {
	Tool    string
	Message string
}

func (e *ErrTool) Error() string {
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

// ErrConfig is a missing or invalid configuration value.
type ErrConfig struct {
	Message string
}

func (e *ErrConfig) Error() string {
	return "config: " + e.Message
}

// ErrSerialization is a JSON encode/decode failure.
type ErrSerialization struct {
	Message string
}

func (e *ErrSerialization) Error() string {
	return "serialization: " + e.Message
}

// ParseRetryAfter parses a Retry-After header value, either delta-seconds
// ("120") or an HTTP date. Returns 0 for empty, malformed, or past values.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
