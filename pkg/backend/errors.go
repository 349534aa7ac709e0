package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// CodeNotConfigured is the stable code of ConfigError.
const CodeNotConfigured = "not_configured"

// ErrNotConfigured matches every ConfigError with errors.Is.
var ErrNotConfigured = errors.New("service not configured")

// ErrSessionMissing is returned by operations that need a signed-in user when there is no session.
var ErrSessionMissing = errors.New("auth session missing")

// ConfigError is returned by the Unconfigured client for every operation that would reach the remote service.
type ConfigError struct {
	Message string
	Status  int
	Reason  error // why the client is not configured
}

func (e *ConfigError) Error() string {
	if e.Reason == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Reason)
}

// Code returns CodeNotConfigured.
func (e *ConfigError) Code() string { return CodeNotConfigured }

// Is makes errors.Is(err, ErrNotConfigured) true.
func (e *ConfigError) Is(target error) bool { return target == ErrNotConfigured }

// Unwrap returns the reason.
func (e *ConfigError) Unwrap() error { return e.Reason }

// APIError is an error response of the remote service, passed through as reported.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *APIError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "backend error, status %d", e.Status)
	if e.Code != "" {
		fmt.Fprintf(&sb, ", code %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&sb, ": %s", e.Message)
	}
	return sb.String()
}

// IsNotConfigured reports whether err comes from the Unconfigured client.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// decodeAPIError makes APIError from an error response. Both auth and data APIs are supported,
// they use different field names for the same things.
func decodeAPIError(status int, body []byte) *APIError {
	res := &APIError{Status: status}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		res.Message = strings.TrimSpace(string(body))
		if res.Message == "" {
			res.Message = http.StatusText(status)
		}
		return res
	}
	res.Code = firstString(raw, "error_code", "code", "error")
	res.Message = firstString(raw, "message", "msg", "error_description", "error")
	res.Details = firstString(raw, "details")
	res.Hint = firstString(raw, "hint")
	if res.Message == "" {
		res.Message = http.StatusText(status)
	}
	return res
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
