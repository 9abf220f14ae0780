// Package apierr turns the failure shapes returned by Google, OAuth and
// decoded JSON payloads into one descriptive string, and classifies
// failures into the kinds surfaced to callers.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

const unknownMessage = "unknown error"

// Message extracts a human readable message from v.
//
// Precedence: a nested remote API error envelope, then a generic message,
// then a status text, then the default string conversion. The result is
// never empty and Message never panics.
func Message(v any) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = fallback(v)
		}
	}()

	if v == nil {
		return unknownMessage
	}
	if m, ok := envelopeMessage(v); ok {
		return m
	}
	if m, ok := genericMessage(v); ok {
		return m
	}
	if m, ok := statusText(v); ok {
		return m
	}
	return fallback(v)
}

func envelopeMessage(v any) (string, bool) {
	if err, ok := v.(error); ok {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) {
			if gErr.Message != "" {
				return gErr.Message, true
			}
			for _, item := range gErr.Errors {
				if item.Message != "" {
					return item.Message, true
				}
			}
			if m, ok := bodyMessage([]byte(gErr.Body)); ok {
				return m, true
			}
		}
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			if rErr.ErrorDescription != "" {
				return rErr.ErrorDescription, true
			}
			if rErr.ErrorCode != "" {
				return rErr.ErrorCode, true
			}
			if m, ok := bodyMessage(rErr.Body); ok {
				return m, true
			}
		}
		return "", false
	}

	switch t := v.(type) {
	case map[string]any:
		return mapEnvelope(t)
	case json.RawMessage:
		return bodyMessage(t)
	case []byte:
		return bodyMessage(t)
	}
	return "", false
}

// mapEnvelope handles decoded {"result":{"error":{"message"}}} and
// {"error":{"message"}} payloads.
func mapEnvelope(m map[string]any) (string, bool) {
	if result, ok := m["result"].(map[string]any); ok {
		if s, ok := nestedErrorMessage(result); ok {
			return s, true
		}
	}
	return nestedErrorMessage(m)
}

func nestedErrorMessage(m map[string]any) (string, bool) {
	switch e := m["error"].(type) {
	case map[string]any:
		if s, ok := e["message"].(string); ok && s != "" {
			return s, true
		}
	case string:
		// OAuth token endpoints report {"error":"access_denied","error_description":"..."}.
		if d, ok := m["error_description"].(string); ok && d != "" {
			return d, true
		}
	}
	return "", false
}

func bodyMessage(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", false
	}
	if s, ok := mapEnvelope(decoded); ok {
		return s, true
	}
	if s, ok := decoded["message"].(string); ok && s != "" {
		return s, true
	}
	return "", false
}

func genericMessage(v any) (string, bool) {
	switch t := v.(type) {
	case *Error:
		if t.Message != "" {
			return t.Message, true
		}
	case error:
		if s := t.Error(); s != "" {
			return s, true
		}
	case map[string]any:
		if s, ok := t["message"].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func statusText(v any) (string, bool) {
	switch t := v.(type) {
	case map[string]any:
		if s, ok := t["statusText"].(string); ok && s != "" {
			return s, true
		}
	case *http.Response:
		if t != nil && t.Status != "" {
			return t.Status, true
		}
	}
	return "", false
}

func fallback(v any) string {
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" || s == "<nil>" {
		if v == nil {
			return unknownMessage
		}
		return fmt.Sprintf("%T", v)
	}
	return s
}
