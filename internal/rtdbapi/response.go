// Package rtdbapi holds the wire conventions of the realtime database REST
// service: how response bodies are decoded, where error messages live and how
// generated push keys are returned.
package rtdbapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrEmptyBody is returned by ParseBody when the response carried no content.
var ErrEmptyBody = errors.New("rtdbapi: empty response body")

// ParseBody decodes a response body into a generic JSON value. An absent or
// blank body is a parse failure: the service always answers with JSON.
func ParseBody(body []byte) (any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ErrEmptyBody
	}
	var value any
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// ErrorMessage returns the "error" field of an error payload such as
// {"error": "Permission denied"}. Non-object payloads yield "".
func ErrorMessage(parsed any) string {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return ""
	}
	msg, _ := obj["error"].(string)
	return msg
}

// PushKey extracts the generated child key from a create response
// ({"name": "-Nabc..."}). Missing or non-string names yield "".
func PushKey(parsed any) string {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return ""
	}
	name, _ := obj["name"].(string)
	return name
}

// Redact replaces every occurrence of secret in s so it can be logged.
func Redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}
