package rtdb

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/Ratio1/rtdb_sdk_go/internal/httpx"
)

const (
	headerMethodOverride = "X-HTTP-Method-Override"
	// The service mis-parses encoded query strings unless this header is set.
	headerDecoding = "X-Firebase-Decoding"

	// OAuth2 access tokens carry this marker; legacy secrets do not.
	oauthTokenMarker = "ya29."
)

// queryKeyWhitelist holds parameters sent verbatim instead of as quoted JSON strings.
var queryKeyWhitelist = map[string]bool{
	"auth":         true,
	"shallow":      true,
	"print":        true,
	"limitToFirst": true,
	"limitToLast":  true,
}

var pathEscaper = strings.NewReplacer("%", "%25", "+", "%2b")

// credentials resolves how the secret travels for one batch: an OAuth2 token
// as a bearer header, anything else as the auth query parameter.
type credentials struct {
	bearer    string
	authParam string
}

func resolveCredentials(secret string) credentials {
	if secret == "" {
		return credentials{}
	}
	if strings.Contains(secret, oauthTokenMarker) {
		return credentials{bearer: "Bearer " + secret}
	}
	return credentials{authParam: secret}
}

// buildRequest derives the transport request for rec. It does not modify rec.
func buildRequest(baseURL string, rec *record, creds credentials) *httpx.Request {
	header := make(http.Header)
	if creds.bearer != "" {
		header.Set("Authorization", creds.bearer)
	}
	if rec.req.Method == MethodPatch {
		header.Set(headerMethodOverride, "PATCH")
	}
	header.Set(headerDecoding, "1")

	url := baseURL + pathEscaper.Replace(rec.req.Path) + ".json"
	if qs := encodeQuery(rec.req.Query, creds.authParam); qs != "" {
		url += "?" + qs
	}

	req := &httpx.Request{
		Method: rec.req.Method.HTTP(),
		URL:    url,
		Header: header,
	}
	if rec.payload != nil {
		req.Body = append([]byte(nil), rec.payload...)
	}
	return req
}

// encodeQuery renders parameters in key order. authParam, when set, overrides
// any caller-supplied auth value.
func encodeQuery(q Query, authParam string) string {
	params := make(map[string]any, len(q)+1)
	for k, v := range q {
		params[k] = v
	}
	if authParam != "" {
		params["auth"] = authParam
	}
	if len(params) == 0 {
		return ""
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatQueryValue(k, params[k]))
	}
	return strings.Join(parts, "&")
}

func formatQueryValue(key string, v any) string {
	switch val := v.(type) {
	case string:
		if queryKeyWhitelist[key] {
			return val
		}
		return encodeURIComponent(`"` + val + `"`)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return "null"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// encodeURIComponent percent-encodes every byte outside the unreserved set
// A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func encodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
