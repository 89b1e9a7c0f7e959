package rtdb

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Method is a logical database operation.
type Method string

const (
	MethodGet    Method = "get"
	MethodPost   Method = "post"
	MethodPut    Method = "put"
	MethodPatch  Method = "patch"
	MethodDelete Method = "delete"
)

// HTTP returns the HTTP verb used on the wire. PATCH travels as POST with a
// method override header.
func (m Method) HTTP() string {
	if m == MethodPatch {
		return http.MethodPost
	}
	return strings.ToUpper(string(m))
}

// Query holds query parameters. Values are strings, booleans or numbers;
// strings are sent as quoted JSON literals unless their key is one of auth,
// shallow, print, limitToFirst or limitToLast.
type Query map[string]any

// Request is a logical operation at a path.
type Request struct {
	Path   string
	Method Method
	// Data is encoded as the JSON body when non-nil. Use json.RawMessage("null")
	// to send an explicit null.
	Data  any
	Query Query
}

// Path returns a GET request for p.
func Path(p string) Request {
	return Request{Path: p, Method: MethodGet}
}

// Result is the outcome of one request: Value on success, Err otherwise.
type Result struct {
	Value any
	Err   error
}

// OK reports whether the request succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// record is the engine-owned copy of a Request and its current outcome.
type record struct {
	req      Request
	payload  json.RawMessage
	response any
	err      error
}

func (r *record) succeed(value any) {
	r.response = value
	r.err = nil
}

func (r *record) fail(err error) {
	r.err = err
}

func (r *record) result() Result {
	if r.err != nil {
		return Result{Err: r.err}
	}
	return Result{Value: r.response}
}
