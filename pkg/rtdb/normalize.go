package rtdb

import (
	"bytes"
	"encoding/json"
	"strings"
)

// normalize copies caller requests into engine-owned records. Query maps are
// cloned and Data is encoded up front so later stages never alias caller
// memory. A payload that cannot be encoded fails its own record only.
func normalize(requests []Request) []*record {
	recs := make([]*record, len(requests))
	for i, req := range requests {
		rec := &record{
			req: Request{
				Path:   req.Path,
				Method: normalizeMethod(req.Method),
				Query:  cloneQuery(req.Query),
			},
		}
		if req.Data != nil {
			payload, err := jsonMarshal(req.Data)
			if err != nil {
				rec.fail(ErrInvalidData)
			} else {
				rec.payload = payload
			}
		}
		recs[i] = rec
	}
	return recs
}

func normalizeMethod(m Method) Method {
	trimmed := Method(strings.ToLower(strings.TrimSpace(string(m))))
	if trimmed == "" {
		return MethodGet
	}
	return trimmed
}

func cloneQuery(q Query) Query {
	out := make(Query, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}

func jsonMarshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
