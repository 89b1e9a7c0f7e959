package rtdb

import "strings"

// Key characters the service forbids in path segments, and their escapes.
var (
	keyEncoder = strings.NewReplacer(
		"%", "%25",
		".", "%2E",
		"#", "%23",
		"$", "%24",
		"/", "%2F",
		"[", "%5B",
		"]", "%5D",
	)
	keyDecoder = strings.NewReplacer(
		"%2E", ".", "%2e", ".",
		"%23", "#",
		"%24", "$",
		"%2F", "/", "%2f", "/",
		"%5B", "[", "%5b", "[",
		"%5D", "]", "%5d", "]",
		"%25", "%",
	)
)

// EncodeKey escapes s so it can be used as a single path segment.
func EncodeKey(s string) string {
	return keyEncoder.Replace(s)
}

// DecodeKey reverses EncodeKey.
func DecodeKey(s string) string {
	return keyDecoder.Replace(s)
}
