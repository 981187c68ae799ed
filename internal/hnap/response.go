package hnap

import (
	"fmt"
	"strconv"
	"strings"
)

// Response is a decoded HNAP JSON object.
type Response map[string]any

// Section returns the nested object stored under key, or nil when the key
// is absent or not an object.
func (r Response) Section(key string) Response {
	switch v := r[key].(type) {
	case map[string]any:
		return Response(v)
	case Response:
		return v
	default:
		return nil
	}
}

// String returns the value under key as a string. Missing keys yield "".
func (r Response) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the value under key as an int, or def when it is missing or
// not numeric.
func (r Response) Int(key string, def int) int {
	s := strings.TrimSpace(r.String(key))
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
