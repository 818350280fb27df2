package headerauth

import (
	"iter"
	"maps"
	"net/http"
	"slices"
	"strings"

	"google.golang.org/grpc/metadata"
)

// Header keys asserted by the trusted proxy.
const (
	HeaderAccessToken = "x-forwarded-access-token"
	HeaderEmail       = "x-forwarded-email"
	HeaderUser        = "x-forwarded-user"
)

// Source is the one capability the evaluator needs from a header container: iterable
// key/value pairs. Multi-valued headers yield one pair per value.
type Source = iter.Seq2[string, string]

// FromHTTP adapts an http.Header.
func FromHTTP(h http.Header) Source {
	return multiMap(h)
}

// FromMetadata adapts incoming gRPC metadata.
func FromMetadata(md metadata.MD) Source {
	return multiMap(md)
}

func multiMap(m map[string][]string) Source {
	return func(yield func(string, string) bool) {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			for _, v := range m[k] {
				if !yield(k, v) {
					return
				}
			}
		}
	}
}

// FromMap adapts a plain string map. Keys are yielded in sorted order.
func FromMap(m map[string]string) Source {
	return func(yield func(string, string) bool) {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			if !yield(k, m[k]) {
				return
			}
		}
	}
}

// FromRawPairs adapts an ordered list of name/value byte pairs, for hosts that hand over
// headers in that form instead of a map.
func FromRawPairs(raw [][2][]byte) Source {
	return func(yield func(string, string) bool) {
		for _, kv := range raw {
			if !yield(string(kv[0]), string(kv[1])) {
				return
			}
		}
	}
}

// Flatten collapses src into a map with lower-cased keys. A key that is already lower
// case beats one that only matches after folding; otherwise the first value seen wins.
// A nil source yields an empty map.
func Flatten(src Source) map[string]string {
	out := make(map[string]string)
	if src == nil {
		return out
	}
	exact := make(map[string]bool)
	for k, v := range src {
		key := strings.ToLower(k)
		if _, ok := out[key]; ok && (exact[key] || k != key) {
			continue
		}
		out[key] = v
		if k == key {
			exact[key] = true
		}
	}
	return out
}

// clientIP returns the first x-forwarded-for hop, else x-real-ip, else "unknown".
func clientIP(headers map[string]string) string {
	if s := strings.TrimSpace(headers["x-forwarded-for"]); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	if s := strings.TrimSpace(headers["x-real-ip"]); s != "" {
		return s
	}
	return "unknown"
}
