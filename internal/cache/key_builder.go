package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// RequestKey identifies a cached response by route and a hash of every
// input that can change the response.
type RequestKey struct {
	Path string
	Hash string
}

// String converts the structured key into the map key.
func (k RequestKey) String() string {
	// req:<PATH>:<HASH_HEX>
	return "req:" + k.Path + ":" + k.Hash
}

// BuildQueryKey hashes path plus query parameters sorted by name, with each
// parameter's values sorted too, so parameter order never changes the key.
func BuildQueryKey(path string, query url.Values) RequestKey {
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(path)
	for _, name := range names {
		values := append([]string(nil), query[name]...)
		sort.Strings(values)
		for _, v := range values {
			b.WriteString("|")
			b.WriteString(url.QueryEscape(name))
			b.WriteString("=")
			b.WriteString(url.QueryEscape(v))
		}
	}

	return RequestKey{Path: path, Hash: hashHex([]byte(b.String()))}
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
