package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// queryHashLength is the number of hex characters kept from the hashed
// query string.
const queryHashLength = 16

// Key builds the cache key for a request. The path stays readable in the
// key so substring invalidation can target endpoint families; the query
// string is order-normalized and hashed. The caller id is part of the key,
// so two organizations never share a cached body.
func Key(method, path string, query url.Values, callerID string) string {
	caller := strings.TrimSpace(callerID)
	if caller == "" {
		caller = "anon"
	}
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteString(":")
	b.WriteString(caller)
	b.WriteString(":")
	b.WriteString(path)
	if len(query) > 0 {
		b.WriteString(":")
		b.WriteString(hashQuery(query))
	}
	return b.String()
}

func hashQuery(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		values := append([]string(nil), query[k]...)
		sort.Strings(values)
		for _, v := range values {
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(v)
			b.WriteString("&")
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:queryHashLength]
}
