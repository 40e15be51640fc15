package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"strconv"
)

// Defaults applied by callers that accept partial queries.
const (
	DefaultScope = "all"
	DefaultLimit = 15
)

// Query describes one upstream lookup.
type Query struct {
	// Text is the free-form search text. It may be empty.
	Text string `json:"query"`

	// Scope narrows the search (a subreddit name, or "all").
	Scope string `json:"scope"`

	// Limit caps the number of results.
	Limit int `json:"limit"`
}

// Key returns the cache key for q.
func (q Query) Key() string {
	return BuildKey(q.Text, q.Scope, q.Limit)
}

// BuildKey derives the cache key for a (query, scope, limit) triple.
//
// Each field is length-prefixed before hashing so that no choice of
// delimiter characters inside query or scope can make two different
// triples serialize identically. The result is a 64 character hex SHA-256
// digest, safe to use as a filename on every platform.
func BuildKey(query, scope string, limit int) string {
	h := sha256.New()
	writeField(h, query)
	writeField(h, scope)
	writeField(h, strconv.Itoa(limit))
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(w io.Writer, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = w.Write(n[:])
	_, _ = w.Write([]byte(s))
}
