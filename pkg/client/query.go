package client

import (
	"net/url"
	"strings"
	"time"
)

// QueryEntry records one search: when it ran, the server transaction id its
// results are stored under, and the term as typed and as sent.
type QueryEntry struct {
	Seq           int       `json:"seq"`
	Timestamp     time.Time `json:"timestamp"`
	TransactionID string    `json:"transaction_id"`
	Term          string    `json:"query_term"`
	EncodedTerm   string    `json:"parsed_query_term"`
}

// QueryLog is the ordered log of searches issued by a session.
type QueryLog struct {
	entries []QueryEntry
}

// Append adds an entry, assigning the next sequence number.
func (l *QueryLog) Append(e QueryEntry) QueryEntry {
	e.Seq = len(l.entries)
	l.entries = append(l.entries, e)
	return e
}

// Len returns the number of entries.
func (l *QueryLog) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the log.
func (l *QueryLog) Entries() []QueryEntry {
	return append([]QueryEntry(nil), l.entries...)
}

// EncodeQueryTerm percent-encodes a search term, spaces as %20.
func EncodeQueryTerm(term string) string {
	return strings.ReplaceAll(url.QueryEscape(term), "+", "%20")
}
