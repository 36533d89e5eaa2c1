package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/user/dnslogd/internal/model"
	"github.com/user/dnslogd/internal/querylog"
)

// Source supplies the aggregates a report is built from. Both the SQLite
// query index and an in-memory Tally implement it.
type Source interface {
	CountSince(since time.Time) (int, error)
	TopClients(since time.Time, limit int) ([]model.ClientCount, error)
	TopDomains(since time.Time, limit int) ([]model.DomainCount, error)
	QueryTypes(since time.Time) ([]model.TypeCount, error)
	Recent(since time.Time, limit int) ([]model.QueryRecord, error)
	ClientDomains(clientIP string, since time.Time, limit int) ([]model.DomainCount, error)
	ClientQueryTypes(clientIP string, since time.Time) ([]model.TypeCount, error)
}

// maxLineSize bounds a single ctrld log line.
const maxLineSize = 1024 * 1024

// Tally holds parsed records in memory, in log order. Records whose
// timestamp cannot be parsed always pass a since filter.
type Tally struct {
	records []model.QueryRecord
}

// NewTally creates an empty tally.
func NewTally() *Tally {
	return &Tally{}
}

// LoadLog parses every query line in the ctrld log at path.
func LoadLog(path string, devices querylog.Resolver) (*Tally, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	t := NewTally()
	if err := t.ReadFrom(f, devices); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return t, nil
}

// ReadFrom parses query lines from r and adds them to the tally.
func (t *Tally) ReadFrom(r io.Reader, devices querylog.Resolver) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		if rec, ok := querylog.ParseLine(sc.Text(), devices); ok {
			t.Add(*rec)
		}
	}
	return sc.Err()
}

// Add appends one record.
func (t *Tally) Add(rec model.QueryRecord) {
	t.records = append(t.records, rec)
}

// Len returns the number of records held.
func (t *Tally) Len() int {
	return len(t.records)
}

func (t *Tally) since(since time.Time) []model.QueryRecord {
	if since.IsZero() {
		return t.records
	}
	var out []model.QueryRecord
	for _, r := range t.records {
		ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
		if err != nil || !ts.Before(since) {
			out = append(out, r)
		}
	}
	return out
}

func (t *Tally) count(since time.Time, key func(model.QueryRecord) (string, bool)) map[string]int {
	counts := make(map[string]int)
	for _, r := range t.since(since) {
		if k, ok := key(r); ok {
			counts[k]++
		}
	}
	return counts
}

// CountSince returns the number of records at or after since.
func (t *Tally) CountSince(since time.Time) (int, error) {
	return len(t.since(since)), nil
}

// TopClients returns the busiest clients.
func (t *Tally) TopClients(since time.Time, limit int) ([]model.ClientCount, error) {
	var out []model.ClientCount
	for _, kv := range ranked(t.count(since, byClient), limit) {
		out = append(out, model.ClientCount{ClientIP: kv.key, Count: kv.count})
	}
	return out, nil
}

// TopDomains returns the most queried domains.
func (t *Tally) TopDomains(since time.Time, limit int) ([]model.DomainCount, error) {
	return domainCounts(t.count(since, byDomain), limit), nil
}

// QueryTypes returns the query type distribution.
func (t *Tally) QueryTypes(since time.Time) ([]model.TypeCount, error) {
	return typeCounts(t.count(since, byType)), nil
}

// Recent returns the last limit records, oldest first.
func (t *Tally) Recent(since time.Time, limit int) ([]model.QueryRecord, error) {
	records := t.since(since)
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	out := make([]model.QueryRecord, len(records))
	copy(out, records)
	return out, nil
}

// ClientDomains returns the most queried domains for one client.
func (t *Tally) ClientDomains(clientIP string, since time.Time, limit int) ([]model.DomainCount, error) {
	counts := t.count(since, func(r model.QueryRecord) (string, bool) {
		return r.Domain, r.ClientIP == clientIP
	})
	return domainCounts(counts, limit), nil
}

// ClientQueryTypes returns the query type distribution for one client.
func (t *Tally) ClientQueryTypes(clientIP string, since time.Time) ([]model.TypeCount, error) {
	counts := t.count(since, func(r model.QueryRecord) (string, bool) {
		return r.QueryType, r.ClientIP == clientIP
	})
	return typeCounts(counts), nil
}

func byClient(r model.QueryRecord) (string, bool) { return r.ClientIP, true }
func byDomain(r model.QueryRecord) (string, bool) { return r.Domain, true }
func byType(r model.QueryRecord) (string, bool)   { return r.QueryType, true }

type keyCount struct {
	key   string
	count int
}

// ranked orders counts by count descending then key ascending. A limit of
// zero or less keeps everything.
func ranked(counts map[string]int, limit int) []keyCount {
	out := make([]keyCount, 0, len(counts))
	for k, v := range counts {
		out = append(out, keyCount{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func domainCounts(counts map[string]int, limit int) []model.DomainCount {
	var out []model.DomainCount
	for _, kv := range ranked(counts, limit) {
		out = append(out, model.DomainCount{Domain: kv.key, Count: kv.count})
	}
	return out
}

func typeCounts(counts map[string]int) []model.TypeCount {
	var out []model.TypeCount
	for _, kv := range ranked(counts, 0) {
		out = append(out, model.TypeCount{Type: kv.key, Count: kv.count})
	}
	return out
}
