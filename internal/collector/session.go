package collector

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/user/dnslogd/internal/model"
)

// CheckpointFileName is the session checkpoint inside the storage directory.
const CheckpointFileName = "current_dns_session.json"

// Session is the long-lived aggregate state of one collector process. It
// is mutated only from within a collection cycle.
type Session struct {
	ID                    string
	StartTime             time.Time
	TotalQueries          int
	UniqueDevices         map[string]struct{}
	TopDomains            map[string]int
	QueryTypes            map[string]int
	Collections           int
	LastProcessedPosition int64
	LastCollection        time.Time

	errors    []model.ErrorEntry
	maxErrors int
}

// NewSession starts a fresh session at now. maxErrors bounds the error
// history; values below one keep a single entry.
func NewSession(now time.Time, maxErrors int) *Session {
	if maxErrors < 1 {
		maxErrors = 1
	}
	return &Session{
		ID:            uuid.NewString(),
		StartTime:     now,
		UniqueDevices: make(map[string]struct{}),
		TopDomains:    make(map[string]int),
		QueryTypes:    make(map[string]int),
		maxErrors:     maxErrors,
	}
}

// Observe folds one parsed record into the aggregates.
func (s *Session) Observe(r *model.QueryRecord) {
	s.TotalQueries++
	s.UniqueDevices[r.ClientIP] = struct{}{}
	s.TopDomains[r.Domain]++
	s.QueryTypes[r.QueryType]++
}

// RecordError appends an error entry, dropping the oldest entries once the
// history is full.
func (s *Session) RecordError(e model.ErrorEntry) {
	s.errors = append(s.errors, e)
	if over := len(s.errors) - s.maxErrors; over > 0 {
		kept := make([]model.ErrorEntry, s.maxErrors)
		copy(kept, s.errors[over:])
		s.errors = kept
	}
}

// Errors returns a copy of the retained error history, oldest first.
func (s *Session) Errors() []model.ErrorEntry {
	out := make([]model.ErrorEntry, len(s.errors))
	copy(out, s.errors)
	return out
}

// Devices returns the unique client IPs in sorted order.
func (s *Session) Devices() []string {
	ips := make([]string, 0, len(s.UniqueDevices))
	for ip := range s.UniqueDevices {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return ips
}

// Checkpoint converts the session to its on-disk form.
func (s *Session) Checkpoint() model.SessionCheckpoint {
	cp := model.SessionCheckpoint{
		SessionID:             s.ID,
		StartTime:             s.StartTime,
		TotalQueries:          s.TotalQueries,
		UniqueDevices:         s.Devices(),
		TopDomains:            copyCounts(s.TopDomains),
		QueryTypes:            copyCounts(s.QueryTypes),
		Collections:           s.Collections,
		LastProcessedPosition: s.LastProcessedPosition,
		Errors:                s.Errors(),
	}
	if !s.LastCollection.IsZero() {
		t := s.LastCollection
		cp.LastCollection = &t
	}
	return cp
}

// EncodeSession serializes a session checkpoint.
func EncodeSession(s *Session) ([]byte, error) {
	data, err := json.MarshalIndent(s.Checkpoint(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode session: %w", ErrPersist, err)
	}
	return data, nil
}

// DecodeSession restores a session from checkpoint bytes. Malformed input
// is reported as ErrDecode.
func DecodeSession(data []byte, maxErrors int) (*Session, error) {
	var cp model.SessionCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: session checkpoint: %w", ErrDecode, err)
	}
	if cp.LastProcessedPosition < 0 {
		return nil, fmt.Errorf("%w: session checkpoint: negative position %d", ErrDecode, cp.LastProcessedPosition)
	}

	s := NewSession(cp.StartTime, maxErrors)
	if cp.SessionID != "" {
		s.ID = cp.SessionID
	}
	s.TotalQueries = cp.TotalQueries
	for _, ip := range cp.UniqueDevices {
		s.UniqueDevices[ip] = struct{}{}
	}
	for k, v := range cp.TopDomains {
		s.TopDomains[k] = v
	}
	for k, v := range cp.QueryTypes {
		s.QueryTypes[k] = v
	}
	s.Collections = cp.Collections
	s.LastProcessedPosition = cp.LastProcessedPosition
	if cp.LastCollection != nil {
		s.LastCollection = *cp.LastCollection
	}
	for _, e := range cp.Errors {
		s.RecordError(e)
	}
	return s, nil
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
