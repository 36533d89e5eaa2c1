// Package model defines core data structures for dnslogd.
package model

import "time"

// DeviceIdentity is the identity attached to every query record.
type DeviceIdentity struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Category  string `json:"category"`
	Confirmed bool   `json:"confirmed"`
}

// Device is a device-map entry. It carries the identity plus bookkeeping
// written by the device mapper.
type Device struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	Category      string   `json:"category"`
	Confirmed     bool     `json:"confirmed"`
	Description   string   `json:"description,omitempty"`
	Added         string   `json:"added,omitempty"`
	QueryCount    int      `json:"query_count,omitempty"`
	CommonDomains []string `json:"common_domains,omitempty"`
}

// Identity returns the identity portion of a device entry.
func (d Device) Identity() DeviceIdentity {
	return DeviceIdentity{
		Name:      d.Name,
		Type:      d.Type,
		Category:  d.Category,
		Confirmed: d.Confirmed,
	}
}

// QueryRecord is one DNS lookup extracted from the ctrld log.
type QueryRecord struct {
	Timestamp  string         `json:"timestamp"`
	Level      string         `json:"level"`
	ClientIP   string         `json:"client_ip"`
	QueryType  string         `json:"query_type"`
	Domain     string         `json:"domain"`
	Device     DeviceIdentity `json:"device"`
	RawMessage string         `json:"raw_message"`
}

// ErrorEntry records a failed collection cycle.
type ErrorEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error"`
	Collection int       `json:"collection"`
}

// SessionCheckpoint is the on-disk form of the collector session.
type SessionCheckpoint struct {
	SessionID             string         `json:"sessionId"`
	StartTime             time.Time      `json:"startTime"`
	TotalQueries          int            `json:"totalQueries"`
	UniqueDevices         []string       `json:"uniqueDevices"`
	TopDomains            map[string]int `json:"topDomains"`
	QueryTypes            map[string]int `json:"queryTypes"`
	Collections           int            `json:"collections"`
	LastProcessedPosition int64          `json:"lastProcessedPosition"`
	LastCollection        *time.Time     `json:"lastCollection,omitempty"`
	Errors                []ErrorEntry   `json:"errors"`
}

// DomainCount pairs a domain with its query count.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// SummarySession is the session block of a daily summary.
type SummarySession struct {
	SessionID     string    `json:"sessionId"`
	StartTime     time.Time `json:"startTime"`
	Collections   int       `json:"collections"`
	TotalQueries  int       `json:"totalQueries"`
	UniqueDevices int       `json:"uniqueDevices"`
}

// DailySummary is the derived aggregate report written per day.
type DailySummary struct {
	Generated             time.Time                 `json:"generated"`
	Session               SummarySession            `json:"session"`
	TopDevices            map[string]DeviceIdentity `json:"topDevices"`
	TopDomains            []DomainCount             `json:"topDomains"`
	QueryTypeDistribution map[string]int            `json:"queryTypeDistribution"`
}

// BreakerState is a snapshot of the circuit breaker.
type BreakerState struct {
	IsOpen              bool      `json:"is_open"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureTime     time.Time `json:"last_failure_time,omitempty"`
	TripTime            time.Time `json:"trip_time,omitempty"`
}

// CollectorStatus is a point-in-time view of the collector used by the
// status file and the dashboard.
type CollectorStatus struct {
	SessionID             string        `json:"session_id"`
	Collections           int           `json:"collections"`
	TotalQueries          int           `json:"total_queries"`
	UniqueDevices         int           `json:"unique_devices"`
	LastProcessedPosition int64         `json:"last_processed_position"`
	LastCollection        time.Time     `json:"last_collection,omitempty"`
	Breaker               BreakerState  `json:"breaker"`
	BackoffDelay          time.Duration `json:"backoff_delay"`
	ErrorCount            int           `json:"error_count"`
	LastError             string        `json:"last_error,omitempty"`
}

// RoutingEntry is one row of the exported device routing table.
type RoutingEntry struct {
	IP         string   `json:"ip"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Category   string   `json:"category"`
	Activity   int      `json:"activity"`
	TopDomains []string `json:"top_domains"`
	LastSeen   string   `json:"last_seen"`
}

// ClientCount pairs a client IP with its query count.
type ClientCount struct {
	ClientIP string `json:"client_ip"`
	Count    int    `json:"count"`
}

// TypeCount pairs a query type with its count.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// ReportOptions defines options for report generation.
type ReportOptions struct {
	Since    time.Time `json:"since"`
	Until    time.Time `json:"until"`
	Client   string    `json:"client,omitempty"`
	TopN     int       `json:"top_n"`
	Recent   int       `json:"recent"`
	Format   string    `json:"format"`
	SourceID string    `json:"source_id"`
}
