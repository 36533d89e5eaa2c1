// Package querylog parses ctrld query log lines into DNS query records.
//
// Parsing is best effort: lines that are not JSON, are not query lines, or do
// not match the query pattern are skipped without error. Log noise is
// expected and common.
package querylog

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/user/dnslogd/internal/model"
)

// queryPattern matches "<ip>:<port> (<proto>) -> listener.<n>: <TYPE> <domain>".
var queryPattern = regexp.MustCompile(`(\d+\.\d+\.\d+\.\d+):\d+ \(([^)]+)\) -> listener\.\d+: (\w+) (.+)`)

const queryMarker = "QUERY"

// Resolver maps a client IP to a device identity.
type Resolver interface {
	Lookup(ip string) model.DeviceIdentity
}

// Envelope is the JSON wrapper ctrld writes around every log line.
type Envelope struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Query holds the fields extracted from a query message.
type Query struct {
	ClientIP  string
	Protocol  string
	QueryType string
	Domain    string
}

// ParseQuery extracts query fields from a log message.
func ParseQuery(message string) (Query, bool) {
	if !strings.Contains(message, queryMarker) {
		return Query{}, false
	}

	m := queryPattern.FindStringSubmatch(message)
	if m == nil {
		return Query{}, false
	}

	return Query{
		ClientIP:  m[1],
		Protocol:  m[2],
		QueryType: m[3],
		Domain:    strings.TrimSpace(m[4]),
	}, true
}

// ParseLine turns one raw log line into a device-enriched record. The
// boolean is false for anything that is not a well-formed query line. A nil
// resolver yields placeholder identities for every client.
func ParseLine(line string, devices Resolver) (*model.QueryRecord, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}

	var env Envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return nil, false
	}

	q, ok := ParseQuery(env.Message)
	if !ok {
		return nil, false
	}

	level := env.Level
	if level == "" {
		level = "info"
	}

	var device model.DeviceIdentity
	if devices != nil {
		device = devices.Lookup(q.ClientIP)
	} else {
		device = UnknownDevice(q.ClientIP)
	}

	return &model.QueryRecord{
		Timestamp:  env.Time,
		Level:      level,
		ClientIP:   q.ClientIP,
		QueryType:  q.QueryType,
		Domain:     q.Domain,
		Device:     device,
		RawMessage: env.Message,
	}, true
}

// UnknownDevice synthesizes the placeholder identity for an unmapped IP.
func UnknownDevice(ip string) model.DeviceIdentity {
	return model.DeviceIdentity{
		Name:      "Unknown-" + LastOctet(ip),
		Type:      "Unknown",
		Category:  "Unknown",
		Confirmed: false,
	}
}

// LastOctet returns the final dot-separated component of an IPv4 address.
func LastOctet(ip string) string {
	if i := strings.LastIndexByte(ip, '.'); i >= 0 {
		return ip[i+1:]
	}
	return ip
}
