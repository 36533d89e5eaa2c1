package querylog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/dnslogd/internal/model"
)

type staticResolver map[string]model.DeviceIdentity

func (r staticResolver) Lookup(ip string) model.DeviceIdentity {
	if d, ok := r[ip]; ok {
		return d
	}
	return UnknownDevice(ip)
}

const queryLine = `{"level":"info","time":"2025-06-01T10:00:00Z","message":"QUERY 192.168.1.5:53422 (udp) -> listener.0: A example.com"}`

func TestParseLine_Query(t *testing.T) {
	devices := staticResolver{
		"192.168.1.5": {Name: "Laptop", Type: "Computer", Category: "Personal", Confirmed: true},
	}

	rec, ok := ParseLine(queryLine, devices)
	require.True(t, ok)

	assert.Equal(t, "2025-06-01T10:00:00Z", rec.Timestamp)
	assert.Equal(t, "info", rec.Level)
	assert.Equal(t, "192.168.1.5", rec.ClientIP)
	assert.Equal(t, "A", rec.QueryType)
	assert.Equal(t, "example.com", rec.Domain)
	assert.Equal(t, "Laptop", rec.Device.Name)
	assert.True(t, rec.Device.Confirmed)
	assert.Contains(t, rec.RawMessage, "listener.0")
}

func TestParseLine_UnknownDevice(t *testing.T) {
	line := `{"time":"t","message":"QUERY 10.0.0.42:5000 (tcp) -> listener.1: AAAA api.example.org"}`

	rec, ok := ParseLine(line, staticResolver{})
	require.True(t, ok)

	assert.Equal(t, "Unknown-42", rec.Device.Name)
	assert.Equal(t, "Unknown", rec.Device.Type)
	assert.Equal(t, "Unknown", rec.Device.Category)
	assert.False(t, rec.Device.Confirmed)
	assert.Equal(t, "info", rec.Level, "missing level defaults to info")
}

func TestParseLine_NilResolver(t *testing.T) {
	rec, ok := ParseLine(queryLine, nil)
	require.True(t, ok)
	assert.Equal(t, "Unknown-5", rec.Device.Name)
}

func TestParseLine_Skipped(t *testing.T) {
	tests := map[string]string{
		"empty":            "",
		"whitespace":       "   ",
		"not json":         "QUERY 192.168.1.5:1 (udp) -> listener.0: A example.com",
		"truncated json":   `{"message":"QUERY 192.168.1.5:1 (udp) -> listener.0: A example.com"`,
		"noise":            `{"level":"debug","message":"upstream healthy"}`,
		"query no pattern": `{"level":"info","message":"QUERY cache hit for example.com"}`,
		"missing message":  `{"level":"info"}`,
		"json array":       `["QUERY"]`,
	}

	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			rec, ok := ParseLine(line, nil)
			assert.False(t, ok)
			assert.Nil(t, rec)
		})
	}
}

func TestParseQuery(t *testing.T) {
	q, ok := ParseQuery("QUERY 192.168.1.20:61234 (udp) -> listener.0: HTTPS www.example.net")
	require.True(t, ok)
	assert.Equal(t, Query{
		ClientIP:  "192.168.1.20",
		Protocol:  "udp",
		QueryType: "HTTPS",
		Domain:    "www.example.net",
	}, q)

	_, ok = ParseQuery("192.168.1.20:61234 (udp) -> listener.0: A x.com")
	assert.False(t, ok, "messages without the QUERY marker are ignored")
}

func TestLastOctet(t *testing.T) {
	assert.Equal(t, "254", LastOctet("192.168.1.254"))
	assert.Equal(t, "host", LastOctet("host"))
}
