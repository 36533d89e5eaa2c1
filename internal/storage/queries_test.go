package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/dnslogd/internal/model"
)

func openTestDB(t *testing.T) *QueryStorage {
	t.Helper()
	db, err := Initialize(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewQueryStorage(db)
}

func rec(ip, qtype, domain string) model.QueryRecord {
	return model.QueryRecord{
		Timestamp: "2025-06-01T10:00:00Z",
		Level:     "info",
		ClientIP:  ip,
		QueryType: qtype,
		Domain:    domain,
		Device:    model.DeviceIdentity{Name: "dev-" + ip, Category: "Home"},
	}
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.FileExists(t, path)
}

func TestSaveBatchAndAggregates(t *testing.T) {
	s := openTestDB(t)
	now := time.Now()

	require.NoError(t, s.SaveBatch(now, []model.QueryRecord{
		rec("192.168.1.5", "A", "example.com"),
		rec("192.168.1.5", "AAAA", "example.com"),
		rec("192.168.1.5", "A", "other.org"),
		rec("192.168.1.9", "A", "example.com"),
	}))
	require.NoError(t, s.SaveBatch(now, nil))

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	since := now.Add(-time.Hour)

	domains, err := s.TopDomains(since, 10)
	require.NoError(t, err)
	assert.Equal(t, []model.DomainCount{
		{Domain: "example.com", Count: 3},
		{Domain: "other.org", Count: 1},
	}, domains)

	clients, err := s.TopClients(since, 1)
	require.NoError(t, err)
	assert.Equal(t, []model.ClientCount{{ClientIP: "192.168.1.5", Count: 3}}, clients)

	types, err := s.QueryTypes(since)
	require.NoError(t, err)
	assert.Equal(t, []model.TypeCount{{Type: "A", Count: 3}, {Type: "AAAA", Count: 1}}, types)

	clientDomains, err := s.ClientDomains("192.168.1.5", since, 10)
	require.NoError(t, err)
	assert.Len(t, clientDomains, 2)

	clientTypes, err := s.ClientQueryTypes("192.168.1.9", since)
	require.NoError(t, err)
	assert.Equal(t, []model.TypeCount{{Type: "A", Count: 1}}, clientTypes)

	recent, err := s.Recent(since, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "other.org", recent[0].Domain, "recent records come back oldest first")
	assert.Equal(t, "192.168.1.9", recent[1].ClientIP)
	assert.Equal(t, "dev-192.168.1.9", recent[1].Device.Name)
}

func TestCountSinceAndCleanup(t *testing.T) {
	s := openTestDB(t)
	old := time.Now().Add(-72 * time.Hour)
	fresh := time.Now()

	require.NoError(t, s.SaveBatch(old, []model.QueryRecord{rec("10.0.0.1", "A", "old.com")}))
	require.NoError(t, s.SaveBatch(fresh, []model.QueryRecord{rec("10.0.0.1", "A", "new.com")}))

	n, err := s.CountSince(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err := s.Cleanup(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	total, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
