package storage

import (
	"fmt"
	"time"

	"github.com/user/dnslogd/internal/model"
)

// QueryStorage handles query record persistence in the index.
type QueryStorage struct {
	db *DB
}

// NewQueryStorage creates a new query storage handler.
func NewQueryStorage(db *DB) *QueryStorage {
	return &QueryStorage{db: db}
}

// SaveBatch stores the records of one collection cycle in a single
// transaction.
func (s *QueryStorage) SaveBatch(collectedAt time.Time, records []model.QueryRecord) error {
	if len(records) == 0 {
		return nil
	}

	return s.db.WithLock(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		stmt, err := tx.Prepare(`INSERT INTO queries
			(collected_at, timestamp, level, client_ip, query_type, domain, device_name, device_category, confirmed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		ts := collectedAt.Unix()
		for _, r := range records {
			if _, err := stmt.Exec(ts, r.Timestamp, r.Level, r.ClientIP, r.QueryType,
				r.Domain, r.Device.Name, r.Device.Category, r.Device.Confirmed); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to insert query record: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit query records: %w", err)
		}
		return nil
	})
}

// Count returns the total number of indexed queries.
func (s *QueryStorage) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM queries").Scan(&count)
	return count, err
}

// CountSince returns the number of queries collected since a given time.
func (s *QueryStorage) CountSince(since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM queries WHERE collected_at >= ?", since.Unix()).Scan(&count)
	return count, err
}

// TopDomains returns the most queried domains since a given time.
func (s *QueryStorage) TopDomains(since time.Time, limit int) ([]model.DomainCount, error) {
	rows, err := s.db.Query(`SELECT domain, COUNT(*) AS count
		FROM queries WHERE collected_at >= ?
		GROUP BY domain ORDER BY count DESC, domain ASC LIMIT ?`, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top domains: %w", err)
	}
	defer rows.Close()

	var out []model.DomainCount
	for rows.Next() {
		var dc model.DomainCount
		if err := rows.Scan(&dc.Domain, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan domain count: %w", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// TopClients returns the busiest clients since a given time.
func (s *QueryStorage) TopClients(since time.Time, limit int) ([]model.ClientCount, error) {
	rows, err := s.db.Query(`SELECT client_ip, COUNT(*) AS count
		FROM queries WHERE collected_at >= ?
		GROUP BY client_ip ORDER BY count DESC, client_ip ASC LIMIT ?`, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top clients: %w", err)
	}
	defer rows.Close()

	var out []model.ClientCount
	for rows.Next() {
		var cc model.ClientCount
		if err := rows.Scan(&cc.ClientIP, &cc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan client count: %w", err)
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// QueryTypes returns the query type distribution since a given time.
func (s *QueryStorage) QueryTypes(since time.Time) ([]model.TypeCount, error) {
	return s.typeCounts(`SELECT query_type, COUNT(*) AS count
		FROM queries WHERE collected_at >= ?
		GROUP BY query_type ORDER BY count DESC, query_type ASC`, since.Unix())
}

// ClientQueryTypes returns the query type distribution for one client.
func (s *QueryStorage) ClientQueryTypes(clientIP string, since time.Time) ([]model.TypeCount, error) {
	return s.typeCounts(`SELECT query_type, COUNT(*) AS count
		FROM queries WHERE client_ip = ? AND collected_at >= ?
		GROUP BY query_type ORDER BY count DESC, query_type ASC`, clientIP, since.Unix())
}

func (s *QueryStorage) typeCounts(query string, args ...interface{}) ([]model.TypeCount, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query types: %w", err)
	}
	defer rows.Close()

	var out []model.TypeCount
	for rows.Next() {
		var tc model.TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// ClientDomains returns the most queried domains for one client.
func (s *QueryStorage) ClientDomains(clientIP string, since time.Time, limit int) ([]model.DomainCount, error) {
	rows, err := s.db.Query(`SELECT domain, COUNT(*) AS count
		FROM queries WHERE client_ip = ? AND collected_at >= ?
		GROUP BY domain ORDER BY count DESC, domain ASC LIMIT ?`, clientIP, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query client domains: %w", err)
	}
	defer rows.Close()

	var out []model.DomainCount
	for rows.Next() {
		var dc model.DomainCount
		if err := rows.Scan(&dc.Domain, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan domain count: %w", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// Recent returns the latest indexed queries, oldest first.
func (s *QueryStorage) Recent(since time.Time, limit int) ([]model.QueryRecord, error) {
	rows, err := s.db.Query(`SELECT timestamp, level, client_ip, query_type, domain,
			device_name, device_category, confirmed
		FROM queries WHERE collected_at >= ?
		ORDER BY id DESC LIMIT ?`, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent records: %w", err)
	}
	defer rows.Close()

	var out []model.QueryRecord
	for rows.Next() {
		var r model.QueryRecord
		if err := rows.Scan(&r.Timestamp, &r.Level, &r.ClientIP, &r.QueryType, &r.Domain,
			&r.Device.Name, &r.Device.Category, &r.Device.Confirmed); err != nil {
			return nil, fmt.Errorf("failed to scan query record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Cleanup removes records collected before cutoff.
func (s *QueryStorage) Cleanup(cutoff time.Time) (int64, error) {
	var affected int64
	err := s.db.WithLock(func() error {
		result, err := s.db.Exec("DELETE FROM queries WHERE collected_at < ?", cutoff.Unix())
		if err != nil {
			return fmt.Errorf("failed to delete old queries: %w", err)
		}
		affected, err = result.RowsAffected()
		return err
	})
	return affected, err
}
