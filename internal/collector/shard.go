package collector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/user/dnslogd/internal/model"
)

const (
	shardPrefix   = "dns-logs-"
	summaryPrefix = "summary-"
	dayLayout     = "2006-01-02"
)

// ShardPath returns the daily shard file for day.
func ShardPath(dir string, day time.Time) string {
	return filepath.Join(dir, shardPrefix+day.Format(dayLayout)+".jsonl")
}

// SummaryPath returns the daily summary file for day.
func SummaryPath(dir string, day time.Time) string {
	return filepath.Join(dir, summaryPrefix+day.Format(dayLayout)+".json")
}

// AppendShard appends records to the shard at path, one JSON object per
// line. The batch is encoded up front and written with a single call.
func AppendShard(path string, records []model.QueryRecord) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("%w: encode record: %w", ErrPersist, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("%w: open shard: %w", ErrPersist, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("%w: append shard: %w", ErrPersist, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close shard: %w", ErrPersist, err)
	}
	return nil
}
