package collector

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/user/dnslogd/internal/model"
	"github.com/user/dnslogd/internal/querylog"
	"github.com/user/dnslogd/internal/util"
)

// summaryTopDomains is how many domains a daily summary lists.
const summaryTopDomains = 20

// BuildSummary derives a daily summary from the session. It is recomputed
// from scratch every time, never merged.
func BuildSummary(s *Session, devices querylog.Resolver, now time.Time) *model.DailySummary {
	topDevices := make(map[string]model.DeviceIdentity, len(s.UniqueDevices))
	for ip := range s.UniqueDevices {
		if devices != nil {
			topDevices[ip] = devices.Lookup(ip)
		} else {
			topDevices[ip] = querylog.UnknownDevice(ip)
		}
	}

	return &model.DailySummary{
		Generated: now,
		Session: model.SummarySession{
			SessionID:     s.ID,
			StartTime:     s.StartTime,
			Collections:   s.Collections,
			TotalQueries:  s.TotalQueries,
			UniqueDevices: len(s.UniqueDevices),
		},
		TopDevices:            topDevices,
		TopDomains:            TopDomains(s.TopDomains, summaryTopDomains),
		QueryTypeDistribution: copyCounts(s.QueryTypes),
	}
}

// TopDomains returns the n highest counts, ties broken by domain name.
func TopDomains(counts map[string]int, n int) []model.DomainCount {
	out := make([]model.DomainCount, 0, len(counts))
	for domain, count := range counts {
		out = append(out, model.DomainCount{Domain: domain, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// WriteSummary overwrites the summary file for the summary's day.
func WriteSummary(dir string, summary *model.DailySummary) (string, error) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: encode summary: %w", ErrPersist, err)
	}

	path := SummaryPath(dir, summary.Generated)
	if err := util.WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("%w: write summary: %w", ErrPersist, err)
	}
	return path, nil
}
