// Package report generates DNS traffic reports.
package report

import (
	"fmt"
	"time"

	"github.com/user/dnslogd/internal/model"
	"github.com/user/dnslogd/internal/querylog"
)

// Default section sizes.
const (
	DefaultTopClients = 10
	DefaultTopDomains = 20
	DefaultRecent     = 10

	clientTopDomains = 10
)

// Generator creates DNS traffic reports.
type Generator struct {
	src     Source
	devices querylog.Resolver
}

// NewGenerator creates a report generator. devices may be nil, in which
// case clients are shown by IP only.
func NewGenerator(src Source, devices querylog.Resolver) *Generator {
	return &Generator{
		src:     src,
		devices: devices,
	}
}

// ReportData holds all data for a report.
type ReportData struct {
	GeneratedAt time.Time
	Since       time.Time
	Until       time.Time
	SourceID    string

	TotalQueries int
	TopClients   []model.ClientCount
	ClientNames  map[string]string
	TopDomains   []model.DomainCount
	QueryTypes   []TypeShare
	Recent       []model.QueryRecord

	Client *ClientAnalysis
}

// TypeShare is a query type with its share of all queries.
type TypeShare struct {
	Type    string
	Count   int
	Percent float64
}

// ClientAnalysis is the per-client section of a report.
type ClientAnalysis struct {
	ClientIP     string
	Name         string
	TotalQueries int
	TopDomains   []model.DomainCount
	QueryTypes   []model.TypeCount
}

// Generate creates a report for the specified time range.
func (g *Generator) Generate(opts model.ReportOptions) (*ReportData, error) {
	topDomains := opts.TopN
	if topDomains <= 0 {
		topDomains = DefaultTopDomains
	}
	recent := opts.Recent
	if recent <= 0 {
		recent = DefaultRecent
	}

	data := &ReportData{
		GeneratedAt: time.Now(),
		Since:       opts.Since,
		Until:       opts.Until,
		SourceID:    opts.SourceID,
		ClientNames: make(map[string]string),
	}

	var err error
	if data.TotalQueries, err = g.src.CountSince(opts.Since); err != nil {
		return nil, fmt.Errorf("failed to count queries: %w", err)
	}

	if data.TopClients, err = g.src.TopClients(opts.Since, DefaultTopClients); err != nil {
		return nil, fmt.Errorf("failed to get top clients: %w", err)
	}
	for _, cc := range data.TopClients {
		if name := g.deviceName(cc.ClientIP); name != "" {
			data.ClientNames[cc.ClientIP] = name
		}
	}

	if data.TopDomains, err = g.src.TopDomains(opts.Since, topDomains); err != nil {
		return nil, fmt.Errorf("failed to get top domains: %w", err)
	}

	types, err := g.src.QueryTypes(opts.Since)
	if err != nil {
		return nil, fmt.Errorf("failed to get query types: %w", err)
	}
	data.QueryTypes = shares(types)

	if data.Recent, err = g.src.Recent(opts.Since, recent); err != nil {
		return nil, fmt.Errorf("failed to get recent queries: %w", err)
	}

	if opts.Client != "" {
		if data.Client, err = g.analyzeClient(opts.Client, opts.Since); err != nil {
			return nil, err
		}
	}

	return data, nil
}

func (g *Generator) analyzeClient(ip string, since time.Time) (*ClientAnalysis, error) {
	domains, err := g.src.ClientDomains(ip, since, clientTopDomains)
	if err != nil {
		return nil, fmt.Errorf("failed to get domains for %s: %w", ip, err)
	}
	types, err := g.src.ClientQueryTypes(ip, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get query types for %s: %w", ip, err)
	}

	ca := &ClientAnalysis{
		ClientIP:   ip,
		Name:       g.deviceName(ip),
		TopDomains: domains,
		QueryTypes: types,
	}
	for _, tc := range types {
		ca.TotalQueries += tc.Count
	}
	return ca, nil
}

func (g *Generator) deviceName(ip string) string {
	if g.devices == nil {
		return ""
	}
	return g.devices.Lookup(ip).Name
}

func shares(types []model.TypeCount) []TypeShare {
	total := 0
	for _, tc := range types {
		total += tc.Count
	}

	out := make([]TypeShare, 0, len(types))
	for _, tc := range types {
		share := TypeShare{Type: tc.Type, Count: tc.Count}
		if total > 0 {
			share.Percent = float64(tc.Count) / float64(total) * 100
		}
		out = append(out, share)
	}
	return out
}
