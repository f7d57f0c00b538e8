package sync

import (
	"context"
	"fmt"
)

// Source is one external dataset's fetch→normalize→upsert job. Run processes
// pages in order and stops at the first source-level problem, reporting it in
// the result instead of failing the orchestrated run. Rows upserted before
// the problem stay committed.
type Source interface {
	Name() string
	Run(ctx context.Context) SourceResult
}

// SourceResult summarizes a single source's sync within one run.
type SourceResult struct {
	Source  string
	Fetched int // items returned by the upstream API
	Pages   int // pages successfully fetched
	Synced  int // rows upserted
	Skipped int // items dropped for lacking an identity key
	Err     error
}

// MarketplaceSource pulls the on-chain/marketplace agent index page by page.
type MarketplaceSource struct {
	BaseURL  string
	Client   *Client
	Upserter *Upserter
	PageSize int
	MaxPages int
}

func (s *MarketplaceSource) Name() string { return "marketplace" }

func (s *MarketplaceSource) Run(ctx context.Context) SourceResult {
	res := SourceResult{Source: s.Name()}
	pageSize := defaultInt(s.PageSize, 50)
	maxPages := defaultInt(s.MaxPages, 20)

	totalPages := 0
	for page := 1; page <= maxPages; page++ {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		obj, err := s.Client.GetJSON(ctx, fmt.Sprintf("%s/agents?page=%d&limit=%d", s.BaseURL, page, pageSize))
		if err != nil {
			res.Err = err
			return res
		}
		items, ok := obj["agents"].([]any)
		if !ok {
			res.Err = ErrBadShape
			return res
		}
		res.Pages++
		if tp := asInt(obj["totalPages"]); tp > 0 {
			totalPages = tp
		}
		for _, raw := range items {
			item, ok := raw.(map[string]any)
			if !ok {
				res.Skipped++
				continue
			}
			res.Fetched++
			row, ok := normalizeMarketplaceAgent(item)
			if !ok {
				res.Skipped++
				continue
			}
			if err := s.Upserter.MarketplaceAgent(ctx, row); err != nil {
				res.Err = err
				return res
			}
			res.Synced++
		}
		if len(items) == 0 || (totalPages > 0 && page >= totalPages) {
			break
		}
	}
	return res
}

// ArenaSource pulls the debate-arena leaderboard page by page.
type ArenaSource struct {
	BaseURL  string
	Client   *Client
	Upserter *Upserter
	MaxPages int
}

func (s *ArenaSource) Name() string { return "arena" }

func (s *ArenaSource) Run(ctx context.Context) SourceResult {
	res := SourceResult{Source: s.Name()}
	maxPages := defaultInt(s.MaxPages, 20)

	totalPages := 0
	for page := 1; page <= maxPages; page++ {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		obj, err := s.Client.GetJSON(ctx, fmt.Sprintf("%s/leaderboard?page=%d", s.BaseURL, page))
		if err != nil {
			res.Err = err
			return res
		}
		items, ok := obj["fighters"].([]any)
		if !ok {
			res.Err = ErrBadShape
			return res
		}
		res.Pages++
		if tp := asInt(obj["totalPages"]); tp > 0 {
			totalPages = tp
		}
		for _, raw := range items {
			item, ok := raw.(map[string]any)
			if !ok {
				res.Skipped++
				continue
			}
			res.Fetched++
			row, ok := normalizeArenaFighter(item)
			if !ok {
				res.Skipped++
				continue
			}
			if err := s.Upserter.ArenaFighter(ctx, row); err != nil {
				res.Err = err
				return res
			}
			res.Synced++
		}
		if len(items) == 0 || (totalPages > 0 && page >= totalPages) {
			break
		}
	}
	return res
}

// PortfolioSource pulls the trading-portfolio tracker's single-page dataset.
type PortfolioSource struct {
	BaseURL  string
	Client   *Client
	Upserter *Upserter
	Limit    int
}

func (s *PortfolioSource) Name() string { return "portfolio" }

func (s *PortfolioSource) Run(ctx context.Context) SourceResult {
	res := SourceResult{Source: s.Name()}
	obj, err := s.Client.GetJSON(ctx, fmt.Sprintf("%s/portfolios?limit=%d", s.BaseURL, defaultInt(s.Limit, 200)))
	if err != nil {
		res.Err = err
		return res
	}
	items, ok := obj["portfolios"].([]any)
	if !ok {
		res.Err = ErrBadShape
		return res
	}
	res.Pages = 1
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			res.Skipped++
			continue
		}
		res.Fetched++
		row, ok := normalizePortfolio(item)
		if !ok {
			res.Skipped++
			continue
		}
		if err := s.Upserter.Portfolio(ctx, row); err != nil {
			res.Err = err
			return res
		}
		res.Synced++
	}
	return res
}

// DiscoverySource pulls the marketplace activity feed and records wallet-less
// agents for the activity-scoring fallback path.
type DiscoverySource struct {
	BaseURL  string
	Client   *Client
	Upserter *Upserter
	Limit    int
}

func (s *DiscoverySource) Name() string { return "discovery" }

func (s *DiscoverySource) Run(ctx context.Context) SourceResult {
	res := SourceResult{Source: s.Name()}
	obj, err := s.Client.GetJSON(ctx, fmt.Sprintf("%s/feed?limit=%d", s.BaseURL, defaultInt(s.Limit, 100)))
	if err != nil {
		res.Err = err
		return res
	}
	items, ok := obj["posts"].([]any)
	if !ok {
		res.Err = ErrBadShape
		return res
	}
	res.Pages = 1
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			res.Skipped++
			continue
		}
		res.Fetched++
		row, ok := normalizeDiscovered(item)
		if !ok {
			res.Skipped++
			continue
		}
		if err := s.Upserter.DiscoveredAgent(ctx, row); err != nil {
			res.Err = err
			return res
		}
		res.Synced++
	}
	return res
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
