package country

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Identifiers holds one country's name in each provider's scheme. Every
// identifier is optional.
type Identifiers struct {
	Name           string       `json:"name"`
	StatisticsCode string       `json:"statistics_code,omitempty"`
	MarketCode     string       `json:"market_code,omitempty"`
	Currency       string       `json:"currency,omitempty"`
	BoundingBox    *BoundingBox `json:"bounding_box,omitempty"`
	BoxCountry     string       `json:"box_country,omitempty"`

	// CatalogErr is set when the statistics catalog could not be loaded.
	CatalogErr error `json:"-"`
}

// Resolver maps free-text country names to provider identifiers.
type Resolver struct {
	statistics Catalog
	market     Catalog
	log        logrus.FieldLogger
}

// NewResolver creates a resolver. Either catalog may be nil, in which case
// the identifiers that depend on it are resolved from static tables only.
func NewResolver(statistics, market Catalog, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{statistics: statistics, market: market, log: log}
}

// Resolve looks up all identifiers for name. The two catalog lookups run
// concurrently; failures leave the corresponding identifier empty.
func (r *Resolver) Resolve(ctx context.Context, name string) Identifiers {
	ids := Identifiers{Name: strings.TrimSpace(name)}

	if box, boxCountry, ok := LookupBoundingBox(name); ok {
		ids.BoundingBox = &box
		ids.BoxCountry = boxCountry
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		code, err := r.StatisticsCode(ctx, name)
		if err != nil {
			ids.CatalogErr = err
			return
		}
		ids.StatisticsCode = code
	}()
	go func() {
		defer wg.Done()
		if entry, ok := r.Market(ctx, name); ok {
			ids.MarketCode = entry.Code
			ids.Currency = entry.Currency
		}
	}()
	wg.Wait()

	r.log.WithFields(logrus.Fields{
		"country":         ids.Name,
		"statistics_code": ids.StatisticsCode,
		"market_code":     ids.MarketCode,
		"has_box":         ids.BoundingBox != nil,
	}).Debug("Resolved country identifiers")
	return ids
}

// StatisticsCode returns the statistics provider's code for name, or "" when
// nothing matches. An error means the catalog itself was unavailable.
func (r *Resolver) StatisticsCode(ctx context.Context, name string) (string, error) {
	if r.statistics == nil {
		return "", nil
	}
	entries, err := r.statistics.Countries(ctx)
	if err != nil {
		r.log.WithError(err).Warn("Statistics country catalog unavailable")
		return "", err
	}
	if e, ok := MatchFirst(entries, name); ok {
		return e.Code, nil
	}
	return "", nil
}

// Market resolves the market provider entry: static table first, then the
// provider's own country list.
func (r *Resolver) Market(ctx context.Context, name string) (MarketEntry, bool) {
	if e, ok := LookupMarket(name); ok {
		return e, true
	}
	if r.market == nil {
		return MarketEntry{}, false
	}
	entries, err := r.market.Countries(ctx)
	if err != nil {
		r.log.WithError(err).Debug("Market country list unavailable")
		return MarketEntry{}, false
	}
	e, ok := MatchFirst(entries, name)
	if !ok {
		return MarketEntry{}, false
	}
	return MarketEntry{Code: e.Code, Currency: e.Currency}, true
}
