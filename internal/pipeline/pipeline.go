package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/cropscope/internal/backoff"
	"github.com/TobiSchelling/cropscope/internal/collect"
	"github.com/TobiSchelling/cropscope/internal/config"
	"github.com/TobiSchelling/cropscope/internal/country"
	"github.com/TobiSchelling/cropscope/internal/llm"
	"github.com/TobiSchelling/cropscope/internal/swot"
)

// ReasonTimedOut is recorded for providers still running at the deadline.
const ReasonTimedOut = "timed out"

// Composite is the merged result of one analysis.
type Composite struct {
	Success   bool          `json:"success"`
	Country   string        `json:"country"`
	Commodity string        `json:"commodity"`
	Narrative string        `json:"narrative"`
	SWOT      swot.Sections `json:"swot"`

	Statistics *collect.StatisticsSnapshot `json:"statistics"`
	Climate    *collect.ClimateSnapshot    `json:"climate"`
	Market     *collect.MarketSnapshot     `json:"market"`
	Imagery    *collect.ImagerySnapshot    `json:"imagery"`

	PartialFailures []collect.ProviderName          `json:"partial_failures"`
	FailureReasons  map[collect.ProviderName]string `json:"failure_reasons,omitempty"`
	GeneratedAt     time.Time                       `json:"generated_at"`
}

// Options wires a Pipeline. Nil adapters are reported as unavailable.
type Options struct {
	Provider   llm.Provider
	Resolver   *country.Resolver
	Statistics collect.Adapter[collect.StatisticsSnapshot]
	Climate    collect.Adapter[collect.ClimateSnapshot]
	Market     collect.Adapter[collect.MarketSnapshot]
	Imagery    collect.Adapter[collect.ImagerySnapshot]

	MaxTokens       int
	Retry           backoff.Policy
	ProviderTimeout time.Duration
	Logger          logrus.FieldLogger
}

// Pipeline generates a narrative and gathers provider data concurrently.
type Pipeline struct {
	provider   llm.Provider
	resolver   *country.Resolver
	statistics collect.Adapter[collect.StatisticsSnapshot]
	climate    collect.Adapter[collect.ClimateSnapshot]
	market     collect.Adapter[collect.MarketSnapshot]
	imagery    collect.Adapter[collect.ImagerySnapshot]

	maxTokens       int
	retry           backoff.Policy
	providerTimeout time.Duration
	log             logrus.FieldLogger
	now             func() time.Time

	// ready latches once the provider has reported itself configured.
	ready atomic.Bool
}

// New creates a pipeline from explicit dependencies.
func New(opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = country.NewResolver(nil, nil, log)
	}
	retry := opts.Retry
	if retry.Logger == nil {
		retry.Logger = log
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &Pipeline{
		provider:        opts.Provider,
		resolver:        resolver,
		statistics:      opts.Statistics,
		climate:         opts.Climate,
		market:          opts.Market,
		imagery:         opts.Imagery,
		maxTokens:       maxTokens,
		retry:           retry,
		providerTimeout: opts.ProviderTimeout,
		log:             log,
		now:             time.Now,
	}
}

// NewFromConfig builds the generation client, the provider adapters and the
// cached country catalogs from configuration.
func NewFromConfig(cfg *config.Config, log logrus.FieldLogger) *Pipeline {
	gen := cfg.Generation
	provider := llm.CreateProvider(llm.Options{
		Provider:  gen.Provider,
		Model:     gen.Model,
		APIKey:    os.Getenv(gen.APIKeyEnv),
		BaseURL:   gen.BaseURL,
		OllamaURL: gen.OllamaURL,
		Timeout:   gen.Timeout,
	}, log)

	prov := cfg.Providers
	httpClient := collect.NewHTTPClient(prov.HTTPTimeout)

	statistics := collect.NewStatisticsClient(prov.Statistics.BaseURL, httpClient, log)
	climate := collect.NewClimateClient(prov.Climate.BaseURL, os.Getenv(prov.Climate.APIKeyEnv), httpClient, log)
	market := collect.NewMarketClient(prov.Market.BaseURL, os.Getenv(prov.Market.APIKeyEnv), httpClient, log)
	imagery := collect.NewImageryStub(prov.Imagery.ImageURL, prov.Imagery.Resolution)

	var marketCatalog country.Catalog
	if market.IsConfigured() {
		marketCatalog = country.NewCachedCatalog(market, prov.CatalogRefresh)
	}
	resolver := country.NewResolver(
		country.NewCachedCatalog(statistics, prov.CatalogRefresh),
		marketCatalog,
		log,
	)

	return New(Options{
		Provider:   provider,
		Resolver:   resolver,
		Statistics: statistics,
		Climate:    climate,
		Market:     market,
		Imagery:    imagery,
		MaxTokens:  gen.MaxTokens,
		Retry: backoff.Policy{
			MaxAttempts: gen.MaxAttempts,
			BaseDelay:   gen.BaseDelay,
			Logger:      log,
		},
		ProviderTimeout: prov.RequestTimeout,
		Logger:          log,
	})
}

type narrativeOutcome struct {
	text string
	err  error
}

type providerOutcome struct {
	name   collect.ProviderName
	ok     bool
	reason string
	value  any
}

// Run validates q, then generates the narrative and queries every provider
// in parallel. Only validation and narrative failures are returned as
// errors; provider failures are recorded on the Composite.
func (p *Pipeline) Run(ctx context.Context, q Query) (*Composite, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	if !p.providerReady() {
		return nil, ErrNotConfigured
	}

	start := p.now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	narrative := make(chan narrativeOutcome, 1)
	go func() {
		prompt := Prompt(q)
		text, err := backoff.Execute(ctx, p.retry, func(ctx context.Context) (string, error) {
			return p.provider.Generate(ctx, prompt, p.maxTokens)
		})
		narrative <- narrativeOutcome{text: text, err: err}
	}()

	providers := make(chan map[collect.ProviderName]providerOutcome, 1)
	go func() {
		providers <- p.gather(ctx, q)
	}()

	n := <-narrative
	if n.err == nil && strings.TrimSpace(n.text) == "" {
		n.err = errors.New("empty narrative")
	}
	if n.err != nil {
		if errors.Is(n.err, llm.ErrNotConfigured) {
			return nil, ErrNotConfigured
		}
		ge := classify(n.err)
		p.log.WithError(n.err).WithFields(logrus.Fields{
			"country":   q.Country,
			"commodity": q.Commodity,
			"kind":      ge.Kind,
		}).Error("Narrative generation failed")
		return nil, ge
	}

	c := &Composite{
		Success:     true,
		Country:     q.Country,
		Commodity:   q.Commodity,
		Narrative:   n.text,
		SWOT:        swot.Parse(n.text),
		GeneratedAt: p.now().UTC(),
	}
	merge(c, <-providers)

	p.log.WithFields(logrus.Fields{
		"country":          q.Country,
		"commodity":        q.Commodity,
		"partial_failures": len(c.PartialFailures),
		"duration":         p.now().Sub(start).Round(time.Millisecond),
	}).Info("Analysis complete")
	return c, nil
}

// providerReady checks the provider's configuration. Some checks are remote
// (Ollama lists its models), so a positive answer is remembered; a negative
// one is rechecked on the next run.
func (p *Pipeline) providerReady() bool {
	if p.ready.Load() {
		return true
	}
	if p.provider == nil || !p.provider.IsConfigured() {
		return false
	}
	p.ready.Store(true)
	return true
}

// gather resolves identifiers and runs the four adapters, waiting until all
// have reported or the provider deadline passes.
func (p *Pipeline) gather(ctx context.Context, q Query) map[collect.ProviderName]providerOutcome {
	if p.providerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.providerTimeout)
		defer cancel()
	}

	results := make(chan providerOutcome, len(collect.Providers))
	go func() {
		ids := p.resolver.Resolve(ctx, q.Country)
		req := collect.Request{Identifiers: ids, Commodity: q.Commodity}

		go fetch(ctx, p.log, collect.Statistics, p.statistics, req, results)
		go fetch(ctx, p.log, collect.Climate, p.climate, req, results)
		go fetch(ctx, p.log, collect.Market, p.market, req, results)
		go fetch(ctx, p.log, collect.Imagery, p.imagery, req, results)
	}()

	out := make(map[collect.ProviderName]providerOutcome, len(collect.Providers))
	for len(out) < len(collect.Providers) {
		select {
		case r := <-results:
			out[r.name] = r
		case <-ctx.Done():
			for _, name := range collect.Providers {
				if _, ok := out[name]; !ok {
					out[name] = providerOutcome{name: name, reason: ReasonTimedOut}
				}
			}
			p.log.WithField("country", q.Country).Warn("Provider deadline reached before all providers reported")
		}
	}
	return out
}

// fetch runs one adapter and always sends exactly one outcome, even if the
// adapter panics.
func fetch[T any](ctx context.Context, log logrus.FieldLogger, name collect.ProviderName,
	a collect.Adapter[T], req collect.Request, results chan<- providerOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("provider", name).Errorf("Provider panicked: %v", r)
			results <- providerOutcome{name: name, reason: fmt.Sprintf("provider panicked: %v", r)}
		}
	}()

	if a == nil {
		results <- providerOutcome{name: name, reason: "provider not configured"}
		return
	}
	res := a.Fetch(ctx, req)
	if !res.OK() {
		log.WithFields(logrus.Fields{
			"provider": name,
			"reason":   res.Reason,
		}).Info("Provider unavailable")
	}
	results <- providerOutcome{name: name, ok: res.OK(), reason: res.Reason, value: res.Value}
}

func merge(c *Composite, outcomes map[collect.ProviderName]providerOutcome) {
	c.PartialFailures = []collect.ProviderName{}
	for _, name := range collect.Providers {
		o := outcomes[name]
		if o.ok {
			switch v := o.value.(type) {
			case collect.StatisticsSnapshot:
				c.Statistics = &v
			case collect.ClimateSnapshot:
				c.Climate = &v
			case collect.MarketSnapshot:
				c.Market = &v
			case collect.ImagerySnapshot:
				c.Imagery = &v
			default:
				o.ok = false
				o.reason = fmt.Sprintf("unexpected snapshot type %T", o.value)
			}
		}
		if !o.ok {
			if c.FailureReasons == nil {
				c.FailureReasons = make(map[collect.ProviderName]string)
			}
			c.PartialFailures = append(c.PartialFailures, name)
			c.FailureReasons[name] = o.reason
		}
	}
}
