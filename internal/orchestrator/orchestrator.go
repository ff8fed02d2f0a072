// Package orchestrator turns one request into a finished brief: resolve the
// place, assemble the evidence pack, route it through the provider chain,
// budget the answer, and remember it for follow-ups. The CLI and the HTTP
// server both sit on top of this package.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/wxbrief/config"
	"github.com/mohammad-safakhou/wxbrief/internal/budget"
	"github.com/mohammad-safakhou/wxbrief/internal/favorites"
	"github.com/mohammad-safakhou/wxbrief/internal/feature"
	"github.com/mohammad-safakhou/wxbrief/internal/fetchcache"
	"github.com/mohammad-safakhou/wxbrief/internal/httpx"
	"github.com/mohammad-safakhou/wxbrief/internal/providers"
	"github.com/mohammad-safakhou/wxbrief/internal/response"
	"github.com/mohammad-safakhou/wxbrief/internal/router"
	"github.com/mohammad-safakhou/wxbrief/internal/sources"
	"github.com/mohammad-safakhou/wxbrief/internal/state"
	"github.com/mohammad-safakhou/wxbrief/internal/synth"
	"github.com/mohammad-safakhou/wxbrief/internal/telemetry"
)

// Brief kinds, recorded on the query and in metrics.
const (
	KindAsk       = "ask"
	KindForecast  = "forecast"
	KindRisk      = "risk"
	KindAlerts    = "alerts"
	KindStory     = "story"
	KindWorldview = "worldview"
	KindExplain   = "explain"
)

const (
	defaultCap          = 400
	defaultAskHorizon   = 24 * time.Hour
	defaultFcstHorizon  = 24 * time.Hour
	defaultRiskHorizon  = 12 * time.Hour
	defaultStoryHorizon = 12 * time.Hour
)

var defaultWeights = map[string]float64{
	response.SectionSummary:     0.30,
	response.SectionTimeline:    0.25,
	response.SectionRisk:        0.20,
	response.SectionConfidence:  0.10,
	response.SectionActions:     0.10,
	response.SectionAssumptions: 0.05,
}

// Brief is one finished answer: the pack it was built from, the budgeted
// response, and the routing record behind it.
type Brief struct {
	Pack      feature.Pack
	Response  *response.Structured
	Attempts  []router.Attempt
	Synthetic bool
	Elapsed   time.Duration
}

type briefJSON struct {
	Pack      feature.Pack         `json:"pack"`
	Response  *response.Structured `json:"response"`
	Attempts  []router.Attempt     `json:"attempts,omitempty"`
	Synthetic bool                 `json:"synthetic,omitempty"`
	ElapsedMS int64                `json:"elapsed_ms"`
}

func (b Brief) MarshalJSON() ([]byte, error) {
	return json.Marshal(briefJSON{
		Pack:      b.Pack,
		Response:  b.Response,
		Attempts:  b.Attempts,
		Synthetic: b.Synthetic,
		ElapsedMS: b.Elapsed.Milliseconds(),
	})
}

func (b *Brief) UnmarshalJSON(data []byte) error {
	var aux briefJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	b.Pack = aux.Pack
	b.Response = aux.Response
	b.Attempts = aux.Attempts
	b.Synthetic = aux.Synthetic
	b.Elapsed = time.Duration(aux.ElapsedMS) * time.Millisecond
	return nil
}

// Kind returns the query kind the brief answered.
func (b *Brief) Kind() string { return b.Pack.Query.Kind }

// Place returns the place as the user gave it.
func (b *Brief) Place() string { return b.Pack.Query.Place }

// Options carries per-invocation knobs. Zero values defer to configuration.
type Options struct {
	When    string
	Horizon time.Duration
	Focus   string
	Units   string
	Persona string
	Style   string
	Words   int
}

// Orchestrator owns the full request pipeline for both the CLI and the
// server. It is safe for concurrent use.
type Orchestrator struct {
	cfg      *config.Config
	registry *sources.Registry
	router   *router.Router
	fetch    *fetchcache.Cache
	state    *state.Cache
	favs     *favorites.Store
	metrics  *telemetry.Metrics
	log      *log.Logger
}

// New builds the pipeline from configuration. Offline mode swaps in the
// synthetic source set and an empty provider chain, so every answer comes from
// the synthesizer without touching the network. metrics may be nil.
func New(cfg *config.Config, metrics *telemetry.Metrics, logger *log.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	client := httpx.NewClient(cfg.Sources.AssemblyTimeout, cfg.Sources.Retries, cfg.Sources.RetryBackoff)
	registry := sources.NewRegistry(sources.Options{
		Client:    client,
		Timeout:   cfg.Sources.AdapterTimeout,
		UserAgent: cfg.Sources.UserAgent,
	}, cfg.General.Offline)

	var chain []providers.Provider
	if !cfg.General.Offline {
		var err error
		chain, err = providers.Chain(cfg.Providers)
		if err != nil {
			return nil, fmt.Errorf("build provider chain: %w", err)
		}
	}
	policy := router.Policy{
		MaxRetries:     cfg.Providers.MaxRetries,
		BaseBackoff:    cfg.Providers.BaseBackoff,
		MaxBackoff:     cfg.Providers.MaxBackoff,
		AttemptTimeout: cfg.Providers.AttemptTimeout,
		WallBudget:     cfg.Providers.WallBudget,
		Temperature:    cfg.Providers.Temperature,
		MaxTokens:      cfg.Providers.MaxTokens,
	}

	o := &Orchestrator{
		cfg:      cfg,
		registry: registry,
		router:   router.New(chain, policy, synth.New(), logger),
		state:    state.NewCache(cfg.Privacy.StateDir, cfg.Privacy.Enabled, logger),
		favs:     favorites.NewStore(cfg.Privacy.StateDir),
		metrics:  metrics,
		log:      logger,
	}

	if addr := cfg.Storage.Redis.Addr(); addr != "" && !cfg.General.Offline {
		fc, err := fetchcache.New(cfg.Storage.Redis, logger)
		if err != nil {
			logger.Printf("fetch cache unavailable, continuing without: %v", err)
		} else {
			o.fetch = fc
			logger.Printf("fetch cache enabled at %s", addr)
		}
	}
	return o, nil
}

// Close releases the fetch cache connection if one was opened.
func (o *Orchestrator) Close() error {
	if o.fetch != nil {
		return o.fetch.Close()
	}
	return nil
}

// Favorites exposes the saved-places store for the CLI subcommands.
func (o *Orchestrator) Favorites() *favorites.Store { return o.favs }

// State exposes the last-brief cache for the CLI subcommands.
func (o *Orchestrator) State() *state.Cache { return o.state }

// Registry exposes the source set, used by the rule scheduler.
func (o *Orchestrator) Registry() *sources.Registry { return o.registry }

// Ask answers a freeform question about a place. The source set starts
// minimal and grows with the question: temporal language pulls in the
// outlook, convective language the instability profile.
func (o *Orchestrator) Ask(ctx context.Context, question, place string, opts Options) (*Brief, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("ask needs a question")
	}
	if strings.TrimSpace(place) == "" {
		return nil, fmt.Errorf("ask needs a place (use --place or a favorite name)")
	}
	start := time.Now()
	ctx, cancel := o.deadline(ctx)
	defer cancel()

	q := o.newQuery(KindAsk, place, opts)
	q.Question = question
	if q.Horizon == 0 {
		q.Horizon = defaultAskHorizon
	}

	ids := []string{sources.SourceGeocode, sources.SourceObs}
	if q.When != "" || mentionsFuture(question) {
		ids = append(ids, sources.SourceOutlook)
	}
	ids = append(ids, sources.SourceAlerts)
	if mentionsConvective(question) {
		ids = append(ids, sources.SourceProfile)
	}

	o.locate(ctx, &q)
	pack := o.assemble(ctx, q, ids)
	b, err := o.route(ctx, &pack, KindAsk, opts.Words, start)
	if err != nil {
		return nil, err
	}
	o.saveState(b)
	return b, nil
}

// Forecast briefs the coming hours for a place using the full source set.
func (o *Orchestrator) Forecast(ctx context.Context, place string, opts Options) (*Brief, error) {
	if strings.TrimSpace(place) == "" {
		return nil, fmt.Errorf("forecast needs a place")
	}
	start := time.Now()
	ctx, cancel := o.deadline(ctx)
	defer cancel()

	q := o.newQuery(KindForecast, place, opts)
	if q.Horizon == 0 {
		q.Horizon = defaultFcstHorizon
	}

	o.locate(ctx, &q)
	pack := o.assemble(ctx, q, o.cfg.Sources.Priority)
	b, err := o.route(ctx, &pack, KindForecast, opts.Words, start)
	if err != nil {
		return nil, err
	}
	o.saveState(b)
	return b, nil
}

// Risk assesses hazards for a place. An empty hazard list means all hazards;
// otherwise the list filters what the sources and the prompt focus on.
func (o *Orchestrator) Risk(ctx context.Context, place string, hazards []string, opts Options) (*Brief, error) {
	if strings.TrimSpace(place) == "" {
		return nil, fmt.Errorf("risk needs a place")
	}
	start := time.Now()
	ctx, cancel := o.deadline(ctx)
	defer cancel()

	q := o.newQuery(KindRisk, place, opts)
	q.Hazards = normalizeHazards(hazards)
	if q.Horizon == 0 {
		q.Horizon = defaultRiskHorizon
	}

	ids := []string{sources.SourceGeocode, sources.SourceObs, sources.SourceOutlook, sources.SourceAlerts, sources.SourceProfile}
	o.locate(ctx, &q)
	pack := o.assemble(ctx, q, ids)
	b, err := o.route(ctx, &pack, KindRisk, opts.Words, start)
	if err != nil {
		return nil, err
	}
	o.saveState(b)
	return b, nil
}

// Alerts reports active alerts for a place. Without ai the sections are
// composed directly from the alert feed; with ai the provider chain triages
// them instead.
func (o *Orchestrator) Alerts(ctx context.Context, place string, ai bool, opts Options) (*Brief, error) {
	if strings.TrimSpace(place) == "" {
		return nil, fmt.Errorf("alerts needs a place")
	}
	start := time.Now()
	ctx, cancel := o.deadline(ctx)
	defer cancel()

	q := o.newQuery(KindAlerts, place, opts)
	o.locate(ctx, &q)
	pack := o.assemble(ctx, q, []string{sources.SourceGeocode, sources.SourceAlerts})

	if !ai {
		capWords, weights := o.budgetFor(opts.Words)
		resp := budget.Apply(composeAlerts(&pack), capWords, weights)
		b := &Brief{Pack: pack, Response: resp, Elapsed: time.Since(start)}
		o.metrics.ObserveBrief(KindAlerts, false)
		o.saveState(b)
		return b, nil
	}

	b, err := o.route(ctx, &pack, KindAlerts, opts.Words, start)
	if err != nil {
		return nil, err
	}
	o.saveState(b)
	return b, nil
}

// Story tells the weather as a narrative arc over the forecast set.
func (o *Orchestrator) Story(ctx context.Context, place string, opts Options) (*Brief, error) {
	if strings.TrimSpace(place) == "" {
		return nil, fmt.Errorf("story needs a place")
	}
	start := time.Now()
	ctx, cancel := o.deadline(ctx)
	defer cancel()

	if opts.Style == "" {
		opts.Style = "narrative"
	}
	q := o.newQuery(KindStory, place, opts)
	if q.Horizon == 0 {
		q.Horizon = defaultStoryHorizon
	}

	o.locate(ctx, &q)
	pack := o.assemble(ctx, q, o.cfg.Sources.Priority)
	b, err := o.route(ctx, &pack, KindStory, opts.Words, start)
	if err != nil {
		return nil, err
	}
	o.saveState(b)
	return b, nil
}

// Explain recalls the last saved brief and routes an explain prompt over its
// pack: which evidence drove which statements. The explained brief stays the
// saved one; the explanation itself is not cached.
func (o *Orchestrator) Explain(ctx context.Context, opts Options) (*Brief, error) {
	entry, err := o.state.Get()
	if err != nil {
		if errors.Is(err, state.ErrNoState) {
			return nil, fmt.Errorf("nothing to explain: %w", err)
		}
		return nil, err
	}
	start := time.Now()
	ctx, cancel := o.deadline(ctx)
	defer cancel()

	capWords, weights := o.budgetFor(opts.Words)
	prompt, err := explainPrompt(entry, capWords)
	if err != nil {
		return nil, err
	}
	res := o.router.Generate(ctx, &entry.Pack, prompt)
	o.metrics.ObserveRouting(&res)
	resp := budget.Apply(res.Response, capWords, weights)
	o.metrics.ObserveBrief(KindExplain, res.Synthetic)
	return &Brief{
		Pack:      entry.Pack,
		Response:  resp,
		Attempts:  res.Attempts,
		Synthetic: res.Synthetic,
		Elapsed:   time.Since(start),
	}, nil
}

// Worldview samples conditions and alerts across the US and EU region sets
// and composes the overview locally; no provider is involved. severeOnly
// narrows the alert roll-up to severe products.
func (o *Orchestrator) Worldview(ctx context.Context, severeOnly bool, opts Options) (*Brief, error) {
	start := time.Now()
	ctx, cancel := o.deadline(ctx)
	defer cancel()

	q := o.newQuery(KindWorldview, "worldwide", opts)
	if severeOnly {
		q.Hazards = []string{"severe"}
	}

	adapters := o.registry.Worldview()
	if o.fetch != nil {
		adapters = o.fetch.WrapAll(adapters)
	}
	actx, acancel := context.WithTimeout(ctx, o.cfg.Sources.AssemblyTimeout)
	defer acancel()
	pack := feature.Assemble(actx, q, adapters)
	o.metrics.ObservePack(&pack)

	capWords, weights := o.budgetFor(opts.Words)
	resp := budget.Apply(composeWorldview(&pack, severeOnly), capWords, weights)
	o.metrics.ObserveBrief(KindWorldview, false)
	return &Brief{Pack: pack, Response: resp, Elapsed: time.Since(start)}, nil
}

// newQuery normalizes the request. A place matching a favorite name is
// swapped for the saved place, including pinned coordinates when present.
func (o *Orchestrator) newQuery(kind, place string, opts Options) feature.Query {
	q := feature.Query{
		ID:      uuid.New(),
		Kind:    kind,
		Place:   strings.TrimSpace(place),
		When:    strings.TrimSpace(opts.When),
		Horizon: opts.Horizon,
		Focus:   strings.TrimSpace(opts.Focus),
		Units:   opts.Units,
		Persona: opts.Persona,
		Style:   opts.Style,
		AskedAt: time.Now().UTC(),
	}
	if q.Units == "" {
		q.Units = o.cfg.General.Units
	}
	if q.Persona == "" {
		q.Persona = o.cfg.General.Persona
	}
	if q.Style == "" {
		q.Style = o.cfg.General.Style
	}
	if fav, ok, err := o.favs.Resolve(q.Place); err == nil && ok {
		q.Place = fav.Place
		if fav.Lat != 0 || fav.Lon != 0 {
			q.Lat, q.Lon, q.HasPoint = fav.Lat, fav.Lon, true
		}
	}
	return q
}

// locate resolves coordinates ahead of assembly so the point-dependent
// adapters can all run in the first wave. Failure leaves the query unresolved
// and the pack degraded rather than failing the brief.
func (o *Orchestrator) locate(ctx context.Context, q *feature.Query) {
	if q.HasPoint {
		return
	}
	adapter, ok := o.registry.Adapter(sources.SourceGeocode)
	if !ok {
		return
	}
	if o.fetch != nil {
		adapter = o.fetch.Wrap(adapter)
	}
	fctx, cancel := context.WithTimeout(ctx, adapter.Timeout())
	defer cancel()
	payload, err := adapter.Fetch(fctx, sources.Request{Source: sources.SourceGeocode, Place: q.Place, Units: q.Units})
	if err != nil {
		o.log.Printf("geocode %q failed, continuing unresolved: %v", q.Place, err)
		return
	}
	if pc, ok := payload.(sources.PointContext); ok {
		q.Lat, q.Lon, q.HasPoint = pc.Lat, pc.Lon, true
	}
}

func (o *Orchestrator) assemble(ctx context.Context, q feature.Query, ids []string) feature.Pack {
	adapters := o.registry.Select(ids...)
	if o.fetch != nil {
		adapters = o.fetch.WrapAll(adapters)
	}
	actx, cancel := context.WithTimeout(ctx, o.cfg.Sources.AssemblyTimeout)
	defer cancel()
	pack := feature.Assemble(actx, q, adapters)
	o.metrics.ObservePack(&pack)
	return pack
}

// route runs the provider chain over the pack and budgets whatever comes
// back. It always yields a brief unless the pack cannot be serialized.
func (o *Orchestrator) route(ctx context.Context, pack *feature.Pack, kind string, words int, start time.Time) (*Brief, error) {
	capWords, weights := o.budgetFor(words)
	prompt, err := buildPrompt(pack, capWords)
	if err != nil {
		return nil, err
	}
	res := o.router.Generate(ctx, pack, prompt)
	o.metrics.ObserveRouting(&res)
	resp := budget.Apply(res.Response, capWords, weights)
	o.metrics.ObserveBrief(kind, res.Synthetic)
	return &Brief{
		Pack:      *pack,
		Response:  resp,
		Attempts:  res.Attempts,
		Synthetic: res.Synthetic,
		Elapsed:   time.Since(start),
	}, nil
}

func (o *Orchestrator) budgetFor(words int) (int, map[string]float64) {
	base := budget.Config{Weights: o.cfg.Budget.Weights}
	if o.cfg.Budget.Cap > 0 {
		c := o.cfg.Budget.Cap
		base.Cap = &c
	}
	if words > 0 {
		base = budget.Merge(base, budget.Config{Cap: &words})
	}
	return base.Resolve(defaultCap, defaultWeights)
}

// saveState remembers the brief for explain. A failed write degrades the
// follow-up, not the brief, so it only logs.
func (o *Orchestrator) saveState(b *Brief) {
	err := o.state.Put(state.Entry{
		Pack:      b.Pack,
		Response:  b.Response,
		Attempts:  b.Attempts,
		Synthetic: b.Synthetic,
	})
	if err != nil {
		o.log.Printf("state save failed: %v", err)
	}
}

func (o *Orchestrator) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := o.cfg.General.QueryDeadline; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

var convectiveWords = []string{"storm", "thunder", "hail", "tornado", "lightning", "severe", "supercell", "funnel"}

var futureWords = []string{"tomorrow", "tonight", "later", "week", "weekend", "morning", "afternoon", "evening", "overnight", "will it"}

func mentionsConvective(question string) bool { return containsAny(question, convectiveWords) }

func mentionsFuture(question string) bool { return containsAny(question, futureWords) }

func containsAny(s string, words []string) bool {
	s = strings.ToLower(s)
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func normalizeHazards(hazards []string) []string {
	out := make([]string, 0, len(hazards))
	seen := map[string]bool{}
	for _, h := range hazards {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}
