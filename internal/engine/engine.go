// Run orchestration: authenticate once, collect identifiers per query,
// fetch details through the shared controller, finalize.
//
// A run moves Idle → Authenticating → Collecting → Fetching → Serializing →
// Done. Only auth errors are fatal; everything else degrades per item.

package engine

import (
	"context"
	"errors"

	mapset "github.com/deckarep/golang-set/v2"
	log "github.com/sirupsen/logrus"

	"github.com/lonehog/linkedinJobScrapper/internal/config"
	"github.com/lonehog/linkedinJobScrapper/internal/pipeline"
	"github.com/lonehog/linkedinJobScrapper/internal/ratelimit"
	"github.com/lonehog/linkedinJobScrapper/internal/scraper"
	"github.com/lonehog/linkedinJobScrapper/internal/scraper/linkedin"
	"github.com/lonehog/linkedinJobScrapper/internal/session"
)

// State names the phases of a run.
type State string

const (
	StateIdle           State = "idle"
	StateAuthenticating State = "authenticating"
	StateCollecting     State = "collecting"
	StateFetching       State = "fetching"
	StateSerializing    State = "serializing"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Collector is the collection surface the engine drives. The LinkedIn
// scraper implements it; tests substitute stubs.
type Collector interface {
	CollectIDs(ctx context.Context, query config.SearchQuery, maxPages int) ([]scraper.JobIDRecord, error)
	FetchAll(ctx context.Context, ids []scraper.JobIDRecord) ([]scraper.JobDetailRecord, []scraper.SkippedJob, error)
}

// Authenticator establishes the run's session.
type Authenticator interface {
	Authenticate(ctx context.Context) (*session.Session, error)
}

// CollectorFactory builds the Collector once the session exists.
type CollectorFactory func(*session.Session, *ratelimit.Controller) Collector

// RunParams are per-run overrides; zero values fall back to the config.
type RunParams struct {
	Queries         []config.SearchQuery
	MaxPages        int
	FilterEasyApply *bool
	Polarity        string
}

// Engine executes scrape runs.
type Engine struct {
	cfg     *config.Config
	auth    Authenticator
	factory CollectorFactory
	state   State
}

// EngineOption overrides collaborators, used by tests.
type EngineOption func(*Engine)

func WithAuthenticator(a Authenticator) EngineOption {
	return func(e *Engine) { e.auth = a }
}

func WithCollectorFactory(f CollectorFactory) EngineOption {
	return func(e *Engine) { e.factory = f }
}

// New wires an Engine with the production session manager and LinkedIn
// scraper.
func New(cfg *config.Config, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:   cfg,
		auth:  session.NewManager(cfg),
		state: StateIdle,
		factory: func(sess *session.Session, ctrl *ratelimit.Controller) Collector {
			return linkedin.New(sess, ctrl, cfg)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State reports the phase the last run reached.
func (e *Engine) State() State { return e.state }

func (e *Engine) transition(s State) {
	e.state = s
	log.Debugf("Run state: %s", s)
}

// Run executes one scrape run. Cancellation of ctx unwinds in-flight work
// and flushes whatever completed; the caller decides the wall-clock budget.
func (e *Engine) Run(ctx context.Context, params RunParams) scraper.ScrapeResult {
	queries := params.Queries
	if len(queries) == 0 {
		queries = e.cfg.SearchQueries
	}
	maxPages := params.MaxPages
	if maxPages < 1 {
		maxPages = e.cfg.MaxPagesPerQuery
	}
	filter := e.cfg.FilterEasyApply
	if params.FilterEasyApply != nil {
		filter = *params.FilterEasyApply
	}
	polarity := params.Polarity
	if polarity == "" {
		polarity = e.cfg.EasyApplyPolarity
	}

	e.transition(StateAuthenticating)
	sess, err := e.auth.Authenticate(ctx)
	if err != nil {
		e.transition(StateFailed)
		log.Errorf("❌ Authentication failed: %v", err)
		return pipeline.Failure(err, nil)
	}

	// One controller for the whole run keeps the request cadence global
	// even when callers overlap.
	ctrl := ratelimit.New(ratelimit.Options{
		MinDelay:    e.cfg.PageDelay,
		Jitter:      e.cfg.PageDelay / 2,
		MaxAttempts: e.cfg.MaxAttempts,
		IsExpired:   sess.IsExpired,
	})
	collector := e.factory(sess, ctrl)

	e.transition(StateCollecting)
	seen := mapset.NewSet[string]()
	var ids []scraper.JobIDRecord
	for _, query := range queries {
		queryIDs, err := collector.CollectIDs(ctx, query, maxPages)
		if err != nil {
			if session.IsAuthError(err) {
				e.transition(StateFailed)
				log.Errorf("❌ Query %q aborted the run: %v", query.Name, err)
				return pipeline.Failure(err, nil)
			}
			// A dead query is per-item trouble, not a run failure.
			log.Warnf("Query %q failed, continuing with remaining queries: %v", query.Name, err)
		}
		added := 0
		for _, rec := range queryIDs {
			if seen.Add(rec.JobID) {
				ids = append(ids, rec)
				added++
			}
		}
		log.Infof("Query %q: %d IDs found, %d new after cross-query dedup",
			query.Name, len(queryIDs), added)
	}

	e.transition(StateFetching)
	records, skipped, err := collector.FetchAll(ctx, ids)
	if err != nil {
		e.transition(StateFailed)
		log.Errorf("❌ Detail fetch aborted the run: %v", err)
		return pipeline.Failure(err, records)
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.Canceled) {
		log.Warnf("Run deadline hit; flushing %d completed records", len(records))
	}

	e.transition(StateSerializing)
	result := pipeline.Finalize(records, skipped, pipeline.Options{
		FilterEasyApply: filter,
		Polarity:        polarity,
	})

	e.transition(StateDone)
	log.Infof("📦 Run complete: %d jobs, %d skipped", result.TotalJobs, len(skipped))
	return result
}
