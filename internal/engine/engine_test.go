package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lonehog/linkedinJobScrapper/internal/config"
	"github.com/lonehog/linkedinJobScrapper/internal/ratelimit"
	"github.com/lonehog/linkedinJobScrapper/internal/scraper"
	"github.com/lonehog/linkedinJobScrapper/internal/session"
)

type stubCollector struct {
	idsByQuery   map[string][]scraper.JobIDRecord
	collectErr   error
	records      []scraper.JobDetailRecord
	skipped      []scraper.SkippedJob
	fetchErr     error
	fetchedIDs   []scraper.JobIDRecord
	collectCalls int
}

func (s *stubCollector) CollectIDs(_ context.Context, query config.SearchQuery, _ int) ([]scraper.JobIDRecord, error) {
	s.collectCalls++
	if s.collectErr != nil {
		return nil, s.collectErr
	}
	return s.idsByQuery[query.Name], nil
}

func (s *stubCollector) FetchAll(_ context.Context, ids []scraper.JobIDRecord) ([]scraper.JobDetailRecord, []scraper.SkippedJob, error) {
	s.fetchedIDs = ids
	return s.records, s.skipped, s.fetchErr
}

type failAuth struct {
	err error
}

func (f failAuth) Authenticate(context.Context) (*session.Session, error) {
	return nil, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		SearchQueries:     []config.SearchQuery{{Name: "default", URL: "https://example.com/jobs"}},
		MaxPagesPerQuery:  1,
		EasyApplyPolarity: config.PolarityExclude,
		RequestTimeout:    5 * time.Second,
		PageDelay:         time.Millisecond,
		MaxAttempts:       1,
		Concurrency:       2,
		Cookies:           map[string]string{"li_at": "tok"},
	}
}

// newTestEngine wires a probe-backed session manager (so Authenticate
// succeeds) and the given stub collector.
func newTestEngine(t *testing.T, cfg *config.Config, collector Collector) *Engine {
	t.Helper()
	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(probe.Close)

	return New(cfg,
		WithAuthenticator(session.NewManager(cfg, session.WithBaseURL(probe.URL))),
		WithCollectorFactory(func(*session.Session, *ratelimit.Controller) Collector {
			return collector
		}),
	)
}

func TestRunPartialSuccess(t *testing.T) {
	// One query yields 3 identifiers; one detail page is gone.
	collector := &stubCollector{
		idsByQuery: map[string][]scraper.JobIDRecord{
			"default": {
				{JobID: "1", SourceQuery: "default"},
				{JobID: "2", SourceQuery: "default"},
				{JobID: "3", SourceQuery: "default"},
			},
		},
		records: []scraper.JobDetailRecord{
			{JobID: "1", JobTitle: "A"},
			{JobID: "3", JobTitle: "C"},
		},
		skipped: []scraper.SkippedJob{{JobID: "2", Reason: "job page gone"}},
	}

	e := newTestEngine(t, testConfig(), collector)
	result := e.Run(context.Background(), RunParams{})

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TotalJobs)
	assert.Contains(t, result.Message, "1 identifiers skipped")
	assert.Len(t, collector.fetchedIDs, 3)
	assert.Equal(t, StateDone, e.State())
}

func TestRunAuthFailureAborts(t *testing.T) {
	collector := &stubCollector{}
	authErr := &session.AuthError{Reason: session.ReasonInvalidCredentials}

	e := New(testConfig(),
		WithAuthenticator(failAuth{err: authErr}),
		WithCollectorFactory(func(*session.Session, *ratelimit.Controller) Collector {
			return collector
		}),
	)
	result := e.Run(context.Background(), RunParams{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "invalid_credentials")
	// No collection happens after a failed probe.
	assert.Equal(t, 0, collector.collectCalls)
	assert.Equal(t, StateFailed, e.State())
}

func TestRunCrossQueryDedup(t *testing.T) {
	cfg := testConfig()
	cfg.SearchQueries = []config.SearchQuery{
		{Name: "a", URL: "https://example.com/a"},
		{Name: "b", URL: "https://example.com/b"},
	}
	collector := &stubCollector{
		idsByQuery: map[string][]scraper.JobIDRecord{
			"a": {{JobID: "1", SourceQuery: "a"}, {JobID: "2", SourceQuery: "a"}},
			"b": {{JobID: "2", SourceQuery: "b"}, {JobID: "3", SourceQuery: "b"}},
		},
	}

	e := newTestEngine(t, cfg, collector)
	e.Run(context.Background(), RunParams{})

	// Identifier 2 is fetched once, tagged with the query that saw it first.
	require.Len(t, collector.fetchedIDs, 3)
	assert.Equal(t, "a", collector.fetchedIDs[1].SourceQuery)
}

func TestRunMidRunAuthErrorFatal(t *testing.T) {
	collector := &stubCollector{
		collectErr: &session.AuthError{Reason: session.ReasonExpiredMidRun},
	}

	e := newTestEngine(t, testConfig(), collector)
	result := e.Run(context.Background(), RunParams{})

	assert.False(t, result.Success)
	assert.Equal(t, StateFailed, e.State())
}

func TestRunNonAuthQueryErrorContinues(t *testing.T) {
	cfg := testConfig()
	cfg.SearchQueries = []config.SearchQuery{
		{Name: "broken", URL: "https://example.com/broken"},
		{Name: "fine", URL: "https://example.com/fine"},
	}
	calls := 0
	collector := &queryAwareCollector{
		collect: func(query config.SearchQuery) ([]scraper.JobIDRecord, error) {
			calls++
			if query.Name == "broken" {
				return nil, assert.AnError
			}
			return []scraper.JobIDRecord{{JobID: "1", SourceQuery: query.Name}}, nil
		},
		records: []scraper.JobDetailRecord{{JobID: "1"}},
	}

	e := newTestEngine(t, cfg, collector)
	result := e.Run(context.Background(), RunParams{})

	assert.True(t, result.Success)
	assert.Equal(t, 2, calls, "a dead query must not stop the remaining queries")
	assert.Equal(t, 1, result.TotalJobs)
}

func TestRunParamOverrides(t *testing.T) {
	collector := &stubCollector{}
	e := newTestEngine(t, testConfig(), collector)

	override := []config.SearchQuery{{Name: "custom", URL: "https://example.com/c"}}
	e.Run(context.Background(), RunParams{Queries: override, MaxPages: 7})

	assert.Equal(t, 1, collector.collectCalls)
}

type queryAwareCollector struct {
	collect func(config.SearchQuery) ([]scraper.JobIDRecord, error)
	records []scraper.JobDetailRecord
}

func (q *queryAwareCollector) CollectIDs(_ context.Context, query config.SearchQuery, _ int) ([]scraper.JobIDRecord, error) {
	return q.collect(query)
}

func (q *queryAwareCollector) FetchAll(_ context.Context, ids []scraper.JobIDRecord) ([]scraper.JobDetailRecord, []scraper.SkippedJob, error) {
	return q.records, nil, nil
}
