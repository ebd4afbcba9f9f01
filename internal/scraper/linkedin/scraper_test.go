package linkedin

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lonehog/linkedinJobScrapper/internal/config"
	"github.com/lonehog/linkedinJobScrapper/internal/ratelimit"
	"github.com/lonehog/linkedinJobScrapper/internal/scraper"
	"github.com/lonehog/linkedinJobScrapper/internal/session"
)

func listingMarkup(ids ...string) string {
	page := "<ul>"
	for _, id := range ids {
		page += fmt.Sprintf(`<li><div class="base-card" data-entity-urn="urn:li:jobPosting:%s"></div></li>`, id)
	}
	return page + "</ul>"
}

func testSession(t *testing.T, cfg *config.Config) *session.Session {
	t.Helper()
	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(probe.Close)

	mgr := session.NewManager(cfg, session.WithBaseURL(probe.URL))
	sess, err := mgr.Authenticate(context.Background())
	require.NoError(t, err)
	return sess
}

func testScraper(t *testing.T, cfg *config.Config, opts ...ScraperOption) *Scraper {
	t.Helper()
	sess := testSession(t, cfg)
	ctrl := ratelimit.New(ratelimit.Options{
		BaseBackoff: time.Millisecond,
		MaxAttempts: 2,
		IsExpired:   sess.IsExpired,
	})
	return New(sess, ctrl, cfg, opts...)
}

func testConfig() *config.Config {
	return &config.Config{
		RequestTimeout: 5 * time.Second,
		Concurrency:    2,
		Cookies:        map[string]string{"li_at": "tok"},
	}
}

func TestCollectIDsStopsOnEmptyPage(t *testing.T) {
	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages.Add(1)
		switch r.URL.Query().Get("start") {
		case "0":
			fmt.Fprint(w, listingMarkup("100", "101", "100"))
		case "25":
			fmt.Fprint(w, listingMarkup("102", "101"))
		default:
			fmt.Fprint(w, "<ul></ul>")
		}
	}))
	defer srv.Close()

	s := testScraper(t, testConfig())
	query := config.SearchQuery{Name: "go", URL: srv.URL + "/listing?keywords=go"}

	ids, err := s.CollectIDs(context.Background(), query, 10)
	require.NoError(t, err)

	// Exhaustion after the empty third page, duplicates collapsed, page
	// order preserved.
	assert.Equal(t, []scraper.JobIDRecord{
		{JobID: "100", SourceQuery: "go"},
		{JobID: "101", SourceQuery: "go"},
		{JobID: "102", SourceQuery: "go"},
	}, ids)
	assert.Equal(t, int32(3), pages.Load())
}

func TestCollectIDsHonorsPageCap(t *testing.T) {
	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := pages.Add(1)
		fmt.Fprint(w, listingMarkup(fmt.Sprintf("%d", n)))
	}))
	defer srv.Close()

	s := testScraper(t, testConfig())
	query := config.SearchQuery{Name: "q", URL: srv.URL + "/listing"}

	ids, err := s.CollectIDs(context.Background(), query, 2)
	require.NoError(t, err)

	assert.Len(t, ids, 2)
	assert.Equal(t, int32(2), pages.Load(), "must issue at most max_pages listing fetches")
}

func TestCollectIDsLoginRedirectIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://www.linkedin.com/uas/login")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	s := testScraper(t, testConfig())
	query := config.SearchQuery{Name: "q", URL: srv.URL + "/listing"}

	_, err := s.CollectIDs(context.Background(), query, 3)
	assert.True(t, session.IsAuthError(err), "login redirect must surface as AuthError, got %v", err)
}

func TestCollectIDsPaginationOffsets(t *testing.T) {
	var starts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		starts = append(starts, r.URL.Query().Get("start"))
		fmt.Fprint(w, listingMarkup(fmt.Sprintf("id-%d", len(starts))))
	}))
	defer srv.Close()

	s := testScraper(t, testConfig())
	_, err := s.CollectIDs(context.Background(), config.SearchQuery{Name: "q", URL: srv.URL + "/l"}, 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"0", "25", "50"}, starts)
}

func TestFetchAllConservation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/detail/2" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `<h2 class="topcard__title">Job %s</h2>`, r.URL.Path)
	}))
	defer srv.Close()

	s := testScraper(t, testConfig(), WithDetailURL(srv.URL+"/detail/%s"))

	ids := []scraper.JobIDRecord{
		{JobID: "1", SourceQuery: "q"},
		{JobID: "2", SourceQuery: "q"},
		{JobID: "3", SourceQuery: "q"},
	}
	records, skipped, err := s.FetchAll(context.Background(), ids)
	require.NoError(t, err)

	assert.Len(t, records, 2)
	require.Len(t, skipped, 1)
	assert.Equal(t, "2", skipped[0].JobID)
	assert.NotEmpty(t, skipped[0].Reason)
	// Nothing silently vanishes.
	assert.Equal(t, len(ids), len(records)+len(skipped))
}

func TestFetchAllBoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, `<h2 class="topcard__title">x</h2>`)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Concurrency = 2
	s := testScraper(t, cfg, WithDetailURL(srv.URL+"/detail/%s"))

	var ids []scraper.JobIDRecord
	for i := 0; i < 8; i++ {
		ids = append(ids, scraper.JobIDRecord{JobID: fmt.Sprintf("%d", i), SourceQuery: "q"})
	}
	records, skipped, err := s.FetchAll(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, 8, len(records)+len(skipped))
	assert.LessOrEqual(t, peak.Load(), int32(2), "worker pool must not exceed the concurrency limit")
}

func TestFetchAllEmptyInput(t *testing.T) {
	s := testScraper(t, testConfig())
	records, skipped, err := s.FetchAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, skipped)
}

func TestListingPageURLRewritesPublicSearchPath(t *testing.T) {
	u, err := listingPageURL("https://www.linkedin.com/jobs/search/?keywords=go&geoId=1", 50)
	require.NoError(t, err)

	assert.Contains(t, u, "/jobs-guest/jobs/api/seeMoreJobPostings/search")
	assert.Contains(t, u, "start=50")
	assert.Contains(t, u, "keywords=go")
	assert.Contains(t, u, "geoId=1")
}

func TestListingPageURLLeavesOtherHostsAlone(t *testing.T) {
	u, err := listingPageURL("http://127.0.0.1:9999/listing?x=1", 25)
	require.NoError(t, err)

	assert.Contains(t, u, "/listing")
	assert.Contains(t, u, "start=25")
	assert.Contains(t, u, "x=1")
}

func TestExtractJobIDs(t *testing.T) {
	ids := extractJobIDs(listingMarkup("1", "2", "3"))
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	assert.Empty(t, extractJobIDs("<ul><li>no cards here</li></ul>"))
}
