// LinkedIn collection engine: listing pagination and bounded-concurrency
// detail fetching. Every request is signed by the session and routed through
// the shared rate controller.

package linkedin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	mapset "github.com/deckarep/golang-set/v2"
	log "github.com/sirupsen/logrus"

	"github.com/lonehog/linkedinJobScrapper/internal/config"
	"github.com/lonehog/linkedinJobScrapper/internal/ratelimit"
	"github.com/lonehog/linkedinJobScrapper/internal/scraper"
	"github.com/lonehog/linkedinJobScrapper/internal/session"
)

const (
	// Listing pages step their offset in units of one page of results.
	pageSize = 25

	guestListingPath = "/jobs-guest/jobs/api/seeMoreJobPostings/search"

	defaultDetailURL = "https://www.linkedin.com/jobs-guest/jobs/api/jobPosting/%s"
)

// Scraper collects job identifiers and detail records for one run.
type Scraper struct {
	sess        *session.Session
	ctrl        *ratelimit.Controller
	client      *http.Client
	detailURL   string // printf template taking the job id
	concurrency int

	refreshMu   sync.Mutex
	lastRefresh time.Time
}

// ScraperOption overrides Scraper internals for tests.
type ScraperOption func(*Scraper)

func WithDetailURL(tmpl string) ScraperOption {
	return func(s *Scraper) { s.detailURL = tmpl }
}

func WithHTTPClient(c *http.Client) ScraperOption {
	return func(s *Scraper) { s.client = c }
}

// New builds a Scraper. The client does not follow redirects so a
// login-wall redirect surfaces as an auth expiry instead of a parsed login
// page.
func New(sess *session.Session, ctrl *ratelimit.Controller, cfg *config.Config, opts ...ScraperOption) *Scraper {
	s := &Scraper{
		sess:        sess,
		ctrl:        ctrl,
		detailURL:   defaultDetailURL,
		concurrency: cfg.Concurrency,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CollectIDs walks one query's listing pages and returns the identifiers in
// page order, deduplicated within the query. It stops at maxPages or at the
// first page that yields nothing.
func (s *Scraper) CollectIDs(ctx context.Context, query config.SearchQuery, maxPages int) ([]scraper.JobIDRecord, error) {
	log.Infof("🔎 Collecting job IDs for query %q (max %d pages)", query.Name, maxPages)

	seen := mapset.NewSet[string]()
	var out []scraper.JobIDRecord

	for page := 0; page < maxPages; page++ {
		pageURL, err := listingPageURL(query.URL, page*pageSize)
		if err != nil {
			return out, fmt.Errorf("%w: %v", config.ErrMalformedQuery, err)
		}

		body, err := s.get(ctx, pageURL)
		if err != nil {
			if session.IsAuthError(err) {
				return out, err
			}
			return out, fmt.Errorf("listing page %d of %q: %w", page, query.Name, err)
		}

		ids := extractJobIDs(body)
		if len(ids) == 0 {
			log.Infof("No job IDs on page %d of %q, query exhausted", page, query.Name)
			break
		}

		for _, id := range ids {
			if seen.Add(id) {
				out = append(out, scraper.JobIDRecord{JobID: id, SourceQuery: query.Name})
			}
		}
		log.Infof("Collected %d unique IDs so far for %q", len(out), query.Name)
	}

	return out, nil
}

// FetchAll retrieves detail pages for ids with bounded concurrency. Per-job
// failures become skipped entries; the batch completes best-effort and
// |records| + |skipped| = |ids| unless a fatal auth error unwinds the pool.
// Result order follows completion, not input.
func (s *Scraper) FetchAll(ctx context.Context, ids []scraper.JobIDRecord) ([]scraper.JobDetailRecord, []scraper.SkippedJob, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	var mu sync.Mutex
	var records []scraper.JobDetailRecord
	var skipped []scraper.SkippedJob
	var fatal error

	for _, rec := range ids {
		wg.Add(1)
		go func(rec scraper.JobIDRecord) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				skipped = append(skipped, scraper.SkippedJob{JobID: rec.JobID, Reason: "cancelled"})
				mu.Unlock()
				return
			}
			defer func() { <-sem }()

			detail, err := s.fetchDetail(ctx, rec)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				records = append(records, detail)
			case session.IsAuthError(err):
				if fatal == nil {
					fatal = err
				}
				skipped = append(skipped, scraper.SkippedJob{JobID: rec.JobID, Reason: err.Error()})
				cancel()
			default:
				log.Warnf("Skipping job %s: %v", rec.JobID, err)
				skipped = append(skipped, scraper.SkippedJob{JobID: rec.JobID, Reason: err.Error()})
			}
		}(rec)
	}

	wg.Wait()
	return records, skipped, fatal
}

func (s *Scraper) fetchDetail(ctx context.Context, rec scraper.JobIDRecord) (scraper.JobDetailRecord, error) {
	body, err := s.get(ctx, fmt.Sprintf(s.detailURL, rec.JobID))
	if err != nil {
		return scraper.JobDetailRecord{}, err
	}
	return Extract(body, rec.JobID), nil
}

// get issues one signed GET through the controller, retrying once after a
// session refresh if the first attempt hit an auth expiry.
func (s *Scraper) get(ctx context.Context, rawURL string) (string, error) {
	body, err := s.getOnce(ctx, rawURL)
	if !errors.Is(err, ratelimit.ErrSessionExpired) {
		return body, err
	}

	if rerr := s.refresh(ctx); rerr != nil {
		return "", rerr
	}
	body, err = s.getOnce(ctx, rawURL)
	if errors.Is(err, ratelimit.ErrSessionExpired) {
		return "", &session.AuthError{Reason: session.ReasonExpiredMidRun, Err: err}
	}
	return body, err
}

func (s *Scraper) getOnce(ctx context.Context, rawURL string) (string, error) {
	resp, err := s.ctrl.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		s.sess.Sign(req)
		return s.client.Do(req)
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(data), nil
}

// refresh re-authenticates at most once per minute so a burst of concurrent
// expiries does not stampede the login endpoint.
func (s *Scraper) refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if time.Since(s.lastRefresh) < time.Minute {
		return nil
	}
	if err := s.sess.Refresh(ctx); err != nil {
		return err
	}
	s.lastRefresh = time.Now()
	return nil
}

// listingPageURL appends the page offset to the query URL, mapping the
// public search path onto the guest listing endpoint that serves plain
// markup. All other query parameters pass through untouched.
func listingPageURL(rawURL string, start int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(u.Host, "linkedin.com") && strings.HasPrefix(u.Path, "/jobs/search") {
		u.Path = guestListingPath
	}
	q := u.Query()
	q.Set("start", strconv.Itoa(start))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// extractJobIDs pulls job identifiers out of listing markup. Job cards carry
// a stable data-entity-urn attribute whose last segment is the numeric id.
func extractJobIDs(markup string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	var ids []string
	doc.Find("[data-entity-urn]").Each(func(_ int, sel *goquery.Selection) {
		urn, ok := sel.Attr("data-entity-urn")
		if !ok {
			return
		}
		parts := strings.Split(urn, ":")
		if id := parts[len(parts)-1]; id != "" {
			ids = append(ids, id)
		}
	})
	return ids
}
