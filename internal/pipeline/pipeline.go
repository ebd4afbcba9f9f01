// Result pipeline: global deduplication, Easy Apply filtering, and the
// output envelope. No implicit sorting; output keeps first-fetch insertion
// order.

package pipeline

import (
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	log "github.com/sirupsen/logrus"

	"github.com/lonehog/linkedinJobScrapper/internal/config"
	"github.com/lonehog/linkedinJobScrapper/internal/scraper"
)

// Options control finalization.
type Options struct {
	FilterEasyApply bool
	// Polarity is config.PolarityExclude (drop Easy Apply postings) or
	// config.PolarityOnly (keep nothing else).
	Polarity string
	// Now is injectable for idempotence tests; defaults to time.Now.
	Now func() time.Time
}

// Finalize deduplicates by job id (last seen wins), applies the Easy Apply
// filter, and wraps everything in the result envelope. Skips are reported in
// the message, never silently dropped.
func Finalize(records []scraper.JobDetailRecord, skipped []scraper.SkippedJob, opts Options) scraper.ScrapeResult {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	deduped := dedupe(records)

	var jobs []scraper.JobDetailRecord
	filtered := 0
	for _, rec := range deduped {
		if opts.FilterEasyApply && !keep(rec, opts.Polarity) {
			filtered++
			continue
		}
		jobs = append(jobs, rec)
	}
	if filtered > 0 {
		log.Infof("Easy Apply filter (%s) removed %d of %d records", opts.Polarity, filtered, len(deduped))
	}

	return scraper.ScrapeResult{
		Success:   true,
		Message:   buildMessage(len(jobs), filtered, skipped),
		Jobs:      jobs,
		TotalJobs: len(jobs),
		Timestamp: now(),
	}
}

// Failure builds the envelope for a fatally aborted run.
func Failure(err error, partial []scraper.JobDetailRecord) scraper.ScrapeResult {
	return scraper.ScrapeResult{
		Success:   false,
		Message:   fmt.Sprintf("run aborted: %v", err),
		Jobs:      partial,
		TotalJobs: len(partial),
		Timestamp: time.Now(),
	}
}

// dedupe keeps one record per job id. Last seen wins so a re-fetch from an
// overlapping query replaces the earlier copy, but the record stays at its
// original position.
func dedupe(records []scraper.JobDetailRecord) []scraper.JobDetailRecord {
	seen := mapset.NewSet[string]()
	index := map[string]int{}
	var out []scraper.JobDetailRecord
	for _, rec := range records {
		if seen.Add(rec.JobID) {
			index[rec.JobID] = len(out)
			out = append(out, rec)
		} else {
			out[index[rec.JobID]] = rec
		}
	}
	return out
}

func keep(rec scraper.JobDetailRecord, polarity string) bool {
	if polarity == config.PolarityOnly {
		return rec.HasEasyApply
	}
	return !rec.HasEasyApply
}

func buildMessage(kept, filtered int, skipped []scraper.SkippedJob) string {
	msg := fmt.Sprintf("Successfully scraped %d jobs", kept)
	if filtered > 0 {
		msg += fmt.Sprintf(", %d filtered by Easy Apply policy", filtered)
	}
	if len(skipped) > 0 {
		// First-seen order keeps the message stable across identical runs.
		seen := mapset.NewSet[string]()
		var reasons []string
		for _, s := range skipped {
			if seen.Add(s.Reason) {
				reasons = append(reasons, s.Reason)
			}
		}
		msg += fmt.Sprintf("; %d identifiers skipped (%s)",
			len(skipped), strings.Join(reasons, "; "))
	}
	return msg
}
