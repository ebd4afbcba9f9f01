// Detail-page field extraction.
// Fields are located by structural anchors with ordered fallback strategies;
// a missing anchor degrades that one field to the sentinel, never the whole
// record.

package linkedin

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lonehog/linkedinJobScrapper/internal/scraper"
)

const jobViewURL = "https://www.linkedin.com/jobs/view/"

// strategy extracts one field from a parsed detail page, returning "" when
// its anchor is absent.
type strategy func(*goquery.Document) string

func selectorText(sel string) strategy {
	return func(doc *goquery.Document) string {
		return strings.TrimSpace(doc.Find(sel).First().Text())
	}
}

// fieldStrategies maps each record field to its ordered anchor list.
// First match wins; exhaustion yields the sentinel.
var fieldStrategies = map[string][]strategy{
	"company_name": {
		selectorText("a.topcard__org-name-link"),
		selectorText("span.topcard__flavor a"),
	},
	"job_title": {
		selectorText("h2.topcard__title"),
		selectorText("h1.top-card-layout__title"),
	},
	"time_posted": {
		selectorText("span.posted-time-ago__text"),
		jsonLDDatePosted,
	},
	"num_applicants": {
		selectorText("span.num-applicants__caption"),
		selectorText("figcaption.num-applicants__caption"),
	},
	"job_location": {
		jsonLDLocality,
		selectorText("span.topcard__flavor--bullet"),
	},
	"description_content": {
		selectorText("div.description__text"),
		selectorText("div.show-more-less-html__markup"),
	},
}

// Extract parses a detail page into a record. It is deterministic and never
// fails: any field whose anchors are all absent comes back as the sentinel.
func Extract(markup, jobID string) scraper.JobDetailRecord {
	rec := scraper.JobDetailRecord{
		JobID:              jobID,
		JobURL:             jobViewURL + jobID,
		CompanyName:        scraper.Unknown,
		JobTitle:           scraper.Unknown,
		TimePosted:         scraper.Unknown,
		NumApplicants:      scraper.Unknown,
		JobLocation:        scraper.Unknown,
		ExperienceNeeded:   scraper.Unknown,
		DescriptionContent: scraper.Unknown,
		ApplicationType:    scraper.Unknown,
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return rec
	}

	fields := map[string]*string{
		"company_name":        &rec.CompanyName,
		"job_title":           &rec.JobTitle,
		"time_posted":         &rec.TimePosted,
		"num_applicants":      &rec.NumApplicants,
		"job_location":        &rec.JobLocation,
		"description_content": &rec.DescriptionContent,
	}
	for name, target := range fields {
		for _, strat := range fieldStrategies[name] {
			if val := strat(doc); val != "" {
				*target = val
				break
			}
		}
	}

	rec.ExperienceNeeded = extractExperience(doc, rec.DescriptionContent)

	lower := strings.ToLower(markup)
	rec.HasEasyApply = strings.Contains(lower, "easy apply")
	switch {
	case rec.HasEasyApply:
		rec.ApplicationType = "easy_apply"
	case strings.Contains(lower, "be an early applicant") || strings.Contains(lower, "apply on company"):
		rec.ApplicationType = "external"
	}

	return rec
}

// extractExperience tries the dedicated markup anchor first, then falls back
// to a snippet around the word "experience" in the description.
func extractExperience(doc *goquery.Document, description string) string {
	if val := strings.TrimSpace(doc.Find("span.experience").First().Text()); val != "" {
		return val
	}
	if description == scraper.Unknown {
		return scraper.Unknown
	}
	idx := strings.Index(strings.ToLower(description), "experience")
	if idx < 0 {
		return scraper.Unknown
	}
	end := idx + 100
	if end > len(description) {
		end = len(description)
	}
	return description[idx:end] + "..."
}

// jsonLD mirrors the pieces of the embedded JobPosting structured data the
// extractor cares about. jobLocation may be a single object or a list.
type jsonLD struct {
	DatePosted  string          `json:"datePosted"`
	JobLocation json.RawMessage `json:"jobLocation"`
}

type jsonLDLocation struct {
	Address struct {
		AddressLocality string `json:"addressLocality"`
	} `json:"address"`
}

func decodeJSONLD(doc *goquery.Document) (jsonLD, bool) {
	raw := doc.Find(`script[type="application/ld+json"]`).First().Text()
	if raw == "" {
		return jsonLD{}, false
	}
	var ld jsonLD
	if err := json.Unmarshal([]byte(raw), &ld); err != nil {
		// Some pages wrap the posting in a one-element array.
		var list []jsonLD
		if err := json.Unmarshal([]byte(raw), &list); err != nil || len(list) == 0 {
			return jsonLD{}, false
		}
		ld = list[0]
	}
	return ld, true
}

func jsonLDLocality(doc *goquery.Document) string {
	ld, ok := decodeJSONLD(doc)
	if !ok || len(ld.JobLocation) == 0 {
		return ""
	}
	var loc jsonLDLocation
	if err := json.Unmarshal(ld.JobLocation, &loc); err != nil {
		var locs []jsonLDLocation
		if err := json.Unmarshal(ld.JobLocation, &locs); err != nil || len(locs) == 0 {
			return ""
		}
		loc = locs[0]
	}
	return loc.Address.AddressLocality
}

func jsonLDDatePosted(doc *goquery.Document) string {
	ld, ok := decodeJSONLD(doc)
	if !ok {
		return ""
	}
	return ld.DatePosted
}
