// Shared record types for the collection engine.
// Every downstream consumer (pipeline, API, reporter) works with these.

package scraper

import "time"

// Unknown is the sentinel written into any detail field whose markup anchor
// could not be found. Fields are never empty or absent.
const Unknown = "N/A"

// JobIDRecord is a job identifier harvested from a listing page, tagged with
// the query that produced it.
type JobIDRecord struct {
	JobID       string `json:"job_id"`
	SourceQuery string `json:"source_query"`
}

// JobDetailRecord is one fully extracted job posting. Extraction failures
// degrade individual fields to Unknown instead of dropping the record.
type JobDetailRecord struct {
	JobID              string `json:"job_id"`
	JobURL             string `json:"job_url"`
	CompanyName        string `json:"company_name"`
	JobTitle           string `json:"job_title"`
	TimePosted         string `json:"time_posted"`
	NumApplicants      string `json:"num_applicants"`
	JobLocation        string `json:"job_location"`
	ExperienceNeeded   string `json:"experience_needed"`
	DescriptionContent string `json:"description_content"`
	HasEasyApply       bool   `json:"has_easy_apply"`
	ApplicationType    string `json:"application_type"`
}

// SkippedJob records an identifier whose detail fetch failed after all
// retries. Skips never abort a batch.
type SkippedJob struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}

// ScrapeResult is the output envelope for one run.
type ScrapeResult struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Jobs      []JobDetailRecord `json:"jobs"`
	TotalJobs int               `json:"total_jobs"`
	Timestamp time.Time         `json:"timestamp"`
}

// CSVColumns is the fixed column order for CSV output, matching the
// JobDetailRecord field list.
var CSVColumns = []string{
	"job_id", "job_url", "company_name", "job_title", "time_posted",
	"num_applicants", "job_location", "experience_needed",
	"description_content", "has_easy_apply", "application_type",
}

// CSVRow renders the record in CSVColumns order.
func (j JobDetailRecord) CSVRow() []string {
	easyApply := "false"
	if j.HasEasyApply {
		easyApply = "true"
	}
	return []string{
		j.JobID, j.JobURL, j.CompanyName, j.JobTitle, j.TimePosted,
		j.NumApplicants, j.JobLocation, j.ExperienceNeeded,
		j.DescriptionContent, easyApply, j.ApplicationType,
	}
}
