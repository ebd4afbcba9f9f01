package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/lonehog/linkedinJobScrapper/internal/scraper"
)

// WriteResult serializes the result to path in the requested format,
// creating intermediate directories as needed.
func WriteResult(path, format string, result scraper.ScrapeResult) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("output: create dir: %w", err)
		}
	}

	switch format {
	case "json":
		return writeJSON(path, result)
	default:
		return writeCSV(path, result.Jobs)
	}
}

// writeCSV emits one row per record in the fixed column order.
func writeCSV(path string, jobs []scraper.JobDetailRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(scraper.CSVColumns); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, job := range jobs {
		if err := w.Write(job.CSVRow()); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: flush: %w", err)
	}

	log.Infof("💾 Wrote %d jobs to %s", len(jobs), path)
	return nil
}

func writeJSON(path string, result scraper.ScrapeResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("json: marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("json: write %q: %w", path, err)
	}
	log.Infof("💾 Wrote %d jobs to %s", result.TotalJobs, path)
	return nil
}
