package main

import (
	"context"
	"flag"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lonehog/linkedinJobScrapper/internal/config"
	"github.com/lonehog/linkedinJobScrapper/internal/engine"
	"github.com/lonehog/linkedinJobScrapper/internal/pipeline"
	"github.com/lonehog/linkedinJobScrapper/internal/reporter"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config.json")
	timeout := flag.Duration("timeout", 30*time.Minute, "wall-clock budget for the run")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, ForceColors: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	log.Infof("🔧 Config loaded: %d queries, max %d pages each", len(cfg.SearchQueries), cfg.MaxPagesPerQuery)

	tg, err := reporter.FromEnv()
	if err != nil {
		log.Warnf("Telegram reporter disabled: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Info("🚀 Starting scrape run")
	result := engine.New(cfg).Run(ctx, engine.RunParams{})

	if err := pipeline.WriteResult(cfg.OutputPath, cfg.OutputFormat, result); err != nil {
		log.Errorf("❌ Output write failed: %v", err)
	}

	if tg != nil {
		_ = tg.SendSummary(result)
	}

	if !result.Success {
		log.Fatalf("❌ Run failed: %s", result.Message)
	}
	log.Infof("✅ Done: %s", result.Message)
}
