// Standalone authentication check: verifies credentials and connectivity
// without running a scrape. Useful before scheduling real runs.

package main

import (
	"context"
	"flag"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lonehog/linkedinJobScrapper/internal/config"
	"github.com/lonehog/linkedinJobScrapper/internal/session"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config.json")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, ForceColors: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	switch {
	case cfg.HasCookieAuth():
		log.Info("🍪 Cookie auth configured (LINKEDIN_LI_AT present)")
	case cfg.HasCredentialAuth():
		log.Info("🔐 Credential auth configured (LINKEDIN_EMAIL/PASSWORD present)")
	default:
		log.Fatal("❌ No auth method configured: set LINKEDIN_LI_AT or LINKEDIN_EMAIL/LINKEDIN_PASSWORD")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := session.NewManager(cfg).Authenticate(ctx); err != nil {
		if session.IsChallenge(err) {
			log.Fatalf("❌ Authentication blocked by an anti-bot challenge, resolve it in a browser first: %v", err)
		}
		log.Fatalf("❌ Authentication failed: %v", err)
	}
	log.Info("✅ Authentication succeeded, the scraper is ready to run")
}
