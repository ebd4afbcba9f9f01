package main

import (
	"flag"
	"os"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/lonehog/linkedinJobScrapper/internal/api"
	"github.com/lonehog/linkedinJobScrapper/internal/config"
	"github.com/lonehog/linkedinJobScrapper/internal/engine"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config.json")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, ForceColors: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	if os.Getenv("DEBUG_MODE") == "true" {
		log.SetLevel(log.DebugLevel)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	host := os.Getenv("HOST")
	if host == "" {
		host = "0.0.0.0"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	router := api.NewRouter(engine.New(cfg))

	addr := host + ":" + port
	log.Infof("🚀 Server listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}
}
