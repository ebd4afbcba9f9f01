// HTTP front-end over the collection engine.

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/lonehog/linkedinJobScrapper/internal/config"
	"github.com/lonehog/linkedinJobScrapper/internal/engine"
	"github.com/lonehog/linkedinJobScrapper/internal/scraper"
)

// Runner executes scrape runs; the engine satisfies it and tests stub it.
type Runner interface {
	Run(ctx context.Context, params engine.RunParams) scraper.ScrapeResult
}

// customRequest is the POST /jobs/custom body.
type customRequest struct {
	SearchURLs      []config.SearchQuery `json:"search_urls"`
	MaxPages        int                  `json:"max_pages"`
	FilterEasyApply *bool                `json:"filter_easy_apply"`
}

// NewRouter wires the scrape routes onto a gin engine.
func NewRouter(runner Runner) *gin.Engine {
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/jobs", func(c *gin.Context) {
		respond(c, runner.Run(c.Request.Context(), engine.RunParams{}))
	})

	r.POST("/jobs/custom", func(c *gin.Context) {
		var req customRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": fmt.Sprintf("invalid request body: %v", err),
			})
			return
		}
		respond(c, runner.Run(c.Request.Context(), engine.RunParams{
			Queries:         req.SearchURLs,
			MaxPages:        req.MaxPages,
			FilterEasyApply: req.FilterEasyApply,
		}))
	})

	r.GET("/jobs/search", func(c *gin.Context) {
		keywords := c.Query("keywords")
		if keywords == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "keywords parameter is required",
			})
			return
		}
		maxPages := 1
		if raw := c.Query("max_pages"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{
					"success": false,
					"message": "max_pages must be a positive integer",
				})
				return
			}
			maxPages = n
		}

		query := buildSearchQuery(
			keywords,
			c.DefaultQuery("location", "101282230"),
			c.DefaultQuery("experience_level", "2"),
			c.DefaultQuery("time_filter", "r3600"),
		)
		respond(c, runner.Run(c.Request.Context(), engine.RunParams{
			Queries:  []config.SearchQuery{query},
			MaxPages: maxPages,
		}))
	})

	return r
}

// buildSearchQuery assembles a single listing query from the search
// parameters, mirroring the site's own search URL grammar.
func buildSearchQuery(keywords, location, experience, timeFilter string) config.SearchQuery {
	params := url.Values{}
	params.Set("f_E", experience)
	params.Set("f_TPR", timeFilter)
	params.Set("geoId", location)
	params.Set("keywords", keywords)
	params.Set("origin", "JOB_SEARCH_PAGE_SEARCH_BUTTON")
	params.Set("refresh", "true")

	return config.SearchQuery{
		Name:        fmt.Sprintf("%s Jobs - Custom Search", keywords),
		URL:         "https://www.linkedin.com/jobs/search/?" + params.Encode(),
		Description: fmt.Sprintf("Custom search for %s jobs", keywords),
	}
}

func respond(c *gin.Context, result scraper.ScrapeResult) {
	if !result.Success {
		log.Errorf("Scrape request failed: %s", result.Message)
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusOK, result)
}
