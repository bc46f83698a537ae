package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campustrace/internal/alertfeed"
	"campustrace/internal/campus"
	"campustrace/internal/config"
	"campustrace/internal/feedclient"
	"campustrace/internal/httpmiddleware"
	"campustrace/internal/queue"
	"campustrace/internal/store"
	"campustrace/internal/timeline"
)

var searchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "campustrace_entity_searches_total",
	Help: "Entity searches served, by outcome.",
}, []string{"outcome"})

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect failed: %w", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campustrace:searches")
	}

	alertCache := loadAlerts(cfg)
	log.Printf("alert feed ready: %d alerts", alertCache.Len())

	repo := campus.NewRepository(db.Client)
	resolver := campus.NewService(repo, alertCache, cfg.LookupTimeout)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.GET("/search/entity", searchEntityHandler(resolver, q))
	r.GET("/search/entity/timeline", searchTimelineHandler(resolver))

	// profile photos by face id convention: /images/<face_id>.jpg
	r.Static("/images", cfg.ImageDir)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// loadAlerts builds the read-only alert cache: predictor service when
// configured, local feed file otherwise. Either path failing degrades to
// an empty set; alerts are a supplementary feed, never a startup blocker.
func loadAlerts(cfg config.App) *alertfeed.Cache {
	if cfg.PredictorURL != "" && !cfg.PredictorSkip {
		client := feedclient.New(cfg.PredictorURL, false)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		alerts, err := client.FetchAlerts(ctx)
		if err == nil {
			return alertfeed.NewCache(alerts)
		}
		log.Printf("warning: predictor fetch failed, falling back to file: %v", err)
	}

	alerts, err := alertfeed.Load(cfg.AlertFeedPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("warning: alert feed %s not found, continuing without alerts", cfg.AlertFeedPath)
		} else {
			log.Printf("warning: alert feed %s unreadable, continuing without alerts: %v", cfg.AlertFeedPath, err)
		}
		return alertfeed.NewCache(nil)
	}
	return alertfeed.NewCache(alerts)
}

// searchEntityHandler serves the raw cross-source bundle for one entity.
func searchEntityHandler(resolver *campus.Service, q queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		entityID := c.Query("entityId")
		if entityID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'entityId' parameter."})
			return
		}

		bundle, err := resolver.Resolve(c.Request.Context(), entityID)
		if err != nil {
			if errors.Is(err, campus.ErrNotFound) {
				searchOutcomes.WithLabelValues("not_found").Inc()
				c.JSON(http.StatusNotFound, gin.H{
					"success": false,
					"message": fmt.Sprintf("Entity ID '%s' not found in profiles.", campus.Normalize(entityID)),
				})
				return
			}
			searchOutcomes.WithLabelValues("error").Inc()
			log.Printf("entity resolution failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error during data linking."})
			return
		}
		searchOutcomes.WithLabelValues("found").Inc()

		publishAudit(c.Request.Context(), q, bundle)

		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"profile":  bundle.Profile,
			"activity": bundle.Activity,
		})
	}
}

// searchTimelineHandler serves the normalized, time-ordered view of the
// same bundle. The timeline is always present on success, possibly empty.
func searchTimelineHandler(resolver *campus.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		entityID := c.Query("entityId")
		if entityID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'entityId' parameter."})
			return
		}

		bundle, err := resolver.Resolve(c.Request.Context(), entityID)
		if err != nil {
			if errors.Is(err, campus.ErrNotFound) {
				searchOutcomes.WithLabelValues("not_found").Inc()
				c.JSON(http.StatusNotFound, gin.H{
					"success": false,
					"message": fmt.Sprintf("Entity ID '%s' not found in profiles.", campus.Normalize(entityID)),
				})
				return
			}
			searchOutcomes.WithLabelValues("error").Inc()
			log.Printf("entity resolution failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error during data linking."})
			return
		}
		searchOutcomes.WithLabelValues("found").Inc()

		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"entityId": bundle.Profile.EntityID,
			"timeline": timeline.Build(bundle),
		})
	}
}

func publishAudit(ctx context.Context, q queue.Queue, bundle campus.Bundle) {
	rec := campus.SearchAudit{
		EntityID:   bundle.Profile.EntityID,
		SearchedAt: time.Now().UTC(),
		EventCount: bundle.Activity.EventCount(),
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := q.Publish(ctx, queue.Message{Type: "search", Body: body}); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
