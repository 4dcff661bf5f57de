package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"

	"distill/internal/browser"
	"distill/internal/cache"
	"distill/internal/config"
	"distill/internal/crawler"
	"distill/internal/credential"
	"distill/internal/fetch"
	"distill/internal/httpapi"
	"distill/internal/jobs"
	"distill/internal/llm"
	"distill/internal/migrate"
	"distill/internal/model"
	"distill/internal/ratelimit"
	"distill/internal/robots"
	"distill/internal/search"
	"distill/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.Load(*configPath)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)

	rootCtx := context.Background()
	if cfg.Auth.Enabled {
		for _, k := range cfg.Auth.APIKeys {
			if err := st.EnsureCredential(rootCtx, credential.Hash(k.Key), k.Name, k.Scopes, k.RateLimitPerMin); err != nil {
				log.Fatalf("seed api key %q failed: %v", k.Name, err)
			}
		}
	}

	var redisClient *redis.Client
	if cfg.Auth.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("invalid redis.url: %v", err)
		}
		redisClient = redis.NewClient(opts)
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.Fetch.TimeoutMs) * time.Millisecond}
	robotsOracle := robots.New(httpClient, cfg.Fetch.UserAgent)
	dnsResolver := &net.Resolver{}
	plainFetcher := fetch.New(fetch.Config{
		UserAgent:     cfg.Fetch.UserAgent,
		TimeoutMs:     cfg.Fetch.TimeoutMs,
		MaxRetries:    cfg.Fetch.MaxRetries,
		BackoffBaseMs: cfg.Fetch.BackoffBaseMs,
		BackoffCapMs:  cfg.Fetch.BackoffCapMs,
		MaxBodyBytes:  cfg.Fetch.MaxBodyBytes,
		Resolver:      dnsResolver,
	})

	var browserFetcher *browser.Fetcher
	if cfg.Rod.Enabled {
		pool, err := browser.NewPool(cfg.Rod.PoolSize)
		if err != nil {
			log.Fatalf("browser pool init failed: %v", err)
		}
		browserFetcher = browser.New(pool, time.Duration(cfg.Rod.TimeoutMs)*time.Millisecond)
	}

	pageCache := cache.New(redisClient, st,
		time.Duration(cfg.Cache.HotTTLSeconds)*time.Second,
		time.Duration(cfg.Cache.MaxAgeMinutes)*time.Minute)

	throttle := ratelimit.NewDomainThrottle(cfg.RateLimit.DomainMaxConcurrent,
		time.Duration(cfg.RateLimit.DomainMinDelayMs)*time.Millisecond)

	crawlerDeps := crawler.Deps{
		Fetcher:        plainFetcher,
		BrowserFetcher: browserFetcher,
		Cache:          pageCache,
		Robots:         robotsOracle,
		Throttle:       throttle,
		RespectRobots:  cfg.Robots.Respect,
		Resolver:       dnsResolver,
	}

	var searchProvider search.Provider
	if cfg.Search.Enabled {
		searchProvider, err = search.NewProviderFromConfig(cfg)
		if err != nil {
			log.Fatalf("search provider init failed: %v", err)
		}
	}

	llmClientSource := func(provider, model string) (llm.Client, llm.Provider, string, error) {
		return llm.NewClientFromConfig(cfg, provider, model)
	}

	executors := jobs.Executors{
		model.JobTypeMap:          &jobs.MapExecutor{Deps: crawlerDeps, Store: st, Logger: logger},
		model.JobTypeAgentExtract: &jobs.AgentExtractExecutor{Deps: crawlerDeps, Store: st, ClientSource: llmClientSource, Logger: logger},
		model.JobTypeSearchScrape: &jobs.SearchScrapeExecutor{Deps: crawlerDeps, Store: st, Search: searchProvider, Logger: logger},
	}

	runner := jobs.NewRunner(cfg, st, executors)
	runnerCtx, cancelRunner := context.WithCancel(rootCtx)
	defer cancelRunner()
	go runner.Start(runnerCtx)

	srv := httpapi.NewServer(cfg, st, crawlerDeps, llmClientSource, searchProvider, redisClient, logger)
	if err := srv.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
