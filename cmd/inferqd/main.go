package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/psilva81/inferq/pkg/analyzer"
	"github.com/psilva81/inferq/pkg/api"
	"github.com/psilva81/inferq/pkg/archive"
	"github.com/psilva81/inferq/pkg/config"
	"github.com/psilva81/inferq/pkg/logging"
	"github.com/psilva81/inferq/pkg/metrics"
	"github.com/psilva81/inferq/pkg/ratelimit"
	"github.com/psilva81/inferq/pkg/scheduler"
	"github.com/psilva81/inferq/pkg/shutdown"
	"github.com/psilva81/inferq/pkg/telemetry"
	tlsutil "github.com/psilva81/inferq/pkg/tls"
	"github.com/psilva81/inferq/pkg/tracing"
)

const probeInterval = 5 * time.Second

func main() {
	// Command-line flags override the config file
	configPath := flag.String("config", "", "Path to YAML config file")
	listenAddr := flag.String("listen", "", "API listen address (default :8080)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (default :9090)")
	apiKeyFlag := flag.String("api-key", "", "API key for authentication (default: INFERQ_API_KEY env var, empty disables auth)")
	endpointURL := flag.String("endpoint", "", "Model endpoint URL (OpenAI-compatible chat completions)")
	modelName := flag.String("model", "", "Model name sent to the endpoint")
	workers := flag.Int("workers", 0, "Worker pool size (0 uses config value)")
	queueSize := flag.Int("queue-size", 0, "Max pending requests before submissions are rejected (0 uses config value)")
	archivePath := flag.String("archive", "", "Enable the SQLite archive at the given path")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	useTLS := flag.Bool("tls", false, "Serve the API over TLS")
	certFile := flag.String("cert", "", "TLS certificate file (default certs/inferqd.crt)")
	keyFile := flag.String("key", "", "TLS key file (default certs/inferqd.key)")
	generateCert := flag.Bool("generate-cert", false, "Generate a self-signed certificate and exit")
	certHosts := flag.String("cert-hosts", "", "Comma-separated hostnames or IPs to include in certificate SANs")
	printConfig := flag.Bool("print-config", false, "Print an example config file and exit")
	flag.Parse()

	if *printConfig {
		fmt.Print(config.ExampleConfig)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Get API key from flag or environment variable
	apiKey := *apiKeyFlag
	if apiKey == "" {
		apiKey = os.Getenv("INFERQ_API_KEY")
	}
	if apiKey != "" {
		cfg.Server.APIKey = apiKey
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}
	if *endpointURL != "" {
		cfg.Analyzer.EndpointURL = *endpointURL
	}
	if *modelName != "" {
		cfg.Analyzer.Model = *modelName
	}
	if *workers > 0 {
		cfg.Scheduler.MaxWorkers = *workers
	}
	if *queueSize > 0 {
		cfg.Scheduler.MaxQueueSize = *queueSize
	}
	if *archivePath != "" {
		cfg.Archive.Enabled = true
		cfg.Archive.Backend = "sqlite"
		cfg.Archive.Path = *archivePath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *useTLS {
		cfg.Server.TLS.Enabled = true
	}
	if *certFile != "" {
		cfg.Server.TLS.CertFile = *certFile
	}
	if *keyFile != "" {
		cfg.Server.TLS.KeyFile = *keyFile
	}

	if *generateCert {
		log.Println("Generating self-signed certificate...")
		if err := os.MkdirAll(filepath.Dir(cfg.Server.TLS.CertFile), 0755); err != nil {
			log.Fatalf("Failed to create certs directory: %v", err)
		}
		var sans []string
		for _, host := range strings.Split(*certHosts, ",") {
			if host = strings.TrimSpace(host); host != "" {
				sans = append(sans, host)
			}
		}
		if err := tlsutil.GenerateSelfSignedCert(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, "inferqd", sans...); err != nil {
			log.Fatalf("Failed to generate certificate: %v", err)
		}
		log.Println("Certificate generated successfully")
		log.Printf("  Certificate: %s", cfg.Server.TLS.CertFile)
		log.Printf("  Key: %s", cfg.Server.TLS.KeyFile)
		return
	}

	schedCfg, err := cfg.ToScheduler()
	if err != nil {
		log.Fatalf("Invalid scheduler config: %v", err)
	}
	modelCfg, err := cfg.ToAnalyzer()
	if err != nil {
		log.Fatalf("Invalid analyzer config: %v", err)
	}
	sessionTTL, err := cfg.SessionTTL()
	if err != nil {
		log.Fatalf("Invalid server config: %v", err)
	}

	log.Println("Starting inferq analysis scheduler daemon")
	log.Printf("Listen: %s", cfg.Server.ListenAddr)
	log.Printf("Metrics: %s", cfg.Server.MetricsAddr)
	log.Printf("Workers: %d (queue capacity %d)", schedCfg.MaxWorkers, schedCfg.MaxQueueSize)
	log.Printf("Model endpoint: %s (model: %s)", modelCfg.EndpointURL, modelCfg.Model)

	if cfg.Server.APIKey != "" {
		log.Println("API authentication enabled")
	} else {
		log.Println("WARNING: API authentication disabled")
		log.Println("Set INFERQ_API_KEY or use --api-key for production deployments")
	}

	var tlsConfig *tls.Config
	if cfg.Server.TLS.Enabled {
		if _, err := os.Stat(cfg.Server.TLS.CertFile); os.IsNotExist(err) {
			log.Printf("Certificate file not found: %s", cfg.Server.TLS.CertFile)
			log.Println("Generating self-signed certificate...")
			if err := os.MkdirAll(filepath.Dir(cfg.Server.TLS.CertFile), 0755); err != nil {
				log.Fatalf("Failed to create certs directory: %v", err)
			}
			if err := tlsutil.GenerateSelfSignedCert(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, "inferqd"); err != nil {
				log.Fatalf("Failed to generate certificate: %v", err)
			}
		}
		tlsConfig, err = tlsutil.LoadServerConfig(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile,
			cfg.Server.TLS.ClientCAFile, cfg.Server.TLS.RequireClientCert)
		if err != nil {
			log.Fatalf("Failed to load TLS config: %v", err)
		}
		log.Println("TLS enabled")
		if cfg.Server.TLS.RequireClientCert {
			log.Println("Client certificates required (mTLS)")
		}
	}

	mgr := shutdown.New(30 * time.Second)

	// Tracing flushes last so spans from the drain survive
	provider, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	mgr.Register(provider.Shutdown)

	// Access log file, when enabled
	var accessLog *logging.Logger
	if cfg.Logging.File {
		accessLog, err = logging.NewFileLogger("inferqd", "access", logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSONFormat)
		if err != nil {
			log.Fatalf("Failed to open access log: %v", err)
		}
		mgr.Register(shutdown.CloseResource(accessLog, "access log"))
		go rotateLoop(accessLog, cfg.Logging.MaxSizeMB*1024*1024, mgr.Done())
	}

	probe := telemetry.NewProbe(probeInterval)
	probe.Start()
	mgr.Register(func(ctx context.Context) error {
		probe.Stop()
		return nil
	})

	model, err := analyzer.New(modelCfg)
	if err != nil {
		log.Fatalf("Failed to create analyzer: %v", err)
	}

	var archiver archive.Archive
	if cfg.Archive.Enabled {
		archCfg, aErr := cfg.ToArchive()
		if aErr != nil {
			log.Fatalf("Invalid archive config: %v", aErr)
		}
		archiver, err = archive.New(archCfg)
		if err != nil {
			log.Fatalf("Failed to open archive: %v", err)
		}
		log.Printf("Archive enabled (backend: %s)", archCfg.Backend)
		mgr.Register(shutdown.CloseResource(archiver, "archive"))
	}

	exporter := metrics.NewExporter(nil)

	opts := []scheduler.Option{
		scheduler.WithTelemetry(probe),
		scheduler.WithSink(exporter),
	}
	if archiver != nil {
		opts = append(opts, scheduler.WithArchiver(archiver))
	}
	sched, err := scheduler.New(schedCfg, model, opts...)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	exporter.SetSource(sched)
	sched.Start()
	mgr.Register(func(ctx context.Context) error {
		timeout := 25 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		return sched.Shutdown(timeout)
	})

	serverOpts := []api.Option{
		api.WithSessionTTL(sessionTTL),
		api.WithHostProbe(probe),
	}
	if cfg.Server.APIKey != "" {
		serverOpts = append(serverOpts, api.WithAPIKey(cfg.Server.APIKey))
	}
	if cfg.Tracing.Enabled {
		serverOpts = append(serverOpts, api.WithTraceMiddleware(tracing.HTTPMiddleware(provider)))
	}
	if accessLog != nil {
		serverOpts = append(serverOpts, api.WithAccessLogger(accessLog))
	}
	if tlsConfig != nil {
		serverOpts = append(serverOpts, api.WithTLSConfig(tlsConfig))
	}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(cfg.RateLimit.RequestsPerSec, cfg.RateLimit.Burst)
		serverOpts = append(serverOpts, api.WithRateLimiter(limiter))
		log.Printf("Rate limiting enabled (%.1f req/s, burst %d)", cfg.RateLimit.RequestsPerSec, cfg.RateLimit.Burst)

		cleanupEvery, cErr := cfg.RateLimitCleanupInterval()
		if cErr != nil {
			log.Fatalf("Invalid rate limit config: %v", cErr)
		}
		if cleanupEvery <= 0 {
			cleanupEvery = 10 * time.Minute
		}
		go limiterCleanupLoop(limiter, cleanupEvery, mgr.Done())
	}
	server := api.NewServer(sched, serverOpts...)

	// Metrics on its own listener so scrapes bypass auth and rate limits
	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", exporter).Methods("GET")
	metricsRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods("GET")
	metricsSrv := &http.Server{
		Addr:         cfg.Server.MetricsAddr,
		Handler:      metricsRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	mgr.Register(shutdown.StopHTTPServer(metricsSrv, "metrics"))
	go func() {
		log.Printf("Metrics server listening on %s", cfg.Server.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	mgr.Register(shutdown.StopHTTPServer(server, "API"))
	go func() {
		log.Printf("API server listening on %s", cfg.Server.ListenAddr)
		log.Println("API endpoints:")
		log.Println("  POST   /api/v1/analyses")
		log.Println("  GET    /api/v1/analyses/{id}")
		log.Println("  DELETE /api/v1/analyses/{id}")
		log.Println("  GET    /api/v1/stats")
		log.Println("  POST   /api/v1/sessions")
		log.Println("  GET    /health")
		if err := server.Start(cfg.Server.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	mgr.Wait()
	mgr.Shutdown()
	log.Println("inferqd stopped")
}

// rotateLoop checks the access log size hourly and rotates past maxBytes
func rotateLoop(l *logging.Logger, maxBytes int64, done <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := l.RotateIfNeeded(maxBytes); err != nil {
				log.Printf("Log rotation failed: %v", err)
			}
		case <-done:
			return
		}
	}
}

// limiterCleanupLoop drops per-caller limiters idle for longer than interval
func limiterCleanupLoop(l *ratelimit.Limiter, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := l.CleanupOldLimiters(interval); n > 0 {
				log.Printf("[Cleanup] Dropped %d idle rate limiters", n)
			}
		case <-done:
			return
		}
	}
}
