package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sitewatch/pkg/bucket"
	"sitewatch/pkg/capture"
	"sitewatch/pkg/capture/browser"
	"sitewatch/pkg/config"
	"sitewatch/pkg/log"
	"sitewatch/pkg/monitor"
	"sitewatch/pkg/objectstore"
	"sitewatch/pkg/scheduler"
	"sitewatch/pkg/server"
	"sitewatch/pkg/store/disk"
)

const (
	dataDirPerm         = 0750
	defaultStoreTimeout = 30 * time.Second
	stopTimeout         = 30 * time.Second
	logMaxSizeMB        = 50
	logMaxBackups       = 5
	scheduleOff         = "off"
)

//go:embed VERSION
var Version string

type options struct {
	port            string
	dataDir         string
	webDir          string
	sitesPath       string
	schedule        string
	pacing          time.Duration
	captureMode     string
	captureEndpoint string
	captureTimeout  time.Duration
	chromeURL       string
	storeMode       string
	storeEndpoint   string
	storeTimeout    time.Duration
	publicURL       string
	gateway         bool
	debug           bool
	debugAddr       string
	logFile         string
}

func parseFlags() *options {
	opts := &options{}
	flag.StringVar(&opts.port, "port", "3000", "Server port")
	flag.StringVar(&opts.dataDir, "data", "data", "Data directory for screenshots and the bucket index")
	flag.StringVar(&opts.webDir, "web", "web", "Dashboard assets directory")
	flag.StringVar(&opts.sitesPath, "sites", "config/sites.json", "Sites document (.json, .yaml or .yml)")
	flag.StringVar(&opts.schedule, "schedule", "", "Cron schedule for checks, \"off\" disables (default $CHECK_SCHEDULE or \"0 */6 * * *\")")
	flag.DurationVar(&opts.pacing, "pacing", monitor.DefaultPacing, "Pause between sites during a check run")
	flag.StringVar(&opts.captureMode, "capture", "api", "Capture backend: api or browser")
	flag.StringVar(&opts.captureEndpoint, "capture-endpoint", capture.DefaultAPIEndpoint, "Screenshot API endpoint")
	flag.DurationVar(&opts.captureTimeout, "capture-timeout", capture.DefaultTimeout, "Timeout for a single capture")
	flag.StringVar(&opts.chromeURL, "chrome-url", "", "DevTools URL of a running Chrome (browser capture); empty launches one")
	flag.StringVar(&opts.storeMode, "store", "local", "Object store: local, remote or memory")
	flag.StringVar(&opts.storeEndpoint, "store-endpoint", "", "Bucket gateway URL (remote store)")
	flag.DurationVar(&opts.storeTimeout, "store-timeout", defaultStoreTimeout, "Timeout for a single gateway request")
	flag.StringVar(&opts.publicURL, "public-url", "", "Base URL for screenshot references (empty keeps them relative)")
	flag.BoolVar(&opts.gateway, "gateway", false, "Expose the local store through the bucket API")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&opts.debugAddr, "debug-addr", "localhost:6060", "pprof address when -debug is set")
	flag.StringVar(&opts.logFile, "log-file", "", "Also write JSON logs to this rotated file")
	flag.Parse()

	if opts.schedule == "" {
		opts.schedule = os.Getenv("CHECK_SCHEDULE")
	}
	if opts.schedule == "" {
		opts.schedule = scheduler.DefaultSpec
	}
	return opts
}

// objectStore holds the selected store and whatever must be closed with it.
type objectStore struct {
	objectstore.Store
	local *objectstore.Local
	index *bucket.Store
}

func (o *objectStore) Close() error {
	if o.index != nil {
		return o.index.Close()
	}
	return nil
}

func openObjectStore(ctx context.Context, opts *options) (*objectStore, error) {
	switch opts.storeMode {
	case "local":
		if err := os.MkdirAll(opts.dataDir, dataDirPerm); err != nil {
			return nil, err
		}

		index, err := bucket.NewStore(filepath.Join(opts.dataDir, "buckets.db"))
		if err != nil {
			return nil, err
		}
		if err := index.Initialize(ctx); err != nil {
			_ = index.Close()
			return nil, err
		}

		local := objectstore.NewLocal(disk.New(filepath.Join(opts.dataDir, "objects")), index, opts.publicURL)
		return &objectStore{Store: local, local: local, index: index}, nil
	case "remote":
		if !strings.HasPrefix(opts.storeEndpoint, "http://") && !strings.HasPrefix(opts.storeEndpoint, "https://") {
			return nil, fmt.Errorf("-store-endpoint must start with http:// or https://, got %q", opts.storeEndpoint)
		}
		return &objectStore{Store: objectstore.NewRemote(opts.storeEndpoint, opts.publicURL, opts.storeTimeout)}, nil
	case "memory":
		log.Warn().Msg("Using in-memory object store, screenshots are lost on exit")
		return &objectStore{Store: objectstore.NewMemory(opts.publicURL)}, nil
	default:
		return nil, fmt.Errorf("unknown -store %q", opts.storeMode)
	}
}

// capturer returns the backend and a cleanup func.
func newCapturer(opts *options) (capture.Capturer, func(), error) {
	switch opts.captureMode {
	case "api":
		apiKey := os.Getenv("SCREENSHOT_API_KEY")
		if apiKey == "" {
			log.Warn().Msg("SCREENSHOT_API_KEY is not set, captures will fail")
		}
		return capture.NewAPIClient(opts.captureEndpoint, apiKey, opts.captureTimeout), func() {}, nil
	case "browser":
		c := browser.New(browser.Config{RemoteURL: opts.chromeURL, NavigationTimeout: opts.captureTimeout})
		return c, func() {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close browser")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown -capture %q", opts.captureMode)
	}
}

func main() {
	_ = log.Logger

	opts := parseFlags()
	if opts.debug {
		log.SetDebugMode()
		log.Debug().Msg("Debug mode enabled")
	}
	if opts.logFile != "" {
		if err := log.SetOutputFile(opts.logFile, logMaxSizeMB, logMaxBackups); err != nil {
			log.Fatal().Err(err).Str("log_file", opts.logFile).Msg("Failed to open log file")
		}
	}

	if _, err := os.Stat(opts.webDir); os.IsNotExist(err) {
		log.Warn().Str("web_dir", opts.webDir).Msg("Web directory does not exist, dashboard disabled")
	}

	os.Exit(run(opts))
}

func run(opts *options) int {
	ctx := context.Background()
	defer func() { _ = log.Close() }()

	objects, err := openObjectStore(ctx, opts)
	if err != nil {
		log.Error().Err(err).Str("store", opts.storeMode).Msg("Failed to open object store")
		return 1
	}
	defer func() {
		if closeErr := objects.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close object store")
		}
	}()

	capturer, closeCapturer, err := newCapturer(opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to set up capture")
		return 1
	}
	defer closeCapturer()

	sites := config.NewFileSource(opts.sitesPath)
	service := monitor.NewService(sites, capturer, objects, monitor.WithPacing(opts.pacing))
	if err := service.Initialize(ctx); err != nil {
		log.Error().Err(err).Str("sites", opts.sitesPath).Msg("Failed to initialize monitor")
		return 1
	}
	defer service.Shutdown()

	if opts.schedule != scheduleOff {
		sched, err := scheduler.New(opts.schedule, service.TriggerCheckAll)
		if err != nil {
			log.Error().Err(err).Msg("Failed to set up schedule")
			return 1
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if err := sched.Stop(stopCtx); err != nil {
				log.Warn().Err(err).Msg("Scheduler did not stop in time")
			}
		}()
	}

	cfg := server.Config{
		WebDir:         opts.webDir,
		DataDir:        opts.dataDir,
		Version:        strings.TrimSpace(Version),
		SyncOnShutdown: objects.local != nil,
	}
	if opts.debug {
		cfg.DebugAddr = opts.debugAddr
	}
	if opts.gateway {
		if objects.local == nil {
			log.Error().Msg("-gateway requires -store local")
			return 1
		}
		cfg.Gateway = objects.local
	}

	log.Info().
		Str("sites", opts.sitesPath).
		Str("schedule", opts.schedule).
		Str("capture", opts.captureMode).
		Str("store", opts.storeMode).
		Dur("pacing", opts.pacing).
		Msg("Site monitor configured")

	srv := server.New(cfg, service, sites, objects)
	if err := srv.Start(":" + opts.port); err != nil {
		log.Error().Err(err).Msg("Server failed")
		return 1
	}

	return 0
}
