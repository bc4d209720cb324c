package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayuhito/globalping-probe/internal/certs"
	"github.com/ayuhito/globalping-probe/internal/channel"
	"github.com/ayuhito/globalping-probe/internal/config"
	"github.com/ayuhito/globalping-probe/internal/enrich"
	"github.com/ayuhito/globalping-probe/internal/health"
	"github.com/ayuhito/globalping-probe/internal/logging"
	"github.com/ayuhito/globalping-probe/internal/measure"
	"github.com/ayuhito/globalping-probe/internal/metrics"
)

const (
	defaultMetricsAddr    = "127.0.0.1:9310"
	defaultReadinessMax   = 64
	defaultChannelTimeout = 15 * time.Second
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = run(ctx, os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("globalping-probe agent")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  globalping-probe run [--config /etc/globalping/agent.yaml]")
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	defaultConfigPath := config.DefaultConfigPath
	if envPath := os.Getenv("PROBE_AGENT_CONFIG"); envPath != "" {
		defaultConfigPath = envPath
	}
	configPath := fs.String("config", defaultConfigPath, "Path to agent configuration file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Agent.DataDir == "" {
		return fmt.Errorf("agent data_dir must be configured")
	}
	if err := os.MkdirAll(cfg.Agent.DataDir, 0o700); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}

	state, err := config.LoadState(ctx, cfg.Agent.DataDir)
	if err != nil {
		return fmt.Errorf("load agent state: %w", err)
	}

	serverURL := cfg.Agent.Server
	if serverURL == "" {
		serverURL = state.Server
	}
	if serverURL == "" {
		return fmt.Errorf("server URL missing from config and state")
	}

	logger := logging.New()
	logger.Printf("agent starting (server=%s, data_dir=%s)", serverURL, cfg.Agent.DataDir)

	metricsStore := metrics.NewStore()
	healthChecker := health.NewChecker(metricsStore, defaultReadinessMax, defaultChannelTimeout*3)

	tlsConfig, err := certs.LoadClientTLSConfig(state.CertPath, state.KeyPath, state.CAPath, serverURL)
	if err != nil {
		return fmt.Errorf("load TLS config: %w", err)
	}

	if err := verifyControlChannelTLS(ctx, serverURL, state); err != nil {
		return fmt.Errorf("verify control channel TLS: %w", err)
	}

	if expiry, err := certs.ClientCertExpiry(state.CertPath); err != nil {
		logger.Printf("failed to determine certificate expiry: %v", err)
	} else {
		healthChecker.SetCertExpiry(expiry.UTC())
	}

	measurementClient := &http.Client{
		Timeout: cfg.HTTP.Timeout,
		Transport: &http.Transport{
			ForceAttemptHTTP2:   true,
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 10,
		},
	}

	asnResolver := enrich.NewCymruResolver(cfg.DNS.ASNZone)
	rdnsResolver := enrich.NewRDNSResolver(500 * time.Millisecond)

	live := &liveChannel{}

	deps := measure.Deps{
		Config:     cfg,
		Logger:     logger,
		Metrics:    metricsStore.MeasurementRecorder(),
		ASN:        asnResolver,
		RDNS:       rdnsResolver,
		HTTPClient: measurementClient,
	}
	registry := measure.NewRegistry(deps)
	dispatcher := measure.NewDispatcher(live, registry, logger, metricsStore.MeasurementRecorder())

	channelURL, err := controlChannelURL(serverURL)
	if err != nil {
		return fmt.Errorf("derive control channel URL: %w", err)
	}
	header := http.Header{}
	header.Set("X-Agent-ID", state.AgentID)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grp, groupCtx := errgroup.WithContext(runCtx)

	grp.Go(func() error {
		opts := channel.DefaultReconnectOptions()
		opts.TLSConfig = tlsConfig
		opts.OnConnected = func(ch channel.Channel) {
			live.bind(ch)
			healthChecker.ObserveChannelHeartbeat(time.Now().UTC(), nil)
			logger.Printf("control channel connected")
		}
		opts.OnDisconnected = func(err error) {
			live.bind(nil)
			healthChecker.ObserveChannelHeartbeat(time.Now().UTC(), err)
			logger.Printf("control channel disconnected: %v", err)
		}
		err := channel.RunWithReconnect(groupCtx, channelURL, header, dispatcher.Handle, metricsStore.ChannelRecorder(), opts)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	grp.Go(func() error {
		return serveMonitoring(groupCtx, defaultMetricsAddr, metricsStore, healthChecker, logger)
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		return err
	}

	logger.Printf("agent stopped")
	return nil
}

// liveChannel is a channel.Channel whose underlying connection is swapped
// out across reconnects. The dispatcher is constructed once at startup and
// binds to this indirection rather than a specific *channel.WSClient, since
// RunWithReconnect replaces the connection on every retry.
type liveChannel struct {
	mu sync.RWMutex
	ch channel.Channel
}

func (l *liveChannel) bind(ch channel.Channel) {
	l.mu.Lock()
	l.ch = ch
	l.mu.Unlock()
}

func (l *liveChannel) Emit(event string, payload any) error {
	l.mu.RLock()
	ch := l.ch
	l.mu.RUnlock()
	if ch == nil {
		return fmt.Errorf("control channel not connected")
	}
	return ch.Emit(event, payload)
}

// controlChannelURL turns the agent's configured HTTP(S) server URL into the
// websocket URL the control channel dials.
func controlChannelURL(serverURL string) (string, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	case "http":
		parsed.Scheme = "ws"
	case "wss", "ws":
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", parsed.Scheme)
	}
	if !strings.HasSuffix(parsed.Path, "/agent") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/agent"
	}
	return parsed.String(), nil
}

// verifyControlChannelTLS dials the control channel's mTLS endpoint once as
// a startup pre-flight, so a misprovisioned or expired client certificate
// fails loudly here rather than surfacing as an opaque reconnect loop.
// Skipped for non-https server URLs, which carry no TLS to verify.
func verifyControlChannelTLS(ctx context.Context, serverURL string, state config.State) error {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return err
	}
	if parsed.Scheme != "https" {
		return nil
	}

	certPEM, err := os.ReadFile(state.CertPath)
	if err != nil {
		return fmt.Errorf("read client certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(state.KeyPath)
	if err != nil {
		return fmt.Errorf("read client key: %w", err)
	}
	var caPEM []byte
	if state.CAPath != "" {
		caPEM, err = os.ReadFile(state.CAPath)
		if err != nil {
			return fmt.Errorf("read CA bundle: %w", err)
		}
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return certs.VerifyConnection(verifyCtx, serverURL, certPEM, keyPEM, caPEM)
}

func serveMonitoring(ctx context.Context, addr string, store *metrics.Store, checker *health.Checker, logger interface {
	Printf(format string, v ...any)
}) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.NewHTTPHandler(store))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		ready, reasons := checker.Ready(time.Now().UTC())
		if !ready {
			http.Error(w, strings.Join(reasons, "; "), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("metrics listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
