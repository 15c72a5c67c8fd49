// Command authproxy runs the reverse proxy that authenticates inbound
// requests against the MAC scheme before forwarding them to the
// application server.
package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"yar/authproxy"
	"yar/authproxy/middleware"
	"yar/config"
	"yar/nonce"
	"yar/observability/logging"
)

func main() {
	flags, err := config.ParseFlags("authproxy", os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	env := strings.TrimSpace(os.Getenv("YAR_ENV"))
	slogger := setupLogging(flags, "authproxy", env)
	stdLogger := log.Default()

	target, err := url.Parse("http://" + flags.AppServer.String())
	if err != nil {
		slogger.Error("parse app server address", "error", err)
		os.Exit(1)
	}
	secured, upgraded, err := config.EnforceSecureScheme(env, target, false)
	if err != nil && !strings.EqualFold(env, "dev") {
		slogger.Error("enforce secure scheme for app server", "error", err)
		os.Exit(1)
	}
	if err == nil {
		target = secured
		if upgraded {
			slogger.Info("auto-upgraded app server endpoint to HTTPS")
		}
	}

	client, err := authproxy.NewClient(flags.KeyServer.String(), 5*time.Second)
	if err != nil {
		slogger.Error("configure credential service client", "error", err)
		os.Exit(1)
	}

	var persistence nonce.Persistence
	if topologyPath := strings.TrimSpace(os.Getenv("YAR_NONCE_DB")); topologyPath != "" {
		levelDB, err := nonce.NewLevelDBPersistence(topologyPath)
		if err != nil {
			slogger.Error("open nonce persistence", "error", err)
			os.Exit(1)
		}
		defer levelDB.Close()
		persistence = levelDB
	}

	checker := nonce.NewChecker(flags.MaxAge, time.Now, persistence)
	defer checker.Stop()

	pipeline := authproxy.NewPipeline(authproxy.Config{
		MaxAge:         flags.MaxAge,
		HostIfNotFound: flags.ListenOn.Host,
		PortIfNotFound: flags.ListenOn.Port,
	}, checker, client.Lookup)

	handler := authproxy.NewHandler(pipeline, target)

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   "yar",
		MetricsPrefix: "yar",
		LogRequests:   true,
		Enabled:       true,
	}, stdLogger)

	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		"proxy": {RatePerSecond: 50, Burst: 100},
	}, stdLogger)

	cors := middleware.CORS(middleware.CORSConfig{})

	chain := obs.Middleware("proxy")(limiter.Middleware("proxy")(cors(handler)))

	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.MetricsHandler())
	mux.Handle("/", chain)

	addr := flags.ListenOn.String()
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		slogger.Error("listen", "error", err)
		os.Exit(1)
	}
	go func() {
		slogger.Info("authproxy listening", "address", listener.Addr().String(), "target", target.String())
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slogger.Error("listen and serve", "error", serveErr)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slogger.Error("graceful shutdown failed", "error", err)
	}
}

func setupLogging(flags *config.Flags, service, env string) *slog.Logger {
	if flags.Syslog != "" {
		if slogger, err := logging.SetupSyslog(service, env, flags.Syslog); err == nil {
			return slogger
		}
	}
	if flags.LogFile != "" {
		return logging.SetupFile(service, env, flags.LogFile)
	}
	return logging.Setup(service, env)
}
