// Command keyserver runs the credential service: the HTTP API in front of
// the key store that the auth proxy consults to resolve a MAC key
// identifier to its credential record.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"yar/adminauth"
	"yar/config"
	"yar/credentials"
	"yar/keystore"
	"yar/observability/logging"
)

func main() {
	flags, err := config.ParseFlags("keyserver", os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	env := strings.TrimSpace(os.Getenv("YAR_ENV"))
	slogger := setupLogging(flags, "keyserver", env)

	gateway, err := buildGateway(flags)
	if err != nil {
		slogger.Error("configure key store", "error", err)
		os.Exit(1)
	}

	service, err := credentials.NewService(gateway)
	if err != nil {
		slogger.Error("configure credential service", "error", err)
		os.Exit(1)
	}

	guard := adminauth.NewGuard(adminauth.Config{
		Enabled:    strings.TrimSpace(os.Getenv("YAR_ADMIN_AUTH_SECRET")) != "",
		HMACSecret: os.Getenv("YAR_ADMIN_AUTH_SECRET"),
		Issuer:     os.Getenv("YAR_ADMIN_AUTH_ISSUER"),
		Audience:   os.Getenv("YAR_ADMIN_AUTH_AUDIENCE"),
		ClockSkew:  2 * time.Minute,
	}, nil)

	router := service.RouterWithGuard(guard.Middleware("creds:write"))

	addr := flags.ListenOn.String()
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
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
		slogger.Info("keyserver listening", "address", listener.Addr().String())
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

func buildGateway(flags *config.Flags) (keystore.Gateway, error) {
	if flags.KeyStore.Postgres {
		return keystore.NewPostgresGateway(flags.KeyStore.Raw)
	}
	return keystore.NewCouchGateway(flags.KeyStore.HostPort+"/"+flags.KeyStore.Database, 10*time.Second)
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
