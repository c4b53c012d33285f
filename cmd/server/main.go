package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/go-chatrelay/internal/api"
	"github.com/npezzotti/go-chatrelay/internal/config"
	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/server"
	"github.com/npezzotti/go-chatrelay/internal/stats"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
	requireAuth    bool
	lookupTimeout  time.Duration
	runMigrations  bool
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS and websocket upgrades")
	flag.BoolVar(&requireAuth, "require-auth", false, "require a signed token cookie on websocket upgrades")
	flag.DurationVar(&lookupTimeout, "lookup-timeout", config.DefaultLookupTimeout, "timeout for chat authorization lookups")
	flag.BoolVar(&runMigrations, "migrate", false, "apply database migrations on startup")
	flag.Parse()

	logger := log.New(os.Stderr, "[chat-relay] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, requireAuth, lookupTimeout)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if runMigrations {
		if err := dbConn.Migrate(); err != nil {
			logger.Fatal("migrate:", err)
		}
		logger.Println("database migrations applied")
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, statsUpdater, cfg.LookupTimeout)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewRelayApp(mux, logger, chatServer, dbConn, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
