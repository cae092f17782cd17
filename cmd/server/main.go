package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/avasquez-dev/go-token-service/credential"
	"github.com/avasquez-dev/go-token-service/internal/config"
	"github.com/avasquez-dev/go-token-service/server"
	"github.com/avasquez-dev/go-token-service/token"
	"github.com/avasquez-dev/go-token-service/token/refresh"
	"github.com/avasquez-dev/go-token-service/token/refresh/postgresrepo"
	"github.com/avasquez-dev/go-token-service/token/refresh/repofake"
	userfake "github.com/avasquez-dev/go-token-service/users/repofake"
	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	displayAppname(c.GetAppName())

	secret := c.GetSecretKey()
	if secret == "" {
		return errors.New("SECRET_KEY must be set")
	}

	codec, err := token.NewCodec(token.NewHMACSigner(secret), token.Config{
		AccessTTL:     c.GetAccessTokenTTL(),
		RefreshTTL:    c.GetRefreshTokenTTL(),
		AccessIssuer:  c.GetAccessTokenIssuer(),
		RefreshIssuer: c.GetRefreshTokenIssuer(),
		Leeway:        c.GetTokenLeeway(),
	})
	if err != nil {
		return fmt.Errorf("token.NewCodec: %w", err)
	}

	hasher, err := credential.NewHasher(credential.DefaultParams())
	if err != nil {
		return fmt.Errorf("credential.NewHasher: %w", err)
	}

	store, err := newRefreshStore(c)
	if err != nil {
		return fmt.Errorf("refresh store: %w", err)
	}

	directory := userfake.NewFakeDirectory()

	manager, err := token.NewManager(codec, hasher, store, directory,
		token.WithLogger(log.Logger))
	if err != nil {
		return fmt.Errorf("token.NewManager: %w", err)
	}

	srv, err := server.New(c, manager, directory)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

// newRefreshStore opens the PostgreSQL store when DATABASE_DSN is set and
// falls back to the in-memory store otherwise. The in-memory store loses
// every session on restart; fine for development, not for production.
func newRefreshStore(c config.Config) (refresh.Store, error) {
	dsn := c.GetDatabaseDSN()
	if dsn == "" {
		log.Warn().Msg("DATABASE_DSN not set, using in-memory refresh store")
		return repofake.NewFakeRefreshStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := postgresrepo.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("connected to postgres refresh store")
	return store, nil
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
