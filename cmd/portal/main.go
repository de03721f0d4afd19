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

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-security-portal/internal/config"
	"github.com/jrsteele09/go-security-portal/internal/logging"
	"github.com/jrsteele09/go-security-portal/server"
	"github.com/jrsteele09/go-security-portal/server/portalsession"
	"github.com/jrsteele09/go-security-portal/tokens"
	"github.com/jrsteele09/go-security-portal/tokens/filebackend"
	"github.com/jrsteele09/go-security-portal/tokens/memorybackend"
	"github.com/jrsteele09/go-security-portal/tokens/redisbackend"
	"github.com/rs/zerolog/log"
)

const sweepInterval = time.Minute

func main() {
	c := config.New()
	logging.Setup(c.GetEnv())

	if err := run(c); err != nil {
		log.Fatal().Err(err).Msg("Error running portal")
	}
	log.Info().Msg("Portal stopped")
}

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(c.GetAppName())

	backends, closeBackends, err := tokenBackends(c)
	if err != nil {
		return err
	}
	defer closeBackends()

	opts := portalsession.Options{
		APIBaseURL: c.GetAPIBaseURL(),
		APITimeout: c.GetAPITimeout(),
		MaxAge:     c.GetMaxSessionAge(),
	}
	if key := c.GetTokenSealKey(); key != "" {
		sealer, err := tokens.NewSecretBox(key)
		if err != nil {
			return fmt.Errorf("[main run] token seal key: %w", err)
		}
		opts.Sealer = sealer
	}

	sessions := portalsession.NewInMemoryRepo(backends, opts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sessions.RunSweeper(ctx, sweepInterval)

	handler, err := server.New(c, sessions)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(srv) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

// tokenBackends opens the store that holds each portal session's token pair
func tokenBackends(c config.Config) (portalsession.TokenBackends, func(), error) {
	switch c.GetTokenStore() {
	case config.TokenStoreMemory:
		log.Info().Msg("Keeping portal session tokens in memory")
		return memorybackend.NewRepo(), func() {}, nil

	case config.TokenStoreFile:
		repo, err := filebackend.NewRepo(c.GetDataFolder())
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("folder", c.GetDataFolder()).Msg("Keeping portal session tokens on disk")
		return repo, func() {}, nil

	case config.TokenStoreRedis:
		rc, err := config.LoadRedis()
		if err != nil {
			return nil, nil, err
		}
		repo, err := redisbackend.NewRepo(rc.URL, rc.Prefix, c.GetMaxSessionAge())
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.Ping(ctx); err != nil {
			_ = repo.Close()
			return nil, nil, fmt.Errorf("[main tokenBackends] redis unreachable: %w", err)
		}
		log.Info().Str("prefix", rc.Prefix).Msg("Keeping portal session tokens in redis")
		return repo, func() { _ = repo.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("[main tokenBackends] unknown TOKEN_STORE %q", c.GetTokenStore())
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Portal listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
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
