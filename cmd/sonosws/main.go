// sonosws — проиграть аудиоклип на колонке Sonos через локальный WebSocket API.
// --groups печатает группы, --listen поднимает HTTP-мост вместо разового клипа.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/EgorLis/sonosws/internal/config"
	"github.com/EgorLis/sonosws/internal/httpapi"
	"github.com/EgorLis/sonosws/internal/sonosws"
)

func main() {
	cfg, err := config.Load(config.Flags(os.Args[0]), os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := newLogger(cfg, os.Stderr)

	// Ctrl+C / SIGTERM отменяют текущую команду и гасят HTTP-мост
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := sonosws.New(cfg.Host, append(cfg.ClientOptions(), sonosws.WithLogger(log))...)
	defer client.Close()

	if err := run(ctx, cfg, client, log); err != nil {
		log.Error().Err(err).Str("kind", errorKind(err)).Msg("sonosws failed")
		client.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, client *sonosws.Client, log zerolog.Logger) error {
	switch {
	case cfg.Listen != "":
		return serve(ctx, cfg, client, log)
	case cfg.Groups:
		resp, err := client.GetGroups(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	default:
		if err := client.Connect(ctx); err != nil {
			return err
		}
		resp, err := client.PlayClip(ctx, cfg.URI, cfg.Volume)
		if err != nil {
			return err
		}
		log.Info().Interface("response", resp).Msg("clip played")
		return nil
	}
}

func serve(ctx context.Context, cfg *config.Config, client *sonosws.Client, log zerolog.Logger) error {
	h := httpapi.NewHandler(client, log.With().Str("component", "http").Logger())
	h.Timeout = time.Duration(cfg.MaxAttempts) * (cfg.ConnectTimeout + cfg.ResponseTimeout)
	addr := cfg.Listen
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Engine(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("device", client.URI()).Msg("http bridge listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// в терминал — человекочитаемо, иначе JSON-строки
func newLogger(cfg *config.Config, w *os.File) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out io.Writer = w
	console := cfg.LogFormat == "console" ||
		(cfg.LogFormat == "auto" && term.IsTerminal(int(w.Fd())))
	if console {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func errorKind(err error) string {
	var (
		unauthorized *sonosws.UnauthorizedError
		connErr      *sonosws.ConnectionError
		unsupported  *sonosws.UnsupportedError
		dispatchErr  *sonosws.DispatchError
	)
	switch {
	case errors.As(err, &unauthorized):
		return "unauthorized"
	case errors.As(err, &connErr):
		return "connection"
	case errors.As(err, &unsupported):
		return "unsupported"
	case errors.As(err, &dispatchErr):
		return "dispatch"
	}
	return "other"
}
