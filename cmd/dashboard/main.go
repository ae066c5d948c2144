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
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seatwise/dashboard/api"
	"github.com/seatwise/dashboard/broadcast"
	"github.com/seatwise/dashboard/internal/config"
	"github.com/seatwise/dashboard/internal/metrics"
	"github.com/seatwise/dashboard/reservation"
	"github.com/seatwise/dashboard/schedule"
	"github.com/seatwise/dashboard/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running dashboard")
	}
	log.Info().Msg("Dashboard stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment")
	}
	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	if c.GetTenantID() == "" {
		return errors.New("TENANT_ID is required")
	}

	apiClient := api.NewClient(c.GetAPIBaseURL(), nil)
	sessions, err := session.NewManager(
		apiClient,
		session.NewFileStore(c.GetCredentialFile()),
		session.WithOnUnauthenticated(func(reason error) {
			// The single redirect-to-login side effect. A headless runner
			// can only surface it and stop.
			log.Warn().AnErr("reason", reason).Msg("Session cleared; re-authentication required")
		}),
	)
	if err != nil {
		return err
	}
	apiClient.SetTokenSource(sessions)

	// A one-time login token arrives out of band and must not be reusable
	// afterwards, so it is removed from the environment before anything
	// else can observe it.
	oneTimeToken := os.Getenv("LOGIN_TOKEN")
	_ = os.Unsetenv("LOGIN_TOKEN")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sessions.Establish(ctx, oneTimeToken); err != nil {
		return fmt.Errorf("session establish: %w", err)
	}
	defer sessions.Close()

	_, credential := sessions.Current()
	tenantID := c.GetTenantID()
	if credential != nil && credential.TenantID != "" {
		tenantID = credential.TenantID
	}
	loc := time.Local
	if c.GetTimeZone() != "" {
		if parsed, err := time.LoadLocation(c.GetTimeZone()); err == nil {
			loc = parsed
		}
	}
	today := schedule.Today(time.Now(), loc)

	hub := broadcast.NewHub()
	synchronizer, err := reservation.NewSynchronizer(
		apiClient,
		hub,
		tenantID,
		today,
		reservation.WithEditable(!c.GetReadOnly()),
		reservation.WithPollInterval(c.GetPollInterval()),
		reservation.WithAuthEscalation(sessions.Invalidate),
		reservation.WithOnUpdate(func(rows []reservation.Reservation) {
			counts := schedule.Metrics(rows, loc, time.Now())
			log.Info().
				Int("rows", len(rows)).
				Int("today", counts.Today).
				Int("week", counts.ThisWeek).
				Int("month", counts.ThisMonth).
				Msg("Reservations updated")
		}),
	)
	if err != nil {
		return err
	}

	if err := synchronizer.Start(ctx); err != nil {
		return fmt.Errorf("synchronizer start: %w", err)
	}
	defer synchronizer.Close()

	server := &http.Server{Addr: c.GetPort(), Handler: opsRouter()}
	go listenAndServe(server)

	<-ctx.Done()
	return shutdown(server)
}

func opsRouter() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", metrics.Handler())
	return router
}

func listenAndServe(server *http.Server) {
	log.Info().Msgf("Ops server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Err(err).Msg("Ops server failed")
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func setupLogging(c config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
