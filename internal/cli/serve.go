package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/andy/billsink/internal/api"
	"github.com/andy/billsink/internal/jobs"
	"github.com/andy/billsink/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the reminder scheduler",
	Long: `Serve the billing API and run the background jobs: reminder dispatch
and the overdue sweep, on the schedules from the dispatcher config section.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appInstance.Config
		log := logger.WithComponent("server")

		if cfg.Server.JWTSecret == "" {
			log.Warn().Msg("server.jwt_secret is empty; owner routes will reject every request")
		}
		if cfg.Server.InternalAPIKey == "" {
			log.Warn().Msg("server.internal_api_key is empty; internal job routes are disabled")
		}

		handler := api.NewHandler(api.Services{
			Invoices:   appInstance.Invoices,
			Converter:  appInstance.Converter,
			Payments:   appInstance.Payments,
			Reminders:  appInstance.Reminders,
			Dispatcher: appInstance.Dispatcher,
		}, api.NewPortalTokens(cfg.Server.JWTSecret))

		router := api.NewRouter(handler, api.RouterConfig{
			JWTSecret:      cfg.Server.JWTSecret,
			InternalAPIKey: cfg.Server.InternalAPIKey,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
			Metrics:        appInstance.Metrics,
			Logger:         logger.WithComponent("http"),
		})

		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		noJobs, _ := cmd.Flags().GetBool("no-jobs")
		var scheduler *jobs.Scheduler
		if !noJobs {
			scheduler = jobs.NewScheduler(appInstance.Dispatcher, appInstance.Invoices, logger.WithComponent("jobs"), jobs.Config{
				DispatchSchedule: cfg.Dispatcher.Schedule,
				SweepSchedule:    cfg.Dispatcher.SweepSchedule,
			})
			if err := scheduler.Start(); err != nil {
				return err
			}
		}

		serverErr := make(chan error, 1)
		go func() {
			log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
			close(serverErr)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		var runErr error
		select {
		case sig := <-quit:
			log.Info().Str("signal", sig.String()).Msg("shutting down server")
		case err := <-serverErr:
			runErr = fmt.Errorf("server failed: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
		if scheduler != nil {
			select {
			case <-scheduler.Stop().Done():
			case <-ctx.Done():
				log.Warn().Msg("background jobs did not finish before shutdown")
			}
		}

		log.Info().Msg("server exited")
		return runErr
	},
}

var serveTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print an API token for the configured owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		token, err := api.NewOwnerToken(appInstance.Config.Server.JWTSecret, appInstance.Owner(), ttl)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		fmt.Println(token)
		return nil
	},
}

var servePortalTokenCmd = &cobra.Command{
	Use:   "portal-token [invoice_id_or_number]",
	Short: "Print a client portal token for one invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveInvoiceID(ctx, args[0])
		if err != nil {
			return err
		}
		if _, err := appInstance.Invoices.Get(ctx, appInstance.Owner(), id); err != nil {
			return err
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")
		token, err := api.NewPortalTokens(appInstance.Config.Server.JWTSecret).Issue(id, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	serveCmd.AddCommand(serveTokenCmd)
	serveCmd.AddCommand(servePortalTokenCmd)

	serveCmd.Flags().Bool("no-jobs", false, "Serve the API without running background jobs")
	serveTokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	servePortalTokenCmd.Flags().Duration("ttl", 30*24*time.Hour, "Token lifetime")
}
