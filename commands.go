package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"verifytx_gateway/internal/httpapi"
	"verifytx_gateway/internal/maintenance"
	"verifytx_gateway/internal/model"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			log.Info("Starting VerifyTX gateway")

			if migrate {
				db, err := a.database(ctx)
				if err != nil {
					return err
				}
				if err := runMigrations(db, log); err != nil {
					return err
				}
			}

			svc, history, err := a.verificationService(ctx)
			if err != nil {
				return err
			}
			client, err := a.apiClient(ctx)
			if err != nil {
				return err
			}

			events, err := a.events()
			if err != nil {
				return err
			}
			err = events.SubscribeToVerificationEvents(ctx, func(event *model.VerificationEvent) {
				log.Info("Received verification event",
					zap.String("event", string(event.Event)),
					zap.Int64("form_id", event.FormID),
					zap.Int64("entry_id", event.EntryID))
			})
			if err != nil {
				log.Error("Failed to subscribe to verification events", zap.Error(err))
			}

			if cfg.Maintenance.Enabled() {
				scheduler := maintenance.NewScheduler(history, log)
				if err := scheduler.Start(cfg.Maintenance.Schedule); err != nil {
					return err
				}
				defer scheduler.Stop()
			}

			router := httpapi.NewRouter(httpapi.NewHandler(svc, client, log))

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			server := &http.Server{
				Addr:    addr,
				Handler: router,
			}

			log.Info("Starting server", zap.String("address", addr))

			errCh := make(chan error, 1)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-quit:
			case err := <-errCh:
				return fmt.Errorf("failed to start server: %w", err)
			}

			log.Info("Shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("Server forced to shutdown", zap.Error(err))
			}

			log.Info("Server exited")
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "run migrations before serving")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the verification and cache tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			db, err := a.database(cmd.Context())
			if err != nil {
				return err
			}
			return runMigrations(db, log)
		},
	}
}

func newVerifyCmd() *cobra.Command {
	var (
		fields  map[string]string
		formID  int64
		entryID int64
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify insurance eligibility for one set of form fields",
		Example: "  verifytx-gateway verify -f member_id=M123 -f date_of_birth=1990-01-15 -f payer_id=60054 " +
			"-f first_name=John -f last_name=Doe",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, _, err := a.verificationService(cmd.Context())
			if err != nil {
				return err
			}

			result := svc.Verify(cmd.Context(), fields, formID, entryID)
			out := httpapi.VerifyResponse{Result: result, Display: svc.FormatForDisplay(result)}
			if err := printJSON(cmd, out); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("verification failed: %s", result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringToStringVarP(&fields, "field", "f", nil, "form field as key=value (repeatable)")
	cmd.Flags().Int64Var(&formID, "form-id", 0, "form the verification belongs to")
	cmd.Flags().Int64Var(&entryID, "entry-id", 0, "entry the verification belongs to")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func newPayersCmd() *cobra.Command {
	var (
		search string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "payers",
		Short: "List payers known to VerifyTX",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}

			payers, err := client.ListPayers(cmd.Context(), search, limit)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(payers))
			return err
		},
	}

	cmd.Flags().StringVarP(&search, "search", "q", "", "filter payers by name")
	cmd.Flags().IntVarP(&limit, "limit", "l", 100, "maximum number of payers")
	return cmd
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the configured API credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}

			if err := client.TestConnection(cmd.Context()); err != nil {
				return fmt.Errorf("connection test failed: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Connection successful")
			return err
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Purge verification history past retention and expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			cache, err := a.cache(cmd.Context())
			if err != nil {
				return err
			}
			history, err := a.history(cmd.Context(), cache)
			if err != nil {
				return err
			}

			res, err := maintenance.RunOnce(cmd.Context(), history, log)
			if res != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "history purged: %d, cache purged: %d\n", res.HistoryPurged, res.CachePurged)
			}
			return err
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
