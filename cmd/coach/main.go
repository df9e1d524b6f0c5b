// Command coach runs voice coaching sessions on the device.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CoCoMind/coco-device-sub000/internal/config"
	"github.com/CoCoMind/coco-device-sub000/internal/content"
	"github.com/CoCoMind/coco-device-sub000/internal/httpserver"
	"github.com/CoCoMind/coco-device-sub000/internal/logging"
	"github.com/CoCoMind/coco-device-sub000/internal/profile"
	"github.com/CoCoMind/coco-device-sub000/internal/session"
)

// exitCode carries a session status out of cobra to os.Exit.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	err := newRootCmd().Execute()
	var code exitCode
	switch {
	case err == nil:
	case errors.As(err, &code):
		os.Exit(int(code))
	default:
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "coach",
		Short:         "Voice cognitive-coaching session runner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newPlanCmd(), newServeCmd(), newProfileCmd())
	return root
}

func newLogger(cfg config.Config) *zap.Logger {
	log := logging.New(logging.Options{
		FilePath:   cfg.App.LogPath,
		MaxSizeMB:  cfg.App.LogMaxMB,
		Production: cfg.App.Production(),
		Debug:      cfg.App.Debug,
	})
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}
	return log.With(zap.String("device_id", cfg.Device.DeviceID))
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newRunCmd() *cobra.Command {
	var participant string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one session and exit with its status",
		Long: "Run one session and exit with its status:\n" +
			"0 success, 1 error, 2 unattended, 3 early exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if participant != "" {
				cfg.Device.ParticipantID = participant
			}
			log := newLogger(cfg)
			defer func() { _ = log.Sync() }()

			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(cfg, log)
			if err != nil {
				log.Error("startup failed", zap.Error(err))
				reportStartupFailure(ctx, cfg, newReporter(cfg, log), err, log)
				return exitCode(1)
			}
			defer a.Close()

			out := a.runner.Run(ctx)
			if out.Err != nil {
				log.Warn("session ended with error", zap.Error(out.Err))
			}
			if code := out.Status.ExitCode(); code != 0 {
				return exitCode(code)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&participant, "participant", "", "participant id (overrides PARTICIPANT_ID)")
	return cmd
}

// startFailureSender is the part of the backend client used before the
// runner exists.
type startFailureSender interface {
	SendSessionStartFailed(ctx context.Context, f session.StartFailure) error
}

// reportStartupFailure tells the backend a run died during wiring, before
// the session runner could report anything itself.
func reportStartupFailure(ctx context.Context, cfg config.Config, r startFailureSender, cause error, log *zap.Logger) {
	timeout := cfg.Session.ReportTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	f := session.StartFailure{
		DeviceID:      cfg.Device.DeviceID,
		ParticipantID: cfg.Device.ParticipantID,
		ErrorType:     "startup",
		ErrorMessage:  cause.Error(),
		Timestamp:     time.Now().UTC(),
	}
	if err := r.SendSessionStartFailed(ctx, f); err != nil {
		log.Warn("start failure not reported", zap.Error(err))
	}
}

func newPlanCmd() *cobra.Command {
	var participant string
	var seed int64
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the next session plan as JSON without running it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if participant != "" {
				cfg.Device.ParticipantID = participant
			}
			log := newLogger(cfg)
			defer func() { _ = log.Sync() }()

			p, err := newPlanner(cfg, log, seed)
			if err != nil {
				return err
			}
			var prof *profile.Profile
			if cfg.Device.ParticipantID != "" {
				store, err := profile.Open(cfg.Profile.DBPath)
				if err != nil {
					return err
				}
				defer store.Close()
				if prof, err = store.Load(cmd.Context(), cfg.Device.ParticipantID); err != nil {
					log.Warn("profile unavailable, planning without history", zap.Error(err))
				}
			}
			plan, err := p.BuildAdaptivePlan(prof)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		},
	}
	cmd.Flags().StringVar(&participant, "participant", "", "participant id (overrides PARTICIPANT_ID)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed for a reproducible plan (0 = time based)")
	return cmd
}

func newProfileCmd() *cobra.Command {
	var participant string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect or adjust a participant's stored profile",
	}
	cmd.PersistentFlags().StringVar(&participant, "participant", "", "participant id (overrides PARTICIPANT_ID)")

	// withStore opens the profile database for the selected participant.
	withStore := func(fn func(store *profile.Store, participantID string) error) error {
		cfg := config.Load()
		if participant != "" {
			cfg.Device.ParticipantID = participant
		}
		if cfg.Device.ParticipantID == "" {
			return errors.New("no participant: set PARTICIPANT_ID or --participant")
		}
		store, err := profile.Open(cfg.Profile.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(store, cfg.Device.ParticipantID)
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored profile as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(func(store *profile.Store, id string) error {
				p, err := store.Load(cmd.Context(), id)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			})
		},
	}

	var reset bool
	priorities := &cobra.Command{
		Use:   "priorities [domain...]",
		Short: "Set the domains the planner should favour, in order",
		Long: "Set the domains the planner should favour, in order.\n" +
			"Domains may be given as separate arguments or comma separated.\n" +
			"--clear drops the explicit ordering so scores decide again.",
		RunE: func(cmd *cobra.Command, args []string) error {
			domains, err := parseDomains(args)
			if err != nil {
				return err
			}
			if reset == (len(domains) > 0) {
				return errors.New("give one or more domains, or --clear")
			}
			return withStore(func(store *profile.Store, id string) error {
				if err := store.SetPriorityDomains(cmd.Context(), id, domains); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "priorities for %s: %v\n", id, domains)
				return err
			})
		},
	}
	priorities.Flags().BoolVar(&reset, "clear", false, "remove the explicit ordering")

	cmd.AddCommand(show, priorities)
	return cmd
}

// parseDomains accepts "a,b c" style lists and rejects unknown or repeated
// domains.
func parseDomains(args []string) ([]content.Domain, error) {
	var out []content.Domain
	seen := map[content.Domain]bool{}
	for _, arg := range args {
		for _, f := range strings.Split(arg, ",") {
			d := content.Domain(strings.ToLower(strings.TrimSpace(f)))
			if d == "" {
				continue
			}
			if !d.Valid() {
				return nil, fmt.Errorf("unknown domain %q", d)
			}
			if seen[d] {
				return nil, fmt.Errorf("domain %q listed twice", d)
			}
			seen[d] = true
			out = append(out, d)
		}
	}
	return out, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the local control API and run sessions on request",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			log := newLogger(cfg)
			defer func() { _ = log.Sync() }()

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()

			srv := httpserver.New(ctx, a.runner, cfg.App.ControlToken, log)
			server := &http.Server{
				Addr:              cfg.App.HTTPAddress,
				Handler:           srv.Router,
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			serverErrors := make(chan error, 1)
			go func() {
				log.Info("server listening", zap.String("addr", cfg.App.HTTPAddress))
				serverErrors <- server.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server: %w", err)
				}
			case <-ctx.Done():
				log.Info("shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn("graceful shutdown failed", zap.Error(err))
				_ = server.Close()
			}
			// a running session sees ctx cancelled and still delivers its summary
			srv.Wait()
			return nil
		},
	}
}
