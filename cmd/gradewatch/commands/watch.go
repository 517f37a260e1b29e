package commands

import (
	"context"
	"gradewatch/lib/gradestore"
	"gradewatch/lib/scrapers/jiaowu"
	"gradewatch/lib/serviceutil"
	"gradewatch/lib/telemetry"
	"gradewatch/services/watcher"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

func initTelemetry(ctx context.Context) {
	err := telemetry.SetupFromEnv(ctx, "gradewatch")
	if os.IsNotExist(err) {
		// no telemetry.json5 anywhere up the tree, spans and metrics
		// stay on the no-op globals
		return
	}
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	go func() {
		<-ctx.Done()
		telemetry.Shutdown(context.Background())
	}()
	telemetry.InstrumentPerfStats(ctx)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Checks the grade sheet on an interval and emails a report on every change.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := serviceutil.SignalContext()
		initTelemetry(ctx)

		cfg := readConfig()
		mailer, err := cfg.mailer()
		if err != nil {
			serviceutil.Fatal("smtp config", err)
		}
		gradeOpts, err := cfg.gradeOptions()
		if err != nil {
			serviceutil.Fatal("jiaowu config", err)
		}

		db, err := cfg.database().OpenDB(gradestore.Schema)
		if err != nil {
			serviceutil.Fatal("open database", err)
		}
		defer db.Close()

		svc, err := watcher.NewService(watcher.Options{
			Source: func(ctx context.Context) (jiaowu.Grade, error) {
				return jiaowu.GetGrade(ctx, gradeOpts)
			},
			Mailer:    mailer,
			Store:     gradestore.NewStore(db),
			User:      cfg.Jiaowu.Username,
			Interval:  cfg.interval(),
			Jitter:    cfg.jitter(),
			SendFirst: cfg.Jiaowu.SendFirst,
			Keep:      cfg.Keep,
		})
		if err != nil {
			serviceutil.Fatal("init watcher", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/status", svc.StatusHandler())
		go serviceutil.StartHttpServer(cfg.statusPort(), mux)

		slog.Info(
			"watching grade sheet",
			"user", cfg.Jiaowu.Username,
			"interval", cfg.interval(),
			"semesters", cfg.Jiaowu.Semesters,
		)

		err = svc.Run(ctx)
		if err != nil {
			// tell the user the watcher died before going down, the
			// original reason is in the email
			mailErr := mailer.SendFailure(context.Background(), "Watcher stopped", err)
			if mailErr != nil {
				slog.Error("send failure notice", "err", mailErr)
			}
			serviceutil.Fatal("watch", err)
		}
	},
}
