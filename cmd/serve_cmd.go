package cmd

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/F3-Nation/f3-nation-auth/internal/api"
	"github.com/F3-Nation/f3-nation-auth/internal/conf"
	"github.com/F3-Nation/f3-nation-auth/internal/observability"
	"github.com/F3-Nation/f3-nation-auth/internal/reloader"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
	"github.com/F3-Nation/f3-nation-auth/internal/utilities"
)

var serveCmd = cobra.Command{
	Use:  "serve",
	Long: "Start API server",
	Run: func(cmd *cobra.Command, args []string) {
		serve(cmd.Context())
	},
}

func serve(ctx context.Context) {
	config := loadGlobalConfig()

	db, err := storage.Dial(config)
	if err != nil {
		logrus.Fatalf("error opening database: %+v", err)
	}
	defer utilities.SafeClose(db)

	a := api.NewAPIWithVersion(ctx, config, db, utilities.Version)
	handler := reloader.NewAtomicHandler(a)

	// Live reload only works with an explicit config file; with
	// environment-only configuration there is nothing to watch.
	if configFile != "" {
		rl := reloader.NewReloader(configFile)
		go func() {
			err := rl.Watch(ctx, func(latestCfg *conf.GlobalConfiguration) {
				logrus.Info("reloading api with new configuration")
				if err := observability.ConfigureLogging(&latestCfg.Logging); err != nil {
					logrus.WithError(err).Error("unable to reconfigure logging")
				}
				handler.Store(api.NewAPIWithVersion(ctx, latestCfg, db, utilities.Version))
			})
			if err != nil && err != context.Canceled {
				logrus.WithError(err).Error("config reloader exited")
			}
		}()
	}

	addr := net.JoinHostPort(config.API.Host, config.API.Port)
	logrus.Infof("f3auth API started on: %s", addr)

	api.ListenAndServe(ctx, addr, handler)
}
