package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/abhisek/nextlesson/internal/app"
	"github.com/abhisek/nextlesson/internal/server"
	"github.com/abhisek/nextlesson/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		defer a.Log.Sync()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			a.Config.Server.Addr = addr
		}

		tcfg := a.Config.Tracing
		tcfg.Environment = a.Config.Env
		tcfg.Version = version
		shutdown, err := telemetry.Setup(ctx, a.Log, tcfg)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				a.Log.Warn("otel shutdown failed", "error", err)
			}
		}()

		if a.Config.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		go reloadOnHangup(ctx, a)

		srv := server.NewServer(a.Log, a.Service, server.Config{
			Addr:         a.Config.Server.Addr,
			ReadTimeout:  a.Config.Server.ReadTimeout,
			WriteTimeout: a.Config.Server.WriteTimeout,
			CORSOrigins:  a.Config.Server.CORSOrigins,
		})
		return srv.Run(ctx)
	},
}

// reloadOnHangup drops the cached catalog on SIGHUP so edited course files
// are picked up without a restart.
func reloadOnHangup(ctx context.Context, a *app.App) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			a.Catalog.Reload()
			a.Log.Info("catalog reloaded", "dir", a.Config.Catalog.Dir)
		}
	}
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}
