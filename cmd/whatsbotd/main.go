package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/koddahub/whatsbot/config"
	"github.com/koddahub/whatsbot/internal/adminapi"
	"github.com/koddahub/whatsbot/internal/app"
	"github.com/koddahub/whatsbot/internal/chatbot"
	"github.com/koddahub/whatsbot/internal/engine"
	"github.com/koddahub/whatsbot/internal/instance"
	"github.com/koddahub/whatsbot/internal/webserver"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfile string
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "whatsbotd",
	Short: "WhatsBot multi-instance chat automation server",
	Run: func(cmd *cobra.Command, args []string) {
		run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfile, "config", "c", "whatsbot.yml", "config file")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "x", false, "enable debug mode")
}

func run() {
	cfg := config.LoadConfig(cfile)
	if debug {
		cfg.System.Debug = true
		cfg.Logger.Mode = "development"
	}
	cfg.InitDirs()

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	eng, err := engine.NewWhatsmeowEngine(context.Background(), cfg.System.Workdir, cfg.Bot.PrintQR)
	if err != nil {
		zap.L().Fatal("failed to initialize session engine", zap.Error(err))
	}

	bus := evbus.New()
	_ = bus.Subscribe(instance.TopicStatusChange, func(ch instance.StatusChange) {
		zap.L().Info("lifecycle transition",
			zap.String("instance_id", ch.InstanceID),
			zap.String("from", string(ch.From)),
			zap.String("to", string(ch.To)))
	})

	mgr := instance.NewManager(
		eng,
		instance.NewGormStore(application.DB()),
		chatbot.NewResponder(cfg.Bot.Greeting),
		bus,
		instance.Options{
			WebhookBaseURL: cfg.Bot.WebhookBaseURL,
			AdminNumber:    cfg.Bot.AdminNumber,
		},
	)

	// Resume stored instances now and keep reconciling so records created
	// while the engine was down get picked up.
	mgr.Resume()
	if _, err := application.Scheduler().AddFunc("@every 30s", mgr.Resume); err != nil {
		zap.L().Warn("failed to schedule reconcile job", zap.Error(err))
	}
	application.Scheduler().Start()

	ws := webserver.NewWebServer(application)
	adminapi.RegisterInstanceAPI(ws, mgr)
	adminapi.RegisterMessageAPI(ws, mgr)
	adminapi.RegisterAdminPage(ws)

	go func() {
		if err := ws.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("webserver stopped", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	zap.L().Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = ws.Shutdown(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
