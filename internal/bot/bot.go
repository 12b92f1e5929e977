package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/eatmoreapple/openwechat"

	"github.com/luckfunc/floorbot/internal/config"
	"github.com/luckfunc/floorbot/internal/handlers"
	"github.com/luckfunc/floorbot/internal/services"
	"github.com/luckfunc/floorbot/internal/storage"
)

func Run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn("failed to close storage", "error", err)
		}
	}()

	tracker := services.NewTracker(ctx, backend, log)
	client := services.NewOpenSeaClient(services.OpenSeaOptions{
		BaseURL:  cfg.OpenSea.BaseURL,
		APIKey:   cfg.OpenSea.APIKey,
		Timeout:  cfg.OpenSea.Timeout,
		Spacing:  cfg.OpenSea.Spacing,
		Cooldown: cfg.OpenSea.Cooldown,
	}, log)
	core := services.NewCore(tracker, client, log)

	var renderer handlers.TrackedRenderer
	if cfg.Bot.RenderImages {
		renderer = services.NewHTMLRenderer()
	}
	handler := handlers.NewHandler(core, renderer, log)

	wechat := openwechat.DefaultBot(openwechat.Desktop)
	wechat.UUIDCallback = openwechat.PrintlnQrcodeUrl
	if cfg.Bot.HotLogin {
		reloadStorage := openwechat.NewFileHotReloadStorage(cfg.Bot.HotReloadPath)
		defer reloadStorage.Close()
		log.Info("hot login", "path", cfg.Bot.HotReloadPath)
		err = wechat.HotLogin(reloadStorage, openwechat.NewRetryLoginOption())
	} else {
		err = wechat.Login()
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	wechat.MessageHandler = handler.HandleGroupMessage(ctx)

	monitor := services.NewMonitor(tracker, client, NewGroupNotifier(wechat), services.MonitorOptions{
		Interval: cfg.Monitor.Interval,
		Workers:  cfg.Monitor.Workers,
	}, log)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		wechat.Exit()
	}()

	log.Info("bot started", "storage", cfg.Storage.Driver, "interval", cfg.Monitor.Interval)
	return serve(ctx, stop, monitor, wechat.Block, log)
}

type runner interface {
	Run(ctx context.Context)
}

// serve runs the monitor alongside the blocking chat session and returns
// once both have stopped, including the monitor's in-flight tick.
func serve(ctx context.Context, stop context.CancelFunc, monitor runner, block func() error, log *slog.Logger) error {
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(ctx)
	}()

	err := block()
	interrupted := ctx.Err() != nil
	stop()
	<-monitorDone
	log.Info("price monitor drained")

	if err != nil && !interrupted {
		return err
	}
	return nil
}
