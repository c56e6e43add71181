package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"
	"golang.org/x/sync/errgroup"

	"github.com/mbeoliero/pawchat/internal/api"
	"github.com/mbeoliero/pawchat/internal/codec"
	"github.com/mbeoliero/pawchat/internal/config"
	"github.com/mbeoliero/pawchat/internal/gateway"
	"github.com/mbeoliero/pawchat/internal/handler"
	"github.com/mbeoliero/pawchat/internal/repository"
	"github.com/mbeoliero/pawchat/internal/router"
	"github.com/mbeoliero/pawchat/internal/service"
	"github.com/mbeoliero/pawchat/pkg/constant"
	"github.com/mbeoliero/pawchat/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}

	log.CtxInfo(ctx, "config loaded: mode=%s, api=%s", cfg.Server.Mode, cfg.API.BaseURL)

	idgen.SetMachineID(cfg.Server.NodeId)

	// Backend timestamps without an offset are read in the configured zone
	serverLoc, err := cfg.API.Location()
	if err != nil {
		log.CtxError(ctx, "failed to load api time zone: %v", err)
		panic(err)
	}
	codec.SetServerLocation(serverLoc)

	// Initialize Redis key prefix
	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)

	// Initialize repositories
	repos := repository.NewRepositories(cfg)
	defer repos.Close()

	if err := repos.CheckConnection(ctx); err != nil {
		log.CtxWarn(ctx, "redis unavailable, room snapshots disabled: %v", err)
		repos.Rooms = repository.NewRoomCache(nil, 0)
	}

	// REST client
	apiClient, err := api.NewClient(cfg.API.BaseURL,
		api.WithToken(cfg.API.Token),
		api.WithCookie(cfg.API.Cookie),
		api.WithTimeout(cfg.API.Timeout),
		api.WithDialTimeout(cfg.API.DialTimeout),
		api.WithWriteTimeout(cfg.API.WriteTimeout),
	)
	if err != nil {
		log.CtxError(ctx, "failed to create api client: %v", err)
		panic(err)
	}
	if !apiClient.HasCredentials() {
		log.CtxWarn(ctx, "no api token or cookie configured, backend calls are anonymous")
	}

	// Engine
	engine := service.NewEngine(apiClient, repos.Rooms, service.Options{
		RefreshInterval:          cfg.Sync.RefreshInterval,
		CloseRefreshDelay:        cfg.Sync.CloseRefreshDelay,
		FirstMessageRefreshDelay: cfg.Sync.FirstMessageRefreshDelay,
		ReadGrace:                cfg.Sync.ReadGrace,
		ActionTimeout:            cfg.API.Timeout,
		NotifyBuffer:             cfg.Sync.NotifyBuffer,
	})

	// Push connections
	events, err := gateway.NewEventStream(cfg.API.BaseURL, cfg.SSE, apiClient, engine)
	if err != nil {
		log.CtxError(ctx, "failed to create event stream: %v", err)
		panic(err)
	}
	topics := gateway.NewTopicClient(cfg.Broker, apiClient, engine)
	conns := gateway.NewManager(events, topics)
	engine.SetTransport(conns.Events(), conns.Topics())

	// Control API
	handlers := &router.Handlers{
		Room:   handler.NewRoomHandler(engine),
		Signal: handler.NewSignalHandler(engine, conns),
	}

	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
		server.WithExitWaitTime(2*time.Second),
	)
	router.SetupRouter(h, handlers, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.CtxInfo(gctx, "control api starting on port %d", cfg.Server.HTTPPort)
		return h.Run()
	})

	g.Go(func() error {
		startSession(gctx, engine, cfg.SSE.ReconnectWait)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.CtxInfo(ctx, "shutting down...")

		engine.Shutdown()
		conns.Disconnect()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Shutdown(shutdownCtx); err != nil {
			log.CtxError(ctx, "server shutdown error: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.CtxError(ctx, "chatsync exited: %v", err)
	}
	log.CtxInfo(ctx, "chatsync stopped")
}

// startSession retries Start until it succeeds or ctx ends, then keeps the
// push connections alive.
func startSession(ctx context.Context, engine *service.Engine, wait time.Duration) {
	for {
		err := engine.Start(ctx)
		if err == nil {
			break
		}
		log.CtxWarn(ctx, "session start failed, retrying in %s: %v", wait, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	ticker := time.NewTicker(wait)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := engine.EnsureLive(ctx); err != nil {
				log.CtxDebug(ctx, "ensure live: %v", err)
			}
		}
	}
}
