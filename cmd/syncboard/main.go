// syncboard 房间实时同步服务
//
//	syncboard -config ./config.yaml
//	syncboard -print-config
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/syncboard"
	"github.com/tokmz/syncboard/middleware"
	"github.com/tokmz/syncboard/pkg/config"
	"github.com/tokmz/syncboard/pkg/gateway"
	"github.com/tokmz/syncboard/pkg/logger"
	"github.com/tokmz/syncboard/pkg/relay"
	"github.com/tokmz/syncboard/pkg/room"
	"github.com/tokmz/syncboard/pkg/tracing"
	"github.com/tokmz/syncboard/pkg/ws"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，为空时只使用默认值与环境变量")
	printConfig := flag.Bool("print-config", false, "输出生效配置后退出")
	flag.Parse()

	if err := run(*configPath, *printConfig); err != nil {
		fmt.Fprintf(os.Stderr, "[syncboard] %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, printConfig bool) error {
	// 日志级别热更新，监控在 logger 创建后才开启
	var (
		log logger.Logger
		cfg *config.Config
	)

	onChange := func() {
		s, err := cfg.Settings()
		if err != nil {
			log.Warn("reload config failed", zap.Error(err))
			return
		}
		level, _ := logger.ParseLevel(s.Log.Level)
		if level != log.Level() {
			log.SetLevel(level)
			log.Info("log level changed", zap.String("level", level.String()))
		}
	}

	cfg, s, err := config.LoadSettings(configPath, config.WithOnChange(onChange))
	if err != nil {
		return err
	}
	defer cfg.Close()

	if printConfig {
		out, err := s.YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	log, err = logger.New(s.LoggerConfig())
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.ConfigFileUsed() != "" {
		if err := cfg.StartWatch(); err != nil {
			return err
		}
	}

	if _, err := tracing.NewTracerProvider(&s.Tracing); err != nil {
		return err
	}

	pub, err := relay.New(&s.Relay)
	if err != nil {
		return err
	}
	mirror := relay.NewAsync(pub,
		relay.WithQueueSize(s.Relay.QueueSize),
		relay.WithPublishTimeout(s.Relay.PublishTimeout),
		relay.WithLogger(log.With(zap.String("component", "relay"))),
	)

	registry := room.NewRegistry(s.Room.MaxConnections)
	rooms := room.NewManager(registry,
		room.WithStrictJoin(s.Room.StrictJoin),
		room.WithMaxRoomSize(s.Room.MaxRoomSize),
	)
	gw := gateway.New(registry, rooms,
		gateway.WithRelay(mirror),
		gateway.WithLogger(log.With(zap.String("component", "gateway"))),
		gateway.WithMaxPayloadSize(s.Gateway.MaxPayloadSize),
		gateway.WithPresence(s.Gateway.Presence),
	)

	metrics := &ws.CounterMetrics{}
	wsOpts := []ws.Option{
		ws.WithHeartbeatInterval(s.WS.HeartbeatInterval),
		ws.WithHeartbeatTimeout(s.WS.HeartbeatTimeout),
		ws.WithMessageSizeLimit(s.WS.MaxMessageSize),
		ws.WithMessageQueueSize(s.WS.MessageQueueSize),
		ws.WithMaxInvalidMessages(s.WS.MaxInvalidMessages),
		ws.WithMetrics(metrics),
		ws.WithLogger(log.With(zap.String("component", "ws"))),
	}
	if s.WS.AllowAllOrigins {
		wsOpts = append(wsOpts, ws.WithAllowAllOrigins())
	} else if len(s.WS.AllowedOrigins) > 0 {
		wsOpts = append(wsOpts, ws.WithCheckOriginWhitelist(s.WS.AllowedOrigins))
	}
	wsManager, err := ws.NewManager(gw, wsOpts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := syncboard.Default(
		syncboard.WithMode(s.Server.Mode),
		syncboard.WithAddr(s.Server.Addr),
		syncboard.WithReadTimeout(s.Server.ReadTimeout),
		syncboard.WithWriteTimeout(s.Server.WriteTimeout),
		syncboard.WithLogger(log),
	)

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = s.Server.AllowOrigins
	engine.Use(middleware.CORS(cors), middleware.Tracing())
	if s.Server.RateLimit > 0 {
		engine.Use(middleware.RateLimiter(&middleware.RateLimiterConfig{
			RequestsPerSecond: s.Server.RateLimit,
			Burst:             s.Server.RateBurst,
			ExcludePaths:      []string{"/status", s.WS.Path},
			Logger:            log,
			Done:              ctx.Done(),
		}))
	}

	registerRoutes(engine, s, gw, wsManager, metrics, mirror, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(engine.Run)
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(s.Server.ShutdownTimeout, engine, gw, wsManager, mirror, log)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("syncboard stopped")
	return nil
}

type statsResponse struct {
	Gateway gateway.Stats      `json:"gateway"`
	WS      ws.MetricsSnapshot `json:"ws"`
	Relay   relay.AsyncStats   `json:"relay"`
}

func registerRoutes(
	engine *syncboard.Engine,
	s *config.Settings,
	gw *gateway.Gateway,
	wsManager *ws.Manager,
	metrics *ws.CounterMetrics,
	mirror *relay.Async,
	log logger.Logger,
) {
	rg := engine.RouterGroup()

	// 存活探针，不走统一响应
	rg.GET("/status", func(c *syncboard.Context) {
		c.JSON(http.StatusOK, map[string]string{"ping": "pong"})
	})

	syncboard.HandleOnly[statsResponse](rg.GET, "/stats", func(c *syncboard.Context) (*statsResponse, error) {
		return &statsResponse{
			Gateway: gw.Stats(),
			WS:      metrics.Snapshot(),
			Relay:   mirror.Stats(),
		}, nil
	})

	rg.GET(s.WS.Path, func(c *syncboard.Context) {
		// 握手失败时 HandleUpgrade 已写出响应
		if err := wsManager.HandleUpgrade(c.Writer(), c.Request()); err != nil {
			log.DebugContext(c.RequestContext(), "upgrade rejected", zap.Error(err))
		}
	})
}

// shutdown 依次关闭：网关拒绝新请求 → 断开客户端 → HTTP → 镜像队列 → 链路追踪
func shutdown(
	timeout time.Duration,
	engine *syncboard.Engine,
	gw *gateway.Gateway,
	wsManager *ws.Manager,
	mirror *relay.Async,
	log logger.Logger,
) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info("shutting down")

	var errs []error
	if err := gw.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("gateway: %w", err))
	}
	if err := wsManager.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("ws: %w", err))
	}
	if err := engine.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if err := mirror.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("relay: %w", err))
	}
	if err := tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	return errors.Join(errs...)
}
