package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"useapi-go/internal/logging"
	"useapi-go/internal/metrics"
	"useapi-go/internal/middleware"
	"useapi-go/internal/mockapi"
)

type cli struct {
	Host      string `kong:"default='0.0.0.0',help='Listen host.',env='HOST'"`
	Port      int    `kong:"short='p',default='8001',help='Listen port.',env='PORT'"`
	Seed      uint64 `kong:"help='Seed for reproducible random values (0 = nondeterministic).',env='MOCKAPI_SEED'"`
	LogLevel  string `kong:"default='info',enum='debug,info,warn,error',help='Log level.',env='LOG_LEVEL'"`
	LogFormat string `kong:"default='json',enum='json,text',help='Log format.',env='LOG_FORMAT'"`
	Metrics   bool   `kong:"help='Expose Prometheus metrics at /metrics.',env='MOCKAPI_METRICS'"`
}

func main() {
	var args cli
	kong.Parse(&args,
		kong.Name("mockapi"),
		kong.Description("Mock item API with randomized values and injected failures."),
	)

	fx.New(
		fx.Provide(
			func() *cli { return &args },
			func(a *cli) *slog.Logger { return logging.New(os.Stdout, a.LogLevel, a.LogFormat) },
			metrics.New,
			newServer,
			newEcho,
		),
		fx.Invoke(mockapi.Register, registerMetrics, startServer),
	).Run()
}

func newServer(a *cli, logger *slog.Logger) *mockapi.Server {
	if a.Seed != 0 {
		logger.Info("using seeded random source", "seed", a.Seed)
		return mockapi.NewServerWithRandom(mockapi.Seeded(a.Seed), logger)
	}
	return mockapi.NewServer(logger)
}

func newEcho(a *cli, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.SecurityHeaders())
	if a.Metrics {
		e.Use(middleware.MetricsMiddleware(m))
	}
	return e
}

func registerMetrics(a *cli, e *echo.Echo, m *metrics.Metrics) {
	if a.Metrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}

func startServer(lc fx.Lifecycle, e *echo.Echo, a *cli, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := net.JoinHostPort(a.Host, fmt.Sprint(a.Port))
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting mock api", "addr", addr)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down mock api")
			return e.Shutdown(ctx)
		},
	})
}
