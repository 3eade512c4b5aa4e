package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"useapi-go/internal/loadgen"
	"useapi-go/internal/logging"
	"useapi-go/internal/model"
)

type cli struct {
	Target   string `kong:"default='http://localhost:8000',help='Base URL of the relay under test.',env='LOADGEN_TARGET'"`
	Scenario string `kong:"default='getsize',enum='getsize,useapi',help='Endpoint to exercise (getsize or useapi).'"`

	URL string `kong:"default='https://www.isagog.com',help='URL measured by the getsize scenario.'"`

	Host    string `kong:"default='localhost',help='Descriptor host for the useapi scenario.'"`
	Port    int    `kong:"default='8001',help='Descriptor port for the useapi scenario.'"`
	Route   string `kong:"default='/api/item/1',help='Descriptor route for the useapi scenario.'"`
	Method  string `kong:"default='GET',enum='GET,POST',help='Descriptor method for the useapi scenario.'"`
	Payload string `kong:"help='Descriptor payload as a JSON object (useapi POST).'"`

	Users    int           `kong:"short='u',default='10',help='Concurrent simulated users.'"`
	Duration time.Duration `kong:"short='d',default='30s',help='Run length; 0 runs until the request budget is spent.'"`
	Requests int           `kong:"short='n',default='0',help='Total request budget; 0 means unlimited.'"`
	MinWait  time.Duration `kong:"default='1s',help='Minimum wait between requests of one user.'"`
	MaxWait  time.Duration `kong:"default='2s',help='Maximum wait between requests of one user.'"`
	RPS      float64       `kong:"default='0',help='Global request rate cap; 0 means unlimited.'"`
	Timeout  time.Duration `kong:"default='60s',help='Per-request timeout.'"`

	LogLevel string `kong:"default='warn',enum='debug,info,warn,error',help='Log level.',env='LOG_LEVEL'"`
}

func main() {
	var args cli
	kctx := kong.Parse(&args,
		kong.Name("loadgen"),
		kong.Description("Load generator for the relay endpoints."),
	)

	logger := logging.New(os.Stderr, args.LogLevel, "text")

	scenario, err := args.scenario()
	kctx.FatalIfErrorf(err)

	runner, err := loadgen.NewRunner(loadgen.Config{
		BaseURL:  args.Target,
		Users:    args.Users,
		Duration: args.Duration,
		Requests: args.Requests,
		MinWait:  args.MinWait,
		MaxWait:  args.MaxWait,
		RPS:      args.RPS,
		Timeout:  args.Timeout,
	}, scenario, logger)
	kctx.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := runner.Run(ctx)
	if sum != nil {
		if werr := sum.Write(os.Stdout); werr != nil {
			logger.Error("writing summary failed", "err", werr)
		}
	}
	if err != nil {
		logger.Error("load run failed", "err", err)
		os.Exit(1)
	}
}

func (a *cli) scenario() (loadgen.Scenario, error) {
	switch a.Scenario {
	case "useapi":
		d := model.RequestDescriptor{
			Host:   a.Host,
			Port:   a.Port,
			Route:  a.Route,
			Method: a.Method,
		}
		if a.Payload != "" {
			if err := json.Unmarshal([]byte(a.Payload), &d.Payload); err != nil {
				return nil, fmt.Errorf("parse --payload: %w", err)
			}
		}
		return loadgen.UseAPIScenario{Descriptor: d}, nil
	default:
		return loadgen.GetSizeScenario{URL: a.URL}, nil
	}
}
