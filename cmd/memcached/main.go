// Command memcached runs the flat-storage-engine cache server.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Mactus/memcached"
	"github.com/Mactus/memcached/assoc"
	"github.com/Mactus/memcached/cache"
	"github.com/Mactus/memcached/config"
	"github.com/Mactus/memcached/flatstore"
	"github.com/Mactus/memcached/log"
	"github.com/Mactus/memcached/recycle"
	"github.com/Mactus/memcached/stats"
)

func main() {
	app := &cli.App{
		Name:  "memcached",
		Usage: "flat storage engine cache server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a TOML configuration file",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "override the configured listen address",
			},
			&cli.Int64Flag{
				Name:  "max-conns",
				Usage: "close the coldest connections past this count (0 = unlimited)",
				Value: 1024,
			},
			&cli.DurationFlag{
				Name:  "idle-timeout",
				Usage: "close connections idle longer than this (0 = disabled)",
				Value: 5 * time.Minute,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}
	if v := ctx.String("listen"); v != "" {
		cfg.Listen = v
	}

	level, err := log.LevelFromString(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := log.NewLogger(level, os.Stderr)

	geo := cfg.Geometry()
	clock := cache.NewClock()
	// assoc.New needs a reference to the very engine it will be wired
	// into, so the engine is built with a nil index and bound to its
	// real one once both exist.
	engine, err := flatstore.Init(cfg.MaxBytes, geo, nil, clock)
	if err != nil {
		return err
	}
	index := assoc.New(engine)
	engine.SetIndex(index)

	pool := recycle.NewPool()
	handler := cache.New(engine, index, clock, pool)
	st := stats.New()

	server := memcached.NewServer(logger, handler, pool, int(cfg.MaxItemSize), st,
		ctx.Int64("max-conns"), ctx.Duration("idle-timeout"))

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	logger.Infof("Listening on %s.", cfg.Listen)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ln) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case s := <-sig:
		logger.Infof("Received %s, shutting down.", s)
		return ln.Close()
	}
}
