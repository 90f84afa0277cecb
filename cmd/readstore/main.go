package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli"

	"github.com/freeeve/readstore/internal/logx"
)

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "dev"

type metadata struct {
	ctx    context.Context
	logger zerolog.Logger
}

func meta(c *cli.Context) *metadata {
	return c.App.Metadata["meta"].(*metadata)
}

// parseSize parses a size string like "512m", "4g", "1024" into bytes
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "0" {
		return 0, nil
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1 << 10
	case strings.HasSuffix(s, "m"):
		multiplier = 1 << 20
	case strings.HasSuffix(s, "g"):
		multiplier = 1 << 30
	}
	if multiplier > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * multiplier, nil
}

func newApp(ctx context.Context) *cli.App {
	app := cli.NewApp()
	app.Name = "readstore"
	app.Usage = "build and query sequencing read datastores"
	app.Version = version
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr
	app.Metadata = map[string]interface{}{}

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "log-level",
			Value:  "info",
			Usage:  "log `LEVEL` [debug|info|warn|error]",
			EnvVar: "READSTORE_LOG_LEVEL",
		},
	}
	app.Commands = commands()

	app.Before = func(c *cli.Context) error {
		c.App.Metadata["meta"] = &metadata{
			ctx:    ctx,
			logger: logx.NewLogger(c.GlobalString("log-level")),
		}
		return nil
	}
	return app
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newApp(ctx)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.ErrWriter, "terminated with error: %s\n", err)
		stop()
		os.Exit(1)
	}
}
