package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	cfg "github.com/1F47E/go-stereoreel/pkg/config"
	"github.com/1F47E/go-stereoreel/pkg/logger"
)

var app = cli.NewApp()
var log = logger.Log

func init() {
	app.Name = "stereoreel"
	app.Usage = "A 2D to VR180 side-by-side video converter"
	app.UsageText = "stereoreel [--config file] command [arguments]"
	app.HideVersion = true
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "toml config file",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "convert",
			Aliases:   []string{"c"},
			Usage:     "Convert a video to side-by-side stereo",
			ArgsUsage: "<input_video> <output_video>",
			Action:    convertAction,
		},
		{
			Name:      "cleanup",
			Usage:     "Remove leftovers of interrupted conversions",
			ArgsUsage: "[dir]",
			Action:    cleanupAction,
		},
		{
			Name:   "serve",
			Usage:  "Run the upload and conversion HTTP server",
			Action: serveAction,
		},
	}
}

func loadConfig(c *cli.Context) (cfg.Config, error) {
	conf, err := cfg.Load(c.GlobalString("config"))
	if err != nil {
		return cfg.Config{}, err
	}
	if os.Getenv("DEBUG") == "" {
		logger.SetLevel(conf.LogLevel)
	}
	return conf, nil
}

// signalContext is cancelled on Ctrl-C or SIGTERM, which kills running ffmpeg.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func usageError(c *cli.Context) error {
	return cli.NewExitError(fmt.Sprintf("Usage: %s %s %s", c.App.Name, c.Command.Name, c.Command.ArgsUsage), 1)
}

func main() {
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
