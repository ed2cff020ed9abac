// Package main is the privacy sidecar's standalone entrypoint.
package main

import (
	"fmt"
	"os"
	"runtime"
	runtimeDebug "runtime/debug"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/node"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/shared/cmd"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/shared/logutil"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/params"
)

func main() {
	log := logrus.WithField("prefix", "main")
	app := cli.NewApp()
	app.Name = "sidecar"
	app.Usage = "privacy sidecar for a Lighthouse validator: subnet reshuffling and friend-relayed attestation gossip"
	app.Flags = cmd.AppFlags
	app.Action = startNode

	app.Before = func(ctx *cli.Context) error {
		format := ctx.String(cmd.LogFormat.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			formatter.DisableColors = ctx.String(cmd.LogFileName.Name) != ""
			logrus.SetFormatter(formatter)
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		if logFileName := ctx.String(cmd.LogFileName.Name); logFileName != "" {
			if err := logutil.ConfigurePersistentLogging(logFileName); err != nil {
				log.WithError(err).Error("Failed to configure logging to disk")
			}
		}

		runtime.GOMAXPROCS(runtime.NumCPU())
		return nil
	}

	defer func() {
		if x := recover(); x != nil {
			log.Errorf("Runtime panic: %v\n%v", x, string(runtimeDebug.Stack()))
			panic(x)
		}
	}()

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func startNode(ctx *cli.Context) error {
	verbosity := ctx.String(cmd.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	configPath := ctx.String(cmd.ConfigFileFlag.Name)
	if configPath == "" {
		configPath = cmd.DefaultConfigPath()
	}

	cfg, err := params.Load(configPath)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	if ctx.IsSet(cmd.MetricsAddrFlag.Name) {
		cfg.Metrics.ListenAddress = ctx.String(cmd.MetricsAddrFlag.Name)
	}
	if ctx.IsSet(cmd.MonitoringPortFlag.Name) {
		cfg.Metrics.ListenPort = uint16(ctx.Int(cmd.MonitoringPortFlag.Name))
	}
	if ctx.Bool(cmd.DisableMonitoringFlag.Name) {
		cfg.Metrics.Enabled = false
	}

	n, err := node.New(cfg)
	if err != nil {
		return fmt.Errorf("could not construct privacy sidecar: %w", err)
	}
	n.Start()
	return nil
}
