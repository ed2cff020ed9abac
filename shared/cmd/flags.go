// Package cmd defines the sidecar's command line flags.
package cmd

import "github.com/urfave/cli/v2"

var (
	// ConfigFileFlag points at the YAML configuration file to load.
	ConfigFileFlag = &cli.StringFlag{
		Name:  "config-file",
		Usage: "Path to a YAML configuration file",
	}
	// VerbosityFlag defines the logrus configuration.
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (debug, info=default, warn, error, fatal, panic)",
		Value: "info",
	}
	// LogFormat defines the log output encoding.
	LogFormat = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Log format to use (text, json)",
		Value: "text",
	}
	// LogFileName specifies a path to also persist logs to, in addition to stderr.
	LogFileName = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Additionally write logs to this file",
	}
	// MetricsAddrFlag overrides the config file's metrics listen address.
	MetricsAddrFlag = &cli.StringFlag{
		Name:  "metrics-address",
		Usage: "Listen address (host only) for the Prometheus HTTP exposition, overriding the config file",
	}
	// MonitoringPortFlag overrides the config file's metrics listen port.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port for the Prometheus HTTP exposition, overriding the config file",
	}
	// DisableMonitoringFlag disables the Prometheus HTTP exposition entirely.
	DisableMonitoringFlag = &cli.BoolFlag{
		Name:  "disable-monitoring",
		Usage: "Disable the Prometheus metrics HTTP server",
	}
)

// AppFlags is the full flag set registered on the sidecar's CLI app.
var AppFlags = []cli.Flag{
	ConfigFileFlag,
	VerbosityFlag,
	LogFormat,
	LogFileName,
	MetricsAddrFlag,
	MonitoringPortFlag,
	DisableMonitoringFlag,
}
