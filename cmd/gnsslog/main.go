// Command gnsslog reads NMEA from a GNSS receiver (or gpsd, a replay log, or
// the built-in simulator) and prints, records or serves the assembled fixes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"gnsslog/internal/config"
	"gnsslog/internal/web"
)

const usage = `usage: gnsslog <command> [flags]

commands:
  raw                print every line the receiver sends
  monitor            print every assembled waypoint
  fix                wait for a valid fix and print it
  record             record waypoints to CSV (and the configured sinks)
  serve              run the monitor with the web status page
  add-local-time     add a timestamp_cet column to a recorded CSV
  summary            summarize a raw replay log

Run "gnsslog <command> --help" for the flags of a command.
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// options are the flags shared by every command.
type options struct {
	configPath string
	source     string
	device     string
	logLevel   string
	limit      int
}

type command struct {
	name  string
	flags func(fs *pflag.FlagSet, o *options)
	run   func(ctx context.Context, a *app, args []string) error
}

func limitFlag(help string) func(*pflag.FlagSet, *options) {
	return func(fs *pflag.FlagSet, o *options) {
		fs.IntVarP(&o.limit, "limit", "n", 0, help)
	}
}

var commands = []command{
	{name: "raw", flags: limitFlag("stop after this many lines (0 = no limit)"), run: cmdRaw},
	{name: "monitor", flags: limitFlag("stop after this many waypoints (0 = no limit)"), run: cmdMonitor},
	{name: "fix", run: cmdFix},
	{name: "record", flags: limitFlag("stop after this many rows (0 = no limit)"), run: cmdRecord},
	{name: "serve", run: cmdServe},
	{name: "add-local-time", run: cmdAddLocalTime},
	{name: "summary", run: cmdSummary},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// run is main without the process exit. It returns 2 for usage errors and 1
// when the command fails.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		if len(args) == 0 {
			return 2
		}
		return 0
	}
	cmd, ok := lookup(args[0])
	if !ok {
		fmt.Fprintf(stderr, "gnsslog: unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	var o options
	fs := pflag.NewFlagSet("gnsslog "+cmd.name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.configPath, "config", "c", "", "path to YAML config (defaults when empty)")
	fs.StringVar(&o.source, "source", "", "override gps.source (serial, gpsd, replay, sim)")
	fs.StringVarP(&o.device, "device", "d", "", "override gps.device")
	fs.StringVar(&o.logLevel, "log-level", "", "override log.level")
	if cmd.flags != nil {
		cmd.flags(fs, &o)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(o)
	if err != nil {
		fmt.Fprintf(stderr, "gnsslog: config: %v\n", err)
		return 1
	}

	a := newApp(cfg, o, stdout, stderr)
	if err := cmd.run(ctx, a, fs.Args()); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(stderr, "gnsslog %s: %v\n", cmd.name, err)
			return 2
		}
		a.log.Error(cmd.name+" failed", "err", err)
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

func loadConfig(o options) (config.Config, error) {
	cfg := config.Default()
	if strings.TrimSpace(o.configPath) != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if o.source != "" {
		cfg.GPS.Source = o.source
	}
	if o.device != "" {
		cfg.GPS.Device = o.device
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.DefaultAndValidate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// app carries what every command needs.
type app struct {
	cfg    config.Config
	opts   options
	stdout io.Writer
	log    *log.Logger
	logs   *web.LogBuffer

	// onWebListen, when set, sees the bound status address.
	onWebListen func(net.Addr)
}

func newApp(cfg config.Config, o options, stdout, stderr io.Writer) *app {
	logs := web.NewLogBuffer(2000)
	logger := log.NewWithOptions(io.MultiWriter(stderr, logs), log.Options{
		ReportTimestamp: true,
		Prefix:          "gnsslog",
	})
	// Validated by DefaultAndValidate.
	lvl, _ := log.ParseLevel(cfg.Log.Level)
	logger.SetLevel(lvl)
	return &app{cfg: cfg, opts: o, stdout: stdout, log: logger, logs: logs}
}
