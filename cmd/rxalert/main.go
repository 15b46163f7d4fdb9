package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/urfave/cli/v3"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

func build() string {
	v, c := version, commit
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					c = s.Value
				}
			}
		}
	}
	if len(c) > 7 {
		c = c[:7]
	}
	return fmt.Sprintf("%s (%s)", v, c)
}

type flags struct {
	configPath string
	logLevel   string
}

func main() {
	f := &flags{}

	root := &cli.Command{
		Name:  "rxalert",
		Usage: "Pharmacy notification engine",
		Description: `rxalert keeps the pharmacy's alert list: low and critical stock, expiring
batches, completed sales and system messages.

Run 'rxalert run' to start the engine with its scheduled inventory probes.
The other commands open the same store for one-off inspection or changes.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file (JSON or YAML); empty uses built-in defaults",
				Sources:     cli.EnvVars("RXALERT_CONFIG"),
				Destination: &f.configPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "override logging.level (trace, debug, info, warn, error)",
				Sources:     cli.EnvVars("RXALERT_LOG_LEVEL"),
				Destination: &f.logLevel,
			},
		},
		Commands: []*cli.Command{
			runCmd(f),
			listCmd(f),
			addCmd(f),
			readCmd(f),
			dismissCmd(f),
			clearCmd(f),
			sweepCmd(f),
			checkCmd(f),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "rxalert:", err)
		os.Exit(1)
	}
}
