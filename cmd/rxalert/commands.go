package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v3"

	"rxalert/internal/app"
	"rxalert/internal/legacy"
	"rxalert/internal/notify"
	logx "rxalert/pkg/logx"
)

const stopTimeout = 10 * time.Second

// withApp opens the engine without scheduled probes, runs fn and stops.
func withApp(ctx context.Context, f *flags, fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.NewApp(f.configPath, app.WithLogLevel(f.logLevel), app.WithoutProbes())
	if err != nil {
		return err
	}
	runErr := a.Open(ctx)
	if runErr == nil {
		runErr = fn(ctx, a)
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	return joinErrs(runErr, a.Stop(stopCtx, app.StopCommandDone))
}

// joinErrs returns a lone error unchanged so the CLI prints it plainly.
func joinErrs(errs ...error) error {
	merr := multierror.Append(nil, errs...)
	switch len(merr.Errors) {
	case 0:
		return nil
	case 1:
		return merr.Errors[0]
	}
	return merr
}

func runCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the engine until interrupted",
		Description: `Starts the engine, the scheduled stock and expiry probes, the retention
sweep, delivery and (when enabled) the debug HTTP server. The config file is
watched and reloaded in place.

Under systemd (Type=notify) readiness, stopping and watchdog pings are sent.`,
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := app.NewApp(f.configPath, app.WithLogLevel(f.logLevel))
			if err != nil {
				return err
			}
			log := a.Logger()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			if err := a.Start(runCtx); err != nil {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
				defer stopCancel()
				_ = a.Stop(stopCtx, app.StopFatalError)
				return err
			}
			sdNotify(log, daemon.SdNotifyReady)
			go watchdog(runCtx, a, log)

			reason := app.StopUnknown
			select {
			case s := <-sigCh:
				reason = app.StopSIGINT
				if s == syscall.SIGTERM {
					reason = app.StopSIGTERM
				}
			case <-a.Done():
				reason = app.StopFatalError
			}

			sdNotify(log, daemon.SdNotifyStopping)
			cancel()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
			defer stopCancel()
			stopErr := a.Stop(stopCtx, reason)
			if reason == app.StopFatalError {
				return joinErrs(a.Err(), stopErr)
			}
			return stopErr
		},
	}
}

func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// watchdog pings systemd at half the configured interval while the engine
// reports healthy.
func watchdog(ctx context.Context, a *app.App, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !a.Status().Engine.Initialized {
				log.Warn("engine not initialized; skipping watchdog ping")
				continue
			}
			sdNotify(log, daemon.SdNotifyWatchdog)
		}
	}
}

type listCmdFlags struct {
	unread  bool
	all     bool
	kind    string
	maxTier int
	asJSON  bool
	legacy  bool
}

func listCmd(f *flags) *cli.Command {
	var lf listCmdFlags
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List notifications in display order",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "unread", Aliases: []string{"u"}, Usage: "only unread", Destination: &lf.unread},
			&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "include dismissed", Destination: &lf.all},
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "only this kind (e.g. LOW_STOCK)", Destination: &lf.kind},
			&cli.IntFlag{Name: "max-tier", Usage: "only tiers up to this one (1 is most urgent)", Destination: &lf.maxTier},
			&cli.BoolFlag{Name: "json", Usage: "print JSON", Destination: &lf.asJSON},
			&cli.BoolFlag{Name: "legacy", Usage: "print the old notification shape as JSON", Destination: &lf.legacy},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, f, func(ctx context.Context, a *app.App) error {
				if lf.legacy {
					items, err := a.Legacy().GetNotifications(lf.unread)
					if err != nil {
						return err
					}
					return printJSON(os.Stdout, items)
				}
				items, err := a.Engine().List(notify.Filter{
					Kind:             strings.ToUpper(strings.TrimSpace(lf.kind)),
					UnreadOnly:       lf.unread,
					MaxTier:          lf.maxTier,
					IncludeDismissed: lf.all,
				})
				if err != nil {
					return err
				}
				if lf.asJSON {
					return printJSON(os.Stdout, items)
				}
				return printTable(os.Stdout, items, time.Now())
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, items []notify.Notification, now time.Time) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "no notifications")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIER\tKIND\tSTATE\tAGE\tTITLE")
	for _, n := range items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			n.ID, n.Tier, n.Kind, state(n), humanize.RelTime(n.CreatedAt, now, "ago", "from now"), n.Title)
	}
	return tw.Flush()
}

func state(n notify.Notification) string {
	switch {
	case n.Dismissed:
		return "dismissed"
	case n.Read:
		return "read"
	default:
		return "unread"
	}
}

func addCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add a notification",
		ArgsUsage: "KIND [key=value ...]",
		Description: `Adds one notification. KIND is a registered kind (LOW_STOCK, EXPIRY_URGENT,
SALE_COMPLETED, ...) or an old lowercase type name (low_stock, expiry, sale).

Example: rxalert add LOW_STOCK productId=p1 productName=Amoxicillin currentStock=8 reorderLevel=10`,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() < 1 {
				return fmt.Errorf("missing KIND")
			}
			payload, err := parsePayload(c.Args().Tail())
			if err != nil {
				return err
			}
			return withApp(ctx, f, func(ctx context.Context, a *app.App) error {
				kind := resolveKind(a.Engine().Registry(), c.Args().First())
				n, err := a.Engine().Add(ctx, kind, payload)
				if err != nil {
					return err
				}
				if n == nil {
					fmt.Println("duplicate within dedup window; nothing added")
					return nil
				}
				fmt.Printf("%s  %s\n", n.ID, n.Title)
				return nil
			})
		},
	}
}

func resolveKind(reg *notify.Registry, raw string) string {
	raw = strings.TrimSpace(raw)
	if _, ok := reg.Lookup(strings.ToUpper(raw)); ok {
		return strings.ToUpper(raw)
	}
	if k, ok := legacy.KindFor(raw); ok {
		return k
	}
	return raw
}

func parsePayload(args []string) (notify.Payload, error) {
	p := notify.Payload{}
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("payload field %q: want key=value", kv)
		}
		p[k] = v
	}
	return p, nil
}

func readCmd(f *flags) *cli.Command {
	var all bool
	return &cli.Command{
		Name:      "read",
		Usage:     "Mark notifications as read",
		ArgsUsage: "[ID ...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "mark every unread notification", Destination: &all},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if !all && c.Args().Len() == 0 {
				return fmt.Errorf("give at least one ID or --all")
			}
			return withApp(ctx, f, func(ctx context.Context, a *app.App) error {
				if all {
					n, err := a.Engine().MarkAllRead()
					if err != nil {
						return err
					}
					fmt.Printf("marked %d read\n", n)
					return nil
				}
				return eachID(c.Args().Slice(), a.Engine().MarkRead, "read")
			})
		},
	}
}

func dismissCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:      "dismiss",
		Usage:     "Dismiss notifications",
		ArgsUsage: "ID [ID ...]",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return fmt.Errorf("give at least one ID")
			}
			return withApp(ctx, f, func(ctx context.Context, a *app.App) error {
				return eachID(c.Args().Slice(), a.Engine().Dismiss, "dismissed")
			})
		},
	}
}

func eachID(ids []string, fn func(string) (bool, error), verb string) error {
	var missing []string
	for _, id := range ids {
		ok, err := fn(id)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, id)
			continue
		}
		fmt.Printf("%s %s\n", id, verb)
	}
	if len(missing) > 0 {
		return fmt.Errorf("not found: %s", strings.Join(missing, ", "))
	}
	return nil
}

func clearCmd(f *flags) *cli.Command {
	var yes bool
	return &cli.Command{
		Name:  "clear",
		Usage: "Remove every notification, persistent ones included",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "confirm", Destination: &yes},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			return withApp(ctx, f, func(ctx context.Context, a *app.App) error {
				if err := a.Engine().ClearAll(); err != nil {
					return err
				}
				fmt.Println("cleared")
				return nil
			})
		},
	}
}

func sweepCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Apply the retention rules now",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, f, func(ctx context.Context, a *app.App) error {
				fmt.Printf("removed %d\n", a.Engine().Sweep())
				return nil
			})
		},
	}
}

func checkCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Run the stock and expiry probes once",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, f, func(ctx context.Context, a *app.App) error {
				before := a.Engine().Stats().Total
				if err := a.Engine().RunChecks(ctx); err != nil {
					return err
				}
				st := a.Engine().Stats()
				fmt.Printf("probes done: %d new, %d unread, %d total\n", max(st.Total-before, 0), st.Unread, st.Total)
				return nil
			})
		},
	}
}
