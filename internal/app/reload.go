package app

import (
	"context"
	"strings"

	"rxalert/internal/config"
	logx "rxalert/pkg/logx"
)

// startReload fans committed config changes out to the live components.
func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.Config()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	ch := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Debug("config change summary", fields...)

	// logging first so the lines below use the new level
	if ch.Has("logging") {
		a.logs.Apply(a.logConfig(newCfg))
	}

	if ch.Has("engine") {
		nc, err := mapEngineConfig(newCfg)
		if err != nil {
			a.log.Warn("invalid engine config; keeping previous", logx.Err(err))
		} else {
			if a.opts.disableProbes {
				nc.DisableProbes = true
			}
			a.engine.Apply(nc)
		}
	}

	if ch.Has("delivery") && a.disp != nil {
		dc, err := mapDispatcherConfig(newCfg)
		if err != nil {
			a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
		} else {
			a.disp.Apply(dc)
		}
	}

	if ch.Has("debug") {
		dbg, err := mapDebugConfig(newCfg)
		if err != nil {
			a.log.Warn("invalid debug config; keeping previous", logx.Err(err))
		} else {
			a.debug.Reconfigure(ctx, dbg)
		}
	}

	for _, s := range ch.RestartRequired {
		a.log.Warn("config change requires restart to take effect", logx.String("section", s))
	}
	a.log.Info("config reloaded", fields...)
}
