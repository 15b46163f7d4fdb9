package delivery

import (
	"fmt"
	"strings"
	"time"

	logx "rxalert/pkg/logx"
)

// Options selects and configures channels by name.
type Options struct {
	Sinks       []string
	AutoDismiss time.Duration
	Desktop     DesktopConfig
	Telegram    TelegramConfig
}

// OpenChannel builds the channel for opts.Sinks. It returns nil, nil when
// no sink is configured.
func OpenChannel(opts Options, log logx.Logger) (Channel, error) {
	var chs []Channel
	seen := map[string]bool{}
	for _, raw := range opts.Sinks {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case "desktop":
			cfg := opts.Desktop
			if cfg.AutoDismiss <= 0 {
				cfg.AutoDismiss = opts.AutoDismiss
			}
			chs = append(chs, NewDesktop(cfg, log.With(logx.Component("delivery.desktop"))))
		case "telegram":
			cfg := opts.Telegram
			if cfg.AutoDismiss <= 0 {
				cfg.AutoDismiss = opts.AutoDismiss
			}
			tg, err := NewTelegram(cfg, log.With(logx.Component("delivery.telegram")))
			if err != nil {
				closeAll(chs)
				return nil, fmt.Errorf("telegram sink: %w", err)
			}
			chs = append(chs, tg)
		case "nop", "none":
		default:
			closeAll(chs)
			return nil, fmt.Errorf("unknown sink %q", raw)
		}
	}
	switch len(chs) {
	case 0:
		return nil, nil
	case 1:
		return chs[0], nil
	default:
		return NewMulti(log, chs...), nil
	}
}

func closeAll(chs []Channel) {
	for _, c := range chs {
		_ = c.Close()
	}
}
