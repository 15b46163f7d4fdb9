package delivery

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"rxalert/internal/notify"
	logx "rxalert/pkg/logx"
)

const telegramTextLimit = 4096

// teleAPI is the part of *tele.Bot the channel uses.
type teleAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
	Raw(method string, payload interface{}) ([]byte, error)
}

type TelegramConfig struct {
	Token       string
	ChatID      int64
	ThreadID    int
	PollTimeout time.Duration
	// AutoDismiss deletes non-persistent messages after this long.
	AutoDismiss time.Duration
}

// Telegram posts notifications to one chat (optionally one forum thread).
type Telegram struct {
	cfg TelegramConfig
	log logx.Logger
	api teleAPI

	mu     sync.Mutex
	timers map[int]*time.Timer // pending auto-dismiss deletes by message id
	closed bool
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	// Offline skips getMe here; Probe performs the authentication.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return newTelegram(cfg, log, b), nil
}

func newTelegram(cfg TelegramConfig, log logx.Logger, api teleAPI) *Telegram {
	if cfg.AutoDismiss <= 0 {
		cfg.AutoDismiss = 5 * time.Second
	}
	return &Telegram{cfg: cfg, log: log, api: api, timers: map[int]*time.Timer{}}
}

func (t *Telegram) Name() string { return "telegram" }

// Probe authenticates the bot token with getMe.
func (t *Telegram) Probe(ctx context.Context) notify.Permission {
	if _, err := t.api.Raw("getMe", nil); err != nil {
		t.log.Warn("telegram auth failed", logx.Err(err))
		return notify.PermissionDenied
	}
	return notify.PermissionGranted
}

func (t *Telegram) Send(ctx context.Context, n notify.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := t.api.Send(&tele.Chat{ID: t.cfg.ChatID}, formatTelegram(n), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              t.cfg.ThreadID,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if !n.Persistent && msg != nil {
		t.scheduleDelete(msg)
	}
	return nil
}

func (t *Telegram) scheduleDelete(msg *tele.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	id := msg.ID
	t.timers[id] = time.AfterFunc(t.cfg.AutoDismiss, func() {
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
		if err := t.api.Delete(msg); err != nil {
			t.log.Debug("telegram auto-dismiss failed", logx.Int("message_id", id), logx.Err(err))
		}
	})
}

// Close cancels pending auto-dismiss deletes; those messages stay.
func (t *Telegram) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, tm := range t.timers {
		tm.Stop()
		delete(t.timers, id)
	}
	return nil
}

func (t *Telegram) pendingDeletes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// formatTelegram renders n as HTML: bold title, then the message and the
// action target if any. The limit applies to the visible text, so parts are
// clipped before escaping and no tag or entity is ever cut.
func formatTelegram(n notify.Notification) string {
	title := clipRunes(prefixForTier(n.Tier)+n.Title, telegramTextLimit)
	budget := telegramTextLimit - utf8.RuneCountInString(title)

	var action string
	if a := n.Render.Action; a != nil && a.Label != "" {
		action = clipRunes(a.Label+": "+a.Target, max(budget-1, 0))
		budget -= utf8.RuneCountInString(action) + 1
	}
	message := n.Message
	if message != "" {
		message = clipRunes(message, max(budget-1, 0))
	}

	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</b>")
	if message != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(message))
	}
	if action != "" {
		b.WriteString("\n<i>")
		b.WriteString(html.EscapeString(action))
		b.WriteString("</i>")
	}
	return b.String()
}

func clipRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}
