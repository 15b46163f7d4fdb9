package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"rxalert/internal/runtime/supervisor"
	"rxalert/internal/storage"
	logx "rxalert/pkg/logx"
)

// record is the persisted layout of one notification.
type record struct {
	ID           string      `json:"id"`
	Kind         string      `json:"kind"`
	Title        string      `json:"title"`
	Message      string      `json:"message"`
	CreatedAt    int64       `json:"createdAt"`
	PriorityTier int         `json:"priorityTier"`
	Persistent   bool        `json:"persistent"`
	IsRead       bool        `json:"isRead"`
	IsDismissed  bool        `json:"isDismissed"`
	Payload      Payload     `json:"payload"`
	RenderHints  RenderHints `json:"renderHints"`
}

func toRecord(n Notification) record {
	return record{
		ID:           n.ID,
		Kind:         n.Kind,
		Title:        n.Title,
		Message:      n.Message,
		CreatedAt:    n.CreatedAt.UnixMilli(),
		PriorityTier: n.Tier,
		Persistent:   n.Persistent,
		IsRead:       n.Read,
		IsDismissed:  n.Dismissed,
		Payload:      n.Payload,
		RenderHints:  n.Render,
	}
}

func (r record) notification() Notification {
	p := r.Payload
	if p == nil {
		p = Payload{}
	}
	return Notification{
		ID:         r.ID,
		Kind:       r.Kind,
		Title:      r.Title,
		Message:    r.Message,
		CreatedAt:  time.UnixMilli(r.CreatedAt),
		Tier:       r.PriorityTier,
		Persistent: r.Persistent,
		Read:       r.IsRead,
		Dismissed:  r.IsDismissed,
		Payload:    p,
		Render:     r.RenderHints,
	}
}

func encodeSnapshot(ns []Notification) ([]byte, error) {
	recs := make([]record, 0, len(ns))
	for _, n := range ns {
		recs = append(recs, toRecord(n))
	}
	return json.Marshal(recs)
}

// decodeSnapshot parses a snapshot, skipping records without id or kind.
func decodeSnapshot(b []byte) ([]Notification, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}
	var recs []record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(recs))
	for _, r := range recs {
		if r.ID == "" || r.Kind == "" {
			continue
		}
		out = append(out, r.notification())
	}
	return out, nil
}

// persister writes snapshots to a slot off the caller's goroutine. Pending
// snapshots coalesce: only the newest version is written.
type persister struct {
	slot    storage.Slot
	log     logx.Logger
	rec     Recorder
	timeout time.Duration

	mu      sync.Mutex
	pending []byte
	version uint64 // newest version handed to save
	dirty   bool

	writeMu sync.Mutex
	wake    chan struct{}
}

func newPersister(slot storage.Slot, log logx.Logger, rec Recorder, timeout time.Duration) *persister {
	return &persister{
		slot:    slot,
		log:     log,
		rec:     rec,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
	}
}

// start runs the writer loop under sup until its context ends.
func (p *persister) start(sup *supervisor.Supervisor) {
	sup.Go0("notify.persist", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
				_ = p.writePending(context.Background())
			}
		}
	})
}

func (p *persister) load(ctx context.Context) ([]Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	b, err := p.slot.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %w", ErrPersistence, err)
	}
	ns, err := decodeSnapshot(b)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt snapshot: %w", ErrPersistence, err)
	}
	return ns, nil
}

// save queues ns as snapshot version v. Older versions are ignored.
func (p *persister) save(v uint64, ns []Notification) {
	data, err := encodeSnapshot(ns)
	if err != nil {
		p.rec.PersistFailed()
		p.log.Error("snapshot encode failed", logx.Err(fmt.Errorf("%w: %w", ErrPersistence, err)))
		return
	}
	p.mu.Lock()
	if v < p.version {
		p.mu.Unlock()
		return
	}
	p.version = v
	p.pending = data
	p.dirty = true
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// flush writes the pending snapshot, if any, on the caller's goroutine.
func (p *persister) flush(ctx context.Context) error {
	return p.writePending(ctx)
}

func (p *persister) writePending(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	data, dirty := p.pending, p.dirty
	p.pending, p.dirty = nil, false
	p.mu.Unlock()
	if !dirty {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	start := time.Now()
	if err := p.slot.Save(wctx, data); err != nil {
		p.rec.PersistFailed()
		err = fmt.Errorf("%w: %w", ErrPersistence, err)
		p.log.Warn("snapshot write failed", logx.Err(err), logx.Int("bytes", len(data)))
		return err
	}
	p.log.Debug("snapshot written", logx.Int("bytes", len(data)), logx.Duration("took", time.Since(start)))
	return nil
}
