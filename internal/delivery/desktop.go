package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"rxalert/internal/notify"
	logx "rxalert/pkg/logx"
)

const (
	fdoDest      = "org.freedesktop.Notifications"
	fdoPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	fdoNotify    = fdoDest + ".Notify"
	fdoServerInf = fdoDest + ".GetServerInformation"
)

// Freedesktop urgency levels.
const (
	urgencyLow      byte = 0
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// dbusCaller is the part of dbus.BusObject the desktop channel uses.
type dbusCaller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

type DesktopConfig struct {
	AppName string
	// AutoDismiss is the on-screen time of non-persistent notifications.
	// Persistent ones stay until the user closes them.
	AutoDismiss time.Duration
}

// Desktop shows notifications through the freedesktop notification daemon
// on the session bus.
type Desktop struct {
	cfg DesktopConfig
	log logx.Logger

	mu   sync.Mutex
	conn *dbus.Conn
	obj  dbusCaller
	dial func() (*dbus.Conn, error)
}

func NewDesktop(cfg DesktopConfig, log logx.Logger) *Desktop {
	if cfg.AppName == "" {
		cfg.AppName = "rxalert"
	}
	if cfg.AutoDismiss <= 0 {
		cfg.AutoDismiss = 5 * time.Second
	}
	return &Desktop{cfg: cfg, log: log, dial: func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() }}
}

func (d *Desktop) Name() string { return "desktop" }

func (d *Desktop) object() (dbusCaller, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.obj != nil {
		return d.obj, nil
	}
	conn, err := d.dial()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	d.conn = conn
	d.obj = conn.Object(fdoDest, fdoPath)
	return d.obj, nil
}

// Probe asks the notification server to identify itself. No bus means
// denied; a bus without a server is undetermined, since one may start later.
func (d *Desktop) Probe(ctx context.Context) notify.Permission {
	obj, err := d.object()
	if err != nil {
		d.log.Debug("desktop bus unavailable", logx.Err(err))
		return notify.PermissionDenied
	}
	var name, vendor, version, specVersion string
	if err := obj.CallWithContext(ctx, fdoServerInf, 0).Store(&name, &vendor, &version, &specVersion); err != nil {
		d.log.Debug("notification server not answering", logx.Err(err))
		return notify.PermissionUndetermined
	}
	d.log.Debug("notification server found", logx.String("server", name), logx.String("vendor", vendor), logx.String("version", version))
	return notify.PermissionGranted
}

func (d *Desktop) Send(ctx context.Context, n notify.Notification) error {
	obj, err := d.object()
	if err != nil {
		return err
	}
	hints := map[string]dbus.Variant{
		"urgency":  dbus.MakeVariant(urgencyFor(n.Tier)),
		"category": dbus.MakeVariant("x-rxalert." + n.Kind),
	}
	if !n.Persistent {
		hints["transient"] = dbus.MakeVariant(true)
	}
	var id uint32
	call := obj.CallWithContext(ctx, fdoNotify, 0,
		d.cfg.AppName,
		uint32(0),
		n.Render.Icon,
		prefixForTier(n.Tier)+n.Title,
		n.Message,
		[]string{},
		hints,
		d.expireTimeout(n),
	)
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("desktop notify: %w", err)
	}
	return nil
}

// expireTimeout is in milliseconds; 0 means the server never expires it.
func (d *Desktop) expireTimeout(n notify.Notification) int32 {
	if n.Persistent {
		return 0
	}
	return int32(d.cfg.AutoDismiss / time.Millisecond)
}

func urgencyFor(tier int) byte {
	switch tier {
	case notify.TierCritical:
		return urgencyCritical
	case notify.TierLow:
		return urgencyLow
	default:
		return urgencyNormal
	}
}

func (d *Desktop) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.obj = nil
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
