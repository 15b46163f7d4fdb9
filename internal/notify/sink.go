package notify

import "context"

type Permission string

const (
	PermissionUndetermined Permission = "undetermined"
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
)

// Sink delivers accepted notifications out of band. Deliver must not block
// on I/O; implementations queue and report failures through their own logs.
type Sink interface {
	Permission() Permission
	RequestPermission(ctx context.Context) Permission
	Deliver(n Notification) error
}

type nopSink struct{}

func (nopSink) Permission() Permission                       { return PermissionDenied }
func (nopSink) RequestPermission(context.Context) Permission { return PermissionDenied }
func (nopSink) Deliver(Notification) error                   { return nil }
