// Package delivery pushes accepted notifications to the outside world.
//
// A Dispatcher implements notify.Sink: Deliver only enqueues, a single
// worker sends in acceptance order through a Channel with a token-bucket
// rate limit and jittered retries. Channels exist for the freedesktop
// notification daemon (D-Bus) and for a Telegram chat; Multi fans out to
// several of them.
package delivery
