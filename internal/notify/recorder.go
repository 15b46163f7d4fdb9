package notify

// Recorder receives engine counters. internal/metrics implements it with
// Prometheus collectors.
type Recorder interface {
	Added(kind string)
	Deduped(kind string)
	Pruned(n int)
	ProbeRun(probe string, err error)
	PersistFailed()
	StoreSize(total, unread int)
}

type nopRecorder struct{}

func (nopRecorder) Added(string)           {}
func (nopRecorder) Deduped(string)         {}
func (nopRecorder) Pruned(int)             {}
func (nopRecorder) ProbeRun(string, error) {}
func (nopRecorder) PersistFailed()         {}
func (nopRecorder) StoreSize(int, int)     {}
