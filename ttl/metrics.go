package ttl

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Scheduled()       {}
func (NoopMetrics) Canceled()        {}
func (NoopMetrics) Expired()         {}
func (NoopMetrics) StaleFire()       {}
func (NoopMetrics) SinkPanic()       {}
func (NoopMetrics) Size(entries int) {}

var _ Metrics = NoopMetrics{}
