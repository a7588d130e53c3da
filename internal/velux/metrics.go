package velux

// Metrics receives outcome counts. internal/metrics provides the Prometheus
// implementation; labels are plain strings so that package does not depend
// on this one.
type Metrics interface {
	ObserveGrant(grant, result string)
	ObserveRetry(failure string)
	ObserveRequest(action, result string)
}

// Result label values.
const (
	resultSuccess = "success"
	resultFailure = "failure"
)

func resultLabel(err error) string {
	if err != nil {
		return resultFailure
	}

	return resultSuccess
}

type nopMetrics struct{}

func (nopMetrics) ObserveGrant(string, string)   {}
func (nopMetrics) ObserveRetry(string)           {}
func (nopMetrics) ObserveRequest(string, string) {}
