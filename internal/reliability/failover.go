package reliability

// FailureStrategy decides what a dependency outage does to traffic.
type FailureStrategy string

const (
	FailOpen   FailureStrategy = "fail_open"
	FailClosed FailureStrategy = "fail_closed"
)

// ShouldAllow determines if a request proceeds given a backend error.
func ShouldAllow(strategy FailureStrategy, err error) bool {
	if err == nil {
		return true
	}
	return strategy == FailOpen
}
