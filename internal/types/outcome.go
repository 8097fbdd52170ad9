package types

// OutcomeClass categorizes the result of a single completed attempt.
type OutcomeClass int

const (
	// OutcomeOk indicates the attempt satisfied the expected-status policy
	// and, if configured, its body assertion.
	OutcomeOk OutcomeClass = iota
	// OutcomeNotExpectedStatus indicates a response arrived but its status
	// did not match the expected-status policy.
	OutcomeNotExpectedStatus
	// OutcomeTimeout indicates the attempt exceeded its per-attempt timeout.
	OutcomeTimeout
	// OutcomeTransport indicates a transport-level failure (DNS, connect,
	// TLS, reset, cancellation) before or during the attempt.
	OutcomeTransport
	// OutcomeAssertionFailed indicates the status matched but a configured
	// body assertion did not hold.
	OutcomeAssertionFailed
)

// String renders the outcome class's canonical name, as written to raw
// logs and exports.
func (c OutcomeClass) String() string {
	switch c {
	case OutcomeOk:
		return "Ok"
	case OutcomeNotExpectedStatus:
		return "NotExpectedStatus"
	case OutcomeTimeout:
		return "Timeout"
	case OutcomeTransport:
		return "Transport"
	case OutcomeAssertionFailed:
		return "AssertionFailed"
	default:
		return "Unknown"
	}
}

// ParseOutcomeClass is the inverse of String, used when reading raw logs.
func ParseOutcomeClass(s string) OutcomeClass {
	switch s {
	case "Ok":
		return OutcomeOk
	case "NotExpectedStatus":
		return OutcomeNotExpectedStatus
	case "Timeout":
		return OutcomeTimeout
	case "Transport":
		return OutcomeTransport
	case "AssertionFailed":
		return OutcomeAssertionFailed
	default:
		return OutcomeTransport
	}
}

// RequestOutcome is the atomic unit recorded per completed attempt.
// WorkerID/ShardID route the outcome to its
// log shard; TraceID/SpanID correlate the attempt with an OpenTelemetry span
// when tracing is enabled (empty otherwise).
type RequestOutcome struct {
	TimestampUs     int64        `json:"ts_us"`
	LatencyNs       int64        `json:"latency_ns"`
	Status          int          `json:"status"`
	Class           OutcomeClass `json:"-"`
	ResponseBytes   int64        `json:"response_bytes"`
	InFlightAtStart int          `json:"in_flight_at_start"`
	StepIndex       int          `json:"step_index"`
	ShardID         int          `json:"shard_id"`
	WorkerID        int          `json:"-"`
	TraceID         string       `json:"-"`
	SpanID          string       `json:"-"`
}

// IsOk reports whether this attempt satisfied the expected-status policy
// and any configured assertion.
func (o RequestOutcome) IsOk() bool {
	return o.Class == OutcomeOk
}
