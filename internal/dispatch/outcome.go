package dispatch

// Status classifies what happened to a matched rule's action.
type Status string

const (
	// StatusDispatched means the remote call succeeded.
	StatusDispatched Status = "dispatched"
	// StatusSkippedDuplicate means the fingerprint was already claimed.
	StatusSkippedDuplicate Status = "skipped-duplicate"
	// StatusDryRun means the payload was rendered and logged, no call made.
	StatusDryRun Status = "dry-run"
	// StatusSkipped means a guard condition declined the action
	// (non-positive amount, destination not an own account).
	StatusSkipped Status = "skipped"
	// StatusFailed means retries were exhausted or the provider rejected
	// the call. The idempotency claim is kept so redeliveries do not
	// silently re-execute; failed dispatches surface for manual review.
	StatusFailed Status = "failed"
)

// Outcome is the result of dispatching one matched rule.
type Outcome struct {
	Status Status
	Reason string
}

func dispatched() Outcome {
	return Outcome{Status: StatusDispatched}
}

func skippedDuplicate() Outcome {
	return Outcome{Status: StatusSkippedDuplicate}
}

func dryRun() Outcome {
	return Outcome{Status: StatusDryRun}
}

func skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

func failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}
