package core

import "errors"

var (
	// ErrPreconditionViolation means a precondition was false; the action was not dispatched.
	ErrPreconditionViolation = errors.New("precondition violation")

	// ErrInvariantViolation means an invariant became false while an action was in flight.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrPostconditionMismatch means a postcondition did not hold after completion.
	ErrPostconditionMismatch = errors.New("postcondition mismatch")

	// ErrTelemetryTimeout means the live system did not answer a read in time.
	ErrTelemetryTimeout = errors.New("telemetry timeout")

	// ErrActionIncomplete means the completion wait ended before the target was held.
	ErrActionIncomplete = errors.New("action incomplete")

	// ErrUserCancellation means the operator interrupted the mission.
	ErrUserCancellation = errors.New("user cancellation")

	// ErrFailureFlag means a hard mission limit (time, battery, height) was crossed.
	ErrFailureFlag = errors.New("failure flag")

	// ErrUnknownVariable means a read named a variable the live system does not expose.
	ErrUnknownVariable = errors.New("unknown variable")
)
