package tripgate

import "errors"

// State-machine guard violations. All are recoverable and surfaced to the
// caller with enough context to retry correctly.
var (
	ErrShipmentNotFound  = errors.New("shipment not found")
	ErrUnknownCheckpoint = errors.New("unknown checkpoint kind")
	ErrOutOfOrder        = errors.New("prerequisite checkpoint not verified")
	ErrAlreadyRequested  = errors.New("checkpoint already requested")
	ErrNotPending        = errors.New("checkpoint is not pending approval")
	ErrNotApproved       = errors.New("checkpoint is not approved")
)
