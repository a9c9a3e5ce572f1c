package tripgate

import "time"

// CheckpointView is the client-facing derivation of a checkpoint state.
// Approved means "approved, code issued, awaiting entry" — distinct from
// verified.
type CheckpointView struct {
	Requested bool `json:"requested"`
	Approved  bool `json:"approved"`
	Verified  bool `json:"verified"`
}

// CheckpointSnapshot is the full three-checkpoint view returned in one call
// so polling clients avoid N+1 reads.
type CheckpointSnapshot struct {
	ShipmentID   uint           `json:"shipment_id"`
	ShipmentUuid string         `json:"shipment_uuid"`
	Status       string         `json:"status"`
	TripStart    CheckpointView `json:"trip_start"`
	RouteStart   CheckpointView `json:"route_start"`
	TripEnd      CheckpointView `json:"trip_end"`
}

type RequestCheckpointRequest struct {
	ShipmentID uint   `json:"shipment_id"`
	Checkpoint string `json:"checkpoint"`
}

type ApproveCheckpointRequest struct {
	ShipmentID uint   `json:"shipment_id"`
	Checkpoint string `json:"checkpoint"`
}

type VerifyCheckpointRequest struct {
	ShipmentID uint   `json:"shipment_id"`
	Checkpoint string `json:"checkpoint"`
	Code       string `json:"code"`
}

// CheckpointEvent is pushed to the owning carrier's websocket subscription
// after a successful state transition.
type CheckpointEvent struct {
	Event        string     `json:"event"`
	ShipmentID   uint       `json:"shipment_id"`
	ShipmentUuid string     `json:"shipment_uuid"`
	Checkpoint   string     `json:"checkpoint"`
	Code         string     `json:"code,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

const (
	EventCheckpointApproved = "checkpoint_approved"
	EventCheckpointVerified = "checkpoint_verified"
	EventShipmentDelivered  = "shipment_delivered"
)
