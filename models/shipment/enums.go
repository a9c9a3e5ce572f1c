package shipment

// ShipmentStatus is the overall trip status of a shipment.
type ShipmentStatus string

const (
	ShipmentStatusPickupScheduled ShipmentStatus = "pickup_scheduled"
	ShipmentStatusTripStarted     ShipmentStatus = "trip_started"
	ShipmentStatusEnRoute         ShipmentStatus = "en_route"
	ShipmentStatusDelivered       ShipmentStatus = "delivered"
)

func (ss ShipmentStatus) String() string {
	return string(ss)
}

func (ss ShipmentStatus) IsValid() bool {
	switch ss {
	case ShipmentStatusPickupScheduled, ShipmentStatusTripStarted, ShipmentStatusEnRoute, ShipmentStatusDelivered:
		return true
	default:
		return false
	}
}

// IsCompleted returns true if the shipment has reached its terminal state
func (ss ShipmentStatus) IsCompleted() bool {
	return ss == ShipmentStatusDelivered
}

// CheckpointKind identifies one of the three ordered trip milestones.
type CheckpointKind string

const (
	CheckpointTripStart  CheckpointKind = "trip_start"
	CheckpointRouteStart CheckpointKind = "route_start"
	CheckpointTripEnd    CheckpointKind = "trip_end"
)

func (ck CheckpointKind) String() string {
	return string(ck)
}

func (ck CheckpointKind) IsValid() bool {
	switch ck {
	case CheckpointTripStart, CheckpointRouteStart, CheckpointTripEnd:
		return true
	default:
		return false
	}
}

// Prerequisite returns the checkpoint that must be verified before this one
// may be requested. The first checkpoint has no prerequisite.
func (ck CheckpointKind) Prerequisite() (CheckpointKind, bool) {
	switch ck {
	case CheckpointRouteStart:
		return CheckpointTripStart, true
	case CheckpointTripEnd:
		return CheckpointRouteStart, true
	default:
		return "", false
	}
}

// IsFinal reports whether verifying this checkpoint completes the trip.
func (ck CheckpointKind) IsFinal() bool {
	return ck == CheckpointTripEnd
}

// AllCheckpointKinds returns the three checkpoints in trip order.
func AllCheckpointKinds() []CheckpointKind {
	return []CheckpointKind{CheckpointTripStart, CheckpointRouteStart, CheckpointTripEnd}
}

// CheckpointState is the per-checkpoint progression lattice. Exactly one
// state holds at any time; transitions never skip or reverse.
type CheckpointState string

const (
	CheckpointNotRequested CheckpointState = "not_requested"
	CheckpointPending      CheckpointState = "pending"
	CheckpointApproved     CheckpointState = "approved"
	CheckpointVerified     CheckpointState = "verified"
)

func (cs CheckpointState) String() string {
	return string(cs)
}

func (cs CheckpointState) IsValid() bool {
	switch cs {
	case CheckpointNotRequested, CheckpointPending, CheckpointApproved, CheckpointVerified:
		return true
	default:
		return false
	}
}
