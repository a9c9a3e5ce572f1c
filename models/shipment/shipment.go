package shipment

import (
	"time"

	"freightlink/models/load"
	"freightlink/models/user"
)

// Shipment represents one assigned load-carrier pairing moving through the
// OTP-gated trip progression. The three checkpoint columns hold the explicit
// four-state lattice; clients only ever see the derived snapshot.
type Shipment struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Uuid string `gorm:"type:varchar(255);not null;unique" json:"uuid"`

	// Foreign key for load relationship
	LoadID uint      `gorm:"not null;index" json:"load_id"`
	Load   load.Load `gorm:"foreignKey:LoadID" json:"load"`

	// Foreign key for carrier relationship
	CarrierID uint      `gorm:"not null;index" json:"carrier_id"`
	Carrier   user.User `gorm:"foreignKey:CarrierID" json:"carrier"`

	Status ShipmentStatus `gorm:"type:varchar(50);not null" json:"status"`

	TripStartState  CheckpointState `gorm:"type:varchar(20);not null;default:'not_requested'" json:"trip_start_state"`
	RouteStartState CheckpointState `gorm:"type:varchar(20);not null;default:'not_requested'" json:"route_start_state"`
	TripEndState    CheckpointState `gorm:"type:varchar(20);not null;default:'not_requested'" json:"trip_end_state"`

	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	CreatedBy string     `gorm:"type:varchar(255);not null" json:"created_by"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedBy string     `gorm:"type:varchar(255)" json:"updated_by,omitempty"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

// CheckpointState returns the state column for the given checkpoint kind.
func (s *Shipment) CheckpointState(kind CheckpointKind) CheckpointState {
	switch kind {
	case CheckpointTripStart:
		return s.TripStartState
	case CheckpointRouteStart:
		return s.RouteStartState
	case CheckpointTripEnd:
		return s.TripEndState
	default:
		return ""
	}
}

// SetCheckpointState writes the state column for the given checkpoint kind.
func (s *Shipment) SetCheckpointState(kind CheckpointKind, state CheckpointState) {
	switch kind {
	case CheckpointTripStart:
		s.TripStartState = state
	case CheckpointRouteStart:
		s.RouteStartState = state
	case CheckpointTripEnd:
		s.TripEndState = state
	}
}

// StatusAfterVerify returns the overall shipment status implied by a
// checkpoint reaching verified.
func StatusAfterVerify(kind CheckpointKind) ShipmentStatus {
	switch kind {
	case CheckpointTripStart:
		return ShipmentStatusTripStarted
	case CheckpointRouteStart:
		return ShipmentStatusEnRoute
	case CheckpointTripEnd:
		return ShipmentStatusDelivered
	default:
		return ShipmentStatusPickupScheduled
	}
}
