package shipment

import (
	"time"
)

// ShipmentStatusEvent records every checkpoint or status change of a shipment.
type ShipmentStatusEvent struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	// Foreign key for shipment relationship
	ShipmentID uint     `gorm:"not null;index" json:"shipment_id"`
	Shipment   Shipment `gorm:"foreignKey:ShipmentID" json:"shipment"`

	Status          ShipmentStatus  `gorm:"type:varchar(50);not null" json:"status"`
	TripStartState  CheckpointState `gorm:"type:varchar(20);not null" json:"trip_start_state"`
	RouteStartState CheckpointState `gorm:"type:varchar(20);not null" json:"route_start_state"`
	TripEndState    CheckpointState `gorm:"type:varchar(20);not null" json:"trip_end_state"`

	EventType string    `gorm:"type:varchar(50);not null" json:"event_type"` // requested, approved, verified, expired, delivered
	CreatedBy string    `gorm:"type:varchar(255);not null" json:"created_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName sets the table name for the ShipmentStatusEvent model
func (ShipmentStatusEvent) TableName() string {
	return "shipment_status_events"
}
