package rating

import (
	"time"

	"freightlink/models/shipment"
)

// ObligationStatus is the lifecycle state of a rating obligation.
type ObligationStatus string

const (
	ObligationPending ObligationStatus = "pending"
	ObligationCleared ObligationStatus = "cleared"
)

// RatingObligation is the durable "rating pending" marker armed when a
// shipment's trip_end checkpoint is verified. It lives in the database so it
// survives client restarts, and stays pending until the carrier submits or
// explicitly skips the rating.
type RatingObligation struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	ShipmentID uint              `gorm:"not null;uniqueIndex" json:"shipment_id"`
	Shipment   shipment.Shipment `gorm:"foreignKey:ShipmentID" json:"shipment"`

	CarrierID uint `gorm:"not null;index" json:"carrier_id"`

	// Uuid of the shipper to be rated; empty until the directory lookup
	// resolves. Resolution is eventually consistent.
	CounterpartyUuid *string `gorm:"type:varchar(255)" json:"counterparty_uuid,omitempty"`

	Status    ObligationStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	ArmedAt   time.Time        `gorm:"not null" json:"armed_at"`
	ClearedAt *time.Time       `json:"cleared_at,omitempty"`
	ClearedBy *string          `gorm:"type:varchar(255)" json:"cleared_by,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName sets the table name for the RatingObligation model
func (RatingObligation) TableName() string {
	return "rating_obligations"
}

// IsResolved reports whether the counterparty identity has been resolved.
func (ro *RatingObligation) IsResolved() bool {
	return ro.CounterpartyUuid != nil && *ro.CounterpartyUuid != ""
}

// Rating is the carrier-submitted rating of the shipper after delivery.
type Rating struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	ShipmentID uint `gorm:"not null;uniqueIndex" json:"shipment_id"`
	CarrierID  uint `gorm:"not null;index" json:"carrier_id"`

	CounterpartyUuid string `gorm:"type:varchar(255);not null" json:"counterparty_uuid"`
	Score            int    `gorm:"not null" json:"score"`
	Comment          string `gorm:"type:text" json:"comment"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName sets the table name for the Rating model
func (Rating) TableName() string {
	return "ratings"
}
