package otp

import (
	"time"

	"freightlink/models/shipment"
)

// TripOTPEvent is an audit row appended on every code lifecycle change.
// The code itself is stored AES-encrypted; the plaintext never leaves the
// trip_otps table.
type TripOTPEvent struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	ShipmentID uint              `gorm:"not null;index" json:"shipment_id"`
	Shipment   shipment.Shipment `gorm:"foreignKey:ShipmentID" json:"shipment"`

	Checkpoint    shipment.CheckpointKind `gorm:"type:varchar(20);not null" json:"checkpoint"`
	CodeEncrypted string                  `gorm:"type:text" json:"code_encrypted,omitempty"`
	IsUsed        bool                    `gorm:"default:false" json:"is_used"`
	RetryCount    int                     `gorm:"default:0" json:"retry_count"`
	ExpiresAt     time.Time               `gorm:"not null" json:"expires_at"`

	EventType string    `gorm:"type:varchar(50);not null" json:"event_type"` // issued, consumed, expired, blocked
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName sets the table name for the TripOTPEvent model
func (TripOTPEvent) TableName() string {
	return "trip_otp_events"
}
