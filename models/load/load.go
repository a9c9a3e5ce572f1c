package load

import (
	"time"

	"freightlink/models/user"
)

// Load is a shipper-posted freight load. Pricing, bidding and document
// attachments live in their own services; the trip gate only needs the
// ownership and routing columns below.
type Load struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Uuid string `gorm:"type:varchar(255);not null;unique" json:"uuid"`

	ShipperID uint      `gorm:"not null;index" json:"shipper_id"`
	Shipper   user.User `gorm:"foreignKey:ShipperID" json:"shipper"`

	Origin      string  `gorm:"type:varchar(255);not null" json:"origin"`
	Destination string  `gorm:"type:varchar(255);not null" json:"destination"`
	WeightKg    float64 `gorm:"type:decimal(10,2)" json:"weight_kg"`
	Commodity   string  `gorm:"type:varchar(255)" json:"commodity"`

	Status    string     `gorm:"type:varchar(50);not null;default:'posted'" json:"status"`
	CreatedBy string     `gorm:"type:varchar(255);not null" json:"created_by"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}
