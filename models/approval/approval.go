package approval

import (
	"time"

	"freightlink/models/shipment"
)

// TaskStatus is the review state of an admin approval task.
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusApproved TaskStatus = "approved"
	TaskStatusExpired  TaskStatus = "expired"
)

// ApprovalTask is the admin review queue record created when a carrier
// requests a checkpoint. The back-office approves it out of band.
type ApprovalTask struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	ShipmentID uint              `gorm:"not null;index" json:"shipment_id"`
	Shipment   shipment.Shipment `gorm:"foreignKey:ShipmentID" json:"shipment"`

	Checkpoint shipment.CheckpointKind `gorm:"type:varchar(20);not null" json:"checkpoint"`
	Status     TaskStatus              `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`

	RequestedBy string     `gorm:"type:varchar(255);not null" json:"requested_by"`
	RequestedAt time.Time  `gorm:"not null" json:"requested_at"`
	ApprovedBy  *string    `gorm:"type:varchar(255)" json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName sets the table name for the ApprovalTask model
func (ApprovalTask) TableName() string {
	return "approval_tasks"
}
