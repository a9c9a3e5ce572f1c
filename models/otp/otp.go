package otp

import (
	"time"

	"freightlink/models/shipment"
)

// TripOTP is the ephemeral one-time code minted when an admin approves a
// checkpoint. At most one active (unused, unexpired) code exists per
// (shipment, checkpoint) pair; issuing a new code invalidates the old one.
type TripOTP struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	ShipmentID uint                    `gorm:"not null;index" json:"shipment_id"`
	Checkpoint shipment.CheckpointKind `gorm:"type:varchar(20);not null;index" json:"checkpoint"`

	Code          string     `gorm:"type:varchar(6);not null" json:"code"`
	IsUsed        bool       `gorm:"default:false" json:"is_used"`
	RetryCount    int        `gorm:"default:0" json:"retry_count"`
	MaxRetries    int        `gorm:"default:3" json:"max_retries"`
	IsBlocked     bool       `gorm:"default:false" json:"is_blocked"`
	BlockedUntil  *time.Time `gorm:"index" json:"blocked_until,omitempty"`
	LastAttemptAt *time.Time `gorm:"index" json:"last_attempt_at,omitempty"`
	ExpiresAt     time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName sets the table name for the TripOTP model
func (TripOTP) TableName() string {
	return "trip_otps"
}

// IsExpired checks if the code has expired
func (o *TripOTP) IsExpired() bool {
	return time.Now().After(o.ExpiresAt)
}

// IsActive checks if the code is still usable (not used, not expired, not blocked)
func (o *TripOTP) IsActive() bool {
	return !o.IsUsed && !o.IsExpired() && !o.IsBlocked
}

// IsCurrentlyBlocked checks if the code is blocked due to too many failed attempts
func (o *TripOTP) IsCurrentlyBlocked() bool {
	if !o.IsBlocked {
		return false
	}

	// A nil BlockedUntil means permanently blocked
	if o.BlockedUntil == nil {
		return true
	}

	if time.Now().After(*o.BlockedUntil) {
		return false
	}

	return true
}

// CanRetry checks if another validation attempt is allowed
func (o *TripOTP) CanRetry() bool {
	return !o.IsUsed && !o.IsExpired() && !o.IsCurrentlyBlocked() && o.RetryCount < o.MaxRetries
}

// IncrementRetry increments the retry count and blocks if max retries exceeded
func (o *TripOTP) IncrementRetry() {
	now := time.Now()
	o.RetryCount++
	o.LastAttemptAt = &now

	if o.RetryCount >= o.MaxRetries {
		o.IsBlocked = true
		// Block for 15 minutes after max retries
		blockUntil := now.Add(15 * time.Minute)
		o.BlockedUntil = &blockUntil
	}
}

// Reset resets the retry state (used when unblocking)
func (o *TripOTP) Reset() {
	o.RetryCount = 0
	o.IsBlocked = false
	o.BlockedUntil = nil
	o.LastAttemptAt = nil
}
