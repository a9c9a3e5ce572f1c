package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"freightlink/logger"
	otpModel "freightlink/models/otp"
	"freightlink/models/shipment"
	"freightlink/utils"

	"gorm.io/gorm"
)

// CodeValidity is how long an issued checkpoint code stays valid.
const CodeValidity = 10 * time.Minute

// Code validation failures. All are caller-correctable: Expired means the
// carrier must run a fresh request/approve cycle, NoActiveCode covers both
// never-issued and already-consumed codes.
var (
	ErrNoActiveCode    = errors.New("no active code for this checkpoint")
	ErrInvalidCode     = errors.New("submitted code does not match")
	ErrExpired         = errors.New("code has expired")
	ErrTooManyAttempts = errors.New("too many failed attempts, code is blocked")
)

// Service issues and validates one-time checkpoint codes
type Service struct {
	DB *gorm.DB
}

// NewService creates a new OTP service
func NewService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// GenerateCode generates a random 6-digit code
func (s *Service) GenerateCode() (string, error) {
	max := big.NewInt(999999)
	min := big.NewInt(100000)

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	// Ensure the number is at least 6 digits
	n.Add(n, min)
	if n.Cmp(max) > 0 {
		n.Sub(n, max)
		n.Add(n, min)
	}

	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Issue invalidates any prior active code for the (shipment, checkpoint)
// pair and stores a fresh one. Runs inside the caller's transaction.
func (s *Service) Issue(tx *gorm.DB, shipmentID uint, kind shipment.CheckpointKind) (*otpModel.TripOTP, error) {
	code, err := s.GenerateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	// A new approval supersedes any outstanding code for this checkpoint
	err = tx.Model(&otpModel.TripOTP{}).
		Where("shipment_id = ? AND checkpoint = ? AND is_used = false", shipmentID, kind).
		Update("is_used", true).Error
	if err != nil {
		return nil, fmt.Errorf("failed to invalidate existing codes: %w", err)
	}

	newOTP := &otpModel.TripOTP{
		ShipmentID: shipmentID,
		Checkpoint: kind,
		Code:       code,
		IsUsed:     false,
		RetryCount: 0,
		MaxRetries: 3,
		IsBlocked:  false,
		ExpiresAt:  time.Now().Add(CodeValidity),
	}

	if err := tx.Create(newOTP).Error; err != nil {
		return nil, fmt.Errorf("failed to create code record: %w", err)
	}

	s.writeEvent(tx, newOTP, "issued")

	return newOTP, nil
}

// Validate checks the submitted code against the most recently issued,
// unconsumed code for the pair. Successful validation consumes the code so
// a replay fails with ErrNoActiveCode. Runs inside the caller's transaction;
// retry-count updates are persisted even when validation fails.
func (s *Service) Validate(tx *gorm.DB, shipmentID uint, kind shipment.CheckpointKind, submitted string) error {
	var record otpModel.TripOTP

	err := tx.Where("shipment_id = ? AND checkpoint = ? AND is_used = false", shipmentID, kind).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoActiveCode
		}
		return fmt.Errorf("failed to find code record: %w", err)
	}

	if record.IsCurrentlyBlocked() {
		return ErrTooManyAttempts
	}

	if record.IsExpired() {
		// Consume the stale code so it can never be replayed later
		record.IsUsed = true
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to mark expired code as used: %w", err)
		}
		s.writeEvent(tx, &record, "expired")
		return ErrExpired
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(submitted)) != 1 {
		record.IncrementRetry()
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to update retry count: %w", err)
		}
		if record.IsCurrentlyBlocked() {
			s.writeEvent(tx, &record, "blocked")
			return ErrTooManyAttempts
		}
		return ErrInvalidCode
	}

	record.IsUsed = true
	if err := tx.Save(&record).Error; err != nil {
		return fmt.Errorf("failed to mark code as used: %w", err)
	}
	s.writeEvent(tx, &record, "consumed")

	return nil
}

// ActiveCode returns the current unconsumed, unexpired code for the pair,
// or nil when none exists.
func (s *Service) ActiveCode(shipmentID uint, kind shipment.CheckpointKind) (*otpModel.TripOTP, error) {
	var record otpModel.TripOTP

	err := s.DB.Where("shipment_id = ? AND checkpoint = ? AND is_used = false AND expires_at > ?",
		shipmentID, kind, time.Now()).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find code record: %w", err)
	}

	return &record, nil
}

// CleanupExpired removes consumed code records past their expiry. Unconsumed
// expired codes are kept: the verify path needs the row to report expiry and
// revert the checkpoint.
func (s *Service) CleanupExpired() error {
	return s.DB.Where("expires_at < ? AND is_used = true", time.Now()).Delete(&otpModel.TripOTP{}).Error
}

// CleanupExpiredBlocks resets codes whose block window has passed
func (s *Service) CleanupExpiredBlocks() error {
	now := time.Now()

	var expiredBlocks []otpModel.TripOTP
	err := s.DB.Where("is_blocked = true AND blocked_until IS NOT NULL AND blocked_until < ?", now).
		Find(&expiredBlocks).Error
	if err != nil {
		return fmt.Errorf("failed to find expired blocks: %w", err)
	}

	for _, record := range expiredBlocks {
		record.Reset()
		if err := s.DB.Save(&record).Error; err != nil {
			logger.Error(fmt.Sprintf("Failed to reset expired block for code ID %d", record.ID), err)
		}
	}

	return nil
}

// writeEvent appends an audit row for a code lifecycle change. The code is
// stored encrypted; a missing encryption key degrades to an empty column
// rather than failing the transaction.
func (s *Service) writeEvent(tx *gorm.DB, record *otpModel.TripOTP, eventType string) {
	encrypted, err := utils.EncryptData(record.Code)
	if err != nil {
		logger.Warning("Failed to encrypt code for audit event: " + err.Error())
		encrypted = ""
	}

	ev := otpModel.TripOTPEvent{
		ShipmentID:    record.ShipmentID,
		Checkpoint:    record.Checkpoint,
		CodeEncrypted: encrypted,
		IsUsed:        record.IsUsed,
		RetryCount:    record.RetryCount,
		ExpiresAt:     record.ExpiresAt,
		EventType:     eventType,
	}

	if err := tx.Create(&ev).Error; err != nil {
		logger.Error("Failed to write code audit event", err)
	}
}
