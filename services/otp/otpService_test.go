package otp

import (
	"testing"
	"time"

	otpModel "freightlink/models/otp"
	"freightlink/models/shipment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// Every sqlite connection to :memory: gets its own database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&otpModel.TripOTP{}, &otpModel.TripOTPEvent{}))
	return db
}

func seedCode(t *testing.T, db *gorm.DB, shipmentID uint, kind shipment.CheckpointKind, code string, expiresAt time.Time) *otpModel.TripOTP {
	t.Helper()

	record := &otpModel.TripOTP{
		ShipmentID: shipmentID,
		Checkpoint: kind,
		Code:       code,
		MaxRetries: 3,
		ExpiresAt:  expiresAt,
	}
	require.NoError(t, db.Create(record).Error)
	return record
}

func TestGenerateCodeFormat(t *testing.T) {
	svc := NewService(newTestDB(t))

	for i := 0; i < 50; i++ {
		code, err := svc.GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "code %q contains non-digit", code)
		}
	}
}

func TestIssueStampsExpiry(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	before := time.Now()
	issued, err := svc.Issue(db, 1, shipment.CheckpointTripStart)
	require.NoError(t, err)

	assert.Len(t, issued.Code, 6)
	assert.False(t, issued.IsUsed)
	assert.WithinDuration(t, before.Add(CodeValidity), issued.ExpiresAt, 2*time.Second)
}

func TestIssueInvalidatesPriorCode(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	first, err := svc.Issue(db, 1, shipment.CheckpointTripStart)
	require.NoError(t, err)

	second, err := svc.Issue(db, 1, shipment.CheckpointTripStart)
	require.NoError(t, err)

	var reloaded otpModel.TripOTP
	require.NoError(t, db.First(&reloaded, first.ID).Error)
	assert.True(t, reloaded.IsUsed, "prior code must be consumed on reissue")

	var active []otpModel.TripOTP
	require.NoError(t, db.Where("shipment_id = ? AND checkpoint = ? AND is_used = false", 1, shipment.CheckpointTripStart).Find(&active).Error)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
}

func TestIssueScopedToCheckpointPair(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	tripStart, err := svc.Issue(db, 1, shipment.CheckpointTripStart)
	require.NoError(t, err)

	_, err = svc.Issue(db, 1, shipment.CheckpointRouteStart)
	require.NoError(t, err)

	var reloaded otpModel.TripOTP
	require.NoError(t, db.First(&reloaded, tripStart.ID).Error)
	assert.False(t, reloaded.IsUsed, "issuing for another checkpoint must not invalidate this pair")
}

func TestValidateConsumesCode(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	seedCode(t, db, 7, shipment.CheckpointTripStart, "482913", time.Now().Add(10*time.Minute))

	require.NoError(t, svc.Validate(db, 7, shipment.CheckpointTripStart, "482913"))

	// Replay of the consumed code fails
	err := svc.Validate(db, 7, shipment.CheckpointTripStart, "482913")
	assert.ErrorIs(t, err, ErrNoActiveCode)
}

func TestValidateNoActiveCode(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	err := svc.Validate(db, 1, shipment.CheckpointTripStart, "123456")
	assert.ErrorIs(t, err, ErrNoActiveCode)
}

func TestValidateWrongCode(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	record := seedCode(t, db, 7, shipment.CheckpointTripStart, "482913", time.Now().Add(10*time.Minute))

	err := svc.Validate(db, 7, shipment.CheckpointTripStart, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)

	var reloaded otpModel.TripOTP
	require.NoError(t, db.First(&reloaded, record.ID).Error)
	assert.Equal(t, 1, reloaded.RetryCount)
	assert.False(t, reloaded.IsUsed)

	// The right code still works after a failed attempt
	require.NoError(t, svc.Validate(db, 7, shipment.CheckpointTripStart, "482913"))
}

func TestValidateBlocksAfterMaxRetries(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	seedCode(t, db, 7, shipment.CheckpointTripStart, "482913", time.Now().Add(10*time.Minute))

	err := svc.Validate(db, 7, shipment.CheckpointTripStart, "111111")
	assert.ErrorIs(t, err, ErrInvalidCode)
	err = svc.Validate(db, 7, shipment.CheckpointTripStart, "222222")
	assert.ErrorIs(t, err, ErrInvalidCode)
	err = svc.Validate(db, 7, shipment.CheckpointTripStart, "333333")
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	// Even the correct code is rejected while blocked
	err = svc.Validate(db, 7, shipment.CheckpointTripStart, "482913")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestValidateExpiredCode(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	record := seedCode(t, db, 7, shipment.CheckpointTripEnd, "482913", time.Now().Add(-time.Minute))

	err := svc.Validate(db, 7, shipment.CheckpointTripEnd, "482913")
	assert.ErrorIs(t, err, ErrExpired)

	// The stale code is consumed so it can never be replayed
	var reloaded otpModel.TripOTP
	require.NoError(t, db.First(&reloaded, record.ID).Error)
	assert.True(t, reloaded.IsUsed)

	err = svc.Validate(db, 7, shipment.CheckpointTripEnd, "482913")
	assert.ErrorIs(t, err, ErrNoActiveCode)
}

func TestActiveCode(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	active, err := svc.ActiveCode(9, shipment.CheckpointTripStart)
	require.NoError(t, err)
	assert.Nil(t, active)

	seedCode(t, db, 9, shipment.CheckpointTripStart, "654321", time.Now().Add(5*time.Minute))

	active, err = svc.ActiveCode(9, shipment.CheckpointTripStart)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "654321", active.Code)
}

func TestCleanupExpiredKeepsUnconsumedCodes(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	expired := time.Now().Add(-time.Minute)
	kept := seedCode(t, db, 1, shipment.CheckpointTripStart, "111111", expired)
	purged := seedCode(t, db, 2, shipment.CheckpointTripStart, "222222", expired)
	purged.IsUsed = true
	require.NoError(t, db.Save(purged).Error)

	require.NoError(t, svc.CleanupExpired())

	var remaining []otpModel.TripOTP
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, kept.ID, remaining[0].ID)

	// The kept row still drives the expiry path at verification
	err := svc.Validate(db, 1, shipment.CheckpointTripStart, "111111")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestCleanupExpiredBlocks(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	past := time.Now().Add(-time.Minute)
	record := seedCode(t, db, 3, shipment.CheckpointTripStart, "482913", time.Now().Add(10*time.Minute))
	record.IsBlocked = true
	record.RetryCount = 3
	record.BlockedUntil = &past
	require.NoError(t, db.Save(record).Error)

	require.NoError(t, svc.CleanupExpiredBlocks())

	var reloaded otpModel.TripOTP
	require.NoError(t, db.First(&reloaded, record.ID).Error)
	assert.False(t, reloaded.IsBlocked)
	assert.Equal(t, 0, reloaded.RetryCount)
}
