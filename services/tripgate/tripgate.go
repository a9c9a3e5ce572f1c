package tripgate

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"freightlink/logger"
	approvalModel "freightlink/models/approval"
	otpModel "freightlink/models/otp"
	shipmentModel "freightlink/models/shipment"
	otpService "freightlink/services/otp"
	ratingService "freightlink/services/rating"
	"freightlink/services/shipment_event"
	tripgateTypes "freightlink/types/tripgate"

	"gorm.io/gorm"
)

// EventPublisher pushes trip-lifecycle events to a carrier's live
// subscription. Delivery is best-effort; polling the checkpoint snapshot is
// the correctness guarantee.
type EventPublisher interface {
	PublishToCarrier(carrierUuid string, event interface{})
}

// CodeNotifier delivers an approved checkpoint code out of band (SMS, push).
type CodeNotifier interface {
	SendCheckpointCode(phone, code, checkpoint string, expiresAt time.Time) error
}

// Service is the trip progression state machine. It exclusively owns the
// checkpoint-ordering invariants; all checkpoint mutation flows through it.
type Service struct {
	DB        *gorm.DB
	OTP       *otpService.Service
	Rating    *ratingService.Tracker
	Publisher EventPublisher
	Notifier  CodeNotifier

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewService creates a new trip gate service. Publisher and Notifier may be
// nil; transitions then simply go unannounced until the next poll.
func NewService(db *gorm.DB, otp *otpService.Service, rating *ratingService.Tracker, publisher EventPublisher, notifier CodeNotifier) *Service {
	return &Service{
		DB:        db,
		OTP:       otp,
		Rating:    rating,
		Publisher: publisher,
		Notifier:  notifier,
		locks:     make(map[uint]*sync.Mutex),
	}
}

// shipmentLock returns the mutex that linearizes all transitions for one
// shipment. Cross-shipment operations proceed in parallel.
func (s *Service) shipmentLock(shipmentID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[shipmentID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[shipmentID] = lock
	}
	return lock
}

// forgetLock drops a shipment's mutex from the map once the trip is complete.
// A delivered shipment rejects every further transition on its state guards,
// so losing lock identity after this point is harmless.
func (s *Service) forgetLock(shipmentID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, shipmentID)
}

// RequestCheckpoint moves a checkpoint from not_requested to pending and
// enqueues an admin approval task. It returns immediately; approval happens
// out of band.
func (s *Service) RequestCheckpoint(shipmentID uint, kind shipmentModel.CheckpointKind, requestedBy string) (*approvalModel.ApprovalTask, error) {
	if !kind.IsValid() {
		return nil, ErrUnknownCheckpoint
	}

	lock := s.shipmentLock(shipmentID)
	lock.Lock()
	defer lock.Unlock()

	var task *approvalModel.ApprovalTask

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var sh shipmentModel.Shipment
		if err := tx.First(&sh, shipmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrShipmentNotFound
			}
			return fmt.Errorf("failed to load shipment: %w", err)
		}

		if prereq, ok := kind.Prerequisite(); ok {
			if sh.CheckpointState(prereq) != shipmentModel.CheckpointVerified {
				return ErrOutOfOrder
			}
		}

		if sh.CheckpointState(kind) != shipmentModel.CheckpointNotRequested {
			return ErrAlreadyRequested
		}

		sh.SetCheckpointState(kind, shipmentModel.CheckpointPending)
		sh.UpdatedBy = requestedBy
		if err := tx.Save(&sh).Error; err != nil {
			return fmt.Errorf("failed to update shipment: %w", err)
		}

		task = &approvalModel.ApprovalTask{
			ShipmentID:  sh.ID,
			Checkpoint:  kind,
			Status:      approvalModel.TaskStatusPending,
			RequestedBy: requestedBy,
			RequestedAt: time.Now(),
		}
		if err := tx.Create(task).Error; err != nil {
			return fmt.Errorf("failed to enqueue approval task: %w", err)
		}

		return shipment_event.SnapshotShipmentToEvent(tx, &sh, "checkpoint_requested", requestedBy)
	})
	if err != nil {
		return nil, err
	}

	logger.Success(fmt.Sprintf("Checkpoint %s requested for shipment %d by %s", kind, shipmentID, requestedBy))
	return task, nil
}

// ApproveCheckpoint is invoked by the back-office review queue, never the
// carrier. It mints a fresh one-time code, flips the checkpoint to approved
// and fans the code out to the owning carrier after commit.
func (s *Service) ApproveCheckpoint(shipmentID uint, kind shipmentModel.CheckpointKind, approvedBy string) (*otpModel.TripOTP, error) {
	if !kind.IsValid() {
		return nil, ErrUnknownCheckpoint
	}

	lock := s.shipmentLock(shipmentID)
	lock.Lock()
	defer lock.Unlock()

	var (
		sh   shipmentModel.Shipment
		code *otpModel.TripOTP
	)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Carrier").First(&sh, shipmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrShipmentNotFound
			}
			return fmt.Errorf("failed to load shipment: %w", err)
		}

		if sh.CheckpointState(kind) != shipmentModel.CheckpointPending {
			return ErrNotPending
		}

		issued, err := s.OTP.Issue(tx, sh.ID, kind)
		if err != nil {
			return err
		}
		code = issued

		sh.SetCheckpointState(kind, shipmentModel.CheckpointApproved)
		sh.UpdatedBy = approvedBy
		if err := tx.Save(&sh).Error; err != nil {
			return fmt.Errorf("failed to update shipment: %w", err)
		}

		now := time.Now()
		err = tx.Model(&approvalModel.ApprovalTask{}).
			Where("shipment_id = ? AND checkpoint = ? AND status = ?", sh.ID, kind, approvalModel.TaskStatusPending).
			Updates(map[string]interface{}{
				"status":      approvalModel.TaskStatusApproved,
				"approved_by": approvedBy,
				"approved_at": now,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to close approval task: %w", err)
		}

		return shipment_event.SnapshotShipmentToEvent(tx, &sh, "checkpoint_approved", approvedBy)
	})
	if err != nil {
		return nil, err
	}

	// Fan-out only after the transition is committed
	s.publish(sh.Carrier.Uuid, tripgateTypes.CheckpointEvent{
		Event:        tripgateTypes.EventCheckpointApproved,
		ShipmentID:   sh.ID,
		ShipmentUuid: sh.Uuid,
		Checkpoint:   kind.String(),
		Code:         code.Code,
		ExpiresAt:    &code.ExpiresAt,
	})

	if s.Notifier != nil {
		if err := s.Notifier.SendCheckpointCode(sh.Carrier.Phone, code.Code, kind.String(), code.ExpiresAt); err != nil {
			// The poll path still delivers the state; code entry waits for the carrier anyway
			logger.Error("Failed to deliver checkpoint code notification", err)
		}
	}

	logger.Success(fmt.Sprintf("Checkpoint %s approved for shipment %d by %s", kind, shipmentID, approvedBy))
	return code, nil
}

// VerifyCheckpoint validates the submitted code and moves the checkpoint to
// verified. An expired code reverts the checkpoint to not_requested: the
// carrier must run a fresh request/approve cycle. Retry-count and expiry
// bookkeeping is committed even when verification fails.
func (s *Service) VerifyCheckpoint(shipmentID uint, kind shipmentModel.CheckpointKind, submitted, verifiedBy string) (*shipmentModel.Shipment, error) {
	if !kind.IsValid() {
		return nil, ErrUnknownCheckpoint
	}

	lock := s.shipmentLock(shipmentID)
	lock.Lock()
	defer lock.Unlock()

	var (
		sh    shipmentModel.Shipment
		opErr error
	)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Carrier").First(&sh, shipmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrShipmentNotFound
			}
			return fmt.Errorf("failed to load shipment: %w", err)
		}

		if sh.CheckpointState(kind) != shipmentModel.CheckpointApproved {
			return ErrNotApproved
		}

		if err := s.OTP.Validate(tx, sh.ID, kind, submitted); err != nil {
			switch {
			case errors.Is(err, otpService.ErrExpired):
				// Conservative expiry handling: back to square one, the
				// stale approval task is closed out
				sh.SetCheckpointState(kind, shipmentModel.CheckpointNotRequested)
				sh.UpdatedBy = verifiedBy
				if saveErr := tx.Save(&sh).Error; saveErr != nil {
					return fmt.Errorf("failed to revert shipment: %w", saveErr)
				}
				if taskErr := tx.Model(&approvalModel.ApprovalTask{}).
					Where("shipment_id = ? AND checkpoint = ? AND status = ?", sh.ID, kind, approvalModel.TaskStatusApproved).
					Update("status", approvalModel.TaskStatusExpired).Error; taskErr != nil {
					return fmt.Errorf("failed to expire approval task: %w", taskErr)
				}
				if evErr := shipment_event.SnapshotShipmentToEvent(tx, &sh, "checkpoint_expired", verifiedBy); evErr != nil {
					return evErr
				}
				opErr = err
				return nil
			case errors.Is(err, otpService.ErrInvalidCode),
				errors.Is(err, otpService.ErrNoActiveCode),
				errors.Is(err, otpService.ErrTooManyAttempts):
				// Commit the attempt bookkeeping, keep the checkpoint approved
				opErr = err
				return nil
			default:
				return err
			}
		}

		sh.SetCheckpointState(kind, shipmentModel.CheckpointVerified)
		sh.Status = shipmentModel.StatusAfterVerify(kind)
		sh.UpdatedBy = verifiedBy

		eventType := "checkpoint_verified"
		if kind.IsFinal() {
			now := time.Now()
			sh.DeliveredAt = &now
			eventType = "shipment_delivered"
		}

		if err := tx.Save(&sh).Error; err != nil {
			return fmt.Errorf("failed to update shipment: %w", err)
		}

		if kind.IsFinal() {
			if err := s.Rating.Arm(tx, &sh); err != nil {
				return fmt.Errorf("failed to arm rating obligation: %w", err)
			}
		}

		return shipment_event.SnapshotShipmentToEvent(tx, &sh, eventType, verifiedBy)
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}

	event := tripgateTypes.EventCheckpointVerified
	if kind.IsFinal() {
		event = tripgateTypes.EventShipmentDelivered
		s.forgetLock(shipmentID)
	}
	s.publish(sh.Carrier.Uuid, tripgateTypes.CheckpointEvent{
		Event:        event,
		ShipmentID:   sh.ID,
		ShipmentUuid: sh.Uuid,
		Checkpoint:   kind.String(),
	})

	logger.Success(fmt.Sprintf("Checkpoint %s verified for shipment %d", kind, shipmentID))
	return &sh, nil
}

// Snapshot returns the three-checkpoint view for one shipment in a single
// read. This is the sole surface clients poll.
func (s *Service) Snapshot(shipmentID uint) (*tripgateTypes.CheckpointSnapshot, error) {
	var sh shipmentModel.Shipment
	if err := s.DB.First(&sh, shipmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShipmentNotFound
		}
		return nil, fmt.Errorf("failed to load shipment: %w", err)
	}

	return &tripgateTypes.CheckpointSnapshot{
		ShipmentID:   sh.ID,
		ShipmentUuid: sh.Uuid,
		Status:       sh.Status.String(),
		TripStart:    viewOf(sh.TripStartState),
		RouteStart:   viewOf(sh.RouteStartState),
		TripEnd:      viewOf(sh.TripEndState),
	}, nil
}

func viewOf(state shipmentModel.CheckpointState) tripgateTypes.CheckpointView {
	return tripgateTypes.CheckpointView{
		Requested: state != shipmentModel.CheckpointNotRequested,
		Approved:  state == shipmentModel.CheckpointApproved,
		Verified:  state == shipmentModel.CheckpointVerified,
	}
}

func (s *Service) publish(carrierUuid string, event tripgateTypes.CheckpointEvent) {
	if s.Publisher == nil || carrierUuid == "" {
		return
	}
	s.Publisher.PublishToCarrier(carrierUuid, event)
}
