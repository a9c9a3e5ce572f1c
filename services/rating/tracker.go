package rating

import (
	"errors"
	"fmt"
	"time"

	"freightlink/logger"
	ratingModel "freightlink/models/rating"
	shipmentModel "freightlink/models/shipment"

	"gorm.io/gorm"
)

var (
	ErrObligationNotFound  = errors.New("no rating obligation for this shipment")
	ErrCounterpartyPending = errors.New("counterparty not yet resolved")
	ErrInvalidScore        = errors.New("score must be between 1 and 5")
	ErrObligationCleared   = errors.New("rating obligation already cleared")
)

// CounterpartyResolver looks up the shipper to be rated. The directory is
// eventually consistent and may be slower to update than the trip state;
// lookup failures are a normal transient condition, not an error path.
type CounterpartyResolver interface {
	ResolveShipperByLoad(loadUuid string) (string, error)
}

// Tracker owns the durable post-completion rating obligation. The marker is
// a database row, so it survives client reconnects and process restarts.
type Tracker struct {
	DB       *gorm.DB
	Resolver CounterpartyResolver
}

// NewTracker creates a new rating obligation tracker. Resolver may be nil;
// obligations then stay unresolved until one is attached.
func NewTracker(db *gorm.DB, resolver CounterpartyResolver) *Tracker {
	return &Tracker{DB: db, Resolver: resolver}
}

// Arm records the rating obligation for a delivered shipment. Called inside
// the trip-end verification transaction; idempotent, re-arming is a no-op.
func (t *Tracker) Arm(tx *gorm.DB, sh *shipmentModel.Shipment) error {
	ob := ratingModel.RatingObligation{
		ShipmentID: sh.ID,
	}
	return tx.Where(ratingModel.RatingObligation{ShipmentID: sh.ID}).
		Attrs(ratingModel.RatingObligation{
			CarrierID: sh.CarrierID,
			Status:    ratingModel.ObligationPending,
			ArmedAt:   time.Now(),
		}).
		FirstOrCreate(&ob).Error
}

// Resolve returns the obligation for a shipment, attempting the counterparty
// lookup if it has not resolved yet. A failed lookup leaves the obligation
// pending and is retried on the next call.
func (t *Tracker) Resolve(shipmentID uint) (*ratingModel.RatingObligation, error) {
	var ob ratingModel.RatingObligation
	err := t.DB.Preload("Shipment").Preload("Shipment.Load").
		Where("shipment_id = ?", shipmentID).
		First(&ob).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrObligationNotFound
		}
		return nil, fmt.Errorf("failed to load rating obligation: %w", err)
	}

	if ob.Status == ratingModel.ObligationCleared || ob.IsResolved() {
		return &ob, nil
	}

	t.tryResolve(t.DB, &ob)
	return &ob, nil
}

// PendingForCarrier returns the carrier's open obligations, re-checking
// unresolved counterparties on every load.
func (t *Tracker) PendingForCarrier(carrierID uint) ([]ratingModel.RatingObligation, error) {
	var obligations []ratingModel.RatingObligation
	err := t.DB.Preload("Shipment").Preload("Shipment.Load").
		Where("carrier_id = ? AND status = ?", carrierID, ratingModel.ObligationPending).
		Order("armed_at ASC").
		Find(&obligations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load rating obligations: %w", err)
	}

	for i := range obligations {
		if !obligations[i].IsResolved() {
			t.tryResolve(t.DB, &obligations[i])
		}
	}

	return obligations, nil
}

// Clear dismisses the obligation without a rating. Idempotent: clearing an
// already-cleared obligation is a no-op, not an error.
func (t *Tracker) Clear(shipmentID uint, clearedBy string) error {
	var ob ratingModel.RatingObligation
	err := t.DB.Where("shipment_id = ?", shipmentID).First(&ob).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrObligationNotFound
		}
		return fmt.Errorf("failed to load rating obligation: %w", err)
	}

	if ob.Status == ratingModel.ObligationCleared {
		return nil
	}

	now := time.Now()
	ob.Status = ratingModel.ObligationCleared
	ob.ClearedAt = &now
	ob.ClearedBy = &clearedBy

	return t.DB.Save(&ob).Error
}

// Submit records the carrier's rating of the shipper and clears the
// obligation in one transaction. Requires a resolved counterparty; the
// prompt stays deferred until the directory lookup succeeds.
func (t *Tracker) Submit(shipmentID uint, score int, comment, submittedBy string) (*ratingModel.Rating, error) {
	if score < 1 || score > 5 {
		return nil, ErrInvalidScore
	}

	var rated *ratingModel.Rating

	err := t.DB.Transaction(func(tx *gorm.DB) error {
		var ob ratingModel.RatingObligation
		err := tx.Preload("Shipment").Preload("Shipment.Load").
			Where("shipment_id = ?", shipmentID).
			First(&ob).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrObligationNotFound
			}
			return fmt.Errorf("failed to load rating obligation: %w", err)
		}

		if ob.Status == ratingModel.ObligationCleared {
			return ErrObligationCleared
		}

		if !ob.IsResolved() {
			t.tryResolve(tx, &ob)
		}
		if !ob.IsResolved() {
			return ErrCounterpartyPending
		}

		rated = &ratingModel.Rating{
			ShipmentID:       ob.ShipmentID,
			CarrierID:        ob.CarrierID,
			CounterpartyUuid: *ob.CounterpartyUuid,
			Score:            score,
			Comment:          comment,
		}
		if err := tx.Create(rated).Error; err != nil {
			return fmt.Errorf("failed to create rating: %w", err)
		}

		now := time.Now()
		ob.Status = ratingModel.ObligationCleared
		ob.ClearedAt = &now
		ob.ClearedBy = &submittedBy

		return tx.Save(&ob).Error
	})
	if err != nil {
		return nil, err
	}

	return rated, nil
}

// tryResolve attempts the directory lookup and persists the result through
// the given handle, which must be the caller's transaction when one is open.
// Failure is logged and swallowed; the obligation stays pending for the next
// check.
func (t *Tracker) tryResolve(db *gorm.DB, ob *ratingModel.RatingObligation) {
	if t.Resolver == nil {
		return
	}

	shipperUuid, err := t.Resolver.ResolveShipperByLoad(ob.Shipment.Load.Uuid)
	if err != nil {
		logger.Warning(fmt.Sprintf("Counterparty lookup for shipment %d still pending: %v", ob.ShipmentID, err))
		return
	}
	if shipperUuid == "" {
		return
	}

	ob.CounterpartyUuid = &shipperUuid
	if err := db.Model(&ratingModel.RatingObligation{}).
		Where("id = ?", ob.ID).
		Update("counterparty_uuid", shipperUuid).Error; err != nil {
		logger.Error("Failed to persist resolved counterparty", err)
	}
}
