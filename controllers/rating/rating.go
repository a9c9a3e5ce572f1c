package rating

import (
	"errors"

	"freightlink/logger"
	"freightlink/middleware"
	ratingModel "freightlink/models/rating"
	userModel "freightlink/models/user"
	ratingService "freightlink/services/rating"
	"freightlink/types"
	ratingTypes "freightlink/types/rating"
	"freightlink/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Controller handles post-completion rating HTTP requests
type Controller struct {
	DB      *gorm.DB
	Logger  *logger.AsyncLogger
	Tracker *ratingService.Tracker
}

// NewRatingController creates a new rating controller
func NewRatingController(db *gorm.DB, asyncLogger *logger.AsyncLogger, tracker *ratingService.Tracker) *Controller {
	return &Controller{
		DB:      db,
		Logger:  asyncLogger,
		Tracker: tracker,
	}
}

func (rc *Controller) audit(c *fiber.Ctx) {
	if rc.Logger != nil {
		rc.Logger.Log(utils.CreateAuditLogEntry(c))
	}
}

// PendingObligations returns the carrier's open rating obligations. The
// marker is durable, so the list is identical after an app restart.
func (rc *Controller) PendingObligations(c *fiber.Ctx) error {
	var carrier userModel.User
	if err := rc.DB.Where("uuid = ?", middleware.GetUserUuid(c)).First(&carrier).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ApiResponse{
			Status:  fiber.StatusUnauthorized,
			Message: "Unknown carrier account",
			Data:    nil,
		})
	}

	obligations, err := rc.Tracker.PendingForCarrier(carrier.ID)
	if err != nil {
		logger.Error("Failed to load rating obligations", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Internal server error",
			Data:    nil,
		})
	}

	responses := make([]ratingTypes.ObligationResponse, 0, len(obligations))
	for _, ob := range obligations {
		responses = append(responses, obligationResponse(&ob))
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Pending rating obligations retrieved successfully",
		Data:    responses,
	})
}

// SubmitRating records the carrier's rating and clears the obligation.
func (rc *Controller) SubmitRating(c *fiber.Ctx) error {
	var req ratingTypes.SubmitRatingRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid request body",
			Data:    nil,
		})
	}

	rated, err := rc.Tracker.Submit(req.ShipmentID, req.Score, req.Comment, middleware.GetUsername(c))
	if err != nil {
		return rc.respondTrackerError(c, err)
	}

	err = c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Rating submitted successfully",
		Data:    rated,
	})
	rc.audit(c)
	return err
}

// SkipRating dismisses the rating prompt without a rating. Skipping twice is
// a no-op.
func (rc *Controller) SkipRating(c *fiber.Ctx) error {
	var req ratingTypes.SkipRatingRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid request body",
			Data:    nil,
		})
	}

	if err := rc.Tracker.Clear(req.ShipmentID, middleware.GetUsername(c)); err != nil {
		return rc.respondTrackerError(c, err)
	}

	err := c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Rating obligation cleared",
		Data:    nil,
	})
	rc.audit(c)
	return err
}

// GetObligation returns one obligation, re-attempting counterparty
// resolution on every call until it lands.
func (rc *Controller) GetObligation(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid shipment id",
			Data:    nil,
		})
	}

	ob, err := rc.Tracker.Resolve(uint(id))
	if err != nil {
		return rc.respondTrackerError(c, err)
	}

	resp := obligationResponse(ob)
	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Rating obligation retrieved successfully",
		Data:    resp,
	})
}

func (rc *Controller) respondTrackerError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.Is(err, ratingService.ErrObligationNotFound):
		status = fiber.StatusNotFound
		message = "No rating obligation for this shipment"
	case errors.Is(err, ratingService.ErrCounterpartyPending):
		status = fiber.StatusConflict
		message = "Counterparty not yet resolved. Try again shortly."
	case errors.Is(err, ratingService.ErrInvalidScore):
		status = fiber.StatusBadRequest
		message = "Score must be between 1 and 5"
	case errors.Is(err, ratingService.ErrObligationCleared):
		status = fiber.StatusConflict
		message = "Rating obligation already cleared"
	default:
		logger.Error("Rating operation failed", err)
	}

	return c.Status(status).JSON(types.ApiResponse{
		Status:  status,
		Message: message,
		Data:    nil,
	})
}

func obligationResponse(ob *ratingModel.RatingObligation) ratingTypes.ObligationResponse {
	resp := ratingTypes.ObligationResponse{
		ShipmentID:   ob.ShipmentID,
		ShipmentUuid: ob.Shipment.Uuid,
		Resolved:     ob.IsResolved(),
		Status:       string(ob.Status),
		ArmedAt:      ob.ArmedAt,
	}
	if ob.CounterpartyUuid != nil {
		resp.CounterpartyUuid = *ob.CounterpartyUuid
	}
	return resp
}
