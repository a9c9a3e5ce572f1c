package tripgate

import (
	"errors"
	"fmt"

	"freightlink/constants"
	"freightlink/logger"
	"freightlink/middleware"
	approvalModel "freightlink/models/approval"
	shipmentModel "freightlink/models/shipment"
	otpService "freightlink/services/otp"
	tripgateService "freightlink/services/tripgate"
	"freightlink/types"
	tripgateTypes "freightlink/types/tripgate"
	"freightlink/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/jinzhu/now"
	"gorm.io/gorm"
)

// Controller handles trip progression HTTP requests
type Controller struct {
	DB     *gorm.DB
	Logger *logger.AsyncLogger
	Gate   *tripgateService.Service
}

// NewTripGateController creates a new trip gate controller
func NewTripGateController(db *gorm.DB, asyncLogger *logger.AsyncLogger, gate *tripgateService.Service) *Controller {
	return &Controller{
		DB:     db,
		Logger: asyncLogger,
		Gate:   gate,
	}
}

// audit persists the completed request to the audit log. Codes in the
// request body are redacted before storage.
func (tc *Controller) audit(c *fiber.Ctx) {
	if tc.Logger != nil {
		tc.Logger.Log(utils.CreateAuditLogEntry(c))
	}
}

// carrierOwnsShipment checks that the authenticated carrier owns the
// shipment. Back-office users pass regardless.
func (tc *Controller) carrierOwnsShipment(c *fiber.Ctx, shipmentID uint) (bool, error) {
	for _, perm := range constants.BackOfficePermissions {
		if middleware.CheckPermissionInController(c, perm) {
			return true, nil
		}
	}

	var sh shipmentModel.Shipment
	if err := tc.DB.Preload("Carrier").First(&sh, shipmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, tripgateService.ErrShipmentNotFound
		}
		return false, err
	}

	return sh.Carrier.Uuid == middleware.GetUserUuid(c), nil
}

// RequestCheckpoint lets the carrier request the next trip checkpoint. The
// call enqueues an admin review task and returns immediately; approval
// happens out of band.
func (tc *Controller) RequestCheckpoint(c *fiber.Ctx) error {
	var req tripgateTypes.RequestCheckpointRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid request body",
			Data:    nil,
		})
	}

	owns, err := tc.carrierOwnsShipment(c, req.ShipmentID)
	if err != nil {
		return tc.respondGateError(c, err)
	}
	if !owns {
		return c.Status(fiber.StatusForbidden).JSON(types.ApiResponse{
			Status:  fiber.StatusForbidden,
			Message: "Shipment is not assigned to this carrier",
			Data:    nil,
		})
	}

	task, err := tc.Gate.RequestCheckpoint(req.ShipmentID, shipmentModel.CheckpointKind(req.Checkpoint), middleware.GetUsername(c))
	if err != nil {
		return tc.respondGateError(c, err)
	}

	err = c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Checkpoint requested, awaiting admin approval",
		Data: map[string]interface{}{
			"task_id":      task.ID,
			"shipment_id":  task.ShipmentID,
			"checkpoint":   task.Checkpoint,
			"requested_at": task.RequestedAt,
		},
	})
	tc.audit(c)
	return err
}

// ApproveCheckpoint is the back-office entry point. On success a one-time
// code is minted and fanned out to the owning carrier; the admin response
// only carries the expiry.
func (tc *Controller) ApproveCheckpoint(c *fiber.Ctx) error {
	var req tripgateTypes.ApproveCheckpointRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid request body",
			Data:    nil,
		})
	}

	code, err := tc.Gate.ApproveCheckpoint(req.ShipmentID, shipmentModel.CheckpointKind(req.Checkpoint), middleware.GetUsername(c))
	if err != nil {
		return tc.respondGateError(c, err)
	}

	err = c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Checkpoint approved, code issued to carrier",
		Data: map[string]interface{}{
			"shipment_id": req.ShipmentID,
			"checkpoint":  req.Checkpoint,
			"expires_at":  code.ExpiresAt,
		},
	})
	tc.audit(c)
	return err
}

// VerifyCheckpoint validates the carrier-submitted code and completes the
// checkpoint.
func (tc *Controller) VerifyCheckpoint(c *fiber.Ctx) error {
	var req tripgateTypes.VerifyCheckpointRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid request body",
			Data:    nil,
		})
	}

	owns, err := tc.carrierOwnsShipment(c, req.ShipmentID)
	if err != nil {
		return tc.respondGateError(c, err)
	}
	if !owns {
		return c.Status(fiber.StatusForbidden).JSON(types.ApiResponse{
			Status:  fiber.StatusForbidden,
			Message: "Shipment is not assigned to this carrier",
			Data:    nil,
		})
	}

	sh, err := tc.Gate.VerifyCheckpoint(req.ShipmentID, shipmentModel.CheckpointKind(req.Checkpoint), req.Code, middleware.GetUsername(c))
	if err != nil {
		return tc.respondGateError(c, err)
	}

	err = c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Checkpoint verified successfully",
		Data: map[string]interface{}{
			"shipment_id": sh.ID,
			"checkpoint":  req.Checkpoint,
			"status":      sh.Status,
		},
	})
	tc.audit(c)
	return err
}

// GetSnapshot returns the three-checkpoint view for a shipment in one call.
// This is the polling surface; the websocket push is only an optimization.
func (tc *Controller) GetSnapshot(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid shipment id",
			Data:    nil,
		})
	}

	owns, err := tc.carrierOwnsShipment(c, uint(id))
	if err != nil {
		return tc.respondGateError(c, err)
	}
	if !owns {
		return c.Status(fiber.StatusForbidden).JSON(types.ApiResponse{
			Status:  fiber.StatusForbidden,
			Message: "Shipment is not assigned to this carrier",
			Data:    nil,
		})
	}

	snapshot, err := tc.Gate.Snapshot(uint(id))
	if err != nil {
		return tc.respondGateError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Checkpoint snapshot retrieved successfully",
		Data:    snapshot,
	})
}

// ListPendingApprovals returns the admin review queue. Pass ?today=true to
// limit the list to tasks requested since midnight.
func (tc *Controller) ListPendingApprovals(c *fiber.Ctx) error {
	query := tc.DB.Preload("Shipment").Preload("Shipment.Carrier").
		Where("status = ?", approvalModel.TaskStatusPending)

	if c.Query("today") == "true" {
		query = query.Where("requested_at >= ?", now.BeginningOfDay())
	}

	var tasks []approvalModel.ApprovalTask
	if err := query.Order("requested_at ASC").Find(&tasks).Error; err != nil {
		logger.Error("Failed to list approval tasks", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Internal server error",
			Data:    nil,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: fmt.Sprintf("%d pending approval tasks", len(tasks)),
		Data:    tasks,
	})
}

// respondGateError maps protocol errors to HTTP statuses. Every one of them
// is caller-correctable; the message says how.
func (tc *Controller) respondGateError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.Is(err, tripgateService.ErrShipmentNotFound):
		status = fiber.StatusNotFound
		message = "Shipment not found"
	case errors.Is(err, tripgateService.ErrUnknownCheckpoint):
		status = fiber.StatusBadRequest
		message = "Unknown checkpoint kind"
	case errors.Is(err, tripgateService.ErrOutOfOrder):
		status = fiber.StatusConflict
		message = "Previous checkpoint must be verified first"
	case errors.Is(err, tripgateService.ErrAlreadyRequested):
		status = fiber.StatusConflict
		message = "Checkpoint already requested"
	case errors.Is(err, tripgateService.ErrNotPending):
		status = fiber.StatusConflict
		message = "Checkpoint is not pending approval"
	case errors.Is(err, tripgateService.ErrNotApproved):
		status = fiber.StatusConflict
		message = "Checkpoint is not approved yet"
	case errors.Is(err, otpService.ErrInvalidCode):
		status = fiber.StatusBadRequest
		message = "Invalid code"
	case errors.Is(err, otpService.ErrNoActiveCode):
		status = fiber.StatusBadRequest
		message = "No active code for this checkpoint"
	case errors.Is(err, otpService.ErrExpired):
		status = fiber.StatusBadRequest
		message = "Code has expired. Request the checkpoint again."
	case errors.Is(err, otpService.ErrTooManyAttempts):
		status = fiber.StatusTooManyRequests
		message = "Too many failed attempts. Code is blocked."
	default:
		logger.Error("Trip gate operation failed", err)
	}

	respErr := c.Status(status).JSON(types.ApiResponse{
		Status:  status,
		Message: message,
		Data:    nil,
	})
	tc.audit(c)
	return respErr
}
