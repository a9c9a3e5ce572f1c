package shipment

import (
	"errors"

	"freightlink/constants"
	"freightlink/logger"
	"freightlink/middleware"
	loadModel "freightlink/models/load"
	shipmentModel "freightlink/models/shipment"
	userModel "freightlink/models/user"
	"freightlink/types"
	shipmentTypes "freightlink/types/shipment"
	"freightlink/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Controller handles shipment lifecycle HTTP requests
type Controller struct {
	DB     *gorm.DB
	Logger *logger.AsyncLogger
}

// NewShipmentController creates a new shipment controller
func NewShipmentController(db *gorm.DB, asyncLogger *logger.AsyncLogger) *Controller {
	return &Controller{
		DB:     db,
		Logger: asyncLogger,
	}
}

func (sc *Controller) audit(c *fiber.Ctx) {
	if sc.Logger != nil {
		sc.Logger.Log(utils.CreateAuditLogEntry(c))
	}
}

// AssignCarrier pairs a carrier with a posted load and creates the shipment
// in pickup_scheduled with all three checkpoints at not_requested.
func (sc *Controller) AssignCarrier(c *fiber.Ctx) error {
	var req shipmentTypes.AssignCarrierRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid request body",
			Data:    nil,
		})
	}

	var ld loadModel.Load
	if err := sc.DB.First(&ld, req.LoadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(types.ApiResponse{
				Status:  fiber.StatusNotFound,
				Message: "Load not found",
				Data:    nil,
			})
		}
		logger.Error("Failed to find load", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Internal server error",
			Data:    nil,
		})
	}

	var carrier userModel.User
	if err := sc.DB.Where("uuid = ?", req.CarrierUuid).First(&carrier).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(types.ApiResponse{
				Status:  fiber.StatusNotFound,
				Message: "Carrier not found",
				Data:    nil,
			})
		}
		logger.Error("Failed to find carrier", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Internal server error",
			Data:    nil,
		})
	}

	if !carrier.HasPermission(constants.PermCarrierFull) {
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "User is not a carrier",
			Data:    nil,
		})
	}

	// One active shipment per load
	var existing shipmentModel.Shipment
	err := sc.DB.Where("load_id = ? AND deleted_at IS NULL", ld.ID).First(&existing).Error
	if err == nil {
		return c.Status(fiber.StatusConflict).JSON(types.ApiResponse{
			Status:  fiber.StatusConflict,
			Message: "Load already has an assigned shipment",
			Data:    nil,
		})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("Failed to check existing shipment", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Internal server error",
			Data:    nil,
		})
	}

	sh := shipmentModel.Shipment{
		Uuid:            uuid.NewString(),
		LoadID:          ld.ID,
		CarrierID:       carrier.ID,
		Status:          shipmentModel.ShipmentStatusPickupScheduled,
		TripStartState:  shipmentModel.CheckpointNotRequested,
		RouteStartState: shipmentModel.CheckpointNotRequested,
		TripEndState:    shipmentModel.CheckpointNotRequested,
		CreatedBy:       middleware.GetUsername(c),
	}

	if err := sc.DB.Create(&sh).Error; err != nil {
		logger.Error("Failed to create shipment", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Failed to create shipment",
			Data:    nil,
		})
	}

	logger.Success("Shipment created for load " + ld.Uuid + " carrier " + carrier.Uuid)

	respErr := c.Status(fiber.StatusCreated).JSON(types.ApiResponse{
		Status:  fiber.StatusCreated,
		Message: "Carrier assigned successfully",
		Data:    sh,
	})
	sc.audit(c)
	return respErr
}

// GetShipment returns one shipment with its load and carrier
func (sc *Controller) GetShipment(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid shipment id",
			Data:    nil,
		})
	}

	var sh shipmentModel.Shipment
	if err := sc.DB.Preload("Load").Preload("Carrier").First(&sh, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(types.ApiResponse{
				Status:  fiber.StatusNotFound,
				Message: "Shipment not found",
				Data:    nil,
			})
		}
		logger.Error("Failed to find shipment", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Internal server error",
			Data:    nil,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Shipment retrieved successfully",
		Data:    sh,
	})
}

// ListMyShipments returns the authenticated carrier's shipments
func (sc *Controller) ListMyShipments(c *fiber.Ctx) error {
	var carrier userModel.User
	if err := sc.DB.Where("uuid = ?", middleware.GetUserUuid(c)).First(&carrier).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ApiResponse{
			Status:  fiber.StatusUnauthorized,
			Message: "Unknown carrier account",
			Data:    nil,
		})
	}

	var shipments []shipmentModel.Shipment
	if err := sc.DB.Preload("Load").
		Where("carrier_id = ?", carrier.ID).
		Order("created_at DESC").
		Find(&shipments).Error; err != nil {
		logger.Error("Failed to list shipments", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Internal server error",
			Data:    nil,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Shipments retrieved successfully",
		Data:    shipments,
	})
}
