package routes

import (
	"os"
	"time"

	"freightlink/constants"
	ratingController "freightlink/controllers/rating"
	shipmentController "freightlink/controllers/shipment"
	tripgateController "freightlink/controllers/tripgate"
	wsController "freightlink/controllers/websocket"
	"freightlink/httpServices/directory"
	"freightlink/httpServices/notify"
	"freightlink/logger"
	"freightlink/middleware"
	otpService "freightlink/services/otp"
	ratingService "freightlink/services/rating"
	tripgateService "freightlink/services/tripgate"
	"freightlink/socket"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, db *gorm.DB) {
	asyncLogger := logger.NewAsyncLogger(db)
	hub := socket.NewHub()
	directoryClient := directory.NewClient(os.Getenv("DIRECTORY_BASE_URL"))
	notifyClient := notify.NewClient(os.Getenv("NOTIFY_BASE_URL"))

	codes := otpService.NewService(db)
	tracker := ratingService.NewTracker(db, directoryClient)
	gate := tripgateService.NewService(db, codes, tracker, hub, notifyClient)

	shipments := shipmentController.NewShipmentController(db, asyncLogger)
	trips := tripgateController.NewTripGateController(db, asyncLogger, gate)
	ratings := ratingController.NewRatingController(db, asyncLogger, tracker)

	// Start the async logger processing goroutine
	go asyncLogger.ProcessLog()

	// Periodic code housekeeping: unblock codes whose retry-block window has
	// passed and purge consumed codes past expiry
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if err := codes.CleanupExpiredBlocks(); err != nil {
				logger.Error("Code block cleanup failed", err)
			}
			if err := codes.CleanupExpired(); err != nil {
				logger.Error("Expired code cleanup failed", err)
			}
		}
	}()

	// Index route
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "freightlink",
			"status":  "ok",
		})
	})

	/*=============================================================================
	| Shipment Routes
	===============================================================================*/
	api := app.Group("/api")
	shipmentGroup := api.Group("/shipment")

	shipmentGroup.Post("/assign", middleware.RequirePermissions(
		constants.BackOfficePermissions...,
	), shipments.AssignCarrier)

	shipmentGroup.Get("/mine", middleware.RequirePermissions(
		constants.PermCarrierFull,
	), shipments.ListMyShipments)

	shipmentGroup.Get("/:id", middleware.RequireAuthentication(), shipments.GetShipment)

	/*=============================================================================
	| Trip Progression Routes
	===============================================================================*/
	tripGroup := api.Group("/trip")

	tripGroup.Post("/request", middleware.RequirePermissions(
		constants.PermCarrierFull,
	), trips.RequestCheckpoint)

	tripGroup.Post("/verify", middleware.RequirePermissions(
		constants.PermCarrierFull,
	), trips.VerifyCheckpoint)

	tripGroup.Get("/approvals", middleware.RequirePermissions(
		constants.BackOfficePermissions...,
	), trips.ListPendingApprovals)

	tripGroup.Post("/approve", middleware.RequirePermissions(
		constants.BackOfficePermissions...,
	), trips.ApproveCheckpoint)

	// Snapshot poll — the correctness guarantee behind the websocket push
	tripGroup.Get("/:id/checkpoints", middleware.RequireAuthentication(), trips.GetSnapshot)

	/*=============================================================================
	| Rating Routes
	===============================================================================*/
	ratingGroup := api.Group("/rating")

	ratingGroup.Get("/pending", middleware.RequirePermissions(
		constants.PermCarrierFull,
	), ratings.PendingObligations)

	ratingGroup.Get("/obligation/:id", middleware.RequirePermissions(
		constants.PermCarrierFull,
	), ratings.GetObligation)

	ratingGroup.Post("/submit", middleware.RequirePermissions(
		constants.PermCarrierFull,
	), ratings.SubmitRating)

	ratingGroup.Post("/skip", middleware.RequirePermissions(
		constants.PermCarrierFull,
	), ratings.SkipRating)

	/*=============================================================================
	| WebSocket Fan-out
	===============================================================================*/
	app.Get("/ws", wsController.UpgradeGuard(), wsController.ServeWs(hub))
}
