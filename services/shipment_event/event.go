package shipment_event

import (
	shipmentModel "freightlink/models/shipment"

	"gorm.io/gorm"
)

// SnapshotShipmentToEvent appends a full snapshot of the shipment's status and
// checkpoint columns to shipment_status_events with the given event type.
func SnapshotShipmentToEvent(tx *gorm.DB, s *shipmentModel.Shipment, eventType string, createdBy string) error {
	ev := shipmentModel.ShipmentStatusEvent{
		ShipmentID:      s.ID,
		Status:          s.Status,
		TripStartState:  s.TripStartState,
		RouteStartState: s.RouteStartState,
		TripEndState:    s.TripEndState,
		EventType:       eventType,
		CreatedBy:       createdBy,
	}

	return tx.Create(&ev).Error
}
