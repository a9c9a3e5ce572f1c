package rating

import "time"

type SubmitRatingRequest struct {
	ShipmentID uint   `json:"shipment_id"`
	Score      int    `json:"score"`
	Comment    string `json:"comment"`
}

type SkipRatingRequest struct {
	ShipmentID uint `json:"shipment_id"`
}

// ObligationResponse is the carrier-facing view of a pending rating
// obligation. Resolved flips once the counterparty directory lookup lands;
// until then the rating prompt stays deferred.
type ObligationResponse struct {
	ShipmentID       uint      `json:"shipment_id"`
	ShipmentUuid     string    `json:"shipment_uuid"`
	CounterpartyUuid string    `json:"counterparty_uuid,omitempty"`
	Resolved         bool      `json:"resolved"`
	Status           string    `json:"status"`
	ArmedAt          time.Time `json:"armed_at"`
}
