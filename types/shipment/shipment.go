package shipment

type AssignCarrierRequest struct {
	LoadID      uint   `json:"load_id"`
	CarrierUuid string `json:"carrier_uuid"`
}
