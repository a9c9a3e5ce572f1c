package directory

type ShipperProfileResponse struct {
	Uuid        string `json:"uuid"`
	LegalName   string `json:"legal_name"`
	CompanyName string `json:"company_name,omitempty"`
}
