package constants

// Marketplace permissions carried in JWT claims
const (
	// Back-office permissions
	PermSuperAdminFull = "freightlink.super-admin.full-permit"
	PermOpsAdminFull   = "freightlink.ops-admin.full-permit"
	PermDispatcherFull = "freightlink.dispatcher.full-permit"

	// Marketplace participant permissions
	PermCarrierFull = "freightlink.carrier.full-permit"
	PermShipperFull = "freightlink.shipper.full-permit"

	// Special permissions
	PermAny = "any"
)

// Permission groups for convenience
var (
	BackOfficePermissions = []string{
		PermSuperAdminFull,
		PermOpsAdminFull,
		PermDispatcherFull,
	}
)
