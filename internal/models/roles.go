package models

// Enum values below are mirrored in the oneof tags on User and Verification.

const (
	RoleCustomer        = "customer"
	RoleServiceProvider = "service_provider"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

const (
	IdentityNIN            = "NIN"
	IdentityPassport       = "international_passport"
	IdentityDriversLicense = "drivers_license"
)
