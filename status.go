package accounts

// AccountStatus is the lifecycle status of an account profile. The wire
// values match the status strings stored in the profile documents.
type AccountStatus string

const (
	// StatusAwaitingEmailVerification is the status every account starts in.
	StatusAwaitingEmailVerification AccountStatus = "Awaiting Email Verification"
	// StatusAwaitingAdminApproval means the owner proved email ownership and
	// is waiting for an administrator decision.
	StatusAwaitingAdminApproval AccountStatus = "Awaiting Admin Approval"
	// StatusAccessGranted is the only status that allows dashboard access.
	StatusAccessGranted AccountStatus = "Access Granted"
	// StatusSuspended is an administratively imposed lockout, reversible.
	StatusSuspended AccountStatus = "Suspended"
	// StatusRejected means an administrator declined the account. Not
	// terminal: an administrator may still reactivate it.
	StatusRejected AccountStatus = "Rejected"
)

// IsValid checks the status against the closed set of lifecycle states.
func (s AccountStatus) IsValid() bool {
	switch s {
	case StatusAwaitingEmailVerification, StatusAwaitingAdminApproval,
		StatusAccessGranted, StatusSuspended, StatusRejected:
		return true
	default:
		return false
	}
}

// ParseAccountStatus safely parses a string into an AccountStatus.
func ParseAccountStatus(raw string) (AccountStatus, bool) {
	status := AccountStatus(raw)
	return status, status.IsValid()
}

// AllAccountStatuses returns the lifecycle states in signup-to-decision order.
func AllAccountStatuses() []AccountStatus {
	return []AccountStatus{
		StatusAwaitingEmailVerification,
		StatusAwaitingAdminApproval,
		StatusAccessGranted,
		StatusSuspended,
		StatusRejected,
	}
}

// RideStatus is the lifecycle status of a ride offer.
type RideStatus string

const (
	RideStatusOffered   RideStatus = "Offered"
	RideStatusBooked    RideStatus = "Booked"
	RideStatusCompleted RideStatus = "Completed"
	RideStatusCancelled RideStatus = "Cancelled"
)

// IsValid checks the status against the closed set of ride states.
func (s RideStatus) IsValid() bool {
	switch s {
	case RideStatusOffered, RideStatusBooked, RideStatusCompleted, RideStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseRideStatus safely parses a string into a RideStatus.
func ParseRideStatus(raw string) (RideStatus, bool) {
	status := RideStatus(raw)
	return status, status.IsValid()
}
