package realtime

// Status is the connection state of the change-event subscription.
type Status string

const (
	StatusDisabled   Status = "disabled"   // no identity, or torn down
	StatusConnecting Status = "connecting" // requested, awaiting confirmation
	StatusEnabled    Status = "enabled"    // confirmed live
	StatusError      Status = "error"      // channel failure
)

// canTransition encodes the allowed edges:
//
//	disabled   -> connecting
//	error      -> connecting (the channel re-confirmed after a failure)
//	connecting -> enabled
//	*          -> error
//	*          -> disabled (teardown is unconditional)
func canTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch to {
	case StatusError, StatusDisabled:
		return true
	case StatusConnecting:
		return from == StatusDisabled || from == StatusError
	case StatusEnabled:
		return from == StatusConnecting
	default:
		return false
	}
}
