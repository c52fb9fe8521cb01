package session

// State is the session state machine's current position
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateDiscoveringServices
	StateAwaitingNotifyAck
	StateAwaitingResponse
	StateFinalizing
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateScanning:
		return "SCANNING"
	case StateConnecting:
		return "CONNECTING"
	case StateDiscoveringServices:
		return "DISCOVERING_SERVICES"
	case StateAwaitingNotifyAck:
		return "AWAITING_NOTIFY_ACK"
	case StateAwaitingResponse:
		return "AWAITING_RESPONSE"
	case StateFinalizing:
		return "FINALIZING"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}
