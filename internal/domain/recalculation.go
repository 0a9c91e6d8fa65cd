package domain

// ChannelState describes the lifecycle of the upstream recalculation channel.
type ChannelState int32

const (
	ChannelDisconnected ChannelState = iota
	ChannelConnecting
	ChannelConnected
	ChannelReconnecting
)

func (s ChannelState) String() string {
	switch s {
	case ChannelDisconnected:
		return "disconnected"
	case ChannelConnecting:
		return "connecting"
	case ChannelConnected:
		return "connected"
	case ChannelReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// RecalculationUpdate is the inbound `recalculation:update` event payload
// streamed by the backend while a batch recompute job runs.
type RecalculationUpdate struct {
	Pending   int      `json:"pending"`
	RecipeIDs []string `json:"recipeIds"`
	Completed bool     `json:"completed,omitempty"`
	Errors    int      `json:"errors,omitempty"`
}

// RecalculationStatus is the aggregate view of an in-flight backend recompute
// job. Counters are replaced wholesale on each event, never merged, and
// Pending+Calculating+Error never exceeds Total.
type RecalculationStatus struct {
	Pending     int `json:"pending"`
	Calculating int `json:"calculating"`
	Error       int `json:"error"`
	Total       int `json:"total"`
}

// IsRecalculating reports whether a job is still in flight.
func (s RecalculationStatus) IsRecalculating() bool {
	return s.Pending+s.Calculating > 0
}
