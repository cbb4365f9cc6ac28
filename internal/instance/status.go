package instance

// Status is the lifecycle state of an instance session. The lifecycle is
// initializing → waiting_pairing → authenticated → connected → disconnected;
// disconnected is re-entrant, a later reconnect emits authenticated/connected
// again.
type Status string

const (
	StatusInitializing   Status = "initializing"
	StatusWaitingPairing Status = "waiting_pairing"
	StatusAuthenticated  Status = "authenticated"
	StatusConnected      Status = "connected"
	StatusDisconnected   Status = "disconnected"
)

// Durable returns whether a transition into this status is written to the
// instance store. Intermediate states live only in the registry to bound
// write frequency; the admin view only needs connected/disconnected.
func (s Status) Durable() bool {
	return s == StatusInitializing || s == StatusConnected || s == StatusDisconnected
}
