package service

import "timetrack/internal/model"

// Broadcaster fans a domain event out to every live connection in a user's
// room. Delivery is fire-and-forget; services never wait on it.
type Broadcaster interface {
	Broadcast(userID string, event model.Event)
}

// BroadcastFunc adapts a function to the Broadcaster interface.
type BroadcastFunc func(userID string, event model.Event)

func (f BroadcastFunc) Broadcast(userID string, event model.Event) {
	f(userID, event)
}
