package collab

import (
	"log"
)

// Router fans events out to room members. Code-change events for a single
// file reach every member in log-acceptance order because the engine invokes
// the broadcast before releasing the file's accept lock.
type Router struct {
	registry *Registry
	presence *Presence
	logger   *log.Logger
}

func NewRouter(registry *Registry, presence *Presence, logger *log.Logger) *Router {
	return &Router{registry: registry, presence: presence, logger: logger}
}

// Broadcast delivers an event to every member of the project room except
// excludeUserID. Delivery is best effort per recipient: a failed delivery
// never blocks the others, and the dead recipient is evicted from every room
// so membership heals itself.
func (r *Router) Broadcast(projectID string, evt Event, excludeUserID string) {
	for _, userID := range r.presence.MembersOf(projectID) {
		if userID == excludeUserID {
			continue
		}
		if !r.registry.Deliver(userID, evt) {
			affected, _ := r.presence.LeaveAll(userID)
			for _, stale := range affected {
				r.logger.Printf("Evicted unreachable user %s from project %s", userID, stale)
			}
		}
	}
}
