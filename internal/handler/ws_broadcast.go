package handler

import "github.com/freeeve/hexwar/internal/service"

var _ service.Broadcaster = (*Hub)(nil)

// BroadcastMatchEvent sends a match event to the match's subscribers.
// New matches go to every connection so lobbies can list them.
func (h *Hub) BroadcastMatchEvent(matchID string, eventType string, data any) {
	event := WSEvent{Type: eventType, MatchID: matchID, Data: data}
	if eventType == service.EventMatchCreated {
		h.BroadcastAll(event)
		return
	}
	h.BroadcastToMatch(matchID, event)
}
