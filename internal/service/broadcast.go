package service

// Event types published for every match. Action events carry the logged
// action; match events carry a summary of the match.
const (
	EventMatchCreated     = "match_created"
	EventUnitMoved        = "unit_moved"
	EventUnitSummoned     = "unit_summoned"
	EventUnitAttacked     = "unit_attacked"
	EventTurnEnded        = "turn_ended"
	EventPlayerEliminated = "player_eliminated"
	EventMatchEnded       = "match_ended"
)

// Broadcaster fans match events out to live spectators. The WebSocket
// hub implements it.
type Broadcaster interface {
	BroadcastMatchEvent(matchID string, eventType string, data any)
}

// NoopBroadcaster drops every event. Used when no hub is configured.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastMatchEvent(string, string, any) {}

// actionEvent names the event published for a logged action kind.
func actionEvent(kind string) string {
	switch kind {
	case "move":
		return EventUnitMoved
	case "summon":
		return EventUnitSummoned
	case "attack":
		return EventUnitAttacked
	case "end_turn":
		return EventTurnEnded
	case "eliminated":
		return EventPlayerEliminated
	}
	return kind
}
