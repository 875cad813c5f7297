package types

// Event represents a typed event emitted during a market state transition.
// Attributes are rendered as strings so downstream consumers do not need the
// engine's numeric types.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
