package models

// ModerationVerdict is the moderation gate decision for a message.
type ModerationVerdict struct {
	IsAppropriate bool    `json:"is_appropriate"`
	Reason        string  `json:"reason"`
	Confidence    float64 `json:"confidence"`
}
