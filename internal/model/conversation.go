package model

import "time"

type Turn struct {
	Seq      int64     `json:"seq"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Time     time.Time `json:"time"`
}

// Prompt is assembled per query and never stored.
type Prompt struct {
	Text     string
	Question string
	Passages []Passage
	Turns    []Turn
}

type Answer struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"answer"`
	Passages  []Passage `json:"passages"`
	Degraded  bool      `json:"degraded"`
}
