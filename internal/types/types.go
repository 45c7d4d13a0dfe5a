package types

import "time"

type Event struct {
	Type    string         `json:"type"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Session is one run of the dialogue against the script backend. Its ID is
// the SId header value for the life of the process.
type Session struct {
	ID         string    `json:"session_id"`
	DialogueID string    `json:"dialogue_id"`
	ScriptURL  string    `json:"script_url"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"status"`

	WorkerConnectedAt *time.Time `json:"worker_connected_at,omitempty"`
}
