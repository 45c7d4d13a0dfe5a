package workerws

// Message is the envelope for every frame in either direction.
type Message struct {
	Type      string         `json:"type"`
	TsMs      int64          `json:"ts_ms"`
	SessionID string         `json:"session_id"`
	Seq       int64          `json:"seq"`
	CommandID string         `json:"command_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Worker to controller.
const (
	TypeHello     = "worker_hello"
	TypeUtterance = "utterance" // payload: text
	TypeSpeaking  = "speaking"  // payload: started
	TypeAck       = "cmd_ack"   // payload: duration_ms, error
)

// Controller to worker. Every command is answered by a cmd_ack carrying the
// same command_id.
const (
	CmdSpeak         = "speak"          // payload: text
	CmdPerformAction = "perform_action" // payload: name
	CmdSetEmotion    = "set_emotion"    // payload: name
	CmdMute          = "mute"
	CmdUnmute        = "unmute"
)

func (m Message) str(key string) string {
	v, _ := m.Payload[key].(string)
	return v
}

func (m Message) flag(key string) bool {
	v, _ := m.Payload[key].(bool)
	return v
}

// num reads a JSON number, which decodes into float64.
func (m Message) num(key string) float64 {
	switch v := m.Payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
