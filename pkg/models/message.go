package models

// Message is one immutable chat message. ID is the key it is stored under.
type Message struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	IsAdmin   bool   `json:"isAdmin"`
	// Seq is the global append sequence; it orders messages that share a
	// timestamp.
	Seq uint64 `json:"seq"`
}

// Before orders messages by timestamp, then append sequence.
func (m Message) Before(o Message) bool {
	if m.Timestamp != o.Timestamp {
		return m.Timestamp < o.Timestamp
	}
	return m.Seq < o.Seq
}
