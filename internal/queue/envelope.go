package queue

import "time"

// Envelope is the unit of queued work as stored at each queue key.
// Body is carried as base64 in the JSON encoding.
type Envelope struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Body []byte `json:"body"`
	Date int64  `json:"date"`
	Try  int    `json:"try"`
}

// EnqueuedAt returns the creation time.
func (e Envelope) EnqueuedAt() time.Time {
	return time.Unix(e.Date, 0)
}
