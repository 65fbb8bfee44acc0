package models

import (
	"encoding/json"
	"time"

	"github.com/turtacn/contentsdk/pkg/constants"
)

// LongPollInfo holds the coordinates of the realtime notification endpoint.
type LongPollInfo struct {
	URL string
	// MaxRetries is the number of waits allowed before the coordinates must be re-discovered.
	MaxRetries int
	// RetryTimeout bounds a single wait.
	RetryTimeout time.Duration
	TTL          time.Duration
}

// realtimeEntry is one element of the OPTIONS /events response.
type realtimeEntry struct {
	Type         string      `json:"type"`
	URL          string      `json:"url"`
	TTL          flexibleInt `json:"ttl"`
	MaxRetries   flexibleInt `json:"max_retries"`
	RetryTimeout flexibleInt `json:"retry_timeout"`
}

// RealtimeServers is the body of OPTIONS /events.
type RealtimeServers struct {
	ChunkSize int             `json:"chunk_size"`
	Entries   []realtimeEntry `json:"entries"`
}

// Realtime returns the first realtime_server entry, or false when none is present.
func (r *RealtimeServers) Realtime() (*LongPollInfo, bool) {
	for _, e := range r.Entries {
		if e.Type != constants.RealtimeServerType || e.URL == "" {
			continue
		}
		return &LongPollInfo{
			URL:          e.URL,
			MaxRetries:   int(e.MaxRetries),
			RetryTimeout: time.Duration(e.RetryTimeout) * time.Second,
			TTL:          time.Duration(e.TTL) * time.Second,
		}, true
	}
	return nil, false
}

// LongPollMessage is the body returned by the realtime endpoint.
type LongPollMessage struct {
	Message string `json:"message"`
}

// Signal maps the message onto a LongPollSignal.
func (m LongPollMessage) Signal() constants.LongPollSignal {
	switch constants.LongPollSignal(m.Message) {
	case constants.SignalNewChange:
		return constants.SignalNewChange
	case constants.SignalReconnect:
		return constants.SignalReconnect
	default:
		return constants.SignalOther
	}
}

// ParseLongPollSignal decodes a long-poll body. Anything undecodable is SignalOther.
func ParseLongPollSignal(body []byte) constants.LongPollSignal {
	var msg LongPollMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return constants.SignalOther
	}
	return msg.Signal()
}
