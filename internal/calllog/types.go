package calllog

import (
	"context"
	"time"
)

// Call is one conversation with the assistant, whether it arrived over the
// phone network or as a plain room participant.
type Call struct {
	ID              string     `json:"id"`
	RoomName        string     `json:"room_name"`
	ParticipantKind string     `json:"participant_kind"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// Turn stores a single user or assistant conversational turn of a call.
type Turn struct {
	ID        string    `json:"id"`
	CallID    string    `json:"call_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists the call log.
type Store interface {
	StartCall(ctx context.Context, call Call) error
	EndCall(ctx context.Context, callID string, endedAt time.Time) error
	SaveTurn(ctx context.Context, turn Turn) error
	RecentCalls(ctx context.Context, limit int) ([]Call, error)
	Turns(ctx context.Context, callID string) ([]Turn, error)
	Close() error
}
