package converter

import (
	"github.com/google/uuid"
	"github.com/immxrtalbeast/pairline/internal/repository"
)

type SessionResponse struct {
	RoomID          uuid.UUID `json:"room_id"`
	User1ID         string    `json:"user1_id"`
	User2ID         string    `json:"user2_id"`
	StartedAt       string    `json:"started_at"`
	EndedAt         string    `json:"ended_at,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	EndReason       string    `json:"end_reason,omitempty"`
	Offers          int       `json:"offers"`
	Answers         int       `json:"answers"`
	Candidates      int       `json:"candidates"`
}

func SessionToApi(rec *repository.SessionRecord) *SessionResponse {
	return &SessionResponse{
		RoomID:          rec.RoomID,
		User1ID:         rec.User1ID,
		User2ID:         rec.User2ID,
		StartedAt:       rec.StartedAt,
		EndedAt:         rec.EndedAt,
		DurationSeconds: rec.DurationSeconds,
		EndReason:       rec.EndReason,
		Offers:          rec.Offers,
		Answers:         rec.Answers,
		Candidates:      rec.Candidates,
	}
}
