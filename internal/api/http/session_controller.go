package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/pairline/internal/api/http/converter"
	"github.com/immxrtalbeast/pairline/internal/repository"
)

// SessionController exposes the persisted call history rows.
type SessionController struct {
	sessions repository.SessionRepository
}

func NewSessionController(sessions repository.SessionRepository) *SessionController {
	return &SessionController{sessions: sessions}
}

func (c *SessionController) ListSessions(ctx *gin.Context) {
	records, err := c.sessions.List(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]*converter.SessionResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, converter.SessionToApi(rec))
	}
	ctx.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (c *SessionController) GetSession(ctx *gin.Context) {
	roomID, err := uuid.Parse(ctx.Param("roomID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	rec, err := c.sessions.GetByRoomID(ctx.Request.Context(), roomID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"session": converter.SessionToApi(rec)})
}
