package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/service"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

// GmHandler обрабатывает HTTP запросы хода гейм-мастера.
type GmHandler struct {
	turns  *service.GmTurnService
	logger *zap.Logger
}

// NewGmHandler создает новый GmHandler.
func NewGmHandler(turns *service.GmTurnService, logger *zap.Logger) *GmHandler {
	return &GmHandler{
		turns:  turns,
		logger: logger.Named("GmHandler"),
	}
}

// RegisterRoutes регистрирует маршруты гейм-мастера.
func (h *GmHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/gm/turn", h.handleTurn)
}

// handleTurn принимает ввод игрока и стримит события хода как SSE.
func (h *GmHandler) handleTurn(c *gin.Context) {
	var req models.GmTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid turn request", zap.Error(err))
		c.JSON(http.StatusBadRequest, APIError{Message: models.ErrInvalidInput.Error()})
		return
	}

	h.logger.Info("Turn started",
		zap.String("sessionID", req.SessionID.String()),
		zap.String("inputType", string(req.InputType)),
	)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	// Отключает буферизацию в nginx, иначе SSE приходит пачками.
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	events := h.turns.Execute(c.Request.Context(), req)
	c.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}
		payload, err := json.Marshal(event)
		if err != nil {
			h.logger.Error("Failed to encode SSE event", zap.Error(err))
			return true
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		return true
	})
}
