package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// bgmStreamRequest - первый фрейм клиента на BGM-стриме.
type bgmStreamRequest struct {
	ScenarioID  uuid.UUID `json:"scenario_id"`
	Mood        string    `json:"mood"`
	MusicPrompt string    `json:"music_prompt"`
	AuthToken   string    `json:"auth_token,omitempty"`
}

// bgmFrame - фрейм ответа BGM-стрима.
type bgmFrame struct {
	Type    string `json:"type"`
	Mood    string `json:"mood,omitempty"`
	Path    string `json:"path,omitempty"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
}

// bgmConn сериализует записи в соединение: gorilla/websocket допускает
// не более одного пишущего одновременно, а пинги шлет отдельная горутина.
type bgmConn struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger *zap.Logger
}

func (c *bgmConn) writeFrame(frame bgmFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(frame); err != nil {
		c.logger.Debug("Failed to write BGM frame", zap.Error(err))
	}
}

func (c *bgmConn) writeBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *bgmConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// BgmHandler обслуживает WebSocket-генерацию музыки и опрос статуса кеша.
type BgmHandler struct {
	bgm       *service.BgmService
	jwtSecret string
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// NewBgmHandler создает новый BgmHandler. Пустой jwtSecret отключает
// проверку auth_token.
func NewBgmHandler(bgm *service.BgmService, jwtSecret string, logger *zap.Logger) *BgmHandler {
	return &BgmHandler{
		bgm:       bgm,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Кросс-доменные клиенты пускает CORS на HTTP-уровне.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.Named("BgmHandler"),
	}
}

// RegisterRoutes регистрирует BGM-маршруты.
func (h *BgmHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/bgm/stream", h.handleStream)
	router.GET("/api/bgm/status", h.handleStatus)
}

// handleStatus возвращает состояние кеша для пары (scenario_id, mood).
func (h *BgmHandler) handleStatus(c *gin.Context) {
	scenarioID, err := uuid.Parse(c.Query("scenario_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid scenario_id"})
		return
	}
	mood := c.Query("mood")
	if mood == "" {
		c.JSON(http.StatusBadRequest, APIError{Message: "mood is required"})
		return
	}

	ctx := c.Request.Context()
	path, err := h.bgm.GetCachedBgmPathDetached(ctx, scenarioID, mood)
	if err != nil {
		h.logger.Error("BGM status lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Message: models.ErrInternalServer.Error()})
		return
	}
	if path != "" {
		c.JSON(http.StatusOK, gin.H{"status": "ready", "path": path})
		return
	}

	pending, err := h.bgm.IsPendingDetached(ctx, scenarioID, mood)
	if err != nil {
		h.logger.Error("BGM pending lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Message: models.ErrInternalServer.Error()})
		return
	}
	if pending {
		c.JSON(http.StatusOK, gin.H{"status": "generating"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "not_found"})
}

// handleStream апгрейдит соединение и выполняет один цикл
// запрос-генерация-ответ. Долгая генерация идет без занятого слота пула
// базы, соединение поддерживается пингами.
func (h *BgmHandler) handleStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	wc := &bgmConn{conn: conn, logger: h.logger}

	var req bgmStreamRequest
	if err := conn.ReadJSON(&req); err != nil {
		wc.writeFrame(bgmFrame{Type: "error", Message: models.ErrInvalidInput.Error()})
		return
	}
	if req.ScenarioID == uuid.Nil || req.Mood == "" {
		wc.writeFrame(bgmFrame{Type: "error", Message: "scenario_id and mood are required"})
		return
	}
	if err := h.verifyToken(req.AuthToken); err != nil {
		wc.writeFrame(bgmFrame{Type: "error", Message: err.Error()})
		return
	}

	ctx := c.Request.Context()
	mood := service.NormalizeMood(req.Mood)

	cached, err := h.bgm.GetCachedBgmPathDetached(ctx, req.ScenarioID, mood)
	if err != nil {
		h.logger.Error("BGM cache lookup failed", zap.Error(err))
		wc.writeFrame(bgmFrame{Type: "error", Message: models.ErrInternalServer.Error()})
		return
	}
	if cached != "" {
		wc.writeFrame(bgmFrame{Type: "cached", Mood: mood, Path: cached, URL: h.bgm.PublicBgmURL(cached)})
		return
	}

	wc.writeFrame(bgmFrame{Type: "generating", Mood: mood})

	stopPing := make(chan struct{})
	go h.pingLoop(wc, stopPing)
	// PCM-чанки уходят клиенту бинарными фреймами по мере генерации;
	// финальный complete несет URL закодированного трека из кеша.
	path, err := h.bgm.StreamAndCacheDetached(ctx, req.ScenarioID, mood, req.MusicPrompt, func(pcm []byte) error {
		return wc.writeBinary(pcm)
	})
	close(stopPing)

	if err != nil {
		if err == models.ErrBgmGenerationInFlight {
			// Другой узел уже генерирует: клиент дождется через опрос статуса.
			wc.writeFrame(bgmFrame{Type: "generating", Mood: mood})
			return
		}
		h.logger.Error("BGM generation failed",
			zap.String("scenarioID", req.ScenarioID.String()), zap.String("mood", mood), zap.Error(err))
		wc.writeFrame(bgmFrame{Type: "error", Mood: mood, Message: "bgm generation failed"})
		return
	}
	wc.writeFrame(bgmFrame{Type: "complete", Mood: mood, Path: path, URL: h.bgm.PublicBgmURL(path)})
}

func (h *BgmHandler) verifyToken(token string) error {
	if h.jwtSecret == "" || token == "" {
		return nil
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, models.ErrTokenInvalid
		}
		return []byte(h.jwtSecret), nil
	})
	if err != nil || !parsed.Valid {
		return models.ErrTokenInvalid
	}
	return nil
}

func (h *BgmHandler) pingLoop(wc *bgmConn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
