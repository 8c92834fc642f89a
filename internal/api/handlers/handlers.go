// Package handlers はHTTPエンドポイントとWebSocketのアップグレードを提供します。
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tetris-royale/backend/internal/database"
	"github.com/tetris-royale/backend/internal/logger"
	"github.com/tetris-royale/backend/internal/services/tetris"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 開発用に全オリジンを許可。本番ではリバースプロキシ側で制限します。
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GameHandler はゲーム関連のHTTP/WebSocketエンドポイントを提供します。
type GameHandler struct {
	gateway *tetris.Gateway
	rooms   *tetris.RoomManager
	results database.ResultRepository
}

// NewGameHandler は新しいGameHandlerを作成します。results は nil でも構いません。
func NewGameHandler(gateway *tetris.Gateway, rooms *tetris.RoomManager, results database.ResultRepository) *GameHandler {
	return &GameHandler{gateway: gateway, rooms: rooms, results: results}
}

// HandleWebSocket はWebSocket接続へのアップグレードを処理し、接続をゲートウェイへ渡します。
func (h *GameHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.gateway.HandleConnection(conn)
}

// HandleHealth はヘルスチェックエンドポイントです。
func (h *GameHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleRoomStats はサーバー全体のルーム統計を返します。
func (h *GameHandler) HandleRoomStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.rooms.GetRoomStats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleRooms は存在する全ルームを返します。
func (h *GameHandler) HandleRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.GetAllRooms(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

// HandleRanking はスコアランキングを返します。永続ストアが無効の場合は404です。
func (h *GameHandler) HandleRanking(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ranking is not available"})
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	results, err := h.results.GetTopResults(r.Context(), limit)
	if err != nil {
		logger.L().Error("failed to fetch ranking", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch ranking"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.L().Warn("failed to write response", zap.Error(err))
	}
}
