package tetris

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tetris-royale/backend/internal/apperrors"
	"github.com/tetris-royale/backend/internal/logger"
	"github.com/tetris-royale/backend/internal/store"
)

// sendBufferSize はクライアントごとの送信バッファサイズです。
// ゲーム状態更新の頻度を考慮し、大きめのバッファを確保します。
const sendBufferSize = 512

// Client はWebSocket接続を持つ単一のクライアントを表します。
// PlayerID と RoomID は購読ゴルーチンのファンアウトや切断処理からも参照されるため、
// readPump以外のゴルーチンからのアクセスは Gateway.mu で保護します。
type Client struct {
	SocketID   string          // 接続ごとに採番されるソケットID
	PlayerID   string          // joinAutoRoom 後に紐づくプレイヤーID（Gateway.muで保護）
	PlayerName string          // 認証またはjoinで申告された表示名
	RoomID     string          // このクライアントが現在参加しているルームのID（Gateway.muで保護）
	Conn       *websocket.Conn // クライアントとの実際のWebSocketコネクション
	Send       chan []byte     // クライアントへメッセージを送信するためのバッファ付きチャネル

	authenticated bool      // JWT認証済みかどうか（認証無効時は常にtrue）
	netsync       syncState // ネットワーク同期プロトコルの接続状態

	closed bool       // チャネルが閉じられたかどうかのフラグ
	mu     sync.Mutex // closedフラグ保護用
}

// SafeSend は安全にチャネルにメッセージを送信します（closedチェック付き）。
func (c *Client) SafeSend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.Send <- message:
		return true
	default:
		return false // チャネルがフル
	}
}

// SafeClose は安全にチャネルを閉じます。
func (c *Client) SafeClose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.Send)
		c.closed = true
	}
}

// Gateway は接続中の全クライアントと、ストアのpub/subからトランスポートへの
// ファンアウトを管理します。アプリケーション内でシングルトンとして動作します。
type Gateway struct {
	rooms     *RoomManager
	engine    *GameEngine
	repo      *store.Repository
	jwtSecret string // 空の場合は認証ハンドシェイクを要求しない

	mu       sync.RWMutex
	clients  map[string]*Client // socketID -> Client
	byPlayer map[string]*Client // playerID -> Client

	register   chan *Client
	unregister chan *Client
	quit       chan struct{}

	subs []store.Subscription
}

// NewGateway は新しいGatewayを作成し、pub/sub購読とメインループを開始します。
func NewGateway(ctx context.Context, rooms *RoomManager, engine *GameEngine, repo *store.Repository, jwtSecret string) (*Gateway, error) {
	g := &Gateway{
		rooms:      rooms,
		engine:     engine,
		repo:       repo,
		jwtSecret:  jwtSecret,
		clients:    make(map[string]*Client),
		byPlayer:   make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
	if err := g.subscribe(ctx); err != nil {
		return nil, err
	}
	go g.run()
	return g, nil
}

// subscribe は起動時に一度だけ、4つのpub/subパターンを購読します。
// 届いたメッセージはそのまま該当プレイヤーまたはルームの全クライアントへ転送されます。
// ハンドラー内の失敗は配信のスキップにとどめ、購読ループ自体は決して死なせません。
func (g *Gateway) subscribe(ctx context.Context) error {
	perPlayer := func(channel, payload string) {
		playerID := channelSuffix(channel)
		g.mu.RLock()
		client, ok := g.byPlayer[playerID]
		g.mu.RUnlock()
		if !ok {
			return
		}
		if !client.SafeSend([]byte(payload)) {
			logger.WithPlayer(playerID).Warn("dropping fan-out message: client buffer full")
		}
	}
	perRoom := func(channel, payload string) {
		roomID := channelSuffix(channel)
		g.mu.RLock()
		defer g.mu.RUnlock()
		for _, client := range g.clients {
			if client.RoomID != roomID {
				continue
			}
			if !client.SafeSend([]byte(payload)) {
				logger.WithRoom(roomID).Warn("dropping fan-out message: client buffer full",
					zap.String("socket_id", client.SocketID))
			}
		}
	}

	patterns := []struct {
		pattern string
		handler store.Handler
	}{
		{store.PatternGameStateUpdate, perPlayer},
		{store.PatternGameStarted, perPlayer},
		{store.PatternPlayerStateChanged, perRoom},
		{store.PatternRoomStateUpdate, perRoom},
	}
	for _, p := range patterns {
		sub, err := g.repo.Store().PSubscribe(ctx, p.pattern, p.handler)
		if err != nil {
			return apperrors.StoreError(err)
		}
		g.subs = append(g.subs, sub)
	}
	return nil
}

// channelSuffix はチャンネル名の最後のセグメント（playerId / roomId）を返します。
func channelSuffix(channel string) string {
	if i := strings.LastIndex(channel, ":"); i >= 0 {
		return channel[i+1:]
	}
	return channel
}

// run はGatewayのメインイベントループです。
// クライアントの登録・解除と、切断時の退出処理を行います。
func (g *Gateway) run() {
	for {
		select {
		case client := <-g.register:
			g.mu.Lock()
			g.clients[client.SocketID] = client
			g.mu.Unlock()
			logger.L().Info("client registered", zap.String("socket_id", client.SocketID))

		case client := <-g.unregister:
			g.mu.Lock()
			if registered, ok := g.clients[client.SocketID]; ok {
				registered.SafeClose()
				delete(g.clients, client.SocketID)
				if registered.PlayerID != "" {
					delete(g.byPlayer, registered.PlayerID)
				}
			}
			g.mu.Unlock()
			g.cleanupDisconnected(client)

		case <-g.quit:
			return
		}
	}
}

// cleanupDisconnected は切断されたクライアントの退出処理をベストエフォートで行います。
// 重力タイマーを残したままにしないことが唯一の必須条件です。
func (g *Gateway) cleanupDisconnected(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g.mu.RLock()
	playerID := client.PlayerID
	roomID := client.RoomID
	g.mu.RUnlock()
	if playerID == "" {
		// ソケット索引から解決を試みる
		resolved, found, err := g.repo.ResolveSocket(ctx, client.SocketID)
		if err != nil || !found {
			return
		}
		playerID = resolved
	}

	if roomID != "" {
		if err := g.rooms.LeaveGameAuto(ctx, roomID, playerID); err != nil {
			logger.WithPlayer(playerID).Warn("cleanup on disconnect failed", zap.Error(err))
			// ルーム退出に失敗してもタイマーだけは確実に止める
			g.engine.RemovePlayer(ctx, playerID)
		}
	} else {
		g.engine.RemovePlayer(ctx, playerID)
	}

	if err := g.repo.UnbindSocket(ctx, client.SocketID); err != nil {
		logger.L().Warn("failed to unbind socket", zap.String("socket_id", client.SocketID), zap.Error(err))
	}
	logger.WithPlayer(playerID).Info("client disconnected and cleaned up",
		zap.String("socket_id", client.SocketID))
}

// HandleConnection はアップグレード済みのWebSocket接続を引き受けます。
// 接続ごとにreadPump/writePumpのゴルーチンを起動します。
func (g *Gateway) HandleConnection(conn *websocket.Conn) {
	client := &Client{
		SocketID:      uuid.New().String(),
		Conn:          conn,
		Send:          make(chan []byte, sendBufferSize),
		authenticated: g.jwtSecret == "",
	}
	client.netsync.reset()

	g.register <- client
	go client.writePump()
	go g.readPump(client)
}

// Shutdown は全購読を解除し、全クライアントを切断してGatewayを停止します。
func (g *Gateway) Shutdown() {
	close(g.quit)
	for _, sub := range g.subs {
		sub.Close()
	}

	g.mu.Lock()
	for _, client := range g.clients {
		if client.Conn != nil {
			client.Conn.Close()
		}
		client.SafeClose()
	}
	g.clients = make(map[string]*Client)
	g.byPlayer = make(map[string]*Client)
	g.mu.Unlock()

	logger.L().Info("gateway shut down")
}

// inboundMessage は受信メッセージの共通エンベロープです。
type inboundMessage struct {
	Type       string `json:"type"`
	Seq        int64  `json:"seq,omitempty"`
	Name       string `json:"name,omitempty"`
	RoomID     string `json:"room_id,omitempty"`
	PlayerID   string `json:"player_id,omitempty"`
	Action     string `json:"action,omitempty"`
	Token      string `json:"token,omitempty"`
	ClientTime int64  `json:"client_time,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// readPump はクライアントからのメッセージを読み取り、ディスパッチします。
// クライアントごとにこのゴルーチンが動作します。
func (g *Gateway) readPump(client *Client) {
	defer func() {
		g.unregister <- client
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.L().Warn("websocket unexpected close",
					zap.String("socket_id", client.SocketID), zap.Error(err))
			} else {
				logger.L().Debug("websocket closed",
					zap.String("socket_id", client.SocketID), zap.Error(err))
			}
			return
		}
		if len(message) == 0 {
			continue
		}

		response := g.handleMessage(context.Background(), client, message)
		if response != nil {
			client.SafeSend(response)
		}
	}
}

// handleMessage は受信メッセージ1件を処理し、返信すべきレスポンスを返します。
// 返信不要なメッセージタイプでは nil を返します。
// ディスパッチ内の失敗はすべてエラーレスポンスに変換され、この関数からエラーは漏れません。
func (g *Gateway) handleMessage(ctx context.Context, client *Client, raw []byte) []byte {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return errorResponse("error", apperrors.Validation("malformed message", nil))
	}

	if msg.Type == "auth" {
		return g.handleAuth(client, &msg)
	}
	if !client.authenticated {
		return errorResponse(msg.Type, apperrors.New(apperrors.CodeValidation, "authentication required"))
	}

	switch msg.Type {
	case "joinAutoRoom":
		return g.handleJoinAutoRoom(ctx, client, &msg)
	case "leaveAutoRoom":
		return g.handleLeaveAutoRoom(ctx, client, &msg)
	case "handlePlayerInput":
		g.handlePlayerInput(ctx, client, &msg)
		return nil // side effects arrive via pub/sub
	case "getPlayerGameState":
		return g.handleGetPlayerGameState(ctx, client, &msg)
	case "getRoomPlayers":
		return g.handleGetRoomPlayers(ctx, &msg)
	case "getRoomInfo":
		return g.handleGetRoomInfo(ctx, &msg)
	case "getRoomStats":
		return g.handleGetRoomStats(ctx)
	case "startRoomGame":
		return g.handleStartRoomGame(ctx, &msg)
	case "join_game", "match_ready", "input_event", "ping", "snapshot_request", "ack", "keepalive", "desync_report":
		return g.handleSyncMessage(ctx, client, &msg)
	default:
		return errorResponse(msg.Type, apperrors.Validation(
			fmt.Sprintf("unknown message type: %s", msg.Type), nil))
	}
}

// handleAuth はJWTトークンによる認証ハンドシェイクを処理します。
func (g *Gateway) handleAuth(client *Client, msg *inboundMessage) []byte {
	if g.jwtSecret == "" {
		client.authenticated = true
		return successResponse("auth", nil)
	}

	token, err := jwt.Parse(msg.Token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(g.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		logger.L().Warn("authentication failed",
			zap.String("socket_id", client.SocketID), zap.Error(err))
		return errorResponse("auth", apperrors.New(apperrors.CodeValidation, "invalid token"))
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		if sub, err := claims.GetSubject(); err == nil {
			client.PlayerName = sub
		}
	}
	client.authenticated = true
	return successResponse("auth", nil)
}

func (g *Gateway) handleJoinAutoRoom(ctx context.Context, client *Client, msg *inboundMessage) []byte {
	name := msg.Name
	if name == "" {
		name = client.PlayerName
	}

	room, player, err := g.rooms.JoinAutoRoom(ctx, name, client.SocketID)
	if err != nil {
		return errorResponse("joinAutoRoom", err)
	}

	g.bindPlayer(ctx, client, player.ID, room.ID)
	return successResponse("joinAutoRoom", map[string]any{
		"room_id": room.ID,
		"player":  player,
	})
}

func (g *Gateway) handleLeaveAutoRoom(ctx context.Context, client *Client, msg *inboundMessage) []byte {
	roomID := msg.RoomID
	playerID := msg.PlayerID
	g.mu.RLock()
	if roomID == "" {
		roomID = client.RoomID
	}
	if playerID == "" {
		playerID = client.PlayerID
	}
	g.mu.RUnlock()
	if roomID == "" || playerID == "" {
		return errorResponse("leaveAutoRoom", apperrors.Validation("room_id and player_id are required", nil))
	}

	if err := g.rooms.LeaveGameAuto(ctx, roomID, playerID); err != nil {
		return errorResponse("leaveAutoRoom", err)
	}

	g.mu.Lock()
	delete(g.byPlayer, playerID)
	client.PlayerID = ""
	client.RoomID = ""
	g.mu.Unlock()
	return successResponse("leaveAutoRoom", nil)
}

func (g *Gateway) handlePlayerInput(ctx context.Context, client *Client, msg *inboundMessage) {
	playerID := msg.PlayerID
	if playerID == "" {
		playerID = client.PlayerID
	}

	action, err := ParseAction(msg.Action)
	if err != nil {
		logger.WithPlayer(playerID).Warn("rejected invalid action", zap.String("action", msg.Action))
		return
	}
	if err := g.engine.HandlePlayerInput(ctx, playerID, action); err != nil {
		logger.WithPlayer(playerID).Warn("player input failed", zap.Error(err))
	}
}

func (g *Gateway) handleGetPlayerGameState(ctx context.Context, client *Client, msg *inboundMessage) []byte {
	playerID := msg.PlayerID
	if playerID == "" {
		playerID = client.PlayerID
	}

	state, err := g.engine.GetPlayerGameState(ctx, playerID)
	if err != nil {
		return errorResponse("getPlayerGameState", err)
	}
	return successResponse("getPlayerGameState", map[string]any{"game_state": state})
}

func (g *Gateway) handleGetRoomPlayers(ctx context.Context, msg *inboundMessage) []byte {
	players, err := g.rooms.GetRoomPlayers(ctx, msg.RoomID)
	if err != nil {
		return errorResponse("getRoomPlayers", err)
	}
	return successResponse("getRoomPlayers", map[string]any{"players": players})
}

func (g *Gateway) handleGetRoomInfo(ctx context.Context, msg *inboundMessage) []byte {
	if _, err := g.rooms.GetRoomInfo(ctx, msg.RoomID); err != nil {
		return errorResponse("getRoomInfo", err)
	}
	return successResponse("getRoomInfo", nil)
}

func (g *Gateway) handleGetRoomStats(ctx context.Context) []byte {
	stats, err := g.rooms.GetRoomStats(ctx)
	if err != nil {
		return errorResponse("getRoomStats", err)
	}
	return successResponse("getRoomStats", map[string]any{"stats": stats})
}

func (g *Gateway) handleStartRoomGame(ctx context.Context, msg *inboundMessage) []byte {
	room, err := g.rooms.StartRoomGame(ctx, msg.RoomID)
	if err != nil {
		return errorResponse("startRoomGame", err)
	}
	return successResponse("startRoomGame", map[string]any{
		"room_id":   room.ID,
		"game_seed": room.RoomSeed,
	})
}

// bindPlayer は接続とプレイヤーの対応を記録します。
// クライアントの紐づけフィールドはファンアウトハンドラーが並行して読むため、
// byPlayer の更新と同じクリティカルセクションで書き込みます。
func (g *Gateway) bindPlayer(ctx context.Context, client *Client, playerID, roomID string) {
	g.mu.Lock()
	client.PlayerID = playerID
	client.RoomID = roomID
	g.byPlayer[playerID] = client
	g.mu.Unlock()

	if err := g.repo.BindSocket(ctx, client.SocketID, playerID); err != nil {
		logger.WithPlayer(playerID).Warn("failed to bind socket", zap.Error(err))
	}
}

// successResponse は成功レスポンスのエンベロープを作成します。
func successResponse(msgType string, fields map[string]any) []byte {
	response := map[string]any{
		"type":    msgType,
		"success": true,
	}
	for k, v := range fields {
		response[k] = v
	}
	payload, err := json.Marshal(response)
	if err != nil {
		return []byte(`{"success":false,"error":{"code":"INTERNAL_ERROR","message":"failed to encode response"}}`)
	}
	return payload
}

// errorResponse はエラーをタクソノミーのコード付きレスポンスに変換します。
func errorResponse(msgType string, err error) []byte {
	appErr := apperrors.FromError(err)
	if appErr.Code == apperrors.CodeInternal {
		logger.L().Error("internal error in message handler",
			zap.String("message_type", msgType), zap.Error(err))
	}
	payload, marshalErr := json.Marshal(map[string]any{
		"type":    msgType,
		"success": false,
		"error":   appErr,
	})
	if marshalErr != nil {
		return []byte(`{"success":false,"error":{"code":"INTERNAL_ERROR","message":"failed to encode error"}}`)
	}
	return payload
}

// writePump は Client の Send チャネルからのメッセージをWebSocketコネクションに書き込みます。
// クライアントごとにこのゴルーチンが動作します。
func (c *Client) writePump() {
	defer func() {
		if r := recover(); r != nil {
			logger.L().Error("panic in writePump",
				zap.String("socket_id", c.SocketID), zap.Any("panic", r))
		}
		if c.Conn != nil {
			c.Conn.Close()
		}
	}()

	// コネクション生存確認用のピングタイマー
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Gatewayがチャネルを閉じた場合
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.L().Warn("websocket write failed",
					zap.String("socket_id", c.SocketID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
