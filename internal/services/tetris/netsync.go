package tetris

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tetris-royale/backend/internal/apperrors"
	"github.com/tetris-royale/backend/internal/logger"
)

// syncState はネットワーク同期プロトコルを交渉したクライアントの接続状態です。
// seq の単調性チェックとクロックオフセット推定に使用します。
type syncState struct {
	mu           sync.Mutex
	lastInputSeq int64     // 受理した最後の input_event の seq（初期値 -1）
	lastAckSeq   int64     // クライアントが確認した最後の seq
	lastSeenAt   time.Time // 最後に何らかのメッセージを受信した時刻
	desyncCount  int       // このコネクションで報告された desync の回数
}

func (s *syncState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastInputSeq = -1
	s.lastAckSeq = -1
	s.lastSeenAt = time.Now()
}

// acceptInputSeq は input_event の seq を検証して記録します。
// 重複または過去の seq は拒否されます。
func (s *syncState) acceptInputSeq(seq int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeenAt = time.Now()
	if seq <= s.lastInputSeq {
		return false
	}
	s.lastInputSeq = seq
	return true
}

func (s *syncState) recordAck(seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeenAt = time.Now()
	if seq > s.lastAckSeq {
		s.lastAckSeq = seq
	}
}

func (s *syncState) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeenAt = time.Now()
}

func (s *syncState) recordDesync() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeenAt = time.Now()
	s.desyncCount++
	return s.desyncCount
}

// handleSyncMessage はネットワーク同期プロトコルのメッセージを処理します。
// レスポンスにはクロックオフセット推定用のサーバー時刻が含まれます。
func (g *Gateway) handleSyncMessage(ctx context.Context, client *Client, msg *inboundMessage) []byte {
	switch msg.Type {
	case "join_game":
		return g.handleSyncJoinGame(ctx, client, msg)

	case "match_ready":
		client.netsync.touch()
		return successResponse("match_ready", map[string]any{
			"seq":         msg.Seq,
			"server_time": time.Now().UnixMilli(),
		})

	case "input_event":
		return g.handleSyncInputEvent(ctx, client, msg)

	case "ping":
		client.netsync.touch()
		return successResponse("pong", map[string]any{
			"seq":         msg.Seq,
			"client_time": msg.ClientTime,
			"server_time": time.Now().UnixMilli(),
		})

	case "snapshot_request":
		return g.handleSnapshotRequest(ctx, client, msg)

	case "ack":
		client.netsync.recordAck(msg.Seq)
		return nil

	case "keepalive":
		client.netsync.touch()
		return nil

	case "desync_report":
		count := client.netsync.recordDesync()
		logger.WithPlayer(client.PlayerID).Warn("client reported desync",
			zap.String("reason", msg.Reason),
			zap.Int64("seq", msg.Seq),
			zap.Int("desync_count", count))
		return successResponse("desync_report", map[string]any{"seq": msg.Seq})

	default:
		return errorResponse(msg.Type, apperrors.Validation("unknown sync message", nil))
	}
}

// handleSyncJoinGame は指定ルームへの直接参加を処理します。
func (g *Gateway) handleSyncJoinGame(ctx context.Context, client *Client, msg *inboundMessage) []byte {
	name := msg.Name
	if name == "" {
		name = client.PlayerName
	}

	room, player, err := g.rooms.JoinRoom(ctx, msg.RoomID, name, client.SocketID)
	if err != nil {
		return errorResponse("join_game", err)
	}

	g.bindPlayer(ctx, client, player.ID, room.ID)
	client.netsync.reset()
	return successResponse("join_game", map[string]any{
		"seq":         msg.Seq,
		"room_id":     room.ID,
		"player":      player,
		"game_seed":   room.RoomSeed,
		"server_time": time.Now().UnixMilli(),
	})
}

// handleSyncInputEvent は seq 検証付きのプレイヤー操作を処理します。
// 重複・順序逆転した入力は適用せずに拒否レスポンスを返します。
func (g *Gateway) handleSyncInputEvent(ctx context.Context, client *Client, msg *inboundMessage) []byte {
	if !client.netsync.acceptInputSeq(msg.Seq) {
		logger.WithPlayer(client.PlayerID).Debug("rejected stale input event",
			zap.Int64("seq", msg.Seq))
		return errorResponse("input_event", apperrors.New(apperrors.CodeValidation, "stale or duplicate seq"))
	}

	action, err := ParseAction(msg.Action)
	if err != nil {
		return errorResponse("input_event", err)
	}

	playerID := msg.PlayerID
	if playerID == "" {
		playerID = client.PlayerID
	}
	if err := g.engine.HandlePlayerInput(ctx, playerID, action); err != nil {
		return errorResponse("input_event", err)
	}
	return successResponse("input_event", map[string]any{"seq": msg.Seq})
}

// handleSnapshotRequest は現在のゲーム状態の完全なスナップショットを返します。
// クライアントが desync から復帰するために使用します。
// ルームに参加中の場合は、対戦相手の最後に配信された状態のミラーも含めます。
func (g *Gateway) handleSnapshotRequest(ctx context.Context, client *Client, msg *inboundMessage) []byte {
	playerID := msg.PlayerID
	if playerID == "" {
		playerID = client.PlayerID
	}

	state, err := g.engine.GetPlayerGameState(ctx, playerID)
	if err != nil {
		return errorResponse("snapshot_request", err)
	}
	client.netsync.touch()

	response := map[string]any{
		"seq":         msg.Seq,
		"game_state":  state,
		"server_time": time.Now().UnixMilli(),
	}
	g.mu.RLock()
	roomID := client.RoomID
	g.mu.RUnlock()
	if roomID != "" {
		if mirrored, mErr := g.repo.MirroredStates(ctx, roomID); mErr == nil && len(mirrored) > 0 {
			roomStates := make(map[string]json.RawMessage, len(mirrored))
			for id, raw := range mirrored {
				roomStates[id] = json.RawMessage(raw)
			}
			response["room_states"] = roomStates
		}
	}
	return successResponse("state_snapshot", response)
}
