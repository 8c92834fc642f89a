package tetris

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tetris-royale/backend/internal/apperrors"
	"github.com/tetris-royale/backend/internal/logger"
	"github.com/tetris-royale/backend/internal/models"
	"github.com/tetris-royale/backend/internal/store"
)

// RoomStats はサーバー全体のルーム統計です。
type RoomStats struct {
	TotalRooms   int `json:"total_rooms"`
	TotalPlayers int `json:"total_players"`
	WaitingRooms int `json:"waiting_rooms"`
	PlayingRooms int `json:"playing_rooms"`
}

// RoomManager はルームの割り当てとライフサイクルを管理します。
// 参加・退出の人数計算は mu で直列化され、部分的な増減が残らないようにします。
type RoomManager struct {
	repo   *store.Repository
	engine *GameEngine
	mu     sync.Mutex
}

// NewRoomManager は新しいRoomManagerを作成します。
func NewRoomManager(repo *store.Repository, engine *GameEngine) *RoomManager {
	return &RoomManager{repo: repo, engine: engine}
}

// JoinAutoRoom はプレイヤーを参加可能なルームへ自動的に割り当てます。
// 参加可能なルームがなければ新しいルームを作成します。
func (rm *RoomManager) JoinAutoRoom(ctx context.Context, name, socketID string) (*models.Room, *models.Player, error) {
	if name == "" {
		return nil, nil, apperrors.Validation("player name is required", map[string]string{"name": "required"})
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, err := rm.findAvailableRoom(ctx)
	if err != nil {
		return nil, nil, err
	}
	if room == nil {
		room, err = rm.createNewRoom(ctx)
		if err != nil {
			return nil, nil, err
		}
	}

	player := &models.Player{
		ID:       uuid.New().String(),
		Name:     name,
		SocketID: socketID,
		RoomID:   room.ID,
		Status:   models.PlayerStatusAlive,
		JoinedAt: time.Now(),
	}
	if err := rm.repo.SavePlayer(ctx, player); err != nil {
		return nil, nil, err
	}

	if _, err := rm.engine.CreatePlayerState(ctx, player.ID, player.Name, room.ID); err != nil {
		// 状態を作れなかった場合はプレイヤーレコードを巻き戻す
		if delErr := rm.repo.DeletePlayer(ctx, player.ID); delErr != nil {
			logger.WithPlayer(player.ID).Warn("failed to roll back player record", zap.Error(delErr))
		}
		return nil, nil, err
	}

	if err := rm.repo.AddGamePlayer(ctx, room.ID, player.ID); err != nil {
		rm.rollbackJoin(ctx, room.ID, player.ID, false)
		return nil, nil, err
	}

	room.CurrentPlayers++
	room.LastActivity = time.Now()
	if err := rm.repo.SaveRoom(ctx, room); err != nil {
		room.CurrentPlayers--
		rm.rollbackJoin(ctx, room.ID, player.ID, true)
		return nil, nil, err
	}

	rm.publishRoomEvent(ctx, room.ID, "playerJoined", map[string]any{
		"player_id":    player.ID,
		"player_name":  player.Name,
		"player_count": room.CurrentPlayers,
	})

	logger.WithRoom(room.ID).Info("player joined room",
		zap.String("player_id", player.ID),
		zap.Int("current_players", room.CurrentPlayers))
	return room, player, nil
}

// rollbackJoin は参加処理が途中で失敗した場合に、作成済みのプレイヤーレコードと
// ゲーム状態（および参加者集合への登録）を巻き戻します。部分的な参加状態を残しません。
func (rm *RoomManager) rollbackJoin(ctx context.Context, roomID, playerID string, inRoomSet bool) {
	if inRoomSet {
		if err := rm.repo.RemoveGamePlayer(ctx, roomID, playerID); err != nil {
			logger.WithPlayer(playerID).Warn("failed to roll back room membership", zap.Error(err))
		}
	}
	rm.engine.RemovePlayer(ctx, playerID)
	if err := rm.repo.DeletePlayer(ctx, playerID); err != nil {
		logger.WithPlayer(playerID).Warn("failed to roll back player record", zap.Error(err))
	}
}

// JoinRoom はプレイヤーを指定のルームへ参加させます（ネットワーク同期クライアント用の直接参加）。
// 満員のルームは ROOM_FULL、終了済みのルームは ROOM_NOT_ACCEPTING_PLAYERS で拒否されます。
func (rm *RoomManager) JoinRoom(ctx context.Context, roomID, name, socketID string) (*models.Room, *models.Player, error) {
	if name == "" {
		return nil, nil, apperrors.Validation("player name is required", map[string]string{"name": "required"})
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, err := rm.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if room.Status == models.RoomStatusFinished {
		return nil, nil, apperrors.RoomNotAcceptingPlayers(roomID)
	}
	if room.IsFull() {
		return nil, nil, apperrors.RoomFull(roomID)
	}

	player := &models.Player{
		ID:       uuid.New().String(),
		Name:     name,
		SocketID: socketID,
		RoomID:   room.ID,
		Status:   models.PlayerStatusAlive,
		JoinedAt: time.Now(),
	}
	if err := rm.repo.SavePlayer(ctx, player); err != nil {
		return nil, nil, err
	}
	if _, err := rm.engine.CreatePlayerState(ctx, player.ID, player.Name, room.ID); err != nil {
		if delErr := rm.repo.DeletePlayer(ctx, player.ID); delErr != nil {
			logger.WithPlayer(player.ID).Warn("failed to roll back player record", zap.Error(delErr))
		}
		return nil, nil, err
	}
	if err := rm.repo.AddGamePlayer(ctx, room.ID, player.ID); err != nil {
		rm.rollbackJoin(ctx, room.ID, player.ID, false)
		return nil, nil, err
	}

	room.CurrentPlayers++
	room.LastActivity = time.Now()
	if err := rm.repo.SaveRoom(ctx, room); err != nil {
		room.CurrentPlayers--
		rm.rollbackJoin(ctx, room.ID, player.ID, true)
		return nil, nil, err
	}

	rm.publishRoomEvent(ctx, room.ID, "playerJoined", map[string]any{
		"player_id":    player.ID,
		"player_name":  player.Name,
		"player_count": room.CurrentPlayers,
	})
	return room, player, nil
}

// LeaveGameAuto はプレイヤーをルームから退出させます。
// 最後のプレイヤーが退出したルームは即座に削除されます。
func (rm *RoomManager) LeaveGameAuto(ctx context.Context, roomID, playerID string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, err := rm.repo.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	rm.engine.RemovePlayer(ctx, playerID)

	if err := rm.repo.DeletePlayer(ctx, playerID); err != nil {
		return err
	}
	if err := rm.repo.RemoveGamePlayer(ctx, roomID, playerID); err != nil {
		return err
	}

	room.CurrentPlayers--
	if room.CurrentPlayers <= 0 {
		if err := rm.repo.DeleteRoom(ctx, roomID); err != nil {
			return err
		}
		if err := rm.repo.UnregisterGame(ctx, roomID); err != nil {
			logger.WithRoom(roomID).Warn("failed to unregister game", zap.Error(err))
		}
		logger.WithRoom(roomID).Info("room deleted: last player left")
		return nil
	}

	room.LastActivity = time.Now()
	if err := rm.repo.SaveRoom(ctx, room); err != nil {
		return err
	}

	rm.publishRoomEvent(ctx, roomID, "playerLeft", map[string]any{
		"player_id":    playerID,
		"player_count": room.CurrentPlayers,
	})

	logger.WithRoom(roomID).Info("player left room",
		zap.String("player_id", playerID),
		zap.Int("current_players", room.CurrentPlayers))
	return nil
}

// StartRoomGame はルームのゲームを開始し、全参加プレイヤーのゲームを起動します。
func (rm *RoomManager) StartRoomGame(ctx context.Context, roomID string) (*models.Room, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, err := rm.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusWaiting {
		return nil, apperrors.CannotStart(roomID, string(room.Status))
	}

	room.Status = models.RoomStatusPlaying
	room.TotalGames++
	room.LastActivity = time.Now()
	if err := rm.repo.SaveRoom(ctx, room); err != nil {
		return nil, err
	}
	if err := rm.repo.RegisterGame(ctx, roomID); err != nil {
		logger.WithRoom(roomID).Warn("failed to register game", zap.Error(err))
	}

	playerIDs, err := rm.repo.GamePlayers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for _, playerID := range playerIDs {
		if err := rm.engine.StartPlayerGame(ctx, playerID); err != nil {
			logger.WithRoom(roomID).Warn("failed to start player game",
				zap.String("player_id", playerID), zap.Error(err))
		}
	}

	rm.publishRoomEvent(ctx, roomID, "roomGameStarted", map[string]any{
		"game_seed":    room.RoomSeed,
		"player_count": room.CurrentPlayers,
	})

	logger.WithRoom(roomID).Info("room game started",
		zap.Int("players", len(playerIDs)),
		zap.Int32("room_seed", room.RoomSeed))
	return room, nil
}

// GetRoomPlayers はルームの全プレイヤーを返します。
func (rm *RoomManager) GetRoomPlayers(ctx context.Context, roomID string) ([]*models.Player, error) {
	if _, err := rm.repo.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	playerIDs, err := rm.repo.GamePlayers(ctx, roomID)
	if err != nil {
		return nil, err
	}

	players := make([]*models.Player, 0, len(playerIDs))
	for _, playerID := range playerIDs {
		player, err := rm.repo.GetPlayer(ctx, playerID)
		if err != nil {
			// 集合に残っている欠損プレイヤーはスキップ
			logger.WithRoom(roomID).Warn("skipping missing player in room set",
				zap.String("player_id", playerID))
			continue
		}
		players = append(players, player)
	}
	return players, nil
}

// GetRoomInfo はルーム情報を取得し、roomStateUpdate を配信します。
func (rm *RoomManager) GetRoomInfo(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := rm.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	players, err := rm.GetRoomPlayers(ctx, roomID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"type":         "roomStateUpdate",
		"room_id":      roomID,
		"room_info":    room,
		"players":      players,
		"player_count": room.CurrentPlayers,
		"timestamp":    time.Now().UnixMilli(),
	})
	if err == nil {
		if pubErr := rm.repo.PublishRoomStateUpdate(ctx, roomID, string(payload)); pubErr != nil {
			logger.WithRoom(roomID).Warn("failed to publish room state update", zap.Error(pubErr))
		}
	}
	return room, nil
}

// GetAllRooms は存在する全ルームを返します。
func (rm *RoomManager) GetAllRooms(ctx context.Context) ([]*models.Room, error) {
	roomIDs, err := rm.repo.ActiveRoomIDs(ctx)
	if err != nil {
		return nil, err
	}

	rooms := make([]*models.Room, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		room, err := rm.repo.GetRoom(ctx, roomID)
		if err != nil {
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// GetRoomStats はサーバー全体のルーム統計を返し、roomStatsUpdate を各ルームへ配信します。
func (rm *RoomManager) GetRoomStats(ctx context.Context) (*RoomStats, error) {
	rooms, err := rm.GetAllRooms(ctx)
	if err != nil {
		return nil, err
	}

	stats := &RoomStats{TotalRooms: len(rooms)}
	for _, room := range rooms {
		stats.TotalPlayers += room.CurrentPlayers
		switch room.Status {
		case models.RoomStatusWaiting:
			stats.WaitingRooms++
		case models.RoomStatusPlaying:
			stats.PlayingRooms++
		}
	}

	payload, err := json.Marshal(map[string]any{
		"type":      "roomStatsUpdate",
		"stats":     stats,
		"timestamp": time.Now().UnixMilli(),
	})
	if err == nil {
		for _, room := range rooms {
			if pubErr := rm.repo.PublishRoomStateUpdate(ctx, room.ID, string(payload)); pubErr != nil {
				logger.WithRoom(room.ID).Warn("failed to publish room stats update", zap.Error(pubErr))
			}
		}
	}
	return stats, nil
}

// findAvailableRoom は参加可能なルームを優先順位付きで探します。
// 優先順位: (1) 空きのあるPLAYINGルーム (2) 空きのあるWAITINGルーム (3) 空きのある任意のルーム。
// 見つからない場合は nil を返します。
func (rm *RoomManager) findAvailableRoom(ctx context.Context) (*models.Room, error) {
	rooms, err := rm.GetAllRooms(ctx)
	if err != nil {
		return nil, err
	}

	var waiting, fallback *models.Room
	for _, room := range rooms {
		if !room.CanJoin() {
			continue
		}
		switch room.Status {
		case models.RoomStatusPlaying:
			return room, nil
		case models.RoomStatusWaiting:
			if waiting == nil {
				waiting = room
			}
		default:
			if fallback == nil {
				fallback = room
			}
		}
	}
	if waiting != nil {
		return waiting, nil
	}
	return fallback, nil
}

// createNewRoom は新しいルームを作成し、参加可能ルーム集合に登録します。
func (rm *RoomManager) createNewRoom(ctx context.Context) (*models.Room, error) {
	now := time.Now()
	room := &models.Room{
		ID:           fmt.Sprintf("room_%d_%09d", now.UnixMilli(), rand.Intn(1_000_000_000)),
		Status:       models.RoomStatusWaiting,
		MaxPlayers:   models.MaxPlayersPerRoom,
		RoomSeed:     int32((now.UnixMilli() + int64(rand.Int31())) & 0x7FFFFFFF),
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := rm.repo.SaveRoom(ctx, room); err != nil {
		return nil, err
	}
	if err := rm.repo.AddActiveRoom(ctx, room.ID); err != nil {
		return nil, err
	}

	logger.WithRoom(room.ID).Info("room created", zap.Int32("room_seed", room.RoomSeed))
	return room, nil
}

// publishRoomEvent は名簿変更イベントをルームトピックへ配信します。配信はベストエフォートです。
func (rm *RoomManager) publishRoomEvent(ctx context.Context, roomID, eventType string, fields map[string]any) {
	event := map[string]any{
		"type":      eventType,
		"room_id":   roomID,
		"timestamp": time.Now().UnixMilli(),
	}
	for k, v := range fields {
		event[k] = v
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := rm.repo.PublishPlayerStateChanged(ctx, roomID, string(payload)); err != nil {
		logger.WithRoom(roomID).Warn("failed to publish room event",
			zap.String("event", eventType), zap.Error(err))
	}
}
