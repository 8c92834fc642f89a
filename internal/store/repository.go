package store

import (
	"context"
	"encoding/json"

	"github.com/tetris-royale/backend/internal/apperrors"
	"github.com/tetris-royale/backend/internal/models"
)

// Repository はStore上の型付きアクセス層です。
// レコードのJSONエンコードとキー名前空間の適用をここに集約します。
type Repository struct {
	store Store
}

// NewRepository は指定ストアを使うRepositoryを作成します。
func NewRepository(s Store) *Repository {
	return &Repository{store: s}
}

// Store は基盤のStoreを返します。pub/sub購読など低レベル操作用です。
func (r *Repository) Store() Store {
	return r.store
}

// --- プレイヤー ---

// SavePlayer はプレイヤーレコードを保存し、プレイヤー集合に登録します。
func (r *Repository) SavePlayer(ctx context.Context, player *models.Player) error {
	data, err := json.Marshal(player)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to encode player", err)
	}
	if err := r.store.Set(ctx, KeyPlayer(player.ID), string(data), RecordTTL); err != nil {
		return apperrors.StoreError(err)
	}
	if err := r.store.SAdd(ctx, KeyPlayers, player.ID); err != nil {
		return apperrors.StoreError(err)
	}
	return nil
}

// GetPlayer はプレイヤーレコードを取得します。存在しない場合はPLAYER_NOT_FOUNDです。
func (r *Repository) GetPlayer(ctx context.Context, playerID string) (*models.Player, error) {
	data, found, err := r.store.Get(ctx, KeyPlayer(playerID))
	if err != nil {
		return nil, apperrors.StoreError(err)
	}
	if !found {
		return nil, apperrors.PlayerNotFound(playerID)
	}
	var player models.Player
	if err := json.Unmarshal([]byte(data), &player); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to decode player", err)
	}
	return &player, nil
}

// DeletePlayer はプレイヤーレコードを削除し、プレイヤー集合から除去します。
func (r *Repository) DeletePlayer(ctx context.Context, playerID string) error {
	if err := r.store.Del(ctx, KeyPlayer(playerID)); err != nil {
		return apperrors.StoreError(err)
	}
	if err := r.store.SRem(ctx, KeyPlayers, playerID); err != nil {
		return apperrors.StoreError(err)
	}
	return nil
}

// --- ルーム ---

// SaveRoom はルームレコードを保存します。
func (r *Repository) SaveRoom(ctx context.Context, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to encode room", err)
	}
	if err := r.store.Set(ctx, KeyRoom(room.ID), string(data), RecordTTL); err != nil {
		return apperrors.StoreError(err)
	}
	return nil
}

// GetRoom はルームレコードを取得します。存在しない場合はROOM_NOT_FOUNDです。
func (r *Repository) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	data, found, err := r.store.Get(ctx, KeyRoom(roomID))
	if err != nil {
		return nil, apperrors.StoreError(err)
	}
	if !found {
		return nil, apperrors.RoomNotFound(roomID)
	}
	var room models.Room
	if err := json.Unmarshal([]byte(data), &room); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to decode room", err)
	}
	return &room, nil
}

// DeleteRoom はルームレコードを削除し、参加可能ルーム集合から除去します。
func (r *Repository) DeleteRoom(ctx context.Context, roomID string) error {
	if err := r.store.Del(ctx, KeyRoom(roomID)); err != nil {
		return apperrors.StoreError(err)
	}
	if err := r.store.SRem(ctx, KeyActiveRooms, roomID); err != nil {
		return apperrors.StoreError(err)
	}
	return nil
}

// AddActiveRoom はルームを参加可能ルーム集合に登録します。
func (r *Repository) AddActiveRoom(ctx context.Context, roomID string) error {
	if err := r.store.SAdd(ctx, KeyActiveRooms, roomID); err != nil {
		return apperrors.StoreError(err)
	}
	return nil
}

// ActiveRoomIDs は参加可能ルーム集合の全IDを返します。
func (r *Repository) ActiveRoomIDs(ctx context.Context) ([]string, error) {
	ids, err := r.store.SMembers(ctx, KeyActiveRooms)
	if err != nil {
		return nil, apperrors.StoreError(err)
	}
	return ids, nil
}

// --- ゲーム状態 ---

// SaveGameState はプレイヤーのゲーム状態レコードを保存します。
func (r *Repository) SaveGameState(ctx context.Context, playerID string, state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to encode game state", err)
	}
	if err := r.store.Set(ctx, KeyPlayerGame(playerID), string(data), RecordTTL); err != nil {
		return apperrors.StoreError(err)
	}
	return nil
}

// LoadGameState はプレイヤーのゲーム状態レコードを dest にデコードします。
// レコードが存在しない場合は (false, nil) を返します。
func (r *Repository) LoadGameState(ctx context.Context, playerID string, dest any) (bool, error) {
	data, found, err := r.store.Get(ctx, KeyPlayerGame(playerID))
	if err != nil {
		return false, apperrors.StoreError(err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, apperrors.Wrap(apperrors.CodeInvalidGameState, "failed to decode game state", err)
	}
	return true, nil
}

// DeleteGameState はプレイヤーのゲーム状態レコードを削除します。
func (r *Repository) DeleteGameState(ctx context.Context, playerID string) error {
	if err := r.store.Del(ctx, KeyPlayerGame(playerID)); err != nil {
		return apperrors.StoreError(err)
	}
	return nil
}

// --- ソケット索引 ---

// BindSocket はソケットIDとプレイヤーIDの対応を記録します。
func (r *Repository) BindSocket(ctx context.Context, socketID, playerID string) error {
	if err := r.store.Set(ctx, KeySocket(socketID), playerID, RecordTTL); err != nil {
		return apperrors.StoreError(err)
	}
	return nil
}

// ResolveSocket はソケットIDに対応するプレイヤーIDを返します。
func (r *Repository) ResolveSocket(ctx context.Context, socketID string) (string, bool, error) {
	playerID, found, err := r.store.Get(ctx, KeySocket(socketID))
	if err != nil {
		return "", false, apperrors.StoreError(err)
	}
	return playerID, found, nil
}

// UnbindSocket はソケットIDの対応を削除します。
func (r *Repository) UnbindSocket(ctx context.Context, socketID string) error {
	if err := r.store.Del(ctx, KeySocket(socketID)); err != nil {
		return apperrors.StoreError(err)
	}
	return nil
}

// --- ゲーム参加者 ---

// RegisterGame はゲームIDを進行中ゲーム集合に登録します。
func (r *Repository) RegisterGame(ctx context.Context, gameID string) error {
	if err := r.store.SAdd(ctx, KeyGames, gameID); err != nil {
		return apperrors.StoreError(err)
	}
	return nil
}

// UnregisterGame はゲームIDを進行中ゲーム集合から除去し、参加者集合を破棄します。
func (r *Repository) UnregisterGame(ctx context.Context, gameID string) error {
	if err := r.store.SRem(ctx, KeyGames, gameID); err != nil {
		return apperrors.StoreError(err)
	}
	if err := r.store.Del(ctx, KeyGamePlayers(gameID)); err != nil {
		return apperrors.StoreError(err)
	}
	return nil
}

// AddGamePlayer はプレイヤーをゲーム参加者集合に追加します。
func (r *Repository) AddGamePlayer(ctx context.Context, gameID, playerID string) error {
	if err := r.store.SAdd(ctx, KeyGamePlayers(gameID), playerID); err != nil {
		return apperrors.StoreError(err)
	}
	return nil
}

// RemoveGamePlayer はプレイヤーをゲーム参加者集合から除去します。
func (r *Repository) RemoveGamePlayer(ctx context.Context, gameID, playerID string) error {
	if err := r.store.SRem(ctx, KeyGamePlayers(gameID), playerID); err != nil {
		return apperrors.StoreError(err)
	}
	return nil
}

// GamePlayers はゲーム参加者集合の全プレイヤーIDを返します。
func (r *Repository) GamePlayers(ctx context.Context, gameID string) ([]string, error) {
	ids, err := r.store.SMembers(ctx, KeyGamePlayers(gameID))
	if err != nil {
		return nil, apperrors.StoreError(err)
	}
	return ids, nil
}

// MirrorPlayerState はマップミラー用のハッシュレコードにプレイヤー状態を書き込みます。
func (r *Repository) MirrorPlayerState(ctx context.Context, gameID, playerID, payload string) error {
	if err := r.store.HSet(ctx, "game:"+gameID, map[string]string{playerID: payload}); err != nil {
		return apperrors.StoreError(err)
	}
	return nil
}

// MirroredStates はマップミラーの全プレイヤー状態を返します。
func (r *Repository) MirroredStates(ctx context.Context, gameID string) (map[string]string, error) {
	states, err := r.store.HGetAll(ctx, "game:"+gameID)
	if err != nil {
		return nil, apperrors.StoreError(err)
	}
	return states, nil
}

// --- pub/sub ---

// PublishGameStateUpdate はプレイヤーのゲーム状態更新を配信します。
func (r *Repository) PublishGameStateUpdate(ctx context.Context, playerID, payload string) error {
	return r.store.Publish(ctx, ChannelGameStateUpdate(playerID), payload)
}

// PublishGameStarted はプレイヤーへのゲーム開始シグナルを配信します。
func (r *Repository) PublishGameStarted(ctx context.Context, playerID, payload string) error {
	return r.store.Publish(ctx, ChannelGameStarted(playerID), payload)
}

// PublishPlayerStateChanged はルームの名簿・スコア変更を配信します。
func (r *Repository) PublishPlayerStateChanged(ctx context.Context, roomID, payload string) error {
	return r.store.Publish(ctx, ChannelPlayerStateChanged(roomID), payload)
}

// PublishRoomStateUpdate はルーム形状変更を配信します。
func (r *Repository) PublishRoomStateUpdate(ctx context.Context, roomID, payload string) error {
	return r.store.Publish(ctx, ChannelRoomStateUpdate(roomID), payload)
}

// PublishTetris はレガシーマップチャンネルへ配信します。
func (r *Repository) PublishTetris(ctx context.Context, gameID, payload string) error {
	return r.store.Publish(ctx, ChannelTetris(gameID), payload)
}
