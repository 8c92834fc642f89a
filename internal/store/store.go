// Package store はゲーム状態の共有ストアの契約と実装を提供します。
// キー・チャンネルの名前空間もこのパッケージで一元管理します。
package store

import (
	"context"
	"fmt"
	"time"
)

// RecordTTL はルーム・プレイヤー・ゲーム状態レコードの標準TTLです。
const RecordTTL = time.Hour

// Handler はパターン購読で配信されたメッセージごとに1回呼び出されます。
type Handler func(channel, payload string)

// Subscription はパターン購読のハンドルです。Close で購読を解除します。
type Subscription interface {
	Close()
}

// Store はゲーム状態を保持する抽象キーバリューストアの契約です。
// 値はすべてJSONエンコード済みの文字列として扱います。
type Store interface {
	// Get はキーの値を読み取ります。存在しない場合は2番目の戻り値が false になります。
	Get(ctx context.Context, key string) (string, bool, error)

	// Set はキーの値を上書きします。ttl が 0 の場合は無期限です。
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del はキーを削除します。存在しないキーの削除はエラーになりません。
	Del(ctx context.Context, key string) error

	// SAdd は順序なし集合にメンバーを追加します。
	SAdd(ctx context.Context, setKey, member string) error

	// SRem は集合からメンバーを除去します。
	SRem(ctx context.Context, setKey, member string) error

	// SMembers は集合の全メンバーを返します。順序は保証されません。
	SMembers(ctx context.Context, setKey string) ([]string, error)

	// HSet はハッシュレコードのフィールドをまとめて設定します。
	HSet(ctx context.Context, key string, fields map[string]string) error

	// HGetAll はハッシュレコードの全フィールドを返します。
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Publish はチャンネルへメッセージを送信します（fire-and-forget）。
	Publish(ctx context.Context, channel, payload string) error

	// PSubscribe はワイルドカードパターンでチャンネルを購読します。
	// 同一チャンネルのメッセージは発行順に handler へ届きます。
	PSubscribe(ctx context.Context, pattern string, handler Handler) (Subscription, error)

	// Close はストアを閉じ、全購読を解除します。
	Close() error
}

// キー名前空間。

// KeyActiveRooms は参加可能ルームIDの集合キーです。
const KeyActiveRooms = "active_rooms"

// KeyPlayers は登録済みプレイヤーIDの集合キーです。
const KeyPlayers = "players"

// KeyGames は進行中ゲームIDの集合キーです。
const KeyGames = "games"

// KeyRoom はルームレコードのキーを返します。
func KeyRoom(roomID string) string { return "room:" + roomID }

// KeyPlayer はプレイヤーレコードのキーを返します。
func KeyPlayer(playerID string) string { return "player:" + playerID }

// KeyPlayerGame はプレイヤーごとのゲーム状態レコードのキーを返します。
func KeyPlayerGame(playerID string) string { return "player_game:" + playerID }

// KeySocket はソケットID→プレイヤーIDの索引キーを返します。
func KeySocket(socketID string) string { return "socket:" + socketID }

// KeyGamePlayers はゲーム参加プレイヤーの集合キーを返します。
func KeyGamePlayers(gameID string) string { return fmt.Sprintf("game:%s:players", gameID) }

// チャンネル名前空間。

// ChannelGameStateUpdate はプレイヤーごとの状態差分・ゲームオーバー通知チャンネルです。
func ChannelGameStateUpdate(playerID string) string { return "game_state_update:" + playerID }

// ChannelGameStarted はゲーム開始シグナルのチャンネルです。
func ChannelGameStarted(playerID string) string { return "game_started:" + playerID }

// ChannelPlayerStateChanged はルームの名簿・スコア変更チャンネルです。
func ChannelPlayerStateChanged(roomID string) string { return "player_state_changed:" + roomID }

// ChannelRoomStateUpdate はルーム形状変更のチャンネルです。
func ChannelRoomStateUpdate(roomID string) string { return "room_state_update:" + roomID }

// ChannelTetris はマップミラー用のレガシーチャンネルです。
func ChannelTetris(gameID string) string { return "tetris:" + gameID }

// ゲートウェイが起動時に購読するパターン。
const (
	PatternGameStateUpdate    = "game_state_update:*"
	PatternGameStarted        = "game_started:*"
	PatternPlayerStateChanged = "player_state_changed:*"
	PatternRoomStateUpdate    = "room_state_update:*"
)
