package models

import "time"

// PlayerStatus はルーム内でのプレイヤーの状態を表します。
type PlayerStatus string

const (
	PlayerStatusAlive      PlayerStatus = "ALIVE"      // ゲーム続行中
	PlayerStatusEliminated PlayerStatus = "ELIMINATED" // ゲームオーバー済み
	PlayerStatusSpectating PlayerStatus = "SPECTATING" // 観戦中
)

// Player はルームに参加している単一のプレイヤーを表します。
// 参加時に作成され、退出時に削除されます。
type Player struct {
	ID           string       `json:"id"`            // プレイヤーID (UUID)
	Name         string       `json:"name"`          // 表示名
	SocketID     string       `json:"socket_id"`     // 接続中のソケットID
	RoomID       string       `json:"room_id"`       // 所属ルームID
	Status       PlayerStatus `json:"status"`        // ALIVE / ELIMINATED / SPECTATING
	Score        int          `json:"score"`         // 現在のスコア
	LinesCleared int          `json:"lines_cleared"` // クリアしたライン数
	Level        int          `json:"level"`         // 現在のレベル
	JoinedAt     time.Time    `json:"joined_at"`     // 参加日時
}
