package models

import "time"

// RoomStatus はルームのライフサイクル上の状態を表します。
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "WAITING"  // プレイヤー待ち
	RoomStatusPlaying  RoomStatus = "PLAYING"  // ゲーム進行中
	RoomStatusFinished RoomStatus = "FINISHED" // 終了済み
)

// MaxPlayersPerRoom は1ルームに参加できるプレイヤーの上限です。
const MaxPlayersPerRoom = 99

// Room は最大99人のプレイヤーを収容するマルチプレイヤールームです。
// 需要に応じて作成され、プレイヤーが0人になった時点で削除されます。
// RoomSeed は作成時に割り当てられ、以後変更されません。
type Room struct {
	ID             string     `json:"id"`              // ルームID (room_{epoch_ms}_{rand9})
	Status         RoomStatus `json:"status"`          // WAITING / PLAYING / FINISHED
	MaxPlayers     int        `json:"max_players"`     // 収容上限（常に99）
	CurrentPlayers int        `json:"current_players"` // 現在の参加人数
	RoomSeed       int32      `json:"room_seed"`       // ルーム固有のシード値
	CreatedAt      time.Time  `json:"created_at"`      // 作成日時
	LastActivity   time.Time  `json:"last_activity"`   // 最終アクティビティ日時
	TotalGames     int        `json:"total_games"`     // このルームで開始されたゲームの累計
	TotalLines     int        `json:"total_lines"`     // ルーム全体の累計クリアライン数
}

// IsFull はルームが満員かどうかを返します。
func (r *Room) IsFull() bool {
	return r.CurrentPlayers >= r.MaxPlayers
}

// CanJoin は新しいプレイヤーが参加可能かどうかを返します。
// FINISHED のルームには参加できません。
func (r *Room) CanJoin() bool {
	return r.Status != RoomStatusFinished && !r.IsFull()
}
