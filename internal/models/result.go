package models

import "time"

// GameResult はゲームオーバー時に永続化されるプレイヤーの最終成績です。
type GameResult struct {
	ID           int64     `json:"id"`
	PlayerID     string    `json:"player_id"`
	PlayerName   string    `json:"player_name"`
	RoomID       string    `json:"room_id"`
	Score        int       `json:"score"`
	LinesCleared int       `json:"lines_cleared"`
	Level        int       `json:"level"`
	CreatedAt    time.Time `json:"created_at"`
}

// GameResultResponse はランキング表示用のゲーム結果です。
type GameResultResponse struct {
	ID         int64     `json:"id"`
	PlayerID   string    `json:"player_id"`
	PlayerName string    `json:"player_name"`
	Score      int       `json:"score"`
	Rank       int       `json:"rank"`
	CreatedAt  time.Time `json:"created_at"`
}
