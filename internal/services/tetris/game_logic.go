package tetris

import (
	"time"

	"go.uber.org/zap"

	"github.com/tetris-royale/backend/internal/apperrors"
	"github.com/tetris-royale/backend/internal/logger"
	"github.com/tetris-royale/backend/internal/models/tetris"
)

// Action はクライアントから受け付けるプレイヤー操作の閉じた列挙です。
// 文字列のまま扱わず、受信時に必ずこの型へ変換します。
type Action int

const (
	ActionMoveLeft Action = iota
	ActionMoveRight
	ActionMoveDown
	ActionRotate
	ActionHardDrop
	ActionHold
)

// ParseAction はワイヤ上のアクション文字列をActionに変換します。
// 列挙にない文字列は INVALID_ACTION として拒否します。
func ParseAction(s string) (Action, error) {
	switch s {
	case "moveLeft":
		return ActionMoveLeft, nil
	case "moveRight":
		return ActionMoveRight, nil
	case "moveDown":
		return ActionMoveDown, nil
	case "rotate":
		return ActionRotate, nil
	case "hardDrop":
		return ActionHardDrop, nil
	case "hold":
		return ActionHold, nil
	default:
		return 0, apperrors.InvalidAction(s)
	}
}

// String はアクションのワイヤ表現を返します。
func (a Action) String() string {
	switch a {
	case ActionMoveLeft:
		return "moveLeft"
	case ActionMoveRight:
		return "moveRight"
	case ActionMoveDown:
		return "moveDown"
	case ActionRotate:
		return "rotate"
	case ActionHardDrop:
		return "hardDrop"
	case ActionHold:
		return "hold"
	default:
		return "unknown"
	}
}

// ApplyResult はアクション適用の結果を呼び出し側に伝えます。
// エンジンはこれを見てタイマー再起動やゲームオーバー処理を行います。
type ApplyResult struct {
	Moved        bool // 状態が実際に変化したか
	Locked       bool // ピースがボードに固定されたか
	LinesCleared int  // この適用でクリアされたライン数
	LevelChanged bool // レベルが変化したか（タイマー再起動が必要）
	GameOver     bool // この適用でゲームオーバーに遷移したか
}

// ApplyAction はプレイヤーの操作をゲーム状態に適用します。
// ゲームオーバー後の操作はログを残して黙って無視します。
// 呼び出し側がプレイヤー単位の直列化を保証している前提です。
func ApplyAction(state *PlayerGameState, action Action) ApplyResult {
	if state.GameOver {
		logger.WithPlayer(state.PlayerID).Debug("ignoring action after game over",
			zap.String("action", action.String()))
		return ApplyResult{}
	}
	if state.CurrentPiece == nil || !state.GameStarted || state.Paused {
		return ApplyResult{}
	}

	var result ApplyResult
	switch action {
	case ActionMoveLeft:
		result = applyTranslation(state, -1, 0)
	case ActionMoveRight:
		result = applyTranslation(state, 1, 0)
	case ActionMoveDown:
		result = applyMoveDown(state)
	case ActionRotate:
		result = applyRotate(state)
	case ActionHardDrop:
		result = applyHardDrop(state)
	case ActionHold:
		result = applyHold(state)
	}

	if result.Moved {
		state.UpdatedAt = time.Now()
	}
	return result
}

// applyTranslation は左右移動を適用します。移動先が無効な場合はノーオペです。
func applyTranslation(state *PlayerGameState, dx, dy int) ApplyResult {
	if !state.Board.IsValid(state.CurrentPiece, dx, dy) {
		return ApplyResult{}
	}
	state.CurrentPiece.X += dx
	state.CurrentPiece.Y += dy
	state.GhostPiece = tetris.Ghost(state.CurrentPiece, &state.Board)
	return ApplyResult{Moved: true}
}

// applyMoveDown は1マス落下を適用します。
// 落下できない場合はソフトロック経路としてピースを固定します。
func applyMoveDown(state *PlayerGameState) ApplyResult {
	if state.Board.IsValid(state.CurrentPiece, 0, 1) {
		state.CurrentPiece.Y++
		state.GhostPiece = tetris.Ghost(state.CurrentPiece, &state.Board)
		return ApplyResult{Moved: true}
	}
	return lockCurrentPiece(state)
}

// applyRotate はSRSウォールキック付きの回転を適用します。回転不能ならノーオペです。
func applyRotate(state *PlayerGameState) ApplyResult {
	rotated, err := tetris.RotateWithWallKick(state.CurrentPiece, &state.Board)
	if err != nil {
		return ApplyResult{}
	}
	state.CurrentPiece = rotated
	state.GhostPiece = tetris.Ghost(rotated, &state.Board)
	return ApplyResult{Moved: true}
}

// applyHardDrop はピースを着地位置まで落とし、距離ボーナスを加算して固定します。
func applyHardDrop(state *PlayerGameState) ApplyResult {
	dropped, distance := tetris.HardDrop(state.CurrentPiece, &state.Board)
	state.CurrentPiece = dropped
	state.Score += tetris.HardDropBonus(state.Level, distance)
	return lockCurrentPiece(state)
}

// applyHold はホールドを適用します。1ピースにつき1回だけ許可されます。
func applyHold(state *PlayerGameState) ApplyResult {
	if !state.CanHold {
		return ApplyResult{}
	}

	currentType := state.CurrentPiece.Type
	if state.HeldPiece == nil {
		// ホールドが空の場合は予告ピースを繰り上げる
		state.HeldPiece = &currentType
		state.CurrentPiece = tetris.NewPiece(state.NextPiece)
		state.NextPiece = state.GetNextPiece()
	} else {
		swapped := *state.HeldPiece
		state.HeldPiece = &currentType
		state.CurrentPiece = tetris.NewPiece(swapped)
	}
	state.CanHold = false
	state.GhostPiece = tetris.Ghost(state.CurrentPiece, &state.Board)
	return ApplyResult{Moved: true}
}

// lockCurrentPiece はピース固定後の処理をすべて行います。
// ラインクリア判定、スコア加算、レベル再計算、次ピースの出現、ゲームオーバー判定が含まれます。
func lockCurrentPiece(state *PlayerGameState) ApplyResult {
	state.Board = state.Board.Place(state.CurrentPiece)

	newBoard, lines := state.Board.ClearLines()
	state.Board = newBoard
	state.Score += tetris.Score(lines, state.Level)
	state.LinesCleared += lines

	newLevel := tetris.LevelForLines(state.LinesCleared)
	levelChanged := newLevel != state.Level
	state.Level = newLevel

	result := ApplyResult{
		Moved:        true,
		Locked:       true,
		LinesCleared: lines,
		LevelChanged: levelChanged,
	}

	if state.Board.IsGameOver() {
		logger.WithPlayer(state.PlayerID).Info("game over",
			zap.Int("score", state.Score),
			zap.Int("lines_cleared", state.LinesCleared),
			zap.Int("level", state.Level))
		state.ForceGameOver()
		result.GameOver = true
		return result
	}

	state.SpawnNextPiece()
	return result
}
