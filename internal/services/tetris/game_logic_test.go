package tetris

import (
	"testing"

	"github.com/tetris-royale/backend/internal/models/tetris"
)

// newStartedState はシード100で開始済みのゲーム状態を返します。
// シード100のバッグは [T, Z, I, J, S, O, L] で始まります。
func newStartedState() *PlayerGameState {
	state := newStateWithSeed(100)
	state.Start()
	return state
}

// TestParseAction はアクション文字列の変換をテストします。
func TestParseAction(t *testing.T) {
	valid := map[string]Action{
		"moveLeft":  ActionMoveLeft,
		"moveRight": ActionMoveRight,
		"moveDown":  ActionMoveDown,
		"rotate":    ActionRotate,
		"hardDrop":  ActionHardDrop,
		"hold":      ActionHold,
	}
	for s, want := range valid {
		got, err := ParseAction(s)
		if err != nil {
			t.Fatalf("ParseAction(%q): unexpected error %v", s, err)
		}
		if got != want {
			t.Errorf("ParseAction(%q) = %v, want %v", s, got, want)
		}
		if got.String() != s {
			t.Errorf("Action.String() = %q, want %q", got.String(), s)
		}
	}

	if _, err := ParseAction("teleport"); err == nil {
		t.Error("Expected an error for an unknown action string")
	}
}

// TestApplyAction_MoveLeftRight は左右移動と壁でのノーオペをテストします。
func TestApplyAction_MoveLeftRight(t *testing.T) {
	state := newStartedState()
	startX := state.CurrentPiece.X

	result := ApplyAction(state, ActionMoveLeft)
	if !result.Moved || state.CurrentPiece.X != startX-1 {
		t.Errorf("Expected piece to move left to %d, got %d", startX-1, state.CurrentPiece.X)
	}

	result = ApplyAction(state, ActionMoveRight)
	if !result.Moved || state.CurrentPiece.X != startX {
		t.Errorf("Expected piece to move back to %d, got %d", startX, state.CurrentPiece.X)
	}

	// 左壁まで移動し、さらに左はノーオペ
	for i := 0; i < tetris.BoardWidth; i++ {
		ApplyAction(state, ActionMoveLeft)
	}
	wallX := state.CurrentPiece.X
	result = ApplyAction(state, ActionMoveLeft)
	if result.Moved || state.CurrentPiece.X != wallX {
		t.Error("Expected move into the wall to be a no-op")
	}
}

// TestApplyAction_GravityAndSoftLock は重力落下とソフトロックまでの全行程をテストします。
// シード100の最初のピースはTミノで、18回の落下後、19回目でボード底に固定されます。
func TestApplyAction_GravityAndSoftLock(t *testing.T) {
	state := newStartedState()
	if state.CurrentPiece.Type != tetris.TypeT {
		t.Fatalf("Expected first piece T for seed 100, got %v", state.CurrentPiece.Type)
	}

	for i := 0; i < 18; i++ {
		result := ApplyAction(state, ActionMoveDown)
		if !result.Moved || result.Locked {
			t.Fatalf("drop %d: expected a plain downward move, got %+v", i, result)
		}
	}
	if state.CurrentPiece.Y != 18 {
		t.Fatalf("Expected piece at y=18 before lock, got %d", state.CurrentPiece.Y)
	}

	result := ApplyAction(state, ActionMoveDown)
	if !result.Locked {
		t.Fatal("Expected the 19th drop to lock the piece")
	}
	if result.LinesCleared != 0 || result.GameOver {
		t.Errorf("Expected no lines and no game over, got %+v", result)
	}

	// Tミノの底面 (3,19),(4,19),(5,19) と凸部 (4,18) が残る
	for _, cell := range [][2]int{{4, 18}, {3, 19}, {4, 19}, {5, 19}} {
		if state.Board[cell[1]][cell[0]] == 0 {
			t.Errorf("Expected board cell (%d,%d) to be filled", cell[0], cell[1])
		}
	}
	if state.Score != 0 || state.LinesCleared != 0 || state.Level != 0 {
		t.Errorf("Expected score=0 lines=0 level=0, got %d/%d/%d",
			state.Score, state.LinesCleared, state.Level)
	}

	// 次のピース（Z）が出現している
	if state.CurrentPiece == nil || state.CurrentPiece.Type != tetris.TypeZ {
		t.Errorf("Expected next piece Z to spawn, got %+v", state.CurrentPiece)
	}
}

// TestApplyAction_HardDropScoring はハードドロップの距離ボーナスをテストします。
func TestApplyAction_HardDropScoring(t *testing.T) {
	state := newStartedState()

	result := ApplyAction(state, ActionHardDrop)
	if !result.Locked {
		t.Fatal("Expected hard drop to lock the piece")
	}
	// スポーン位置からボード底まで18マス、レベル0でも距離x2のボーナス
	if state.Score != 36 {
		t.Errorf("Expected score 36 for an 18-cell drop, got %d", state.Score)
	}
	if state.LinesCleared != 0 || state.Level != 0 {
		t.Errorf("Expected no lines and level 0, got %d/%d", state.LinesCleared, state.Level)
	}
}

// TestApplyAction_LineClear は1ライン消去とレベル0でのスコア加算をテストします。
func TestApplyAction_LineClear(t *testing.T) {
	state := newStartedState()

	// 最下段の9マスを埋め、縦のIミノで右端の列を塞ぐ
	for x := 0; x < tetris.BoardWidth-1; x++ {
		state.Board[tetris.BoardHeight-1][x] = 1
	}
	state.CurrentPiece = &tetris.Piece{Type: tetris.TypeI, X: 7, Y: 16, Rotation: 1}
	state.GhostPiece = tetris.Ghost(state.CurrentPiece, &state.Board)

	result := ApplyAction(state, ActionMoveDown)
	if !result.Locked || result.LinesCleared != 1 {
		t.Fatalf("Expected a lock clearing 1 line, got %+v", result)
	}
	if state.LinesCleared != 1 {
		t.Errorf("Expected total lines 1, got %d", state.LinesCleared)
	}
	if state.Score != 100 {
		t.Errorf("Expected score 100 for a single at level 0, got %d", state.Score)
	}

	// Iミノの残り3セルが1段ずり下がり、消えた行のセルは消滅している
	if state.Board[tetris.BoardHeight-1][9] == 0 {
		t.Error("Expected the shifted I-piece cell at the bottom right")
	}
	for x := 0; x < tetris.BoardWidth-1; x++ {
		if state.Board[tetris.BoardHeight-1][x] != 0 {
			t.Errorf("Expected cleared cell at x=%d to be empty", x)
		}
	}
}

// TestApplyAction_Hold はホールドの1ピース1回制限と交換をテストします。
func TestApplyAction_Hold(t *testing.T) {
	state := newStartedState() // current=T, next=Z

	result := ApplyAction(state, ActionHold)
	if !result.Moved {
		t.Fatal("Expected first hold to succeed")
	}
	if state.HeldPiece == nil || *state.HeldPiece != tetris.TypeT {
		t.Errorf("Expected held piece T, got %v", state.HeldPiece)
	}
	if state.CurrentPiece.Type != tetris.TypeZ {
		t.Errorf("Expected current piece Z after hold, got %v", state.CurrentPiece.Type)
	}
	if state.NextPiece != tetris.TypeI {
		t.Errorf("Expected next piece I after hold, got %v", state.NextPiece)
	}
	if state.CanHold {
		t.Error("Expected canHold false after a hold")
	}

	// 同じピースでの2回目のホールドはノーオペ
	result = ApplyAction(state, ActionHold)
	if result.Moved {
		t.Error("Expected second hold to be a no-op")
	}

	// 固定でホールド権が回復し、次のホールドは交換になる
	ApplyAction(state, ActionHardDrop)
	if !state.CanHold {
		t.Fatal("Expected canHold to reset after a lock")
	}
	swappedOut := state.CurrentPiece.Type
	result = ApplyAction(state, ActionHold)
	if !result.Moved {
		t.Fatal("Expected swap hold to succeed")
	}
	if state.CurrentPiece.Type != tetris.TypeT {
		t.Errorf("Expected the held T back as current, got %v", state.CurrentPiece.Type)
	}
	if state.HeldPiece == nil || *state.HeldPiece != swappedOut {
		t.Errorf("Expected held piece %v, got %v", swappedOut, state.HeldPiece)
	}
}

// TestApplyAction_Rotate は回転によるゴースト更新をテストします。
func TestApplyAction_Rotate(t *testing.T) {
	state := newStartedState()

	result := ApplyAction(state, ActionRotate)
	if !result.Moved {
		t.Fatal("Expected rotation on an open board to succeed")
	}
	if state.CurrentPiece.Rotation != 1 {
		t.Errorf("Expected rotation index 1, got %d", state.CurrentPiece.Rotation)
	}
	if state.GhostPiece == nil || state.GhostPiece.Rotation != 1 {
		t.Error("Expected ghost to track the rotated piece")
	}
}

// TestApplyAction_LockIntoGameOver はスポーン領域が塞がった状態での固定がゲームオーバーに遷移することをテストします。
func TestApplyAction_LockIntoGameOver(t *testing.T) {
	state := newStartedState()

	// 上2段を左端以外埋める。完全な行がないためクリアされず、全スポーン位置が衝突する
	for y := 0; y < 2; y++ {
		for x := 1; x < tetris.BoardWidth; x++ {
			state.Board[y][x] = 1
		}
	}
	state.CurrentPiece.Y = 18
	state.GhostPiece = tetris.Ghost(state.CurrentPiece, &state.Board)

	result := ApplyAction(state, ActionMoveDown)
	if !result.Locked || !result.GameOver {
		t.Fatalf("Expected lock with game over, got %+v", result)
	}
	if !state.GameOver {
		t.Fatal("Expected state to be game over")
	}
	if state.CurrentPiece != nil || state.GhostPiece != nil {
		t.Error("Expected no pieces after game over")
	}

	// ゲームオーバー後の操作は無視される
	result = ApplyAction(state, ActionMoveLeft)
	if result.Moved {
		t.Error("Expected actions after game over to be ignored")
	}
}

// TestApplyAction_IgnoredBeforeStart は開始前・一時停止中の操作が無視されることをテストします。
func TestApplyAction_IgnoredBeforeStart(t *testing.T) {
	state := newStateWithSeed(100)
	if result := ApplyAction(state, ActionMoveLeft); result.Moved {
		t.Error("Expected actions before start to be ignored")
	}

	state.Start()
	state.Paused = true
	if result := ApplyAction(state, ActionMoveLeft); result.Moved {
		t.Error("Expected actions while paused to be ignored")
	}
}

// TestApplyAction_LevelChange は10ライン消去でのレベルアップ通知をテストします。
func TestApplyAction_LevelChange(t *testing.T) {
	state := newStartedState()
	state.LinesCleared = 9

	// 最下段の9マスを埋め、縦のIミノで10ライン目を完成させる
	for x := 0; x < tetris.BoardWidth-1; x++ {
		state.Board[tetris.BoardHeight-1][x] = 1
	}
	state.CurrentPiece = &tetris.Piece{Type: tetris.TypeI, X: 7, Y: 16, Rotation: 1}
	state.GhostPiece = tetris.Ghost(state.CurrentPiece, &state.Board)

	result := ApplyAction(state, ActionMoveDown)
	if !result.Locked || !result.LevelChanged {
		t.Fatalf("Expected lock with a level change, got %+v", result)
	}
	if state.Level != 1 {
		t.Errorf("Expected level 1 after 10 lines, got %d", state.Level)
	}
}
