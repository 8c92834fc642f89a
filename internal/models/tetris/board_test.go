package tetris

import "testing"

// fillRow はテスト用にボードの指定行をすべて埋めます。
func fillRow(b *Board, y int) {
	for x := 0; x < BoardWidth; x++ {
		b[y][x] = 1
	}
}

// TestIsValid_Bounds は壁・底との衝突判定をテストします。
func TestIsValid_Bounds(t *testing.T) {
	board := NewBoard()

	p := NewPiece(TypeT)
	if !board.IsValid(p, 0, 0) {
		t.Error("Expected piece to be valid at spawn position on empty board")
	}

	// 左の壁を越える移動は無効
	p.X = 0
	if board.IsValid(p, -1, 0) {
		t.Error("Expected piece to be invalid beyond the left wall")
	}

	// 右の壁を越える移動は無効
	p.X = BoardWidth - 3 // T-ミノのバウンディングボックスは3マス幅
	if board.IsValid(p, 1, 0) {
		t.Error("Expected piece to be invalid beyond the right wall")
	}

	// 底を越える移動は無効
	p.X = 3
	p.Y = BoardHeight - 2
	if board.IsValid(p, 0, 1) {
		t.Error("Expected piece to be invalid below the floor")
	}
}

// TestIsValid_SpawnZone は y < 0 のスポーン領域が許可されることをテストします。
func TestIsValid_SpawnZone(t *testing.T) {
	board := NewBoard()
	p := NewPiece(TypeI)
	p.Y = -1
	if !board.IsValid(p, 0, 0) {
		t.Error("Expected piece with cells above the board to be valid (spawn zone)")
	}
}

// TestIsValid_Overlap は既存ブロックとの重なり判定をテストします。
func TestIsValid_Overlap(t *testing.T) {
	board := NewBoard()
	board[5][4] = 1

	p := &Piece{Type: TypeO, X: 3, Y: 4} // ブロック (3,4),(4,4),(3,5),(4,5)
	if board.IsValid(p, 0, 0) {
		t.Error("Expected piece overlapping a filled cell to be invalid")
	}
}

// TestPlace はピースのボードへの固定と、スポーン領域ブロックの切り捨てをテストします。
func TestPlace(t *testing.T) {
	board := NewBoard()
	p := &Piece{Type: TypeO, X: 0, Y: 0}

	placed := board.Place(p)
	for _, block := range p.Blocks() {
		if placed[block[1]][block[0]] != 1 {
			t.Errorf("Expected cell (%d,%d) to be filled after place", block[0], block[1])
		}
	}
	// 元のボードは変更されない
	if board[0][0] != 0 {
		t.Error("Expected original board to be unchanged after Place")
	}

	// y < 0 のブロックは捨てられる
	p2 := &Piece{Type: TypeO, X: 0, Y: -1} // ブロック (0,-1),(1,-1),(0,0),(1,0)
	placed2 := board.Place(p2)
	if placed2[0][0] != 1 || placed2[0][1] != 1 {
		t.Error("Expected in-board cells to be placed")
	}
	count := 0
	for y := 0; y < BoardHeight; y++ {
		for x := 0; x < BoardWidth; x++ {
			count += placed2[y][x]
		}
	}
	if count != 2 {
		t.Errorf("Expected exactly 2 cells placed (spawn-zone cells discarded), got %d", count)
	}
}

// TestClearLines は揃ったラインの除去と残る行の順序維持をテストします。
func TestClearLines(t *testing.T) {
	board := NewBoard()
	fillRow(&board, BoardHeight-1)
	fillRow(&board, BoardHeight-3)
	board[BoardHeight-2][0] = 1 // 揃っていない行

	cleared, lines := board.ClearLines()
	if lines != 2 {
		t.Errorf("Expected 2 lines cleared, got %d", lines)
	}

	// 揃っていなかった行が最下段に落ちる
	if cleared[BoardHeight-1][0] != 1 {
		t.Error("Expected surviving partial row to settle at the bottom")
	}
	for x := 1; x < BoardWidth; x++ {
		if cleared[BoardHeight-1][x] != 0 {
			t.Errorf("Expected cell (%d,%d) to be empty after clear", x, BoardHeight-1)
		}
	}

	// ボードの寸法と値域は常に保たれる
	for y := 0; y < BoardHeight; y++ {
		for x := 0; x < BoardWidth; x++ {
			if cleared[y][x] != 0 && cleared[y][x] != 1 {
				t.Fatalf("Expected cell values in {0,1}, got %d at (%d,%d)", cleared[y][x], x, y)
			}
		}
	}
}

// TestClearLines_PreservesOrder は残る行の相対順序が保たれることをテストします。
func TestClearLines_PreservesOrder(t *testing.T) {
	board := NewBoard()
	board[10][0] = 1
	board[12][1] = 1
	fillRow(&board, 11)

	cleared, lines := board.ClearLines()
	if lines != 1 {
		t.Fatalf("Expected 1 line cleared, got %d", lines)
	}
	if cleared[11][0] != 1 {
		t.Error("Expected row 10 marker to shift down to row 11")
	}
	if cleared[12][1] != 1 {
		t.Error("Expected row 12 marker to stay at row 12")
	}
}

// TestIsGameOver_AllSpawnsBlocked は7種類すべてのスポーンが塞がれた場合の判定をテストします。
func TestIsGameOver_AllSpawnsBlocked(t *testing.T) {
	board := NewBoard()
	fillRow(&board, 0)
	fillRow(&board, 1)

	if !board.IsGameOver() {
		t.Error("Expected game over when rows 0 and 1 are completely filled")
	}
}

// TestIsGameOver_TopRowHeuristicRejected は「最上段にブロックがあればゲームオーバー」という
// ヒューリスティックが採用されていないことをテストします。
func TestIsGameOver_TopRowHeuristicRejected(t *testing.T) {
	board := NewBoard()
	fillRow(&board, 0) // 最上段のみ埋める

	// I-ミノは y=1 にスポーンするため、まだ置ける
	if board.IsGameOver() {
		t.Error("Expected game to continue: I piece still spawns on row 1")
	}
}

// TestIsGameOver_Empty は空ボードではゲームオーバーにならないことをテストします。
func TestIsGameOver_Empty(t *testing.T) {
	board := NewBoard()
	if board.IsGameOver() {
		t.Error("Expected empty board not to be game over")
	}
}
