package tetris

import "testing"

// TestRotateWithWallKick_NoObstacle は障害物のない場所での素の回転をテストします。
func TestRotateWithWallKick_NoObstacle(t *testing.T) {
	board := NewBoard()
	p := &Piece{Type: TypeT, X: 3, Y: 5}

	rotated, err := RotateWithWallKick(p, &board)
	if err != nil {
		t.Fatalf("Expected rotation to succeed, got error: %v", err)
	}
	if rotated.Rotation != 1 {
		t.Errorf("Expected rotation 1, got %d", rotated.Rotation)
	}
	if rotated.X != p.X || rotated.Y != p.Y {
		t.Errorf("Expected no kick on open board, got offset (%d,%d)", rotated.X-p.X, rotated.Y-p.Y)
	}
	// 元のピースは変更されない
	if p.Rotation != 0 {
		t.Error("Expected original piece to be unchanged")
	}
}

// TestRotateWithWallKick_LeftWall は左壁際でのウォールキックをテストします。
func TestRotateWithWallKick_LeftWall(t *testing.T) {
	board := NewBoard()
	// T-ミノ回転1 (縦) は x=-1 でも壁に収まる（ブロックのx相対値が1以上のため）
	p := &Piece{Type: TypeT, X: -1, Y: 5, Rotation: 1}

	rotated, err := RotateWithWallKick(p, &board)
	if err != nil {
		t.Fatalf("Expected wall kick to succeed, got error: %v", err)
	}
	if rotated.Rotation != 2 {
		t.Errorf("Expected rotation 2, got %d", rotated.Rotation)
	}
	// 素の回転は壁に衝突するため、(1,0) のキックで押し出される
	if rotated.X != 0 {
		t.Errorf("Expected piece to be kicked to x=0, got x=%d", rotated.X)
	}
}

// TestRotateWithWallKick_Blocked はどのキックでも回転が成立しない場合をテストします。
func TestRotateWithWallKick_Blocked(t *testing.T) {
	board := NewBoard()
	// ピースの周囲を完全に埋めて回転を阻止する
	for y := 0; y < BoardHeight; y++ {
		for x := 0; x < BoardWidth; x++ {
			board[y][x] = 1
		}
	}
	// ピース自身の位置だけ空ける（T-ミノ回転0の形）
	p := &Piece{Type: TypeT, X: 3, Y: 5}
	for _, block := range p.Blocks() {
		board[p.Y+block[1]][p.X+block[0]] = 0
	}

	if _, err := RotateWithWallKick(p, &board); err != ErrRotationBlocked {
		t.Errorf("Expected ErrRotationBlocked, got %v", err)
	}
}

// TestRotateWithWallKick_OPiece はOミノの回転が位置を変えないことをテストします。
func TestRotateWithWallKick_OPiece(t *testing.T) {
	board := NewBoard()
	p := &Piece{Type: TypeO, X: 4, Y: 5}

	rotated, err := RotateWithWallKick(p, &board)
	if err != nil {
		t.Fatalf("Expected O piece rotation to succeed as no-op, got error: %v", err)
	}
	if rotated.X != p.X || rotated.Y != p.Y || rotated.Rotation != 0 {
		t.Error("Expected O piece rotation to leave position and rotation unchanged")
	}
}

// TestRotate_FourTimesIdentity はキックの発生しない回転4回で元のピースに戻ることをテストします。
func TestRotate_FourTimesIdentity(t *testing.T) {
	board := NewBoard()
	for _, pieceType := range AllPieceTypes {
		p := &Piece{Type: pieceType, X: 3, Y: 8}
		current := p.Clone()
		for i := 0; i < 4; i++ {
			rotated, err := RotateWithWallKick(current, &board)
			if err != nil {
				t.Fatalf("Rotation %d failed for type %v: %v", i, pieceType, err)
			}
			current = rotated
		}
		if *current != *p {
			t.Errorf("Expected piece type %v to return to original state after 4 rotations, got %+v", pieceType, current)
		}
	}
}
