package tetris

const (
	BoardWidth  = 10 // テトリスボードの幅
	BoardHeight = 20 // テトリスボードの高さ
)

// Board はテトリスのゲームボードを表す2次元配列です。
// 各マスは 0（空）または 1（ブロックあり）です。Board[y][x] でアクセスします。
// 行0が最上段です。
type Board [BoardHeight][BoardWidth]int

// NewBoard は新しい空のボードを返します。
// Goの配列はゼロ値で初期化されるため、特別な初期化は不要です。
func NewBoard() Board {
	var board Board
	return board
}

// IsValid は指定されたピースがオフセット (dx, dy) を加えた位置に置けるかどうかを判定します。
// 左右の壁・底との衝突、既存ブロックとの重なりがあれば false を返します。
// y < 0 のマス（スポーン領域）は許可されます。
func (b *Board) IsValid(p *Piece, dx, dy int) bool {
	if p == nil {
		return false
	}
	for _, block := range p.Blocks() {
		x := p.X + block[0] + dx
		y := p.Y + block[1] + dy

		if x < 0 || x >= BoardWidth || y >= BoardHeight {
			return false // 左右の壁、または底との衝突
		}
		// y < 0 はスポーン領域なので既存ブロックとの衝突は発生しない
		if y >= 0 && b[y][x] != 0 {
			return false
		}
	}
	return true
}

// Place はピースの各ブロックを 1 として刻んだ新しいボードを返します。
// y < 0 のブロック（スポーン領域）は捨てられます。元のボードは変更されません。
func (b Board) Place(p *Piece) Board {
	for _, block := range p.Blocks() {
		x := p.X + block[0]
		y := p.Y + block[1]

		if x >= 0 && x < BoardWidth && y >= 0 && y < BoardHeight {
			b[y][x] = 1
		}
	}
	return b
}

// ClearLines は揃ったラインを取り除き、上から空行を詰めた新しいボードと
// クリアされたライン数を返します。最下段から上に向かって走査し、
// 残る行の相対順序は保たれます。元のボードは変更されません。
func (b Board) ClearLines() (Board, int) {
	clearedLines := 0
	newBoard := NewBoard()

	destY := BoardHeight - 1
	for y := BoardHeight - 1; y >= 0; y-- {
		isLineFull := true
		for x := 0; x < BoardWidth; x++ {
			if b[y][x] == 0 {
				isLineFull = false
				break
			}
		}

		if isLineFull {
			clearedLines++
		} else {
			newBoard[destY] = b[y]
			destY--
		}
	}
	return newBoard, clearedLines
}

// IsGameOver は7種類すべてのテトリミノが標準スポーン位置に置けない場合に true を返します。
// 「最上段にブロックがあるか」というヒューリスティックではなく、全スポーン位置を列挙して判定します。
func (b *Board) IsGameOver() bool {
	for _, t := range AllPieceTypes {
		if b.IsValid(NewPiece(t), 0, 0) {
			return false
		}
	}
	return true
}
