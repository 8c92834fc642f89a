package tetris

// PieceType はテトリミノの種類を表します。
type PieceType int

const (
	TypeI PieceType = iota // 0: I-ミノ
	TypeO                  // 1: O-ミノ
	TypeT                  // 2: T-ミノ
	TypeS                  // 3: S-ミノ
	TypeZ                  // 4: Z-ミノ
	TypeJ                  // 5: J-ミノ
	TypeL                  // 6: L-ミノ
)

// AllPieceTypes は7種類すべてのテトリミノです。7-bag生成とスポーン判定に使用します。
var AllPieceTypes = [7]PieceType{TypeI, TypeO, TypeT, TypeS, TypeZ, TypeJ, TypeL}

// Piece はテトリミノの現在の状態（種類、ボード上の基準点座標、回転状態）を表します。
// Rotation は 0..3 の回転インデックスです。
type Piece struct {
	Type     PieceType `json:"type"`
	X        int       `json:"x"`
	Y        int       `json:"y"`
	Rotation int       `json:"rotation"`
}

// pieceShapes は各PieceTypeの各回転状態におけるブロックの相対座標を定義します。
// [PieceType][RotationIndex][BlockIndex][Coordinate (x or y)]
// 座標はテトリミノのバウンディングボックス左上からの相対値です（SRS準拠）。
var pieceShapes = map[PieceType][][][2]int{
	TypeI: {
		{{0, 1}, {1, 1}, {2, 1}, {3, 1}},
		{{2, 0}, {2, 1}, {2, 2}, {2, 3}},
		{{0, 2}, {1, 2}, {2, 2}, {3, 2}},
		{{1, 0}, {1, 1}, {1, 2}, {1, 3}},
	},
	TypeO: {
		{{0, 0}, {1, 0}, {0, 1}, {1, 1}}, // 全ての回転で同じ
	},
	TypeT: {
		{{1, 0}, {0, 1}, {1, 1}, {2, 1}},
		{{1, 0}, {1, 1}, {2, 1}, {1, 2}},
		{{0, 1}, {1, 1}, {2, 1}, {1, 2}},
		{{1, 0}, {0, 1}, {1, 1}, {1, 2}},
	},
	TypeS: {
		{{1, 0}, {2, 0}, {0, 1}, {1, 1}},
		{{1, 0}, {1, 1}, {2, 1}, {2, 2}},
		{{1, 1}, {2, 1}, {0, 2}, {1, 2}},
		{{0, 0}, {0, 1}, {1, 1}, {1, 2}},
	},
	TypeZ: {
		{{0, 0}, {1, 0}, {1, 1}, {2, 1}},
		{{2, 0}, {1, 1}, {2, 1}, {1, 2}},
		{{0, 1}, {1, 1}, {1, 2}, {2, 2}},
		{{1, 0}, {0, 1}, {1, 1}, {0, 2}},
	},
	TypeJ: {
		{{0, 0}, {0, 1}, {1, 1}, {2, 1}},
		{{1, 0}, {2, 0}, {1, 1}, {1, 2}},
		{{0, 1}, {1, 1}, {2, 1}, {2, 2}},
		{{1, 0}, {1, 1}, {0, 2}, {1, 2}},
	},
	TypeL: {
		{{2, 0}, {0, 1}, {1, 1}, {2, 1}},
		{{1, 0}, {1, 1}, {1, 2}, {2, 2}},
		{{0, 1}, {1, 1}, {2, 1}, {0, 2}},
		{{0, 0}, {1, 0}, {1, 1}, {1, 2}},
	},
}

// SpawnPosition は指定された種類のテトリミノの標準スポーン座標を返します。
// 全ピースがボード上部中央付近に出現します。Oミノのみ中央寄せのため x=4 です。
func SpawnPosition(t PieceType) (x, y int) {
	if t == TypeO {
		return 4, 0
	}
	return 3, 0
}

// NewPiece は指定された種類のテトリミノをスポーン位置・回転0で作成します。
func NewPiece(t PieceType) *Piece {
	x, y := SpawnPosition(t)
	return &Piece{Type: t, X: x, Y: y, Rotation: 0}
}

// Blocks は現在の回転状態におけるブロックの相対座標の配列を返します。
func (p *Piece) Blocks() [][2]int {
	return p.BlocksAtRotation(p.Rotation)
}

// BlocksAtRotation は指定された回転インデックス (0..3) でのブロックの相対座標を返します。
func (p *Piece) BlocksAtRotation(rotation int) [][2]int {
	shapes := pieceShapes[p.Type]

	// Oミノは回転しないので常に0番目の形状を使用
	if p.Type == TypeO {
		return shapes[0]
	}
	if rotation < 0 || rotation >= len(shapes) {
		return shapes[0]
	}
	return shapes[rotation]
}

// Rotate はピースを時計回りに90度回転させます（回転インデックスを mod 4 で進める）。
func (p *Piece) Rotate() {
	if p.Type == TypeO {
		return
	}
	p.Rotation = (p.Rotation + 1) % 4
}

// Clone は現在のPieceオブジェクトのコピーを返します。
// 衝突判定を仮のピースに対して行うために使用します。
func (p *Piece) Clone() *Piece {
	if p == nil {
		return nil
	}
	newP := *p
	return &newP
}

// StringToPieceType は文字列のテトリミノタイプ（"I", "O", "T"など）をPieceTypeに変換します。
func StringToPieceType(s string) (PieceType, bool) {
	switch s {
	case "I":
		return TypeI, true
	case "O":
		return TypeO, true
	case "T":
		return TypeT, true
	case "S":
		return TypeS, true
	case "Z":
		return TypeZ, true
	case "J":
		return TypeJ, true
	case "L":
		return TypeL, true
	default:
		return TypeI, false
	}
}

// PieceTypeToString はPieceTypeを文字列表現に変換します。
func PieceTypeToString(t PieceType) string {
	switch t {
	case TypeI:
		return "I"
	case TypeO:
		return "O"
	case TypeT:
		return "T"
	case TypeS:
		return "S"
	case TypeZ:
		return "Z"
	case TypeJ:
		return "J"
	case TypeL:
		return "L"
	default:
		return "I"
	}
}
