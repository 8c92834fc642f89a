package tetris

import "errors"

// ErrRotationBlocked は回転がどのウォールキックでも成立しなかった場合に返されます。
var ErrRotationBlocked = errors.New("rotation blocked")

// jlstzKicks は J, L, S, T, Z ミノ用のSRSキックテーブルです。
// [fromRotation] に対して (from → from+1) の遷移で試すオフセット列を定義します。
// Y軸は下向き正のため、標準のSRS表からY符号を反転しています。
var jlstzKicks = [4][5][2]int{
	{{0, 0}, {-1, 0}, {-1, -1}, {0, 2}, {-1, 2}},  // 0 → 1
	{{0, 0}, {1, 0}, {1, 1}, {0, -2}, {1, -2}},    // 1 → 2
	{{0, 0}, {1, 0}, {1, -1}, {0, 2}, {1, 2}},     // 2 → 3
	{{0, 0}, {-1, 0}, {-1, 1}, {0, -2}, {-1, -2}}, // 3 → 0
}

// iKicks は I ミノ用のSRSキックテーブルです。
var iKicks = [4][5][2]int{
	{{0, 0}, {-2, 0}, {1, 0}, {-2, 1}, {1, -2}},  // 0 → 1
	{{0, 0}, {-1, 0}, {2, 0}, {-1, 2}, {2, -1}},  // 1 → 2
	{{0, 0}, {2, 0}, {-1, 0}, {2, -1}, {-1, 2}},  // 2 → 3
	{{0, 0}, {1, 0}, {-2, 0}, {1, 2}, {-2, -1}},  // 3 → 0
}

// kickOffsets は指定されたピース種別と回転遷移に対して試すキックオフセット列を返します。
// Oミノは回転による移動がないため (0,0) のみです。
func kickOffsets(t PieceType, fromRotation int) [][2]int {
	switch t {
	case TypeO:
		return [][2]int{{0, 0}}
	case TypeI:
		return iKicks[fromRotation][:]
	default:
		return jlstzKicks[fromRotation][:]
	}
}

// RotateWithWallKick は素の回転を試み、衝突する場合はSRSキックオフセットを順に試します。
// 最初に収まったピースを返し、どれも収まらなければ ErrRotationBlocked を返します。
// 元のピースは変更されません。
func RotateWithWallKick(p *Piece, b *Board) (*Piece, error) {
	if p == nil {
		return nil, ErrRotationBlocked
	}

	from := p.Rotation
	rotated := p.Clone()
	rotated.Rotate()

	for _, offset := range kickOffsets(p.Type, from) {
		if b.IsValid(rotated, offset[0], offset[1]) {
			kicked := rotated.Clone()
			kicked.X += offset[0]
			kicked.Y += offset[1]
			return kicked, nil
		}
	}
	return nil, ErrRotationBlocked
}
