package tetris

// SeededRandom は指定シードの決定論的な乱数生成器を返します。
// 生成器は呼び出しごとに [0, 1) の値を返します。
//
// 漸化式は state = (state*1103515245 + 12345) & 0x7FFFFFFF で、
// クライアント側が同一のピースキューを再現できるよう、この式は変更できません。
func SeededRandom(seed int32) func() float64 {
	state := int64(seed)
	return func() float64 {
		state = (state*1103515245 + 12345) & 0x7FFFFFFF
		return float64(state) / float64(0x7FFFFFFF)
	}
}

// ShuffleBag は7種類のテトリミノを指定シードでシャッフルしたバッグを返します。
// [I, O, T, S, Z, J, L] に対し、SeededRandom(seed) を用いた
// Fisher-Yates（右端から）でシャッフルします。
func ShuffleBag(seed int32) []PieceType {
	bag := make([]PieceType, len(AllPieceTypes))
	copy(bag, AllPieceTypes[:])

	random := SeededRandom(seed)
	for i := len(bag) - 1; i > 0; i-- {
		j := int(random() * float64(i+1))
		bag[i], bag[j] = bag[j], bag[i]
	}
	return bag
}

// BagForBagNumber は (gameSeed, bagNumber) で一意に決まるバッグを返します。
// バッグごとに gameSeed + bagNumber で新しい生成器を作るため、
// 同じ組に対して全ノードでビット単位に同一の結果になります。
func BagForBagNumber(gameSeed int32, bagNumber int) []PieceType {
	return ShuffleBag(gameSeed + int32(bagNumber))
}
