package tetris

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/tetris-royale/backend/internal/models/tetris"
)

// PlayerGameState は単一プレイヤーのテトリスゲーム状態です。
// ルーム参加時に初期化され、退出またはルーム解体時に破棄されます。
// このオブジェクトへの全変更はエンジンのプレイヤー単位ロックで直列化されます。
type PlayerGameState struct {
	PlayerID     string             `json:"player_id"`
	RoomID       string             `json:"room_id"`
	Board        tetris.Board       `json:"board"`         // 現在のゲームボード
	CurrentPiece *tetris.Piece      `json:"current_piece"` // 現在操作中のテトリミノ
	NextPiece    tetris.PieceType   `json:"next_piece"`    // 次に出現するテトリミノの種類
	HeldPiece    *tetris.PieceType  `json:"held_piece"`    // ホールド中のテトリミノの種類
	CanHold      bool               `json:"can_hold"`      // このピースでホールド可能かどうか
	GhostPiece   *tetris.Piece      `json:"ghost_piece"`   // ハードドロップ着地位置の投影
	Score        int                `json:"score"`         // 現在のスコア
	Level        int                `json:"level"`         // 現在のレベル
	LinesCleared int                `json:"lines_cleared"` // クリアしたライン数
	GameOver     bool               `json:"game_over"`     // ゲームオーバー状態かどうか
	Paused       bool               `json:"paused"`        // 一時停止中かどうか
	GameStarted  bool               `json:"game_started"`  // ゲームが開始済みかどうか
	TetrominoBag []tetris.PieceType `json:"tetromino_bag"` // 現在の7-bag
	BagIndex     int                `json:"bag_index"`     // バッグ内の消費位置 (0..7)
	BagNumber    int                `json:"bag_number"`    // 単調増加のバッグ番号（1始まり）
	GameSeed     int32              `json:"game_seed"`     // このゲームの決定論的シード
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// fallbackSpawnOffsets は修復時に試すスポーン位置の候補リストです。
var fallbackSpawnOffsets = [][2]int{{3, 0}, {2, 0}, {4, 0}, {3, 1}, {2, 1}, {4, 1}}

// GenerateGameSeed はプレイヤーとルームに固有のゲームシードを生成します。
// 時刻・乱数・IDハッシュを混合した正の31bit整数を返します。
// 小さすぎる値はクライアント側のデバッグで紛らわしいため [10000, 2^31) に持ち上げます。
func GenerateGameSeed(playerID, roomID string) int32 {
	playerHash := fnv.New32a()
	playerHash.Write([]byte(playerID))
	roomHash := fnv.New32a()
	roomHash.Write([]byte(roomID))

	now := time.Now()
	mixed := now.Unix() +
		rand.Int63n(1<<20) +
		int64(playerHash.Sum32()^roomHash.Sum32()) +
		now.UnixMicro() +
		rand.Int63n(1<<20)

	seed := int32(mixed & 0x7FFFFFFF)
	if seed == 0 {
		return 12345
	}
	if seed < 1000 {
		seed += 10000
	}
	return seed
}

// NewPlayerGameState は新しいプレイヤーのゲーム状態を初期化して返します。
// 最初のバッグを生成し、先頭のピースを NextPiece として予告します。
// CurrentPiece は Start が呼ばれるまで出現しません。
func NewPlayerGameState(playerID, roomID string) *PlayerGameState {
	seed := GenerateGameSeed(playerID, roomID)
	bag := tetris.BagForBagNumber(seed, 1)
	now := time.Now()

	return &PlayerGameState{
		PlayerID:     playerID,
		RoomID:       roomID,
		Board:        tetris.NewBoard(),
		NextPiece:    bag[0],
		CanHold:      true,
		Level:        0,
		TetrominoBag: bag,
		BagIndex:     1,
		BagNumber:    1,
		GameSeed:     seed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Start はゲーム開始遷移を実行します。
// バッグ先頭のピースを実体化して操作対象にし、2番目のピースを予告します。
func (s *PlayerGameState) Start() {
	if s.GameStarted || s.GameOver {
		return
	}
	s.CurrentPiece = tetris.NewPiece(s.TetrominoBag[0])
	s.NextPiece = s.TetrominoBag[1]
	s.BagIndex = 2
	s.GhostPiece = tetris.Ghost(s.CurrentPiece, &s.Board)
	s.GameStarted = true
	s.UpdatedAt = time.Now()
}

// GetNextPiece はバッグから次のピースの種類を取り出します。
// バッグを使い切った場合は (GameSeed, BagNumber+1) から新しいバッグを生成します。
func (s *PlayerGameState) GetNextPiece() tetris.PieceType {
	if s.BagIndex >= len(tetris.AllPieceTypes) || len(s.TetrominoBag) == 0 {
		s.BagNumber++
		s.TetrominoBag = tetris.BagForBagNumber(s.GameSeed, s.BagNumber)
		s.BagIndex = 0
	}
	piece := s.TetrominoBag[s.BagIndex]
	s.BagIndex++
	return piece
}

// SpawnNextPiece は予告ピースを実体化して操作対象にし、新しい予告ピースを引きます。
// ピース固定後のリスポーンで使用します。
func (s *PlayerGameState) SpawnNextPiece() {
	s.CurrentPiece = tetris.NewPiece(s.NextPiece)
	s.NextPiece = s.GetNextPiece()
	s.CanHold = true
	s.GhostPiece = tetris.Ghost(s.CurrentPiece, &s.Board)
}

// RepairGhost はゴーストピースの不整合を修復します。
// 操作中ピースがあるのにゴーストがない場合は再計算し、
// 操作中ピースがないのにゴーストが残っている場合は破棄します。
func (s *PlayerGameState) RepairGhost() {
	if s.CurrentPiece != nil {
		s.GhostPiece = tetris.Ghost(s.CurrentPiece, &s.Board)
		return
	}
	s.GhostPiece = nil
}

// RepairCurrentPiece は操作中ピースが衝突位置にある場合の修復を試みます。
// フォールバックのスポーン位置候補を順に試し、どこにも置けなければゲームオーバーにします。
//
// Returns:
//   bool: 修復できた場合はtrue、ゲームオーバーに遷移した場合はfalse
func (s *PlayerGameState) RepairCurrentPiece() bool {
	if s.CurrentPiece == nil {
		return true
	}
	if s.Board.IsValid(s.CurrentPiece, 0, 0) {
		return true
	}
	for _, offset := range fallbackSpawnOffsets {
		candidate := s.CurrentPiece.Clone()
		candidate.X = offset[0]
		candidate.Y = offset[1]
		if s.Board.IsValid(candidate, 0, 0) {
			s.CurrentPiece = candidate
			s.GhostPiece = tetris.Ghost(candidate, &s.Board)
			return true
		}
	}
	s.ForceGameOver()
	return false
}

// RepairBag はバッグの不整合（範囲外のBagIndex、欠損したバッグ）を修復します。
func (s *PlayerGameState) RepairBag() {
	if len(s.TetrominoBag) == len(tetris.AllPieceTypes) &&
		s.BagIndex >= 0 && s.BagIndex <= len(tetris.AllPieceTypes) {
		return
	}
	s.TetrominoBag = tetris.BagForBagNumber(s.GameSeed, s.BagNumber)
	s.BagIndex = 0
}

// ForceGameOver は状態を強制的にゲームオーバーへ遷移させます。
// ゲームオーバー状態では操作中ピースとゴーストは存在しません。
func (s *PlayerGameState) ForceGameOver() {
	s.GameOver = true
	s.CurrentPiece = nil
	s.GhostPiece = nil
	s.UpdatedAt = time.Now()
}

// Clone は状態の独立したコピーを返します。スナップショット送信用です。
func (s *PlayerGameState) Clone() *PlayerGameState {
	c := *s
	c.CurrentPiece = s.CurrentPiece.Clone()
	c.GhostPiece = s.GhostPiece.Clone()
	if s.HeldPiece != nil {
		held := *s.HeldPiece
		c.HeldPiece = &held
	}
	c.TetrominoBag = make([]tetris.PieceType, len(s.TetrominoBag))
	copy(c.TetrominoBag, s.TetrominoBag)
	return &c
}
