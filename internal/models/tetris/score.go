package tetris

import (
	"math"
	"time"
)

// baseLineScores はクリアライン数ごとの基礎スコアです（Single/Double/Triple/Tetris）。
var baseLineScores = [5]int{0, 100, 300, 500, 800}

// Score はラインクリアによる獲得スコアを計算します。
// 基礎スコアに (level + 1) を乗じる標準ルールです。
func Score(linesCleared, level int) int {
	if linesCleared < 0 || linesCleared >= len(baseLineScores) {
		return 0
	}
	return baseLineScores[linesCleared] * (level + 1)
}

// HardDropBonus はハードドロップの落下距離ボーナスを計算します（距離 × 2）。
func HardDropBonus(level, distance int) int {
	if distance < 0 {
		return 0
	}
	return distance * 2
}

// LevelForLines は累計クリアライン数から現在のレベルを計算します（10ラインごとに1レベル）。
func LevelForLines(totalLines int) int {
	if totalLines < 0 {
		return 0
	}
	return totalLines / 10
}

// DropInterval は現在のレベルに基づいた自動落下間隔を計算して返します。
// 標準の落下速度式 (0.8 − (level−1)×0.007)^(level−1) × 1000ms を [50ms, 1000ms] にクランプします。
func DropInterval(level int) time.Duration {
	if level <= 0 {
		return 1000 * time.Millisecond
	}
	if level >= 29 {
		return 50 * time.Millisecond
	}
	seconds := math.Pow(0.8-float64(level-1)*0.007, float64(level-1))
	ms := seconds * 1000
	if ms > 1000 {
		ms = 1000
	}
	if ms < 50 {
		ms = 50
	}
	return time.Duration(ms) * time.Millisecond
}

// Ghost は現在のピースのハードドロップ着地位置（ゴーストピース）を返します。
// IsValid が成立する最大の y まで落としたコピーを返します。
func Ghost(p *Piece, b *Board) *Piece {
	if p == nil {
		return nil
	}
	ghost := p.Clone()
	for b.IsValid(ghost, 0, 1) {
		ghost.Y++
	}
	return ghost
}

// HardDrop はピースを着地位置まで落とし、落下したピースと落下距離を返します。
func HardDrop(p *Piece, b *Board) (*Piece, int) {
	if p == nil {
		return nil, 0
	}
	dropped := Ghost(p, b)
	return dropped, dropped.Y - p.Y
}
