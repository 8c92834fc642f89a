package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tetris-royale/backend/internal/models"
)

// ResultRepository はゲーム結果関連のデータベース操作を定義するインターフェースです。
type ResultRepository interface {
	// SaveGameResult はゲームオーバー時の最終成績を保存します
	SaveGameResult(ctx context.Context, result *models.GameResult) error

	// GetTopResults は上位N件の結果を取得します（ランキング用）
	GetTopResults(ctx context.Context, limit int) ([]models.GameResultResponse, error)

	// GetPlayerBestResult は指定したプレイヤーの最高成績を取得します
	GetPlayerBestResult(ctx context.Context, playerID string) (*models.GameResult, error)
}

// resultRepositoryImpl はResultRepositoryインターフェースの実装です。
type resultRepositoryImpl struct {
	db *sql.DB
}

// NewResultRepository はResultRepositoryの新しいインスタンスを作成します。
func NewResultRepository(db *sql.DB) ResultRepository {
	return &resultRepositoryImpl{db: db}
}

// SaveGameResult はゲームオーバー時の最終成績を保存します。
func (r *resultRepositoryImpl) SaveGameResult(ctx context.Context, result *models.GameResult) error {
	now := time.Now()
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO game_results (player_id, player_name, room_id, score, lines_cleared, level, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		result.PlayerID, result.PlayerName, result.RoomID,
		result.Score, result.LinesCleared, result.Level, now,
	).Scan(&result.ID)
	if err != nil {
		return fmt.Errorf("ゲーム結果レコードの作成に失敗しました: %w", err)
	}
	result.CreatedAt = now
	return nil
}

// GetTopResults は上位N件の結果を取得します（ランキング用）。
func (r *resultRepositoryImpl) GetTopResults(ctx context.Context, limit int) ([]models.GameResultResponse, error) {
	query := `
		SELECT
			id, player_id, player_name, score, created_at,
			ROW_NUMBER() OVER (ORDER BY score DESC, created_at ASC) as rank
		FROM game_results
		ORDER BY score DESC, created_at ASC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ゲーム結果取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var results []models.GameResultResponse
	for rows.Next() {
		var result models.GameResultResponse
		if err := rows.Scan(&result.ID, &result.PlayerID, &result.PlayerName,
			&result.Score, &result.CreatedAt, &result.Rank); err != nil {
			return nil, fmt.Errorf("ゲーム結果データのスキャンに失敗しました: %w", err)
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ゲーム結果取得中にエラーが発生しました: %w", err)
	}
	return results, nil
}

// GetPlayerBestResult は指定したプレイヤーの最高成績を取得します。
// 成績が存在しない場合は nil を返します。
func (r *resultRepositoryImpl) GetPlayerBestResult(ctx context.Context, playerID string) (*models.GameResult, error) {
	query := `
		SELECT id, player_id, player_name, room_id, score, lines_cleared, level, created_at
		FROM game_results
		WHERE player_id = $1
		ORDER BY score DESC, created_at ASC
		LIMIT 1
	`

	var result models.GameResult
	err := r.db.QueryRowContext(ctx, query, playerID).Scan(
		&result.ID, &result.PlayerID, &result.PlayerName, &result.RoomID,
		&result.Score, &result.LinesCleared, &result.Level, &result.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プレイヤーの最高成績取得に失敗しました: %w", err)
	}
	return &result, nil
}
