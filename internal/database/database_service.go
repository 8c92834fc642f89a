package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQLドライバー
	"go.uber.org/zap"

	"github.com/tetris-royale/backend/internal/logger"
)

// DatabaseService はゲーム終了後の統計を保存する永続ストアへの接続を提供します。
// 進行中のゲーム状態はここには保存されません。
type DatabaseService struct {
	DB *sql.DB
}

// NewDatabaseService は新しいDatabaseServiceを作成し、データベース接続を確立します。
func NewDatabaseService(databaseURL string) (*DatabaseService, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("データベースへの接続オブジェクト作成に失敗しました: %w", err)
	}

	// データベース接続の確認 (Ping)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("データベースのPingに失敗しました。接続情報やネットワークを確認してください: %w", err)
	}

	logger.L().Info("connected to database")
	return &DatabaseService{DB: db}, nil
}

// EnsureSchema はゲーム結果テーブルが存在することを保証します。
func (s *DatabaseService) EnsureSchema() error {
	_, err := s.DB.Exec(`
		CREATE TABLE IF NOT EXISTS game_results (
			id            BIGSERIAL PRIMARY KEY,
			player_id     TEXT        NOT NULL,
			player_name   TEXT        NOT NULL,
			room_id       TEXT        NOT NULL,
			score         INTEGER     NOT NULL,
			lines_cleared INTEGER     NOT NULL,
			level         INTEGER     NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("ゲーム結果テーブルの作成に失敗しました: %w", err)
	}
	return nil
}

// Close はデータベース接続を閉じます。
func (s *DatabaseService) Close() {
	if err := s.DB.Close(); err != nil {
		logger.L().Warn("failed to close database connection", zap.Error(err))
	}
}
