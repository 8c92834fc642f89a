package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config はサーバー全体の設定値を保持します。
// 環境変数（および開発時は .env ファイル）から読み込まれます。
type Config struct {
	Port        string // HTTP/WebSocketサーバーの待ち受けポート
	DatabaseURL string // 統計永続化用データベースの接続URL（空なら永続化は無効）
	JWTSecret   string // WebSocket認証用のJWTシークレット（空なら認証は無効）
	Env         string // "development" または "production"
}

// Load は環境変数から設定を読み込んで返します。
// APP_ENV が production でない場合は .env ファイルの読み込みを試みます。
func Load() *Config {
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil {
			log.Printf("warning: Error loading .env file (this is fine in production): %v", err)
		}
	}

	cfg := &Config{
		Port:        os.Getenv("PORT"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("AUTH_JWT_SECRET"),
		Env:         os.Getenv("APP_ENV"),
	}
	if cfg.Port == "" {
		cfg.Port = "3000"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	return cfg
}

// IsDevelopment は開発環境かどうかを返します。開発環境では詳細ログが有効になります。
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
