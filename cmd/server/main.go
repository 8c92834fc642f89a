package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tetris-royale/backend/internal/api/handlers"
	"github.com/tetris-royale/backend/internal/config"
	"github.com/tetris-royale/backend/internal/database"
	"github.com/tetris-royale/backend/internal/logger"
	"github.com/tetris-royale/backend/internal/services/tetris"
	"github.com/tetris-royale/backend/internal/store"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(cfg.IsDevelopment()); err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 統計永続化用データベース（DATABASE_URL未設定なら無効）
	var results database.ResultRepository
	if cfg.DatabaseURL != "" {
		dbService, err := database.NewDatabaseService(cfg.DatabaseURL)
		if err != nil {
			logger.L().Fatal("failed to connect to database", zap.Error(err))
		}
		defer dbService.Close()
		if err := dbService.EnsureSchema(); err != nil {
			logger.L().Fatal("failed to ensure database schema", zap.Error(err))
		}
		results = database.NewResultRepository(dbService.DB)
	} else {
		logger.L().Warn("DATABASE_URL not set, game results will not be persisted")
	}

	// ゲーム状態ストア（インプロセス実装 + 読み取りキャッシュ）
	memStore := store.NewMemoryStore()
	repo := store.NewRepository(store.NewCachedStore(memStore))

	engine := tetris.NewGameEngine(repo, results)
	rooms := tetris.NewRoomManager(repo, engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway, err := tetris.NewGateway(ctx, rooms, engine, repo, cfg.JWTSecret)
	if err != nil {
		logger.L().Fatal("failed to start gateway", zap.Error(err))
	}

	handler := handlers.NewGameHandler(gateway, rooms, results)

	r := mux.NewRouter()
	r.HandleFunc("/ws", handler.HandleWebSocket)
	r.HandleFunc("/api/health", handler.HandleHealth).Methods("GET")
	r.HandleFunc("/api/rooms", handler.HandleRooms).Methods("GET")
	r.HandleFunc("/api/rooms/stats", handler.HandleRoomStats).Methods("GET")
	r.HandleFunc("/api/ranking", handler.HandleRanking).Methods("GET")

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.L().Info("server starting", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L().Fatal("server failed", zap.Error(err))
		}
	}()

	// シグナル受信でグレースフルシャットダウン
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.L().Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.L().Warn("http server shutdown error", zap.Error(err))
	}

	// 全重力タイマーを停止してから購読とストアを閉じる
	gateway.Shutdown()
	engine.Shutdown()
	memStore.Close()
	logger.L().Info("shutdown complete")
}
