package tetris

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tetris-royale/backend/internal/apperrors"
	"github.com/tetris-royale/backend/internal/logger"
	"github.com/tetris-royale/backend/internal/models"
	"github.com/tetris-royale/backend/internal/models/tetris"
	"github.com/tetris-royale/backend/internal/store"
)

// ResultRecorder はゲームオーバー時に最終成績を永続化します。
// 永続化層を持たない構成（テストなど）では nil を渡せます。
type ResultRecorder interface {
	SaveGameResult(ctx context.Context, result *models.GameResult) error
}

// playerEntry は1プレイヤー分のゲーム状態と、その直列化用ロックを保持します。
// クライアント操作・重力ティック・修復操作のすべてが mu で直列化されます。
type playerEntry struct {
	mu           sync.Mutex
	state        *PlayerGameState
	playerName   string
	cancelTicker context.CancelFunc // 動作中の重力タイマーの停止用（nil の場合は停止済み）
}

// stopTicker は重力タイマーを停止します。冪等です。entry.mu 保持中に呼び出してください。
func (e *playerEntry) stopTicker() {
	if e.cancelTicker != nil {
		e.cancelTicker()
		e.cancelTicker = nil
	}
}

// GameEngine は全プレイヤーのシミュレーションと重力スケジューラを管理します。
// アプリケーション内でシングルトンとして動作することが想定されます。
type GameEngine struct {
	repo    *store.Repository
	results ResultRecorder

	mu      sync.RWMutex
	players map[string]*playerEntry // playerID -> entry

	ctx    context.Context // 全重力タイマーの親コンテキスト
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGameEngine は新しいGameEngineを作成します。
func NewGameEngine(repo *store.Repository, results ResultRecorder) *GameEngine {
	ctx, cancel := context.WithCancel(context.Background())
	return &GameEngine{
		repo:    repo,
		results: results,
		players: make(map[string]*playerEntry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// CreatePlayerState はルーム参加時にプレイヤーのゲーム状態を初期化して保存します。
func (ge *GameEngine) CreatePlayerState(ctx context.Context, playerID, playerName, roomID string) (*PlayerGameState, error) {
	ge.mu.Lock()
	if _, exists := ge.players[playerID]; exists {
		ge.mu.Unlock()
		return nil, apperrors.New(apperrors.CodePlayerAlreadyInGame, "player already has an active game state")
	}
	entry := &playerEntry{
		state:      NewPlayerGameState(playerID, roomID),
		playerName: playerName,
	}
	ge.players[playerID] = entry
	ge.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := ge.repo.SaveGameState(ctx, playerID, entry.state); err != nil {
		ge.mu.Lock()
		delete(ge.players, playerID)
		ge.mu.Unlock()
		return nil, err
	}
	logger.WithPlayer(playerID).Info("player game state created",
		zap.String("room_id", roomID),
		zap.Int32("game_seed", entry.state.GameSeed))
	return entry.state.Clone(), nil
}

// StartPlayerGame はプレイヤーのゲームを開始し、重力タイマーを起動します。
func (ge *GameEngine) StartPlayerGame(ctx context.Context, playerID string) error {
	entry, err := ge.entryFor(playerID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.state == nil || entry.state.GameOver {
		return apperrors.New(apperrors.CodeInvalidGameState, "cannot start a finished game")
	}
	if entry.state.GameStarted {
		return nil
	}

	entry.state.Start()
	if err := ge.repo.SaveGameState(ctx, playerID, entry.state); err != nil {
		return err
	}

	ge.publishGameStarted(ctx, entry.state)
	ge.publishStateUpdate(ctx, entry.state)
	ge.startTickerLocked(entry, playerID, entry.state.Level)

	logger.WithPlayer(playerID).Info("player game started",
		zap.Int32("game_seed", entry.state.GameSeed))
	return nil
}

// HandlePlayerInput はクライアントからの操作をプレイヤーの状態に適用します。
func (ge *GameEngine) HandlePlayerInput(ctx context.Context, playerID string, action Action) error {
	entry, err := ge.entryFor(playerID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.state == nil {
		return apperrors.PlayerNotFound(playerID)
	}
	ge.applyLocked(ctx, playerID, entry, action)
	return nil
}

// AutoDrop は重力による1マス落下を実行します。
// 重力タイマーのティックから呼ばれますが、テストから直接駆動することもできます。
func (ge *GameEngine) AutoDrop(ctx context.Context, playerID string) {
	entry, err := ge.entryFor(playerID)
	if err != nil {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.state == nil || entry.state.GameOver || !entry.state.GameStarted || entry.state.Paused {
		return
	}
	ge.applyLocked(ctx, playerID, entry, ActionMoveDown)
}

// applyLocked はアクションを適用し、永続化・配信・タイマー制御の後処理を行います。
// entry.mu 保持中に呼び出してください。
func (ge *GameEngine) applyLocked(ctx context.Context, playerID string, entry *playerEntry, action Action) {
	result := ApplyAction(entry.state, action)
	if !result.Moved {
		return
	}

	if result.GameOver {
		ge.handleGameOverLocked(ctx, playerID, entry)
		return
	}

	if err := ge.repo.SaveGameState(ctx, playerID, entry.state); err != nil {
		logger.WithPlayer(playerID).Error("failed to persist game state", zap.Error(err))
	}
	ge.publishStateUpdate(ctx, entry.state)

	if result.LevelChanged {
		ge.startTickerLocked(entry, playerID, entry.state.Level)
		logger.WithPlayer(playerID).Info("level changed, gravity ticker restarted",
			zap.Int("level", entry.state.Level))
	}
}

// GetPlayerGameState はプレイヤーの現在のゲーム状態のスナップショットを返します。
func (ge *GameEngine) GetPlayerGameState(ctx context.Context, playerID string) (*PlayerGameState, error) {
	entry, err := ge.entryFor(playerID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.state == nil {
		return nil, apperrors.PlayerNotFound(playerID)
	}
	return entry.state.Clone(), nil
}

// RepairPlayerState はサーバー主導の修復操作を実行します。
// 不整合が見つかった場合は修復後の状態を保存します。
func (ge *GameEngine) RepairPlayerState(ctx context.Context, playerID string) error {
	entry, err := ge.entryFor(playerID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.state == nil {
		return apperrors.PlayerNotFound(playerID)
	}

	entry.state.RepairBag()
	entry.state.RepairGhost()
	if !entry.state.RepairCurrentPiece() {
		ge.handleGameOverLocked(ctx, playerID, entry)
		return nil
	}
	return ge.repo.SaveGameState(ctx, playerID, entry.state)
}

// RemovePlayer はプレイヤーの退出時にタイマーを停止し、状態を破棄します。
// 存在しないプレイヤーに対しても安全に呼び出せます。
func (ge *GameEngine) RemovePlayer(ctx context.Context, playerID string) {
	ge.mu.Lock()
	entry, ok := ge.players[playerID]
	if ok {
		delete(ge.players, playerID)
	}
	ge.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	entry.stopTicker()
	entry.state = nil
	entry.mu.Unlock()

	if err := ge.repo.DeleteGameState(ctx, playerID); err != nil {
		logger.WithPlayer(playerID).Warn("failed to delete game state", zap.Error(err))
	}
	logger.WithPlayer(playerID).Info("player removed from engine")
}

// HasTicker はプレイヤーの重力タイマーが動作中かどうかを返します。
func (ge *GameEngine) HasTicker(playerID string) bool {
	entry, err := ge.entryFor(playerID)
	if err != nil {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.cancelTicker != nil
}

// Shutdown は全プレイヤーの重力タイマーを停止し、終了を待ちます。
func (ge *GameEngine) Shutdown() {
	ge.cancel()

	ge.mu.Lock()
	for _, entry := range ge.players {
		entry.mu.Lock()
		entry.stopTicker()
		entry.mu.Unlock()
	}
	ge.mu.Unlock()

	ge.wg.Wait()
	logger.L().Info("game engine shut down")
}

func (ge *GameEngine) entryFor(playerID string) (*playerEntry, error) {
	ge.mu.RLock()
	entry, ok := ge.players[playerID]
	ge.mu.RUnlock()
	if !ok {
		return nil, apperrors.PlayerNotFound(playerID)
	}
	return entry, nil
}

// startTickerLocked は重力タイマーを（再）起動します。既存のタイマーは必ず先に停止します。
// entry.mu 保持中に呼び出してください。
func (ge *GameEngine) startTickerLocked(entry *playerEntry, playerID string, level int) {
	entry.stopTicker()

	tickCtx, cancel := context.WithCancel(ge.ctx)
	entry.cancelTicker = cancel
	interval := tetris.DropInterval(level)

	ge.wg.Add(1)
	go func() {
		defer ge.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				ge.AutoDrop(context.Background(), playerID)
			}
		}
	}()
}

// handleGameOverLocked はゲームオーバーのパイプラインを実行します。
// タイマー停止、成績の永続化、ルーム・プレイヤー両トピックへの通知、状態の破棄を行います。
// entry.mu 保持中に呼び出してください。
func (ge *GameEngine) handleGameOverLocked(ctx context.Context, playerID string, entry *playerEntry) {
	entry.stopTicker()
	state := entry.state

	if ge.results != nil {
		result := &models.GameResult{
			PlayerID:     playerID,
			PlayerName:   entry.playerName,
			RoomID:       state.RoomID,
			Score:        state.Score,
			LinesCleared: state.LinesCleared,
			Level:        state.Level,
		}
		if err := ge.results.SaveGameResult(ctx, result); err != nil {
			logger.WithPlayer(playerID).Error("failed to persist game result", zap.Error(err))
		}
	}

	gameOverEvent, err := json.Marshal(map[string]any{
		"type":          "playerGameOver",
		"player_id":     playerID,
		"room_id":       state.RoomID,
		"score":         state.Score,
		"level":         state.Level,
		"lines_cleared": state.LinesCleared,
	})
	if err == nil {
		if pubErr := ge.repo.PublishPlayerStateChanged(ctx, state.RoomID, string(gameOverEvent)); pubErr != nil {
			logger.WithPlayer(playerID).Warn("failed to publish game over event", zap.Error(pubErr))
		}
	}

	terminal, err := json.Marshal(map[string]any{
		"type":          "gameStateUpdate",
		"player_id":     playerID,
		"game_over":     true,
		"score":         state.Score,
		"level":         state.Level,
		"lines_cleared": state.LinesCleared,
	})
	if err == nil {
		if pubErr := ge.repo.PublishGameStateUpdate(ctx, playerID, string(terminal)); pubErr != nil {
			logger.WithPlayer(playerID).Warn("failed to publish terminal state", zap.Error(pubErr))
		}
	}

	if err := ge.repo.DeleteGameState(ctx, playerID); err != nil {
		logger.WithPlayer(playerID).Warn("failed to delete game state", zap.Error(err))
	}
	entry.state.ForceGameOver()
}

// publishStateUpdate はプレイヤートピックへ現在の状態を配信します。配信はベストエフォートです。
// 同じペイロードをルームのマップミラーとレガシーチャンネルにも書き込みます。
func (ge *GameEngine) publishStateUpdate(ctx context.Context, state *PlayerGameState) {
	payload, err := json.Marshal(map[string]any{
		"type":       "gameStateUpdate",
		"player_id":  state.PlayerID,
		"game_state": state,
	})
	if err != nil {
		logger.WithPlayer(state.PlayerID).Error("failed to encode state update", zap.Error(err))
		return
	}
	if err := ge.repo.PublishGameStateUpdate(ctx, state.PlayerID, string(payload)); err != nil {
		logger.WithPlayer(state.PlayerID).Warn("failed to publish state update", zap.Error(err))
	}
	if err := ge.repo.MirrorPlayerState(ctx, state.RoomID, state.PlayerID, string(payload)); err != nil {
		logger.WithPlayer(state.PlayerID).Warn("failed to mirror player state", zap.Error(err))
	}
	if err := ge.repo.PublishTetris(ctx, state.RoomID, string(payload)); err != nil {
		logger.WithPlayer(state.PlayerID).Warn("failed to publish legacy map update", zap.Error(err))
	}
}

// publishGameStarted はプレイヤートピックへゲーム開始シグナルを配信します。
func (ge *GameEngine) publishGameStarted(ctx context.Context, state *PlayerGameState) {
	payload, err := json.Marshal(map[string]any{
		"type":      "gameStarted",
		"player_id": state.PlayerID,
		"room_id":   state.RoomID,
		"game_seed": state.GameSeed,
	})
	if err != nil {
		return
	}
	if err := ge.repo.PublishGameStarted(ctx, state.PlayerID, string(payload)); err != nil {
		logger.WithPlayer(state.PlayerID).Warn("failed to publish game started", zap.Error(err))
	}
}
