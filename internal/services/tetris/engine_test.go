package tetris

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetris-royale/backend/internal/apperrors"
	"github.com/tetris-royale/backend/internal/models"
	"github.com/tetris-royale/backend/internal/models/tetris"
	"github.com/tetris-royale/backend/internal/store"
)

// newTestEngine はインメモリストア上のエンジンを作成します。
func newTestEngine(t *testing.T) (*GameEngine, *store.Repository) {
	t.Helper()
	mem := store.NewMemoryStore()
	repo := store.NewRepository(mem)
	engine := NewGameEngine(repo, nil)
	t.Cleanup(func() {
		engine.Shutdown()
		mem.Close()
	})
	return engine, repo
}

func assertAppCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr), "expected an application error, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestGameEngine_CreatePlayerState(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	state, err := engine.CreatePlayerState(ctx, "p1", "alice", "room-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", state.PlayerID)
	assert.Equal(t, "room-1", state.RoomID)
	assert.GreaterOrEqual(t, state.GameSeed, int32(1000))
	assert.False(t, state.GameStarted)
	assert.Len(t, state.TetrominoBag, 7)

	// 状態はストアにも保存される
	var saved PlayerGameState
	found, err := repo.LoadGameState(ctx, "p1", &saved)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, state.GameSeed, saved.GameSeed)

	// 二重参加は拒否
	_, err = engine.CreatePlayerState(ctx, "p1", "alice", "room-1")
	assertAppCode(t, err, apperrors.CodePlayerAlreadyInGame)
}

func TestGameEngine_StartAndGravity(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	created, err := engine.CreatePlayerState(ctx, "p1", "alice", "room-1")
	require.NoError(t, err)
	require.NoError(t, engine.StartPlayerGame(ctx, "p1"))
	assert.True(t, engine.HasTicker("p1"))

	// 再開始は冪等
	require.NoError(t, engine.StartPlayerGame(ctx, "p1"))

	// 全ピースはスポーンから底まで18マス。18ティックで落下しきり、19ティック目で固定される
	for i := 0; i < 19; i++ {
		engine.AutoDrop(ctx, "p1")
	}

	state, err := engine.GetPlayerGameState(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, state.GameOver)
	assert.Zero(t, state.Score)
	assert.Zero(t, state.LinesCleared)

	// ボードには最初のピースの着地形状だけが残っている
	firstPiece := tetris.NewPiece(created.TetrominoBag[0])
	empty := tetris.NewBoard()
	dropped, _ := tetris.HardDrop(firstPiece, &empty)
	expected := empty.Place(dropped)
	assert.Equal(t, expected, state.Board)

	// 2番目のピースが操作対象になっている
	require.NotNil(t, state.CurrentPiece)
	assert.Equal(t, created.TetrominoBag[1], state.CurrentPiece.Type)
}

func TestGameEngine_StartErrors(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	err := engine.StartPlayerGame(ctx, "ghost")
	assertAppCode(t, err, apperrors.CodePlayerNotFound)

	err = engine.HandlePlayerInput(ctx, "ghost", ActionMoveLeft)
	assertAppCode(t, err, apperrors.CodePlayerNotFound)
}

func TestGameEngine_HardDropScoring(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreatePlayerState(ctx, "p1", "alice", "room-1")
	require.NoError(t, err)
	require.NoError(t, engine.StartPlayerGame(ctx, "p1"))

	require.NoError(t, engine.HandlePlayerInput(ctx, "p1", ActionHardDrop))

	state, err := engine.GetPlayerGameState(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 36, state.Score, "18-cell drop at level 0 should award 36 points")
	assert.Zero(t, state.LinesCleared)
	assert.Zero(t, state.Level)
}

// fakeRecorder はSaveGameResultの呼び出しを記録します。
type fakeRecorder struct {
	mu      sync.Mutex
	results []*models.GameResult
}

func (f *fakeRecorder) SaveGameResult(_ context.Context, result *models.GameResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
	return nil
}

func (f *fakeRecorder) saved() []*models.GameResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.GameResult{}, f.results...)
}

func TestGameEngine_GameOverCascade(t *testing.T) {
	mem := store.NewMemoryStore()
	repo := store.NewRepository(mem)
	recorder := &fakeRecorder{}
	engine := NewGameEngine(repo, recorder)
	t.Cleanup(func() {
		engine.Shutdown()
		mem.Close()
	})
	ctx := context.Background()

	// ルームトピックとプレイヤートピックの両方を観測する
	var eventMu sync.Mutex
	var roomEvents, playerEvents []string
	sub1, err := mem.PSubscribe(ctx, store.PatternPlayerStateChanged, func(channel, payload string) {
		eventMu.Lock()
		roomEvents = append(roomEvents, payload)
		eventMu.Unlock()
	})
	require.NoError(t, err)
	defer sub1.Close()
	sub2, err := mem.PSubscribe(ctx, store.PatternGameStateUpdate, func(channel, payload string) {
		eventMu.Lock()
		playerEvents = append(playerEvents, payload)
		eventMu.Unlock()
	})
	require.NoError(t, err)
	defer sub2.Close()

	_, err = engine.CreatePlayerState(ctx, "p1", "alice", "room-1")
	require.NoError(t, err)
	require.NoError(t, engine.StartPlayerGame(ctx, "p1"))

	// 移動なしのハードドロップは中央の列だけを積み上げるため、
	// ラインは決して揃わず、いずれスポーン領域が塞がる
	gameOver := false
	for i := 0; i < 300; i++ {
		require.NoError(t, engine.HandlePlayerInput(ctx, "p1", ActionHardDrop))
		state, err := engine.GetPlayerGameState(ctx, "p1")
		require.NoError(t, err)
		if state.GameOver {
			gameOver = true
			break
		}
	}
	require.True(t, gameOver, "stacking hard drops should eventually top out")

	// 重力タイマーは停止し、進行中状態はストアから消えている
	assert.False(t, engine.HasTicker("p1"))
	var stale PlayerGameState
	found, err := repo.LoadGameState(ctx, "p1", &stale)
	require.NoError(t, err)
	assert.False(t, found, "expected the in-progress state to be deleted")

	// 最終成績が記録されている
	results := recorder.saved()
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].PlayerID)
	assert.Equal(t, "alice", results[0].PlayerName)
	assert.Positive(t, results[0].Score)

	// ルームトピックに playerGameOver、プレイヤートピックに終端更新が配信される
	require.Eventually(t, func() bool {
		eventMu.Lock()
		defer eventMu.Unlock()
		var sawRoomEvent, sawTerminal bool
		for _, payload := range roomEvents {
			if strings.Contains(payload, `"playerGameOver"`) {
				sawRoomEvent = true
			}
		}
		for _, payload := range playerEvents {
			var msg map[string]any
			if json.Unmarshal([]byte(payload), &msg) != nil {
				continue
			}
			if msg["type"] == "gameStateUpdate" && msg["game_over"] == true {
				sawTerminal = true
			}
		}
		return sawRoomEvent && sawTerminal
	}, 2*time.Second, 10*time.Millisecond)

	// ゲームオーバー後の操作は黙って無視される
	require.NoError(t, engine.HandlePlayerInput(ctx, "p1", ActionMoveLeft))
}

func TestGameEngine_MirrorsRoomState(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	var legacyMu sync.Mutex
	var legacy []string
	sub, err := repo.Store().PSubscribe(ctx, "tetris:*", func(channel, payload string) {
		if channel != store.ChannelTetris("room-1") {
			return
		}
		legacyMu.Lock()
		legacy = append(legacy, payload)
		legacyMu.Unlock()
	})
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	_, err = engine.CreatePlayerState(ctx, "p1", "alice", "room-1")
	require.NoError(t, err)
	require.NoError(t, engine.StartPlayerGame(ctx, "p1"))
	require.NoError(t, engine.HandlePlayerInput(ctx, "p1", ActionMoveLeft))

	// ルームのマップミラーに最新状態が残る
	mirrored, err := repo.MirroredStates(ctx, "room-1")
	require.NoError(t, err)
	require.Contains(t, mirrored, "p1")
	var msg struct {
		Type      string           `json:"type"`
		PlayerID  string           `json:"player_id"`
		GameState *PlayerGameState `json:"game_state"`
	}
	require.NoError(t, json.Unmarshal([]byte(mirrored["p1"]), &msg))
	assert.Equal(t, "gameStateUpdate", msg.Type)
	assert.Equal(t, "p1", msg.PlayerID)
	require.NotNil(t, msg.GameState)
	assert.True(t, msg.GameState.GameStarted)

	// レガシーマップチャンネルへも開始時と操作時の両方の更新が配信される
	require.Eventually(t, func() bool {
		legacyMu.Lock()
		defer legacyMu.Unlock()
		return len(legacy) >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGameEngine_RemovePlayer(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreatePlayerState(ctx, "p1", "alice", "room-1")
	require.NoError(t, err)
	require.NoError(t, engine.StartPlayerGame(ctx, "p1"))
	require.True(t, engine.HasTicker("p1"))

	engine.RemovePlayer(ctx, "p1")

	assert.False(t, engine.HasTicker("p1"))
	_, err = engine.GetPlayerGameState(ctx, "p1")
	assertAppCode(t, err, apperrors.CodePlayerNotFound)

	var stale PlayerGameState
	found, err := repo.LoadGameState(ctx, "p1", &stale)
	require.NoError(t, err)
	assert.False(t, found)

	// 存在しないプレイヤーの削除は安全なノーオペ
	engine.RemovePlayer(ctx, "ghost")
}

func TestGameEngine_RepairPlayerState(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreatePlayerState(ctx, "p1", "alice", "room-1")
	require.NoError(t, err)
	require.NoError(t, engine.StartPlayerGame(ctx, "p1"))

	// ゴーストとバッグを壊してから修復を依頼する
	entry, err := engine.entryFor("p1")
	require.NoError(t, err)
	entry.mu.Lock()
	entry.state.GhostPiece = nil
	entry.state.BagIndex = 42
	entry.mu.Unlock()

	require.NoError(t, engine.RepairPlayerState(ctx, "p1"))

	state, err := engine.GetPlayerGameState(ctx, "p1")
	require.NoError(t, err)
	assert.NotNil(t, state.GhostPiece)
	assert.LessOrEqual(t, state.BagIndex, 7)
	assert.False(t, state.GameOver)
}
