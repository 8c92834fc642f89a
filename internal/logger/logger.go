package logger

import (
	"go.uber.org/zap"
)

var global *zap.Logger = zap.NewNop()

// Init はグローバルロガーを初期化します。
// development が true の場合は詳細ログ（console encoder, Debugレベル）になります。
func Init(development bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	global = l
	return nil
}

// L はグローバルロガーを返します。Init 前は no-op ロガーです。
func L() *zap.Logger {
	return global
}

// WithPlayer はプレイヤーIDを付与したロガーを返します。
func WithPlayer(playerID string) *zap.Logger {
	return global.With(zap.String("player_id", playerID))
}

// WithRoom はルームIDを付与したロガーを返します。
func WithRoom(roomID string) *zap.Logger {
	return global.With(zap.String("room_id", roomID))
}

// Sync はバッファされたログをフラッシュします。シャットダウン時に呼び出してください。
func Sync() {
	_ = global.Sync()
}
