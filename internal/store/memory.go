package store

import (
	"context"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tetris-royale/backend/internal/logger"
)

// subscriberBufferSize は購読ごとの配信バッファサイズです。
// バッファが満杯の購読者へのメッセージは破棄されます（遅い購読者が発行側を止めないため）。
const subscriberBufferSize = 256

type message struct {
	channel string
	payload string
}

type entry struct {
	value     string
	expiresAt time.Time // ゼロ値は無期限
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// subscription は1つのパターン購読を表します。
// 配信は購読ごとの専用goroutineが行うため、同一チャンネルの発行順が保たれます。
type subscription struct {
	pattern string
	ch      chan message
	once    sync.Once
	done    chan struct{}
}

// Close は購読を解除します。複数回呼び出しても安全です。
func (s *subscription) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// MemoryStore はStore契約のインプロセス実装です。
// 単一プロセス構成とテストで使用します。全操作はスレッドセーフです。
type MemoryStore struct {
	mu     sync.RWMutex
	kv     map[string]entry
	sets   map[string]map[string]struct{}
	hashes map[string]map[string]string

	subMu sync.RWMutex
	subs  []*subscription
}

// NewMemoryStore は空のMemoryStoreを作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kv:     make(map[string]entry),
		sets:   make(map[string]map[string]struct{}),
		hashes: make(map[string]map[string]string),
	}
}

// Get は指定キーの値を返します。TTL切れのキーは存在しないものとして扱います。
func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	e, ok := m.kv[key]
	m.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set は指定キーの値を上書きします。ttl が 0 の場合は無期限です。
func (m *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.kv[key] = e
	m.mu.Unlock()
	return nil
}

// Del は指定キーを削除します。
func (m *MemoryStore) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.kv, key)
	delete(m.hashes, key)
	delete(m.sets, key)
	m.mu.Unlock()
	return nil
}

// SAdd は集合にメンバーを追加します。
func (m *MemoryStore) SAdd(ctx context.Context, setKey, member string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	set, ok := m.sets[setKey]
	if !ok {
		set = make(map[string]struct{})
		m.sets[setKey] = set
	}
	set[member] = struct{}{}
	m.mu.Unlock()
	return nil
}

// SRem は集合からメンバーを除去します。空になった集合は破棄します。
func (m *MemoryStore) SRem(ctx context.Context, setKey, member string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if set, ok := m.sets[setKey]; ok {
		delete(set, member)
		if len(set) == 0 {
			delete(m.sets, setKey)
		}
	}
	m.mu.Unlock()
	return nil
}

// SMembers は集合の全メンバーを返します。
func (m *MemoryStore) SMembers(ctx context.Context, setKey string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.sets[setKey]
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	return members, nil
}

// HSet はハッシュレコードのフィールドをまとめて設定します。
func (m *MemoryStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	hash, ok := m.hashes[key]
	if !ok {
		hash = make(map[string]string)
		m.hashes[key] = hash
	}
	for field, value := range fields {
		hash[field] = value
	}
	m.mu.Unlock()
	return nil
}

// HGetAll はハッシュレコードの全フィールドのコピーを返します。
func (m *MemoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]string, len(m.hashes[key]))
	for field, value := range m.hashes[key] {
		result[field] = value
	}
	return result, nil
}

// Publish はパターンの一致する全購読者へメッセージを配信します。
// 配信バッファが満杯の購読者へのメッセージは破棄されます。
func (m *MemoryStore) Publish(ctx context.Context, channel, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	for _, sub := range m.subs {
		if !matchPattern(sub.pattern, channel) {
			continue
		}
		select {
		case <-sub.done:
		case sub.ch <- message{channel: channel, payload: payload}:
		default:
			logger.L().Warn("dropping pub/sub message: subscriber buffer full",
				zap.String("pattern", sub.pattern), zap.String("channel", channel))
		}
	}
	return nil
}

// PSubscribe はワイルドカードパターンでの購読を開始します。
// handler は購読ごとの専用goroutineから呼ばれるため、同一購読内では直列です。
func (m *MemoryStore) PSubscribe(ctx context.Context, pattern string, handler Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &subscription{
		pattern: pattern,
		ch:      make(chan message, subscriberBufferSize),
		done:    make(chan struct{}),
	}

	m.subMu.Lock()
	m.subs = append(m.subs, sub)
	m.subMu.Unlock()

	go func() {
		defer m.removeSubscription(sub)
		for {
			select {
			case <-sub.done:
				return
			case <-ctx.Done():
				sub.Close()
				return
			case msg := <-sub.ch:
				handler(msg.channel, msg.payload)
			}
		}
	}()

	return sub, nil
}

func (m *MemoryStore) removeSubscription(target *subscription) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for i, sub := range m.subs {
		if sub == target {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return
		}
	}
}

// Close は全購読を解除し、以降のストア操作に備えた状態を破棄します。
func (m *MemoryStore) Close() error {
	m.subMu.Lock()
	subs := make([]*subscription, len(m.subs))
	copy(subs, m.subs)
	m.subMu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

// matchPattern はチャンネル名がワイルドカードパターンに一致するかを判定します。
// "*" は任意の文字列（":" を含む）に一致します。
func matchPattern(pattern, channel string) bool {
	matched, err := path.Match(pattern, channel)
	return err == nil && matched
}
