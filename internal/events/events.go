// ============================================================================
// Mission Planner 事件發佈 - 規劃轉換事件流
// ============================================================================
//
// Package: internal/events
// 文件: events.go
// 功能: 以 Redis Stream (XADD) 發佈每次規劃轉換，供其他服務追蹤任務生命週期
//
// 事件欄位: mission_id, session_id, event, from, to, successful, actor,
//           message, metadata (JSON), at (RFC3339Nano)
//
// 發佈為盡力而為：失敗由呼叫端記錄日誌，不影響已提交的轉換。
//
// ============================================================================

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ChuLiYu/mission-planner/pkg/types"
)

// DefaultStream 預設的 Redis stream 名稱
const DefaultStream = "mission.planning.transitions"

// Transition 一次規劃轉換嘗試（含被拒絕的核准）
type Transition struct {
	MissionID  types.MissionID `json:"mission_id"`
	SessionID  string          `json:"session_id"`
	Event      string          `json:"event"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	Successful bool            `json:"successful"`
	Actor      string          `json:"actor"`
	Message    string          `json:"message,omitempty"`
	Metadata   types.Values    `json:"metadata,omitempty"`
	At         time.Time       `json:"at"`
}

// RedisPublisher 以 XADD 將轉換事件寫入 Redis stream
type RedisPublisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher 建立發佈者；stream 為空時使用 DefaultStream，
// maxLen > 0 時以近似方式修剪 stream 長度
func NewRedisPublisher(rdb *redis.Client, stream string, maxLen int64) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{rdb: rdb, stream: stream, maxLen: maxLen}
}

// Dial 解析 redis:// URL 並回傳已連線的發佈者
func Dial(ctx context.Context, url, stream string, maxLen int64) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisPublisher(rdb, stream, maxLen), nil
}

// Stream 回傳 stream 名稱
func (p *RedisPublisher) Stream() string {
	return p.stream
}

// Publish 寫入一筆轉換事件
func (p *RedisPublisher) Publish(ctx context.Context, t Transition) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"mission_id": int64(t.MissionID),
			"session_id": t.SessionID,
			"event":      t.Event,
			"from":       t.From,
			"to":         t.To,
			"successful": t.Successful,
			"actor":      t.Actor,
			"message":    t.Message,
			"metadata":   string(metadata),
			"at":         t.At.UTC().Format(time.RFC3339Nano),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if _, err := p.rdb.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Close 關閉 Redis 連線
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
