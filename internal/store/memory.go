// ============================================================================
// Mission Planner 任務紀錄存儲 - 記憶體實作
// ============================================================================
//
// Package: internal/store
// 文件: memory.go
// 功能: Mission Record Store 與 Unit Availability Oracle 的記憶體實作
//
// 兩種模式:
//   memory: 純記憶體，重啟即遺失
//   file:   每次 Save 後以快照檔（internal/snapshot）原子性寫回磁碟，
//           啟動時從快照載入；快照檔也可作為手寫的種子資料
//
// 所有讀取都回傳副本，呼叫者可以自由修改。
//
// ============================================================================

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ChuLiYu/mission-planner/internal/snapshot"
	"github.com/ChuLiYu/mission-planner/pkg/types"
)

// logger 於呼叫時取得預設 logger，CLI 以 slog.SetDefault 套用設定後才會生效
func logger() *slog.Logger {
	return slog.Default().With("component", "store")
}

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// 任務紀錄不存在（與 types.ErrMissionNotFound 相同，供 errors.Is 使用）
	ErrNotFound = types.ErrMissionNotFound
	// 紀錄內容不合法
	ErrInvalidRecord = errors.New("invalid mission record")
)

// MemoryStore 記憶體任務與單位存儲，併發安全
type MemoryStore struct {
	mu       sync.RWMutex
	missions map[types.MissionID]*types.Mission
	units    map[types.UnitID]types.Unit
	snap     *snapshot.Manager // nil 表示不持久化
}

// NewMemoryStore 建立純記憶體存儲
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		missions: make(map[types.MissionID]*types.Mission),
		units:    make(map[types.UnitID]types.Unit),
	}
}

// OpenFileStore 建立以快照檔持久化的存儲並載入既有內容
func OpenFileStore(path string) (*MemoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	s := NewMemoryStore()
	s.snap = snapshot.NewManager(path)

	data, err := s.snap.Load()
	if err != nil {
		return nil, fmt.Errorf("load mission snapshot: %w", err)
	}
	for _, m := range data.Missions {
		if err := validate(m); err != nil {
			return nil, fmt.Errorf("load mission snapshot: %w", err)
		}
		s.missions[m.ID] = m.Clone()
	}
	for _, u := range data.Units {
		s.units[u.ID] = u
	}

	logger().Info("Mission store loaded",
		"path", path,
		"missions", len(s.missions),
		"units", len(s.units))
	return s, nil
}

func validate(m *types.Mission) error {
	if m == nil {
		return fmt.Errorf("%w: nil mission", ErrInvalidRecord)
	}
	if m.ID <= 0 {
		return fmt.Errorf("%w: id %d", ErrInvalidRecord, m.ID)
	}
	if !m.Status.IsValid() {
		return fmt.Errorf("%w: mission %d has status %q", ErrInvalidRecord, m.ID, m.Status)
	}
	return nil
}

// FindByID 回傳任務副本
func (s *MemoryStore) FindByID(_ context.Context, id types.MissionID) (*types.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.missions[id]
	if !ok {
		return nil, fmt.Errorf("mission %d: %w", id, ErrNotFound)
	}
	return m.Clone(), nil
}

// Save 新增或覆寫任務；file 模式下同步寫回快照，寫入失敗則不修改記憶體內容
func (s *MemoryStore) Save(_ context.Context, m *types.Mission) error {
	if err := validate(m); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.missions[m.ID]
	s.missions[m.ID] = m.Clone()

	if err := s.flushLocked(); err != nil {
		if existed {
			s.missions[m.ID] = prev
		} else {
			delete(s.missions, m.ID)
		}
		return err
	}
	return nil
}

// ListByStatus 依 ID 排序列出任務；不帶狀態時列出全部
func (s *MemoryStore) ListByStatus(_ context.Context, statuses ...types.MissionStatus) ([]*types.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[types.MissionStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	out := make([]*types.Mission, 0, len(s.missions))
	for _, m := range s.missions {
		if len(want) == 0 || want[m.Status] {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutUnit 新增或覆寫部隊單位
func (s *MemoryStore) PutUnit(_ context.Context, u types.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.units[u.ID]
	s.units[u.ID] = u
	if err := s.flushLocked(); err != nil {
		if existed {
			s.units[u.ID] = prev
		} else {
			delete(s.units, u.ID)
		}
		return err
	}
	return nil
}

// ActiveUnitCount 狀態為 active 的單位數
func (s *MemoryStore) ActiveUnitCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.units {
		if u.Status == types.UnitActive {
			n++
		}
	}
	return n, nil
}

// flushLocked 在持有寫鎖時寫回快照
func (s *MemoryStore) flushLocked() error {
	if s.snap == nil {
		return nil
	}

	data := snapshot.Data{
		Missions: make([]*types.Mission, 0, len(s.missions)),
		Units:    make([]types.Unit, 0, len(s.units)),
	}
	for _, m := range s.missions {
		data.Missions = append(data.Missions, m)
	}
	for _, u := range s.units {
		data.Units = append(data.Units, u)
	}
	sort.Slice(data.Missions, func(i, j int) bool { return data.Missions[i].ID < data.Missions[j].ID })
	sort.Slice(data.Units, func(i, j int) bool { return data.Units[i].ID < data.Units[j].ID })

	if err := s.snap.Write(data); err != nil {
		return fmt.Errorf("persist missions: %w", err)
	}
	return nil
}
