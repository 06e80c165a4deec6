// ============================================================================
// Mission Planner 會話存儲 - 規劃會話的並發註冊表
// ============================================================================
//
// Package: internal/session
// 文件: store.go
// 功能: 以任務 ID 為鍵保存存活中的規劃會話，是「任務是否正在規劃」的唯一真實來源
//
// 設計:
//   entries map[MissionID]*entry - 註冊表
//   ├─ Store.mu 只保護 map 本身的查找 / 插入 / 刪除
//   └─ entry.mu 是每個任務獨立的互斥區，所有讀-改-寫都在其中完成
//
//   不同任務之間不會互相等待；同一任務的衝突操作會被序列化。
//
// 鎖順序:
//   entry.mu → Store.mu（刪除時）
//   持有 Store.mu 時絕不等待 entry.mu，因此不會死鎖。
//
// entry 在放入會話後才標記 live，Len / MissionIDs 不會計入尚未放入會話的 entry。
// 被移除的 entry 會標記 removed；在移除前已取得 entry 指標的呼叫者
// 拿到鎖後會看到 removed，並把它視為不存在（或重新查找）。
//
// 會話不做持久化：程序重啟後所有進行中的規劃會話都會遺失。
//
// ============================================================================

package session

import (
	"errors"
	"sort"
	"sync"

	"github.com/ChuLiYu/mission-planner/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// 任務沒有存活的規劃會話
	ErrNoSession = errors.New("no active planning session")
)

type entry struct {
	mu      sync.Mutex
	session *Session
	removed bool
	live    bool // 由 Store.mu 保護：已放入會話，Len / MissionIDs 只計入 live 的 entry
}

// Store 規劃會話註冊表，併發安全
type Store struct {
	mu      sync.Mutex
	entries map[types.MissionID]*entry
}

// NewStore 建立空的會話註冊表
func NewStore() *Store {
	return &Store{
		entries: make(map[types.MissionID]*entry),
	}
}

// lookup 取得 entry；create 為 true 時不存在則建立
func (st *Store) lookup(id types.MissionID, create bool) *entry {
	st.mu.Lock()
	defer st.mu.Unlock()

	e, ok := st.entries[id]
	if !ok && create {
		e = &entry{}
		st.entries[id] = e
	}
	return e
}

// markLive 在持有 e.mu 的情況下標記 entry 已有會話
func (st *Store) markLive(e *entry) {
	st.mu.Lock()
	e.live = true
	st.mu.Unlock()
}

// drop 在持有 e.mu 的情況下將 entry 從註冊表移除
func (st *Store) drop(id types.MissionID, e *entry) {
	e.removed = true
	e.session = nil

	st.mu.Lock()
	e.live = false
	if st.entries[id] == e {
		delete(st.entries, id)
	}
	st.mu.Unlock()
}

// Put 放入任務的會話，覆寫既有的會話
func (st *Store) Put(s *Session) {
	for {
		e := st.lookup(s.MissionID, true)
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		e.session = s
		st.markLive(e)
		e.mu.Unlock()
		return
	}
}

// Replace 在任務的互斥區內以 fn 產生的會話取代既有會話（不存在時建立）。
//
// fn 收到目前的會話（沒有時為 nil），可在互斥區內讀取外部狀態做前置檢查；
// 回傳錯誤時不做任何修改，為此暫時建立的 entry 也會被移除。
func (st *Store) Replace(id types.MissionID, fn func(cur *Session) (*Session, error)) error {
	for {
		e := st.lookup(id, true)
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}

		next, err := fn(e.session)
		if err == nil && next == nil {
			err = ErrNoSession
		}
		if err != nil {
			if e.session == nil {
				st.drop(id, e)
			}
			e.mu.Unlock()
			return err
		}

		e.session = next
		st.markLive(e)
		e.mu.Unlock()
		return nil
	}
}

// Get 回傳會話的深拷貝
func (st *Store) Get(id types.MissionID) (*Session, bool) {
	e := st.lookup(id, false)
	if e == nil {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.session == nil {
		return nil, false
	}
	return e.session.Clone(), true
}

// Update 在任務的互斥區內對存活的會話執行 fn。
//
// fn 直接操作 store 內的會話；回傳錯誤前不得修改它（先驗證、再修改）。
// fn 回傳 remove=true 時，會話在同一互斥區內被移除。
//
// 錯誤處理：
//   - ErrNoSession: 任務沒有存活的會話
//   - 其他: fn 回傳的錯誤，原樣傳回
func (st *Store) Update(id types.MissionID, fn func(s *Session) (remove bool, err error)) error {
	e := st.lookup(id, false)
	if e == nil {
		return ErrNoSession
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.session == nil {
		return ErrNoSession
	}

	remove, err := fn(e.session)
	if err != nil {
		return err
	}
	if remove {
		st.drop(id, e)
	}
	return nil
}

// Delete 移除任務的會話，回傳是否存在
func (st *Store) Delete(id types.MissionID) bool {
	e := st.lookup(id, false)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false
	}
	existed := e.session != nil
	st.drop(id, e)
	return existed
}

// Len 存活會話數
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	n := 0
	for _, e := range st.entries {
		if e.live {
			n++
		}
	}
	return n
}

// MissionIDs 回傳擁有存活會話的任務 ID（遞增排序）
func (st *Store) MissionIDs() []types.MissionID {
	st.mu.Lock()
	defer st.mu.Unlock()

	ids := make([]types.MissionID, 0, len(st.entries))
	for id, e := range st.entries {
		if e.live {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
