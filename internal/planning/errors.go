package planning

import (
	"errors"

	"github.com/ChuLiYu/mission-planner/internal/session"
	"github.com/ChuLiYu/mission-planner/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================
//
// 前置條件與授權錯誤在修改任何狀態之前回傳。
// 戰備分數不足不是錯誤：Approve 回傳 Successful=false 的 TransitionResult。
// 單位可用性查詢失敗在評估內部被吸收為風險因子，不會出現在這裡。

var (
	// 任務紀錄不存在
	ErrNotFound = types.ErrMissionNotFound
	// 目前狀態不允許此操作
	ErrInvalidState = errors.New("invalid state for operation")
	// 任務沒有存活的規劃會話
	ErrNoActiveSession = session.ErrNoSession
	// 操作者不是會話參與者
	ErrUnauthorized = errors.New("actor not authorized for mission")
)
