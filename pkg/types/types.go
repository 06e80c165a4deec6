// Package types 定義了任務規劃引擎使用的核心領域模型
package types

import (
	"time"
)

// MissionID 任務唯一識別碼
type MissionID int64

// UnitID 部隊單位識別碼
type UnitID int64

// MissionStatus 任務的持久化狀態（儲存在 Mission Record Store）
type MissionStatus string

// 定義任務持久化狀態常數
const (
	MissionPlanning  MissionStatus = "planning"  // 規劃中：唯一允許啟動規劃會話的狀態
	MissionApproved  MissionStatus = "approved"  // 已核准：等待指揮官啟動執行
	MissionActive    MissionStatus = "active"    // 執行中
	MissionSuspended MissionStatus = "suspended" // 暫停：執行中被暫停，回到核准階段
	MissionCompleted MissionStatus = "completed" // 已完成
	MissionCancelled MissionStatus = "cancelled" // 已取消
	MissionAborted   MissionStatus = "aborted"   // 已中止
)

// IsTerminal 回報狀態是否為終止狀態
func (s MissionStatus) IsTerminal() bool {
	switch s {
	case MissionCompleted, MissionCancelled, MissionAborted:
		return true
	default:
		return false
	}
}

// IsValid 檢查狀態值是否合法
func (s MissionStatus) IsValid() bool {
	switch s {
	case MissionPlanning, MissionApproved, MissionActive, MissionSuspended,
		MissionCompleted, MissionCancelled, MissionAborted:
		return true
	default:
		return false
	}
}

// MissionStatuses 依生命週期順序列出所有持久化狀態
func MissionStatuses() []MissionStatus {
	return []MissionStatus{
		MissionPlanning, MissionApproved, MissionActive, MissionSuspended,
		MissionCompleted, MissionCancelled, MissionAborted,
	}
}

// MissionType 任務類型，決定人員、裝備與時長的估算表
type MissionType string

// 任務類型常數；空字串代表未設定，估算時採用預設值
const (
	TypeReconnaissance  MissionType = "reconnaissance"
	TypePatrol          MissionType = "patrol"
	TypeAssault         MissionType = "assault"
	TypeDefense         MissionType = "defense"
	TypeLogistics       MissionType = "logistics"
	TypeTraining        MissionType = "training"
	TypeSearchAndRescue MissionType = "search_and_rescue"
	TypePeacekeeping    MissionType = "peacekeeping"
	TypeCyberOperation  MissionType = "cyber_operation"
	TypeIntelligence    MissionType = "intelligence"
)

// Priority 任務優先級
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Mission 任務紀錄。引擎只透過狀態更新修改它，其餘欄位視為唯讀
type Mission struct {
	// 識別資訊
	ID   MissionID `json:"id"`
	Code string    `json:"code,omitempty"`
	Name string    `json:"name,omitempty"`

	// 分類與狀態
	Type     MissionType   `json:"type,omitempty"`
	Status   MissionStatus `json:"status"`
	Priority Priority      `json:"priority,omitempty"`

	// 排程
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	TargetLocation       string    `json:"target_location,omitempty"`
	CompletionPercentage int       `json:"completion_percentage"`
	Notes                string    `json:"notes,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Clone 回傳任務的深拷貝（時間指標不共用）
func (m *Mission) Clone() *Mission {
	if m == nil {
		return nil
	}
	c := *m
	if m.StartTime != nil {
		t := *m.StartTime
		c.StartTime = &t
	}
	if m.EndTime != nil {
		t := *m.EndTime
		c.EndTime = &t
	}
	return &c
}

// UnitStatus 部隊單位狀態
type UnitStatus string

const (
	UnitActive      UnitStatus = "active"
	UnitStandby     UnitStatus = "standby"
	UnitMaintenance UnitStatus = "maintenance"
	UnitDeployed    UnitStatus = "deployed"
	UnitInactive    UnitStatus = "inactive"
)

// Unit 部隊單位，僅用於計算可用單位數量
type Unit struct {
	ID          UnitID     `json:"id"`
	Designation string     `json:"designation"`
	Status      UnitStatus `json:"status"`
}
