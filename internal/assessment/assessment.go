// ============================================================================
// Mission Planner 資源評估 - 部隊、裝備、後勤需求與戰備分數
// ============================================================================
//
// Package: internal/assessment
// 文件: assessment.go
// 功能: 為任務產生資源分配評估，戰備分數作為核准關卡
//
// 評分流程（起始 1.0）:
//   1. 沒有分配到單位            -0.4
//   2. 沒有裝備需求              -0.2
//   3. 24 小時內開始             -0.1
//   4. 優先級 high -0.1 / low +0.1
//   最後限制在 [0, 1]；低於 0.7 不可核准
//
// 單位可用性查詢失敗只記為風險因子，不會讓評估失敗。
// 每次呼叫都重新計算，不做快取。
//
// ============================================================================

package assessment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ChuLiYu/mission-planner/internal/estimator"
	"github.com/ChuLiYu/mission-planner/internal/metrics"
	"github.com/ChuLiYu/mission-planner/pkg/types"
)

// logger 於呼叫時取得預設 logger，CLI 以 slog.SetDefault 套用設定後才會生效
func logger() *slog.Logger {
	return slog.Default().With("component", "assessment")
}

// ApprovalThreshold 允許核准的最低戰備分數
const ApprovalThreshold = 0.7

const (
	personnelPerUnit   = 10
	imminentStartLimit = 24 * time.Hour
)

// MissionFinder 讀取任務紀錄；未知 ID 回傳包裝 types.ErrMissionNotFound 的錯誤
type MissionFinder interface {
	FindByID(ctx context.Context, id types.MissionID) (*types.Mission, error)
}

// UnitOracle 回報目前 active 的單位數；可能變慢或失敗，失敗不會中止評估
type UnitOracle interface {
	ActiveUnitCount(ctx context.Context) (int, error)
}

// Assessment 單次資源分配評估結果
type Assessment struct {
	MissionID             types.MissionID `json:"mission_id"`
	RequiredUnitIDs       []types.UnitID  `json:"required_unit_ids"`
	EquipmentRequirements map[string]int  `json:"equipment_requirements"`
	LogisticsRequirements map[string]int  `json:"logistics_requirements"`
	ReadinessScore        float64         `json:"readiness_score"`
	RiskFactors           []string        `json:"risk_factors"`
	Recommendations       []string        `json:"recommendations"`
}

// Approvable 分數是否達到核准門檻
func (a *Assessment) Approvable() bool {
	return a.ReadinessScore >= ApprovalThreshold
}

// Engine 資源評估引擎
type Engine struct {
	missions MissionFinder
	units    UnitOracle
	metrics  *metrics.Collector
	now      func() time.Time
}

// Option 評估引擎選項
type Option func(*Engine)

// WithClock 替換「即將開始」檢查使用的時鐘
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics 將評估次數與查詢失敗記錄到 c
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// NewEngine 建立評估引擎
func NewEngine(missions MissionFinder, units UnitOracle, opts ...Option) *Engine {
	e := &Engine{
		missions: missions,
		units:    units,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assess 讀取任務並評估；只有任務讀取失敗會回傳錯誤
func (e *Engine) Assess(ctx context.Context, id types.MissionID) (*Assessment, error) {
	mission, err := e.missions.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("assess mission %d: %w", id, err)
	}
	return e.AssessMission(ctx, mission), nil
}

// AssessMission 評估已讀取的任務紀錄
func (e *Engine) AssessMission(ctx context.Context, m *types.Mission) *Assessment {
	a := &Assessment{
		MissionID:             m.ID,
		RequiredUnitIDs:       []types.UnitID{},
		EquipmentRequirements: map[string]int{},
		LogisticsRequirements: map[string]int{},
		RiskFactors:           []string{},
		Recommendations:       []string{},
	}

	e.sizeUnits(ctx, a, m)
	a.EquipmentRequirements = estimator.EquipmentFor(m.Type)
	sizeLogistics(a, m)
	e.score(a, m)

	e.metrics.RecordAssessment(a.ReadinessScore)
	logger().Debug("Mission assessed",
		"mission", m.ID,
		"score", a.ReadinessScore,
		"risks", len(a.RiskFactors))
	return a
}

// sizeUnits 單位足夠時以佔位 ID 1..N 填入 RequiredUnitIDs。
// 這些 ID 不對應真實的單位紀錄。
func (e *Engine) sizeUnits(ctx context.Context, a *Assessment, m *types.Mission) {
	required := estimator.Personnel(m) / personnelPerUnit

	available, err := e.activeUnits(ctx)
	if err != nil {
		e.metrics.RecordOracleFailure()
		logger().Warn("Unit availability lookup failed", "mission", m.ID, "error", err)
		a.RiskFactors = append(a.RiskFactors, "Unable to assess unit availability: "+err.Error())
		return
	}

	if available < required {
		a.RiskFactors = append(a.RiskFactors, fmt.Sprintf(
			"Insufficient active units available: %d available, %d required", available, required))
		return
	}

	for i := 1; i <= required; i++ {
		a.RequiredUnitIDs = append(a.RequiredUnitIDs, types.UnitID(i))
	}
}

// activeUnits 查詢單位可用性，panic 轉為錯誤
func (e *Engine) activeUnits(ctx context.Context) (n int, err error) {
	if e.units == nil {
		return 0, fmt.Errorf("no unit availability source configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit availability source panicked: %v", r)
		}
	}()
	return e.units.ActiveUnitCount(ctx)
}

func sizeLogistics(a *Assessment, m *types.Mission) {
	duration := estimator.DurationHours(m)
	personnel := estimator.Personnel(m)

	commRange := 50
	if m.TargetLocation != "" {
		commRange = 100
	}

	a.LogisticsRequirements = map[string]int{
		"food_rations":           personnel * duration * 3,
		"water_liters":           personnel * duration * 4,
		"fuel_liters":            estimator.Vehicles(m) * duration * 50,
		"medical_supplies":       max(1, personnel/10),
		"communication_range_km": commRange,
	}
}

func (e *Engine) score(a *Assessment, m *types.Mission) {
	score := 1.0

	if len(a.RequiredUnitIDs) == 0 {
		score -= 0.4
		a.RiskFactors = append(a.RiskFactors, "No units allocated for mission")
		a.Recommendations = append(a.Recommendations,
			fmt.Sprintf("Allocate at least %d units", estimator.Personnel(m)/personnelPerUnit))
	}

	if len(a.EquipmentRequirements) == 0 {
		score -= 0.2
		a.RiskFactors = append(a.RiskFactors, "No equipment requirements calculated")
		a.Recommendations = append(a.Recommendations, "Complete equipment requirements assessment")
	}

	if m.StartTime != nil && m.StartTime.Before(e.now().Add(imminentStartLimit)) {
		score -= 0.1
		a.RiskFactors = append(a.RiskFactors, "Mission scheduled to start within 24 hours")
		a.Recommendations = append(a.Recommendations, "Ensure all resources are pre-positioned")
	}

	switch m.Priority {
	case types.PriorityHigh:
		score -= 0.1
		a.Recommendations = append(a.Recommendations,
			"Additional backup resources recommended for high-priority mission")
	case types.PriorityLow:
		score += 0.1
	}

	score = min(1.0, max(0.0, score))
	a.ReadinessScore = score

	if score < ApprovalThreshold {
		a.Recommendations = append(a.Recommendations,
			"Mission readiness below acceptable threshold - address identified risks")
	}
	a.Recommendations = append(a.Recommendations,
		"Conduct final readiness review 2 hours before mission start",
		"Establish clear communication protocols with all units")
}
