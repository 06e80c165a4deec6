// ============================================================================
// Mission Planner 規劃引擎 - 任務規劃狀態機
// ============================================================================
//
// Package: internal/planning
// 文件: engine.go
// 功能: 驅動任務走完協同規劃生命週期，並以戰備分數作為核准關卡
//
// 任務狀態轉換 (State Machine):
//
//   Planning ──Approve──▶ Approved ──StartExecution──▶ Executing ──Complete──▶ Completed
//      │                   ▲   │                          │
//      │                   │   │                          ├──Suspend──▶ Approved
//      └──Cancel──┐        │   └──Cancel──┐               └──Cancel──┐
//                 ▼        │              ▼                          ▼
//             Cancelled ◀──┴──────────────┴──────────────────────────┘
//
// 狀態轉換規則:
//   - Approve: 僅限 Planning；戰備分數 < 0.7 時回傳失敗結果且不修改任何狀態
//   - StartExecution: 僅限 Approved；指揮官必須是參與者
//   - Complete: 僅限 Executing；完成後移除會話
//   - Cancel: 任何非終止狀態；取消後移除會話
//   - Suspend: 僅限 Executing；回到 Approved，持久化狀態為 suspended
//
// 一致性:
//   每次轉換都在該任務的互斥區內完成：
//   1. 驗證狀態與授權（失敗直接回傳，不修改）
//   2. 寫回 Mission Record Store（失敗或 context 已過期則不修改會話）
//   3. 修改會話狀態
//   事件發佈與指標在互斥區外進行，發佈失敗只記錄日誌。
//
// 會話只存在於記憶體，程序重啟會遺失所有進行中的規劃會話。
//
// ============================================================================

package planning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ChuLiYu/mission-planner/internal/assessment"
	"github.com/ChuLiYu/mission-planner/internal/estimator"
	"github.com/ChuLiYu/mission-planner/internal/events"
	"github.com/ChuLiYu/mission-planner/internal/metrics"
	"github.com/ChuLiYu/mission-planner/internal/session"
	"github.com/ChuLiYu/mission-planner/pkg/types"
)

// logger 於呼叫時取得預設 logger，CLI 以 slog.SetDefault 套用設定後才會生效
func logger() *slog.Logger {
	return slog.Default().With("component", "planning")
}

const tracerName = "github.com/ChuLiYu/mission-planner/internal/planning"

// ============================================================================
// 資料結構定義
// ============================================================================

// MissionStore 任務紀錄存取（外部協作者）
//
// FindByID 必須回傳呼叫者獨佔的副本；未知 ID 回傳包裝 types.ErrMissionNotFound 的錯誤。
type MissionStore interface {
	FindByID(ctx context.Context, id types.MissionID) (*types.Mission, error)
	Save(ctx context.Context, m *types.Mission) error
}

// Publisher 轉換事件發佈者
type Publisher interface {
	Publish(ctx context.Context, t events.Transition) error
}

// Config 引擎配置；只有 Missions 為必填
type Config struct {
	Missions  MissionStore          // 任務紀錄存取
	Units     assessment.UnitOracle // 單位可用性（可為 nil，評估時記為風險因子）
	Sessions  *session.Store        // 會話註冊表，nil 時自動建立
	Metrics   *metrics.Collector    // 可為 nil
	Publisher Publisher             // 可為 nil
	Tracer    trace.Tracer          // nil 時使用全域 TracerProvider
	Clock     func() time.Time      // nil 時使用 time.Now
	NewID     func() string         // 會話 ID 產生器，nil 時使用 UUID v4
}

// Engine 任務規劃狀態機
type Engine struct {
	missions  MissionStore
	assessor  *assessment.Engine
	sessions  *session.Store
	metrics   *metrics.Collector
	publisher Publisher
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// NewEngine 建立規劃引擎
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Missions == nil {
		return nil, errors.New("planning: mission store is required")
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.NewStore()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	return &Engine{
		missions: cfg.Missions,
		assessor: assessment.NewEngine(cfg.Missions, cfg.Units,
			assessment.WithClock(cfg.Clock),
			assessment.WithMetrics(cfg.Metrics)),
		sessions:  cfg.Sessions,
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
		tracer:    cfg.Tracer,
		now:       cfg.Clock,
		newID:     cfg.NewID,
	}, nil
}

// ============================================================================
// 會話操作
// ============================================================================

// Initiate 為任務建立規劃會話
//
// 前置條件：任務存在且持久化狀態為 planning。
// 已有會話時直接覆寫。狀態檢查與覆寫都在該任務的互斥區內完成，
// 不會與同一任務進行中的轉換交錯。
//
// 錯誤處理：
//   - ErrNotFound: 任務不存在
//   - ErrInvalidState: 任務不是 planning 狀態
func (e *Engine) Initiate(ctx context.Context, missionID types.MissionID, initiatorID string) (out *session.Session, err error) {
	ctx, span := e.startSpan(ctx, eventInitiate, missionID, initiatorID)
	start := time.Now()
	defer func() { e.finish(span, eventInitiate, start, err, false) }()

	var now time.Time
	err = e.sessions.Replace(missionID, func(_ *session.Session) (*session.Session, error) {
		mission, err := e.missions.FindByID(ctx, missionID)
		if err != nil {
			return nil, fmt.Errorf("initiate planning: %w", err)
		}
		if mission.Status != types.MissionPlanning {
			return nil, fmt.Errorf("%w: mission %d is %s, planning requires %s",
				ErrInvalidState, missionID, mission.Status, types.MissionPlanning)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		now = e.now()
		s := session.New(missionID, e.newID(), initiatorID, now)
		seed(s, mission)
		out = s.Clone()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	e.metrics.SetActiveSessions(e.sessions.Len())

	logger().Info("Planning session initiated",
		"mission", missionID,
		"session", out.SessionID,
		"initiator", initiatorID)
	e.publish(ctx, events.Transition{
		MissionID:  missionID,
		SessionID:  out.SessionID,
		Event:      eventInitiate,
		To:         string(session.StatePlanning),
		Successful: true,
		Actor:      initiatorID,
		At:         now,
	})
	return out, nil
}

// seed 以估算值與任務欄位初始化會話
func seed(s *session.Session, m *types.Mission) {
	est := estimator.For(m)
	s.ResourceRequirements["estimatedPersonnel"] = types.Int(int64(est.Personnel))
	s.ResourceRequirements["estimatedVehicles"] = types.Int(int64(est.Vehicles))
	s.ResourceRequirements["estimatedEquipment"] = types.Int(int64(est.Equipment))
	s.ResourceRequirements["estimatedDuration"] = types.Int(int64(est.DurationHours))

	s.PlanningData["missionType"] = optionalString(string(m.Type))
	s.PlanningData["priority"] = optionalString(string(m.Priority))
	s.PlanningData["targetLocation"] = optionalString(m.TargetLocation)
}

func optionalString(v string) types.Value {
	if v == "" {
		return types.Null()
	}
	return types.String(v)
}

// AddParticipant 冪等加入參與者
func (e *Engine) AddParticipant(ctx context.Context, missionID types.MissionID, participantID string) (*session.Session, error) {
	var out *session.Session
	err := e.sessions.Update(missionID, func(s *session.Session) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if s.AddParticipant(participantID) {
			s.Touch(e.now())
		}
		out = s.Clone()
		return false, nil
	})
	if err != nil {
		return nil, e.wrap(err, missionID)
	}

	logger().Debug("Participant joined planning", "mission", missionID, "participant", participantID)
	return out, nil
}

// ResourceRequirementsKey updates 中此鍵的巢狀 map 會一併合併進 resource requirements
const ResourceRequirementsKey = "resourceRequirements"

// UpdatePlanningData 合併規劃資料（逐鍵覆寫）
//
// 錯誤處理：
//   - ErrNoActiveSession: 沒有存活會話
//   - ErrUnauthorized: updatedBy 不是參與者
func (e *Engine) UpdatePlanningData(ctx context.Context, missionID types.MissionID, updates types.Values, updatedBy string) (*session.Session, error) {
	var out *session.Session
	err := e.sessions.Update(missionID, func(s *session.Session) (bool, error) {
		if !s.HasParticipant(updatedBy) {
			return false, fmt.Errorf("%w: %s cannot update planning data for mission %d",
				ErrUnauthorized, updatedBy, missionID)
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		s.PlanningData.Merge(updates)
		if nested, ok := updates[ResourceRequirementsKey].Entries(); ok {
			s.ResourceRequirements.Merge(nested)
		}
		s.Touch(e.now())
		out = s.Clone()
		return false, nil
	})
	if err != nil {
		return nil, e.wrap(err, missionID)
	}

	logger().Info("Planning data updated",
		"mission", missionID,
		"by", updatedBy,
		"keys", updates.Keys())
	return out, nil
}

// GetSession 取得會話副本
func (e *Engine) GetSession(_ context.Context, missionID types.MissionID) (*session.Session, error) {
	s, ok := e.sessions.Get(missionID)
	if !ok {
		return nil, e.wrap(session.ErrNoSession, missionID)
	}
	return s, nil
}

// AvailableTransitions 回傳目前狀態可用的事件；沒有會話時回傳空清單
func (e *Engine) AvailableTransitions(_ context.Context, missionID types.MissionID) []Event {
	s, ok := e.sessions.Get(missionID)
	if !ok {
		return []Event{}
	}
	return append([]Event{}, availableEvents[s.State]...)
}

// Assess 執行資源分配評估
func (e *Engine) Assess(ctx context.Context, missionID types.MissionID) (*assessment.Assessment, error) {
	ctx, span := e.startSpan(ctx, "assess", missionID, "")
	defer span.End()

	a, err := e.assessor.Assess(ctx, missionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Float64("readiness.score", a.ReadinessScore))
	return a, nil
}

// ActiveSessions 存活會話數
func (e *Engine) ActiveSessions() int {
	return e.sessions.Len()
}

// ============================================================================
// 狀態轉換
// ============================================================================

// Approve 核准任務計畫
//
// 先執行資源評估；分數低於 assessment.ApprovalThreshold 時回傳
// Successful=false 的結果（ErrorMessage 帶分數），不修改會話與任務紀錄。
func (e *Engine) Approve(ctx context.Context, missionID types.MissionID, approverID, comment string) (*TransitionResult, error) {
	var score float64
	return e.transition(ctx, step{
		event:     EventApprove,
		missionID: missionID,
		actor:     approverID,
		from:      []session.State{session.StatePlanning},
		to:        session.StateApproved,
		gate: func(ctx context.Context, s *session.Session) (string, error) {
			a, err := e.assessor.Assess(ctx, missionID)
			if err != nil {
				return "", err
			}
			score = a.ReadinessScore
			if !a.Approvable() {
				return fmt.Sprintf("Insufficient readiness score for approval: %.2f", a.ReadinessScore), nil
			}
			return "", nil
		},
		durable: func(m *types.Mission, _ time.Time) {
			m.Status = types.MissionApproved
		},
		apply: func(s *session.Session, _ time.Time) {
			if strings.TrimSpace(comment) != "" {
				s.ApprovalComments = append(s.ApprovalComments, approverID+": "+comment)
			}
		},
		metadata: func(now time.Time) types.Values {
			return types.Values{
				"approverId":     types.String(approverID),
				"approvalTime":   types.Time(now),
				"readinessScore": types.Number(score),
			}
		},
	})
}

// StartExecution 開始執行任務，commanderID 必須是參與者
func (e *Engine) StartExecution(ctx context.Context, missionID types.MissionID, commanderID string) (*TransitionResult, error) {
	return e.transition(ctx, step{
		event:     EventStartExecution,
		missionID: missionID,
		actor:     commanderID,
		from:      []session.State{session.StateApproved},
		to:        session.StateExecuting,
		authorize: func(s *session.Session) error {
			if !s.HasParticipant(commanderID) {
				return fmt.Errorf("%w: commander %s is not a participant of mission %d",
					ErrUnauthorized, commanderID, missionID)
			}
			return nil
		},
		durable: func(m *types.Mission, now time.Time) {
			m.Status = types.MissionActive
			if m.StartTime == nil {
				m.StartTime = &now
			}
		},
		apply: func(s *session.Session, _ time.Time) {
			s.AssignedCommander = commanderID
		},
		metadata: func(now time.Time) types.Values {
			return types.Values{
				"commanderId":        types.String(commanderID),
				"executionStartTime": types.Time(now),
			}
		},
	})
}

// Complete 完成任務並移除會話
func (e *Engine) Complete(ctx context.Context, missionID types.MissionID, completedBy, notes string) (*TransitionResult, error) {
	return e.transition(ctx, step{
		event:     EventComplete,
		missionID: missionID,
		actor:     completedBy,
		from:      []session.State{session.StateExecuting},
		to:        session.StateCompleted,
		remove:    true,
		durable: func(m *types.Mission, now time.Time) {
			m.Status = types.MissionCompleted
			m.EndTime = &now
			m.CompletionPercentage = 100
			appendNote(m, notes)
		},
		metadata: func(now time.Time) types.Values {
			md := types.Values{
				"completedBy":    types.String(completedBy),
				"completionTime": types.Time(now),
			}
			if notes != "" {
				md["completionNotes"] = types.String(notes)
			}
			return md
		},
	})
}

// Cancel 從任何非終止狀態取消任務並移除會話
func (e *Engine) Cancel(ctx context.Context, missionID types.MissionID, cancelledBy, reason string) (*TransitionResult, error) {
	return e.transition(ctx, step{
		event:     EventCancel,
		missionID: missionID,
		actor:     cancelledBy,
		from:      []session.State{session.StatePlanning, session.StateApproved, session.StateExecuting},
		to:        session.StateCancelled,
		remove:    true,
		durable: func(m *types.Mission, _ time.Time) {
			m.Status = types.MissionCancelled
			if reason != "" {
				appendNote(m, fmt.Sprintf("Cancelled by %s: %s", cancelledBy, reason))
			}
		},
		metadata: func(now time.Time) types.Values {
			return types.Values{
				"cancelledBy":        types.String(cancelledBy),
				"cancellationTime":   types.Time(now),
				"cancellationReason": types.String(reason),
			}
		},
	})
}

// Suspend 暫停執行中的任務，回到 Approved；之後可再次 StartExecution
func (e *Engine) Suspend(ctx context.Context, missionID types.MissionID, suspendedBy, reason string) (*TransitionResult, error) {
	return e.transition(ctx, step{
		event:     EventSuspend,
		missionID: missionID,
		actor:     suspendedBy,
		from:      []session.State{session.StateExecuting},
		to:        session.StateApproved,
		durable: func(m *types.Mission, _ time.Time) {
			m.Status = types.MissionSuspended
		},
		metadata: func(now time.Time) types.Values {
			return types.Values{
				"suspendedBy":      types.String(suspendedBy),
				"suspensionTime":   types.Time(now),
				"suspensionReason": types.String(reason),
			}
		},
	})
}

func appendNote(m *types.Mission, note string) {
	if note == "" {
		return
	}
	if m.Notes == "" {
		m.Notes = note
		return
	}
	m.Notes += "\n" + note
}
