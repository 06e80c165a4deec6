package planning

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ChuLiYu/mission-planner/internal/events"
	"github.com/ChuLiYu/mission-planner/internal/metrics"
	"github.com/ChuLiYu/mission-planner/internal/session"
	"github.com/ChuLiYu/mission-planner/pkg/types"
)

// step 描述一次狀態轉換；除 event/from/to 外的欄位皆可為 nil
type step struct {
	event     Event
	missionID types.MissionID
	actor     string
	from      []session.State
	to        session.State
	remove    bool // 轉換成功後移除會話

	// authorize 在狀態檢查之後執行，回傳錯誤即中止
	authorize func(s *session.Session) error
	// gate 回傳非空字串代表業務拒絕：結果 Successful=false，不修改任何狀態
	gate func(ctx context.Context, s *session.Session) (string, error)
	// durable 修改要寫回 Mission Record Store 的任務紀錄
	durable func(m *types.Mission, now time.Time)
	// apply 修改會話（狀態已由 transition 設定）
	apply    func(s *session.Session, now time.Time)
	metadata func(now time.Time) types.Values
}

// transition 在任務互斥區內執行一次轉換
//
// 順序: 狀態 → 授權 → gate → ctx 檢查 → 寫回任務紀錄 → 修改會話
// 任何一步失敗都不會留下部分轉換。
func (e *Engine) transition(ctx context.Context, st step) (result *TransitionResult, err error) {
	ctx, span := e.startSpan(ctx, string(st.event), st.missionID, st.actor)
	start := time.Now()
	var sessionID string
	defer func() {
		rejected := result != nil && !result.Successful
		e.finish(span, string(st.event), start, err, rejected)
	}()

	err = e.sessions.Update(st.missionID, func(s *session.Session) (bool, error) {
		prev := s.State
		if !slices.Contains(st.from, prev) {
			return false, fmt.Errorf("%w: cannot %s mission %d from %s",
				ErrInvalidState, st.event, st.missionID, prev)
		}
		if st.authorize != nil {
			if err := st.authorize(s); err != nil {
				return false, err
			}
		}
		sessionID = s.SessionID

		if st.gate != nil {
			reason, err := st.gate(ctx, s)
			if err != nil {
				return false, err
			}
			if reason != "" {
				result = &TransitionResult{
					PreviousState: prev,
					NewState:      prev,
					ErrorMessage:  reason,
					Metadata:      st.buildMetadata(e.now()),
				}
				return false, nil
			}
		}

		if err := ctx.Err(); err != nil {
			return false, err
		}

		now := e.now()
		mission, err := e.missions.FindByID(ctx, st.missionID)
		if err != nil {
			return false, err
		}
		if st.durable != nil {
			st.durable(mission, now)
		}
		mission.UpdatedAt = now
		if err := e.missions.Save(ctx, mission); err != nil {
			return false, fmt.Errorf("save mission %d: %w", st.missionID, err)
		}

		s.State = st.to
		if st.apply != nil {
			st.apply(s, now)
		}
		s.Touch(now)

		result = &TransitionResult{
			Successful:    true,
			PreviousState: prev,
			NewState:      st.to,
			Metadata:      st.buildMetadata(now),
		}
		return st.remove, nil
	})
	if err != nil {
		return nil, e.wrap(err, st.missionID)
	}

	if st.remove {
		e.metrics.SetActiveSessions(e.sessions.Len())
	}

	if result.Successful {
		logger().Info("Planning transition committed",
			"mission", st.missionID,
			"event", st.event,
			"from", result.PreviousState,
			"to", result.NewState,
			"actor", st.actor)
	} else {
		logger().Warn("Planning transition rejected",
			"mission", st.missionID,
			"event", st.event,
			"actor", st.actor,
			"reason", result.ErrorMessage)
	}

	e.publish(ctx, events.Transition{
		MissionID:  st.missionID,
		SessionID:  sessionID,
		Event:      string(st.event),
		From:       string(result.PreviousState),
		To:         string(result.NewState),
		Successful: result.Successful,
		Actor:      st.actor,
		Message:    result.ErrorMessage,
		Metadata:   result.Metadata,
		At:         e.now(),
	})
	return result, nil
}

func (st step) buildMetadata(now time.Time) types.Values {
	if st.metadata == nil {
		return types.Values{}
	}
	return st.metadata(now)
}

// wrap 為缺少會話的錯誤補上任務 ID
func (e *Engine) wrap(err error, missionID types.MissionID) error {
	if errors.Is(err, session.ErrNoSession) {
		return fmt.Errorf("%w: mission %d", ErrNoActiveSession, missionID)
	}
	return err
}

// publish 盡力發佈事件；失敗只記錄日誌，不影響已提交的轉換
func (e *Engine) publish(ctx context.Context, t events.Transition) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(context.WithoutCancel(ctx), t); err != nil {
		logger().Warn("Failed to publish planning event",
			"mission", t.MissionID,
			"event", t.Event,
			"error", err)
	}
}

func (e *Engine) startSpan(ctx context.Context, op string, missionID types.MissionID, actor string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.Int64("mission.id", int64(missionID)),
	}
	if actor != "" {
		attrs = append(attrs, attribute.String("planning.actor", actor))
	}
	return e.tracer.Start(ctx, "planning."+op, trace.WithAttributes(attrs...))
}

// finish 結束 span 並記錄轉換指標
func (e *Engine) finish(span trace.Span, op string, start time.Time, err error, rejected bool) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case rejected:
		outcome = metrics.OutcomeRejected
		span.SetAttributes(attribute.Bool("planning.rejected", true))
	}
	span.SetAttributes(attribute.String("planning.outcome", outcome))
	span.End()

	e.metrics.RecordTransition(op, outcome, time.Since(start))
}
