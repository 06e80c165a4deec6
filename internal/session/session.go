package session

import (
	"slices"
	"time"

	"github.com/ChuLiYu/mission-planner/pkg/types"
)

// State 規劃會話狀態
type State string

// 規劃狀態機的狀態常數
const (
	StatePlanning  State = "planning"  // 初始規劃階段
	StateApproved  State = "approved"  // 已核准，等待執行
	StateExecuting State = "executing" // 執行中
	StateCompleted State = "completed" // 已完成（終止狀態）
	StateCancelled State = "cancelled" // 已取消（終止狀態）
)

// IsTerminal 終止狀態不允許任何後續轉換
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Session 單一任務的規劃會話（僅存在於記憶體，程序重啟即遺失）
type Session struct {
	MissionID types.MissionID `json:"mission_id"`
	SessionID string          `json:"session_id"`
	State     State           `json:"state"`

	// 參與者：第一位為預設指揮官
	Participants      []string `json:"participants"`
	AssignedCommander string   `json:"assigned_commander,omitempty"`

	PlanningData         types.Values `json:"planning_data"`
	ResourceRequirements types.Values `json:"resource_requirements"`
	ApprovalComments     []string     `json:"approval_comments"`

	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// New 建立狀態為 planning 的新會話，initiator 同時成為參與者與預設指揮官
func New(missionID types.MissionID, sessionID, initiator string, now time.Time) *Session {
	return &Session{
		MissionID:            missionID,
		SessionID:            sessionID,
		State:                StatePlanning,
		Participants:         []string{initiator},
		AssignedCommander:    initiator,
		PlanningData:         types.Values{},
		ResourceRequirements: types.Values{},
		ApprovalComments:     []string{},
		CreatedAt:            now,
		LastModified:         now,
	}
}

// HasParticipant 檢查是否為參與者
func (s *Session) HasParticipant(id string) bool {
	return slices.Contains(s.Participants, id)
}

// AddParticipant 冪等加入參與者，回傳是否實際新增
func (s *Session) AddParticipant(id string) bool {
	if s.HasParticipant(id) {
		return false
	}
	s.Participants = append(s.Participants, id)
	return true
}

// Touch 更新最後修改時間
func (s *Session) Touch(now time.Time) {
	s.LastModified = now
}

// Clone 深拷貝，呼叫端拿到的副本不會與 store 內的會話共用狀態
func (s *Session) Clone() *Session {
	c := *s
	c.Participants = slices.Clone(s.Participants)
	c.ApprovalComments = slices.Clone(s.ApprovalComments)
	c.PlanningData = s.PlanningData.Clone()
	c.ResourceRequirements = s.ResourceRequirements.Clone()
	return &c
}
