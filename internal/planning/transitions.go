package planning

import (
	"github.com/ChuLiYu/mission-planner/internal/session"
	"github.com/ChuLiYu/mission-planner/pkg/types"
)

// Event 觸發狀態轉換的事件
type Event string

const (
	EventApprove        Event = "approve"
	EventStartExecution Event = "start_execution"
	EventComplete       Event = "complete"
	EventCancel         Event = "cancel"
	EventSuspend        Event = "suspend"
)

// eventInitiate 只用於指標與事件流，不是狀態機事件
const eventInitiate = "initiate"

// 每個狀態合法的下一步事件；終止狀態沒有項目
var availableEvents = map[session.State][]Event{
	session.StatePlanning:  {EventApprove, EventCancel},
	session.StateApproved:  {EventStartExecution, EventCancel},
	session.StateExecuting: {EventComplete, EventCancel, EventSuspend},
}

// TransitionResult 單次轉換的結果，同步回傳給呼叫端，不保存
type TransitionResult struct {
	Successful    bool          `json:"successful"`
	PreviousState session.State `json:"previous_state"`
	NewState      session.State `json:"new_state"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	Metadata      types.Values  `json:"metadata"`
}
