package agent

// Role 表示账本中一条轮次的来源。
type Role string

const (
	TurnUser        Role = "user"
	TurnPlanner     Role = "planner"
	TurnObservation Role = "observation"
)

// Turn 是账本中的一条记录。
type Turn struct {
	Role    Role
	Content string
}

// Ledger 是跨迭代状态的唯一载体：按时间顺序追加轮次，
// 不提供删除接口。需要限制内存的调用方在快照阶段做保留策略。
type Ledger struct {
	turns []Turn
}

// NewLedger 创建空账本。
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append 追加一条轮次。
func (l *Ledger) Append(role Role, content string) {
	l.turns = append(l.turns, Turn{Role: role, Content: content})
}

// Snapshot 返回全部轮次的副本。
func (l *Ledger) Snapshot() []Turn {
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Tail 返回最近 n 条轮次的副本。n <= 0 或超过长度时返回全部。
func (l *Ledger) Tail(n int) []Turn {
	if n <= 0 || n >= len(l.turns) {
		return l.Snapshot()
	}
	out := make([]Turn, n)
	copy(out, l.turns[len(l.turns)-n:])
	return out
}

// Len 返回轮次数量。
func (l *Ledger) Len() int {
	return len(l.turns)
}

// Last 返回最后一条轮次。
func (l *Ledger) Last() (Turn, bool) {
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}
