package pipeline

import "fmt"

// State 是一次发布流程所处的阶段
// 流程严格线性推进，任何阶段都可能转入 Failed，同一次运行中不会回到之前的阶段
type State int

const (
	StateIdle State = iota
	StateCrawling
	StateCanonicalizing
	StateMerging
	StateSerializing
	StatePublishing
	StateVerifying
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateCrawling:       "crawling",
	StateCanonicalizing: "canonicalizing",
	StateMerging:        "merging",
	StateSerializing:    "serializing",
	StatePublishing:     "publishing",
	StateVerifying:      "verifying",
	StateDone:           "done",
	StateFailed:         "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal 表示运行已经结束
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StageError 是 Failed(reason) 的载体：在哪个阶段失败，以及原因
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
