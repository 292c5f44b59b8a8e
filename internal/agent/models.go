// internal/agent/models.go
package agent

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/xkilldash9x/deskpilot/internal/action"
)

// ActionResult is the outcome of executing one action. It is folded into
// history on the next step and never mutated afterwards.
type ActionResult struct {
	IsDone    bool      `json:"is_done,omitempty"`
	Success   bool      `json:"success,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorCode ErrorCode `json:"error_code,omitempty"`
	// LongTermMemory is the human-readable summary kept in history.
	LongTermMemory string `json:"long_term_memory,omitempty"`
	// ExtractedContent is shown to the model once when IncludeOnce is set.
	ExtractedContent string   `json:"extracted_content,omitempty"`
	IncludeOnce      bool     `json:"include_once,omitempty"`
	Attachments      []string `json:"attachments,omitempty"`
}

// Failed reports whether the action produced an error.
func (r ActionResult) Failed() bool { return r.Error != "" }

func failure(code ErrorCode, msg string) ActionResult {
	return ActionResult{Error: msg, ErrorCode: code}
}

func memory(msg string) ActionResult {
	return ActionResult{LongTermMemory: msg}
}

// StepInfo locates the current step within the run.
type StepInfo struct {
	Number   int
	MaxSteps int
}

// IsLastStep reports whether this is the final allowed step.
func (s StepInfo) IsLastStep() bool { return s.Number >= s.MaxSteps-1 }

// HistoryItem is one entry of the agent history block. Error and
// SystemMessage items replace the regular fields when set.
type HistoryItem struct {
	StepNumber    int
	Evaluation    string
	Memory        string
	NextGoal      string
	ActionResults string
	Error         string
	SystemMessage string
}

// PromptString renders the item as a <step_N> block.
func (h HistoryItem) PromptString() string {
	tag := "step_" + strconv.Itoa(h.StepNumber)

	var content string
	switch {
	case h.Error != "":
		content = h.Error
	case h.SystemMessage != "":
		content = h.SystemMessage
	default:
		var parts []string
		if h.Evaluation != "" {
			parts = append(parts, "Evaluation of Previous Step: "+h.Evaluation)
		}
		if h.Memory != "" {
			parts = append(parts, "Memory: "+h.Memory)
		}
		if h.NextGoal != "" {
			parts = append(parts, "Next Goal: "+h.NextGoal)
		}
		if h.ActionResults != "" {
			parts = append(parts, h.ActionResults)
		}
		content = strings.Join(parts, "\n")
	}
	return "<" + tag + ">\n" + content + "\n</" + tag + ">"
}

// State is the agent state shared with supervisors. Only the loop writes the
// step, task and output fields; anyone may set the stop flag.
type State struct {
	stopped atomic.Bool

	mu                  sync.RWMutex
	runID               string
	steps               int
	task                string
	consecutiveFailures int
	lastOutput          *action.AgentOutput
	lastResults         []ActionResult
}

// NewState returns an idle state.
func NewState() *State {
	s := &State{}
	s.stopped.Store(true)
	return s
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	RunID               string
	Stopped             bool
	Steps               int
	Task                string
	ConsecutiveFailures int
	LastOutput          *action.AgentOutput
	LastResults         []ActionResult
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		RunID:               s.runID,
		Stopped:             s.stopped.Load(),
		Steps:               s.steps,
		Task:                s.task,
		ConsecutiveFailures: s.consecutiveFailures,
		LastOutput:          s.lastOutput,
		LastResults:         append([]ActionResult(nil), s.lastResults...),
	}
}

// Stopped reports whether the loop is idle or asked to stop.
func (s *State) Stopped() bool { return s.stopped.Load() }

// Task returns the current task text.
func (s *State) Task() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.task
}

func (s *State) requestStop() { s.stopped.Store(true) }

func (s *State) reset(runID, task string) {
	s.mu.Lock()
	s.runID = runID
	s.steps = 0
	s.task = task
	s.consecutiveFailures = 0
	s.lastOutput = nil
	s.lastResults = nil
	s.mu.Unlock()
	s.stopped.Store(false)
}

func (s *State) stepCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.steps
}

// recordFailure returns the new consecutive failure count.
func (s *State) recordFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures++
	return s.consecutiveFailures
}

func (s *State) recordOutput(out *action.AgentOutput) {
	s.mu.Lock()
	s.consecutiveFailures = 0
	s.lastOutput = out
	s.mu.Unlock()
}

func (s *State) recordResults(results []ActionResult) {
	s.mu.Lock()
	s.lastResults = results
	s.steps++
	s.mu.Unlock()
}
