// internal/agent/memory.go
package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/accessibility"
	"github.com/xkilldash9x/deskpilot/internal/action"
	"github.com/xkilldash9x/deskpilot/internal/filestore"
)

const (
	emptyTodoPlaceholder = "[Current todo.md is empty, fill it with your plan when applicable]"
	maxResultErrorRunes  = 200
	stepDateLayout       = "2006-01-02 15:04"
)

// MessageManager folds step outcomes into history and renders the prompt for
// each decision. It is owned by a single run and is not safe for concurrent use.
type MessageManager struct {
	task         string
	files        FileStore
	systemPrompt string
	maxItems     int
	maxUILength  int
	now          func() time.Time

	items     []HistoryItem
	readState string
	rendered  bool
}

// NewMessageManager seeds the history with the initialization item.
func NewMessageManager(task string, files FileStore, systemPrompt string, maxItems, maxUILength int) *MessageManager {
	if maxItems < 2 {
		maxItems = 2
	}
	return &MessageManager{
		task:         task,
		files:        files,
		systemPrompt: systemPrompt,
		maxItems:     maxItems,
		maxUILength:  maxUILength,
		now:          time.Now,
		items:        []HistoryItem{{StepNumber: 0, SystemMessage: "Agent initialized"}},
	}
}

// AddNewTask replaces the task and records the change in history.
func (m *MessageManager) AddNewTask(task string) {
	m.task = task
	m.items = append(m.items, HistoryItem{StepNumber: 0, SystemMessage: "<user_request> added: " + task})
}

// History returns a copy of the history items.
func (m *MessageManager) History() []HistoryItem {
	return append([]HistoryItem(nil), m.items...)
}

// CreateMessages records the previous step and returns the system and user
// messages for the next decision. Read-once content from lastResults is
// rendered in this prompt only.
func (m *MessageManager) CreateMessages(lastOutput *action.AgentOutput, lastResults []ActionResult, step StepInfo, screen *accessibility.ScreenAnalysis) []schemas.Message {
	m.updateHistory(lastOutput, lastResults, step)
	m.rendered = true
	return []schemas.Message{
		schemas.NewMessage(schemas.RoleSystem, m.systemPrompt),
		schemas.NewMessage(schemas.RoleUser, m.userMessage(step, screen)),
	}
}

func (m *MessageManager) updateHistory(lastOutput *action.AgentOutput, lastResults []ActionResult, step StepInfo) {
	m.readState = ""

	if lastOutput == nil {
		// Nothing to fold on the first prompt; afterwards a missing output
		// means the previous decision failed.
		if m.rendered {
			m.items = append(m.items, HistoryItem{StepNumber: step.Number, Error: "Agent failed to produce valid output."})
		}
		return
	}

	var b strings.Builder
	for i, res := range lastResults {
		if res.IncludeOnce && res.ExtractedContent != "" {
			m.readState += res.ExtractedContent + "\n"
		}
		switch {
		case res.LongTermMemory != "":
			fmt.Fprintf(&b, "Action %d: %s\n", i+1, res.LongTermMemory)
		case res.Error != "":
			fmt.Fprintf(&b, "Action %d: ERROR - %s\n", i+1, truncateRunes(res.Error, maxResultErrorRunes))
		}
	}

	m.items = append(m.items, HistoryItem{
		StepNumber:    step.Number,
		Evaluation:    lastOutput.EvaluationPreviousGoal,
		Memory:        lastOutput.Memory,
		NextGoal:      lastOutput.NextGoal,
		ActionResults: strings.TrimSuffix(b.String(), "\n"),
	})
}

// historyDescription keeps the first item and the most recent maxItems-1,
// replacing the middle with an omission marker.
func (m *MessageManager) historyDescription() string {
	if len(m.items) <= m.maxItems {
		parts := make([]string, len(m.items))
		for i, item := range m.items {
			parts[i] = item.PromptString()
		}
		return strings.Join(parts, "\n")
	}

	keep := m.maxItems - 1
	recent := m.items[len(m.items)-keep:]
	// Counts every item outside the recent window.
	omitted := len(m.items) - keep

	parts := make([]string, 0, keep+2)
	parts = append(parts, m.items[0].PromptString())
	parts = append(parts, fmt.Sprintf("<sys>[... %d previous steps omitted...]</sys>", omitted))
	for _, item := range recent {
		parts = append(parts, item.PromptString())
	}
	return strings.Join(parts, "\n")
}

func (m *MessageManager) userMessage(step StepInfo, screen *accessibility.ScreenAnalysis) string {
	var b strings.Builder

	history := m.historyDescription()
	if history == "" {
		history = "No history yet."
	}
	b.WriteString("<agent_history>\n")
	b.WriteString(history)
	b.WriteString("\n</agent_history>\n\n")

	b.WriteString("<agent_state>\n")
	b.WriteString(m.agentStateBlock(step))
	b.WriteString("\n</agent_state>\n\n")

	b.WriteString("<screen_state>\n")
	b.WriteString(m.screenStateBlock(screen))
	b.WriteString("\n</screen_state>\n\n")

	if readState := strings.TrimSpace(m.readState); readState != "" {
		b.WriteString("<read_state>\n")
		b.WriteString(readState)
		b.WriteString("\n</read_state>\n\n")
	}
	return b.String()
}

func (m *MessageManager) agentStateBlock(step StepInfo) string {
	todo, err := m.files.Read(filestore.TodoFile)
	if err != nil || strings.TrimSpace(todo) == "" {
		todo = emptyTodoPlaceholder
	}

	return fmt.Sprintf("<user_request>\n%s\n</user_request>\n"+
		"<file_system>\nPersistent storage is available at %s\n</file_system>\n"+
		"<todo_contents>\n%s\n</todo_contents>\n"+
		"<step_info>\nStep %d of %d max possible steps\nCurrent date: %s\n</step_info>",
		m.task, m.files.Root(), todo, step.Number+1, step.MaxSteps, m.now().Format(stepDateLayout))
}

func (m *MessageManager) screenStateBlock(screen *accessibility.ScreenAnalysis) string {
	appName, ui := "None", ""
	if screen != nil {
		appName, ui = screen.AppName, screen.UIRepresentation
	}

	var marker string
	if m.maxUILength > 0 {
		if cut := truncateRunes(ui, m.maxUILength); cut != ui {
			ui = cut
			marker = fmt.Sprintf(" (truncated to %d characters)", m.maxUILength)
		}
	}
	return fmt.Sprintf("Current App: %s\nVisible elements on the current screen:%s\n%s", appName, marker, ui)
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
