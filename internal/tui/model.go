package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"placementqa/internal/service"
)

// AskPort is the TUI-facing subset of the answer service.
type AskPort interface {
	Ask(ctx context.Context, question, model string) service.Answer
}

type exchange struct {
	question string
	answer   service.Answer
}

type answerMsg struct {
	exchange
}

// SummaryMsg replaces the dataset overview shown under the header.
type SummaryMsg string

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	service  AskPort
	models   []string
	model    int
	input    textinput.Model
	viewport viewport.Model
	history  []exchange
	cursor   int
	summary  string
	status   string
	pending  bool
	ready    bool
}

// New creates a new TUI model. models lists the selectable model names;
// the first is active initially.
func New(svc AskPort, summary string, models ...string) Model {
	if len(models) == 0 {
		models = []string{"fast"}
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the placement data and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  svc,
		models:   models,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Ready. tab switches model, up/down browse history.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// ActiveModel returns the model name questions are sent with.
func (m Model) ActiveModel() string { return m.models[m.model] }

func (m Model) ask(question, model string) tea.Cmd {
	return func() tea.Msg {
		ans := m.service.Ask(context.Background(), question, model)
		return answerMsg{exchange{question: question, answer: ans}}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + summary, status, spacer
		vh := max(3, msg.Height-reserved)
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case SummaryMsg:
		m.summary = string(msg)
		return m, nil
	case answerMsg:
		m.pending = false
		m.history = append(m.history, msg.exchange)
		m.cursor = len(m.history) - 1
		m.status = statusLine(msg.answer)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.pending = true
			m.input.SetValue("")
			m.status = fmt.Sprintf("Answering with %s model...", m.ActiveModel())
			return m, m.ask(q, m.ActiveModel())
		case "tab":
			m.model = (m.model + 1) % len(m.models)
			m.status = fmt.Sprintf("Model: %s", m.ActiveModel())
			return m, nil
		case "up":
			if len(m.history) > 0 {
				m.cursor = (m.cursor - 1 + len(m.history)) % len(m.history)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "down":
			if len(m.history) > 0 {
				m.cursor = (m.cursor + 1) % len(m.history)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Placement Q&A") +
		lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("  ["+m.ActiveModel()+"]")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	if len(m.history) == 0 {
		return "No questions yet."
	}
	ex := m.history[m.cursor]
	title := fmt.Sprintf("Q %d/%d  %s", m.cursor+1, len(m.history), ex.question)
	body := ex.answer.Text
	if ex.answer.Source == service.SourceSemantic {
		body = highlightBestPassage(body, ex.question)
	}
	return title + "\n\n" + body
}

func statusLine(a service.Answer) string {
	switch a.Source {
	case service.SourceSemantic:
		return fmt.Sprintf("source: semantic (%s, score=%.3f)", a.Model, a.Score)
	case service.SourceNotFound, service.SourceError:
		if a.Model != "" {
			return fmt.Sprintf("source: %s (%s)", a.Source, a.Model)
		}
	}
	return "source: " + string(a.Source)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	wordRe         = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

// highlightBestPassage emphasises the passage of text sharing the most words
// with the question.
func highlightBestPassage(text, question string) string {
	passages := strings.Split(text, "\n\n")
	qTokens := toTokenSet(question)
	if len(qTokens) == 0 || len(passages) < 2 {
		return text
	}
	bestIdx, bestScore := 0, -1
	for i, p := range passages {
		if score := tokenOverlapScore(qTokens, p); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	passages[bestIdx] = highlightStyle.Render(passages[bestIdx])
	return strings.Join(passages, "\n\n")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, passage string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range wordRe.FindAllString(strings.ToLower(passage), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
