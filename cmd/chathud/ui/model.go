package ui

import (
	"context"
	"fmt"
	"strings"

	"chathud/internal/dispatch"
	"chathud/internal/hud"
	"chathud/internal/logging"
	"chathud/internal/protocol"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Pipeline is the scrape side of the overlay. *dispatch.Service implements
// it.
type Pipeline interface {
	Scrape(ctx context.Context, site string) (dispatch.ScrapeReport, error)
	CheckSchemas(ctx context.Context) (protocol.SchemaReport, []dispatch.Notice, error)
	Grab(ctx context.Context) (protocol.PageContent, []dispatch.Notice, error)
}

// Options configures a Model.
type Options struct {
	Context        context.Context
	Pipeline       Pipeline
	Cache          *hud.Cache
	Sites          []dispatch.Site
	ToggleKey      string
	MaxSuggestions int
	Theme          string
	CheckOnStart   bool
}

const maxNotices = 6

type (
	scrapeDoneMsg struct {
		site   string
		report dispatch.ScrapeReport
		err    error
	}
	schemaDoneMsg struct {
		report  protocol.SchemaReport
		notices []dispatch.Notice
		err     error
	}
	grabDoneMsg struct {
		page    protocol.PageContent
		notices []dispatch.Notice
		err     error
	}
	reloadedMsg struct{ err error }
)

// StoreChangedMsg tells the model the database was written by another
// process. The hud command sends it from a store watcher.
type StoreChangedMsg struct{}

// Model is the overlay's bubbletea model.
type Model struct {
	ctx      context.Context
	pipeline Pipeline
	cache    *hud.Cache
	ctl      *hud.Controller
	sites    []dispatch.Site

	input   textinput.Model
	help    help.Model
	keys    KeyMap
	styles  Styles
	cursor  int
	maxRows int

	notices      []dispatch.Notice
	pending      int
	checkOnStart bool
	initialized  bool
	lastPage     protocol.PageContent

	accepted string
	quitting bool
	width    int
}

// NewModel creates the overlay model. The overlay starts hidden.
func NewModel(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ti := textinput.New()
	ti.Placeholder = "Type a prompt..."
	ti.Prompt = "❯ "
	ti.Focus()

	rows := opts.MaxSuggestions
	if rows <= 0 {
		rows = 8
	}
	toggle := opts.ToggleKey
	if toggle == "" {
		toggle = "ctrl+@"
	}

	styles := NewStyles(ThemeFor(opts.Theme))
	ti.PromptStyle = styles.Prompt

	return Model{
		ctx:          ctx,
		pipeline:     opts.Pipeline,
		cache:        opts.Cache,
		ctl:          hud.NewController(opts.Cache),
		sites:        opts.Sites,
		input:        ti,
		help:         help.New(),
		keys:         NewKeyMap(toggle, opts.Sites),
		styles:       styles,
		maxRows:      rows,
		checkOnStart: opts.CheckOnStart,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.reload()}
	if m.checkOnStart {
		cmds = append(cmds, m.checkSchemas())
	}
	return tea.Batch(cmds...)
}

// Accepted returns the input line when the user confirmed it with enter
// while the overlay was hidden, or "" if they quit.
func (m Model) Accepted() string {
	return m.accepted
}

// Notices returns the current status lines, oldest first.
func (m Model) Notices() []dispatch.Notice {
	return m.notices
}

// Controller exposes the overlay state.
func (m Model) Controller() *hud.Controller {
	return m.ctl
}

// Value returns the input line.
func (m Model) Value() string {
	return m.input.Value()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-4, 10)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case scrapeDoneMsg:
		m.pending--
		m = m.pushNotices(msg.report.Notices...)
		m.ctl.Refresh()
		m.clampCursor()
		return m, nil

	case schemaDoneMsg:
		m.pending--
		m = m.pushNotices(msg.notices...)
		return m, nil

	case grabDoneMsg:
		m.pending--
		if msg.err == nil {
			m.lastPage = msg.page
			logging.Get(logging.CategoryDispatch).Info("page content %s:\n%s", msg.page.URL, msg.page.HTML)
		}
		m = m.pushNotices(msg.notices...)
		return m, nil

	case StoreChangedMsg:
		return m, m.reload()

	case reloadedMsg:
		if msg.err != nil {
			logging.Get(logging.CategoryHUD).Warn("cache reload: %v", msg.err)
			if !m.initialized {
				m = m.pushNotices(dispatch.Notice{Level: dispatch.LevelError, Text: "Database error: " + msg.err.Error()})
			}
			return m, nil
		}
		m.ctl.Refresh()
		m.clampCursor()
		if !m.initialized {
			m.initialized = true
			m = m.pushNotices(dispatch.Notice{Level: dispatch.LevelSuccess, Text: "System initialized."})
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Toggle):
		m.ctl.SetQuery(m.input.Value())
		m.ctl.Toggle()
		m.cursor = 0
		return m, nil

	case key.Matches(msg, m.keys.Check):
		return m.startCheck()

	case key.Matches(msg, m.keys.Grab):
		m.pending++
		return m, m.grab()
	}

	for i, b := range m.keys.Scrapes {
		if key.Matches(msg, b) {
			m.pending++
			return m, m.scrape(m.sites[i].Name)
		}
	}

	if m.ctl.Visible() {
		switch {
		case key.Matches(msg, m.keys.Close):
			m.ctl.Escape()
			return m, nil
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.ctl.Suggestions())-1 {
				m.cursor++
			}
			return m, nil
		case key.Matches(msg, m.keys.Select):
			if text, ok := m.ctl.Select(m.cursor); ok {
				m.input.SetValue(text)
				m.input.CursorEnd()
				m.cursor = 0
			}
			return m, nil
		}
	} else if key.Matches(msg, m.keys.Select) {
		m.accepted = m.input.Value()
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.ctl.SetQuery(m.input.Value())
		m.cursor = 0
	}
	return m, cmd
}

func (m Model) startCheck() (tea.Model, tea.Cmd) {
	m.pending++
	return m, m.checkSchemas()
}

func (m *Model) clampCursor() {
	if n := len(m.ctl.Suggestions()); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

func (m Model) pushNotices(ns ...dispatch.Notice) Model {
	m.notices = append(append([]dispatch.Notice(nil), m.notices...), ns...)
	if over := len(m.notices) - maxNotices; over > 0 {
		m.notices = m.notices[over:]
	}
	return m
}

func (m Model) scrape(site string) tea.Cmd {
	ctx, p := m.ctx, m.pipeline
	return func() tea.Msg {
		rep, err := p.Scrape(ctx, site)
		return scrapeDoneMsg{site: site, report: rep, err: err}
	}
}

func (m Model) checkSchemas() tea.Cmd {
	ctx, p := m.ctx, m.pipeline
	return func() tea.Msg {
		report, notices, err := p.CheckSchemas(ctx)
		return schemaDoneMsg{report: report, notices: notices, err: err}
	}
}

func (m Model) grab() tea.Cmd {
	ctx, p := m.ctx, m.pipeline
	return func() tea.Msg {
		page, notices, err := p.Grab(ctx)
		return grabDoneMsg{page: page, notices: notices, err: err}
	}
}

func (m Model) reload() tea.Cmd {
	ctx, c := m.ctx, m.cache
	return func() tea.Msg {
		return reloadedMsg{err: c.Reload(ctx)}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	header := "chathud"
	if m.pending > 0 {
		header += m.styles.Muted.Render(fmt.Sprintf("  working (%d)…", m.pending))
	}
	b.WriteString(m.styles.Header.Render(header))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	if m.ctl.Visible() {
		b.WriteString(m.renderSuggestions())
		b.WriteString("\n")
	}

	for _, n := range m.notices {
		b.WriteString(m.styles.Status(n.Level).Render(n.Text))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderSuggestions() string {
	items := m.ctl.Suggestions()
	if len(items) == 0 {
		return m.styles.Overlay.Render(m.styles.Muted.Render("no matches"))
	}

	start := 0
	if m.cursor >= m.maxRows {
		start = m.cursor - m.maxRows + 1
	}
	end := min(start+m.maxRows, len(items))

	width := m.width - 6
	if width < 20 {
		width = 72
	}
	lines := make([]string, 0, end-start+1)
	for i := start; i < end; i++ {
		text := oneLine(items[i].Text, width)
		style := m.styles.Suggestion
		if i == m.cursor {
			style = m.styles.Selected
		}
		line := style.Render(text)
		if items[i].Site != "" {
			line += " " + m.styles.Site.Render(items[i].Site)
		}
		lines = append(lines, line)
	}
	if len(items) > m.maxRows {
		lines = append(lines, m.styles.Muted.Render(fmt.Sprintf("%d/%d", m.cursor+1, len(items))))
	}
	return m.styles.Overlay.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// oneLine collapses whitespace and truncates to width runes.
func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return s
}
