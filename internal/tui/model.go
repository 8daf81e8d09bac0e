// Package tui is the interactive recipebox view: a list of item cards, a
// detail panel for the open item and an inline create form. Every action
// runs as a controller operation off the UI goroutine.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/idilsaglam/recipebox/internal/identity"
	"github.com/idilsaglam/recipebox/internal/logging"
	"github.com/idilsaglam/recipebox/internal/model"
	"github.com/idilsaglam/recipebox/internal/session"
	"github.com/idilsaglam/recipebox/internal/ui"
)

type Options struct {
	// Kind is the list shown first; recipes when unset.
	Kind model.Kind
	// Prompts carries sign-in URLs from the identity provider, since the
	// provider cannot print while the TUI owns the terminal.
	Prompts <-chan identity.LoginPrompt
	Logger  *log.Logger
}

type (
	stateMsg  session.State
	promptMsg identity.LoginPrompt
	resumeMsg struct {
		ok    bool
		state session.State
	}
	opDoneMsg struct {
		op    string
		err   error
		state session.State
	}
)

// listItem adapts model.Item to bubbles/list.Item.
type listItem struct{ item model.Item }

func (i listItem) Title() string       { return i.item.Data.Name }
func (i listItem) Description() string { return i.item.Data.Description }
func (i listItem) FilterValue() string { return i.item.Data.Name }

// itemDelegate renders each item as a two-line card.
type itemDelegate struct{}

func (d itemDelegate) Height() int                             { return 2 }
func (d itemDelegate) Spacing() int                            { return 1 }
func (d itemDelegate) Update(tea.Msg, *list.Model) tea.Cmd     { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, li list.Item) {
	it, ok := li.(listItem)
	if !ok {
		return
	}
	sym := symRecipe
	if it.item.Kind == model.KindIngredient {
		sym = symIngredient
	}
	prefix := "  "
	name := titleStyle.Render(it.item.Data.Name)
	if index == m.Index() {
		prefix = selectedStyle.Render(">") + " "
	}
	sub := it.item.Data.Description
	if n := len(it.item.Data.Ingredients); n > 0 {
		if sub != "" {
			sub += " · "
		}
		sub += fmt.Sprintf("%d ingredients", n)
	}
	if sub == "" {
		sub = it.item.ID
	}
	fmt.Fprintf(w, "%s%s %s\n    %s", prefix, accentStyle.Render(sym), name, mutedStyle.Render(sub))
}

type mode int

const (
	modeBrowse mode = iota
	modeCreate
)

type Model struct {
	ctrl *session.Controller
	ctx  context.Context
	log  *log.Logger
	keys keyMap

	list  list.Model
	spin  spinner.Model
	input textinput.Model
	help  help.Model

	state    session.State
	kind     model.Kind
	pending  int
	activity string
	notice   string

	mode     mode
	draft    []string
	inputErr string

	prompt *identity.LoginPrompt

	sub     <-chan session.State
	unsub   func()
	prompts <-chan identity.LoginPrompt
}

func New(ctx context.Context, ctrl *session.Controller, opt Options) Model {
	if opt.Kind == 0 {
		opt.Kind = model.KindRecipe
	}
	if opt.Logger == nil {
		opt.Logger = logging.Discard()
	}
	keys := defaultKeys()

	l := list.New(nil, itemDelegate{}, 80, 20)
	l.SetShowTitle(false)
	l.SetShowHelp(true)
	l.SetShowPagination(true)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.HelpStyle = helpStyle
	l.Styles.PaginationStyle = helpStyle
	l.FilterInput.Prompt = "/ "
	l.SetStatusBarItemName("item", "items")
	l.AdditionalShortHelpKeys = keys.listKeys
	l.AdditionalFullHelpKeys = keys.listKeys
	// q and esc belong to this model, not the list.
	l.KeyMap.Quit.SetEnabled(false)

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 200
	ti.Cursor.SetMode(cursor.CursorStatic)

	sub, unsub := ctrl.Subscribe()
	m := Model{
		ctrl:    ctrl,
		ctx:     ctx,
		log:     opt.Logger,
		keys:    keys,
		list:    l,
		spin:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		input:   ti,
		help:    help.New(),
		kind:    opt.Kind,
		sub:     sub,
		unsub:   unsub,
		prompts: opt.Prompts,
	}
	return m
}

// Close stops the state subscription.
func (m Model) Close() {
	if m.unsub != nil {
		m.unsub()
	}
}

// Run starts the program and blocks until the user quits.
func Run(ctx context.Context, ctrl *session.Controller, opt Options) error {
	m := New(ctx, ctrl, opt)
	defer m.Close()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.resume(), m.waitForState(), m.waitForPrompt())
}

func (m Model) waitForState() tea.Cmd {
	sub := m.sub
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		st, ok := <-sub
		if !ok {
			return nil
		}
		return stateMsg(st)
	}
}

func (m Model) waitForPrompt() tea.Cmd {
	prompts := m.prompts
	if prompts == nil {
		return nil
	}
	return func() tea.Msg {
		lp, ok := <-prompts
		if !ok {
			return nil
		}
		return promptMsg(lp)
	}
}

func (m Model) resume() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		_, ok := ctrl.Resume(ctx)
		return resumeMsg{ok: ok, state: ctrl.Snapshot()}
	}
}

// run executes fn as a tea.Cmd and reports back with opDoneMsg.
func (m *Model) run(activity string, fn func(context.Context, *session.Controller) error) tea.Cmd {
	m.pending++
	m.activity = activity
	m.notice = ""
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		err := fn(ctx, ctrl)
		return opDoneMsg{op: activity, err: err, state: ctrl.Snapshot()}
	}
}

func (m *Model) fetch(kind model.Kind) tea.Cmd {
	m.kind = kind
	return m.run("fetching "+kind.Collection(), func(ctx context.Context, c *session.Controller) error {
		_, err := c.FetchItems(ctx, kind)
		return err
	})
}

// applyState adopts st unless a newer snapshot is already shown.
func (m *Model) applyState(st session.State) tea.Cmd {
	if st.Version < m.state.Version {
		return nil
	}
	m.state = st
	if st.Kind.Valid() {
		m.kind = st.Kind
	}
	if st.User != nil {
		m.prompt = nil
	}
	items := make([]list.Item, 0, len(st.Items))
	for _, it := range st.Items {
		items = append(items, listItem{item: it})
	}
	return m.list.SetItems(items)
}

func (m Model) title() string {
	var tabs []string
	for _, k := range model.Kinds {
		label := strings.ToUpper(k.Collection()[:1]) + k.Collection()[1:]
		if k == m.kind {
			tabs = append(tabs, activeTab.Render(label))
		} else {
			tabs = append(tabs, inactiveTab.Render(label))
		}
	}
	return titleStyle.Render("recipebox") + "  " + strings.Join(tabs, "  ")
}

func (m Model) selected() (model.Item, bool) {
	if li, ok := m.list.SelectedItem().(listItem); ok {
		return li.item, true
	}
	return model.Item{}, false
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(max(msg.Width-4, 20), max(msg.Height-8, 5))
		m.help.Width = msg.Width
		return m, nil

	case stateMsg:
		cmd := m.applyState(session.State(msg))
		return m, tea.Batch(cmd, m.waitForState())

	case promptMsg:
		lp := identity.LoginPrompt(msg)
		m.prompt = &lp
		return m, m.waitForPrompt()

	case resumeMsg:
		cmd := m.applyState(msg.state)
		if !msg.ok {
			return m, cmd
		}
		return m, tea.Batch(cmd, m.fetch(m.kind))

	case opDoneMsg:
		m.pending--
		cmd := m.applyState(msg.state)
		var oe *session.OpError
		switch {
		case errors.Is(msg.err, session.ErrSuperseded):
		case msg.err != nil:
			m.log.Debug("operation failed", "op", msg.op, "err", msg.err)
			// Errors recorded in state are already rendered.
			if !errors.As(msg.err, &oe) || msg.state.Err != oe {
				m.notice = errorStyle.Render("✖ " + msg.err.Error())
			}
		case strings.HasPrefix(msg.op, "creating "), strings.HasPrefix(msg.op, "deleting "):
			m.notice = successStyle.Render("✔ " + strings.Replace(msg.op, "ing ", "ed ", 1))
		}
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.mode == modeCreate {
			return m.updateCreate(msg)
		}
		if m.list.FilterState() == list.Filtering {
			break
		}
		if m.state.Selection != nil {
			return m.updateDetail(msg)
		}
		if next, cmd, handled := m.updateBrowse(msg); handled {
			return next, cmd
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit, true
	case key.Matches(msg, m.keys.SignIn):
		cmd := m.run("signing in", func(ctx context.Context, c *session.Controller) error {
			_, err := c.SignIn(ctx)
			return err
		})
		return m, cmd, true
	case key.Matches(msg, m.keys.SignOut):
		return m, m.run("signing out", func(ctx context.Context, c *session.Controller) error {
			return c.SignOut(ctx)
		}), true
	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetch(m.kind), true
	case key.Matches(msg, m.keys.SwitchKind):
		next := model.KindIngredient
		if m.kind == model.KindIngredient {
			next = model.KindRecipe
		}
		return m, m.fetch(next), true
	case key.Matches(msg, m.keys.Cached):
		kind := m.kind
		return m, m.run("loading cached "+kind.Collection(), func(_ context.Context, c *session.Controller) error {
			_, err := c.RetrieveCached(kind)
			return err
		}), true
	case key.Matches(msg, m.keys.Open):
		it, ok := m.selected()
		if !ok {
			return m, nil, true
		}
		return m, m.run("opening "+it.Data.Name, func(ctx context.Context, c *session.Controller) error {
			_, err := c.SelectItem(ctx, it.ID, it.Kind)
			return err
		}), true
	case key.Matches(msg, m.keys.Delete):
		it, ok := m.selected()
		if !ok {
			return m, nil, true
		}
		return m, m.deleteCmd(it), true
	case key.Matches(msg, m.keys.Add):
		m.mode = modeCreate
		m.draft = nil
		m.inputErr = ""
		m.input.SetValue("")
		m.input.Placeholder = "Name"
		return m, m.input.Focus(), true
	case key.Matches(msg, m.keys.Back):
		// esc clears an applied filter; otherwise it does nothing here.
		return m, nil, m.list.FilterState() != list.FilterApplied
	}
	return m, nil, false
}

func (m Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Back):
		m.ctrl.CloseSelection()
		return m, m.fetch(m.kind)
	case key.Matches(msg, m.keys.Delete):
		return m, m.deleteCmd(*m.state.Selection)
	case key.Matches(msg, m.keys.SignOut):
		return m, m.run("signing out", func(ctx context.Context, c *session.Controller) error {
			return c.SignOut(ctx)
		})
	}
	return m, nil
}

func (m *Model) deleteCmd(it model.Item) tea.Cmd {
	return m.run("deleting "+it.Data.Name, func(ctx context.Context, c *session.Controller) error {
		return c.DeleteItem(ctx, it.ID, it.Kind)
	})
}

// createSteps are the prompts of the inline form; only recipes reference ingredients.
func (m Model) createSteps() []string {
	if m.kind == model.KindRecipe {
		return []string{"Name", "Description", "Ingredient ids, comma separated"}
	}
	return []string{"Name", "Description"}
}

func (m Model) updateCreate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeBrowse
		m.input.Blur()
		m.input.SetValue("")
		return m, nil
	case tea.KeyEnter:
		val := strings.TrimSpace(m.input.Value())
		if len(m.draft) == 0 && val == "" {
			m.inputErr = "Name cannot be empty"
			return m, nil
		}
		m.inputErr = ""
		m.draft = append(m.draft, val)
		m.input.SetValue("")
		steps := m.createSteps()
		if len(m.draft) < len(steps) {
			m.input.Placeholder = steps[len(m.draft)]
			return m, nil
		}
		m.mode = modeBrowse
		m.input.Blur()
		kind, name, desc := m.kind, m.draft[0], m.draft[1]
		var refs []string
		if len(m.draft) > 2 {
			for _, r := range strings.Split(m.draft[2], ",") {
				if r = strings.TrimSpace(r); r != "" {
					refs = append(refs, r)
				}
			}
		}
		return m, m.run("creating "+name, func(ctx context.Context, c *session.Controller) error {
			_, err := c.CreateItem(ctx, kind, name, desc, refs...)
			return err
		})
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.headerLine())
	b.WriteString("\n")
	if line := m.statusLine(); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if m.state.Err != nil {
		b.WriteString(errorStyle.Render("✖ " + m.state.Err.Error()))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case m.state.Selection != nil:
		b.WriteString(m.detailView())
	case !m.state.SignedIn():
		b.WriteString(mutedStyle.Render("Not signed in. Press i to sign in, q to quit."))
	case len(m.state.Items) == 0 && m.state.Err == nil:
		b.WriteString(mutedStyle.Render(fmt.Sprintf("No %s yet. Press a to add one, r to fetch.", m.kind.Collection())))
	default:
		b.WriteString(m.list.View())
	}

	if m.mode == modeCreate {
		steps := m.createSteps()
		label := fmt.Sprintf("New %s · %s", m.kind, steps[min(len(m.draft), len(steps)-1)])
		if m.inputErr != "" {
			label += "  " + errorStyle.Render(m.inputErr)
		}
		bar := frameStyle.Render(label + "\n" + m.input.View())
		b.WriteString("\n" + bar)
	}
	return frameStyle.Render(b.String())
}

func (m Model) headerLine() string {
	user := mutedStyle.Render("signed out")
	if m.state.User != nil {
		user = accentStyle.Render(m.state.User.Label())
	}
	return m.title() + "   " + user
}

func (m Model) statusLine() string {
	var parts []string
	if m.pending > 0 {
		parts = append(parts, m.spin.View()+" "+m.activity+"...")
	}
	if m.prompt != nil {
		parts = append(parts, "Open to sign in: "+accentStyle.Render(m.prompt.AuthURL))
	}
	if m.state.Source == session.SourceCache {
		src := "from cache, verified " + m.state.CachedAt.Local().Format(time.DateTime)
		if m.state.Stale {
			src = pendingStyle.Render(src + " (stale)")
		} else {
			src = mutedStyle.Render(src)
		}
		parts = append(parts, src)
	}
	if m.notice != "" {
		parts = append(parts, m.notice)
	}
	return strings.Join(parts, "  ")
}

func (m Model) detailView() string {
	sel := *m.state.Selection
	lines := []string{
		titleStyle.Render(sel.Data.Name),
		mutedStyle.Render(sel.Key() + "  by " + sel.Data.CreatedBy),
	}
	if d := strings.TrimSpace(sel.Data.Description); d != "" {
		lines = append(lines, "", d)
	}
	if refs := len(sel.Data.Ingredients); refs > 0 {
		head := accentStyle.Render("Ingredients") + "  " + mutedStyle.Render(ui.ProgressBar(len(m.state.Ingredients), refs, 12))
		if m.state.Resolving {
			head += " " + m.spin.View()
		}
		lines = append(lines, "", head)
		for _, ing := range m.state.Ingredients {
			lines = append(lines, "  • "+ing.Data.Name+"  "+mutedStyle.Render(ing.ID))
		}
	}
	body := lipgloss.JoinVertical(lipgloss.Left, lines...)
	return frameStyle.Render(body) + "\n" + m.help.View(detailKeys(m.keys))
}
