package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/idilsaglam/recipebox/internal/docstore"
	"github.com/idilsaglam/recipebox/internal/identity"
	"github.com/idilsaglam/recipebox/internal/model"
	"github.com/idilsaglam/recipebox/internal/session"
)

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// exec runs cmd, giving up on commands that only fire later (ticks, blinks).
func exec(cmd tea.Cmd) tea.Msg {
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		return nil
	}
}

// drive runs controller commands and feeds their results back, the way the
// program loop would.
func drive(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	switch msg := exec(cmd).(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			m = drive(t, m, c)
		}
		return m
	case opDoneMsg, resumeMsg:
		next, c := m.Update(msg)
		return drive(t, next.(Model), c)
	}
	return m
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		next, cmd := m.Update(keyMsg(k))
		m = drive(t, next.(Model), cmd)
	}
	return m
}

func seededStore() *docstore.MemoryStore {
	s := docstore.NewMemoryStore()
	s.Put(model.KindRecipe, "r1", model.Data{Name: "Soup", Description: "hot", CreatedBy: "u1", Ingredients: []string{"i1", "i2"}})
	s.Put(model.KindRecipe, "r2", model.Data{Name: "Stew", CreatedBy: "u2"})
	s.Put(model.KindIngredient, "i1", model.Data{Name: "Leek", CreatedBy: "u1"})
	s.Put(model.KindIngredient, "i2", model.Data{Name: "Salt", CreatedBy: "u1"})
	return s
}

func newTestModel(t *testing.T, store docstore.Store) Model {
	t.Helper()
	ctrl := session.New(store, identity.NewStaticProvider("u1", "Cook"), session.Options{})
	m := New(context.Background(), ctrl, Options{})
	t.Cleanup(m.Close)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return drive(t, next.(Model), m.resume())
}

func TestResumeFetchesOwnItems(t *testing.T) {
	m := newTestModel(t, seededStore())
	if !m.state.SignedIn() {
		t.Fatalf("expected resumed user")
	}
	if n := len(m.list.Items()); n != 1 {
		t.Fatalf("expected 1 item, got %d", n)
	}
	view := m.View()
	if !strings.Contains(view, "Soup") || strings.Contains(view, "Stew") {
		t.Fatalf("unexpected view:\n%s", view)
	}
	if m.pending != 0 {
		t.Fatalf("pending ops should be settled, got %d", m.pending)
	}
}

func TestOpenShowsIngredientsAndEscReturns(t *testing.T) {
	m := newTestModel(t, seededStore())

	m = press(t, m, "enter")
	if m.state.Selection == nil || m.state.Selection.ID != "r1" {
		t.Fatalf("expected r1 open, got %+v", m.state.Selection)
	}
	if len(m.state.Ingredients) != 2 {
		t.Fatalf("expected 2 ingredients, got %d", len(m.state.Ingredients))
	}
	view := m.View()
	for _, want := range []string{"Ingredients", "Leek", "Salt", "2/2"} {
		if !strings.Contains(view, want) {
			t.Fatalf("detail view missing %q:\n%s", want, view)
		}
	}

	m = press(t, m, "esc")
	if m.state.Selection != nil || len(m.list.Items()) != 1 {
		t.Fatalf("expected list back, got selection=%v items=%d", m.state.Selection, len(m.list.Items()))
	}
}

func TestAddCreatesRecipe(t *testing.T) {
	store := seededStore()
	m := newTestModel(t, store)

	m = press(t, m, "a", "Pie", "enter", "sweet", "enter", "i1, i2", "enter")
	if m.mode != modeBrowse {
		t.Fatalf("form should close after the last step")
	}
	var found *model.Item
	for _, li := range m.list.Items() {
		it := li.(listItem).item
		if it.Data.Name == "Pie" {
			found = &it
		}
	}
	if found == nil {
		t.Fatalf("created item not listed")
	}
	if found.Data.Description != "sweet" || len(found.Data.Ingredients) != 2 || found.Data.CreatedBy != "u1" {
		t.Fatalf("unexpected created item: %+v", found.Data)
	}
	if !strings.Contains(m.View(), "created Pie") {
		t.Fatalf("expected success notice")
	}
}

func TestAddRejectsEmptyName(t *testing.T) {
	m := newTestModel(t, seededStore())
	m = press(t, m, "a", "enter")
	if m.mode != modeCreate || m.inputErr == "" {
		t.Fatalf("expected validation error, mode=%v err=%q", m.mode, m.inputErr)
	}
	m = press(t, m, "esc")
	if m.mode != modeBrowse {
		t.Fatalf("esc should cancel the form")
	}
}

func TestDeleteRemovesHighlighted(t *testing.T) {
	store := seededStore()
	m := newTestModel(t, store)
	m = press(t, m, "d")
	if len(m.list.Items()) != 0 {
		t.Fatalf("expected empty list, got %d", len(m.list.Items()))
	}
	if _, err := store.Get(context.Background(), model.KindRecipe, "r1"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected r1 deleted, got %v", err)
	}
	if !strings.Contains(m.View(), "No recipes yet") {
		t.Fatalf("expected empty-list message:\n%s", m.View())
	}
}

func TestTabSwitchesKind(t *testing.T) {
	m := newTestModel(t, seededStore())
	m = press(t, m, "tab")
	if m.kind != model.KindIngredient || len(m.list.Items()) != 2 {
		t.Fatalf("expected ingredients, got kind=%v items=%d", m.kind, len(m.list.Items()))
	}
}

type brokenStore struct{ *docstore.MemoryStore }

func (brokenStore) List(context.Context, model.Kind) ([]model.Item, error) {
	return nil, errors.New("connection refused")
}

func TestRemoteFailureRendersDistinctly(t *testing.T) {
	m := newTestModel(t, brokenStore{docstore.NewMemoryStore()})
	view := m.View()
	if !strings.Contains(view, "remote failure") || !strings.Contains(view, "connection refused") {
		t.Fatalf("expected error state:\n%s", view)
	}
	if strings.Contains(view, "No recipes yet") {
		t.Fatalf("an error must not look like an empty list:\n%s", view)
	}
}

func TestSignOutClearsView(t *testing.T) {
	m := newTestModel(t, seededStore())
	m = press(t, m, "o")
	if m.state.SignedIn() || len(m.list.Items()) != 0 {
		t.Fatalf("expected signed out and empty list")
	}
	if !strings.Contains(m.View(), "Not signed in") {
		t.Fatalf("unexpected view:\n%s", m.View())
	}
}

func TestOlderStateIsIgnored(t *testing.T) {
	m := newTestModel(t, seededStore())
	before := m.state.Version
	next, _ := m.Update(stateMsg(session.State{Version: before - 1}))
	m = next.(Model)
	if m.state.Version != before || len(m.list.Items()) != 1 {
		t.Fatalf("older snapshot must not replace newer state")
	}
}

func TestPromptIsShown(t *testing.T) {
	m := newTestModel(t, seededStore())
	next, _ := m.Update(promptMsg{AuthURL: "http://127.0.0.1:8420/login/authorize?state=x"})
	m = next.(Model)
	if !strings.Contains(m.View(), "login/authorize?state=x") {
		t.Fatalf("expected sign-in URL in view")
	}
}

func TestQuit(t *testing.T) {
	m := newTestModel(t, seededStore())
	_, cmd := m.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}
