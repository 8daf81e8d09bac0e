package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/idilsaglam/recipebox/internal/apiclient"
	"github.com/idilsaglam/recipebox/internal/config"
	"github.com/idilsaglam/recipebox/internal/docstore"
	"github.com/idilsaglam/recipebox/internal/logging"
	"github.com/idilsaglam/recipebox/internal/model"
)

var codeRe = regexp.MustCompile(`<pre>([^<]+)</pre>`)

func newTestServer(t *testing.T, cfg config.Server) (*httptest.Server, *apiclient.Client) {
	t.Helper()
	srv := New(cfg, docstore.NewMemoryStore(), logging.Discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	srv.cfg.BaseURL = ts.URL
	client, err := apiclient.New(ts.URL)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return ts, client
}

func testConfig(t *testing.T) config.Server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cfg := config.DefaultServer()
	cfg.Users = []config.ServerUser{
		{ID: "u1", Email: "cook@example.com", DisplayName: "Cook", PasswordHash: string(hash)},
		{ID: "u2", Email: "baker@example.com", DisplayName: "Baker", PasswordHash: string(hash)},
	}
	return cfg
}

// signIn walks the browser flow without a callback and returns an access token.
func signIn(t *testing.T, client *apiclient.Client, email, password string) string {
	t.Helper()
	ctx := context.Background()
	var start startResponse
	if err := client.DoJSON(ctx, http.MethodPost, "/api/auth/login/start", "", startRequest{}, &start); err != nil {
		t.Fatalf("start: %v", err)
	}
	resp, err := http.PostForm(start.AuthURL, url.Values{"email": {email}, "password": {password}})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	m := codeRe.FindStringSubmatch(string(body))
	if m == nil {
		t.Fatalf("no code on page (status %d): %s", resp.StatusCode, body)
	}
	var ex exchangeResponse
	if err := client.DoJSON(ctx, http.MethodPost, "/api/auth/login/exchange", "", exchangeRequest{Code: m[1], State: start.State}, &ex); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if ex.AccessToken == "" {
		t.Fatalf("empty access token")
	}
	return ex.AccessToken
}

func TestSignInFlowAndWhoAmI(t *testing.T) {
	_, client := newTestServer(t, testConfig(t))
	tok := signIn(t, client, "cook@example.com", "s3cret")

	var user model.User
	if err := client.DoJSON(context.Background(), http.MethodGet, "/api/auth/whoami", tok, nil, &user); err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if user.ID != "u1" || user.DisplayName != "Cook" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if err := client.DoJSON(context.Background(), http.MethodPost, "/api/auth/signout", tok, nil, nil); err != nil {
		t.Fatalf("signout: %v", err)
	}
	err := client.DoJSON(context.Background(), http.MethodGet, "/api/auth/whoami", tok, nil, &user)
	if apiclient.StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 after signout, got %v", err)
	}
}

func TestAuthorizeRejectsBadPassword(t *testing.T) {
	_, client := newTestServer(t, testConfig(t))
	var start startResponse
	if err := client.DoJSON(context.Background(), http.MethodPost, "/api/auth/login/start", "", startRequest{}, &start); err != nil {
		t.Fatalf("start: %v", err)
	}
	resp, err := http.PostForm(start.AuthURL, url.Values{"email": {"cook@example.com"}, "password": {"wrong"}})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestStartRejectsNonLoopbackCallback(t *testing.T) {
	_, client := newTestServer(t, testConfig(t))
	err := client.DoJSON(context.Background(), http.MethodPost, "/api/auth/login/start", "",
		startRequest{CallbackURL: "https://evil.example.com/cb"}, nil)
	if apiclient.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestDevAutoApproveRedirectsToCallback(t *testing.T) {
	cfg := config.DefaultServer()
	cfg.DevAutoApprove = true
	_, client := newTestServer(t, cfg)

	got := make(chan url.Values, 1)
	cb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.URL.Query()
	}))
	defer cb.Close()

	var start startResponse
	if err := client.DoJSON(context.Background(), http.MethodPost, "/api/auth/login/start", "",
		startRequest{CallbackURL: cb.URL + "/callback"}, &start); err != nil {
		t.Fatalf("start: %v", err)
	}
	resp, err := http.Get(start.AuthURL)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	resp.Body.Close()

	select {
	case q := <-got:
		if q.Get("state") != start.State || !strings.HasPrefix(q.Get("code"), "rbx-code-") {
			t.Fatalf("unexpected callback query: %v", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("callback not reached")
	}
}

func TestDocumentsRequireAuth(t *testing.T) {
	_, client := newTestServer(t, testConfig(t))
	err := client.DoJSON(context.Background(), http.MethodGet, "/api/v1/recipes", "", nil, nil)
	if apiclient.StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHTTPStoreAgainstServer(t *testing.T) {
	_, client := newTestServer(t, testConfig(t))
	cookTok := signIn(t, client, "cook@example.com", "s3cret")
	bakerTok := signIn(t, client, "baker@example.com", "s3cret")

	ctx := context.Background()
	cook := docstore.NewHTTPStore(client, func(context.Context) (string, error) { return cookTok, nil })
	baker := docstore.NewHTTPStore(client, func(context.Context) (string, error) { return bakerTok, nil })

	id, err := cook.Create(ctx, model.KindRecipe, model.Data{Name: "Soup", CreatedBy: "u1", Ingredients: []string{"i1"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	it, err := cook.Get(ctx, model.KindRecipe, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if it.Kind != model.KindRecipe || it.Data.Name != "Soup" || it.Data.CreatedBy != "u1" {
		t.Fatalf("unexpected item: %+v", it)
	}

	// Listing is not owner-filtered server side.
	list, err := baker.List(ctx, model.KindRecipe)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 document, got %d", len(list))
	}

	if _, err := baker.Create(ctx, model.KindRecipe, model.Data{Name: "Forged", CreatedBy: "u1"}); apiclient.StatusCode(err) != http.StatusForbidden {
		t.Fatalf("expected 403 for forged created_by, got %v", err)
	}
	if err := baker.Delete(ctx, model.KindRecipe, id); apiclient.StatusCode(err) != http.StatusForbidden {
		t.Fatalf("expected 403 deleting another user's document, got %v", err)
	}

	if err := cook.Delete(ctx, model.KindRecipe, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cook.Get(ctx, model.KindRecipe, id); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := cook.Delete(ctx, model.KindRecipe, id); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestTokenStoreCodesAreSingleUse(t *testing.T) {
	s := NewTokenStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := s.StartLogin("", time.Minute, now)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	c, err := s.IssueCode(p.State, model.User{ID: "u1"}, time.Minute, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := s.Exchange(c.Code, p.State, time.Hour, now); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if _, err := s.Exchange(c.Code, p.State, time.Hour, now); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode on reuse, got %v", err)
	}
}

func TestTokenStoreExpiry(t *testing.T) {
	s := NewTokenStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p, _ := s.StartLogin("", time.Minute, now)
	if _, err := s.PendingLogin(p.State, now.Add(2*time.Minute)); !errors.Is(err, ErrPendingLoginNotFound) && !errors.Is(err, ErrPendingLoginExpired) {
		t.Fatalf("expected expired pending login, got %v", err)
	}

	p, _ = s.StartLogin("", time.Minute, now)
	c, _ := s.IssueCode(p.State, model.User{ID: "u1"}, time.Minute, now)
	tok, err := s.Exchange(c.Code, "", time.Hour, now)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if _, err := s.Validate(tok.Token, now.Add(30*time.Minute)); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := s.Validate(tok.Token, now.Add(2*time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}
