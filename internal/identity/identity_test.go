package identity

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/idilsaglam/recipebox/internal/apiclient"
	"github.com/idilsaglam/recipebox/internal/config"
	"github.com/idilsaglam/recipebox/internal/docstore"
	"github.com/idilsaglam/recipebox/internal/logging"
	"github.com/idilsaglam/recipebox/internal/server"
)

func newDevServer(t *testing.T) *apiclient.Client {
	t.Helper()
	var ts *httptest.Server
	var handler http.Handler
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	cfg := config.DefaultServer()
	cfg.DevAutoApprove = true
	cfg.BaseURL = ts.URL
	handler = server.New(cfg, docstore.NewMemoryStore(), logging.Discard()).Handler()

	c, err := apiclient.New(ts.URL)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c
}

func newProvider(t *testing.T, c *apiclient.Client) *ServerProvider {
	t.Helper()
	p := NewServerProvider(c, filepath.Join(t.TempDir(), "auth.toml"))
	p.Out = io.Discard
	p.CallbackTimeout = 5 * time.Second
	p.OpenBrowser = func(u string) error {
		go func() {
			resp, err := http.Get(u)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
	return p
}

func TestServerProviderSignInViaCallback(t *testing.T) {
	c := newDevServer(t)
	p := newProvider(t, c)
	ctx := context.Background()

	var prompt LoginPrompt
	p.Notify = func(lp LoginPrompt) { prompt = lp }

	user, err := p.SignIn(ctx)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if user.ID != "dev:user" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if prompt.AuthURL == "" || prompt.CallbackURL == "" {
		t.Fatalf("expected notify with urls, got %+v", prompt)
	}

	st, err := p.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.AccessToken == "" || st.User.ID != "dev:user" {
		t.Fatalf("state not persisted: %+v", st)
	}

	resumed, ok := p.Resume(ctx)
	if !ok || resumed.ID != "dev:user" {
		t.Fatalf("expected resume to succeed, got %+v %v", resumed, ok)
	}
	who, err := p.WhoAmI(ctx)
	if err != nil || who.ID != "dev:user" {
		t.Fatalf("whoami: %+v %v", who, err)
	}

	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := p.State(); !errors.Is(err, ErrNoState) {
		t.Fatalf("expected state removed, got %v", err)
	}
	if _, ok := p.Resume(ctx); ok {
		t.Fatalf("resume after sign out should fail")
	}
	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("second sign out should be a no-op: %v", err)
	}
	if _, err := p.Token(ctx); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
}

func TestServerProviderPromptFallback(t *testing.T) {
	c := newDevServer(t)
	p := newProvider(t, c)
	p.OpenBrowser = nil
	p.CallbackTimeout = 10 * time.Millisecond

	var authURL string
	p.Notify = func(lp LoginPrompt) { authURL = lp.AuthURL }
	p.PromptCode = func(ctx context.Context) (string, error) {
		// Read the code off the redirect instead of following it.
		noFollow := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}}
		resp, err := noFollow.Get(authURL)
		if err != nil {
			return "", err
		}
		resp.Body.Close()
		loc, err := url.Parse(resp.Header.Get("Location"))
		if err != nil {
			return "", err
		}
		return loc.Query().Get("code"), nil
	}

	user, err := p.SignIn(context.Background())
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if user.ID != "dev:user" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestServerProviderCancelledWithoutCode(t *testing.T) {
	c := newDevServer(t)
	p := newProvider(t, c)
	p.OpenBrowser = nil
	p.CallbackTimeout = 10 * time.Millisecond

	if _, err := p.SignIn(context.Background()); !errors.Is(err, ErrSignInCancelled) {
		t.Fatalf("expected ErrSignInCancelled, got %v", err)
	}
	if _, err := p.State(); !errors.Is(err, ErrNoState) {
		t.Fatalf("failed sign-in must not persist state, got %v", err)
	}
}

func TestResumeDropsRejectedToken(t *testing.T) {
	c := newDevServer(t)
	p := newProvider(t, c)
	if err := WriteState(p.statePath, State{ServerURL: c.BaseURL(), AccessToken: "rbx_unknown"}); err != nil {
		t.Fatalf("write state: %v", err)
	}
	if _, ok := p.Resume(context.Background()); ok {
		t.Fatalf("resume with unknown token should fail")
	}
	if _, err := p.State(); !errors.Is(err, ErrNoState) {
		t.Fatalf("rejected token should be dropped, got %v", err)
	}
}

func TestStateExpiredAndWriteRequiresServer(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if (State{}).Expired(now) {
		t.Fatalf("zero expiry never expires")
	}
	if !(State{ExpiresAt: now.Add(-time.Second)}).Expired(now) {
		t.Fatalf("expected expired")
	}
	if err := WriteState(filepath.Join(t.TempDir(), "a.toml"), State{}); err == nil {
		t.Fatalf("expected server_url validation error")
	}
}

func TestStaticProvider(t *testing.T) {
	ctx := context.Background()
	p := NewStaticProvider("u1", "")
	if u, ok := p.Resume(ctx); !ok || u.ID != "u1" || u.DisplayName != "u1" {
		t.Fatalf("static user should resume: %+v %v", u, ok)
	}
	_ = p.SignOut(ctx)
	if _, ok := p.Resume(ctx); ok {
		t.Fatalf("resume after sign out should fail")
	}
	if _, err := p.SignIn(ctx); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	p.Err = errors.New("denied")
	if _, err := p.SignIn(ctx); err == nil {
		t.Fatalf("expected configured failure")
	}
}
