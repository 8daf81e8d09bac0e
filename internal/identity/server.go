package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/idilsaglam/recipebox/internal/apiclient"
	"github.com/idilsaglam/recipebox/internal/model"
)

// LoginPrompt is what the user needs to finish signing in in a browser.
type LoginPrompt struct {
	AuthURL     string
	CallbackURL string
}

// ServerProvider signs in against recipesd: start a login, let the user
// approve it in a browser, receive the one-time code on a loopback callback
// (or have it pasted), exchange it for a token and persist the token.
type ServerProvider struct {
	client    *apiclient.Client
	statePath string

	// Notify shows the sign-in URL. The default prints it to Out.
	Notify func(LoginPrompt)
	// OpenBrowser launches a browser; nil skips that step.
	OpenBrowser func(url string) error
	// PromptCode asks for a pasted code when no callback arrives; nil gives up.
	PromptCode func(ctx context.Context) (string, error)
	// CallbackTimeout bounds the wait for the loopback callback.
	CallbackTimeout time.Duration
	Out             io.Writer

	now func() time.Time
	mu  sync.Mutex
}

func NewServerProvider(client *apiclient.Client, statePath string) *ServerProvider {
	p := &ServerProvider{
		client:          client,
		statePath:       statePath,
		OpenBrowser:     openBrowser,
		CallbackTimeout: 2 * time.Minute,
		Out:             os.Stdout,
		now:             time.Now,
	}
	p.Notify = func(lp LoginPrompt) {
		fmt.Fprintf(p.Out, "Open this URL to sign in:\n%s\n", lp.AuthURL)
		if lp.CallbackURL != "" {
			fmt.Fprintf(p.Out, "Waiting for callback at %s ...\n", lp.CallbackURL)
		}
	}
	return p
}

type startRequest struct {
	CallbackURL string `json:"callback_url,omitempty"`
}

type startResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

type exchangeRequest struct {
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}

type exchangeResponse struct {
	AccessToken string     `json:"access_token"`
	ExpiresAt   time.Time  `json:"expires_at"`
	User        model.User `json:"user"`
}

func (p *ServerProvider) SignIn(ctx context.Context) (model.User, error) {
	cb, err := startCallback()
	callbackURL := ""
	if err == nil {
		defer cb.Close()
		callbackURL = cb.URL
	}

	var start startResponse
	if err := p.client.DoJSON(ctx, http.MethodPost, "/api/auth/login/start", "", startRequest{CallbackURL: callbackURL}, &start); err != nil {
		return model.User{}, fmt.Errorf("start sign-in: %w", err)
	}
	if strings.TrimSpace(start.AuthURL) == "" {
		return model.User{}, errors.New("server returned empty auth_url")
	}

	if p.Notify != nil {
		p.Notify(LoginPrompt{AuthURL: start.AuthURL, CallbackURL: callbackURL})
	}
	if p.OpenBrowser != nil {
		if err := p.OpenBrowser(start.AuthURL); err != nil && p.Out != nil {
			fmt.Fprintf(p.Out, "Could not open browser automatically: %v\n", err)
		}
	}

	code := ""
	if cb != nil {
		timer := time.NewTimer(p.CallbackTimeout)
		defer timer.Stop()
		select {
		case res := <-cb.Result:
			if res.Err != nil {
				return model.User{}, res.Err
			}
			code = res.Code
		case <-timer.C:
		case <-ctx.Done():
			return model.User{}, ctx.Err()
		}
	}
	if code == "" && p.PromptCode != nil {
		if code, err = p.PromptCode(ctx); err != nil {
			return model.User{}, err
		}
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return model.User{}, ErrSignInCancelled
	}

	var ex exchangeResponse
	if err := p.client.DoJSON(ctx, http.MethodPost, "/api/auth/login/exchange", "", exchangeRequest{Code: code, State: start.State}, &ex); err != nil {
		return model.User{}, fmt.Errorf("exchange code: %w", err)
	}
	if strings.TrimSpace(ex.AccessToken) == "" {
		return model.User{}, errors.New("server returned empty access token")
	}

	st := State{
		ServerURL:   p.client.BaseURL(),
		AccessToken: ex.AccessToken,
		ExpiresAt:   ex.ExpiresAt,
		User:        ex.User,
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := WriteState(p.statePath, st); err != nil {
		return model.User{}, fmt.Errorf("save auth state: %w", err)
	}
	return ex.User, nil
}

// SignOut revokes the token server-side when possible and always drops the
// local state. A token the server no longer knows is not an error.
func (p *ServerProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, err := LoadState(p.statePath)
	if errors.Is(err, ErrNoState) {
		return nil
	}
	var remoteErr error
	if err == nil && st.AccessToken != "" {
		remoteErr = p.client.DoJSON(ctx, http.MethodPost, "/api/auth/signout", st.AccessToken, nil, nil)
		if apiclient.StatusCode(remoteErr) == http.StatusUnauthorized {
			remoteErr = nil
		}
	}
	if err := DeleteState(p.statePath); err != nil {
		return err
	}
	if remoteErr != nil {
		return fmt.Errorf("revoke token: %w", remoteErr)
	}
	return nil
}

// Resume adopts the persisted session. A token the server rejects is
// discarded; an unreachable server keeps the cached user so cached lists
// stay readable offline.
func (p *ServerProvider) Resume(ctx context.Context) (model.User, bool) {
	st, err := p.State()
	if err != nil || st.AccessToken == "" || st.Expired(p.now()) {
		return model.User{}, false
	}
	user, err := p.whoAmI(ctx, st.AccessToken)
	if err == nil {
		return user, true
	}
	if apiclient.StatusCode(err) == http.StatusUnauthorized {
		p.mu.Lock()
		_ = DeleteState(p.statePath)
		p.mu.Unlock()
		return model.User{}, false
	}
	return st.User, st.User.ID != ""
}

// State returns the persisted auth state.
func (p *ServerProvider) State() (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return LoadState(p.statePath)
}

// Token is the bearer token for document requests.
func (p *ServerProvider) Token(context.Context) (string, error) {
	st, err := p.State()
	if errors.Is(err, ErrNoState) {
		return "", ErrNotSignedIn
	}
	if err != nil {
		return "", err
	}
	if st.AccessToken == "" || st.Expired(p.now()) {
		return "", ErrNotSignedIn
	}
	return st.AccessToken, nil
}

// WhoAmI asks the server who the stored token belongs to.
func (p *ServerProvider) WhoAmI(ctx context.Context) (model.User, error) {
	tok, err := p.Token(ctx)
	if err != nil {
		return model.User{}, err
	}
	return p.whoAmI(ctx, tok)
}

func (p *ServerProvider) whoAmI(ctx context.Context, token string) (model.User, error) {
	var u model.User
	if err := p.client.DoJSON(ctx, http.MethodGet, "/api/auth/whoami", token, nil, &u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

type callbackResult struct {
	Code  string
	State string
	Err   error
}

type loginCallback struct {
	URL      string
	server   *http.Server
	listener net.Listener
	Result   chan callbackResult
}

func startCallback() (*loginCallback, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	out := &loginCallback{
		URL:      "http://" + ln.Addr().String() + "/callback",
		listener: ln,
		Result:   make(chan callbackResult, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimSpace(r.URL.Query().Get("code"))
		state := strings.TrimSpace(r.URL.Query().Get("state"))
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			out.send(callbackResult{Err: errors.New("callback missing code")})
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("recipebox sign-in received. You can return to the terminal.\n"))
		out.send(callbackResult{Code: code, State: state})
	})
	out.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := out.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			out.send(callbackResult{Err: err})
		}
	}()
	return out, nil
}

func (c *loginCallback) send(res callbackResult) {
	select {
	case c.Result <- res:
	default:
	}
}

func (c *loginCallback) Close() error {
	if c == nil {
		return nil
	}
	if c.server != nil {
		_ = c.server.Close()
	}
	if c.listener != nil {
		_ = c.listener.Close()
	}
	return nil
}

func openBrowser(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", target).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target).Start()
	default:
		return exec.Command("xdg-open", target).Start()
	}
}
