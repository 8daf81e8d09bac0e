package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/idilsaglam/recipebox/internal/model"
)

type startRequest struct {
	CallbackURL string `json:"callback_url,omitempty"`
}

type startResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

func (s *Server) startLogin(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpErrorJSON(w, http.StatusBadRequest, "invalid json body")
		return
	}
	cb := strings.TrimSpace(req.CallbackURL)
	if cb != "" && !isLoopbackURL(cb) {
		httpErrorJSON(w, http.StatusBadRequest, "callback_url must be a loopback http url")
		return
	}
	p, err := s.tokens.StartLogin(cb, s.cfg.CodeTTL, s.now())
	if err != nil {
		httpErrorJSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	authURL := s.cfg.BaseURL + "/login/authorize?state=" + url.QueryEscape(p.State)
	writeJSON(w, http.StatusOK, startResponse{AuthURL: authURL, State: p.State})
}

func isLoopbackURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "http" {
		return false
	}
	host := u.Hostname()
	return host == "127.0.0.1" || host == "localhost" || host == "::1"
}

func devUser() model.User {
	return model.User{ID: "dev:user", Email: "dev@example.com", DisplayName: "Recipebox Dev"}
}

// authorize is the browser-facing sign-in page. GET shows the form, POST checks
// the password. With dev_auto_approve every request signs in the dev user.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	state := strings.TrimSpace(r.URL.Query().Get("state"))
	if state == "" {
		http.Error(w, "missing state", http.StatusBadRequest)
		return
	}
	p, err := s.tokens.PendingLogin(state, s.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var user model.User
	switch {
	case s.cfg.DevAutoApprove:
		user = devUser()
	case r.Method == http.MethodPost:
		email := r.PostFormValue("email")
		u, ok := s.cfg.FindUser(email)
		if !ok || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(r.PostFormValue("password"))) != nil {
			s.log.Warn("sign-in rejected", "email", email)
			renderLoginForm(w, http.StatusUnauthorized, state, "Invalid email or password.")
			return
		}
		user = model.User{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
	default:
		renderLoginForm(w, http.StatusOK, state, "")
		return
	}

	code, err := s.tokens.IssueCode(state, user, s.cfg.CodeTTL, s.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.log.Info("sign-in approved", "user", user.ID)
	if p.CallbackURL != "" {
		if cb, err := url.Parse(p.CallbackURL); err == nil {
			q := cb.Query()
			q.Set("code", code.Code)
			q.Set("state", state)
			cb.RawQuery = q.Encode()
			http.Redirect(w, r, cb.String(), http.StatusSeeOther)
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<html><body><h1>recipebox sign-in</h1><p>Copy this code into the terminal:</p><pre>%s</pre></body></html>`,
		html.EscapeString(code.Code))
}

func renderLoginForm(w http.ResponseWriter, status int, state, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	errLine := ""
	if msg != "" {
		errLine = `<p style="color:#b00">` + html.EscapeString(msg) + `</p>`
	}
	_, _ = fmt.Fprintf(w, `<html><body><h1>Sign in to recipebox</h1>%s
<form method="post" action="/login/authorize?state=%s">
<label>Email <input name="email" type="email"></label>
<label>Password <input name="password" type="password"></label>
<button type="submit">Sign in</button>
</form></body></html>`, errLine, url.QueryEscape(state))
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

func (s *Server) exchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpErrorJSON(w, http.StatusBadRequest, "invalid json body")
		return
	}
	tok, err := s.tokens.Exchange(strings.TrimSpace(req.Code), strings.TrimSpace(req.State), s.cfg.AccessTTL, s.now())
	if err != nil {
		httpErrorJSON(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exchangeResponse{AccessToken: tok.Token, ExpiresAt: tok.ExpiresAt, User: tok.User})
}

func (s *Server) whoami(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r.Context()))
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	if tok, _ := r.Context().Value(tokenKey).(string); tok != "" {
		s.tokens.Revoke(tok)
	}
	w.WriteHeader(http.StatusNoContent)
}
