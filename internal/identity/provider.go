// Package identity signs users in and out. The interactive flow runs against
// recipesd; a static provider covers backends without a sign-in service.
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/idilsaglam/recipebox/internal/model"
)

var (
	// ErrNotSignedIn is returned when an operation needs a session and there is none.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrSignInCancelled means the interactive flow ended without a code.
	ErrSignInCancelled = errors.New("sign-in cancelled")
)

// Provider is the identity collaborator the session controller uses.
type Provider interface {
	// SignIn runs the interactive flow and returns the signed-in user.
	SignIn(ctx context.Context) (model.User, error)
	// SignOut ends the session. Signing out twice is not an error.
	SignOut(ctx context.Context) error
	// Resume returns a previously persisted user when its session is still valid.
	Resume(ctx context.Context) (model.User, bool)
}

// StaticProvider always signs in the same user. The user counts as signed in
// until SignOut is called.
type StaticProvider struct {
	User model.User
	// Err, when set, makes SignIn fail; tests use it.
	Err error

	mu        sync.Mutex
	signedOut bool
}

func NewStaticProvider(id, name string) *StaticProvider {
	id = strings.TrimSpace(id)
	if name == "" {
		name = id
	}
	return &StaticProvider{User: model.User{ID: id, DisplayName: name}}
}

func (p *StaticProvider) SignIn(ctx context.Context) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	if p.Err != nil {
		return model.User{}, p.Err
	}
	if p.User.ID == "" {
		return model.User{}, errors.New("static provider has no user id")
	}
	p.mu.Lock()
	p.signedOut = false
	p.mu.Unlock()
	return p.User, nil
}

func (p *StaticProvider) SignOut(context.Context) error {
	p.mu.Lock()
	p.signedOut = true
	p.mu.Unlock()
	return nil
}

func (p *StaticProvider) Resume(context.Context) (model.User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signedOut || p.User.ID == "" {
		return model.User{}, false
	}
	return p.User, true
}
