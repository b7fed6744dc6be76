package usecase

import (
	"sync"

	"trading-research-core/internal/domain/model"
)

// AuthState is the one shared "current user" object. It has an explicit
// lifecycle (Init on sign-in, Teardown on sign-out) and is injected into
// the session monitor and job dispatchers instead of living as ambient
// global state.
type AuthState struct {
	mu        sync.RWMutex
	user      *model.User
	sessionID string
}

func NewAuthState() *AuthState { return &AuthState{} }

func (a *AuthState) Init(user *model.User, sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = user
	a.sessionID = sessionID
}

func (a *AuthState) Teardown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = nil
	a.sessionID = ""
}

func (a *AuthState) Active() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.user != nil
}

// User returns a copy of the signed-in user, nil when signed out.
func (a *AuthState) User() *model.User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.user == nil {
		return nil
	}
	cp := *a.user
	return &cp
}

func (a *AuthState) UserID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.user == nil {
		return ""
	}
	return a.user.ID
}

func (a *AuthState) SessionID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessionID
}
