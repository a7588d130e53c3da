// Package session holds the per-invocation state shared by every request
// against the Velux backend: the skill type, backend settings, the user's
// credentials, and the current bearer token. A Session is created empty and
// populated by warm-up; it is passed explicitly to every operation instead of
// living in a package-level variable.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrTokenWithoutCredentials is returned by SetToken when no credentials are
// loaded. A token always belongs to a known identity.
var ErrTokenWithoutCredentials = errors.New("session: token requires credentials")

// SkillType selects how a session resolves identities and where tokens are
// persisted. It is fixed for the lifetime of a Session.
type SkillType int

// Skill types.
const (
	SkillCustom SkillType = iota + 1
	SkillSmartHome
)

// String returns the config spelling of the skill type.
func (t SkillType) String() string {
	switch t {
	case SkillCustom:
		return "custom"
	case SkillSmartHome:
		return "smarthome"
	default:
		return fmt.Sprintf("SkillType(%d)", int(t))
	}
}

// ParseSkillType converts "custom" or "smarthome" (case-insensitive) into a
// SkillType.
func ParseSkillType(s string) (SkillType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "custom":
		return SkillCustom, nil
	case "smarthome", "smart_home", "smart-home":
		return SkillSmartHome, nil
	default:
		return 0, fmt.Errorf("session: unknown skill type %q (want custom or smarthome)", s)
	}
}

// Credentials identify the end user against the Velux backend. HomeID and
// Bridge are only needed for actions that address a specific home.
type Credentials struct {
	Username string
	Password string
	HomeID   string
	Bridge   string
}

// Session is the cache of settings, credentials and token for one calling
// user. All methods are safe for concurrent use; accessors return copies.
type Session struct {
	mu sync.RWMutex

	skill  SkillType
	userID string

	settings *Settings
	creds    *Credentials
	token    *oauth2.Token
}

// New creates an empty session for the given skill type and session user id.
func New(skill SkillType, userID string) *Session {
	return &Session{
		skill:  skill,
		userID: userID,
	}
}

// Skill returns the session's skill type.
func (s *Session) Skill() SkillType {
	return s.skill
}

// UserID returns the opaque session user id.
func (s *Session) UserID() string {
	return s.userID
}

// Settings returns a copy of the loaded settings and whether they are present.
func (s *Session) Settings() (Settings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return Settings{}, false
	}

	return *s.settings, true
}

// SetSettings stores settings if none are loaded yet. Settings are immutable
// after the first load; later calls return false and change nothing.
func (s *Session) SetSettings(st Settings) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings != nil {
		return false
	}

	s.settings = &st

	return true
}

// Credentials returns a copy of the loaded credentials and whether they are
// present.
func (s *Session) Credentials() (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.creds == nil {
		return Credentials{}, false
	}

	return *s.creds, true
}

// SetCredentials replaces the cached credentials. Switching to a different
// username drops the cached token, which belonged to the previous identity.
func (s *Session) SetCredentials(c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds != nil && s.creds.Username != c.Username {
		s.token = nil
	}

	s.creds = &c
}

// Token returns a copy of the current token, or nil if none is cached.
func (s *Session) Token() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == nil {
		return nil
	}

	tok := *s.token

	return &tok
}

// AccessToken returns the current access token, or "" if none is cached.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == nil {
		return ""
	}

	return s.token.AccessToken
}

// SetToken overwrites the cached token in place. It fails with
// ErrTokenWithoutCredentials when no credentials are loaded.
func (s *Session) SetToken(tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("session: nil token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds == nil {
		return ErrTokenWithoutCredentials
	}

	cp := *tok
	s.token = &cp

	return nil
}

// Snapshot is a redacted, point-in-time view of a session for display and
// logging. It never carries secrets.
type Snapshot struct {
	Skill          string    `json:"skill_type"`
	UserID         string    `json:"user_id"`
	HasSettings    bool      `json:"has_settings"`
	BaseURL        string    `json:"base_url,omitempty"`
	HasCredentials bool      `json:"has_credentials"`
	Username       string    `json:"username,omitempty"`
	HomeID         string    `json:"home_id,omitempty"`
	HasToken       bool      `json:"has_token"`
	TokenExpiry    time.Time `json:"token_expiry,omitzero"`
}

// Snapshot returns a redacted view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Skill:  s.skill.String(),
		UserID: s.userID,
	}

	if s.settings != nil {
		snap.HasSettings = true
		snap.BaseURL = s.settings.BaseURL
	}

	if s.creds != nil {
		snap.HasCredentials = true
		snap.Username = s.creds.Username
		snap.HomeID = s.creds.HomeID
	}

	if s.token != nil {
		snap.HasToken = true
		snap.TokenExpiry = s.token.Expiry
	}

	return snap
}
