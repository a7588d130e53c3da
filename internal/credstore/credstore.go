// Package credstore is the read-through credential store. Lookups for
// settings, credentials and tokens consult the session cache first and fall
// back to the persistent store on a miss; token writes are routed by skill
// type.
//
// Routing:
//   - Custom skill: credentials at config-<userID>, token at token-<userID>
//     (unconditional upsert).
//   - SmartHome skill: the session user id is resolved through the userId
//     index to a credentials record keyed config-<username>; the token is
//     stored on that record with a conditional update that never creates it.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/velux-go/internal/session"
	"github.com/tonimelisma/velux-go/internal/store"
)

// Store reads and writes settings, credentials and tokens.
type Store struct {
	backend store.Store
	logger  *slog.Logger
}

// New returns a credential store over backend.
func New(backend store.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{backend: backend, logger: logger}
}

// LoadSettings returns the session's settings, loading them from the store on
// a cache miss. A missing record yields ErrConfigurationMissing.
func (s *Store) LoadSettings(ctx context.Context, sess *session.Session) (session.Settings, error) {
	if st, ok := sess.Settings(); ok {
		s.logger.Debug("using cached settings")
		return st, nil
	}

	s.logger.Info("loading settings from store", slog.String("key", SettingsKey))

	item, err := s.backend.Get(ctx, SettingsKey)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Error("settings record missing, aborting", slog.String("key", SettingsKey))
		return session.Settings{}, ErrConfigurationMissing
	}

	if err != nil {
		return session.Settings{}, &PersistenceError{Op: "get", Key: SettingsKey, Err: err}
	}

	var st session.Settings
	if err := decodeItem(item, &st); err != nil {
		return session.Settings{}, &PersistenceError{Op: "get", Key: SettingsKey, Err: err}
	}

	sess.SetSettings(st)

	// Another caller may have won the race; the first load is authoritative.
	cached, _ := sess.Settings()

	return cached, nil
}

// LoadCredentials returns the session's credentials, loading them from the
// store on a cache miss. A missing record is logged and yields
// ErrCredentialsMissing; it means the user has not finished setup.
//
// For SmartHome sessions a token stored on the credentials record is cached
// along with the credentials.
func (s *Store) LoadCredentials(ctx context.Context, sess *session.Session) (session.Credentials, error) {
	if creds, ok := sess.Credentials(); ok {
		s.logger.Debug("using cached credentials")
		return creds, nil
	}

	key, err := s.credentialsKeyFor(ctx, sess)
	if err != nil {
		return session.Credentials{}, err
	}

	s.logger.Info("loading credentials from store", slog.String("key", key))

	item, err := s.backend.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("no credentials stored for user, setup not completed",
			slog.String("key", key),
		)

		return session.Credentials{}, ErrCredentialsMissing
	}

	if err != nil {
		return session.Credentials{}, &PersistenceError{Op: "get", Key: key, Err: err}
	}

	var rec credentialRecord
	if err := decodeItem(item, &rec); err != nil {
		return session.Credentials{}, &PersistenceError{Op: "get", Key: key, Err: err}
	}

	creds := rec.credentials()
	sess.SetCredentials(creds)

	if sess.Skill() == session.SkillSmartHome {
		if tok := tokenFromItem(item); tok != nil {
			if err := sess.SetToken(tok); err != nil {
				return session.Credentials{}, err
			}
		}
	}

	return creds, nil
}

// credentialsKeyFor resolves where the session user's credentials live.
func (s *Store) credentialsKeyFor(ctx context.Context, sess *session.Session) (string, error) {
	userID := sess.UserID()
	if userID == "" {
		return "", ErrNoUserID
	}

	if sess.Skill() != session.SkillSmartHome {
		return CredentialsKey(userID), nil
	}

	key, err := s.FindKeyByAttribute(ctx, store.UserIDIndex, store.UserIDAttribute, userID)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("no credentials linked to user, setup not completed")
		return "", ErrCredentialsMissing
	}

	if err != nil {
		return "", err
	}

	return key, nil
}

// FindKeyByAttribute resolves an indexed attribute value to the primary key
// of the first matching record. A miss returns an error wrapping
// store.ErrNotFound.
func (s *Store) FindKeyByAttribute(ctx context.Context, index, attribute, value string) (string, error) {
	key, err := s.backend.Query(ctx, index, attribute, value)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("credstore: no record with %s in %s: %w", attribute, index, err)
	}

	if err != nil {
		return "", &PersistenceError{Op: "query", Key: index, Err: err}
	}

	return key, nil
}

// LoadToken returns the session's token, loading it from the store on a
// cache miss. Credentials must be loaded first. A missing token yields
// ErrTokenMissing.
func (s *Store) LoadToken(ctx context.Context, sess *session.Session) (*oauth2.Token, error) {
	if tok := sess.Token(); tok != nil {
		s.logger.Debug("using cached token")
		return tok, nil
	}

	creds, ok := sess.Credentials()
	if !ok {
		return nil, ErrCredentialsMissing
	}

	var key string

	switch sess.Skill() {
	case session.SkillSmartHome:
		key = CredentialsKey(creds.Username)
	default:
		if sess.UserID() == "" {
			return nil, ErrNoUserID
		}

		key = TokenKey(sess.UserID())
	}

	s.logger.Info("loading token from store", slog.String("key", key))

	item, err := s.backend.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Info("no token stored", slog.String("key", key))
		return nil, ErrTokenMissing
	}

	if err != nil {
		return nil, &PersistenceError{Op: "get", Key: key, Err: err}
	}

	tok := tokenFromItem(item)
	if tok == nil {
		s.logger.Info("stored record carries no token", slog.String("key", key))
		return nil, ErrTokenMissing
	}

	if err := sess.SetToken(tok); err != nil {
		return nil, err
	}

	return tok, nil
}

// SaveToken persists tok for the session's identity. Custom sessions upsert
// token-<userID>; SmartHome sessions update the existing credentials record
// and fail with a PersistenceError wrapping store.ErrConditionFailed when it
// does not exist. The session cache is not touched.
func (s *Store) SaveToken(ctx context.Context, sess *session.Session, tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("credstore: nil token")
	}

	switch sess.Skill() {
	case session.SkillSmartHome:
		creds, ok := sess.Credentials()
		if !ok {
			return ErrCredentialsMissing
		}

		key := CredentialsKey(creds.Username)
		if err := s.backend.Update(ctx, key, tokenFields(tok), store.MustExist); err != nil {
			return &PersistenceError{Op: "update", Key: key, Err: err}
		}

		s.logger.Info("persisted token on credentials record", slog.String("key", key))
	default:
		if sess.UserID() == "" {
			return ErrNoUserID
		}

		key := TokenKey(sess.UserID())
		item := store.Item{store.KeyAttribute: key}

		for k, v := range tokenFields(tok) {
			item[k] = v
		}

		if err := s.backend.Put(ctx, item); err != nil {
			return &PersistenceError{Op: "put", Key: key, Err: err}
		}

		s.logger.Info("persisted token record", slog.String("key", key))
	}

	return nil
}

// SaveSettings validates and writes the shared settings record.
func (s *Store) SaveSettings(ctx context.Context, st session.Settings) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("credstore: invalid settings: %w", err)
	}

	item, err := encodeItem(SettingsKey, st)
	if err != nil {
		return err
	}

	if err := s.backend.Put(ctx, item); err != nil {
		return &PersistenceError{Op: "put", Key: SettingsKey, Err: err}
	}

	s.logger.Info("saved settings", slog.String("key", SettingsKey))

	return nil
}

// SaveCredentials writes a credentials record for userID. Custom records are
// keyed by user id; SmartHome records are keyed by username and carry the
// user id for the reverse index. Any stored token on the record is replaced.
func (s *Store) SaveCredentials(
	ctx context.Context,
	skill session.SkillType,
	userID string,
	creds session.Credentials,
) (string, error) {
	if creds.Username == "" || creds.Password == "" {
		return "", errors.New("credstore: username and password are required")
	}

	rec := credentialRecord{
		Username: creds.Username,
		Password: creds.Password,
		HomeID:   creds.HomeID,
		Bridge:   creds.Bridge,
	}

	var key string

	switch skill {
	case session.SkillSmartHome:
		key = CredentialsKey(creds.Username)
		rec.UserID = userID
	default:
		if userID == "" {
			return "", ErrNoUserID
		}

		key = CredentialsKey(userID)
	}

	item, err := encodeItem(key, rec)
	if err != nil {
		return "", err
	}

	if err := s.backend.Put(ctx, item); err != nil {
		return "", &PersistenceError{Op: "put", Key: key, Err: err}
	}

	s.logger.Info("saved credentials",
		slog.String("key", key),
		slog.String("skill", skill.String()),
	)

	return key, nil
}

// unlinkUser clears userID from every record the userId index resolves it
// to. An emptied attribute drops the record from the index.
func (s *Store) unlinkUser(ctx context.Context, userID string) error {
	seen := make(map[string]bool)

	for {
		key, err := s.backend.Query(ctx, store.UserIDIndex, store.UserIDAttribute, userID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}

		if err != nil {
			return &PersistenceError{Op: "query", Key: store.UserIDIndex, Err: err}
		}

		if seen[key] {
			return &PersistenceError{Op: "update", Key: key, Err: errors.New("userId still indexed after unlink")}
		}

		seen[key] = true

		if err := s.backend.Update(ctx, key, map[string]string{store.UserIDAttribute: ""}, store.MustExist); err != nil {
			return &PersistenceError{Op: "update", Key: key, Err: err}
		}

		s.logger.Info("unlinked previous credentials", slog.String("key", key))
	}
}

// LinkUser attaches userID to the existing SmartHome credentials record of
// username so the userId index resolves to it. Any other record still
// carrying userID is unlinked first, so a user id never resolves to more
// than one record.
func (s *Store) LinkUser(ctx context.Context, username, userID string) error {
	if userID == "" {
		return ErrNoUserID
	}

	key := CredentialsKey(username)

	if _, err := s.backend.Get(ctx, key); errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("credstore: no credentials for %q: %w", username, ErrCredentialsMissing)
	} else if err != nil {
		return &PersistenceError{Op: "get", Key: key, Err: err}
	}

	if err := s.unlinkUser(ctx, userID); err != nil {
		return err
	}

	err := s.backend.Update(ctx, key, map[string]string{store.UserIDAttribute: userID}, store.MustExist)
	if errors.Is(err, store.ErrConditionFailed) {
		return fmt.Errorf("credstore: no credentials for %q: %w", username, ErrCredentialsMissing)
	}

	if err != nil {
		return &PersistenceError{Op: "update", Key: key, Err: err}
	}

	s.logger.Info("linked user to credentials", slog.String("key", key))

	return nil
}
