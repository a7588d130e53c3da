package credstore

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/velux-go/internal/session"
	"github.com/tonimelisma/velux-go/internal/store"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// mockBackend is a testify mock of store.Store for asserting exact calls.
type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Get(ctx context.Context, key string) (store.Item, error) {
	args := m.Called(ctx, key)
	item, _ := args.Get(0).(store.Item)

	return item, args.Error(1)
}

func (m *mockBackend) Put(ctx context.Context, item store.Item) error {
	return m.Called(ctx, item).Error(0)
}

func (m *mockBackend) Update(ctx context.Context, key string, fields map[string]string, cond store.Condition) error {
	return m.Called(ctx, key, fields, cond).Error(0)
}

func (m *mockBackend) Query(ctx context.Context, index, attribute, value string) (string, error) {
	args := m.Called(ctx, index, attribute, value)
	return args.String(0), args.Error(1)
}

func (m *mockBackend) Close() error {
	return m.Called().Error(0)
}

var testSettings = session.Settings{
	BaseURL:       "https://app.velux-active.com",
	TokenURL:      "/oauth2/token",
	Authorization: "Basic c2VjcmV0",
	AppVersion:    "1.6.0",
}

func seededMemory(t *testing.T) *store.Memory {
	t.Helper()

	m := store.NewMemory()
	s := New(m, testLogger(t))
	require.NoError(t, s.SaveSettings(context.Background(), testSettings))

	return m
}

func TestLoadSettings_FromStoreThenCache(t *testing.T) {
	backend := new(mockBackend)
	backend.On("Get", mock.Anything, "settings").
		Return(store.Item{"id": "settings", "base_url": "https://x", "token_url": "/t", "authorization": "a"}, nil).
		Once()

	s := New(backend, testLogger(t))
	sess := session.New(session.SkillCustom, "u1")

	st, err := s.LoadSettings(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "https://x", st.BaseURL)

	// Second call is served from the session cache.
	st, err = s.LoadSettings(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "https://x", st.BaseURL)

	backend.AssertExpectations(t)
}

func TestLoadSettings_MissingIsFatal(t *testing.T) {
	s := New(store.NewMemory(), testLogger(t))
	sess := session.New(session.SkillCustom, "u1")

	_, err := s.LoadSettings(context.Background(), sess)
	require.ErrorIs(t, err, ErrConfigurationMissing)

	_, ok := sess.Settings()
	assert.False(t, ok)
}

func TestLoadSettings_BackendFailure(t *testing.T) {
	backend := new(mockBackend)
	boom := errors.New("disk on fire")
	backend.On("Get", mock.Anything, "settings").Return(nil, boom)

	s := New(backend, testLogger(t))

	_, err := s.LoadSettings(context.Background(), session.New(session.SkillCustom, "u1"))

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "get", pe.Op)
	assert.Equal(t, "settings", pe.Key)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrConfigurationMissing)
}

func TestLoadCredentials_Custom(t *testing.T) {
	m := seededMemory(t)
	s := New(m, testLogger(t))
	ctx := context.Background()

	_, err := s.SaveCredentials(ctx, session.SkillCustom, "u1", session.Credentials{
		Username: "alice", Password: "pw", HomeID: "home-1", Bridge: "bridge-1",
	})
	require.NoError(t, err)

	sess := session.New(session.SkillCustom, "u1")
	creds, err := s.LoadCredentials(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, session.Credentials{Username: "alice", Password: "pw", HomeID: "home-1", Bridge: "bridge-1"}, creds)

	cached, ok := sess.Credentials()
	require.True(t, ok)
	assert.Equal(t, creds, cached)
}

func TestLoadCredentials_MissingIsNonFatal(t *testing.T) {
	s := New(seededMemory(t), testLogger(t))
	sess := session.New(session.SkillCustom, "u1")

	_, err := s.LoadCredentials(context.Background(), sess)
	require.ErrorIs(t, err, ErrCredentialsMissing)

	var pe *PersistenceError
	assert.False(t, errors.As(err, &pe), "a missing record is not a persistence failure")
}

func TestLoadCredentials_NoUserID(t *testing.T) {
	s := New(seededMemory(t), testLogger(t))

	_, err := s.LoadCredentials(context.Background(), session.New(session.SkillCustom, ""))
	require.ErrorIs(t, err, ErrNoUserID)
}

func TestLoadCredentials_SmartHomeResolvesThroughIndex(t *testing.T) {
	m := seededMemory(t)
	s := New(m, testLogger(t))
	ctx := context.Background()

	_, err := s.SaveCredentials(ctx, session.SkillSmartHome, "amzn-1", session.Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, m.Update(ctx, "config-alice",
		map[string]string{"AccessToken": "acc", "RefreshToken": "ref"}, store.MustExist))

	sess := session.New(session.SkillSmartHome, "amzn-1")
	creds, err := s.LoadCredentials(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "alice", creds.Username)

	// The token on the record is cached together with the credentials.
	require.NotNil(t, sess.Token())
	assert.Equal(t, "acc", sess.AccessToken())
	assert.Equal(t, "ref", sess.Token().RefreshToken)
}

func TestLoadCredentials_SmartHomeUnlinked(t *testing.T) {
	s := New(seededMemory(t), testLogger(t))

	_, err := s.LoadCredentials(context.Background(), session.New(session.SkillSmartHome, "amzn-unknown"))
	require.ErrorIs(t, err, ErrCredentialsMissing)
}

func TestLoadToken_Custom(t *testing.T) {
	m := seededMemory(t)
	s := New(m, testLogger(t))
	ctx := context.Background()

	expiry := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, m.Put(ctx, store.Item{
		"id": "token-u1", "AccessToken": "acc", "RefreshToken": "ref", "Expiry": expiry.Format(time.RFC3339),
	}))

	sess := session.New(session.SkillCustom, "u1")
	sess.SetCredentials(session.Credentials{Username: "alice"})

	tok, err := s.LoadToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "acc", tok.AccessToken)
	assert.Equal(t, "ref", tok.RefreshToken)
	assert.True(t, expiry.Equal(tok.Expiry))
	assert.Equal(t, "acc", sess.AccessToken())
}

func TestLoadToken_Missing(t *testing.T) {
	s := New(seededMemory(t), testLogger(t))
	sess := session.New(session.SkillCustom, "u1")
	sess.SetCredentials(session.Credentials{Username: "alice"})

	_, err := s.LoadToken(context.Background(), sess)
	require.ErrorIs(t, err, ErrTokenMissing)
}

func TestLoadToken_RequiresCredentials(t *testing.T) {
	s := New(seededMemory(t), testLogger(t))

	_, err := s.LoadToken(context.Background(), session.New(session.SkillCustom, "u1"))
	require.ErrorIs(t, err, ErrCredentialsMissing)
}

func TestLoadToken_SmartHomeRecordWithoutToken(t *testing.T) {
	m := seededMemory(t)
	s := New(m, testLogger(t))
	ctx := context.Background()

	_, err := s.SaveCredentials(ctx, session.SkillSmartHome, "amzn-1", session.Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	sess := session.New(session.SkillSmartHome, "amzn-1")
	sess.SetCredentials(session.Credentials{Username: "alice"})

	_, err = s.LoadToken(ctx, sess)
	require.ErrorIs(t, err, ErrTokenMissing)
}

func TestSaveToken_CustomUpsertsByUserID(t *testing.T) {
	backend := new(mockBackend)
	backend.On("Put", mock.Anything, store.Item{
		"id":           "token-u1",
		"AccessToken":  "acc",
		"RefreshToken": "ref",
	}).Return(nil).Once()

	s := New(backend, testLogger(t))
	sess := session.New(session.SkillCustom, "u1")
	sess.SetCredentials(session.Credentials{Username: "alice"})

	require.NoError(t, s.SaveToken(context.Background(), sess, &oauth2.Token{AccessToken: "acc", RefreshToken: "ref"}))

	backend.AssertExpectations(t)
	backend.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveToken_SmartHomeConditionalUpdateByUsername(t *testing.T) {
	expiry := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	backend := new(mockBackend)
	backend.On("Update", mock.Anything, "config-alice", map[string]string{
		"AccessToken":  "acc",
		"RefreshToken": "ref",
		"Expiry":       "2026-05-01T10:00:00Z",
	}, store.MustExist).Return(nil).Once()

	s := New(backend, testLogger(t))
	sess := session.New(session.SkillSmartHome, "amzn-1")
	sess.SetCredentials(session.Credentials{Username: "alice"})

	err := s.SaveToken(context.Background(), sess, &oauth2.Token{AccessToken: "acc", RefreshToken: "ref", Expiry: expiry})
	require.NoError(t, err)

	backend.AssertExpectations(t)
	backend.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestSaveToken_SmartHomeNeverCreatesRecord(t *testing.T) {
	m := seededMemory(t)
	s := New(m, testLogger(t))
	ctx := context.Background()

	sess := session.New(session.SkillSmartHome, "amzn-1")
	sess.SetCredentials(session.Credentials{Username: "ghost"})

	err := s.SaveToken(ctx, sess, &oauth2.Token{AccessToken: "acc"})

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "update", pe.Op)
	require.ErrorIs(t, err, store.ErrConditionFailed)

	_, getErr := m.Get(ctx, "config-ghost")
	require.ErrorIs(t, getErr, store.ErrNotFound)
}

func TestSaveToken_CustomWithoutUserID(t *testing.T) {
	s := New(store.NewMemory(), testLogger(t))
	sess := session.New(session.SkillCustom, "")

	require.ErrorIs(t, s.SaveToken(context.Background(), sess, &oauth2.Token{AccessToken: "a"}), ErrNoUserID)
}

func TestSaveSettings_Validates(t *testing.T) {
	s := New(store.NewMemory(), testLogger(t))

	err := s.SaveSettings(context.Background(), session.Settings{BaseURL: "https://x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token_url")
}

func TestSaveSettings_RoundTrip(t *testing.T) {
	m := store.NewMemory()
	s := New(m, testLogger(t))
	ctx := context.Background()

	require.NoError(t, s.SaveSettings(ctx, testSettings))

	item, err := m.Get(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, "https://app.velux-active.com", item["base_url"])
	assert.Equal(t, "1.6.0", item["app_version"])

	st, err := s.LoadSettings(ctx, session.New(session.SkillCustom, "u1"))
	require.NoError(t, err)
	assert.Equal(t, testSettings, st)
}

func TestSaveCredentials_SmartHomeCarriesUserID(t *testing.T) {
	m := store.NewMemory()
	s := New(m, testLogger(t))
	ctx := context.Background()

	key, err := s.SaveCredentials(ctx, session.SkillSmartHome, "amzn-1", session.Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "config-alice", key)

	found, err := s.FindKeyByAttribute(ctx, store.UserIDIndex, store.UserIDAttribute, "amzn-1")
	require.NoError(t, err)
	assert.Equal(t, "config-alice", found)
}

func TestSaveCredentials_RequiresUsernameAndPassword(t *testing.T) {
	s := New(store.NewMemory(), testLogger(t))

	_, err := s.SaveCredentials(context.Background(), session.SkillCustom, "u1", session.Credentials{Username: "alice"})
	require.Error(t, err)
}

func TestLinkUser(t *testing.T) {
	m := store.NewMemory()
	s := New(m, testLogger(t))
	ctx := context.Background()

	err := s.LinkUser(ctx, "alice", "amzn-1")
	require.ErrorIs(t, err, ErrCredentialsMissing)

	_, err = s.SaveCredentials(ctx, session.SkillSmartHome, "", session.Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, s.LinkUser(ctx, "alice", "amzn-1"))

	key, err := s.FindKeyByAttribute(ctx, store.UserIDIndex, store.UserIDAttribute, "amzn-1")
	require.NoError(t, err)
	assert.Equal(t, "config-alice", key)
}

func TestLinkUser_RelinkMovesUserID(t *testing.T) {
	m := store.NewMemory()
	s := New(m, testLogger(t))
	ctx := context.Background()

	for _, name := range []string{"alice", "bob"} {
		_, err := s.SaveCredentials(ctx, session.SkillSmartHome, "", session.Credentials{Username: name, Password: "pw"})
		require.NoError(t, err)
	}

	// "config-alice" sorts first, so a stale link on it would win lookups.
	require.NoError(t, s.LinkUser(ctx, "alice", "amzn-1"))
	require.NoError(t, s.LinkUser(ctx, "bob", "amzn-1"))

	key, err := s.FindKeyByAttribute(ctx, store.UserIDIndex, store.UserIDAttribute, "amzn-1")
	require.NoError(t, err)
	assert.Equal(t, "config-bob", key)

	alice, err := m.Get(ctx, "config-alice")
	require.NoError(t, err)
	assert.Empty(t, alice[store.UserIDAttribute])

	sess := session.New(session.SkillSmartHome, "amzn-1")
	creds, err := s.LoadCredentials(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "bob", creds.Username)
}

func TestLinkUser_MissingTargetKeepsExistingLink(t *testing.T) {
	m := store.NewMemory()
	s := New(m, testLogger(t))
	ctx := context.Background()

	_, err := s.SaveCredentials(ctx, session.SkillSmartHome, "amzn-1", session.Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	require.ErrorIs(t, s.LinkUser(ctx, "carol", "amzn-1"), ErrCredentialsMissing)

	key, err := s.FindKeyByAttribute(ctx, store.UserIDIndex, store.UserIDAttribute, "amzn-1")
	require.NoError(t, err)
	assert.Equal(t, "config-alice", key)
}

func TestFindKeyByAttribute_NotFoundWraps(t *testing.T) {
	s := New(store.NewMemory(), testLogger(t))

	_, err := s.FindKeyByAttribute(context.Background(), store.UserIDIndex, store.UserIDAttribute, "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCredentialsKey_NormalizesUnicode(t *testing.T) {
	// "é" as a single code point and as e + combining acute accent.
	composed := "rené"
	decomposed := "rené"

	assert.Equal(t, CredentialsKey(composed), CredentialsKey(decomposed))
	assert.Equal(t, "token-u1", TokenKey("u1"))
}
