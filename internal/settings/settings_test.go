package settings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aimessenger/aimessenger/internal/provider"
	"github.com/aimessenger/aimessenger/internal/remote"
)

// fakeRemote implements remote.Client in memory.
type fakeRemote struct {
	settings map[string]remote.SettingsRow
	models   map[string][]remote.ModelRow
	fail     bool
	getCalls int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		settings: make(map[string]remote.SettingsRow),
		models:   make(map[string][]remote.ModelRow),
	}
}

func (f *fakeRemote) GetSettings(ctx context.Context, userID string) (*remote.SettingsRow, error) {
	f.getCalls++
	if f.fail {
		return nil, errors.New("network down")
	}
	row, ok := f.settings[userID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (f *fakeRemote) UpsertSettings(ctx context.Context, row remote.SettingsRow) error {
	if f.fail {
		return errors.New("network down")
	}
	f.settings[row.UserID] = row
	return nil
}

func (f *fakeRemote) GetCustomModels(ctx context.Context, userID string) ([]remote.ModelRow, error) {
	if f.fail {
		return nil, errors.New("network down")
	}
	return f.models[userID], nil
}

func (f *fakeRemote) UpsertCustomModels(ctx context.Context, rows []remote.ModelRow) error {
	if f.fail {
		return errors.New("network down")
	}
	for _, row := range rows {
		f.models[row.UserID] = append(f.models[row.UserID], row)
	}
	return nil
}

func TestStore_DefaultsApplied(t *testing.T) {
	s := NewStore(nil, nil)

	got := s.Get()
	require.Equal(t, provider.OpenRouter, got.Provider)
	require.Equal(t, provider.DefaultLMStudioURL, got.LMStudioURL)
	require.Equal(t, DefaultSearchURL, got.SearchURL)
}

func TestStore_UpdateMergesPartial(t *testing.T) {
	s := NewStore(nil, nil)

	key := "sk-or-123"
	s.Update(Patch{OpenRouterAPIKey: &key})

	got := s.Get()
	require.Equal(t, "sk-or-123", got.OpenRouterAPIKey)
	// Untouched fields keep their values
	require.Equal(t, provider.OpenRouter, got.Provider)
	require.Equal(t, DefaultSearchURL, got.SearchURL)
}

func TestStore_LoadFromRemoteReplacesSnapshot(t *testing.T) {
	fake := newFakeRemote()
	fake.settings["user-1"] = remote.SettingsRow{
		UserID:   "user-1",
		Provider: provider.LMStudio,
	}
	s := NewStore(fake, nil)

	require.NoError(t, s.LoadFromRemote(context.Background(), "user-1"))
	require.Equal(t, provider.LMStudio, s.Get().Provider)
}

func TestStore_LoadFromRemoteMissingRowKeepsDefaults(t *testing.T) {
	s := NewStore(newFakeRemote(), nil)

	require.NoError(t, s.LoadFromRemote(context.Background(), "user-1"))
	require.Equal(t, Defaults(), s.Get())
}

func TestStore_LoadFromRemoteFailureLeavesState(t *testing.T) {
	fake := newFakeRemote()
	fake.fail = true
	s := NewStore(fake, nil)

	key := "sk-local"
	s.Update(Patch{OpenRouterAPIKey: &key})

	err := s.LoadFromRemote(context.Background(), "user-1")
	require.Error(t, err)
	require.Equal(t, "sk-local", s.Get().OpenRouterAPIKey)
}

func TestStore_SessionScopedFetchOnce(t *testing.T) {
	fake := newFakeRemote()
	fake.settings["user-1"] = remote.SettingsRow{UserID: "user-1", Provider: provider.N8N}
	s := NewStore(fake, nil)

	require.NoError(t, s.LoadFromRemote(context.Background(), "user-1"))

	// Local edit mid-session
	u := "https://n8n.example/webhook/chat"
	s.Update(Patch{N8NWebhookURL: &u})

	// A repeat load for the same identity must not clobber the edit
	require.NoError(t, s.LoadFromRemote(context.Background(), "user-1"))
	require.Equal(t, 1, fake.getCalls)
	require.Equal(t, u, s.Get().N8NWebhookURL)

	// A fresh session fetches again
	s.ResetSession()
	require.NoError(t, s.LoadFromRemote(context.Background(), "user-1"))
	require.Equal(t, 2, fake.getCalls)
}

func TestStore_SaveToRemoteFailureKeepsLocal(t *testing.T) {
	fake := newFakeRemote()
	s := NewStore(fake, nil)

	key := "sk-or-999"
	s.Update(Patch{OpenRouterAPIKey: &key})

	fake.fail = true
	require.Error(t, s.SaveToRemote(context.Background(), "user-1"))

	// The local update stands
	require.Equal(t, "sk-or-999", s.Get().OpenRouterAPIKey)
}

func TestStore_SaveToRemoteUpserts(t *testing.T) {
	fake := newFakeRemote()
	s := NewStore(fake, nil)

	key := "sk-or-1"
	s.Update(Patch{OpenRouterAPIKey: &key})
	require.NoError(t, s.SaveToRemote(context.Background(), "user-1"))

	require.Equal(t, "sk-or-1", fake.settings["user-1"].OpenRouterAPIKey)
}

func TestLocalMirror_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")

	s := NewStore(nil, nil)
	require.NoError(t, s.EnableLocalMirror(path))
	defer s.Close()

	u := "http://192.168.1.20:1234/v1"
	s.Update(Patch{LMStudioURL: &u})

	loaded, err := loadLocal(path)
	require.NoError(t, err)
	require.Equal(t, u, loaded.LMStudioURL)
	require.Equal(t, DefaultSearchURL, loaded.SearchURL)
}
