package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPClient_GetSettings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/v1/api_settings", r.URL.Path)
		require.Equal(t, "eq.user-1", r.URL.Query().Get("user_id"))
		require.Equal(t, "anon-key", r.Header.Get("apikey"))
		w.Write([]byte(`[{"user_id":"user-1","provider":"lmstudio","lmstudio_url":"http://10.0.0.5:1234/v1"}]`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "anon-key")
	row, err := c.GetSettings(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, "lmstudio", row.Provider)
	require.Equal(t, "http://10.0.0.5:1234/v1", row.LMStudioURL)
}

func TestHTTPClient_GetSettingsMissingRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "anon-key")
	row, err := c.GetSettings(context.Background(), "user-1")
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestHTTPClient_UpsertSettings(t *testing.T) {
	var gotPrefer string
	var gotRows []SettingsRow

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "user_id", r.URL.Query().Get("on_conflict"))
		gotPrefer = r.Header.Get("Prefer")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRows))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "anon-key")
	err := c.UpsertSettings(context.Background(), SettingsRow{UserID: "user-1", Provider: "openrouter"})
	require.NoError(t, err)
	require.Contains(t, gotPrefer, "merge-duplicates")
	require.Len(t, gotRows, 1)
	require.Equal(t, "user-1", gotRows[0].UserID)
	require.NotEmpty(t, gotRows[0].UpdatedAt)
}

func TestHTTPClient_GetSettingsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "anon-key")
	_, err := c.GetSettings(context.Background(), "user-1")
	require.Error(t, err)
}

func TestHTTPClient_UpsertCustomModelsEmpty(t *testing.T) {
	// No rows means no request at all
	c := NewHTTPClient("http://127.0.0.1:1", "anon-key")
	require.NoError(t, c.UpsertCustomModels(context.Background(), nil))
}

func TestSessionWatcher_Transitions(t *testing.T) {
	w := NewSessionWatcher()

	var got []string
	w.Subscribe(func(userID string) {
		got = append(got, userID)
	})

	w.SetIdentity("user-1")
	w.SetIdentity("user-1") // duplicate, no notification
	w.SetIdentity("")
	w.SetIdentity("user-2")

	require.Equal(t, []string{"user-1", "", "user-2"}, got)
	require.Equal(t, "user-2", w.UserID())
}

func TestSessionWatcher_LateSubscriberSeesCurrentIdentity(t *testing.T) {
	w := NewSessionWatcher()
	w.SetIdentity("user-1")

	var got string
	w.Subscribe(func(userID string) { got = userID })

	require.Equal(t, "user-1", got)
}
