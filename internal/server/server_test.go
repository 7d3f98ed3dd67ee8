package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimessenger/aimessenger/internal/catalog"
	"github.com/aimessenger/aimessenger/internal/conversation"
	"github.com/aimessenger/aimessenger/internal/dispatch"
	"github.com/aimessenger/aimessenger/internal/event"
	"github.com/aimessenger/aimessenger/internal/health"
	"github.com/aimessenger/aimessenger/internal/provider"
	"github.com/aimessenger/aimessenger/internal/settings"
	"github.com/aimessenger/aimessenger/internal/storage"
)

type testGateway struct {
	http     *httptest.Server
	settings *settings.Store
	pipeline *dispatch.Pipeline
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	require.NoError(t, storage.Init(filepath.Join(t.TempDir(), "test.db")))

	bus := event.NewBus()
	registry := provider.NewRegistry()
	st := settings.NewStore(nil, bus)
	cat := catalog.New(st, registry, nil, bus)
	cat.Initialize()
	convs := conversation.NewStore(bus)
	pipeline := dispatch.NewPipeline(convs, cat, st, registry)
	monitor := health.NewMonitor(st, registry, bus)

	gw := New("", bus, convs, pipeline, cat, st, monitor)
	srv := httptest.NewServer(gw.routes())
	t.Cleanup(srv.Close)

	return &testGateway{http: srv, settings: st, pipeline: pipeline}
}

func (g *testGateway) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, g.http.URL+path, &buf)
	require.NoError(t, err)
	resp, err := g.http.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestConversationLifecycle(t *testing.T) {
	g := newTestGateway(t)

	resp := g.do(t, http.MethodPost, "/api/conversations", map[string]string{"model_id": "nova"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[storage.Conversation](t, resp)
	assert.Equal(t, "nova", created.ModelID)

	resp = g.do(t, http.MethodGet, "/api/conversations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]storage.Conversation](t, resp)
	require.Len(t, list, 1)

	resp = g.do(t, http.MethodDelete, "/api/conversations/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = g.do(t, http.MethodGet, "/api/conversations/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateConversationUnknownPersona(t *testing.T) {
	g := newTestGateway(t)

	resp := g.do(t, http.MethodPost, "/api/conversations", map[string]string{"model_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSendMessageValidation(t *testing.T) {
	g := newTestGateway(t)

	resp := g.do(t, http.MethodPost, "/api/conversations", map[string]string{"model_id": "echo"})
	created := decode[storage.Conversation](t, resp)

	resp = g.do(t, http.MethodPost, "/api/conversations/"+created.ID+"/messages", map[string]string{"content": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = g.do(t, http.MethodPost, "/api/conversations/missing/messages", map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSendMessageResolvesOverRest(t *testing.T) {
	g := newTestGateway(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "hello there"}},
			},
		})
	}))
	defer upstream.Close()
	g.settings.Update(settings.Patch{LMStudioURL: &upstream.URL})

	resp := g.do(t, http.MethodPost, "/api/conversations", map[string]string{"model_id": "echo"})
	created := decode[storage.Conversation](t, resp)

	resp = g.do(t, http.MethodPost, "/api/conversations/"+created.ID+"/messages", map[string]string{"content": "hi"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	g.pipeline.Wait()

	resp = g.do(t, http.MethodGet, "/api/conversations/"+created.ID+"/messages", nil)
	msgs := decode[[]storage.Message](t, resp)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello there", msgs[1].Content)
	assert.False(t, msgs[1].IsTyping)
}

func TestTranscriptEndpoint(t *testing.T) {
	g := newTestGateway(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "hey"}},
			},
		})
	}))
	defer upstream.Close()
	g.settings.Update(settings.Patch{LMStudioURL: &upstream.URL})

	resp := g.do(t, http.MethodPost, "/api/conversations", map[string]string{"model_id": "echo"})
	created := decode[storage.Conversation](t, resp)

	resp = g.do(t, http.MethodPost, "/api/conversations/"+created.ID+"/messages", map[string]string{"content": "hi"})
	resp.Body.Close()
	g.pipeline.Wait()

	resp = g.do(t, http.MethodGet, "/api/conversations/"+created.ID+"/transcript", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "You: hi")
	assert.Contains(t, string(raw), "Echo: hey")
}

func TestModelsEndpoints(t *testing.T) {
	g := newTestGateway(t)

	resp := g.do(t, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listing := decode[struct {
		Models []catalog.AIModel `json:"models"`
	}](t, resp)
	assert.NotEmpty(t, listing.Models)

	resp = g.do(t, http.MethodPost, "/api/models", map[string]string{
		"name": "Helper", "provider": "openrouter", "api_model": "openai/gpt-4o",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	custom := decode[catalog.AIModel](t, resp)
	assert.True(t, custom.Custom)

	newName := "Renamed"
	resp = g.do(t, http.MethodPut, "/api/models/"+custom.ID, catalog.Patch{Name: &newName})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[catalog.AIModel](t, resp)
	assert.Equal(t, "Renamed", updated.Name)

	resp = g.do(t, http.MethodPost, "/api/models", map[string]string{
		"name": "Bad", "provider": "mystery",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSettingsEndpoints(t *testing.T) {
	g := newTestGateway(t)

	resp := g.do(t, http.MethodGet, "/api/settings", nil)
	current := decode[settings.APISettings](t, resp)
	assert.Equal(t, provider.OpenRouter, current.Provider)

	prov := "lmstudio"
	resp = g.do(t, http.MethodPut, "/api/settings", settings.Patch{Provider: &prov})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[settings.APISettings](t, resp)
	assert.Equal(t, "lmstudio", updated.Provider)
}

func TestStatusEndpoint(t *testing.T) {
	g := newTestGateway(t)

	resp := g.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	statuses := decode[map[string]health.ConnectionStatus](t, resp)
	assert.Len(t, statuses, 3)
	assert.Contains(t, statuses, "chat")
}

func TestWebSocketPingPong(t *testing.T) {
	g := newTestGateway(t)

	wsURL := "ws" + strings.TrimPrefix(g.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "ping"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply WSMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "pong", reply.Type)
}
