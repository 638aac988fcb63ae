package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"arkeep/internal/api"
	"arkeep/internal/articles"
	"arkeep/internal/migrate"
	"arkeep/internal/mirror"
	"arkeep/internal/model"
	"arkeep/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newGuestStack wires the front-door over a guest-mode data layer: the
// fake remote rejects everything except metadata previews, so every
// operation lands in the in-memory mirror.
func newGuestStack(t *testing.T) *httptest.Server {
	t.Helper()

	remote := http.NewServeMux()
	remote.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"code":"UNAUTHORIZED","message":"Invalid refresh token"}`)
	})
	remote.HandleFunc("/metadata/preview", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"url":"https://example.com/a","title":"Previewed","description":"From preview","imageUrl":null,"domain":"example.com"}`)
	})
	remote.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"code":"UNAUTHORIZED","message":"Authentication required"}`)
	})
	remoteSrv := httptest.NewServer(remote)
	t.Cleanup(remoteSrv.Close)

	backend, err := mirror.NewInMemoryBackend()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	sessions := session.NewStore()
	client := api.NewClient(remoteSrv.URL, sessions, nil, zap.NewNop())
	store := mirror.NewStore(backend, zap.NewNop())
	svc := articles.NewService(client, store, sessions, zap.NewNop())
	migrator := migrate.NewCoordinator(client, store, sessions, zap.NewNop())

	s := NewServer(svc, migrator, sessions, zap.NewNop())
	front := httptest.NewServer(s.router)
	t.Cleanup(front.Close)
	return front
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	return resp
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestCreateAndListArticles(t *testing.T) {
	front := newGuestStack(t)

	resp := postJSON(t, front.URL+"/articles", `{"url":"https://example.com/a","category":"Tech"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created model.Article
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.Equal(t, "Previewed", created.Title)

	resp = postJSON(t, front.URL+"/articles", `{"url":"https://example.com/a"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var errBody struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	resp.Body.Close()
	assert.Equal(t, "CONFLICT", errBody.Code)

	listResp, err := http.Get(front.URL + "/articles?category=Tech")
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var page model.Page
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, created.ID, page.Items[0].ID)
}

func TestCreateRejectsNonHTTPURL(t *testing.T) {
	front := newGuestStack(t)

	resp := postJSON(t, front.URL+"/articles", `{"url":"ftp://example.com/a"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateAndDeleteArticle(t *testing.T) {
	front := newGuestStack(t)

	resp := postJSON(t, front.URL+"/articles", `{"url":"https://example.com/a"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created model.Article
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	patch := doJSON(t, http.MethodPatch, fmt.Sprintf("%s/articles/%d", front.URL, created.ID), `{"isRead":true}`)
	require.Equal(t, http.StatusOK, patch.StatusCode)
	var updated model.Article
	require.NoError(t, json.NewDecoder(patch.Body).Decode(&updated))
	patch.Body.Close()
	assert.True(t, updated.IsRead)

	del := doJSON(t, http.MethodDelete, fmt.Sprintf("%s/articles/%d", front.URL, created.ID), "")
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	again := doJSON(t, http.MethodDelete, fmt.Sprintf("%s/articles/%d", front.URL, created.ID), "")
	defer again.Body.Close()
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
}

func TestFacetsEndpoint(t *testing.T) {
	front := newGuestStack(t)

	postJSON(t, front.URL+"/articles", `{"url":"https://example.com/a","category":"Tech"}`).Body.Close()
	postJSON(t, front.URL+"/articles", `{"url":"https://example.com/b","category":"Tech"}`).Body.Close()

	resp, err := http.Get(front.URL + "/articles/facets")
	require.NoError(t, err)
	defer resp.Body.Close()

	var facets model.Facets
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&facets))
	assert.Equal(t, []string{"Tech"}, facets.Categories)
	assert.Equal(t, []string{"example.com"}, facets.Domains)
}

func TestSessionEndpointReportsGuest(t *testing.T) {
	front := newGuestStack(t)

	resp, err := http.Get(front.URL + "/session")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Authenticated bool `json:"authenticated"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Authenticated)
}
