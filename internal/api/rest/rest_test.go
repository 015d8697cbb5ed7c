package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveroom/waveroom/internal/app/clock"
	"github.com/waveroom/waveroom/internal/app/hub"
	"github.com/waveroom/waveroom/internal/app/roomstate"
	"github.com/waveroom/waveroom/internal/infra/catalog"
)

func newTestRouter(t *testing.T) (*gin.Engine, *roomstate.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	rooms := roomstate.NewManager(time.Hour)
	h := hub.New()
	clk := clock.New(rooms, h, time.Hour)
	t.Cleanup(clk.StopAll)

	r := gin.New()
	NewHandler(cat, rooms, h, clk).Register(r)
	return r, rooms
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStats(t *testing.T) {
	r, rooms := newTestRouter(t)
	rooms.Join("room1", "alice")

	w := do(t, r, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats["rooms"])
	assert.Equal(t, 0, stats["clients"])
	assert.Equal(t, 0, stats["broadcasters"])
}

func TestSongLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/songs", catalog.Song{
		Name: "So What", Artist: "Miles Davis", URL: "http://files/so-what.mp3",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created catalog.Song
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	w = do(t, r, http.MethodGet, "/api/songs/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	created.Name = "So What (Live)"
	w = do(t, r, http.MethodPut, "/api/songs/1", created)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/songs?name=live", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var songs []catalog.Song
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &songs))
	require.Len(t, songs, 1)
	assert.Equal(t, "So What (Live)", songs[0].Name)

	w = do(t, r, http.MethodDelete, "/api/songs/1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodGet, "/api/songs/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAlbumWithSongs(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/albums", catalog.Album{Name: "Kind of Blue", Artist: "Miles Davis"})
	require.Equal(t, http.StatusCreated, w.Code)
	var album catalog.Album
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &album))

	w = do(t, r, http.MethodPost, "/api/songs", catalog.Song{
		Name: "All Blues", URL: "http://files/all-blues.mp3", AlbumID: &album.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, r, http.MethodGet, "/api/albums/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got catalog.Album
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Songs, 1)
	assert.Equal(t, "All Blues", got.Songs[0].Name)
}

func TestBadRequests(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/songs/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/songs", bytes.NewBufferString("{broken"))
	req.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusBadRequest, w2.Code)

	w = do(t, r, http.MethodGet, "/api/albums/77", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEmptyListsAreArrays(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/songs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	w = do(t, r, http.MethodGet, "/api/albums", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}
