// Package rest serves the catalog CRUD API and the operational
// endpoints.
package rest

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"

	"github.com/waveroom/waveroom/internal/app/clock"
	"github.com/waveroom/waveroom/internal/app/hub"
	"github.com/waveroom/waveroom/internal/app/roomstate"
	"github.com/waveroom/waveroom/internal/infra/catalog"
)

// Handler serves the REST routes.
type Handler struct {
	catalog *catalog.Store
	rooms   *roomstate.Manager
	hub     *hub.Hub
	clock   *clock.Runner
}

// NewHandler wires the REST surface to its collaborators.
func NewHandler(cat *catalog.Store, rooms *roomstate.Manager, h *hub.Hub, clk *clock.Runner) *Handler {
	return &Handler{catalog: cat, rooms: rooms, hub: h, clock: clk}
}

// Register mounts every route on the router.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/health", h.health)
	r.GET("/stats", h.stats)

	r.GET("/api/songs", h.listSongs)
	r.POST("/api/songs", h.createSong)
	r.GET("/api/songs/:id", h.getSong)
	r.PUT("/api/songs/:id", h.updateSong)
	r.DELETE("/api/songs/:id", h.deleteSong)

	r.GET("/api/albums", h.listAlbums)
	r.POST("/api/albums", h.createAlbum)
	r.GET("/api/albums/:id", h.getAlbum)
	r.PUT("/api/albums/:id", h.updateAlbum)
	r.DELETE("/api/albums/:id", h.deleteAlbum)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) stats(c *gin.Context) {
	_, clients := h.hub.Stats()
	c.JSON(http.StatusOK, gin.H{
		"rooms":        h.rooms.Count(),
		"clients":      clients,
		"broadcasters": h.clock.Running(),
	})
}

func (h *Handler) listSongs(c *gin.Context) {
	songs, err := h.catalog.ListSongs(c.Query("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if songs == nil {
		songs = []catalog.Song{}
	}
	c.JSON(http.StatusOK, songs)
}

func (h *Handler) getSong(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	song, err := h.catalog.GetSong(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, song)
}

func (h *Handler) createSong(c *gin.Context) {
	var song catalog.Song
	if err := c.ShouldBindJSON(&song); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid song payload"})
		return
	}
	created, err := h.catalog.CreateSong(song)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) updateSong(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var song catalog.Song
	if err := c.ShouldBindJSON(&song); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid song payload"})
		return
	}
	song.ID = id
	if err := h.catalog.UpdateSong(song); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, song)
}

func (h *Handler) deleteSong(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.catalog.DeleteSong(id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listAlbums(c *gin.Context) {
	albums, err := h.catalog.ListAlbums()
	if err != nil {
		h.fail(c, err)
		return
	}
	if albums == nil {
		albums = []catalog.Album{}
	}
	c.JSON(http.StatusOK, albums)
}

func (h *Handler) getAlbum(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	album, err := h.catalog.GetAlbum(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, album)
}

func (h *Handler) createAlbum(c *gin.Context) {
	var album catalog.Album
	if err := c.ShouldBindJSON(&album); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid album payload"})
		return
	}
	created, err := h.catalog.CreateAlbum(album)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) updateAlbum(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var album catalog.Album
	if err := c.ShouldBindJSON(&album); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid album payload"})
		return
	}
	album.ID = id
	if err := h.catalog.UpdateAlbum(album); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, album)
}

func (h *Handler) deleteAlbum(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.catalog.DeleteAlbum(id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	zlog.Error().Msgf("catalog request failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
