package catalog

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSongCRUD(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreateSong(Song{
		Name:     "Blue in Green",
		Artist:   "Miles Davis",
		Duration: 337,
		URL:      "http://files/blue-in-green.mp3",
		CoverURL: "http://files/kind-of-blue.jpg",
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := s.GetSong(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	created.Name = "Blue In Green (Remastered)"
	require.NoError(t, s.UpdateSong(created))

	got, err = s.GetSong(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Blue In Green (Remastered)", got.Name)

	require.NoError(t, s.DeleteSong(created.ID))
	_, err = s.GetSong(created.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListSongsNameFilter(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"So What", "Freddie Freeloader", "All Blues"} {
		_, err := s.CreateSong(Song{Name: name, URL: "http://files/x.mp3"})
		require.NoError(t, err)
	}

	all, err := s.ListSongs("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	blues, err := s.ListSongs("blues")
	require.NoError(t, err)
	require.Len(t, blues, 1)
	assert.Equal(t, "All Blues", blues[0].Name)

	none, err := s.ListSongs("nothing here")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAlbumEmbedsSongs(t *testing.T) {
	s := newTestStore(t)

	album, err := s.CreateAlbum(Album{Name: "Kind of Blue", Artist: "Miles Davis"})
	require.NoError(t, err)

	for _, name := range []string{"So What", "All Blues"} {
		_, err := s.CreateSong(Song{Name: name, URL: "http://files/x.mp3", AlbumID: &album.ID})
		require.NoError(t, err)
	}
	_, err = s.CreateSong(Song{Name: "Single", URL: "http://files/s.mp3"})
	require.NoError(t, err)

	got, err := s.GetAlbum(album.ID)
	require.NoError(t, err)
	require.Len(t, got.Songs, 2)
	assert.Equal(t, "So What", got.Songs[0].Name)

	albums, err := s.ListAlbums()
	require.NoError(t, err)
	require.Len(t, albums, 1)
	assert.Empty(t, albums[0].Songs)
}

func TestDeleteAlbumKeepsSongs(t *testing.T) {
	s := newTestStore(t)

	album, err := s.CreateAlbum(Album{Name: "Kind of Blue"})
	require.NoError(t, err)
	song, err := s.CreateSong(Song{Name: "So What", URL: "http://files/x.mp3", AlbumID: &album.ID})
	require.NoError(t, err)

	require.NoError(t, s.DeleteAlbum(album.ID))

	got, err := s.GetSong(song.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AlbumID)
}

func TestUpdateMissingRows(t *testing.T) {
	s := newTestStore(t)

	assert.True(t, errors.Is(s.UpdateSong(Song{ID: 99}), ErrNotFound))
	assert.True(t, errors.Is(s.DeleteSong(99), ErrNotFound))
	assert.True(t, errors.Is(s.UpdateAlbum(Album{ID: 99}), ErrNotFound))
	assert.True(t, errors.Is(s.DeleteAlbum(99), ErrNotFound))

	_, err := s.GetAlbum(42)
	assert.True(t, errors.Is(err, ErrNotFound))
}
