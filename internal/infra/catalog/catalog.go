// Package catalog persists the song and album library in SQLite.
package catalog

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Song is one playable entry in the library.
type Song struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Artist   string  `json:"artist"`
	Duration float64 `json:"duration"`
	URL      string  `json:"url"`
	CoverURL string  `json:"cover_url"`
	AlbumID  *int64  `json:"album_id,omitempty"`
}

// Album groups songs; Songs is populated on single-album reads.
type Album struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Artist string `json:"artist"`
	Songs  []Song `json:"songs,omitempty"`
}

// Store wraps the SQLite library database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path, applying the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create catalog dir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog database")
	}

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "configure catalog database")
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS albums (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			name   TEXT NOT NULL,
			artist TEXT NOT NULL DEFAULT ''
		);
	`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create albums table")
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS songs (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			name      TEXT NOT NULL,
			artist    TEXT NOT NULL DEFAULT '',
			duration  REAL NOT NULL DEFAULT 0,
			url       TEXT NOT NULL,
			cover_url TEXT NOT NULL DEFAULT '',
			album_id  INTEGER REFERENCES albums(id) ON DELETE SET NULL
		);
	`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create songs table")
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListSongs returns songs ordered by id, optionally filtered by a
// case-insensitive name substring.
func (s *Store) ListSongs(nameFilter string) ([]Song, error) {
	query := `SELECT id, name, artist, duration, url, cover_url, album_id FROM songs`
	var args []any
	if nameFilter != "" {
		query += ` WHERE name LIKE ? COLLATE NOCASE`
		args = append(args, "%"+nameFilter+"%")
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list songs")
	}
	defer rows.Close()

	return scanSongs(rows)
}

// GetSong returns one song by id.
func (s *Store) GetSong(id int64) (Song, error) {
	row := s.db.QueryRow(
		`SELECT id, name, artist, duration, url, cover_url, album_id FROM songs WHERE id = ?`, id)

	var song Song
	err := row.Scan(&song.ID, &song.Name, &song.Artist, &song.Duration, &song.URL, &song.CoverURL, &song.AlbumID)
	if errors.Is(err, sql.ErrNoRows) {
		return Song{}, errors.Wrapf(ErrNotFound, "song %d", id)
	}
	if err != nil {
		return Song{}, errors.Wrap(err, "get song")
	}
	return song, nil
}

// CreateSong inserts the song and returns it with its assigned id.
func (s *Store) CreateSong(song Song) (Song, error) {
	res, err := s.db.Exec(
		`INSERT INTO songs (name, artist, duration, url, cover_url, album_id) VALUES (?, ?, ?, ?, ?, ?)`,
		song.Name, song.Artist, song.Duration, song.URL, song.CoverURL, song.AlbumID)
	if err != nil {
		return Song{}, errors.Wrap(err, "create song")
	}
	song.ID, _ = res.LastInsertId()
	return song, nil
}

// UpdateSong replaces every mutable field of the song.
func (s *Store) UpdateSong(song Song) error {
	res, err := s.db.Exec(
		`UPDATE songs SET name = ?, artist = ?, duration = ?, url = ?, cover_url = ?, album_id = ? WHERE id = ?`,
		song.Name, song.Artist, song.Duration, song.URL, song.CoverURL, song.AlbumID, song.ID)
	if err != nil {
		return errors.Wrap(err, "update song")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "song %d", song.ID)
	}
	return nil
}

// DeleteSong removes the song by id.
func (s *Store) DeleteSong(id int64) error {
	res, err := s.db.Exec(`DELETE FROM songs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete song")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "song %d", id)
	}
	return nil
}

// ListAlbums returns albums ordered by id, without their songs.
func (s *Store) ListAlbums() ([]Album, error) {
	rows, err := s.db.Query(`SELECT id, name, artist FROM albums ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list albums")
	}
	defer rows.Close()

	var albums []Album
	for rows.Next() {
		var a Album
		if err := rows.Scan(&a.ID, &a.Name, &a.Artist); err != nil {
			return nil, errors.Wrap(err, "scan album")
		}
		albums = append(albums, a)
	}
	return albums, errors.Wrap(rows.Err(), "list albums")
}

// GetAlbum returns one album with its songs embedded.
func (s *Store) GetAlbum(id int64) (Album, error) {
	row := s.db.QueryRow(`SELECT id, name, artist FROM albums WHERE id = ?`, id)

	var a Album
	err := row.Scan(&a.ID, &a.Name, &a.Artist)
	if errors.Is(err, sql.ErrNoRows) {
		return Album{}, errors.Wrapf(ErrNotFound, "album %d", id)
	}
	if err != nil {
		return Album{}, errors.Wrap(err, "get album")
	}

	rows, err := s.db.Query(
		`SELECT id, name, artist, duration, url, cover_url, album_id FROM songs WHERE album_id = ? ORDER BY id`, id)
	if err != nil {
		return Album{}, errors.Wrap(err, "get album songs")
	}
	defer rows.Close()

	a.Songs, err = scanSongs(rows)
	if err != nil {
		return Album{}, err
	}
	return a, nil
}

// CreateAlbum inserts the album and returns it with its assigned id.
func (s *Store) CreateAlbum(a Album) (Album, error) {
	res, err := s.db.Exec(`INSERT INTO albums (name, artist) VALUES (?, ?)`, a.Name, a.Artist)
	if err != nil {
		return Album{}, errors.Wrap(err, "create album")
	}
	a.ID, _ = res.LastInsertId()
	return a, nil
}

// UpdateAlbum replaces the album's fields.
func (s *Store) UpdateAlbum(a Album) error {
	res, err := s.db.Exec(`UPDATE albums SET name = ?, artist = ? WHERE id = ?`, a.Name, a.Artist, a.ID)
	if err != nil {
		return errors.Wrap(err, "update album")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "album %d", a.ID)
	}
	return nil
}

// DeleteAlbum removes the album; its songs survive with album_id NULL.
func (s *Store) DeleteAlbum(id int64) error {
	res, err := s.db.Exec(`DELETE FROM albums WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete album")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "album %d", id)
	}
	return nil
}

func scanSongs(rows *sql.Rows) ([]Song, error) {
	var songs []Song
	for rows.Next() {
		var song Song
		if err := rows.Scan(&song.ID, &song.Name, &song.Artist, &song.Duration, &song.URL, &song.CoverURL, &song.AlbumID); err != nil {
			return nil, errors.Wrap(err, "scan song")
		}
		songs = append(songs, song)
	}
	return songs, errors.Wrap(rows.Err(), "scan songs")
}
