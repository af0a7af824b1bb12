package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// trackRecord is the database row behind a Track.
type trackRecord struct {
	ID           string `gorm:"primaryKey;size:36"`
	Title        string
	Artist       string `gorm:"index"`
	Album        string
	Location     string `gorm:"not null;uniqueIndex"`
	DurationMs   int64
	Tempo        float64
	WaveformPath string
	PlayCount    int `gorm:"not null;default:0"`
	LastPlayed   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (trackRecord) TableName() string { return "tracks" }

func recordFromTrack(t *Track) trackRecord {
	r := trackRecord{
		ID:           t.ID.String(),
		Title:        t.Title,
		Artist:       t.Artist,
		Album:        t.Album,
		Location:     t.Location,
		DurationMs:   t.Duration.Milliseconds(),
		Tempo:        t.Tempo,
		WaveformPath: t.WaveformPath,
		PlayCount:    t.PlayCount,
	}
	if !t.LastPlayed.IsZero() {
		lp := t.LastPlayed
		r.LastPlayed = &lp
	}
	return r
}

func (r trackRecord) track() (Track, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return Track{}, fmt.Errorf("library: bad track id %q: %w", r.ID, err)
	}
	t := Track{
		ID:           id,
		Title:        r.Title,
		Artist:       r.Artist,
		Album:        r.Album,
		Location:     r.Location,
		Duration:     time.Duration(r.DurationMs) * time.Millisecond,
		Tempo:        r.Tempo,
		WaveformPath: r.WaveformPath,
		PlayCount:    r.PlayCount,
	}
	if r.LastPlayed != nil {
		t.LastPlayed = *r.LastPlayed
	}
	return t, nil
}

// SQLStore is a Store backed by a SQLite database through gorm.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQL opens (creating if needed) the SQLite database at path and
// migrates the schema.
func OpenSQL(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open library db: %w", err)
	}
	if err := db.AutoMigrate(&trackRecord{}); err != nil {
		return nil, fmt.Errorf("migrate library db: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) Track(ctx context.Context, id uuid.UUID) (Track, error) {
	var r trackRecord
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id.String()).Error; err != nil {
		return Track{}, notFound(err, "track "+id.String())
	}
	return r.track()
}

func (s *SQLStore) TrackByLocation(ctx context.Context, location string) (Track, error) {
	var r trackRecord
	if err := s.db.WithContext(ctx).First(&r, "location = ?", location).Error; err != nil {
		return Track{}, notFound(err, "location "+location)
	}
	return r.track()
}

// Tracks returns all tracks ordered by artist, album and title.
func (s *SQLStore) Tracks(ctx context.Context) ([]Track, error) {
	var rows []trackRecord
	if err := s.db.WithContext(ctx).Order("artist, album, title").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	out := make([]Track, 0, len(rows))
	for _, r := range rows {
		t, err := r.track()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Save inserts or replaces t, assigning an ID when it has none.
func (s *SQLStore) Save(ctx context.Context, t *Track) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r := recordFromTrack(t)
	if err := s.db.WithContext(ctx).Save(&r).Error; err != nil {
		return fmt.Errorf("save track %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&trackRecord{}, "id = ?", id.String())
	return rowsAffected(res, id)
}

func (s *SQLStore) SetTempo(ctx context.Context, id uuid.UUID, bpm float64) error {
	res := s.db.WithContext(ctx).Model(&trackRecord{}).Where("id = ?", id.String()).Update("tempo", bpm)
	return rowsAffected(res, id)
}

func (s *SQLStore) SetWaveformPath(ctx context.Context, id uuid.UUID, path string) error {
	res := s.db.WithContext(ctx).Model(&trackRecord{}).Where("id = ?", id.String()).Update("waveform_path", path)
	return rowsAffected(res, id)
}

func (s *SQLStore) IncrementPlayCount(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&trackRecord{}).Where("id = ?", id.String()).Updates(map[string]any{
		"play_count":  gorm.Expr("play_count + ?", 1),
		"last_played": time.Now(),
	})
	return rowsAffected(res, id)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func rowsAffected(res *gorm.DB, id uuid.UUID) error {
	if res.Error != nil {
		return fmt.Errorf("update track %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: track %s", ErrNotFound, id)
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
