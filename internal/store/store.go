package store

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aiamusic/api/internal/config"
	"github.com/aiamusic/api/internal/model"
)

// Store bundles the database handle and the per-entity stores. It is
// constructed once at process start and passed into every component
// that needs persistence.
type Store struct {
	db *gorm.DB

	Songs     *SongStore
	Styles    *StyleStore
	Users     *UserStore
	Playlists *PlaylistStore
}

// Open connects to MySQL, runs migrations and returns the store.
func Open(cfg *config.DatabaseConfig, logLevel string) (*Store, error) {
	gormLevel := gormlogger.Warn
	if logLevel == "debug" {
		gormLevel = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := db.AutoMigrate(
		&model.User{},
		&model.Style{},
		&model.Song{},
		&model.Playlist{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Printf("[Store] connected to %s/%s", cfg.Host, cfg.Name)

	return New(db), nil
}

// New wraps an existing gorm handle. Used by Open and by tests that
// provide their own database.
func New(db *gorm.DB) *Store {
	return &Store{
		db:        db,
		Songs:     &SongStore{db: db},
		Styles:    &StyleStore{db: db},
		Users:     &UserStore{db: db},
		Playlists: &PlaylistStore{db: db},
	}
}
