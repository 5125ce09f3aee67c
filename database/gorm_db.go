package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/catalogmirror/models"
)

// SchemaVersion is bumped on any structural change to the mirrored tables.
// The sync scheduler compares it against the stored app_state row at startup
// and forces a full sync when they differ, since an incremental pass cannot be
// trusted across a migration.
const SchemaVersion = 3

// InitGormDB initializes and returns a GORM database instance
func InitGormDB(dataSourceName string) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dataSourceName), &gorm.Config{
		Logger: gormLogger,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	// enable write-ahead logging for better concurrency
	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		log.Printf("warning: failed to set WAL mode: %v", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("GORM Database initialized successfully at", dataSourceName)
	return db, nil
}

// AutoMigrateModels can be called after InitGormDB to migrate schemas
func AutoMigrateModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.SourceInstance{},
		&models.Scene{},
		&models.Performer{},
		&models.Studio{},
		&models.Tag{},
		&models.Group{},
		&models.Gallery{},
		&models.Image{},
		&models.Clip{},
		&models.ScenePerformer{},
		&models.SceneTag{},
		&models.SceneGroup{},
		&models.SceneGallery{},
		&models.GalleryImage{},
		&models.PerformerTag{},
		&models.TagRelation{},
		&models.StudioRelation{},
		&models.GroupRelation{},
		&models.SyncCursor{},
		&models.MergeRecord{},
		&models.UserExclusion{},
		&models.UserVisibleCount{},
		&models.AppState{},
		&models.User{},
		&models.Rating{},
		&models.WatchHistory{},
		&models.Favorite{},
		&models.HiddenEntity{},
		&models.RestrictionRule{},
	)
	if err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	log.Println("GORM AutoMigrate completed successfully.")
	return nil
}
