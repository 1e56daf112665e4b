package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/heatbox/extension/internal/config"
	"github.com/heatbox/extension/internal/model"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SchemaVersion is stored in heatbox_infos and PRAGMA user_version.
const SchemaVersion = 1

var memoryDBCounter atomic.Uint64

// Postgres returns a connection to the Postgres database described by cfg.
func Postgres(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
	)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	return db, nil
}

// SQLite returns a connection to a SQLite database.
// If path is empty, uses a private in-memory database.
func SQLite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = fmt.Sprintf("file:heatbox_%d?mode=memory&cache=shared", memoryDBCounter.Add(1))
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// set PRAGMAS
	pragmas := []string{
		fmt.Sprintf("PRAGMA user_version = %d;", SchemaVersion),
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %s", err)
		}
	}

	return db, nil
}

// Setup migrates tables and writes the info row if it doesn't exist.
func Setup(db *gorm.DB, version string, log zerolog.Logger) error {
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`CREATE Extension IF NOT EXISTS postgis;`).Error; err != nil {
			return fmt.Errorf("failed to create PostGIS Extension: %w", err)
		}
		log.Info().Msg("PostGIS Extension created")
	}

	log.Info().Msg("Migrating schema")
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	var count int64
	if err := db.Model(&model.HeatboxInfo{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to read heatbox_infos: %w", err)
	}
	if count == 0 {
		err := db.Create(&model.HeatboxInfo{
			Name:             "heatbox",
			ExtensionVersion: version,
			SchemaVersion:    SchemaVersion,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to create heatbox_infos entry: %w", err)
		}
	}

	log.Info().Msg("Database setup complete")
	return nil
}

// DumpToDisk vacuums the database into a file, replacing any existing one.
func DumpToDisk(db *gorm.DB, path string, log zerolog.Logger) error {
	if path == "" {
		return fmt.Errorf("sqlite file path not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}

	// remove existing file if it exists
	if exists, err := os.Stat(path); err == nil && exists != nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("error removing existing DB file: %s", err)
		}
	}

	start := time.Now()
	quoted := strings.ReplaceAll(path, "'", "''")
	if err := db.Exec("VACUUM INTO '" + quoted + "';").Error; err != nil {
		return fmt.Errorf("error dumping memory DB to disk: %s", err)
	}

	log.Debug().Dur("duration", time.Since(start)).Str("path", path).Msg("Dumped memory DB to disk")
	return nil
}

// BackupPaths returns paths to all .db files in the given directory.
func BackupPaths(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var dbPaths []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".db") {
			dbPaths = append(dbPaths, filepath.Join(dir, file.Name()))
		}
	}
	return dbPaths, nil
}
