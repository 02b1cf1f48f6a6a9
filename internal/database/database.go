package database

import (
	"github.com/dumbtokens/launch-watcher/internal/database/schema"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setup database with gorm
type Database struct {
	DB  *gorm.DB
	Log zerolog.Logger
	Cfg *koanf.Koanf
}

func NewDatabase(cfg *koanf.Koanf, log zerolog.Logger) *Database {
	return &Database{
		Cfg: cfg,
		Log: log,
	}
}

// connect database
func (_db *Database) ConnectDatabase() error {
	if _db.DB != nil {
		_db.Log.Info().Msg("The database is already connected!")
		return nil
	}

	conn, err := Open(_db.Cfg.String("db.postgres.dsn"))
	if err != nil {
		_db.Log.Error().Err(err).Msg("An unknown error occurred when to connect the database!")
		return err
	}

	_db.Log.Info().Msg("Connected the database succesfully!")
	_db.DB = conn
	return nil
}

// Open 打开 gorm 连接, 唯一键冲突会被转换为 gorm.ErrDuplicatedKey
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

// shutdown database
func (_db *Database) ShutdownDatabase() {
	if _db.DB == nil {
		return
	}
	sqlDB, err := _db.DB.DB()
	if err != nil {
		_db.Log.Error().Err(err).Msg("An unknown error occurred when to shutdown the database!")
		return
	}
	sqlDB.Close()
	_db.Log.Info().Msg("Shutdown the database succesfully!")
}

// list of models for migration
func Models() []interface{} {
	return []interface{}{
		schema.Token{},
	}
}

// migrate models
func (_db *Database) MigrateModels() error {
	if err := _db.DB.AutoMigrate(Models()...); err != nil {
		_db.Log.Error().Err(err).Msg("An unknown error occurred when to migrate the database!")
		return err
	}
	return nil
}
