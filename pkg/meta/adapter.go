package meta

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config 数据库配置
type Config struct {
	Type string // "sqlite" | "postgres"

	// sqlite
	Path string

	// postgres
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable" for local
}

// DB 封装了 GORM 实例，作为运行记录层的入口
type DB struct {
	conn *gorm.DB
}

// NewDB 初始化数据库连接并迁移表结构
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
		dialector = sqlite.Open(cfg.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
			cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层 sql.DB 以配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 验证连接是否存活
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	d := &DB{conn: db}
	if err := d.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("auto migration failed: %w", err)
	}
	return d, nil
}

// NewWithConn 允许使用现有的 GORM 连接初始化 DB (测试里用内存 sqlite)
func NewWithConn(conn *gorm.DB) *DB {
	return &DB{conn: conn}
}

func (d *DB) AutoMigrate(models ...any) error {
	return d.conn.AutoMigrate(models...)
}

func (d *DB) GetConn() *gorm.DB {
	return d.conn
}

func (d *DB) Close() error {
	sqlDB, err := d.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
