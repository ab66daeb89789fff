package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options 数据库连接参数
type Options struct {
	Driver   string
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Charset  string
	Logger   logger.Interface
}

// Open 按驱动类型建立连接; 开启 TranslateError 以便识别唯一键冲突
func Open(opts Options) (*gorm.DB, error) {
	dialector, err := dialectorFor(opts)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{TranslateError: true}
	if opts.Logger != nil {
		gormCfg.Logger = opts.Logger
	}

	connection, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	sqlDB, err := connection.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层连接失败: %w", err)
	}
	if opts.Driver == "sqlite" {
		// sqlite 只允许单写连接
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return connection, nil
}

func dialectorFor(opts Options) (gorm.Dialector, error) {
	switch opts.Driver {
	case "mysql":
		dsn := opts.DSN
		if dsn == "" {
			charset := opts.Charset
			if charset == "" {
				charset = "utf8mb4"
			}
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=UTC",
				opts.User, opts.Password, opts.Host, opts.Port, opts.Name, charset)
		}
		return mysql.Open(dsn), nil
	case "postgres":
		dsn := opts.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
				opts.Host, opts.User, opts.Password, opts.Name, opts.Port)
		}
		return postgres.Open(dsn), nil
	case "sqlite":
		dsn := opts.DSN
		if dsn == "" {
			dsn = opts.Name + ".db"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", opts.Driver)
	}
}
