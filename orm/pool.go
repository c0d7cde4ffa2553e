package orm

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"
	c "github.com/wookietoast/site/common"
	_ "modernc.org/sqlite"
)

// PoolFunc 根据配置创建连接池
type PoolFunc func(config *DBConfig) (*Pool, error)

// Pool 数据库连接池
type Pool struct {
	name   string
	driver string
	db     *sql.DB
}

// NewPool 按照config.Driver创建连接池
func NewPool(config *DBConfig) (*Pool, error) {
	if config == nil {
		return nil, c.NewError(c.KindMissingConfiguration, nil, "no db config")
	}
	switch config.Driver {
	case DriverSQLite:
		return NewSQLitePool(config)
	case DriverMySQL, "":
		return NewMySQLPool(config)
	}
	return nil, c.NewErrorf(c.KindMissingConfiguration, nil, "unsupported db driver %q", config.Driver)
}

// NewMySQLPool 构建MySQL数据库连接池
func NewMySQLPool(config *DBConfig) (*Pool, error) {
	if config == nil || config.URL == "" || config.Schema == "" {
		return nil, c.NewError(c.KindMissingConfiguration, nil, "invalid mysql config")
	}
	mc := mysql.NewConfig()
	mc.User = config.User
	mc.Passwd = config.Pass
	mc.Net = "tcp"
	mc.Addr = config.URL
	mc.DBName = config.Schema
	mc.ParseTime = true
	mc.Loc = time.UTC
	charset := config.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	mc.Params = map[string]string{"charset": charset}

	db, err := sql.Open(DriverMySQL, mc.FormatDSN())
	if err != nil {
		return nil, NewDBError(err, "can't open mysql connection")
	}
	setupDB(db, config)
	return &Pool{name: config.URL + "/" + config.Schema, driver: DriverMySQL, db: db}, nil
}

// NewSQLitePool 构建SQLite数据库连接池
func NewSQLitePool(config *DBConfig) (*Pool, error) {
	if config == nil || config.Path == "" {
		return nil, c.NewError(c.KindMissingConfiguration, nil, "invalid sqlite config")
	}
	db, err := sql.Open(DriverSQLite, sqliteDSN(config.Path))
	if err != nil {
		return nil, NewDBError(err, "can't open sqlite")
	}
	setupDB(db, config)
	if config.Path == ":memory:" {
		//每个连接都是一个独立的内存库,只能使用一个连接
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}
	return &Pool{name: config.Path, driver: DriverSQLite, db: db}, nil
}

func sqliteDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return fmt.Sprintf("file:%s?%s", path, q.Encode())
}

func setupDB(db *sql.DB, config *DBConfig) {
	if config.MaxIdle > 0 {
		db.SetMaxIdleConns(config.MaxIdle)
	}
	if config.MaxConn > 0 {
		db.SetMaxOpenConns(config.MaxConn)
	}
	if config.MaxTimeSecond > 0 {
		db.SetConnMaxLifetime(time.Duration(config.MaxTimeSecond) * time.Second)
	}
}

// Name 连接池的名称
func (p *Pool) Name() string {
	return p.name
}

// Driver 驱动名称
func (p *Pool) Driver() string {
	return p.driver
}

// DB sql.DB
func (p *Pool) DB() *sql.DB {
	return p.db
}

// NewOp 创建新的Op,Op不能在goroutine之间共享
func (p *Pool) NewOp() *Op {
	return &Op{pool: p}
}

// Ping 检查数据库是否可用
func (p *Pool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close 关闭连接池
func (p *Pool) Close() error {
	return p.db.Close()
}
