// Package orm 提供database/sql连接池、事务操作以及MySQL/SQLite的差异处理
package orm

import (
	"strings"

	c "github.com/wookietoast/site/common"
)

// 支持的数据库驱动
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// DBConfig 数据库配置
type DBConfig struct {
	Driver        string `yaml:"driver"` //mysql或者sqlite,默认mysql
	User          string `yaml:"user"`
	Pass          string `yaml:"pass"`
	URL           string `yaml:"url"`
	Schema        string `yaml:"schema"`
	Path          string `yaml:"path"` //sqlite的文件路径,":memory:"表示内存数据库
	MaxConn       int    `yaml:"maxConn"`
	MaxIdle       int    `yaml:"maxIdle"`
	MaxTimeSecond int    `yaml:"maxTimeSecond"`
	Charset       string `yaml:"charset"`
}

// Parse implements DBConfigurer
func (p *DBConfig) Parse() error {
	if p == nil {
		return nil
	}
	p.Driver = strings.ToLower(strings.TrimSpace(p.Driver))
	if p.Driver == "" {
		p.Driver = DriverMySQL
	}
	switch p.Driver {
	case DriverMySQL:
		if p.URL == "" {
			return c.NewError(c.KindMissingConfiguration, nil, "db need url")
		}
		if p.Schema == "" {
			return c.NewError(c.KindMissingConfiguration, nil, "db need schema")
		}
		if p.Charset == "" {
			p.Charset = "utf8mb4"
		}
	case DriverSQLite:
		if p.Path == "" {
			return c.NewError(c.KindMissingConfiguration, nil, "sqlite need path")
		}
	default:
		return c.NewErrorf(c.KindMissingConfiguration, nil, "unsupported db driver %q", p.Driver)
	}
	return nil
}

// DBConfig implements DBConfigurer
func (p *DBConfig) DBConfig() *DBConfig {
	return p
}

// DBConfigurer DB配置器
type DBConfigurer interface {
	c.Configurer
	DBConfig() *DBConfig
}
