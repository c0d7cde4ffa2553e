// Package sqlstore 基于MySQL或SQLite的存储实现
package sqlstore

import (
	"fmt"

	"github.com/wookietoast/site/orm"
)

// dialect MySQL与SQLite之间的差异
type dialect interface {
	upsertEntitySQL(table string) string
	tableDDL(table string) []string
	collectionDDL(collection string) []string
}

func dialectOf(driver string) (dialect, error) {
	switch driver {
	case orm.DriverMySQL:
		return mysqlDialect{}, nil
	case orm.DriverSQLite:
		return sqliteDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported driver %q", driver)
}

type mysqlDialect struct{}

func (mysqlDialect) upsertEntitySQL(table string) string {
	return "INSERT INTO " + table + " (partition_key, row_key, props, version) VALUES (?, ?, ?, 1) " +
		"ON DUPLICATE KEY UPDATE props = VALUES(props), version = version + 1"
}

func (mysqlDialect) tableDDL(table string) []string {
	return []string{`CREATE TABLE IF NOT EXISTS ` + table + ` (
	partition_key VARCHAR(255) NOT NULL,
	row_key VARCHAR(255) NOT NULL,
	props TEXT NOT NULL,
	version BIGINT NOT NULL,
	PRIMARY KEY (partition_key, row_key)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`}
}

func (mysqlDialect) collectionDDL(collection string) []string {
	return []string{`CREATE TABLE IF NOT EXISTS ` + collection + ` (
	id VARCHAR(64) NOT NULL,
	partition_key VARCHAR(255) NOT NULL,
	created_at BIGINT NOT NULL,
	fields MEDIUMTEXT NOT NULL,
	PRIMARY KEY (id),
	KEY idx_created (created_at, id),
	KEY idx_partition_created (partition_key, created_at, id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`}
}

type sqliteDialect struct{}

func (sqliteDialect) upsertEntitySQL(table string) string {
	return "INSERT INTO " + table + " (partition_key, row_key, props, version) VALUES (?, ?, ?, 1) " +
		"ON CONFLICT (partition_key, row_key) DO UPDATE SET props = excluded.props, version = " + table + ".version + 1"
}

func (sqliteDialect) tableDDL(table string) []string {
	return []string{`CREATE TABLE IF NOT EXISTS ` + table + ` (
	partition_key TEXT NOT NULL,
	row_key TEXT NOT NULL,
	props TEXT NOT NULL,
	version INTEGER NOT NULL,
	PRIMARY KEY (partition_key, row_key)
)`}
}

func (sqliteDialect) collectionDDL(collection string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + collection + ` (
	id TEXT NOT NULL PRIMARY KEY,
	partition_key TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	fields TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_` + collection + `_created ON ` + collection + ` (created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + collection + `_partition_created ON ` + collection + ` (partition_key, created_at, id)`,
	}
}
