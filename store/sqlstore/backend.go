package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/orm"
	"github.com/wookietoast/site/store"
)

var _ store.Backend = (*Backend)(nil)

// Backend 在一个连接池上创建表与集合
type Backend struct {
	pool *orm.Pool
}

// NewBackend 创建SQL后端
func NewBackend(pool *orm.Pool) (*Backend, error) {
	if pool == nil {
		return nil, c.NewError(c.KindMissingConfiguration, nil, "no db pool")
	}
	if _, err := dialectOf(pool.Driver()); err != nil {
		return nil, err
	}
	return &Backend{pool: pool}, nil
}

// Name implements store.Backend
func (p *Backend) Name() string {
	return p.pool.Driver()
}

// Pool 连接池
func (p *Backend) Pool() *orm.Pool {
	return p.pool
}

// Table implements store.Backend
func (p *Backend) Table(name string) (store.Table, error) {
	return NewTable(p.pool, name)
}

// Collection implements store.Backend
func (p *Backend) Collection(name string) (store.Collection, error) {
	return NewCollection(p.pool, name)
}

// Close 关闭连接池
func (p *Backend) Close() error {
	return p.pool.Close()
}

// Provision 在一个事务中创建表与集合对应的数据库表,已经存在的表不做修改
func Provision(ctx context.Context, pool *orm.Pool, tables, collections []string) error {
	d, err := dialectOf(pool.Driver())
	if err != nil {
		return err
	}
	var stmts []string
	for _, table := range tables {
		if !store.ValidName(table) {
			return fmt.Errorf("invalid table name %q", table)
		}
		stmts = append(stmts, d.tableDDL(table)...)
	}
	for _, collection := range collections {
		if !store.ValidName(collection) {
			return fmt.Errorf("invalid collection name %q", collection)
		}
		stmts = append(stmts, d.collectionDDL(collection)...)
	}
	_, err = pool.NewOp().DoInTrans(ctx, func(tx *sql.Tx) (interface{}, error) {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return nil, fmt.Errorf("provision: %w", err)
			}
		}
		return nil, nil
	})
	if err == nil {
		c.Infof("provisioned tables %v and collections %v on %s", tables, collections, pool.Name())
	}
	return err
}
