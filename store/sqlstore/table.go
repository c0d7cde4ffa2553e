package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/wookietoast/site/orm"
	"github.com/wookietoast/site/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ store.Table = (*Table)(nil)

// Table 表结构为(partition_key, row_key, props, version),props为属性的JSON
type Table struct {
	pool    *orm.Pool
	dialect dialect
	name    string
}

// NewTable 创建SQL表,表需要已经存在,参见Provision
func NewTable(pool *orm.Pool, name string) (*Table, error) {
	if pool == nil {
		return nil, errors.New("nil db pool")
	}
	if !store.ValidName(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}
	d, err := dialectOf(pool.Driver())
	if err != nil {
		return nil, err
	}
	return &Table{pool: pool, dialect: d, name: name}, nil
}

// Name implements store.Table
func (p *Table) Name() string {
	return p.name
}

func getEntity(ctx context.Context, executor orm.Executor, table, partitionKey, rowKey string) (*store.Entity, error) {
	var props string
	e := &store.Entity{PartitionKey: partitionKey, RowKey: rowKey}
	err := executor.QueryRowContext(ctx,
		"SELECT props, version FROM "+table+" WHERE partition_key = ? AND row_key = ?",
		partitionKey, rowKey).Scan(&props, &e.Version)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	if err := json.UnmarshalFromString(props, &e.Properties); err != nil {
		return nil, fmt.Errorf("decode %s props: %w", table, err)
	}
	if e.Properties == nil {
		e.Properties = map[string]string{}
	}
	return e, nil
}

// Get implements store.Table
func (p *Table) Get(ctx context.Context, partitionKey, rowKey string) (*store.Entity, error) {
	return getEntity(ctx, p.pool.DB(), p.name, partitionKey, rowKey)
}

func encodeProps(entity *store.Entity) (string, error) {
	props := entity.Properties
	if props == nil {
		props = map[string]string{}
	}
	return json.MarshalToString(props)
}

// Insert implements store.Table
func (p *Table) Insert(ctx context.Context, entity *store.Entity) (*store.Entity, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	props, err := encodeProps(entity)
	if err != nil {
		return nil, err
	}
	_, err = p.pool.DB().ExecContext(ctx,
		"INSERT INTO "+p.name+" (partition_key, row_key, props, version) VALUES (?, ?, ?, 1)",
		entity.PartitionKey, entity.RowKey, props)
	if orm.IsDuplicateKey(err) {
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", p.name, err)
	}
	return withVersion(entity, 1), nil
}

// Upsert implements store.Table
func (p *Table) Upsert(ctx context.Context, entity *store.Entity) (*store.Entity, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	props, err := encodeProps(entity)
	if err != nil {
		return nil, err
	}
	rt, err := p.pool.NewOp().DoInTrans(ctx, func(tx *sql.Tx) (interface{}, error) {
		if _, err := tx.ExecContext(ctx, p.dialect.upsertEntitySQL(p.name), entity.PartitionKey, entity.RowKey, props); err != nil {
			return nil, err
		}
		var version int64
		err := tx.QueryRowContext(ctx,
			"SELECT version FROM "+p.name+" WHERE partition_key = ? AND row_key = ?",
			entity.PartitionKey, entity.RowKey).Scan(&version)
		return version, err
	})
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", p.name, err)
	}
	return withVersion(entity, rt.(int64)), nil
}

// Replace implements store.Table
func (p *Table) Replace(ctx context.Context, entity *store.Entity, version int64) (*store.Entity, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	props, err := encodeProps(entity)
	if err != nil {
		return nil, err
	}
	db := p.pool.DB()
	res, err := db.ExecContext(ctx,
		"UPDATE "+p.name+" SET props = ?, version = version + 1 WHERE partition_key = ? AND row_key = ? AND version = ?",
		props, entity.PartitionKey, entity.RowKey, version)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", p.name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", p.name, err)
	}
	if affected == 0 {
		var exists int
		err = db.QueryRowContext(ctx,
			"SELECT 1 FROM "+p.name+" WHERE partition_key = ? AND row_key = ?",
			entity.PartitionKey, entity.RowKey).Scan(&exists)
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", p.name, err)
		}
		return nil, store.ErrPreconditionFailed
	}
	return withVersion(entity, version+1), nil
}

// Delete implements store.Table
func (p *Table) Delete(ctx context.Context, partitionKey, rowKey string) error {
	res, err := p.pool.DB().ExecContext(ctx,
		"DELETE FROM "+p.name+" WHERE partition_key = ? AND row_key = ?", partitionKey, rowKey)
	if err != nil {
		return fmt.Errorf("delete %s: %w", p.name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", p.name, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func withVersion(entity *store.Entity, version int64) *store.Entity {
	e := entity.Clone()
	e.Version = version
	return e
}
