package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/orm"
	"github.com/wookietoast/site/store"
	"github.com/wookietoast/site/store/storetest"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	pool, err := orm.NewPool(&orm.DBConfig{Driver: orm.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	backend, err := NewBackend(pool)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	require.NoError(t, Provision(context.Background(), pool, []string{"visits"}, []string{"wookiecontainer"}))
	return backend
}

func TestTable(t *testing.T) {
	storetest.RunTableTests(t, func(t *testing.T) store.Table {
		table, err := newBackend(t).Table("visits")
		require.NoError(t, err)
		return table
	})
}

func TestCollection(t *testing.T) {
	storetest.RunCollectionTests(t, func(t *testing.T) store.Collection {
		coll, err := newBackend(t).Collection("wookiecontainer")
		require.NoError(t, err)
		return coll
	})
}

func TestProvision(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	// 重复执行不会出错
	require.NoError(t, Provision(ctx, backend.Pool(), []string{"visits"}, []string{"wookiecontainer"}))
	assert.Error(t, Provision(ctx, backend.Pool(), []string{"bad name"}, nil))

	// 未创建的表视为不可用,而不是不存在
	table, err := backend.Table("missing")
	require.NoError(t, err)
	_, err = table.Get(ctx, "counter", "site")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, store.ErrNotFound))
}

func TestCorruptRows(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	db := backend.Pool().DB()

	_, err := db.Exec(`INSERT INTO wookiecontainer (id, partition_key, created_at, fields) VALUES ('bad', 'go', ?, '{not json')`, time.Now().UnixNano())
	require.NoError(t, err)
	coll, err := backend.Collection("wookiecontainer")
	require.NoError(t, err)
	require.NoError(t, coll.Create(ctx, &store.Document{ID: "good", PartitionKey: "go", CreatedAt: time.Now(), Fields: map[string]string{"body": "x"}}))
	docs, err := coll.Query(ctx, store.Query{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "good", docs[0].ID)

	_, err = db.Exec(`INSERT INTO visits (partition_key, row_key, props, version) VALUES ('counter', 'site', '[1,2', 1)`)
	require.NoError(t, err)
	table, err := backend.Table("visits")
	require.NoError(t, err)
	_, err = table.Get(ctx, "counter", "site")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, store.ErrNotFound))
}

func TestNewBackend(t *testing.T) {
	_, err := NewBackend(nil)
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))

	backend := newBackend(t)
	assert.Equal(t, orm.DriverSQLite, backend.Name())
	_, err = backend.Collection("1bad")
	assert.Error(t, err)
	_, err = NewTable(nil, "visits")
	assert.Error(t, err)
}

func TestDialect(t *testing.T) {
	d, err := dialectOf(orm.DriverMySQL)
	require.NoError(t, err)
	assert.Contains(t, d.upsertEntitySQL("visits"), "ON DUPLICATE KEY UPDATE")
	assert.Len(t, d.collectionDDL("blog"), 1)

	d, err = dialectOf(orm.DriverSQLite)
	require.NoError(t, err)
	assert.Contains(t, d.upsertEntitySQL("visits"), "ON CONFLICT (partition_key, row_key)")
	assert.Len(t, d.collectionDDL("blog"), 3)

	_, err = dialectOf("postgres")
	assert.Error(t, err)
}
