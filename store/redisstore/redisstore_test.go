package redisstore

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wookietoast/site/cache"
	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/store"
	"github.com/wookietoast/site/store/storetest"
)

const testGroup = "site"

func newBackend(t *testing.T) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	conf := &cache.RedisConf{
		Servers: []*cache.RedisServer{{ID: "s1", Host: mr.Host(), Port: port}},
		Groups:  map[string][]string{testGroup: {"s1"}},
	}
	require.NoError(t, conf.Parse())
	backend, err := NewBackend(cache.NewRedisClientWithConf(conf), testGroup, "test:")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend, mr
}

func TestTable(t *testing.T) {
	storetest.RunTableTests(t, func(t *testing.T) store.Table {
		backend, _ := newBackend(t)
		table, err := backend.Table("visits")
		require.NoError(t, err)
		return table
	})
}

func TestCollection(t *testing.T) {
	storetest.RunCollectionTests(t, func(t *testing.T) store.Collection {
		backend, _ := newBackend(t)
		coll, err := backend.Collection("wookiecontainer")
		require.NoError(t, err)
		return coll
	})
}

func TestTableLayout(t *testing.T) {
	backend, mr := newBackend(t)
	table, err := backend.Table("visits")
	require.NoError(t, err)
	_, err = table.Insert(context.Background(), &store.Entity{PartitionKey: "counter", RowKey: "site", Properties: map[string]string{"count": "7"}})
	require.NoError(t, err)

	key := "test:t:visits:7:counter:site"
	assert.Equal(t, "7", mr.HGet(key, "count"))
	assert.Equal(t, "1", mr.HGet(key, store.VersionProperty))

	// 外部写入了无效的版本
	mr.HSet(key, store.VersionProperty, "x")
	_, err = table.Get(context.Background(), "counter", "site")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, store.ErrNotFound))
}

func TestCollectionSkipsCorrupt(t *testing.T) {
	backend, mr := newBackend(t)
	coll, err := backend.Collection("blog")
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, coll.Create(ctx, &store.Document{ID: "good", PartitionKey: "go", CreatedAt: now, Fields: map[string]string{"body": "x"}}))
	require.NoError(t, coll.Create(ctx, &store.Document{ID: "bad", PartitionKey: "go", CreatedAt: now.Add(time.Second)}))

	mr.HSet("test:c:blog:docs", "bad", "\xc1\xc1")
	docs, err := coll.Query(ctx, store.Query{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "good", docs[0].ID)
}

func TestRedisDown(t *testing.T) {
	backend, mr := newBackend(t)
	table, err := backend.Table("visits")
	require.NoError(t, err)
	coll, err := backend.Collection("blog")
	require.NoError(t, err)
	mr.Close()

	ctx := context.Background()
	_, err = table.Get(ctx, "counter", "site")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, store.ErrNotFound))
	_, err = coll.Query(ctx, store.Query{})
	assert.Error(t, err)
}

func TestNewBackend(t *testing.T) {
	_, err := NewBackend(nil, testGroup, "")
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))

	backend, _ := newBackend(t)
	_, err = NewBackend(backend.Client(), "other", "")
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))
	_, err = backend.Table("bad-name")
	assert.Error(t, err)
	assert.Equal(t, "redis", backend.Name())
}
