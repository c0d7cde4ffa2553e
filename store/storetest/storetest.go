// Package storetest 各个存储后端共用的行为测试
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wookietoast/site/store"
)

// TableFactory 为每个子测试创建一个空表
type TableFactory func(t *testing.T) store.Table

// CollectionFactory 为每个子测试创建一个空集合
type CollectionFactory func(t *testing.T) store.Collection

// RunTableTests 执行store.Table的行为测试
func RunTableTests(t *testing.T, newTable TableFactory) {
	t.Run("GetMissing", func(t *testing.T) {
		table := newTable(t)
		_, err := table.Get(context.Background(), "counter", "site")
		assert.True(t, errors.Is(err, store.ErrNotFound), "%v", err)
	})

	t.Run("InsertGet", func(t *testing.T) {
		table := newTable(t)
		ctx := context.Background()
		e, err := table.Insert(ctx, entity("counter", "site", "1"))
		require.NoError(t, err)
		assert.EqualValues(t, 1, e.Version)

		got, err := table.Get(ctx, "counter", "site")
		require.NoError(t, err)
		assert.Equal(t, "counter", got.PartitionKey)
		assert.Equal(t, "site", got.RowKey)
		assert.Equal(t, map[string]string{"count": "1"}, got.Properties)
		assert.EqualValues(t, 1, got.Version)

		_, err = table.Insert(ctx, entity("counter", "site", "5"))
		assert.True(t, errors.Is(err, store.ErrConflict), "%v", err)
		got, err = table.Get(ctx, "counter", "site")
		require.NoError(t, err)
		assert.Equal(t, "1", got.Properties["count"])
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		table := newTable(t)
		ctx := context.Background()
		_, err := table.Insert(ctx, entity("a:b", "c", "1"))
		require.NoError(t, err)
		_, err = table.Insert(ctx, entity("a", "b:c", "2"))
		require.NoError(t, err)

		got, err := table.Get(ctx, "a:b", "c")
		require.NoError(t, err)
		assert.Equal(t, "1", got.Properties["count"])
		got, err = table.Get(ctx, "a", "b:c")
		require.NoError(t, err)
		assert.Equal(t, "2", got.Properties["count"])
	})

	t.Run("Upsert", func(t *testing.T) {
		table := newTable(t)
		ctx := context.Background()
		e, err := table.Upsert(ctx, entity("counter", "site", "1"))
		require.NoError(t, err)
		assert.EqualValues(t, 1, e.Version)

		e, err = table.Upsert(ctx, &store.Entity{PartitionKey: "counter", RowKey: "site", Properties: map[string]string{"total": "9"}})
		require.NoError(t, err)
		assert.EqualValues(t, 2, e.Version)

		got, err := table.Get(ctx, "counter", "site")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"total": "9"}, got.Properties)
		assert.EqualValues(t, 2, got.Version)
	})

	t.Run("Replace", func(t *testing.T) {
		table := newTable(t)
		ctx := context.Background()
		_, err := table.Replace(ctx, entity("counter", "site", "1"), 1)
		assert.True(t, errors.Is(err, store.ErrNotFound), "%v", err)

		_, err = table.Insert(ctx, entity("counter", "site", "1"))
		require.NoError(t, err)
		e, err := table.Replace(ctx, entity("counter", "site", "2"), 1)
		require.NoError(t, err)
		assert.EqualValues(t, 2, e.Version)

		_, err = table.Replace(ctx, entity("counter", "site", "3"), 1)
		assert.True(t, errors.Is(err, store.ErrPreconditionFailed), "%v", err)

		got, err := table.Get(ctx, "counter", "site")
		require.NoError(t, err)
		assert.Equal(t, "2", got.Properties["count"])
		assert.EqualValues(t, 2, got.Version)
	})

	t.Run("Delete", func(t *testing.T) {
		table := newTable(t)
		ctx := context.Background()
		assert.True(t, errors.Is(table.Delete(ctx, "counter", "site"), store.ErrNotFound))
		_, err := table.Insert(ctx, entity("counter", "site", "1"))
		require.NoError(t, err)
		require.NoError(t, table.Delete(ctx, "counter", "site"))
		_, err = table.Get(ctx, "counter", "site")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("InvalidEntity", func(t *testing.T) {
		table := newTable(t)
		ctx := context.Background()
		_, err := table.Insert(ctx, &store.Entity{PartitionKey: "counter"})
		assert.Error(t, err)
		_, err = table.Upsert(ctx, &store.Entity{PartitionKey: "counter", RowKey: "site", Properties: map[string]string{store.VersionProperty: "3"}})
		assert.Error(t, err)
	})

	t.Run("ConcurrentReplace", func(t *testing.T) {
		table := newTable(t)
		ctx := context.Background()
		const workers = 8
		const perWorker = 5
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					if err := casIncrement(ctx, table); err != nil {
						errs <- err
						return
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		got, err := table.Get(ctx, "counter", "site")
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(workers*perWorker), got.Properties["count"])
	})
}

func casIncrement(ctx context.Context, table store.Table) error {
	for attempt := 0; attempt < 1000; attempt++ {
		current, err := table.Get(ctx, "counter", "site")
		if errors.Is(err, store.ErrNotFound) {
			_, err = table.Insert(ctx, entity("counter", "site", "1"))
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return err
		}
		if err != nil {
			return err
		}
		n, _ := strconv.Atoi(current.Properties["count"])
		_, err = table.Replace(ctx, entity("counter", "site", strconv.Itoa(n+1)), current.Version)
		if errors.Is(err, store.ErrPreconditionFailed) {
			continue
		}
		return err
	}
	return fmt.Errorf("too many conflicts")
}

func entity(pk, rk, count string) *store.Entity {
	return &store.Entity{PartitionKey: pk, RowKey: rk, Properties: map[string]string{"count": count}}
}

// RunCollectionTests 执行store.Collection的行为测试
func RunCollectionTests(t *testing.T, newCollection CollectionFactory) {
	base := time.Date(2024, 5, 4, 12, 0, 0, 123456789, time.UTC)

	t.Run("Empty", func(t *testing.T) {
		coll := newCollection(t)
		ctx := context.Background()
		docs, err := coll.Query(ctx, store.Query{})
		require.NoError(t, err)
		assert.Empty(t, docs)
		n, err := coll.Count(ctx, "")
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)
	})

	t.Run("CreateQuery", func(t *testing.T) {
		coll := newCollection(t)
		ctx := context.Background()
		require.NoError(t, coll.Create(ctx, document("b", "azure", base, "second")))
		require.NoError(t, coll.Create(ctx, document("a", "go", base.Add(-time.Hour), "first")))
		require.NoError(t, coll.Create(ctx, document("c", "azure", base.Add(time.Hour), "third")))

		docs, err := coll.Query(ctx, store.Query{})
		require.NoError(t, err)
		require.Equal(t, []string{"c", "b", "a"}, ids(docs))
		assert.Equal(t, "azure", docs[0].PartitionKey)
		assert.True(t, base.Add(time.Hour).Equal(docs[0].CreatedAt), "%v", docs[0].CreatedAt)
		assert.Equal(t, map[string]string{"body": "third"}, docs[0].Fields)

		docs, err = coll.Query(ctx, store.Query{PartitionKey: "azure"})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b"}, ids(docs))

		docs, err = coll.Query(ctx, store.Query{PartitionKey: "none"})
		require.NoError(t, err)
		assert.Empty(t, docs)

		n, err := coll.Count(ctx, "")
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
		n, err = coll.Count(ctx, "go")
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("SameCreatedAtOrderedByID", func(t *testing.T) {
		coll := newCollection(t)
		ctx := context.Background()
		for _, id := range []string{"m", "z", "a"} {
			require.NoError(t, coll.Create(ctx, document(id, "go", base, id)))
		}
		docs, err := coll.Query(ctx, store.Query{})
		require.NoError(t, err)
		assert.Equal(t, []string{"z", "m", "a"}, ids(docs))
	})

	t.Run("Duplicate", func(t *testing.T) {
		coll := newCollection(t)
		ctx := context.Background()
		require.NoError(t, coll.Create(ctx, document("a", "go", base, "first")))
		err := coll.Create(ctx, document("a", "azure", base.Add(time.Minute), "second"))
		assert.True(t, errors.Is(err, store.ErrConflict), "%v", err)

		docs, err := coll.Query(ctx, store.Query{})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "first", docs[0].Fields["body"])
	})

	t.Run("Page", func(t *testing.T) {
		coll := newCollection(t)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			require.NoError(t, coll.Create(ctx, document(fmt.Sprintf("id%d", i), "go", base.Add(time.Duration(i)*time.Second), "")))
		}
		docs, err := coll.Query(ctx, store.Query{Offset: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"id3", "id2"}, ids(docs))

		docs, err = coll.Query(ctx, store.Query{Offset: 4, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"id0"}, ids(docs))

		docs, err = coll.Query(ctx, store.Query{Offset: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"id1", "id0"}, ids(docs))

		docs, err = coll.Query(ctx, store.Query{Offset: 9, Limit: 2})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("Invalid", func(t *testing.T) {
		coll := newCollection(t)
		ctx := context.Background()
		assert.Error(t, coll.Create(ctx, &store.Document{ID: "a", CreatedAt: base}))
		assert.Error(t, coll.Create(ctx, nil))
	})
}

func document(id, partition string, createdAt time.Time, body string) *store.Document {
	return &store.Document{ID: id, PartitionKey: partition, CreatedAt: createdAt, Fields: map[string]string{"body": body}}
}

func ids(docs []*store.Document) []string {
	result := make([]string, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.ID)
	}
	return result
}
