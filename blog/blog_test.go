package blog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/metrics"
	"github.com/wookietoast/site/orm"
	"github.com/wookietoast/site/store"
	"github.com/wookietoast/site/store/memstore"
	"github.com/wookietoast/site/store/sqlstore"
)

// stepClock 每次调用前进一秒
func stepClock(start time.Time) c.Clock {
	var n int64
	return func() time.Time {
		return start.Add(time.Duration(atomic.AddInt64(&n, 1)) * time.Second)
	}
}

var base = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) (*Store, *memstore.Collection, *metrics.Metrics) {
	t.Helper()
	coll := memstore.NewCollection("wookiecontainer")
	m := metrics.New(nil)
	s, err := NewStore(coll, append([]Option{WithMetrics(m), WithClock(stepClock(base))}, opts...)...)
	require.NoError(t, err)
	return s, coll, m
}

func TestNewStore(t *testing.T) {
	_, err := NewStore(nil)
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))
	var coll *memstore.Collection
	_, err = NewStore(coll)
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))
}

func TestCreateRoundTrip(t *testing.T) {
	s, _, m := newTestStore(t)
	ctx := context.Background()
	record, err := s.Create(ctx, "azure", "hello world")
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	_, err = uuid.Parse(record.ID)
	assert.NoError(t, err)
	assert.True(t, base.Add(time.Second).Equal(record.CreatedAt))

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	got := records[0]
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, "azure", got.Topic)
	assert.Equal(t, "hello world", got.Body)
	assert.False(t, got.CreatedAt.IsZero())
	assert.True(t, record.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, "2024-01-02T03:04:06Z", got.CreatedAtISO())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsCreated))
}

func TestCreateTrims(t *testing.T) {
	s, _, _ := newTestStore(t)
	record, err := s.Create(context.Background(), "  go \n", "\tbody  ")
	require.NoError(t, err)
	assert.Equal(t, "go", record.Topic)
	assert.Equal(t, "body", record.Body)
}

func TestCreateValidation(t *testing.T) {
	s, coll, _ := newTestStore(t, WithMaxLen(5, 10))
	var calls int32
	coll.InjectFault(func(op string) error {
		if op == "create" {
			atomic.AddInt32(&calls, 1)
		}
		return nil
	})
	ctx := context.Background()
	cases := []struct{ topic, body string }{
		{"", "body"},
		{"topic", ""},
		{"   ", "body"},
		{"topic", " \n\t "},
		{"toolong", "body"},
		{"go", strings.Repeat("x", 11)},
		{"go", "bad \xff utf8"},
	}
	for _, cs := range cases {
		_, err := s.Create(ctx, cs.topic, cs.body)
		assert.True(t, errors.Is(err, c.ErrValidation), "%q %q: %v", cs.topic, cs.body, err)
	}
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
	records, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListEmpty(t *testing.T) {
	s, _, _ := newTestStore(t)
	records, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestListNewestFirst(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	var created []*Record
	for i, topic := range []string{"go", "azure", "go"} {
		record, err := s.Create(ctx, topic, fmt.Sprintf("post %d", i+1))
		require.NoError(t, err)
		created = append(created, record)
	}
	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, created[2].ID, records[0].ID)
	assert.Equal(t, created[1].ID, records[1].ID)
	assert.Equal(t, created[0].ID, records[2].ID)

	records, err = s.ListByTopic(ctx, "go")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "post 3", records[0].Body)
	assert.Equal(t, "post 1", records[1].Body)

	_, err = s.ListByTopic(ctx, " ")
	assert.True(t, errors.Is(err, c.ErrValidation))
}

func TestDuplicateID(t *testing.T) {
	s, _, m := newTestStore(t, WithIDGenerator(func() string { return "fixed" }))
	ctx := context.Background()
	_, err := s.Create(ctx, "go", "first")
	require.NoError(t, err)
	_, err = s.Create(ctx, "go", "second")
	assert.True(t, errors.Is(err, c.ErrDuplicateID), "%v", err)
	assert.Equal(t, c.KindDuplicateID, c.KindOf(err))

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "first", records[0].Body)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsCreated))
}

func TestStoreFailure(t *testing.T) {
	s, coll, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "go", "before")
	require.NoError(t, err)

	down := errors.New("no route to host")
	coll.InjectFault(func(op string) error { return down })
	_, err = s.Create(ctx, "go", "body")
	assert.True(t, errors.Is(err, c.ErrStoreUnavailable), "%v", err)
	assert.True(t, errors.Is(err, down))

	records, err := s.List(ctx)
	assert.True(t, errors.Is(err, c.ErrStoreUnavailable))
	assert.Nil(t, records)

	_, err = s.ListByTopic(ctx, "go")
	assert.True(t, errors.Is(err, c.ErrStoreUnavailable))
	_, err = s.Page(ctx, "", c.PageParam{Page: 1, PageSize: 2})
	assert.True(t, errors.Is(err, c.ErrStoreUnavailable))
}

func TestTimeout(t *testing.T) {
	s, coll, _ := newTestStore(t, WithTimeout(10*time.Millisecond))
	coll.InjectFault(func(op string) error {
		time.Sleep(30 * time.Millisecond)
		return context.DeadlineExceeded
	})
	_, err := s.List(context.Background())
	assert.True(t, errors.Is(err, c.ErrStoreUnavailable))
}

func TestCorruptDocumentSkipped(t *testing.T) {
	s, coll, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "go", "good")
	require.NoError(t, err)

	require.NoError(t, coll.Create(ctx, &store.Document{ID: "no-body", PartitionKey: "go", CreatedAt: base.Add(time.Hour),
		Fields: map[string]string{FieldTopic: "go"}}))
	require.NoError(t, coll.Create(ctx, &store.Document{ID: "bad-time", PartitionKey: "go", CreatedAt: base.Add(time.Hour),
		Fields: map[string]string{FieldTopic: "go", FieldBody: "x", FieldCreatedAt: "yesterday"}}))

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "good", records[0].Body)
}

func TestPage(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := s.Create(ctx, "go", fmt.Sprintf("post %d", i))
		require.NoError(t, err)
	}

	page, err := s.Page(ctx, "", c.PageParam{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.Total)
	assert.EqualValues(t, 3, page.TotalPage)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "post 3", page.Items[0].Body)
	assert.Equal(t, "post 2", page.Items[1].Body)

	page, err = s.Page(ctx, "", c.PageParam{Page: 9, PageSize: 2})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)

	page, err = s.Page(ctx, "", c.PageParam{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, MaxPageSize, page.PageSize)
	assert.Len(t, page.Items, 5)
	assert.Equal(t, "post 5", page.Items[0].Body)

	_, err = s.Create(ctx, "azure", "other topic")
	require.NoError(t, err)
	page, err = s.Page(ctx, " go ", c.PageParam{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.Total)
	assert.Equal(t, "post 5", page.Items[0].Body)
	page, err = s.Page(ctx, "azure", c.PageParam{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "other topic", page.Items[0].Body)
}

func TestSQLiteBacked(t *testing.T) {
	pool, err := orm.NewPool(&orm.DBConfig{Driver: orm.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	defer pool.Close()
	ctx := context.Background()
	require.NoError(t, sqlstore.Provision(ctx, pool, nil, []string{"wookiecontainer"}))
	coll, err := sqlstore.NewCollection(pool, "wookiecontainer")
	require.NoError(t, err)
	s, err := NewStore(coll, WithMetrics(metrics.New(nil)), WithClock(stepClock(base)))
	require.NoError(t, err)

	for _, topic := range []string{"azure", "go", "azure"} {
		_, err := s.Create(ctx, topic, "body of "+topic)
		require.NoError(t, err)
	}
	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.True(t, records[0].CreatedAt.After(records[1].CreatedAt))
	assert.True(t, records[1].CreatedAt.After(records[2].CreatedAt))
	assert.True(t, base.Add(3*time.Second).Equal(records[0].CreatedAt))

	records, err = s.ListByTopic(ctx, "azure")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
