package site

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wookietoast/site/blog"
	"github.com/wookietoast/site/cache"
	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/counter"
	"github.com/wookietoast/site/orm"
	"github.com/wookietoast/site/store/redisstore"
	"github.com/wookietoast/site/store/sqlstore"
)

const testConf = `
http:
  addr: "127.0.0.1:0"
  max_conns: 16
store:
  backend: Memory
  timeout_ms: 500
counter:
  policy: lww
  max_retries: 3
blog:
  topic_max_len: 50
  list_limit: 5
site:
  title: test site
`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf_test.yaml"), []byte(testConf), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "common.yaml"), []byte("log:\n  env: development\n  level: debug\n"), 0o644))

	conf, err := LoadConfig(dir, "test")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", conf.HTTP.Addr)
	assert.Equal(t, 16, conf.HTTP.MaxConns)
	assert.Equal(t, BackendMemory, conf.Store.Backend)
	assert.Equal(t, 500*time.Millisecond, conf.Store.Timeout())
	assert.Equal(t, DefaultRedisGroup, conf.Store.RedisGroup)
	assert.Equal(t, DefaultKeyPrefix, conf.Store.KeyPrefix)

	assert.Equal(t, counter.ID{PartitionKey: "counter", RowKey: "site"}, conf.Counter.ID())
	assert.Equal(t, DefaultTable, conf.Counter.Table)
	assert.Equal(t, counter.PolicyLastWriterWins, conf.Counter.policy)
	assert.Equal(t, 3, conf.Counter.MaxRetries)
	assert.Equal(t, 10, conf.Counter.BackoffMs)
	assert.Len(t, conf.Counter.Options(), 2)

	assert.Equal(t, DefaultCollection, conf.Blog.Collection)
	assert.Equal(t, 50, conf.Blog.TopicMaxLen)
	assert.Equal(t, blog.DefaultBodyMaxLen, conf.Blog.BodyMaxLen)
	assert.Equal(t, 5, conf.Blog.ListLimit)
	assert.Equal(t, "test site", conf.Site.Title)
	assert.Equal(t, c.EnvDevelopment, conf.GetLogConfig().Env)

	_, err = LoadConfig(t.TempDir(), "")
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	conf := &Config{}
	require.NoError(t, conf.Parse())
	assert.Nil(t, conf.Store)
	assert.NotNil(t, conf.HTTP)
	assert.Equal(t, DefaultCollection, conf.Blog.Collection)
	assert.Equal(t, DefaultListLimit, conf.Blog.ListLimit)
	assert.Equal(t, "wookietoast", conf.Site.Title)
	assert.Equal(t, counter.PolicyOptimistic, conf.Counter.policy)

	_, err := NewBackend(conf)
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))
	_, err = NewBackend(nil)
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))
}

func TestConfigInvalid(t *testing.T) {
	cases := []*Config{
		{Store: &StoreConfig{}},
		{Store: &StoreConfig{Backend: "cosmos"}},
		{Store: &StoreConfig{Backend: BackendMemory, TimeoutMs: -1}},
		{Counter: &CounterConfig{Policy: "pessimistic"}},
		{Counter: &CounterConfig{Table: "bad table"}},
		{Counter: &CounterConfig{BackoffMs: -5}},
		{Blog: &BlogConfig{Collection: "9lives"}},
		{Store: &StoreConfig{Backend: BackendRedis}, Redis: &cache.RedisConf{}},
		{Store: &StoreConfig{Backend: BackendMySQL}, DB: &orm.DBConfig{}},
	}
	for i, conf := range cases {
		assert.Error(t, conf.Parse(), "case %d", i)
	}
	err := (&Config{Store: &StoreConfig{}}).Parse()
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv(EnvDBPass, "db-secret")
	t.Setenv(EnvRedisAuth, "redis-secret")

	conf := &Config{
		Store: &StoreConfig{Backend: BackendSQLite},
		DB:    &orm.DBConfig{Path: ":memory:", Pass: "from-file"},
		Redis: &cache.RedisConf{
			Servers: []*cache.RedisServer{{ID: "r1", Host: "127.0.0.1", Port: 6379}},
			Groups:  map[string][]string{"site": {"r1"}},
		},
	}
	require.NoError(t, conf.Parse())
	assert.Equal(t, "db-secret", conf.DB.Pass)
	assert.Equal(t, orm.DriverSQLite, conf.DB.Driver)
	assert.Equal(t, "redis-secret", conf.Redis.Servers[0].Auth)
	assert.Same(t, conf.DB, conf.DBConfig())
	assert.Same(t, conf.Redis, conf.RedisConfig())
}

func TestNewBackend(t *testing.T) {
	conf := &Config{Store: &StoreConfig{Backend: BackendMemory}}
	require.NoError(t, conf.Parse())
	backend, err := NewBackend(conf)
	require.NoError(t, err)
	assert.Equal(t, "memory", backend.Name())
	assert.NoError(t, Provision(t.Context(), conf, backend))

	conf = &Config{Store: &StoreConfig{Backend: BackendSQLite}, DB: &orm.DBConfig{Path: ":memory:"}}
	require.NoError(t, conf.Parse())
	backend, err = NewBackend(conf)
	require.NoError(t, err)
	defer backend.Close()
	_, ok := backend.(*sqlstore.Backend)
	assert.True(t, ok)
	require.NoError(t, Provision(t.Context(), conf, backend))
	app, err := New(conf, backend, WithMetrics(newTestMetrics()))
	require.NoError(t, err)
	n, err := app.counter.IncrementAndGet(t.Context(), conf.Counter.ID())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	conf = &Config{Store: &StoreConfig{Backend: BackendMySQL}}
	require.NoError(t, conf.Parse())
	_, err = NewBackend(conf)
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))

	conf = &Config{Store: &StoreConfig{Backend: BackendMySQL}, DB: &orm.DBConfig{Driver: orm.DriverSQLite, Path: ":memory:"}}
	require.NoError(t, conf.Parse())
	_, err = NewBackend(conf)
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))

	conf = &Config{Store: &StoreConfig{Backend: BackendRedis}}
	require.NoError(t, conf.Parse())
	_, err = NewBackend(conf)
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))
}

func TestNewRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	conf := &Config{
		Store: &StoreConfig{Backend: BackendRedis, RedisGroup: "blog"},
		Redis: &cache.RedisConf{
			Servers: []*cache.RedisServer{{ID: "r1", Host: mr.Host(), Port: port}},
			Groups:  map[string][]string{"blog": {"r1"}},
		},
	}
	require.NoError(t, conf.Parse())
	backend, err := NewBackend(conf)
	require.NoError(t, err)
	defer backend.Close()
	_, ok := backend.(*redisstore.Backend)
	assert.True(t, ok)

	app, err := New(conf, backend, WithMetrics(newTestMetrics()))
	require.NoError(t, err)
	n, err := app.counter.IncrementAndGet(t.Context(), conf.Counter.ID())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	record, err := app.blog.Create(t.Context(), "go", "hello redis")
	require.NoError(t, err)
	records, err := app.blog.List(t.Context())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)

	conf.Store.RedisGroup = "missing"
	_, err = NewBackend(conf)
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))
}

func TestLoadSampleConfig(t *testing.T) {
	conf, err := LoadConfig("../conf", c.EnvDevelopment)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, conf.Store.Backend)
	assert.Equal(t, orm.DriverSQLite, conf.DB.Driver)
	assert.Equal(t, "visits", conf.Counter.Table)
	assert.Equal(t, 200, conf.Blog.TopicMaxLen)
	assert.Equal(t, "127.0.0.1:8080", conf.HTTP.Addr)
}
