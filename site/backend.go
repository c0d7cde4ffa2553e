package site

import (
	"context"

	"github.com/wookietoast/site/cache"
	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/orm"
	"github.com/wookietoast/site/store"
	"github.com/wookietoast/site/store/memstore"
	"github.com/wookietoast/site/store/redisstore"
	"github.com/wookietoast/site/store/sqlstore"
)

// NewBackend 根据store.backend创建存储后端,启动时创建一次,由计数器与博客共用
func NewBackend(conf *Config) (store.Backend, error) {
	if conf == nil || conf.Store == nil {
		return nil, c.NewError(c.KindMissingConfiguration, nil, "no store config")
	}
	switch conf.Store.Backend {
	case BackendMemory:
		c.Warnf("using in-memory store,data will be lost on exit")
		return memstore.NewBackend(), nil
	case BackendRedis:
		redisConf := conf.RedisConfig()
		if redisConf == nil {
			return nil, c.NewError(c.KindMissingConfiguration, nil, "redis backend needs redis config")
		}
		client := cache.NewRedisClientWithConf(redisConf)
		backend, err := redisstore.NewBackend(client, conf.Store.RedisGroup, conf.Store.KeyPrefix)
		if err != nil {
			client.Close()
			return nil, err
		}
		return backend, nil
	case BackendMySQL, BackendSQLite:
		if conf.DB == nil {
			return nil, c.NewErrorf(c.KindMissingConfiguration, nil, "%s backend needs db config", conf.Store.Backend)
		}
		if conf.DB.Driver != conf.Store.Backend {
			return nil, c.NewErrorf(c.KindMissingConfiguration, nil, "db driver %s does not match store backend %s", conf.DB.Driver, conf.Store.Backend)
		}
		dbService := orm.NewSimpleDBService(conf, nil)
		if err := dbService.Init(); err != nil {
			return nil, err
		}
		backend, err := sqlstore.NewBackend(dbService.Pool())
		if err != nil {
			dbService.Stop()
			return nil, err
		}
		return backend, nil
	}
	return nil, c.NewErrorf(c.KindMissingConfiguration, nil, "unsupported store backend %q", conf.Store.Backend)
}

// Provision 为SQL后端创建计数表与博客集合对应的表,其他后端不需要
func Provision(ctx context.Context, conf *Config, backend store.Backend) error {
	sqlBackend, ok := backend.(*sqlstore.Backend)
	if !ok {
		c.Infof("backend %s needs no provision", backend.Name())
		return nil
	}
	return sqlstore.Provision(ctx, sqlBackend.Pool(), []string{conf.Counter.Table}, []string{conf.Blog.Collection})
}

// BackendService 在服务停止时关闭存储后端
type BackendService struct {
	c.BaseService
	Backend store.Backend
}

// NewBackendService 创建服务,停止次序在http服务之后
func NewBackendService(backend store.Backend) *BackendService {
	return &BackendService{
		BaseService: c.BaseService{SName: "store", Order: -1},
		Backend:     backend,
	}
}

// Init implements Initable
func (p *BackendService) Init() error {
	if c.HasNil(p.Backend) {
		return c.NewError(c.KindMissingConfiguration, nil, "no store backend")
	}
	return nil
}

// Stop 关闭后端
func (p *BackendService) Stop() bool {
	if err := p.Backend.Close(); err != nil {
		c.Errorf("close store %s fail,err:%v", p.Backend.Name(), err)
		return false
	}
	return true
}
