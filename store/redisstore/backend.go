package redisstore

import (
	"github.com/wookietoast/site/cache"
	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/store"
)

var _ store.Backend = (*Backend)(nil)

// Backend 在一个Redis组上创建表与集合
type Backend struct {
	client    *cache.RedisClient
	group     string
	keyPrefix string
}

// NewBackend 创建Redis后端,group必须已经配置
func NewBackend(client *cache.RedisClient, group, keyPrefix string) (*Backend, error) {
	if client == nil || !client.HasGroup(group) {
		return nil, c.NewErrorf(c.KindMissingConfiguration, nil, "no redis group %q", group)
	}
	return &Backend{client: client, group: group, keyPrefix: keyPrefix}, nil
}

// Name implements store.Backend
func (p *Backend) Name() string {
	return "redis"
}

// Client redis client
func (p *Backend) Client() *cache.RedisClient {
	return p.client
}

// Table implements store.Backend
func (p *Backend) Table(name string) (store.Table, error) {
	return NewTable(p.client, p.group, p.keyPrefix, name)
}

// Collection implements store.Backend
func (p *Backend) Collection(name string) (store.Collection, error) {
	return NewCollection(p.client, p.group, p.keyPrefix, name)
}

// Close 关闭所有的连接池
func (p *Backend) Close() error {
	return p.client.Close()
}
