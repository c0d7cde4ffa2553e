// Package redisstore 基于Redis的存储实现,写入通过Lua脚本保证原子性
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gomodule/redigo/redis"
	"github.com/wookietoast/site/cache"
	"github.com/wookietoast/site/store"
)

var _ store.Table = (*Table)(nil)

// KEYS[1] entity hash; ARGV 属性的field,value列表
var insertScript = cache.NewScript(1, `
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "_version", 1, unpack(ARGV))
return 1
`)

var upsertScript = cache.NewScript(1, `
local v = redis.call("HGET", KEYS[1], "_version")
local nv = 1
if v then
	nv = tonumber(v) + 1
end
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1], "_version", nv, unpack(ARGV))
return nv
`)

// ARGV[1] 期望的版本,其后为属性的field,value列表
var replaceScript = cache.NewScript(1, `
local v = redis.call("HGET", KEYS[1], "_version")
if not v then
	return -1
end
if tonumber(v) ~= tonumber(ARGV[1]) then
	return -2
end
local nv = tonumber(v) + 1
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1], "_version", nv, unpack(ARGV, 2))
return nv
`)

// Table 每个实体保存为一个Hash,版本保存在_version字段中
type Table struct {
	client *cache.RedisClient
	conf   *cache.ParamConf
	name   string
}

// NewTable 创建Redis表,key为{keyPrefix}t:{name}:{len(pk)}:{pk}:{rk}
func NewTable(client *cache.RedisClient, group, keyPrefix, name string) (*Table, error) {
	if client == nil {
		return nil, errors.New("nil redis client")
	}
	if !store.ValidName(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}
	return &Table{
		client: client,
		conf:   cache.NewParamConf(group, keyPrefix).NewWithKeyPrefix("t:" + name + ":"),
		name:   name,
	}, nil
}

// Name implements store.Table
func (p *Table) Name() string {
	return p.name
}

func (p *Table) param(partitionKey, rowKey string) cache.Param {
	return p.conf.NewParamKey(strconv.Itoa(len(partitionKey)) + ":" + partitionKey + ":" + rowKey)
}

// Get implements store.Table
func (p *Table) Get(ctx context.Context, partitionKey, rowKey string) (*store.Entity, error) {
	param := p.param(partitionKey, rowKey)
	values, err := redis.StringMap(p.client.Do(ctx, param, cache.HGETALL, param.Key()))
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", param.Key(), err)
	}
	if len(values) == 0 {
		return nil, store.ErrNotFound
	}
	e := &store.Entity{PartitionKey: partitionKey, RowKey: rowKey, Properties: make(map[string]string, len(values))}
	for k, v := range values {
		if k == store.VersionProperty {
			if e.Version, err = strconv.ParseInt(v, 10, 64); err != nil {
				return nil, fmt.Errorf("redis get %s: invalid version %q", param.Key(), v)
			}
			continue
		}
		e.Properties[k] = v
	}
	return e, nil
}

// Insert implements store.Table
func (p *Table) Insert(ctx context.Context, entity *store.Entity) (*store.Entity, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	param := p.param(entity.PartitionKey, entity.RowKey)
	ok, err := redis.Int(p.client.EvalContext(ctx, param, insertScript, keyAndProps(param, entity)...))
	if err != nil {
		return nil, fmt.Errorf("redis insert %s: %w", param.Key(), err)
	}
	if ok == 0 {
		return nil, store.ErrConflict
	}
	return withVersion(entity, 1), nil
}

// Upsert implements store.Table
func (p *Table) Upsert(ctx context.Context, entity *store.Entity) (*store.Entity, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	param := p.param(entity.PartitionKey, entity.RowKey)
	version, err := redis.Int64(p.client.EvalContext(ctx, param, upsertScript, keyAndProps(param, entity)...))
	if err != nil {
		return nil, fmt.Errorf("redis upsert %s: %w", param.Key(), err)
	}
	return withVersion(entity, version), nil
}

// Replace implements store.Table
func (p *Table) Replace(ctx context.Context, entity *store.Entity, version int64) (*store.Entity, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	param := p.param(entity.PartitionKey, entity.RowKey)
	args := make([]interface{}, 0, 2+2*len(entity.Properties))
	args = append(args, param.Key(), version)
	args = appendProps(args, entity)
	newVersion, err := redis.Int64(p.client.EvalContext(ctx, param, replaceScript, args...))
	if err != nil {
		return nil, fmt.Errorf("redis replace %s: %w", param.Key(), err)
	}
	switch newVersion {
	case -1:
		return nil, store.ErrNotFound
	case -2:
		return nil, store.ErrPreconditionFailed
	}
	return withVersion(entity, newVersion), nil
}

// Delete implements store.Table
func (p *Table) Delete(ctx context.Context, partitionKey, rowKey string) error {
	param := p.param(partitionKey, rowKey)
	deleted, err := p.client.Del(ctx, param)
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", param.Key(), err)
	}
	if !deleted {
		return store.ErrNotFound
	}
	return nil
}

func keyAndProps(param cache.Param, entity *store.Entity) []interface{} {
	args := make([]interface{}, 0, 1+2*len(entity.Properties))
	args = append(args, param.Key())
	return appendProps(args, entity)
}

func appendProps(args []interface{}, entity *store.Entity) []interface{} {
	for k, v := range entity.Properties {
		args = append(args, k, v)
	}
	return args
}

func withVersion(entity *store.Entity, version int64) *store.Entity {
	e := entity.Clone()
	e.Version = version
	return e
}
