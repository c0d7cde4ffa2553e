package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/wookietoast/site/cache"
	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/store"
)

var _ store.Collection = (*Collection)(nil)

// KEYS[1] 文档hash;KEYS[2] 集合索引;KEYS[3] 分区索引
// ARGV[1] id;ARGV[2] 编码后的文档;ARGV[3] 索引成员
var createScript = cache.NewScript(3, `
if redis.call("HSETNX", KEYS[1], ARGV[1], ARGV[2]) == 0 then
	return 0
end
redis.call("ZADD", KEYS[2], 0, ARGV[3])
redis.call("ZADD", KEYS[3], 0, ARGV[3])
return 1
`)

// 索引成员为 "{19位纳秒时间戳}:{id}",分数都为0,ZREVRANGE按照成员的字典序倒序返回
const indexTimeWidth = 19

type storedDocument struct {
	ID           string            `codec:"id"`
	PartitionKey string            `codec:"pk"`
	CreatedAt    int64             `codec:"ts"`
	Fields       map[string]string `codec:"f"`
}

// Collection 文档保存在一个Hash中,通过有序集合索引创建时间
//
// 同一个集合的所有key都使用集合的基础key选择Redis实例,保证Lua脚本访问的key在同一个实例上
type Collection struct {
	client *cache.RedisClient
	base   *cache.ParamKey
	codec  cache.Codec
	name   string
}

// NewCollection 创建Redis集合,key为{keyPrefix}c:{name}:...
func NewCollection(client *cache.RedisClient, group, keyPrefix, name string) (*Collection, error) {
	if client == nil {
		return nil, errors.New("nil redis client")
	}
	if !store.ValidName(name) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}
	return &Collection{
		client: client,
		base:   cache.NewParamConf(group, keyPrefix).NewParamKey("c:" + name),
		codec:  cache.MsgPack,
		name:   name,
	}, nil
}

// Name implements store.Collection
func (p *Collection) Name() string {
	return p.name
}

func (p *Collection) docsKey() string {
	return p.base.Key() + ":docs"
}

func (p *Collection) indexKey(partitionKey string) string {
	if partitionKey == "" {
		return p.base.Key() + ":all"
	}
	return p.base.Key() + ":p:" + partitionKey
}

func indexMember(doc *store.Document) string {
	return fmt.Sprintf("%0*d:%s", indexTimeWidth, doc.CreatedAt.UnixNano(), doc.ID)
}

func memberID(member string) (string, bool) {
	if len(member) <= indexTimeWidth+1 || member[indexTimeWidth] != ':' {
		return "", false
	}
	return member[indexTimeWidth+1:], true
}

// Create implements store.Collection
func (p *Collection) Create(ctx context.Context, doc *store.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	data, err := p.codec.Encode(&storedDocument{
		ID:           doc.ID,
		PartitionKey: doc.PartitionKey,
		CreatedAt:    doc.CreatedAt.UnixNano(),
		Fields:       doc.Fields,
	})
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	created, err := redis.Int(p.client.EvalContext(ctx, p.base, createScript,
		p.docsKey(), p.indexKey(""), p.indexKey(doc.PartitionKey),
		doc.ID, data, indexMember(doc)))
	if err != nil {
		return fmt.Errorf("redis create %s/%s: %w", p.name, doc.ID, err)
	}
	if created == 0 {
		return store.ErrConflict
	}
	return nil
}

// Query implements store.Collection
func (p *Collection) Query(ctx context.Context, query store.Query) ([]*store.Document, error) {
	start := query.Offset
	if start < 0 {
		start = 0
	}
	stop := -1
	if query.Limit > 0 {
		stop = start + query.Limit - 1
	}
	reply, err := p.client.DoContext(ctx, p.base, func(conn redis.Conn) (interface{}, error) {
		members, err := redis.Strings(redis.DoContext(conn, ctx, cache.ZREVRNG, p.indexKey(query.PartitionKey), start, stop))
		if err != nil || len(members) == 0 {
			return nil, err
		}
		args := make([]interface{}, 0, len(members)+1)
		args = append(args, p.docsKey())
		for _, member := range members {
			id, ok := memberID(member)
			if !ok {
				c.Warnf("skip invalid index member %q in %s", member, p.name)
				continue
			}
			args = append(args, id)
		}
		if len(args) == 1 {
			return nil, nil
		}
		return redis.ByteSlices(redis.DoContext(conn, ctx, cache.HMGET, args...))
	})
	if err != nil {
		return nil, fmt.Errorf("redis query %s: %w", p.name, err)
	}
	values, _ := reply.([][]byte)
	docs := make([]*store.Document, 0, len(values))
	for _, data := range values {
		if data == nil {
			continue
		}
		var stored storedDocument
		if err := p.codec.Decode(data, &stored); err != nil || stored.ID == "" {
			c.Warnf("skip undecodable document in %s,err:%v", p.name, err)
			continue
		}
		docs = append(docs, &store.Document{
			ID:           stored.ID,
			PartitionKey: stored.PartitionKey,
			CreatedAt:    time.Unix(0, stored.CreatedAt).UTC(),
			Fields:       stored.Fields,
		})
	}
	return docs, nil
}

// Count implements store.Collection
func (p *Collection) Count(ctx context.Context, partitionKey string) (int64, error) {
	n, err := redis.Int64(p.client.Do(ctx, p.base, cache.ZCARD, p.indexKey(partitionKey)))
	if err != nil {
		return 0, fmt.Errorf("redis count %s: %w", p.name, err)
	}
	return n, nil
}
