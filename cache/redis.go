package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gomodule/redigo/redis"
	c "github.com/wookietoast/site/common"
)

// Redis命令
const (
	DEL     = "DEL"
	EXISTS  = "EXISTS"
	EVAL    = "EVAL"
	EVALSHA = "EVALSHA"
	HGETALL = "HGETALL"
	HMGET   = "HMGET"
	ZCARD   = "ZCARD"
	ZREVRNG = "ZREVRANGE"
	PING    = "PING"
)

// RedisClient 按照Param.Group选择Redis组,组内按照key的hash选择实例
type RedisClient struct {
	groups map[string][]*RedisServer
}

// NewRedisClient 使用已经初始化了连接池的groups创建RedisClient
func NewRedisClient(groups map[string][]*RedisServer) *RedisClient {
	return &RedisClient{groups: groups}
}

// NewRedisClientWithConf 使用解析后的RedisConf创建RedisClient
func NewRedisClientWithConf(conf *RedisConf) *RedisClient {
	return NewRedisClient(conf.groups)
}

// HasGroup 是否配置了group
func (p *RedisClient) HasGroup(group string) bool {
	return len(p.groups[group]) > 0
}

func (p *RedisClient) server(param Param) (*RedisServer, error) {
	servers := p.groups[param.Group()]
	if len(servers) == 0 {
		return nil, c.NewErrorf(c.KindMissingConfiguration, nil, "no redis group %q", param.Group())
	}
	if len(servers) == 1 {
		return servers[0], nil
	}
	return servers[c.Fnv32Hashcode(param.Key())%len(servers)], nil
}

// DoContext 取得param对应的连接并执行fn,连接在fn返回后释放
func (p *RedisClient) DoContext(ctx context.Context, param Param, fn func(conn redis.Conn) (interface{}, error)) (interface{}, error) {
	server, err := p.server(param)
	if err != nil {
		return nil, err
	}
	conn, err := server.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return fn(conn)
}

// Do 执行单个命令
func (p *RedisClient) Do(ctx context.Context, param Param, cmd string, args ...interface{}) (interface{}, error) {
	return p.DoContext(ctx, param, func(conn redis.Conn) (interface{}, error) {
		return redis.DoContext(conn, ctx, cmd, args...)
	})
}

// EvalContext 执行Lua脚本,先用EVALSHA,脚本未加载时使用EVAL
func (p *RedisClient) EvalContext(ctx context.Context, param Param, script *Script, keysAndArgs ...interface{}) (interface{}, error) {
	return p.DoContext(ctx, param, func(conn redis.Conn) (interface{}, error) {
		return script.Do(ctx, conn, keysAndArgs...)
	})
}

// Del 删除key,返回是否删除了
func (p *RedisClient) Del(ctx context.Context, param Param) (bool, error) {
	n, err := redis.Int(p.Do(ctx, param, DEL, param.Key()))
	return n > 0, err
}

// Exists key是否存在
func (p *RedisClient) Exists(ctx context.Context, param Param) (bool, error) {
	return redis.Bool(p.Do(ctx, param, EXISTS, param.Key()))
}

// Ping 检查group中所有实例是否可用
func (p *RedisClient) Ping(ctx context.Context, group string) error {
	servers := p.groups[group]
	if len(servers) == 0 {
		return c.NewErrorf(c.KindMissingConfiguration, nil, "no redis group %q", group)
	}
	for _, server := range servers {
		conn, err := server.pool.GetContext(ctx)
		if err != nil {
			return err
		}
		_, err = redis.DoContext(conn, ctx, PING)
		conn.Close()
		if err != nil {
			return fmt.Errorf("ping %s: %w", server.Addr(), err)
		}
	}
	return nil
}

// Close 关闭所有的连接池
func (p *RedisClient) Close() error {
	var errs []error
	for _, servers := range p.groups {
		for _, server := range servers {
			if err := server.close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Script Lua脚本,keyCount为KEYS的个数
type Script struct {
	keyCount int
	src      string
	hash     string
}

// NewScript 创建脚本
func NewScript(keyCount int, src string) *Script {
	h := sha1.Sum([]byte(src))
	return &Script{keyCount: keyCount, src: src, hash: hex.EncodeToString(h[:])}
}

// Hash sha1 of the source
func (p *Script) Hash() string {
	return p.hash
}

// Do 在conn上执行脚本
func (p *Script) Do(ctx context.Context, conn redis.Conn, keysAndArgs ...interface{}) (interface{}, error) {
	args := make([]interface{}, 0, len(keysAndArgs)+2)
	args = append(args, p.hash, p.keyCount)
	args = append(args, keysAndArgs...)
	reply, err := redis.DoContext(conn, ctx, EVALSHA, args...)
	if err != nil && strings.HasPrefix(err.Error(), "NOSCRIPT") {
		args[0] = p.src
		reply, err = redis.DoContext(conn, ctx, EVAL, args...)
	}
	return reply, err
}
