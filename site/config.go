// Package site 个人站点: 页面、访问计数与博客
package site

import (
	"os"
	"strings"
	"time"

	"github.com/wookietoast/site/blog"
	"github.com/wookietoast/site/cache"
	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/counter"
	"github.com/wookietoast/site/http"
	"github.com/wookietoast/site/orm"
	"github.com/wookietoast/site/store"
)

// 存储后端
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMySQL  = orm.DriverMySQL
	BackendSQLite = orm.DriverSQLite
)

// 用于覆盖配置文件中密码的环境变量
const (
	EnvRedisAuth = "SITE_REDIS_AUTH"
	EnvDBPass    = "SITE_DB_PASS"
)

// 默认值
const (
	DefaultTable        = "visits"
	DefaultPartitionKey = "counter"
	DefaultRowKey       = "site"
	DefaultCollection   = "wookiecontainer"
	DefaultKeyPrefix    = "site:"
	DefaultRedisGroup   = "site"
	DefaultListLimit    = 20
)

// StoreConfig 存储配置
type StoreConfig struct {
	Backend    string `yaml:"backend"`     //memory,redis,mysql或sqlite
	TimeoutMs  int    `yaml:"timeout_ms"`  //单次存储操作的超时,0表示不限制
	RedisGroup string `yaml:"redis_group"` //redis后端使用的组
	KeyPrefix  string `yaml:"key_prefix"`  //redis后端的key前缀
}

// Parse implements Configurer
func (p *StoreConfig) Parse() error {
	p.Backend = strings.ToLower(strings.TrimSpace(p.Backend))
	switch p.Backend {
	case "":
		return c.NewError(c.KindMissingConfiguration, nil, "store backend must be set")
	case BackendMemory, BackendRedis, BackendMySQL, BackendSQLite:
	default:
		return c.NewErrorf(c.KindMissingConfiguration, nil, "unsupported store backend %q", p.Backend)
	}
	if p.TimeoutMs < 0 {
		return c.NewErrorf(c.KindValidation, nil, "invalid store timeout_ms %d", p.TimeoutMs)
	}
	if p.RedisGroup == "" {
		p.RedisGroup = DefaultRedisGroup
	}
	if p.KeyPrefix == "" {
		p.KeyPrefix = DefaultKeyPrefix
	}
	return nil
}

// Timeout 存储操作的超时
func (p *StoreConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// CounterConfig 访问计数配置
type CounterConfig struct {
	Table        string `yaml:"table"`
	PartitionKey string `yaml:"partition_key"`
	RowKey       string `yaml:"row_key"`
	Policy       string `yaml:"policy"` //optimistic或last_writer_wins
	MaxRetries   int    `yaml:"max_retries"`
	BackoffMs    int    `yaml:"backoff_ms"`
	policy       counter.Policy
}

// Parse implements Configurer
func (p *CounterConfig) Parse() error {
	if p.Table == "" {
		p.Table = DefaultTable
	}
	if p.PartitionKey == "" {
		p.PartitionKey = DefaultPartitionKey
	}
	if p.RowKey == "" {
		p.RowKey = DefaultRowKey
	}
	if !store.ValidName(p.Table) {
		return c.NewErrorf(c.KindValidation, nil, "invalid counter table %q", p.Table)
	}
	policy, err := counter.ParsePolicy(p.Policy)
	if err != nil {
		return err
	}
	p.policy = policy
	if p.MaxRetries <= 0 {
		p.MaxRetries = counter.DefaultMaxRetries
	}
	if p.BackoffMs < 0 {
		return c.NewErrorf(c.KindValidation, nil, "invalid counter backoff_ms %d", p.BackoffMs)
	}
	if p.BackoffMs == 0 {
		p.BackoffMs = int(counter.DefaultBackoff / time.Millisecond)
	}
	return nil
}

// ID 计数器的标识
func (p *CounterConfig) ID() counter.ID {
	return counter.ID{PartitionKey: p.PartitionKey, RowKey: p.RowKey}
}

// Options 计数器的选项
func (p *CounterConfig) Options() []counter.Option {
	return []counter.Option{
		counter.WithPolicy(p.policy),
		counter.WithRetry(p.MaxRetries, time.Duration(p.BackoffMs)*time.Millisecond),
	}
}

// BlogConfig 博客配置
type BlogConfig struct {
	Collection  string `yaml:"collection"`
	TopicMaxLen int    `yaml:"topic_max_len"`
	BodyMaxLen  int    `yaml:"body_max_len"`
	ListLimit   int    `yaml:"list_limit"` //博客页面每页的条数
}

// Parse implements Configurer
func (p *BlogConfig) Parse() error {
	if p.Collection == "" {
		p.Collection = DefaultCollection
	}
	if !store.ValidName(p.Collection) {
		return c.NewErrorf(c.KindValidation, nil, "invalid blog collection %q", p.Collection)
	}
	if p.TopicMaxLen <= 0 {
		p.TopicMaxLen = blog.DefaultTopicMaxLen
	}
	if p.BodyMaxLen <= 0 {
		p.BodyMaxLen = blog.DefaultBodyMaxLen
	}
	if p.ListLimit <= 0 || p.ListLimit > blog.MaxPageSize {
		p.ListLimit = DefaultListLimit
	}
	return nil
}

// SiteConfig 页面配置
type SiteConfig struct {
	Title    string `yaml:"title"`
	DataFile string `yaml:"data_file"` //简历与项目数据,为空时使用内置的数据
}

// Parse implements Configurer
func (p *SiteConfig) Parse() error {
	if p.Title == "" {
		p.Title = "wookietoast"
	}
	return nil
}

// Config 站点配置
type Config struct {
	c.AppConfig `yaml:",inline"`
	HTTP        *http.Config     `yaml:"http"`
	Redis       *cache.RedisConf `yaml:"redis"`
	DB          *orm.DBConfig    `yaml:"db"`
	Store       *StoreConfig     `yaml:"store"`
	Counter     *CounterConfig   `yaml:"counter"`
	Blog        *BlogConfig      `yaml:"blog"`
	Site        *SiteConfig      `yaml:"site"`
}

// Parse 填充默认的配置,用环境变量覆盖密码,然后依次解析各部分配置
func (p *Config) Parse() error {
	if p.HTTP == nil {
		p.HTTP = &http.Config{}
	}
	if p.Counter == nil {
		p.Counter = &CounterConfig{}
	}
	if p.Blog == nil {
		p.Blog = &BlogConfig{}
	}
	if p.Site == nil {
		p.Site = &SiteConfig{}
	}
	if auth := os.Getenv(EnvRedisAuth); auth != "" && p.Redis != nil {
		for _, server := range p.Redis.Servers {
			if server != nil {
				server.Auth = auth
			}
		}
	}
	if pass := os.Getenv(EnvDBPass); pass != "" && p.DB != nil {
		p.DB.Pass = pass
	}
	if p.Store != nil && p.DB != nil && p.DB.Driver == "" {
		switch backend := strings.ToLower(strings.TrimSpace(p.Store.Backend)); backend {
		case BackendMySQL, BackendSQLite:
			p.DB.Driver = backend
		}
	}
	return c.Parse(p)
}

// DBConfig implements orm.DBConfigurer
func (p *Config) DBConfig() *orm.DBConfig {
	return p.DB
}

// RedisConfig implements cache.RedisConfigurer
func (p *Config) RedisConfig() *cache.RedisConf {
	return p.Redis
}

// LoadConfig 从confDir中加载conf_{env}.yaml与common.yaml并解析
func LoadConfig(confDir, env string) (*Config, error) {
	if env == "" {
		env = c.EnvDevelopment
	}
	conf := &Config{}
	if err := c.LoadConfig(conf, "", confDir, "conf_"+env+".yaml", "common.yaml"); err != nil {
		return nil, err
	}
	if err := conf.Parse(); err != nil {
		return nil, err
	}
	return conf, nil
}
