// Package blog 博客记录的创建与列表,记录保存在远程文档集合中,创建后不可修改
package blog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/metrics"
	"github.com/wookietoast/site/store"
)

// 文档中的字段名
const (
	FieldID        = "id"
	FieldTopic     = "topic"
	FieldBody      = "body"
	FieldCreatedAt = "createdAt"
)

// 默认的长度限制,单位字节
const (
	DefaultTopicMaxLen = 200
	DefaultBodyMaxLen  = 64 * 1024
)

// 分页的限制
const (
	MaxPage     = 1000
	MaxPageSize = 100
)

// Record 一篇博客
type Record struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreatedAtISO createdAt的ISO-8601格式
func (p *Record) CreatedAtISO() string {
	return c.FormatISO8601(p.CreatedAt)
}

func (p *Record) document() *store.Document {
	return &store.Document{
		ID:           p.ID,
		PartitionKey: p.Topic,
		CreatedAt:    p.CreatedAt,
		Fields: map[string]string{
			FieldID:        p.ID,
			FieldTopic:     p.Topic,
			FieldBody:      p.Body,
			FieldCreatedAt: p.CreatedAtISO(),
		},
	}
}

// recordOf 将文档转为Record,字段缺失或者无效时返回StoreCorrupt
func recordOf(doc *store.Document) (*Record, error) {
	topic, okTopic := doc.Fields[FieldTopic]
	body, okBody := doc.Fields[FieldBody]
	if !okTopic || !okBody || doc.ID == "" {
		return nil, c.NewErrorf(c.KindStoreCorrupt, nil, "document %q misses topic or body", doc.ID)
	}
	createdAt := doc.CreatedAt
	if raw, ok := doc.Fields[FieldCreatedAt]; ok {
		t, err := c.ParseISO8601(raw)
		if err != nil {
			return nil, c.NewErrorf(c.KindStoreCorrupt, err, "document %q has invalid createdAt", doc.ID)
		}
		createdAt = t
	}
	return &Record{ID: doc.ID, Topic: topic, Body: body, CreatedAt: createdAt.UTC()}, nil
}

// Recorder 博客记录的存储
type Recorder interface {
	// Create 创建记录
	Create(ctx context.Context, topic, body string) (*Record, error)
	// List 全部记录,按照创建时间倒序
	List(ctx context.Context) ([]*Record, error)
}

var _ Recorder = (*Store)(nil)

// Store 使用store.Collection实现Recorder,topic作为分区键
type Store struct {
	coll      store.Collection
	clock     c.Clock
	newID     func() string
	topicRule *c.ValidateRule
	bodyRule  *c.ValidateRule
	timeout   time.Duration
	metrics   *metrics.Metrics
}

// Option Store的可选参数
type Option func(*Store)

// WithClock 时间源
func WithClock(clock c.Clock) Option {
	return func(p *Store) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithIDGenerator id生成器,默认为随机的UUID
func WithIDGenerator(newID func() string) Option {
	return func(p *Store) {
		if newID != nil {
			p.newID = newID
		}
	}
}

// WithMaxLen topic与body的最大长度,<=0表示使用默认值
func WithMaxLen(topicMaxLen, bodyMaxLen int) Option {
	return func(p *Store) {
		if topicMaxLen > 0 {
			p.topicRule = newRule(FieldTopic, topicMaxLen)
		}
		if bodyMaxLen > 0 {
			p.bodyRule = newRule(FieldBody, bodyMaxLen)
		}
	}
}

// WithTimeout 每次调用的超时时间
func WithTimeout(timeout time.Duration) Option {
	return func(p *Store) {
		p.timeout = timeout
	}
}

// WithMetrics 指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Store) {
		if m != nil {
			p.metrics = m
		}
	}
}

func newRule(name string, maxLen int) *c.ValidateRule {
	return &c.ValidateRule{
		Desc: fmt.Sprintf("%s must not be empty and at most %d bytes", name, maxLen),
		Validators: []c.StrValidator{
			&c.NotEmptyValidator{},
			&c.StringLenValidator{Min: 1, Max: maxLen},
			&c.UTF8Validator{},
		},
	}
}

// NewStore 创建博客存储,coll不能为nil
func NewStore(coll store.Collection, opts ...Option) (*Store, error) {
	if c.HasNil(coll) {
		return nil, c.NewError(c.KindMissingConfiguration, nil, "blog collection is not configured")
	}
	p := &Store{
		coll:      coll,
		clock:     c.SystemClock,
		newID:     uuid.NewString,
		topicRule: newRule(FieldTopic, DefaultTopicMaxLen),
		bodyRule:  newRule(FieldBody, DefaultBodyMaxLen),
		metrics:   metrics.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Create implements Recorder
func (p *Store) Create(ctx context.Context, topic, body string) (record *Record, err error) {
	start := time.Now()
	defer func() {
		p.metrics.ObserveStoreOp("blog", "create", start, err)
	}()
	topic, body = strings.TrimSpace(topic), strings.TrimSpace(body)
	if err = c.ValidateAll(
		&c.ValidatePair{Rule: p.topicRule, Value: topic},
		&c.ValidatePair{Rule: p.bodyRule, Value: body},
	); err != nil {
		return nil, err
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	record = &Record{
		ID:        p.newID(),
		Topic:     topic,
		Body:      body,
		CreatedAt: p.clock().UTC(),
	}
	if err = p.coll.Create(ctx, record.document()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.Errorf("blog record id %s already exists in %s", record.ID, p.coll.Name())
			return nil, c.NewErrorf(c.KindDuplicateID, err, "record id %s", record.ID)
		}
		return nil, p.unavailable("create", err)
	}
	p.metrics.RecordsCreated.Inc()
	c.Debugf("created blog record %s topic:%s", record.ID, record.Topic)
	return record, nil
}

// List implements Recorder
func (p *Store) List(ctx context.Context) ([]*Record, error) {
	return p.query(ctx, "list", store.Query{})
}

// ListByTopic 一个topic下的全部记录,按照创建时间倒序
func (p *Store) ListByTopic(ctx context.Context, topic string) ([]*Record, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, c.NewError(c.KindValidation, nil, "topic must not be empty")
	}
	return p.query(ctx, "list_topic", store.Query{PartitionKey: topic})
}

// Page 分页查询记录,topic为空时查询全部记录,page与pageSize会被限制在MaxPage与MaxPageSize之内
func (p *Store) Page(ctx context.Context, topic string, param c.PageParam) (result *c.PageResult[*Record], err error) {
	start := time.Now()
	defer func() {
		p.metrics.ObserveStoreOp("blog", "page", start, err)
	}()
	param.Limit(MaxPage, MaxPageSize)
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	topic = strings.TrimSpace(topic)
	total, err := p.coll.Count(ctx, topic)
	if err != nil {
		return nil, p.unavailable("count", err)
	}
	result = &c.PageResult[*Record]{PageParam: param, Total: total}
	result.CalTotalPage()
	if int64(param.StartIndex()) >= total {
		result.SetData(nil)
		return result, nil
	}
	docs, err := p.coll.Query(ctx, store.Query{PartitionKey: topic, Offset: param.StartIndex(), Limit: param.PageSize})
	if err != nil {
		return nil, p.unavailable("page", err)
	}
	result.SetData(p.records(docs))
	return result, nil
}

func (p *Store) query(ctx context.Context, op string, query store.Query) (records []*Record, err error) {
	start := time.Now()
	defer func() {
		p.metrics.ObserveStoreOp("blog", op, start, err)
	}()
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	docs, err := p.coll.Query(ctx, query)
	if err != nil {
		return nil, p.unavailable(op, err)
	}
	return p.records(docs), nil
}

// records 转换文档,跳过无效的文档
func (p *Store) records(docs []*store.Document) []*Record {
	records := make([]*Record, 0, len(docs))
	for _, doc := range docs {
		record, err := recordOf(doc)
		if err != nil {
			c.Warnf("skip blog document in %s,err:%v", p.coll.Name(), err)
			continue
		}
		records = append(records, record)
	}
	return records
}

func (p *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

func (p *Store) unavailable(op string, err error) error {
	c.Errorf("%s blog records in %s fail,err:%v", op, p.coll.Name(), err)
	return c.NewErrorf(c.KindStoreUnavailable, err, "%s blog records", op)
}
