// Package counter 基于远程表的持久化计数器
package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/metrics"
	"github.com/wookietoast/site/store"
)

// CountProperty 计数保存的属性名
const CountProperty = "count"

// 默认的冲突重试参数
const (
	DefaultMaxRetries = 5
	DefaultBackoff    = 10 * time.Millisecond
)

// Policy 并发写入的冲突处理策略
type Policy int

const (
	// PolicyOptimistic 按照读取到的版本条件写入,冲突时重试,不会丢失更新
	PolicyOptimistic Policy = iota
	// PolicyLastWriterWins 读取后无条件写入,并发的调用可能写入相同的值而丢失更新
	PolicyLastWriterWins
)

func (p Policy) String() string {
	switch p {
	case PolicyOptimistic:
		return "optimistic"
	case PolicyLastWriterWins:
		return "last_writer_wins"
	}
	return "Policy(" + strconv.Itoa(int(p)) + ")"
}

// ParsePolicy 解析策略名称,空字符串为PolicyOptimistic
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "optimistic":
		return PolicyOptimistic, nil
	case "last_writer_wins", "lww":
		return PolicyLastWriterWins, nil
	}
	return PolicyOptimistic, fmt.Errorf("unknown counter policy %q", name)
}

// ID 计数器的标识
type ID struct {
	PartitionKey string
	RowKey       string
}

func (p ID) String() string {
	return p.PartitionKey + "/" + p.RowKey
}

func (p ID) validate() error {
	if c.IsEmpty(p.PartitionKey) || c.IsEmpty(p.RowKey) {
		return c.NewErrorf(c.KindValidation, nil, "counter id %q must have partition key and row key", p.String())
	}
	return nil
}

// Counter 计数器
type Counter interface {
	// IncrementAndGet 计数加1,返回加1之后的值
	IncrementAndGet(ctx context.Context, id ID) (int64, error)
	// Get 当前的计数,不存在时为0
	Get(ctx context.Context, id ID) (int64, error)
}

var _ Counter = (*Store)(nil)

// Store 使用store.Table实现Counter,每个计数器是表中的一行
type Store struct {
	table      store.Table
	policy     Policy
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
	metrics    *metrics.Metrics
}

// Option Store的可选参数
type Option func(*Store)

// WithPolicy 冲突处理策略
func WithPolicy(policy Policy) Option {
	return func(p *Store) {
		p.policy = policy
	}
}

// WithRetry 乐观策略下的最大重试次数与退避时间,第n次重试前等待n*backoff
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(p *Store) {
		if maxRetries >= 0 {
			p.maxRetries = maxRetries
		}
		if backoff >= 0 {
			p.backoff = backoff
		}
	}
}

// WithTimeout 每次调用的超时时间,0表示只使用调用方的ctx
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

// NewStore 创建计数器,table不能为nil
func NewStore(table store.Table, opts ...Option) (*Store, error) {
	if c.HasNil(table) {
		return nil, c.NewError(c.KindMissingConfiguration, nil, "counter table is not configured")
	}
	p := &Store{
		table:      table,
		policy:     PolicyOptimistic,
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultBackoff,
		metrics:    metrics.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Policy 使用的策略
func (p *Store) Policy() Policy {
	return p.policy
}

// IncrementAndGet implements Counter
func (p *Store) IncrementAndGet(ctx context.Context, id ID) (count int64, err error) {
	start := time.Now()
	defer func() {
		p.metrics.CounterIncrements.WithLabelValues(metrics.ResultOf(err)).Inc()
		p.metrics.ObserveStoreOp("counter", "increment", start, err)
	}()
	if err = id.validate(); err != nil {
		return 0, err
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if p.policy == PolicyLastWriterWins {
		return p.incrementUnconditionally(ctx, id)
	}
	for attempt := 0; ; attempt++ {
		count, err = p.tryIncrement(ctx, id)
		if err == nil {
			return count, nil
		}
		if !errors.Is(err, store.ErrPreconditionFailed) && !errors.Is(err, store.ErrConflict) {
			return 0, unavailable(id, "increment", err)
		}
		p.metrics.CounterConflicts.Inc()
		if attempt >= p.maxRetries {
			return 0, c.NewErrorf(c.KindStoreUnavailable, err, "increment %s: gave up after %d conflicts", id, attempt+1)
		}
		c.Debugf("increment %s conflict,retry %d", id, attempt+1)
		if err = sleep(ctx, p.backoff*time.Duration(attempt+1)); err != nil {
			return 0, unavailable(id, "increment", err)
		}
	}
}

// tryIncrement 一次读取与一次条件写入
func (p *Store) tryIncrement(ctx context.Context, id ID) (int64, error) {
	current, err := p.table.Get(ctx, id.PartitionKey, id.RowKey)
	if errors.Is(err, store.ErrNotFound) {
		if _, err = p.table.Insert(ctx, newEntity(id, nil, 1)); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	next := p.countOf(id, current) + 1
	if _, err = p.table.Replace(ctx, newEntity(id, current.Properties, next), current.Version); err != nil {
		return 0, err
	}
	return next, nil
}

func (p *Store) incrementUnconditionally(ctx context.Context, id ID) (int64, error) {
	var next int64 = 1
	var props map[string]string
	current, err := p.table.Get(ctx, id.PartitionKey, id.RowKey)
	switch {
	case err == nil:
		next = p.countOf(id, current) + 1
		props = current.Properties
	case errors.Is(err, store.ErrNotFound):
	default:
		return 0, unavailable(id, "increment", err)
	}
	if _, err = p.table.Upsert(ctx, newEntity(id, props, next)); err != nil {
		return 0, unavailable(id, "increment", err)
	}
	return next, nil
}

// Get implements Counter
func (p *Store) Get(ctx context.Context, id ID) (count int64, err error) {
	start := time.Now()
	defer func() {
		p.metrics.ObserveStoreOp("counter", "get", start, err)
	}()
	if err = id.validate(); err != nil {
		return 0, err
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	current, err := p.table.Get(ctx, id.PartitionKey, id.RowKey)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(id, "get", err)
	}
	return p.countOf(id, current), nil
}

// countOf 解析计数,无效的计数记录日志后视为0
func (p *Store) countOf(id ID, e *store.Entity) int64 {
	raw, ok := e.Properties[CountProperty]
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if ok && err == nil && n >= 0 {
		return n
	}
	corrupt := c.NewErrorf(c.KindStoreCorrupt, err, "counter %s in %s has invalid count %q", id, p.table.Name(), raw)
	c.Warnf("%v,treat as 0", corrupt)
	p.metrics.CounterCorrupt.Inc()
	return 0
}

func (p *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

func newEntity(id ID, props map[string]string, count int64) *store.Entity {
	e := &store.Entity{
		PartitionKey: id.PartitionKey,
		RowKey:       id.RowKey,
		Properties:   make(map[string]string, len(props)+1),
	}
	for k, v := range props {
		e.Properties[k] = v
	}
	e.Properties[CountProperty] = strconv.FormatInt(count, 10)
	return e
}

func unavailable(id ID, op string, err error) error {
	c.Errorf("%s counter %s fail,err:%v", op, id, err)
	return c.NewErrorf(c.KindStoreUnavailable, err, "%s counter %s", op, id)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
