// Package memstore 进程内的存储实现,用于开发环境与测试
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/wookietoast/site/store"
)

var (
	_ store.Table      = (*Table)(nil)
	_ store.Collection = (*Collection)(nil)
	_ store.Backend    = (*Backend)(nil)
)

// Fault 在每次操作前调用,返回非nil时操作直接失败
type Fault func(op string) error

type faults struct {
	lock  sync.RWMutex
	fault Fault
}

// InjectFault 设置故障注入,fault为nil时清除
func (p *faults) InjectFault(fault Fault) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.fault = fault
}

func (p *faults) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.lock.RLock()
	fault := p.fault
	p.lock.RUnlock()
	if fault == nil {
		return nil
	}
	return fault(op)
}

type entityKey struct {
	partitionKey string
	rowKey       string
}

// Table 内存表
type Table struct {
	faults
	name     string
	lock     sync.Mutex
	entities map[entityKey]*store.Entity
}

// NewTable 创建内存表
func NewTable(name string) *Table {
	return &Table{name: name, entities: map[entityKey]*store.Entity{}}
}

// Name implements store.Table
func (p *Table) Name() string {
	return p.name
}

// Get implements store.Table
func (p *Table) Get(ctx context.Context, partitionKey, rowKey string) (*store.Entity, error) {
	if err := p.check(ctx, "get"); err != nil {
		return nil, err
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	e := p.entities[entityKey{partitionKey, rowKey}]
	if e == nil {
		return nil, store.ErrNotFound
	}
	return e.Clone(), nil
}

// Insert implements store.Table
func (p *Table) Insert(ctx context.Context, entity *store.Entity) (*store.Entity, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	if err := p.check(ctx, "insert"); err != nil {
		return nil, err
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	key := entityKey{entity.PartitionKey, entity.RowKey}
	if p.entities[key] != nil {
		return nil, store.ErrConflict
	}
	return p.put(key, entity, 1), nil
}

// Upsert implements store.Table
func (p *Table) Upsert(ctx context.Context, entity *store.Entity) (*store.Entity, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	if err := p.check(ctx, "upsert"); err != nil {
		return nil, err
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	key := entityKey{entity.PartitionKey, entity.RowKey}
	var version int64 = 1
	if current := p.entities[key]; current != nil {
		version = current.Version + 1
	}
	return p.put(key, entity, version), nil
}

// Replace implements store.Table
func (p *Table) Replace(ctx context.Context, entity *store.Entity, version int64) (*store.Entity, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	if err := p.check(ctx, "replace"); err != nil {
		return nil, err
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	key := entityKey{entity.PartitionKey, entity.RowKey}
	current := p.entities[key]
	if current == nil {
		return nil, store.ErrNotFound
	}
	if current.Version != version {
		return nil, store.ErrPreconditionFailed
	}
	return p.put(key, entity, version+1), nil
}

// Delete implements store.Table
func (p *Table) Delete(ctx context.Context, partitionKey, rowKey string) error {
	if err := p.check(ctx, "delete"); err != nil {
		return err
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	key := entityKey{partitionKey, rowKey}
	if p.entities[key] == nil {
		return store.ErrNotFound
	}
	delete(p.entities, key)
	return nil
}

// SetProperty 直接修改已经存在的实体的属性,不改变版本,用于模拟外部写入的数据
func (p *Table) SetProperty(partitionKey, rowKey, name, value string) {
	p.lock.Lock()
	defer p.lock.Unlock()
	key := entityKey{partitionKey, rowKey}
	e := p.entities[key]
	if e == nil {
		e = &store.Entity{PartitionKey: partitionKey, RowKey: rowKey, Properties: map[string]string{}, Version: 1}
		p.entities[key] = e
	}
	e.Properties[name] = value
}

func (p *Table) put(key entityKey, entity *store.Entity, version int64) *store.Entity {
	stored := entity.Clone()
	stored.Version = version
	p.entities[key] = stored
	return stored.Clone()
}

// Collection 内存文档集合
type Collection struct {
	faults
	name string
	lock sync.RWMutex
	docs map[string]*store.Document
}

// NewCollection 创建内存集合
func NewCollection(name string) *Collection {
	return &Collection{name: name, docs: map[string]*store.Document{}}
}

// Name implements store.Collection
func (p *Collection) Name() string {
	return p.name
}

// Create implements store.Collection
func (p *Collection) Create(ctx context.Context, doc *store.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if err := p.check(ctx, "create"); err != nil {
		return err
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.docs[doc.ID] != nil {
		return store.ErrConflict
	}
	p.docs[doc.ID] = cloneDocument(doc)
	return nil
}

// Query implements store.Collection
func (p *Collection) Query(ctx context.Context, query store.Query) ([]*store.Document, error) {
	if err := p.check(ctx, "query"); err != nil {
		return nil, err
	}
	p.lock.RLock()
	docs := make([]*store.Document, 0, len(p.docs))
	for _, doc := range p.docs {
		if query.PartitionKey == "" || doc.PartitionKey == query.PartitionKey {
			docs = append(docs, cloneDocument(doc))
		}
	}
	p.lock.RUnlock()

	store.SortDocuments(docs)
	start, end := query.Window(len(docs))
	return docs[start:end], nil
}

// Count implements store.Collection
func (p *Collection) Count(ctx context.Context, partitionKey string) (int64, error) {
	if err := p.check(ctx, "count"); err != nil {
		return 0, err
	}
	p.lock.RLock()
	defer p.lock.RUnlock()
	if partitionKey == "" {
		return int64(len(p.docs)), nil
	}
	var n int64
	for _, doc := range p.docs {
		if doc.PartitionKey == partitionKey {
			n++
		}
	}
	return n, nil
}

func cloneDocument(doc *store.Document) *store.Document {
	d := *doc
	d.Fields = make(map[string]string, len(doc.Fields))
	for k, v := range doc.Fields {
		d.Fields[k] = v
	}
	return &d
}

// Backend 内存后端,同名的表和集合返回同一个实例
type Backend struct {
	lock        sync.Mutex
	tables      map[string]*Table
	collections map[string]*Collection
}

// NewBackend 创建内存后端
func NewBackend() *Backend {
	return &Backend{tables: map[string]*Table{}, collections: map[string]*Collection{}}
}

// Name implements store.Backend
func (p *Backend) Name() string {
	return "memory"
}

// Table implements store.Backend
func (p *Backend) Table(name string) (store.Table, error) {
	return p.MemTable(name)
}

// MemTable 取得内存表
func (p *Backend) MemTable(name string) (*Table, error) {
	if !store.ValidName(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	table := p.tables[name]
	if table == nil {
		table = NewTable(name)
		p.tables[name] = table
	}
	return table, nil
}

// Collection implements store.Backend
func (p *Backend) Collection(name string) (store.Collection, error) {
	return p.MemCollection(name)
}

// MemCollection 取得内存集合
func (p *Backend) MemCollection(name string) (*Collection, error) {
	if !store.ValidName(name) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	coll := p.collections[name]
	if coll == nil {
		coll = NewCollection(name)
		p.collections[name] = coll
	}
	return coll, nil
}

// Close implements store.Backend
func (p *Backend) Close() error {
	return nil
}
