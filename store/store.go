// Package store 定义远程存储的表(按分区键和行键寻址)与文档集合(按创建时间倒序查询)
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// 存储层的结构化错误,其余的后端错误都视为不可用
var (
	ErrNotFound           = errors.New("store: not found")
	ErrConflict           = errors.New("store: conflict")
	ErrPreconditionFailed = errors.New("store: precondition failed")
)

// VersionProperty 后端保存版本号使用的保留属性名
const VersionProperty = "_version"

// Entity 表中的一行,Version由存储维护,从1开始,每次写入加1
type Entity struct {
	PartitionKey string
	RowKey       string
	Properties   map[string]string
	Version      int64
}

// Clone 深拷贝
func (p *Entity) Clone() *Entity {
	if p == nil {
		return nil
	}
	e := *p
	e.Properties = make(map[string]string, len(p.Properties))
	for k, v := range p.Properties {
		e.Properties[k] = v
	}
	return &e
}

// Validate 检查实体的键与属性
func (p *Entity) Validate() error {
	if p == nil {
		return errors.New("store: nil entity")
	}
	if p.PartitionKey == "" || p.RowKey == "" {
		return errors.New("store: partition key and row key must not be empty")
	}
	if _, ok := p.Properties[VersionProperty]; ok {
		return fmt.Errorf("store: property %s is reserved", VersionProperty)
	}
	return nil
}

// Table 按照(PartitionKey, RowKey)寻址的表
type Table interface {
	// Name 表名
	Name() string
	// Get 读取实体,不存在时返回ErrNotFound
	Get(ctx context.Context, partitionKey, rowKey string) (*Entity, error)
	// Insert 创建实体,已经存在时返回ErrConflict
	Insert(ctx context.Context, entity *Entity) (*Entity, error)
	// Upsert 不存在时创建,存在时替换全部属性
	Upsert(ctx context.Context, entity *Entity) (*Entity, error)
	// Replace 当存储中的版本等于version时替换全部属性;不存在时返回ErrNotFound,版本不一致时返回ErrPreconditionFailed
	Replace(ctx context.Context, entity *Entity, version int64) (*Entity, error)
	// Delete 删除实体,不存在时返回ErrNotFound
	Delete(ctx context.Context, partitionKey, rowKey string) error
}

// Document 集合中的文档,创建后不可修改
type Document struct {
	ID           string
	PartitionKey string
	CreatedAt    time.Time
	Fields       map[string]string
}

// Validate 检查文档,CreatedAt必须晚于unix epoch:redis后端以19位补零的纳秒数作为排序索引,负值会打乱顺序
func (p *Document) Validate() error {
	if p == nil {
		return errors.New("store: nil document")
	}
	if p.ID == "" || p.PartitionKey == "" {
		return errors.New("store: document id and partition key must not be empty")
	}
	if p.CreatedAt.IsZero() || p.CreatedAt.Before(time.Unix(0, 0)) {
		return errors.New("store: document created time must be after the unix epoch")
	}
	return nil
}

// Query 文档查询,PartitionKey为空表示跨分区;Limit<=0表示不限制
type Query struct {
	PartitionKey string
	Offset       int
	Limit        int
}

// Collection 文档集合
type Collection interface {
	// Name 集合名称
	Name() string
	// Create 创建文档,ID已经存在时返回ErrConflict
	Create(ctx context.Context, doc *Document) error
	// Query 按照CreatedAt倒序,相同时按照ID倒序返回文档
	Query(ctx context.Context, query Query) ([]*Document, error)
	// Count 文档数量,partitionKey为空表示整个集合
	Count(ctx context.Context, partitionKey string) (int64, error)
}

// Backend 创建表与集合,持有远程存储的连接
type Backend interface {
	Name() string
	Table(name string) (Table, error)
	Collection(name string) (Collection, error)
	Close() error
}

// DocumentLess 文档的顺序:CreatedAt倒序,ID倒序
func DocumentLess(a, b *Document) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// SortDocuments 按照DocumentLess排序
func SortDocuments(docs []*Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return DocumentLess(docs[i], docs[j])
	})
}

// Window 根据offset和limit截取[start,end)
func (p Query) Window(total int) (start, end int) {
	start = p.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end = total
	if p.Limit > 0 && start+p.Limit < total {
		end = start + p.Limit
	}
	return
}

// ValidName 表名与集合名只能包含字母、数字和下划线,并以字母开头
func ValidName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case (r >= '0' && r <= '9') || r == '_':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
