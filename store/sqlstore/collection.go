package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/orm"
	"github.com/wookietoast/site/store"
)

var _ store.Collection = (*Collection)(nil)

// Collection 表结构为(id, partition_key, created_at, fields),created_at为UTC纳秒
type Collection struct {
	pool *orm.Pool
	name string
}

// NewCollection 创建SQL集合,表需要已经存在,参见Provision
func NewCollection(pool *orm.Pool, name string) (*Collection, error) {
	if pool == nil {
		return nil, errors.New("nil db pool")
	}
	if !store.ValidName(name) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}
	if _, err := dialectOf(pool.Driver()); err != nil {
		return nil, err
	}
	return &Collection{pool: pool, name: name}, nil
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
	fields := doc.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	data, err := json.MarshalToString(fields)
	if err != nil {
		return err
	}
	_, err = p.pool.DB().ExecContext(ctx,
		"INSERT INTO "+p.name+" (id, partition_key, created_at, fields) VALUES (?, ?, ?, ?)",
		doc.ID, doc.PartitionKey, doc.CreatedAt.UnixNano(), data)
	if orm.IsDuplicateKey(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", p.name, err)
	}
	return nil
}

// Query implements store.Collection
func (p *Collection) Query(ctx context.Context, query store.Query) ([]*store.Document, error) {
	var sb strings.Builder
	var args []interface{}
	sb.WriteString("SELECT id, partition_key, created_at, fields FROM ")
	sb.WriteString(p.name)
	if query.PartitionKey != "" {
		sb.WriteString(" WHERE partition_key = ?")
		args = append(args, query.PartitionKey)
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC")
	if query.Limit > 0 || query.Offset > 0 {
		limit := query.Limit
		if limit <= 0 {
			limit = math.MaxInt32
		}
		offset := query.Offset
		if offset < 0 {
			offset = 0
		}
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, offset)
	}

	rows, err := p.pool.DB().QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", p.name, err)
	}
	defer rows.Close()

	var docs = []*store.Document{}
	for rows.Next() {
		var (
			doc       store.Document
			createdAt int64
			fields    string
		)
		if err := rows.Scan(&doc.ID, &doc.PartitionKey, &createdAt, &fields); err != nil {
			return nil, fmt.Errorf("scan %s: %w", p.name, err)
		}
		if err := json.UnmarshalFromString(fields, &doc.Fields); err != nil {
			c.Warnf("skip document %s in %s with invalid fields,err:%v", doc.ID, p.name, err)
			continue
		}
		doc.CreatedAt = time.Unix(0, createdAt).UTC()
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", p.name, err)
	}
	return docs, nil
}

// Count implements store.Collection
func (p *Collection) Count(ctx context.Context, partitionKey string) (n int64, err error) {
	if partitionKey == "" {
		err = p.pool.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+p.name).Scan(&n)
	} else {
		err = p.pool.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+p.name+" WHERE partition_key = ?", partitionKey).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", p.name, err)
	}
	return n, nil
}
