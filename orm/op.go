package orm

import (
	"context"
	"database/sql"

	c "github.com/wookietoast/site/common"
)

// OpTxFunc 在事务中处理的函数
type OpTxFunc func(tx *sql.Tx) (interface{}, error)

// Executor sql.DB与sql.Tx共同的执行接口
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Op 数据库操作接口,与sql.DB对应,封装了事务等
type Op struct {
	pool         *Pool   //数据连接
	tx           *sql.Tx //事务
	txDone       bool    //事务是否结束
	rollbackOnly bool    //是否只回滚
	transDepth   int     //调用的深度
}

// DB sql.DB
func (p *Op) DB() *sql.DB {
	return p.pool.db
}

// Pool pool
func (p *Op) Pool() *Pool {
	return p.pool
}

// Executor 在事务中时返回事务,否则返回DB
func (p *Op) Executor() Executor {
	if p.tx != nil {
		return p.tx
	}
	return p.pool.db
}

func (p *Op) close() {
	p.tx = nil
	p.rollbackOnly = false
	p.transDepth = 0
}

//检查事务的状态
func (p *Op) checkTransStatus() error {
	if p.txDone {
		return sql.ErrTxDone
	}
	if p.tx == nil {
		return NewDBError(nil, "not begin transaction")
	}
	return nil
}

func (p *Op) decrTransDepth() error {
	p.transDepth--
	if p.transDepth < 0 {
		return NewDBError(nil, "too many invoke commit or rollback")
	}
	return nil
}

//结束事务
func (p *Op) finishTrans() error {
	if err := p.checkTransStatus(); err != nil {
		return err
	}
	if err := p.decrTransDepth(); err != nil {
		return err
	}
	if p.transDepth > 0 {
		return nil
	}
	defer p.close()
	p.txDone = true
	if p.rollbackOnly {
		return p.tx.Rollback()
	}
	return p.tx.Commit()
}

// BeginTx 开始事务,支持简单的嵌套调用,如果已经开始了事务,则直接返回成功
func (p *Op) BeginTx(ctx context.Context) error {
	p.transDepth++
	if p.tx != nil {
		return nil
	}
	tx, err := p.DB().BeginTx(ctx, nil)
	if err != nil {
		p.transDepth--
		return err
	}
	p.tx = tx
	p.txDone = false
	return nil
}

// Commit 提交事务
func (p *Op) Commit() error {
	return p.finishTrans()
}

// Rollback 回滚事务
func (p *Op) Rollback() error {
	p.SetRollbackOnly(true)
	return p.finishTrans()
}

// SetRollbackOnly 设置只回滚
func (p *Op) SetRollbackOnly(rollback bool) {
	p.rollbackOnly = rollback
}

// IsRollbackOnly 是否只回滚
func (p *Op) IsRollbackOnly() bool {
	return p.rollbackOnly
}

// DoInTrans 在事务中执行,operation返回错误时回滚
func (p *Op) DoInTrans(ctx context.Context, operation OpTxFunc) (rt interface{}, err error) {
	if err := p.BeginTx(ctx); err != nil {
		return nil, err
	}
	var succ = false
	defer func() {
		if !succ {
			p.SetRollbackOnly(true)
		}
		if transErr := p.finishTrans(); transErr != nil {
			c.Errorf("finish transaction err:%v", transErr)
			rt = nil
			if err == nil {
				err = transErr
			}
		}
	}()
	rt, err = operation(p.tx)
	succ = err == nil
	return
}
