package orm

import (
	"fmt"

	c "github.com/wookietoast/site/common"
)

// DBService 提供Op的服务
type DBService interface {
	c.Service
	NewOp() (*Op, error)
	Pool() *Pool
}

// SimpleDBService implements DBService interface
type SimpleDBService struct {
	c.BaseService
	Config   DBConfigurer
	poolFunc PoolFunc
	pool     *Pool
}

// NewSimpleDBService build simple db service
func NewSimpleDBService(config DBConfigurer, poolFunc PoolFunc) *SimpleDBService {
	if poolFunc == nil {
		poolFunc = NewPool
	}
	return &SimpleDBService{
		BaseService: c.BaseService{SName: "db"},
		Config:      config,
		poolFunc:    poolFunc,
	}
}

// Init implements Initable.Init()
func (p *SimpleDBService) Init() error {
	if p.pool != nil {
		return fmt.Errorf("inited")
	}
	if p.Config == nil || p.Config.DBConfig() == nil {
		return c.NewError(c.KindMissingConfiguration, nil, "no db config")
	}
	pool, err := p.poolFunc(p.Config.DBConfig())
	if err != nil {
		return err
	}
	p.pool = pool
	return nil
}

// Stop 关闭连接池
func (p *SimpleDBService) Stop() bool {
	if p.pool == nil {
		return true
	}
	if err := p.pool.Close(); err != nil {
		c.Errorf("close db pool %s fail,err:%v", p.pool.Name(), err)
		return false
	}
	return true
}

// Pool 已经初始化的连接池,未初始化时为nil
func (p *SimpleDBService) Pool() *Pool {
	return p.pool
}

// NewOp implements DBService.NewOp()
func (p *SimpleDBService) NewOp() (*Op, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("please init db pool")
	}
	return p.pool.NewOp(), nil
}
