package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	c "github.com/wookietoast/site/common"
	"golang.org/x/net/netutil"
)

type tcpKeepAliveListener struct {
	*net.TCPListener
}

// Accept 接受连接
func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	if err = tc.SetKeepAlive(true); err != nil {
		return nil, err
	}
	if err = tc.SetKeepAlivePeriod(3 * time.Minute); err != nil {
		return nil, err
	}
	return tc, nil
}

// GraceableHandler 安全地关闭的处理器
type GraceableHandler struct {
	handler   http.Handler
	waitGroup *sync.WaitGroup
}

func (p *GraceableHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.waitGroup.Add(1)
	defer p.waitGroup.Done()

	p.handler.ServeHTTP(w, r)
}

// Service Http服务
type Service struct {
	c.BaseService
	Conf         *Config
	listener     net.Listener
	serveMux     *http.ServeMux
	graceHandler *GraceableHandler
	server       *http.Server
	lock         sync.Mutex
}

// NewService 创建Http服务
func NewService(conf *Config) *Service {
	return &Service{
		BaseService: c.BaseService{SName: "http"},
		Conf:        conf,
	}
}

// Init 初始化Http服务
func (p *Service) Init() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.Conf == nil {
		return c.NewError(c.KindMissingConfiguration, nil, "no http config")
	}
	if err := p.Conf.Parse(); err != nil {
		return err
	}

	handles, middlewares := p.Conf.snapshot()
	serveMux := http.NewServeMux()
	for pattern, handler := range handles {
		serveMux.Handle(pattern, p.handleWithMiddleware(handler, middlewares))
	}

	p.graceHandler = &GraceableHandler{
		handler:   serveMux,
		waitGroup: &sync.WaitGroup{}}
	p.server = &http.Server{
		Addr:         p.Conf.Addr,
		ReadTimeout:  time.Duration(p.Conf.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(p.Conf.WriteTimeout) * time.Second,
		Handler:      p.graceHandler}
	p.serveMux = serveMux
	return nil
}

// handleWithMiddleware 依次调用各个middleware,middleware通过RequestWithError终止处理
func (p *Service) handleWithMiddleware(handler http.HandlerFunc, middlewares []Middleware) http.HandlerFunc {
	originHandler := func(w http.ResponseWriter, r *http.Request) {
		if err, ok := ErrorFromRequestContext(r); ok {
			c.Errorf("stop handle %s,cause by error:%v", r.RequestURI, err)
			return
		}
		handler(w, r)
	}
	return chain(originHandler, middlewares)
}

// Handler 初始化后的处理器
func (p *Service) Handler() http.Handler {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.graceHandler == nil {
		return nil
	}
	return p.graceHandler
}

// Addr 实际的监听地址,未启动时为配置的地址
func (p *Service) Addr() string {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.listener != nil {
		return p.listener.Addr().String()
	}
	if p.Conf != nil {
		return p.Conf.Addr
	}
	return ""
}

// Start 启动Http服务,开始端口监听和服务处理
func (p *Service) Start() bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.server == nil {
		c.Errorf("http service is not inited")
		return false
	}

	c.Infof("listen at %s", p.Conf.Addr)
	ln, err := net.Listen("tcp", p.Conf.Addr)
	if err != nil {
		c.Errorf("listen at %s fail,error:%v", p.Conf.Addr, err)
		return false
	}

	var listener net.Listener = ln
	if tl, ok := ln.(*net.TCPListener); ok {
		listener = tcpKeepAliveListener{tl}
	}
	if p.Conf.MaxConns > 0 {
		listener = netutil.LimitListener(listener, p.Conf.MaxConns)
	}
	p.listener = listener

	server, wg := p.server, p.graceHandler.waitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := server.Serve(listener)
		if err != nil {
			var errLevel = c.Error
			if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
				errLevel = c.Warn
			}
			c.Logf(errLevel, "server.Serve return with %v", err)
		}
	}()
	return true
}

// Stop 停止Http服务,关闭端口监听并等待正在处理的请求结束
func (p *Service) Stop() bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.server == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(p.Conf.ShutdownTimeout)*time.Second)
	defer cancel()
	ok := true
	c.Infof("waiting shutdown")
	if err := p.server.Shutdown(ctx); err != nil {
		c.Errorf("shutdown http server error:%v", err)
		p.server.Close()
		ok = false
	}
	p.graceHandler.waitGroup.Wait()
	c.Infof("finish shutdown")

	p.listener = nil
	p.graceHandler = nil
	p.server = nil
	p.serveMux = nil
	return ok
}
