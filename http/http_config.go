// Package http 提供基本的http服务
package http

import (
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"sync"

	c "github.com/wookietoast/site/common"
)

// 默认配置
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10
)

// Config Http配置
type Config struct {
	Addr            string `yaml:"addr"`             //Http监听地址
	ReadTimeout     int    `yaml:"read_timeout"`     //读超时,单位秒
	WriteTimeout    int    `yaml:"write_timeout"`    //写超时,单位秒
	MaxConns        int    `yaml:"max_conns"`        //最大的并发连接数
	ShutdownTimeout int    `yaml:"shutdown_timeout"` //停止时等待请求结束的时间,单位秒
	middlewares     []Middleware
	controllers     []Controller
	handles         map[string]http.HandlerFunc
	lock            sync.Mutex
}

// NewConfig 创建配置
func NewConfig(addr string) *Config {
	p := &Config{Addr: addr}
	if err := p.Parse(); err != nil {
		c.Warnf("invalid http config,err:%v", err)
	}
	return p
}

// Parse implements Configurer
func (p *Config) Parse() error {
	if p == nil {
		return nil
	}
	p.Addr = strings.TrimSpace(p.Addr)
	if p.Addr == "" {
		p.Addr = DefaultAddr
	}
	if p.ReadTimeout < 0 || p.WriteTimeout < 0 || p.MaxConns < 0 || p.ShutdownTimeout < 0 {
		return c.NewErrorf(c.KindValidation, nil, "invalid http config %s", p.Addr)
	}
	if p.ShutdownTimeout == 0 {
		p.ShutdownTimeout = DefaultShutdownTimeout
	}
	return nil
}

// HTTPConfig 取得Http配置
func (p *Config) HTTPConfig() *Config {
	return p
}

// RegController 注册controller中的所有处理函数
// PatternMethods中声明的方法注册到对应的pattern,其余的处理方法注册到 Path + 下划线方法名
func (p *Config) RegController(controller Controller) error {
	if c.HasNil(controller) {
		return fmt.Errorf("can't reg nil controller")
	}

	methods, err := reflectMethods(controller)
	if err != nil {
		return err
	}
	if len(methods) == 0 {
		c.Warnf("can't find handler in %T", controller)
		return nil
	}

	var path = controller.GetPath()
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}

	var patterns = map[string]string{}
	if pc, ok := controller.(PatternController); ok {
		patterns = pc.GetPatternMethods()
	}
	var bound = map[string]struct{}{}
	for pattern, methodName := range patterns {
		h, ok := methods[methodName]
		if !ok {
			return fmt.Errorf("can't find method %s in %T for pattern %s", methodName, controller, pattern)
		}
		if err := p.RegHandleFunc(pattern, h); err != nil {
			return err
		}
		bound[methodName] = struct{}{}
		c.Infof("register controller %T#%s,pattern:%s", controller, controller.GetName(), pattern)
	}

	for methodName, h := range methods {
		if _, ok := bound[methodName]; ok {
			continue
		}
		patternPath := path + ToUnderlineName(methodName)
		if err := p.RegHandleFunc(patternPath, h); err != nil {
			return err
		}
		c.Infof("register controller %T#%s,path:%s", controller, controller.GetName(), patternPath)
	}

	p.lock.Lock()
	p.controllers = append(p.controllers, controller)
	p.lock.Unlock()
	return nil
}

// RegHandleFunc 注册patternPath的处理函数handlerFunc
func (p *Config) RegHandleFunc(patternPath string, handlerFunc http.HandlerFunc) error {
	if handlerFunc == nil {
		return fmt.Errorf("can't bind nil handlerFunc to path %s", patternPath)
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.handles == nil {
		p.handles = map[string]http.HandlerFunc{}
	}
	if _, ok := p.handles[patternPath]; ok {
		return fmt.Errorf("duplicate path:%s", patternPath)
	}
	p.handles[patternPath] = handlerFunc
	return nil
}

// RegHandler 注册patternPath的处理器
func (p *Config) RegHandler(patternPath string, handler http.Handler) error {
	if handler == nil {
		return fmt.Errorf("can't bind nil handler to path %s", patternPath)
	}
	return p.RegHandleFunc(patternPath, handler.ServeHTTP)
}

// RegStaticFS 注册静态资源,pattern以'/'结束,请求路径去掉prefix后在fsys中查找
func (p *Config) RegStaticFS(pattern, prefix string, fsys fs.FS) error {
	if fsys == nil {
		return fmt.Errorf("nil static fs for %s", pattern)
	}
	fileServer := http.FileServer(NoDirFS{Fs: http.FS(fsys)})
	c.Infof("add static %s", pattern)
	return p.RegHandler(pattern, http.StripPrefix(prefix, fileServer))
}

// RegMiddleware 注册middleware,按照注册的顺序依次调用
func (p *Config) RegMiddleware(middleware Middleware) error {
	if c.HasNil(middleware) {
		return fmt.Errorf("invalid middleware")
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	p.middlewares = append(p.middlewares, middleware)
	return nil
}

// Controllers 已经注册的controller
func (p *Config) Controllers() []Controller {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]Controller(nil), p.controllers...)
}

func (p *Config) snapshot() (map[string]http.HandlerFunc, []Middleware) {
	p.lock.Lock()
	defer p.lock.Unlock()
	handles := make(map[string]http.HandlerFunc, len(p.handles))
	for k, v := range p.handles {
		handles[k] = v
	}
	return handles, append([]Middleware(nil), p.middlewares...)
}
