package http

import (
	"net/http"
	"runtime/debug"
	"time"

	c "github.com/wookietoast/site/common"
)

// Middleware 定义接口
type Middleware interface {
	// Handle 包装next,返回新的处理函数
	Handle(next http.HandlerFunc) http.HandlerFunc
}

// MiddlewareFunc 将函数适配为Middleware
type MiddlewareFunc func(next http.HandlerFunc) http.HandlerFunc

// Handle implements Middleware
func (f MiddlewareFunc) Handle(next http.HandlerFunc) http.HandlerFunc {
	return f(next)
}

// chain 依次调用各个middleware,第一个注册的在最外层
func chain(h http.HandlerFunc, middlewares []Middleware) http.HandlerFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i].Handle(h)
	}
	return h
}

// StatusRecorder 记录响应状态码的ResponseWriter
type StatusRecorder struct {
	http.ResponseWriter
	Status int
}

// NewStatusRecorder 默认状态码为200
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
}

// WriteHeader implements http.ResponseWriter
func (p *StatusRecorder) WriteHeader(code int) {
	p.Status = code
	p.ResponseWriter.WriteHeader(code)
}

// Unwrap 供http.ResponseController使用
func (p *StatusRecorder) Unwrap() http.ResponseWriter {
	return p.ResponseWriter
}

// RecoverMiddleware 捕获处理中的panic,记录日志后交给onPanic输出,onPanic为nil时输出500
func RecoverMiddleware(onPanic http.HandlerFunc) Middleware {
	return MiddlewareFunc(func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					c.Errorf("handle %s %s panic:%v\n%s", r.Method, r.URL.Path, err, debug.Stack())
					if onPanic != nil {
						onPanic(w, r)
					} else {
						http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					}
				}
			}()
			next(w, r)
		}
	})
}

// AccessLogMiddleware 以debug级别记录请求
func AccessLogMiddleware() Middleware {
	return MiddlewareFunc(func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !c.DebugEnabled() {
				next(w, r)
				return
			}
			start := time.Now()
			rec := NewStatusRecorder(w)
			next(rec, r)
			c.Debugf("%s %s %d %s", r.Method, r.URL.RequestURI(), rec.Status, time.Since(start))
		}
	})
}
