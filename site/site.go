package site

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/wookietoast/site/blog"
	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/counter"
	xhttp "github.com/wookietoast/site/http"
	"github.com/wookietoast/site/metrics"
	"github.com/wookietoast/site/store"
)

//go:embed assets
var assets embed.FS

// VisitsErrorMessage 访问计数失败时的响应
const VisitsErrorMessage = "Server error while updating visit count"

var templateFuncs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
	"dec": func(i int) int { return i - 1 },
}

// ParseTemplates 解析内置的页面模板
func ParseTemplates() (*template.Template, error) {
	return template.New("site").Funcs(templateFuncs).ParseFS(assets, "assets/templates/*.html")
}

// App 站点,持有计数器、博客存储以及页面数据
type App struct {
	conf      *Config
	counter   counter.Counter
	blog      *blog.Store
	data      *Data
	templates *template.Template
	metrics   *metrics.Metrics
	blogOpts  []blog.Option
}

// Option App的选项
type Option func(*App)

// WithMetrics 使用指定的指标,默认为metrics.Default()
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *App) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithBlogOptions 附加的博客选项
func WithBlogOptions(opts ...blog.Option) Option {
	return func(p *App) {
		p.blogOpts = append(p.blogOpts, opts...)
	}
}

// New 在backend上创建站点,conf需要已经解析
func New(conf *Config, backend store.Backend, opts ...Option) (*App, error) {
	if conf == nil || conf.Counter == nil || conf.Blog == nil || conf.Site == nil {
		return nil, c.NewError(c.KindMissingConfiguration, nil, "site config is not parsed")
	}
	if c.HasNil(backend) {
		return nil, c.NewError(c.KindMissingConfiguration, nil, "no store backend")
	}
	p := &App{conf: conf, metrics: metrics.Default()}
	for _, opt := range opts {
		opt(p)
	}

	var timeout time.Duration
	if conf.Store != nil {
		timeout = conf.Store.Timeout()
	}

	table, err := backend.Table(conf.Counter.Table)
	if err != nil {
		return nil, err
	}
	counterOpts := append(conf.Counter.Options(), counter.WithTimeout(timeout), counter.WithMetrics(p.metrics))
	if p.counter, err = counter.NewStore(table, counterOpts...); err != nil {
		return nil, err
	}

	coll, err := backend.Collection(conf.Blog.Collection)
	if err != nil {
		return nil, err
	}
	blogOpts := append([]blog.Option{
		blog.WithMaxLen(conf.Blog.TopicMaxLen, conf.Blog.BodyMaxLen),
		blog.WithTimeout(timeout),
		blog.WithMetrics(p.metrics),
	}, p.blogOpts...)
	if p.blog, err = blog.NewStore(coll, blogOpts...); err != nil {
		return nil, err
	}

	if p.data, err = LoadData(conf.Site.DataFile); err != nil {
		return nil, err
	}
	if p.templates, err = ParseTemplates(); err != nil {
		return nil, err
	}
	c.Infof("site on %s backend,counter %s in %s,blog in %s", backend.Name(), conf.Counter.ID(), conf.Counter.Table, conf.Blog.Collection)
	return p, nil
}

// Register 向Http配置注册中间件、页面、接口与静态资源
func (p *App) Register(conf *xhttp.Config) error {
	if err := conf.RegMiddleware(MetricsMiddleware(p.metrics)); err != nil {
		return err
	}
	if err := conf.RegMiddleware(xhttp.RecoverMiddleware(p.serverError)); err != nil {
		return err
	}
	if err := conf.RegMiddleware(xhttp.AccessLogMiddleware()); err != nil {
		return err
	}
	controllers := []xhttp.Controller{
		NewPageController(p),
		NewBlogController(p),
		NewVisitsController(p.counter, p.conf.Counter.ID()),
	}
	for _, controller := range controllers {
		if err := conf.RegController(controller); err != nil {
			return err
		}
	}
	if err := conf.RegHandler("GET /metrics", p.metrics.Handler()); err != nil {
		return err
	}
	static, err := fs.Sub(assets, "assets/static")
	if err != nil {
		return err
	}
	return conf.RegStaticFS("GET /static/", "/static/", static)
}

// page 页面模板的数据
type page struct {
	Title     string
	SiteTitle string
	Visits    int64
	Resume    *Resume
	Projects  []*Project
	Topic     string
	Posts     *c.PageResult[*blog.Record]
	Form      *postForm
	Error     string
}

type postForm struct {
	Topic       string
	Body        string
	TopicMaxLen int
}

func (p *App) newPage(title string) *page {
	return &page{Title: title, SiteTitle: p.conf.Site.Title}
}

func (p *App) render(w http.ResponseWriter, status int, name string, data *page) {
	xhttp.RenderTemplate(w, status, p.templates, name, data)
}

func (p *App) serverError(w http.ResponseWriter, r *http.Request) {
	p.render(w, http.StatusInternalServerError, "500", p.newPage("Server Error"))
}

func (p *App) notFound(w http.ResponseWriter, r *http.Request) {
	p.render(w, http.StatusNotFound, "404", p.newPage("Page Not Found"))
}

// statusOf 错误对应的Http状态码,校验错误为400,其他为500
func statusOf(err error) int {
	if c.KindOf(err) == c.KindValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// MetricsMiddleware 按照匹配的pattern与状态码记录请求数
func MetricsMiddleware(m *metrics.Metrics) xhttp.Middleware {
	return xhttp.MiddlewareFunc(func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rec := xhttp.NewStatusRecorder(w)
			next(rec, r)
			path := r.Pattern
			if path == "" {
				path = "unmatched"
			}
			m.ObserveHTTP(path, rec.Status)
		}
	})
}
