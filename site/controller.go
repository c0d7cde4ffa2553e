package site

import (
	"errors"
	"net/http"

	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/counter"
	xhttp "github.com/wookietoast/site/http"
)

// PageController 首页、简历、项目与健康检查
type PageController struct {
	xhttp.BaseController
	app *App
}

// NewPageController 创建页面controller,未匹配的路径由NotFound处理
func NewPageController(app *App) *PageController {
	return &PageController{
		BaseController: xhttp.BaseController{
			Name: "page",
			Path: "/",
			PatternMethods: map[string]string{
				"GET /{$}":      "Home",
				"GET /resume":   "Resume",
				"GET /projects": "Projects",
				"GET /health":   "Health",
				"/":             "NotFound",
			},
		},
		app: app,
	}
}

// Home 增加访问计数并显示
func (p *PageController) Home(w http.ResponseWriter, r *http.Request) {
	visits, err := p.app.counter.IncrementAndGet(r.Context(), p.app.conf.Counter.ID())
	if err != nil {
		c.Errorf("home visits fail,err:%v", err)
		p.app.serverError(w, r)
		return
	}
	data := p.app.newPage("Home")
	data.Visits = visits
	p.app.render(w, http.StatusOK, "home", data)
}

// Resume 简历
func (p *PageController) Resume(w http.ResponseWriter, r *http.Request) {
	data := p.app.newPage("Resume")
	data.Resume = p.app.data.Resume
	p.app.render(w, http.StatusOK, "resume", data)
}

// Projects 项目
func (p *PageController) Projects(w http.ResponseWriter, r *http.Request) {
	data := p.app.newPage("Projects")
	data.Projects = p.app.data.Projects
	p.app.render(w, http.StatusOK, "projects", data)
}

// Health 健康检查
func (p *PageController) Health(w http.ResponseWriter, r *http.Request) {
	xhttp.RenderText(w, "OK")
}

// NotFound 404页面
func (p *PageController) NotFound(w http.ResponseWriter, r *http.Request) {
	p.app.notFound(w, r)
}

// BlogController 博客页面与接口
type BlogController struct {
	xhttp.BaseController
	app *App
}

// NewBlogController 创建博客controller
func NewBlogController(app *App) *BlogController {
	return &BlogController{
		BaseController: xhttp.BaseController{
			Name: "blog",
			Path: "/blog",
			PatternMethods: map[string]string{
				"GET /blog":     "List",
				"GET /blog/new": "New",
				"POST /blog":    "Create",
				"GET /api/blog": "API",
			},
		},
		app: app,
	}
}

func (p *BlogController) pageParam(r *http.Request) c.PageParam {
	param := c.PageParam{}
	if err := xhttp.ParseParams(r.URL.Query(), &param); err != nil {
		c.Warnf("parse page param fail,err:%v", err)
	}
	if param.PageSize <= 0 {
		param.PageSize = p.app.conf.Blog.ListLimit
	}
	return param
}

// List 博客列表页面,支持topic与page参数
func (p *BlogController) List(w http.ResponseWriter, r *http.Request) {
	topic := xhttp.GetParameter(r.URL.Query(), "topic")
	posts, err := p.app.blog.Page(r.Context(), topic, p.pageParam(r))
	if err != nil {
		c.Errorf("list blog fail,err:%v", err)
		p.app.serverError(w, r)
		return
	}
	data := p.app.newPage("Blog")
	data.Topic = topic
	data.Posts = posts
	p.app.render(w, http.StatusOK, "blog", data)
}

// New 新建博客的表单
func (p *BlogController) New(w http.ResponseWriter, r *http.Request) {
	data := p.app.newPage("New Blog Post")
	data.Form = &postForm{TopicMaxLen: p.app.conf.Blog.TopicMaxLen}
	p.app.render(w, http.StatusOK, "blog_new", data)
}

// Create 创建博客,成功后重定向到列表,校验失败时重新显示表单
func (p *BlogController) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		c.Warnf("parse blog form fail,err:%v", err)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	topic, body := r.PostForm.Get("topic"), r.PostForm.Get("body")
	record, err := p.app.blog.Create(r.Context(), topic, body)
	if err != nil {
		if errors.Is(err, c.ErrValidation) {
			data := p.app.newPage("New Blog Post")
			data.Error = err.Error()
			data.Form = &postForm{Topic: topic, Body: body, TopicMaxLen: p.app.conf.Blog.TopicMaxLen}
			p.app.render(w, http.StatusBadRequest, "blog_new", data)
			return
		}
		c.Errorf("create blog fail,err:%v", err)
		p.app.serverError(w, r)
		return
	}
	c.Infof("blog record %s created", record.ID)
	http.Redirect(w, r, "/blog", http.StatusSeeOther)
}

// API 博客的JSON接口,有page参数时分页,否则返回全部记录
func (p *BlogController) API(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	topic := xhttp.GetParameter(query, "topic")
	var (
		result interface{}
		err    error
	)
	if query.Has("page") || query.Has("page_size") {
		result, err = p.app.blog.Page(r.Context(), topic, p.pageParam(r))
	} else if topic != "" {
		result, err = p.app.blog.ListByTopic(r.Context(), topic)
	} else {
		result, err = p.app.blog.List(r.Context())
	}
	if err != nil {
		c.Errorf("blog api fail,err:%v", err)
		status := statusOf(err)
		xhttp.RenderJSONStatus(w, status, &xhttp.Resp{Msg: http.StatusText(status)})
		return
	}
	xhttp.RenderJSON(w, &xhttp.Resp{Success: true, Data: result})
}

// VisitsController 访问计数接口,counter为nil时所有请求返回500
type VisitsController struct {
	xhttp.BaseController
	counter counter.Counter
	id      counter.ID
}

// NewVisitsController 创建访问计数controller
func NewVisitsController(cnt counter.Counter, id counter.ID) *VisitsController {
	return &VisitsController{
		BaseController: xhttp.BaseController{
			Name: "visits",
			Path: "/api/visits",
			PatternMethods: map[string]string{
				"GET /api/visits":         "Visits",
				"GET /api/visits/current": "Current",
			},
		},
		counter: cnt,
		id:      id,
	}
}

// visitsResp 访问计数的响应
type visitsResp struct {
	Visits int64 `json:"visits"`
}

// Visits 增加并返回访问计数
func (p *VisitsController) Visits(w http.ResponseWriter, r *http.Request) {
	if c.HasNil(p.counter) {
		c.Errorf("visits counter is not configured")
		xhttp.RenderTextStatus(w, http.StatusInternalServerError, VisitsErrorMessage)
		return
	}
	visits, err := p.counter.IncrementAndGet(r.Context(), p.id)
	if err != nil {
		c.Errorf("increment visits %s fail,err:%v", p.id, err)
		xhttp.RenderTextStatus(w, http.StatusInternalServerError, VisitsErrorMessage)
		return
	}
	xhttp.RenderJSON(w, &visitsResp{Visits: visits})
}

// Current 返回访问计数,不增加
func (p *VisitsController) Current(w http.ResponseWriter, r *http.Request) {
	if c.HasNil(p.counter) {
		xhttp.RenderTextStatus(w, http.StatusInternalServerError, VisitsErrorMessage)
		return
	}
	visits, err := p.counter.Get(r.Context(), p.id)
	if err != nil {
		c.Errorf("get visits %s fail,err:%v", p.id, err)
		xhttp.RenderTextStatus(w, http.StatusInternalServerError, VisitsErrorMessage)
		return
	}
	xhttp.RenderJSON(w, &visitsResp{Visits: visits})
}
