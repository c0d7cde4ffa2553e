package site

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wookietoast/site/blog"
	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/counter"
	xhttp "github.com/wookietoast/site/http"
	"github.com/wookietoast/site/metrics"
	"github.com/wookietoast/site/store/memstore"
)

func newTestMetrics() *metrics.Metrics {
	return metrics.New(nil)
}

type testSite struct {
	app     *App
	backend *memstore.Backend
	metrics *metrics.Metrics
	handler http.Handler
}

// stepClock 每次调用前进一秒
func stepClock() c.Clock {
	start := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	var n int64
	return func() time.Time {
		return start.Add(time.Duration(atomic.AddInt64(&n, 1)) * time.Second)
	}
}

func newTestSite(t *testing.T, opts ...Option) *testSite {
	t.Helper()
	opts = append([]Option{WithBlogOptions(blog.WithClock(stepClock()))}, opts...)
	conf := &Config{Store: &StoreConfig{Backend: BackendMemory}, Blog: &BlogConfig{ListLimit: 2}}
	require.NoError(t, conf.Parse())
	backend := memstore.NewBackend()
	m := newTestMetrics()
	app, err := New(conf, backend, append([]Option{WithMetrics(m)}, opts...)...)
	require.NoError(t, err)

	httpConf := xhttp.NewConfig("127.0.0.1:0")
	require.NoError(t, app.Register(httpConf))
	svc := xhttp.NewService(httpConf)
	require.NoError(t, svc.Init())
	return &testSite{app: app, backend: backend, metrics: m, handler: svc.Handler()}
}

func (p *testSite) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	p.handler.ServeHTTP(rec, req)
	return rec
}

func TestNew(t *testing.T) {
	_, err := New(nil, memstore.NewBackend())
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))

	conf := &Config{}
	require.NoError(t, conf.Parse())
	_, err = New(conf, nil)
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))

	conf.Site.DataFile = filepath.Join(t.TempDir(), "absent.json")
	_, err = New(conf, memstore.NewBackend(), WithMetrics(newTestMetrics()))
	assert.True(t, errors.Is(err, c.ErrMissingConfiguration))
}

func TestHomeIncrementsVisits(t *testing.T) {
	s := newTestSite(t)
	rec := s.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<span id="visits">1</span>`)

	rec = s.do(http.MethodGet, "/", nil)
	assert.Contains(t, rec.Body.String(), `<span id="visits">2</span>`)

	rec = s.do(http.MethodGet, "/api/visits", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"visits":3}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/visits/current", nil)
	assert.JSONEq(t, `{"visits":3}`, rec.Body.String())
	rec = s.do(http.MethodGet, "/api/visits/current", nil)
	assert.JSONEq(t, `{"visits":3}`, rec.Body.String())

	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.HTTPRequests.WithLabelValues("GET /{$}", "200")))
}

func TestVisitsStoreFailure(t *testing.T) {
	s := newTestSite(t)
	table, err := s.backend.MemTable(DefaultTable)
	require.NoError(t, err)
	table.InjectFault(func(op string) error { return errors.New("connection refused") })

	rec := s.do(http.MethodGet, "/api/visits", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, VisitsErrorMessage, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/visits/current", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = s.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Server Error")
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestVisitsControllerWithoutCounter(t *testing.T) {
	conf := xhttp.NewConfig("127.0.0.1:0")
	require.NoError(t, conf.RegController(NewVisitsController(nil, counter.ID{PartitionKey: "counter", RowKey: "site"})))
	svc := xhttp.NewService(conf)
	require.NoError(t, svc.Init())

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/visits", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, VisitsErrorMessage, rec.Body.String())

	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/visits/current", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBlogPages(t *testing.T) {
	s := newTestSite(t)

	rec := s.do(http.MethodGet, "/blog", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No posts yet.")

	rec = s.do(http.MethodGet, "/blog/new", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<form method="post" action="/blog">`)

	for _, post := range []url.Values{
		{"topic": {"azure"}, "body": {"first <post>"}},
		{"topic": {"go"}, "body": {"second post"}},
		{"topic": {"azure"}, "body": {"third post"}},
	} {
		rec = s.do(http.MethodPost, "/blog", post)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/blog", rec.Header().Get("Location"))
	}

	rec = s.do(http.MethodGet, "/blog", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "third post")
	assert.Contains(t, body, "second post")
	assert.NotContains(t, body, "first")
	assert.Less(t, strings.Index(body, "third post"), strings.Index(body, "second post"))
	assert.Contains(t, body, "1 / 2")

	rec = s.do(http.MethodGet, "/blog?page=2", nil)
	assert.Contains(t, rec.Body.String(), "first &lt;post&gt;")

	rec = s.do(http.MethodGet, "/blog?topic=go", nil)
	assert.Contains(t, rec.Body.String(), "second post")
	assert.NotContains(t, rec.Body.String(), "third post")
}

func TestBlogCreateValidation(t *testing.T) {
	s := newTestSite(t)
	rec := s.do(http.MethodPost, "/blog", url.Values{"topic": {"  "}, "body": {"kept body"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="error"`)
	assert.Contains(t, rec.Body.String(), "kept body")

	records, err := s.app.blog.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBlogStoreFailure(t *testing.T) {
	s := newTestSite(t)
	coll, err := s.backend.MemCollection(DefaultCollection)
	require.NoError(t, err)
	coll.InjectFault(func(op string) error { return errors.New("timeout") })

	rec := s.do(http.MethodPost, "/blog", url.Values{"topic": {"go"}, "body": {"body"}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	rec = s.do(http.MethodGet, "/blog", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	rec = s.do(http.MethodGet, "/api/blog", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"msg":"Internal Server Error"}`, rec.Body.String())
}

func TestBlogAPI(t *testing.T) {
	s := newTestSite(t, WithBlogOptions(blog.WithIDGenerator(sequence())))
	ctx := context.Background()
	for _, topic := range []string{"go", "azure", "go"} {
		_, err := s.app.blog.Create(ctx, topic, "about "+topic)
		require.NoError(t, err)
	}

	var records []*blog.Record
	decodeData(t, s.do(http.MethodGet, "/api/blog", nil), &records)
	require.Len(t, records, 3)
	assert.Equal(t, "id-3", records[0].ID)
	assert.Equal(t, "id-1", records[2].ID)

	decodeData(t, s.do(http.MethodGet, "/api/blog?topic=go", nil), &records)
	require.Len(t, records, 2)
	assert.Equal(t, "id-3", records[0].ID)

	var page c.PageResult[*blog.Record]
	decodeData(t, s.do(http.MethodGet, "/api/blog?page=2&page_size=2", nil), &page)
	assert.EqualValues(t, 3, page.Total)
	assert.EqualValues(t, 2, page.TotalPage)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "id-1", page.Items[0].ID)
}

func sequence() func() string {
	var n int
	return func() string {
		n++
		return "id-" + strconv.Itoa(n)
	}
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}
	resp.Data = target
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestStaticPages(t *testing.T) {
	s := newTestSite(t)

	rec := s.do(http.MethodGet, "/resume", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Wookie Toast")

	rec = s.do(http.MethodGet, "/projects", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wookietoast.com")

	rec = s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = s.do(http.MethodGet, "/static/style.css", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "font-family")

	rec = s.do(http.MethodGet, "/no/such/page", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page Not Found")

	s.do(http.MethodGet, "/health", nil)
	rec = s.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `site_http_requests_total{code="200",path="GET /health"} 2`)
	assert.Contains(t, rec.Body.String(), `site_http_requests_total{code="404",path="/"} 1`)
}

func TestLoadData(t *testing.T) {
	data, err := LoadData("")
	require.NoError(t, err)
	assert.Equal(t, "Wookie Toast", data.Resume.Name)
	assert.NotEmpty(t, data.Projects)

	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"projects":[{"name":"only"}]}`), 0o644))
	data, err = LoadData(path)
	require.NoError(t, err)
	assert.NotNil(t, data.Resume)
	require.Len(t, data.Projects, 1)
	assert.Equal(t, "only", data.Projects[0].Name)

	_, err = ParseData([]byte("{bad"))
	assert.True(t, errors.Is(err, c.ErrValidation))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusOf(c.NewError(c.KindValidation, nil, "bad")))
	assert.Equal(t, http.StatusInternalServerError, statusOf(c.NewError(c.KindStoreUnavailable, nil, "down")))
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("other")))
}
