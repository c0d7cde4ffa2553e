package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	c "github.com/wookietoast/site/common"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Resp JSON Http响应
type Resp struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Msg     string      `json:"msg,omitempty"`
}

var (
	errNoparam = fmt.Errorf("missing param")
)

// GetParameter 取得由name指定的参数值
func GetParameter(r url.Values, name string) string {
	return strings.TrimSpace(r.Get(name))
}

func getIntParameter(r url.Values, name string, bitSize int) (val int64, err error) {
	value := GetParameter(r, name)
	if value == "" {
		return 0, errNoparam
	}
	val, err = strconv.ParseInt(value, 10, bitSize)
	return
}

// GetIntParameter 取得由name指定的整数参数值,参数不存在或者格式错误时返回def
func GetIntParameter(r url.Values, name string, def int) int {
	val, err := getIntParameter(r, name, 0)
	if err != nil {
		return def
	}
	return int(val)
}

// ParseParams 从r中解析参数,并填充到dest中,dest应该是struct指针
// 参数名默认为字段名的下划线形式,可以用pname tag指定,"_"表示忽略
// 格式错误的数值参数被忽略,保留字段原值
func ParseParams(r url.Values, dest interface{}) error {
	if r == nil || c.HasNil(dest) {
		return fmt.Errorf("invalid args")
	}

	val := reflect.ValueOf(dest)
	if val.Kind() != reflect.Ptr {
		return fmt.Errorf("expect ptr,but it's %s", val.Kind())
	}
	ind := val.Elem()
	typ := ind.Type()
	if typ.Kind() != reflect.Struct {
		return fmt.Errorf("expect struct,but it's %s", typ.Kind())
	}

	for i := 0; i < ind.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := ind.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if err := ParseParams(r, fieldVal.Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		paramName := field.Tag.Get("pname")
		if paramName == "" {
			paramName = ToUnderlineName(field.Name)
		}
		if paramName == "_" {
			continue
		}
		if _, ok := r[paramName]; !ok {
			continue
		}

		switch field.Type.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if v, err := getIntParameter(r, paramName, field.Type.Bits()); err == nil {
				fieldVal.SetInt(v)
			}
		case reflect.Float32, reflect.Float64:
			if v, err := strconv.ParseFloat(GetParameter(r, paramName), field.Type.Bits()); err == nil {
				fieldVal.SetFloat(v)
			}
		case reflect.String:
			fieldVal.SetString(GetParameter(r, paramName))
		case reflect.Bool:
			v := strings.ToLower(GetParameter(r, paramName))
			fieldVal.SetBool(v == "1" || v == "y" || v == "true")
		case reflect.Slice:
			if field.Type.Elem().Kind() != reflect.String {
				return fmt.Errorf("unsupported slice type %s", field.Type.Elem().Kind())
			}
			var vals []string
			for _, v := range r[paramName] {
				if v = strings.TrimSpace(v); v != "" {
					vals = append(vals, v)
				}
			}
			fieldVal.Set(reflect.ValueOf(vals))
		default:
			return fmt.Errorf("unsupported field type %s", field.Type.Kind())
		}
	}
	return nil
}

// RenderTemplate 渲染模板,先渲染到缓冲区,渲染失败时输出500
func RenderTemplate(w http.ResponseWriter, status int, t *template.Template, name string, data interface{}) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		c.Errorf("execute template %s err:%v", name, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// RenderJSON 渲染JSON
func RenderJSON(w http.ResponseWriter, jsonData interface{}) {
	RenderJSONStatus(w, http.StatusOK, jsonData)
}

// RenderJSONStatus 以指定的状态码渲染JSON
func RenderJSONStatus(w http.ResponseWriter, status int, jsonData interface{}) {
	data, err := json.Marshal(jsonData)
	if err != nil {
		c.Errorf("marshal json err:%v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// RenderText 渲染Text
func RenderText(w http.ResponseWriter, text string) {
	RenderTextStatus(w, http.StatusOK, text)
}

// RenderTextStatus 以指定的状态码渲染Text
func RenderTextStatus(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, text)
}

// GetURL 请求URL,返回去掉首尾空白的响应
func GetURL(client *http.Client, rawURL string, params url.Values) (string, error) {
	if params != nil {
		rawURL = rawURL + "?" + params.Encode()
	}
	resp, err := client.Get(rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status:%d,msg:%s", resp.StatusCode, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
