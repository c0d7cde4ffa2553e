package http

import (
	"fmt"
	"net/http"
	"reflect"
	"unicode"
)

// Controller 接口定义http处理器
type Controller interface {
	// 控制器的名称
	GetName() string
	// 路径前缀,未在PatternMethods中声明的处理方法注册在该路径下
	GetPath() string
}

// PatternController 声明了pattern与方法名映射的Controller
type PatternController interface {
	Controller
	// GetPatternMethods key为http.ServeMux的pattern,可以带有method与通配符,value为方法名
	GetPatternMethods() map[string]string
}

// BaseController 表示一个控制器
type BaseController struct {
	Name           string            // Controller的名称
	Path           string            // Controller的路径
	PatternMethods map[string]string // pattern -> 方法名
}

// GetName implements Controller
func (p *BaseController) GetName() string {
	return p.Name
}

// GetPath implements Controller
func (p *BaseController) GetPath() string {
	return p.Path
}

// GetPatternMethods implements PatternController
func (p *BaseController) GetPatternMethods() map[string]string {
	return p.PatternMethods
}

var handlerFuncType = reflect.TypeOf(http.HandlerFunc(nil))

func reflectMethods(controller Controller) (map[string]http.HandlerFunc, error) {
	val := reflect.ValueOf(controller)
	if !val.IsValid() || val.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("controller must be a valid pointer")
	}

	methods := map[string]http.HandlerFunc{}
	controllerType := val.Type()
	for i := 0; i < val.NumMethod(); i++ {
		methodVal := val.Method(i)
		if methodVal.Type().AssignableTo(handlerFuncType) {
			methods[controllerType.Method(i).Name] = methodVal.Interface().(func(http.ResponseWriter, *http.Request))
		}
	}
	return methods, nil
}

// ReflectHandlers 查找controller中类型为http.HandlerFunc的可导出方法,并将驼峰命名改为下划线分隔的路径
// 例如Index -> index,GetUser -> get_user
func ReflectHandlers(controller Controller) (handlers map[string]http.HandlerFunc, err error) {
	methods, err := reflectMethods(controller)
	if err != nil {
		return nil, err
	}
	handlers = make(map[string]http.HandlerFunc, len(methods))
	for name, h := range methods {
		handlers[ToUnderlineName(name)] = h
	}
	return handlers, nil
}

// ToUnderlineName 将驼峰命名改为小写的下划线命名
func ToUnderlineName(camelName string) string {
	nameRune := []rune(camelName)
	normalizeName := make([]rune, 0, len(nameRune))

	for ni := 0; ni < len(nameRune); ni++ {
		if ni != 0 && unicode.IsUpper(nameRune[ni]) && unicode.IsLower(nameRune[ni-1]) {
			normalizeName = append(normalizeName, '_')
		}

		r := nameRune[ni]
		if unicode.IsUpper(nameRune[ni]) {
			r = unicode.ToLower(r)
		}
		normalizeName = append(normalizeName, r)
	}
	return string(normalizeName)
}
