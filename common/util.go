package common

import (
	"hash/fnv"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"sync"
	"syscall"
)

// HasNil 判断values中是否有nil值,包括值为nil的指针、map、func等
func HasNil(values ...interface{}) bool {
	for _, v := range values {
		if v == nil {
			return true
		}
		val := reflect.ValueOf(v)
		switch val.Kind() {
		case reflect.Ptr, reflect.Map, reflect.Func, reflect.Interface, reflect.Chan, reflect.Slice:
			if val.IsNil() {
				return true
			}
		}
	}
	return false
}

// IsEmpty 判断strs中是否有去掉空白后为空的字符串
func IsEmpty(strs ...string) bool {
	for _, s := range strs {
		if strings.TrimSpace(s) == "" {
			return true
		}
	}
	return false
}

// Fnv32Hashcode fnv32a hash
func Fnv32Hashcode(s string) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() & 0x7fffffff)
}

// Shutdownhook 进程退出的钩子
type Shutdownhook struct {
	ch         chan os.Signal //接收信号的channel
	hooks      []func()       //停机时需要调用的方法列表
	sync.Mutex                //同步锁
}

// NewShutdownhook 创建一个Shutdownhook,sig是要监听的信号,默认会监听syscall.SIGINT,syscall.SIGTERM
func NewShutdownhook(sig ...os.Signal) *Shutdownhook {
	if len(sig) == 0 {
		sig = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, len(sig))
	signal.Notify(ch, sig...)
	return &Shutdownhook{ch: ch}
}

// AddHook 增加一个Hook函数
func (p *Shutdownhook) AddHook(hookFunc func()) {
	p.Lock()
	defer p.Unlock()
	p.hooks = append(p.hooks, hookFunc)
}

// WaitShutdown 等待进程退出的信号,当收到进程退出的信号后,依次执行注册的hook函数
func (p *Shutdownhook) WaitShutdown() {
	p.Lock()
	ch := p.ch
	p.Unlock()
	if ch == nil {
		panic("signal channel is nil")
	}

	s := <-ch
	signal.Stop(ch)

	p.Lock()
	defer p.Unlock()
	p.ch = nil
	Infof("Receive signal:%v,Run hooks", s)
	for _, f := range p.hooks {
		f()
	}
	Infof("Finished run hooks")
}
