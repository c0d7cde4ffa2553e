package common

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasNil(t *testing.T) {
	var p *int
	var m map[string]int
	var f func()
	assert.True(t, HasNil(nil))
	assert.True(t, HasNil(1, p))
	assert.True(t, HasNil(m))
	assert.True(t, HasNil(f))
	assert.False(t, HasNil(1, "a", &struct{}{}))
	assert.False(t, HasNil())
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty("a", " "))
	assert.True(t, IsEmpty(""))
	assert.False(t, IsEmpty("a", "b"))
}

func TestFnv32Hashcode(t *testing.T) {
	assert.Equal(t, Fnv32Hashcode("visits"), Fnv32Hashcode("visits"))
	assert.True(t, Fnv32Hashcode("visits") >= 0)
}

func TestShutdownHook(t *testing.T) {
	shook := NewShutdownhook(syscall.SIGUSR1)
	called := 0
	shook.AddHook(func() { called++ })
	shook.AddHook(func() { called++ })

	shook.ch <- syscall.SIGUSR1
	shook.WaitShutdown()
	assert.Equal(t, 2, called)
}
