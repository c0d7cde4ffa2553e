package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type orderService struct {
	BaseService
	log *[]string
}

func (p *orderService) Start() bool {
	*p.log = append(*p.log, "start "+p.SName)
	return true
}

func (p *orderService) Stop() bool {
	*p.log = append(*p.log, "stop "+p.SName)
	return true
}

type failInitService struct {
	BaseService
}

func (p *failInitService) Init() error {
	return NewError(KindMissingConfiguration, nil, "no conf")
}

func TestServices(t *testing.T) {
	var log []string
	as := &orderService{BaseService: BaseService{SName: "a", Order: 2}, log: &log}
	bs := &orderService{BaseService: BaseService{SName: "b", Order: 1}, log: &log}
	s := NewServices(as, bs)
	assert.True(t, s.Init())
	assert.Equal(t, INITED, as.State())
	assert.True(t, s.Start())
	assert.Equal(t, RUNNING, bs.State())
	assert.True(t, s.Stop())
	assert.Equal(t, TERMINATED, as.State())
	assert.Equal(t, []string{"start b", "start a", "stop a", "stop b"}, log)
}

func TestServiceInitFail(t *testing.T) {
	fs := &failInitService{BaseService{SName: "f"}}
	assert.False(t, NewServices(fs).Init())
	assert.Equal(t, FAILED, fs.State())
	assert.Equal(t, "*common.failInitService#f", ServiceName(fs))
}

func TestServiceState(t *testing.T) {
	assert.True(t, IsValidServiceState(NEW, INITED))
	assert.False(t, IsValidServiceState(NEW, RUNNING))
	assert.False(t, IsValidServiceState(TERMINATED, RUNNING))
	assert.Equal(t, "RUNNING", RUNNING.String())
}
