package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var data = `
a: Easy!
b:
  c: 2
  d: [3, 4]
`

type conf struct {
	A string
	B struct {
		C int
		D []int `yaml:",flow"`
	}
}

func TestLoadYAML(t *testing.T) {
	config := conf{}
	require.NoError(t, LoadYAML([]byte(data), &config))
	assert.Equal(t, "Easy!", config.A)
	assert.Equal(t, 2, config.B.C)
	assert.Equal(t, []int{3, 4}, config.B.D)

	assert.Error(t, LoadYAML(nil, &config))
}

type parsedPart struct {
	Name   string `yaml:"name"`
	parsed bool
}

func (p *parsedPart) Parse() error {
	p.parsed = true
	return nil
}

type testAppConfig struct {
	AppConfig `yaml:",inline"`
	Part      *parsedPart `yaml:"part"`
	Missing   *parsedPart `yaml:"missing"`
}

func (p *testAppConfig) Parse() error {
	return Parse(p)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf_test.yaml"), []byte("part:\n  name: p1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "common.yaml"), []byte("runtime:\n  maxprocs: 0\n"), 0o644))

	var config testAppConfig
	err := LoadConfig(&config, "log:\n  env: development\n", dir, "conf_test.yaml", "common.yaml", "absent.yaml")
	require.NoError(t, err)
	require.NoError(t, config.Parse())

	assert.Equal(t, "p1", config.Part.Name)
	assert.True(t, config.Part.parsed)
	assert.Nil(t, config.Missing)
	assert.NotNil(t, config.RuntimeConfig)
	assert.Equal(t, EnvDevelopment, config.GetLogConfig().Env)
}

func TestLoadConfigEmpty(t *testing.T) {
	var config testAppConfig
	assert.Error(t, LoadConfig(&config, "", t.TempDir()))
	assert.Error(t, LoadConfig(&config, "", t.TempDir(), "absent.yaml"))
	assert.Error(t, LoadConfigWithLoader(nil, &config, "a: 1", ""))
}
