// visits 独立的访问计数函数,作为serverless的custom handler运行,只提供GET /api/visits
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/counter"
	xhttp "github.com/wookietoast/site/http"
	"github.com/wookietoast/site/site"
	"github.com/wookietoast/site/store"
)

// 函数宿主通过该环境变量指定监听端口
const (
	EnvPort     = "FUNCTIONS_CUSTOMHANDLER_PORT"
	DefaultPort = "7071"
)

var (
	confDir string
	env     string
)

var rootCmd = &cobra.Command{
	Use:          "visits",
	Short:        "Serverless visit counter: GET /api/visits increments and returns the count",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := os.Getenv(EnvPort)
		if port == "" {
			port = DefaultPort
		}
		cnt, id, backend := newCounter()

		httpConf := xhttp.NewConfig(":" + port)
		if err := httpConf.RegMiddleware(xhttp.RecoverMiddleware(nil)); err != nil {
			return err
		}
		if err := httpConf.RegController(site.NewVisitsController(cnt, id)); err != nil {
			return err
		}
		var services []c.Service
		if backend != nil {
			services = append(services, site.NewBackendService(backend))
		}
		services = append(services, xhttp.NewService(httpConf))
		svcs := c.NewServices(services...)
		if !svcs.Init() {
			return fmt.Errorf("init visits fail")
		}
		if !svcs.Start() {
			svcs.Stop()
			return fmt.Errorf("start visits fail")
		}
		hook := c.NewShutdownhook()
		hook.AddHook(func() {
			svcs.Stop()
		})
		hook.WaitShutdown()
		return nil
	},
}

// newCounter 创建计数器,存储未配置时返回nil,请求时返回500
func newCounter() (counter.Counter, counter.ID, store.Backend) {
	id := counter.ID{PartitionKey: site.DefaultPartitionKey, RowKey: site.DefaultRowKey}
	conf, err := site.LoadConfig(confDir, env)
	if err != nil {
		c.Errorf("load visits config fail,err:%v", err)
		return nil, id, nil
	}
	id = conf.Counter.ID()
	backend, err := site.NewBackend(conf)
	if err != nil {
		c.Errorf("visits store is not configured,err:%v", err)
		return nil, id, nil
	}
	table, err := backend.Table(conf.Counter.Table)
	if err != nil {
		c.Errorf("open visits table fail,err:%v", err)
		backend.Close()
		return nil, id, nil
	}
	opts := append(conf.Counter.Options(), counter.WithTimeout(conf.Store.Timeout()))
	cnt, err := counter.NewStore(table, opts...)
	if err != nil {
		c.Errorf("create visits counter fail,err:%v", err)
		backend.Close()
		return nil, id, nil
	}
	c.Infof("visits counter %s on %s backend", id, backend.Name())
	return cnt, id, backend
}

func init() {
	rootCmd.Flags().StringVar(&confDir, "conf", "conf", "directory of conf_<env>.yaml and common.yaml")
	rootCmd.Flags().StringVar(&env, "env", c.EnvProduction, "runtime env, selects conf_<env>.yaml")
}

func main() {
	defer c.SyncLogger()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
