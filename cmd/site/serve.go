package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	c "github.com/wookietoast/site/common"
	xhttp "github.com/wookietoast/site/http"
	"github.com/wookietoast/site/site"
)

var provision bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the http server (default command)",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&provision, "provision", false, "create sql tables before serving")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	conf, err := site.LoadConfig(confDir, env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	backend, err := site.NewBackend(conf)
	if err != nil {
		return err
	}
	if provision {
		if err := site.Provision(context.Background(), conf, backend); err != nil {
			backend.Close()
			return err
		}
	}
	app, err := site.New(conf, backend)
	if err != nil {
		backend.Close()
		return err
	}
	if err := app.Register(conf.HTTP); err != nil {
		backend.Close()
		return err
	}

	services := c.NewServices(site.NewBackendService(backend), xhttp.NewService(conf.HTTP))
	if !services.Init() {
		backend.Close()
		return fmt.Errorf("init site fail")
	}
	if !services.Start() {
		services.Stop()
		return fmt.Errorf("start site fail")
	}

	hook := c.NewShutdownhook()
	hook.AddHook(func() {
		services.Stop()
	})
	c.Infof("site started,env:%s", env)
	hook.WaitShutdown()
	return nil
}
