package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	c "github.com/wookietoast/site/common"
	"github.com/wookietoast/site/site"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create the counter table and blog collection in the sql store",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := site.LoadConfig(confDir, env)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		backend, err := site.NewBackend(conf)
		if err != nil {
			return err
		}
		defer backend.Close()
		if err := site.Provision(context.Background(), conf, backend); err != nil {
			return err
		}
		c.Infof("provisioned %s backend", backend.Name())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(provisionCmd)
}
