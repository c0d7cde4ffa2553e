package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	c "github.com/wookietoast/site/common"
)

var (
	confDir string
	env     string
)

var rootCmd = &cobra.Command{
	Use:   "site",
	Short: "wookietoast.com: pages, visit counter and blog",
	Long: `Serves the personal site: home page with a durable visit counter,
resume and projects pages, and a blog stored in a remote document collection.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&confDir, "conf", "conf", "directory of conf_<env>.yaml and common.yaml")
	rootCmd.PersistentFlags().StringVar(&env, "env", envOr("SITE_ENV", c.EnvDevelopment), "runtime env, selects conf_<env>.yaml")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	defer c.SyncLogger()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
