// Command kensactl is the command-line client for a Kensa server.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ashita-ai/kensa/internal/client"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// cli carries per-invocation settings shared by every subcommand.
type cli struct {
	v   *viper.Viper
	out io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:   "kensactl",
		Short: "Kensa CLI",
		Long: `kensactl drives a Kensa server.

A scan fans out to every configured diagnostic worker, scores the site and
turns findings into suggestions, tickets and insights. Light scans stop at a
preview; full scans produce the complete report. A second scan of the same
site and mode on the same UTC day reuses the first run unless --force is set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	c.v.SetEnvPrefix("KENSA")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.PersistentFlags().String("server", "http://localhost:8080", "Kensa server URL")
	root.PersistentFlags().Bool("json", false, "output JSON")
	root.PersistentFlags().Duration("timeout", 2*time.Minute, "per-request timeout")
	_ = c.v.BindPFlag("server", root.PersistentFlags().Lookup("server"))
	_ = c.v.BindPFlag("json", root.PersistentFlags().Lookup("json"))
	_ = c.v.BindPFlag("timeout", root.PersistentFlags().Lookup("timeout"))

	root.AddCommand(
		c.scanCmd(),
		c.statusCmd(),
		c.reportCmd(),
		c.siteHealthCmd(),
		c.workersCmd(),
		c.pingCmd(),
	)
	return root
}

func (c *cli) client() (*client.Client, error) {
	return client.NewClient(client.Config{
		BaseURL: c.v.GetString("server"),
		Timeout: c.v.GetDuration("timeout"),
	})
}
