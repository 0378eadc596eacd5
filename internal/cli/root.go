// Package cli implements the boardroom command line client.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"basegraph.app/boardroom/internal/client"
)

// NewRootCommand builds the command tree. Each call returns a fresh tree so
// tests can run commands in isolation.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "boardroom",
		Short: "Start and follow boardroom discussions",
		Long: `boardroom submits discussion plans to a boardroom server and polls
the discussion until the agents settle on a decision or give up.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/boardroom/config.yaml)")
	root.PersistentFlags().String("server", "", "boardroom server URL")
	root.PersistentFlags().Duration("poll-interval", 0, "time between polls")
	root.PersistentFlags().Int("poll-max-attempts", 0, "polls before giving up")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("server", root.PersistentFlags().Lookup("server"))
	_ = v.BindPFlag("poll.interval", root.PersistentFlags().Lookup("poll-interval"))
	_ = v.BindPFlag("poll.max_attempts", root.PersistentFlags().Lookup("poll-max-attempts"))

	root.AddCommand(
		newStartCommand(v),
		newGetCommand(v),
		newWatchCommand(v),
		newCancelCommand(v),
	)
	return root
}

func initConfig(v *viper.Viper) error {
	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("poll.interval", client.DefaultPollInterval)
	v.SetDefault("poll.max_attempts", client.DefaultPollMaxAttempts)

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.config/boardroom")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BOARDROOM")
	// BOARDROOM_POLL_INTERVAL for poll.interval
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

func newClient(v *viper.Viper) *client.Client {
	return client.New(v.GetString("server"))
}

func newPoller(v *viper.Viper, c *client.Client) *client.Poller {
	return client.NewPoller(c, client.PollConfig{
		Interval:    pollDuration(v.Get("poll.interval")),
		MaxAttempts: v.GetInt("poll.max_attempts"),
	})
}

// pollDuration accepts "1s" style strings and bare millisecond counts.
func pollDuration(raw any) time.Duration {
	switch val := raw.(type) {
	case time.Duration:
		return val
	case int:
		return time.Duration(val) * time.Millisecond
	case int64:
		return time.Duration(val) * time.Millisecond
	case float64:
		return time.Duration(val) * time.Millisecond
	case string:
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return 0
}
