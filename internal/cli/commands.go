package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"basegraph.app/boardroom/internal/client"
	"basegraph.app/boardroom/internal/model"
)

func newStartCommand(v *viper.Viper) *cobra.Command {
	var (
		planPath string
		watch    bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a discussion from a plan file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := client.LoadPlanFile(planPath)
			if err != nil {
				return err
			}

			c := newClient(v)
			d, err := c.Start(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("starting discussion: %w", err)
			}

			if !watch {
				fmt.Fprintln(cmd.OutOrStdout(), d.ID)
				return nil
			}
			return follow(cmd, v, c, d)
		},
	}

	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "YAML plan file")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "poll until the discussion settles")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func newGetCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "get <discussion-id>",
		Short: "Print the current state of a discussion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newClient(v).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			newRenderer(cmd.OutOrStdout()).update(d)
			if !d.Status.IsTerminal() {
				fmt.Fprintf(cmd.OutOrStdout(), "\nStatus: %s\n", d.Status)
			}
			return nil
		},
	}
}

func newWatchCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <discussion-id>",
		Short: "Poll a discussion until it settles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(v)
			d, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return follow(cmd, v, c, d)
		},
	}
}

func newCancelCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <discussion-id>",
		Short: "Stop a discussion before its next round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newClient(v).Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancellation requested for %s (status %s)\n", d.ID, d.Status)
			return nil
		},
	}
}

func follow(cmd *cobra.Command, v *viper.Viper, c *client.Client, d *model.Discussion) error {
	r := newRenderer(cmd.OutOrStdout())
	r.update(d)
	if d.Status.IsTerminal() {
		return nil
	}

	_, err := newPoller(v, c).Poll(cmd.Context(), d.ID, r.update)
	if errors.Is(err, client.ErrPollingExhausted) {
		fmt.Fprintf(cmd.OutOrStdout(), "\nStopped polling; %s is still active. Run `boardroom watch %s` to keep following.\n", d.ID, d.ID)
		return nil
	}
	return err
}
