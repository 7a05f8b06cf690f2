package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/api"
)

func newExchangesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "exchanges",
		Aliases: []string{"exchange"},
		Short:   "List and manage skill exchange requests",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, client, err := a.session()
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			list, err := client.Exchanges(ctx)
			if err != nil {
				return a.explain(err)
			}
			if len(list) == 0 {
				fmt.Fprintln(a.out, "No exchanges yet")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tROLE\tWITH\tSKILL\tSTATUS")
			for _, ex := range list {
				role, other := "requester", ex.Provider
				if ex.Provider.Is(sess.UserID) {
					role, other = "provider", ex.Requester
				}
				with := other.Name
				if with == "" {
					with = other.ID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ex.ID, role, with, ex.Skill, ex.Status)
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "start <provider-id> <skill>",
			Short: "Ask a member to teach you a skill",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				skill := strings.Join(args[1:], " ")
				return a.exchange(cmd.Context(), func(ctx context.Context, c *api.Client) (api.Exchange, error) {
					return c.CreateExchange(ctx, args[0], skill)
				})
			},
		},
		&cobra.Command{
			Use:   "accept <exchange-id>",
			Short: "Accept a pending request sent to you",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.exchange(cmd.Context(), func(ctx context.Context, c *api.Client) (api.Exchange, error) {
					return c.AcceptExchange(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "decline <exchange-id>",
			Short: "Decline a pending request sent to you",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.exchange(cmd.Context(), func(ctx context.Context, c *api.Client) (api.Exchange, error) {
					return c.DeclineExchange(ctx, args[0])
				})
			},
		},
	)
	return cmd
}

// exchange runs one exchange mutation and prints the result.
func (a *app) exchange(parent context.Context, call func(context.Context, *api.Client) (api.Exchange, error)) error {
	_, client, err := a.session()
	if err != nil {
		return err
	}
	ctx, cancel := a.requestContext(parent)
	defer cancel()
	ex, err := call(ctx, client)
	if err != nil {
		return a.explain(err)
	}
	fmt.Fprintf(a.out, "Exchange %s: %s (%s)\n", ex.ID, ex.Status, ex.Skill)
	return nil
}
