package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/api"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/normalize"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/session"
)

func newRegisterCmd(a *app) *cobra.Command {
	var name, email, location, offers, wants string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if name == "" {
				if name, err = a.readRequired("Name"); err != nil {
					return err
				}
			}
			if email == "" {
				if email, err = a.readRequired("Email"); err != nil {
					return err
				}
			}
			password, err := a.readSecret("Password")
			if err != nil {
				return err
			}
			confirm, err := a.readSecret("Confirm password")
			if err != nil {
				return err
			}
			if password != confirm {
				return errors.New("passwords do not match")
			}

			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			resp, err := a.client("").Register(ctx, api.RegisterRequest{
				Name:          name,
				Email:         email,
				Password:      password,
				Location:      location,
				SkillsOffered: normalize.Skills(offers),
				SkillsWanted:  normalize.Skills(wants),
			})
			if err != nil {
				return err
			}
			return a.remember(resp)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&location, "location", "", "where you are")
	cmd.Flags().StringVar(&offers, "offers", "", "comma separated skills you can teach")
	cmd.Flags().StringVar(&wants, "wants", "", "comma separated skills you want to learn")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if email == "" {
				if email, err = a.readRequired("Email"); err != nil {
					return err
				}
			}
			password, err := a.readSecret("Password")
			if err != nil {
				return err
			}

			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			resp, err := a.client("").Login(ctx, email, password)
			if err != nil {
				return err
			}
			return a.remember(resp)
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "email address")
	return cmd
}

// remember persists a login reply.
func (a *app) remember(resp api.AuthResponse) error {
	sess := resp.Session()
	if !sess.Authenticated() {
		return errors.New("server returned an incomplete session")
	}
	if err := a.store.Save(sess); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s (%s)\n", sess.UserName, sess.UserID)
	return nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := a.store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			sess, err := a.store.Load()
			if errors.Is(err, session.ErrNoSession) {
				fmt.Fprintln(a.out, "Not logged in")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s (%s)\n", sess.UserName, sess.UserID)
			return nil
		},
	}
}
