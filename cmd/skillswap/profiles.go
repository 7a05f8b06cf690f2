package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/api"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/normalize"
)

func newProfilesCmd(a *app) *cobra.Command {
	var skill string

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List other members and the skills they trade",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, client, err := a.session()
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			profiles, err := client.Profiles(ctx)
			if err != nil {
				return a.explain(err)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tOFFERS\tWANTS")
			for _, p := range profiles {
				if skill != "" && !hasSkill(p, skill) {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, strings.Join(p.SkillsOffered, ", "), strings.Join(p.SkillsWanted, ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&skill, "skill", "", "only members offering or wanting this skill")
	return cmd
}

func hasSkill(p api.Profile, skill string) bool {
	for _, s := range append(append([]string{}, p.SkillsOffered...), p.SkillsWanted...) {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile [user-id]",
		Short: "Show your profile or another member's",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := a.session()
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()

			var p api.Profile
			if len(args) == 1 {
				p, err = client.ProfileByID(ctx, args[0])
			} else {
				p, err = client.Profile(ctx)
			}
			if err != nil {
				return a.explain(err)
			}
			printProfile(a.out, p)
			return nil
		},
	}
	cmd.AddCommand(newProfileUpdateCmd(a))
	return cmd
}

func newProfileUpdateCmd(a *app) *cobra.Command {
	var (
		name, bio, location, city, country, phone, availability string
		offers, wants, picture                                  string
		age                                                     int
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change your profile; only the flags you pass are updated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, client, err := a.session()
			if err != nil {
				return err
			}

			var upd api.ProfileUpdate
			str := func(flag string, v string, dst **string) {
				if cmd.Flags().Changed(flag) {
					*dst = &v
				}
			}
			str("name", name, &upd.Name)
			str("bio", bio, &upd.Bio)
			str("location", location, &upd.Location)
			str("city", city, &upd.City)
			str("country", country, &upd.Country)
			str("phone", phone, &upd.Phone)
			str("availability", availability, &upd.Availability)
			if cmd.Flags().Changed("age") {
				upd.Age = &age
			}
			if cmd.Flags().Changed("offers") {
				upd.SkillsOffered = normalize.Skills(offers)
			}
			if cmd.Flags().Changed("wants") {
				upd.SkillsWanted = normalize.Skills(wants)
			}

			var pic *api.Upload
			if picture != "" {
				f, err := os.Open(picture)
				if err != nil {
					return err
				}
				defer f.Close()
				pic = &api.Upload{Filename: filepath.Base(picture), Content: f}
			}

			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			p, err := client.UpdateProfile(ctx, upd, pic)
			if err != nil {
				return a.explain(err)
			}
			printProfile(a.out, p)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "display name")
	f.StringVar(&bio, "bio", "", "short introduction")
	f.StringVar(&location, "location", "", "location")
	f.StringVar(&city, "city", "", "city")
	f.StringVar(&country, "country", "", "country")
	f.StringVar(&phone, "phone", "", "phone number")
	f.StringVar(&availability, "availability", "", "when you are available")
	f.IntVar(&age, "age", 0, "age")
	f.StringVar(&offers, "offers", "", "comma separated skills you can teach")
	f.StringVar(&wants, "wants", "", "comma separated skills you want to learn")
	f.StringVar(&picture, "picture", "", "path to a jpeg, png or gif profile picture")
	return cmd
}

func printProfile(w io.Writer, p api.Profile) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", k, v)
		}
	}
	row("Name", p.Name)
	row("ID", p.ID)
	row("Email", p.Email)
	row("Bio", p.Bio)
	row("Location", strings.Join(nonEmpty(p.Location, p.City, p.Country), ", "))
	row("Phone", p.Phone)
	if p.Age > 0 {
		row("Age", fmt.Sprint(p.Age))
	}
	row("Availability", p.Availability)
	row("Offers", strings.Join(p.SkillsOffered, ", "))
	row("Wants", strings.Join(p.SkillsWanted, ", "))
	row("Picture", p.ProfilePic)
	_ = tw.Flush()
}

func nonEmpty(vs ...string) []string {
	out := vs[:0:0]
	for _, v := range vs {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
