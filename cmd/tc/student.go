package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"techcomm/internal/app"
	"techcomm/internal/profile"
)

func studentCmd() *cobra.Command {
	st := &cobra.Command{
		Use:   "student",
		Short: "Member profiles, names and XP",
	}
	st.AddCommand(studentShowCmd())
	st.AddCommand(studentSignInCmd())
	st.AddCommand(studentUpdateCmd())
	st.AddCommand(studentXPCmd())
	st.AddCommand(studentEventsCmd())
	st.AddCommand(studentNamesCmd())
	return st
}

func studentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <uid>",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Store.Students().GetByID(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrPretty(s)
			})
		},
	}
}

func studentSignInCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Create the profile of --actor-id on first sign-in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Profiles.EnsureProfile(ctx, actor(), email)
				if err != nil {
					return err
				}
				return printJSONOrPretty(s)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	return cmd
}

func studentUpdateCmd() *cobra.Command {
	var name, bio, photo, batch, studentID string
	var skills []string
	var laptop bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the profile of --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			var u profile.ProfileUpdate
			flags := cmd.Flags()
			if flags.Changed("name") {
				u.Name = &name
			}
			if flags.Changed("bio") {
				u.Bio = &bio
			}
			if flags.Changed("photo-url") {
				u.PhotoURL = &photo
			}
			if flags.Changed("batch") {
				u.Batch = &batch
			}
			if flags.Changed("student-id") {
				u.StudentID = &studentID
			}
			if flags.Changed("skills") {
				u.Skills = skills
			}
			if flags.Changed("has-laptop") {
				u.HasLaptop = &laptop
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				me := actor()
				s, err := a.Profiles.UpdateProfile(ctx, me, me.UID, u)
				if err != nil {
					return err
				}
				return printJSONOrPretty(s)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&bio, "bio", "", "short bio")
	cmd.Flags().StringVar(&photo, "photo-url", "", "photo URL")
	cmd.Flags().StringVar(&batch, "batch", "", "batch")
	cmd.Flags().StringVar(&studentID, "student-id", "", "institution student id")
	cmd.Flags().StringSliceVar(&skills, "skills", nil, "skills, comma separated")
	cmd.Flags().BoolVar(&laptop, "has-laptop", false, "owns a laptop")
	return cmd
}

func studentXPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "xp <uid>",
		Short: "Show XP earned from completed awards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				xp, err := a.Engine.StudentXP(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(xp)
				}
				roles := make([]string, 0, len(xp.ByRole))
				for r := range xp.ByRole {
					roles = append(roles, r)
				}
				sort.Strings(roles)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Role", "XP"})
				for _, r := range roles {
					tw.AppendRow(table.Row{r, humanize.Comma(int64(xp.ByRole[r]))})
				}
				tw.AppendFooter(table.Row{"Total", humanize.Comma(int64(xp.TotalXP))})
				tw.Render()
				fmt.Printf("%s across %d events\n", args[0], len(xp.Events))
				return nil
			})
		},
	}
}

func studentEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events <uid>",
		Short: "List events a student took part in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Engine.StudentEvents(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Closed"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.Details.EventName, ev.Status, since(ev.LifecycleTimestamps.ClosedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func studentNamesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "names <uid>...",
		Short: "Resolve display names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				names, err := a.Names.FetchNamesBatch(ctx, args)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(names)
				}
				for _, id := range args {
					fmt.Printf("%s\t%s\n", id, names[id])
				}
				return nil
			})
		},
	}
}
