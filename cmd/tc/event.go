package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"techcomm/internal/app"
	"techcomm/internal/domain"
	"techcomm/internal/engine"
	"techcomm/internal/store"
)

func eventCmd() *cobra.Command {
	ev := &cobra.Command{
		Use:   "event",
		Short: "Request, moderate and run events",
	}
	ev.AddCommand(eventListCmd())
	ev.AddCommand(eventGetCmd())
	ev.AddCommand(eventRequestCmd())
	ev.AddCommand(eventEditCmd())
	ev.AddCommand(eventDeleteCmd())
	ev.AddCommand(eventApproveCmd())
	ev.AddCommand(eventRejectCmd())
	ev.AddCommand(eventCloseCmd())
	ev.AddCommand(eventJoinCmd())
	ev.AddCommand(eventLeaveCmd())
	ev.AddCommand(eventTeamsCmd())
	ev.AddCommand(eventSubmitCmd())
	ev.AddCommand(eventVotingCmd())
	ev.AddCommand(eventVoteCmd())
	ev.AddCommand(eventWinnersCmd())
	ev.AddCommand(eventXPCmd())
	ev.AddCommand(eventRateCmd())
	return ev
}

// eventAction runs fn against one event id and prints the updated event.
func eventAction(use, short string, fn func(ctx context.Context, e engine.Engine, id string) (domain.Event, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <event-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ev, err := fn(ctx, a.Engine, args[0])
				if err != nil {
					return err
				}
				return printEvent(ev)
			})
		},
	}
}

func eventListCmd() *cobra.Command {
	var status, format, requestedBy string
	var public, mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var (
					events []domain.Event
					err    error
				)
				switch {
				case public:
					events, err = a.Engine.PublicEvents(ctx)
				case mine:
					events, err = a.Engine.MyRequests(ctx, actor().UID)
				default:
					var filters []store.Filter
					if status != "" {
						filters = append(filters, store.Equals("status", status))
					}
					if format != "" {
						filters = append(filters, store.Equals("details.format", format))
					}
					if requestedBy != "" {
						filters = append(filters, store.Equals("requestedBy", requestedBy))
					}
					events, err = a.Engine.ListEvents(ctx, filters...)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				names := requesterNames(ctx, a, events)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Format", "Requested by", "Members", "Created"})
				for _, ev := range events {
					tw.AppendRow(table.Row{
						ev.ID,
						ev.Details.EventName,
						ev.Status,
						ev.Details.Format,
						names[ev.RequestedBy],
						len(ev.Participants) + len(ev.TeamMemberFlatList),
						since(ev.LifecycleTimestamps.CreatedAt),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (Pending, Approved, Rejected, Closed)")
	cmd.Flags().StringVar(&format, "format", "", "format filter (Individual, Team, MultiEvent)")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "requester uid filter")
	cmd.Flags().BoolVar(&public, "public", false, "only Approved and Closed events")
	cmd.Flags().BoolVar(&mine, "mine", false, "requests made by --actor-id, newest first")
	return cmd
}

func eventGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <event-id>",
		Short: "Show one event as --actor-id sees it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ev, err := a.Engine.EventForViewer(ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printEvent(ev)
			})
		},
	}
}

func eventRequestCmd() *cobra.Command {
	var file, name, description, format string
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request a new event",
		Long:  "Request a new event from a JSON file ({\"details\": {...}, \"criteria\": [...]}) or from flags for a simple event.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req engine.EventRequest
			if file != "" {
				if err := readJSONFile(file, &req); err != nil {
					return err
				}
			} else {
				req.Details = domain.EventDetails{
					EventName:   name,
					Description: description,
					Format:      domain.EventFormat(format),
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ev, err := a.Engine.RequestEvent(ctx, actor(), req)
				if err != nil {
					return err
				}
				return printEvent(ev)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "request JSON file")
	cmd.Flags().StringVar(&name, "name", "", "event name")
	cmd.Flags().StringVar(&description, "description", "", "event description")
	cmd.Flags().StringVar(&format, "format", string(domain.FormatIndividual), "Individual, Team or MultiEvent")
	return cmd
}

func eventEditCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "edit <event-id>",
		Short: "Replace the details of a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req engine.EventRequest
			if err := readJSONFile(file, &req); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ev, err := a.Engine.EditRequest(ctx, actor(), args[0], req)
				if err != nil {
					return err
				}
				return printEvent(ev)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "request JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func eventDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <event-id>",
		Short: "Withdraw a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.DeleteRequest(ctx, actor(), args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func eventApproveCmd() *cobra.Command {
	return eventAction("approve", "Approve a pending request", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
		return e.Approve(ctx, actor(), id)
	})
}

func eventRejectCmd() *cobra.Command {
	var reason string
	cmd := eventAction("reject", "Reject a pending request", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
		return e.Reject(ctx, actor(), id, reason)
	})
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason shown to the requester")
	return cmd
}

func eventCloseCmd() *cobra.Command {
	return eventAction("close", "Close an approved event", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
		return e.Close(ctx, actor(), id)
	})
}

func eventJoinCmd() *cobra.Command {
	var phase string
	cmd := eventAction("join", "Join an event or one of its phases", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
		if phase != "" {
			return e.JoinPhase(ctx, actor(), id, phase)
		}
		return e.Join(ctx, actor(), id)
	})
	cmd.Flags().StringVar(&phase, "phase", "", "phase id of a multi-phase event")
	return cmd
}

func eventLeaveCmd() *cobra.Command {
	return eventAction("leave", "Leave an event", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
		return e.Leave(ctx, actor(), id)
	})
}

func eventTeamsCmd() *cobra.Command {
	teams := &cobra.Command{
		Use:   "teams",
		Short: "Manage the team roster of a team event",
	}

	var students []string
	var minSize, maxSize int
	auto := eventAction("auto", "Partition students into teams", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
		return e.AutoGenerateTeams(ctx, actor(), id, students, minSize, maxSize)
	})
	auto.Flags().StringSliceVar(&students, "students", nil, "student uids to partition")
	auto.Flags().IntVar(&minSize, "min", 2, "minimum team size")
	auto.Flags().IntVar(&maxSize, "max", 4, "maximum team size")

	var file string
	set := eventAction("set", "Replace the roster from a JSON file of teams", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
		var roster []domain.Team
		if err := readJSONFile(file, &roster); err != nil {
			return domain.Event{}, err
		}
		return e.SetTeams(ctx, actor(), id, roster)
	})
	set.Flags().StringVarP(&file, "file", "f", "", "teams JSON file")
	_ = set.MarkFlagRequired("file")

	teams.AddCommand(auto, set)
	return teams
}

func eventSubmitCmd() *cobra.Command {
	var in engine.SubmissionInput
	cmd := eventAction("submit", "Submit or replace a project", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
		return e.SubmitProject(ctx, actor(), id, in)
	})
	cmd.Flags().StringVar(&in.ProjectName, "name", "", "project name")
	cmd.Flags().StringVar(&in.Link, "link", "", "project link (http or https)")
	cmd.Flags().StringVar(&in.Description, "description", "", "project description")
	cmd.Flags().StringVar(&in.PhaseID, "phase", "", "phase id of a multi-phase event")
	return cmd
}

func eventVotingCmd() *cobra.Command {
	voting := &cobra.Command{
		Use:   "voting",
		Short: "Open or close voting",
	}
	voting.AddCommand(
		eventAction("open", "Open voting", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
			return e.OpenVoting(ctx, actor(), id)
		}),
		eventAction("close", "Close voting and tally winners", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
			return e.CloseVoting(ctx, actor(), id)
		}),
	)
	return voting
}

func eventVoteCmd() *cobra.Command {
	vote := &cobra.Command{
		Use:   "vote",
		Short: "Cast votes",
	}

	var teamVotes map[string]string
	var best string
	criteria := eventAction("criteria", "Vote a team per criterion in a team event", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
		return e.SubmitCriteriaVote(ctx, actor(), id, teamVotes, best)
	})
	criteria.Flags().StringToStringVar(&teamVotes, "vote", nil, "criterion=team-id pairs")
	criteria.Flags().StringVar(&best, "best", "", "best performer uid")

	var winnerVotes map[string]string
	winner := eventAction("winner", "Vote a participant per criterion in an individual event", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
		return e.SubmitWinnerVote(ctx, actor(), id, winnerVotes)
	})
	winner.Flags().StringToStringVar(&winnerVotes, "vote", nil, "criterion=uid pairs")

	vote.AddCommand(criteria, winner)
	return vote
}

func eventWinnersCmd() *cobra.Command {
	var picks map[string]string
	cmd := eventAction("winners", "Select winners manually and end voting", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
		sel := engine.WinnerSelection{Winners: map[string][]string{}}
		for key, ids := range picks {
			for _, v := range strings.Split(ids, ";") {
				if v = strings.TrimSpace(v); v != "" {
					sel.Winners[key] = append(sel.Winners[key], v)
				}
			}
		}
		return e.SubmitManualWinnerSelection(ctx, actor(), id, sel)
	})
	cmd.Flags().StringToStringVar(&picks, "winner", nil, "criterion=id pairs; separate several winners with ';'")
	return cmd
}

func eventXPCmd() *cobra.Command {
	xp := eventAction("xp", "Award XP for a closed event", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
		return e.AwardXP(ctx, actor(), id)
	})
	xp.Args = cobra.MaximumNArgs(1)
	var sweep bool
	run := xp.RunE
	xp.RunE = func(cmd *cobra.Command, args []string) error {
		if !sweep {
			if len(args) != 1 {
				return fmt.Errorf("event id required unless --sweep is set")
			}
			return run(cmd, args)
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			n, err := a.Engine.SweepXP(ctx)
			fmt.Printf("awarded XP for %d events\n", n)
			return err
		})
	}
	xp.Flags().BoolVar(&sweep, "sweep", false, "award every closed event still pending or failed")
	return xp
}

func eventRateCmd() *cobra.Command {
	var score int
	var feedback string
	cmd := eventAction("rate", "Rate the organizers of an event", func(ctx context.Context, e engine.Engine, id string) (domain.Event, error) {
		return e.RateOrganizers(ctx, actor(), id, score, feedback)
	})
	cmd.Flags().IntVar(&score, "score", 5, "score from 1 to 5")
	cmd.Flags().StringVar(&feedback, "feedback", "", "optional feedback")
	return cmd
}

// --- output ---

func printEvent(ev domain.Event) error {
	if viper.GetBool("json") {
		return printJSON(ev)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(ev.Details.EventName)
	tw.AppendRows([]table.Row{
		{"ID", ev.ID},
		{"Status", ev.Status},
		{"Format", ev.Details.Format},
		{"Requested by", ev.RequestedBy},
		{"Organizers", strings.Join(ev.Details.Organizers, ", ")},
		{"Participants", strings.Join(ev.Participants, ", ")},
		{"Teams", len(ev.Teams)},
		{"Submissions", len(ev.Submissions)},
		{"Voting open", ev.VotingOpen},
		{"Winners", formatWinners(ev.Winners)},
		{"XP", ev.XPAwardingStatus},
		{"Created", since(ev.LifecycleTimestamps.CreatedAt)},
		{"Updated", since(ev.LastUpdatedAt)},
	})
	if ev.RejectionReason != "" {
		tw.AppendRow(table.Row{"Rejection reason", ev.RejectionReason})
	}
	if ev.XPAwardError != "" {
		tw.AppendRow(table.Row{"XP error", ev.XPAwardError})
	}
	tw.Render()
	return nil
}

func formatWinners(w map[string][]string) string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strings.Join(w[k], "|"))
	}
	return strings.Join(parts, " ")
}

// since renders an RFC3339 timestamp relative to now.
func since(ts string) string {
	if ts == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

func requesterNames(ctx context.Context, a *app.App, events []domain.Event) map[string]string {
	ids := make([]string, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.RequestedBy)
	}
	names, _ := a.Names.FetchNamesBatch(ctx, ids)
	if names == nil {
		names = map[string]string{}
	}
	return names
}
