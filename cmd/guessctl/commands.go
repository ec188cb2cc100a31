package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/robalobadob/guessroom/internal/game"
	"github.com/robalobadob/guessroom/internal/poll"
)

type globalFlags struct {
	server string
	room   string
	nick   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "guessctl",
		Short:         "guessctl plays the number guessing game from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.server, "server", "s", envOr("GUESSROOM_SERVER", "http://localhost:5175"), "server base URL")
	root.PersistentFlags().StringVarP(&g.room, "room", "r", envOr("GUESSROOM_ROOM", ""), "room id")
	root.PersistentFlags().StringVarP(&g.nick, "nick", "n", envOr("GUESSROOM_NICK", ""), "your nickname")

	root.AddCommand(
		joinCmd(g), leaveCmd(g), startCmd(g), sayCmd(g),
		membersCmd(g), historyCmd(g), pointsCmd(g), watchCmd(g),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (g *globalFlags) needRoom() error {
	if strings.TrimSpace(g.room) == "" {
		return errors.New("--room is required")
	}
	return nil
}

func (g *globalFlags) needNick() error {
	if err := g.needRoom(); err != nil {
		return err
	}
	if strings.TrimSpace(g.nick) == "" {
		return errors.New("--nick is required")
	}
	return nil
}

func joinCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "join",
		Short: "Join the room as --nick",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.needNick(); err != nil {
				return err
			}
			stream, err := NewClient(g.server).Join(cmd.Context(), g.room, g.nick)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "joined %s as %s (stream %s)\n", g.room, g.nick, stream)
			return nil
		},
	}
}

func leaveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Leave the room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.needNick(); err != nil {
				return err
			}
			if err := NewClient(g.server).Leave(cmd.Context(), g.room, g.nick); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "left %s\n", g.room)
			return nil
		},
	}
}

func startCmd(g *globalFlags) *cobra.Command {
	var (
		wait     bool
		interval time.Duration
		maxWait  time.Duration
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the first round (waits for enough players unless --wait=false)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.needRoom(); err != nil {
				return err
			}
			c := NewClient(g.server)
			out := cmd.OutOrStdout()
			if !wait {
				started, err := c.Start(cmd.Context(), g.room)
				if err != nil {
					return err
				}
				if !started {
					fmt.Fprintf(out, "not enough players in %s yet\n", g.room)
					return nil
				}
				fmt.Fprintf(out, "round running in %s\n", g.room)
				return nil
			}
			err := c.WaitStart(cmd.Context(), g.room,
				poll.WithBackoff(poll.Exponential(interval, maxWait)),
				poll.WithMaxElapsed(timeout),
				poll.WithOnWait(func(attempt int, d time.Duration) {
					fmt.Fprintf(out, "waiting for players (attempt %d, retry in %s)\n", attempt, d.Round(time.Millisecond))
				}))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "round running in %s\n", g.room)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", true, "poll until the round starts")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "first poll interval")
	cmd.Flags().DurationVar(&maxWait, "max-interval", 8*time.Second, "poll interval cap")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up waiting after this long")
	return cmd
}

func sayCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "say <text...>",
		Short: "Post a chat message; a number counts as your guess",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.needNick(); err != nil {
				return err
			}
			return NewClient(g.server).Say(cmd.Context(), g.room, g.nick, strings.Join(args, " "))
		},
	}
}

func membersCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "List room members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.needRoom(); err != nil {
				return err
			}
			members, err := NewClient(g.server).Members(cmd.Context(), g.room)
			if err != nil {
				return err
			}
			printMembers(cmd.OutOrStdout(), members)
			return nil
		},
	}
}

func printMembers(w io.Writer, members []game.Member) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NICK\tGUESSED\tWINS")
	for _, m := range members {
		fmt.Fprintf(tw, "%s\t%t\t%d\n", m.Nickname, m.HasGuessed, m.Points)
	}
	_ = tw.Flush()
}

func historyCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent chat messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.needRoom(); err != nil {
				return err
			}
			msgs, err := NewClient(g.server).History(cmd.Context(), g.room, limit)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				printMessage(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "max messages")
	return cmd
}

func printMessage(w io.Writer, m game.ChatMessage) {
	fmt.Fprintf(w, "%s %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.Author, m.Text)
}

func pointsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "points [player]",
		Short: "Show a player's total wins (defaults to --nick)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			player := g.nick
			if len(args) == 1 {
				player = args[0]
			}
			if strings.TrimSpace(player) == "" {
				return errors.New("player required (argument or --nick)")
			}
			n, err := NewClient(g.server).Points(cmd.Context(), player)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", player, n)
			return nil
		},
	}
}

func watchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream room events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.needRoom(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return NewClient(g.server).Watch(cmd.Context(), g.room, func(m game.ChatMessage) {
				printMessage(out, m)
			})
		},
	}
}
