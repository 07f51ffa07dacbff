package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/qianlnk/onenight/models"
	"github.com/qianlnk/onenight/services"
	"github.com/spf13/cobra"
)

var simulateOpts struct {
	players int
	mode    string
	seed    int64
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play one game between rule-based players and print the log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// simulations never touch shared infrastructure
		cfg.Redis.Address = ""
		cfg.Archive.PostgresDSN = ""
		cfg.Game.StepInterval = 0

		b, err := newBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		players := make([]string, simulateOpts.players)
		for i := range players {
			players[i] = fmt.Sprintf("player%d", i+1)
		}

		ctx := cmd.Context()
		id, _, err := b.manager.CreateGame(ctx, services.CreateGameRequest{
			Players: players,
			Mode:    models.GameMode(simulateOpts.mode),
			Seed:    simulateOpts.seed,
		})
		if err != nil {
			return err
		}
		result, steps, err := b.controller.RunToCompletion(ctx, id)
		if err != nil {
			return err
		}
		world, err := b.manager.World(ctx, id)
		if err != nil {
			return err
		}
		printGame(cmd.OutOrStdout(), world, result, steps)
		return nil
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateOpts.players, "players", 5, "Number of players")
	simulateCmd.Flags().StringVar(&simulateOpts.mode, "mode", string(models.ClassicMode), "Game mode: classic, standard or extended")
	simulateCmd.Flags().Int64Var(&simulateOpts.seed, "seed", 1, "Seed for dealing roles")
}

func printGame(w io.Writer, world models.WorldState, result *models.GameResult, steps int) {
	for _, ev := range world.PublicEvents {
		switch ev.Kind {
		case models.EventSpeech:
			fmt.Fprintf(w, "[%s] %s: %s\n", ev.Phase, ev.Actor, ev.Content)
		case models.EventVote:
			fmt.Fprintf(w, "[%s] %s votes for %s\n", ev.Phase, ev.Actor, ev.Target)
		default:
			fmt.Fprintf(w, "[%s] (%s) %s\n", ev.Phase, ev.Kind, ev.Content)
		}
	}
	if result == nil {
		return
	}
	fmt.Fprintf(w, "\nfinished after %d steps, %s side wins\n", steps, result.Winner)
	names := make([]string, 0, len(result.Roles))
	for name := range result.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, result.Roles[name])
	}
}
