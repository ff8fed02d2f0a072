// wxbrief answers weather questions for a place, pulling public forecast
// data through the source adapters and budgeting the answer to a word cap.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/wxbrief/config"
	"github.com/mohammad-safakhou/wxbrief/internal/orchestrator"
	"github.com/mohammad-safakhou/wxbrief/internal/render"
	"github.com/mohammad-safakhou/wxbrief/internal/server"
)

var (
	flagConfig  string
	flagPlace   string
	flagJSON    bool
	flagDebug   bool
	flagVerbose bool
	flagOffline bool
	flagStyle   string
	flagPersona string
)

func main() {
	// .env before config so viper's env overrides see the values
	_ = godotenv.Load()

	if err := newRoot().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	var when string
	var words int

	root := &cobra.Command{
		Use:     "wxbrief [question]",
		Short:   "Weather briefings from public forecast data",
		Version: server.Version,
		Example: `  wxbrief "will it hail tonight?" --place "Austin, TX"
  wxbrief forecast "Bozeman, MT" --when tonight
  wxbrief risk "Norman, OK" --hazards hail,wind
  wxbrief alerts "Moore, OK" --ai
  wxbrief worldview --severe`,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			cfg, orch, err := setup()
			if err != nil {
				return err
			}
			defer orch.Close()
			ctx, cancel := signalContext()
			defer cancel()
			b, err := orch.Ask(ctx, strings.Join(args, " "), defaultPlace(orch), orchestrator.Options{When: when, Words: words})
			if err != nil {
				return err
			}
			return output(cfg, b)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "config file (default ./config/config.yaml)")
	pf.StringVarP(&flagPlace, "place", "p", "", "place or favorite name")
	pf.BoolVar(&flagJSON, "json", false, "emit the raw brief as JSON")
	pf.BoolVar(&flagDebug, "debug", false, "show source fetches and provider attempts")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "log pipeline progress to stderr")
	pf.BoolVar(&flagOffline, "offline", false, "synthetic sources only, no network")
	pf.StringVar(&flagStyle, "style", "", "answer style (overrides config)")
	pf.StringVar(&flagPersona, "persona", "", "answer persona (overrides config)")

	root.Flags().StringVar(&when, "when", "", `time phrase ("tonight", "this weekend")`)
	root.Flags().IntVar(&words, "words", 0, "word cap for the answer")

	root.AddCommand(
		forecastCmd(), riskCmd(), alertsCmd(), explainCmd(), storyCmd(), worldviewCmd(),
		favoritesCmd(), serveCmd(), migrateCmd(),
	)
	return root
}

// loadConfig applies the global flag overrides on top of the file/env config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagOffline {
		cfg.General.Offline = true
	}
	if flagDebug {
		cfg.General.Debug = true
	}
	if flagStyle != "" {
		cfg.General.Style = flagStyle
	}
	if flagPersona != "" {
		cfg.General.Persona = flagPersona
	}
	return cfg, nil
}

func setup() (*config.Config, *orchestrator.Orchestrator, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	var logger *log.Logger
	if flagVerbose || cfg.General.Debug {
		logger = log.New(os.Stderr, "[ORCH] ", log.LstdFlags)
	}
	orch, err := orchestrator.New(cfg, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, orch, nil
}

// placeArg prefers a positional place, then --place, then the default
// favorite.
func placeArg(args []string, orch *orchestrator.Orchestrator) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	return defaultPlace(orch)
}

func defaultPlace(orch *orchestrator.Orchestrator) string {
	if flagPlace != "" {
		return flagPlace
	}
	if f, ok, err := orch.Favorites().Default(); err == nil && ok {
		return f.Place
	}
	return ""
}

func output(cfg *config.Config, b *orchestrator.Brief) error {
	return render.Brief(os.Stdout, b, render.Options{JSON: flagJSON, Debug: flagDebug || cfg.General.Debug})
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
