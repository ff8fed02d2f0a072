package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/wxbrief/internal/orchestrator"
)

func forecastCmd() *cobra.Command {
	var when, focus string
	var horizon time.Duration
	var words int

	cmd := &cobra.Command{
		Use:   "forecast [place]",
		Short: "Brief the coming hours for a place",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, orch, err := setup()
			if err != nil {
				return err
			}
			defer orch.Close()
			ctx, cancel := signalContext()
			defer cancel()
			b, err := orch.Forecast(ctx, placeArg(args, orch), orchestrator.Options{
				When:    when,
				Horizon: horizon,
				Focus:   focus,
				Words:   words,
			})
			if err != nil {
				return err
			}
			return output(cfg, b)
		},
	}
	cmd.Flags().StringVar(&when, "when", "", `time phrase ("tonight", "this weekend")`)
	cmd.Flags().DurationVar(&horizon, "horizon", 0, "forecast window (e.g. 12h, 48h)")
	cmd.Flags().StringVar(&focus, "focus", "", "activity to plan around (commute, travel, outdoors)")
	cmd.Flags().IntVar(&words, "words", 0, "word cap for the answer")
	return cmd
}

func riskCmd() *cobra.Command {
	var hazards []string
	var horizon time.Duration
	var words int

	cmd := &cobra.Command{
		Use:   "risk [place]",
		Short: "Assess weather hazards for a place",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, orch, err := setup()
			if err != nil {
				return err
			}
			defer orch.Close()
			ctx, cancel := signalContext()
			defer cancel()
			b, err := orch.Risk(ctx, placeArg(args, orch), hazards, orchestrator.Options{
				Horizon: horizon,
				Words:   words,
			})
			if err != nil {
				return err
			}
			return output(cfg, b)
		},
	}
	cmd.Flags().StringSliceVar(&hazards, "hazards", nil, "hazards to focus on (hail, wind, tornado, flood)")
	cmd.Flags().DurationVar(&horizon, "horizon", 0, "risk window (e.g. 24h)")
	cmd.Flags().IntVar(&words, "words", 0, "word cap for the answer")
	return cmd
}

func alertsCmd() *cobra.Command {
	var ai bool
	var words int

	cmd := &cobra.Command{
		Use:   "alerts [place]",
		Short: "List active alerts for a place",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, orch, err := setup()
			if err != nil {
				return err
			}
			defer orch.Close()
			ctx, cancel := signalContext()
			defer cancel()
			b, err := orch.Alerts(ctx, placeArg(args, orch), ai, orchestrator.Options{Words: words})
			if err != nil {
				return err
			}
			return output(cfg, b)
		},
	}
	cmd.Flags().BoolVar(&ai, "ai", false, "triage the alerts through the provider chain")
	cmd.Flags().IntVar(&words, "words", 0, "word cap for the answer")
	return cmd
}

func explainCmd() *cobra.Command {
	var words int

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain the reasoning behind the last brief",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, orch, err := setup()
			if err != nil {
				return err
			}
			defer orch.Close()
			ctx, cancel := signalContext()
			defer cancel()
			b, err := orch.Explain(ctx, orchestrator.Options{Words: words})
			if err != nil {
				return err
			}
			return output(cfg, b)
		},
	}
	cmd.Flags().IntVar(&words, "words", 0, "word cap for the answer")
	return cmd
}

func storyCmd() *cobra.Command {
	var words int

	cmd := &cobra.Command{
		Use:   "story [place]",
		Short: "Tell the next day's weather as a short narrative",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, orch, err := setup()
			if err != nil {
				return err
			}
			defer orch.Close()
			ctx, cancel := signalContext()
			defer cancel()
			b, err := orch.Story(ctx, placeArg(args, orch), orchestrator.Options{Words: words})
			if err != nil {
				return err
			}
			return output(cfg, b)
		},
	}
	cmd.Flags().IntVar(&words, "words", 0, "word cap for the answer")
	return cmd
}

func worldviewCmd() *cobra.Command {
	var severe bool
	var words int

	cmd := &cobra.Command{
		Use:   "worldview",
		Short: "Survey notable weather across regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, orch, err := setup()
			if err != nil {
				return err
			}
			defer orch.Close()
			ctx, cancel := signalContext()
			defer cancel()
			b, err := orch.Worldview(ctx, severe, orchestrator.Options{Words: words})
			if err != nil {
				return err
			}
			return output(cfg, b)
		},
	}
	cmd.Flags().BoolVar(&severe, "severe", false, "only regions with active severe weather")
	cmd.Flags().IntVar(&words, "words", 0, "word cap for the answer")
	return cmd
}
