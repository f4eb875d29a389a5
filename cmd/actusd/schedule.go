package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/actus/internal/app"
	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/service"
)

var (
	termsFile    string
	scheduleFrom string
	scheduleTo   string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print the event schedule of a terms document without registering it",
	Example: `  actusd schedule --terms pam.json
  actusd schedule --terms pam.json --from 2024-01-01 --to 2025-01-01
  cat pam.json | actusd schedule --terms -`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		terms, err := readTerms(termsFile)
		if err != nil {
			return err
		}
		from, err := parseDay(scheduleFrom)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to, err := parseDay(scheduleTo)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}

		engines, err := app.BuildEngines(cfg)
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc := service.NewAssetService(nil, nil, nil, nil, engines, cfg.Engine.Horizon.Duration, logger)
		events, err := svc.PreviewSchedule(terms, from, to)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&termsFile, "terms", "", "terms JSON file, or - for stdin")
	scheduleCmd.Flags().StringVar(&scheduleFrom, "from", "", "window start (YYYY-MM-DD or RFC3339)")
	scheduleCmd.Flags().StringVar(&scheduleTo, "to", "", "window end (YYYY-MM-DD or RFC3339)")
	_ = scheduleCmd.MarkFlagRequired("terms")
}

func readTerms(path string) (domain.Terms, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return domain.Terms{}, fmt.Errorf("open terms: %w", err)
		}
		defer f.Close()
		r = f
	}
	var terms domain.Terms
	if err := json.NewDecoder(r).Decode(&terms); err != nil {
		return domain.Terms{}, fmt.Errorf("decode terms: %w", err)
	}
	return terms, nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
