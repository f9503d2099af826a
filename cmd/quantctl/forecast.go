package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/irfndi/celebrum-quant/internal/config"
	"github.com/irfndi/celebrum-quant/internal/database"
	"github.com/irfndi/celebrum-quant/internal/logging"
	"github.com/irfndi/celebrum-quant/internal/models"
	"github.com/irfndi/celebrum-quant/internal/quant"
	"github.com/irfndi/celebrum-quant/internal/services"
)

func forecastCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast from a JSON request file and print the result",
		Example: `  quantctl forecast --input request.json
  cat request.json | quantctl forecast --input -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			req, err := readRequest(cmd.InOrStdin(), input)
			if err != nil {
				return report(out, err)
			}

			cfg, err := config.Load()
			if err != nil {
				return report(out, err)
			}
			engine, err := quant.NewEngine(cfg.Quant.EngineParams())
			if err != nil {
				return report(out, err)
			}

			in, err := req.ToInput()
			if err != nil {
				return report(out, err)
			}
			forecast, err := engine.Run(in)
			if err != nil {
				return report(out, err)
			}
			if err := writeJSON(out, models.NewForecastResult(forecast)); err != nil {
				return report(out, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "request file, or - for stdin")
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one forecast cycle over stored price history and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := config.Load()
			if err != nil {
				return report(out, err)
			}
			logger := cliLogger(cfg)

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Quant.CycleTimeout)
			defer cancel()

			db, err := database.NewPostgresConnection(ctx, cfg.Database)
			if err != nil {
				return report(out, err)
			}
			defer db.Close()

			svc, err := services.NewForecastService(cfg.Quant, database.NewSeriesRepository(db), nil, nil, nil, logger)
			if err != nil {
				return report(out, err)
			}
			result, err := svc.Run(ctx)
			if err != nil {
				return report(out, err)
			}
			return writeJSON(out, result)
		},
	}
}

// cliLogger keeps stdout clean for the JSON result.
func cliLogger(cfg *config.Config) *logrus.Logger {
	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	logger.SetOutput(os.Stderr)
	return logger
}

func readRequest(stdin io.Reader, path string) (*models.ForecastRequest, error) {
	r := stdin
	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var req models.ForecastRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request JSON: %w", err)
	}
	return &req, nil
}

func report(out io.Writer, err error) error {
	_ = writeJSON(out, models.NewErrorRecord(err))
	return errReported
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	return enc.Encode(v)
}
