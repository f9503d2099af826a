package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/irfndi/celebrum-quant/internal/config"
	"github.com/irfndi/celebrum-quant/internal/database"
	"github.com/irfndi/celebrum-quant/internal/quant"
)

func ingestCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Store the series of a JSON request file in the price history table",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			in, err := req.ToInput()
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := cliLogger(cfg)

			db, err := database.NewPostgresConnection(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := database.NewSeriesRepository(db)
			if err := repo.EnsureSchema(cmd.Context()); err != nil {
				return err
			}

			for _, s := range append([]quant.PriceSeries{in.Target}, in.Macros...) {
				n, err := repo.SaveSeries(cmd.Context(), s)
				if err != nil {
					return fmt.Errorf("ingest %s: %w", s.Ticker(), err)
				}
				logger.WithFields(logrus.Fields{"ticker": s.Ticker(), "rows": n}).Info("Series stored")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "request file, or - for stdin")
	return cmd
}
