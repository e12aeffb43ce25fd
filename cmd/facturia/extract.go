package main

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/facturia/facturia/internal/app"
	"github.com/facturia/facturia/internal/invoice"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <text>",
		Short: "Extract and normalize a draft from free text without submitting it",
		Example: `  facturia extract "2 litros de lavandina a 800"
  EXTRACTOR_PROVIDER=openai facturia extract "corte de pelo 5000, transferencia"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg)
			ext, err := newExtractor(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if ext == nil {
				return errors.New("extraction is disabled (EXTRACTOR_PROVIDER=none)")
			}

			partial, err := ext.Extract(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			draft := invoice.Normalize(partial, time.Now().In(cfg.Location()))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(draft)
		},
	}
}
