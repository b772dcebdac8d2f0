package main

import (
	"fmt"
	"os"

	"github.com/aretw0/authgate/internal/presentation/tui"
	"github.com/aretw0/authgate/pkg/ledger"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the audit ledger",
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute every hash and signature in the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, st, err := openLedger(cmd.Context(), cfg)
		if l == nil {
			return err
		}
		defer st.close()
		if err != nil {
			return fmt.Errorf("ledger compromised: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d entries, tip %s\n", l.Len(), l.Tip())
		return nil
	},
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the ledger as JSON or YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		l, st, err := openLedger(cmd.Context(), cfg)
		if l == nil {
			return err
		}
		defer st.close()
		if err != nil {
			logger.Warn("exporting a ledger that failed verification", "err", err)
		}

		w := cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		return l.Export(cmd.Context(), w, ledger.Format(format))
	},
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Render a human-readable audit report",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, st, verifyErr := openLedger(cmd.Context(), cfg)
		if l == nil {
			return verifyErr
		}
		defer st.close()

		styled := term.IsTerminal(int(os.Stdout.Fd()))
		render, err := tui.NewRenderer(styled)
		if err != nil {
			return err
		}
		out, err := render(tui.LedgerReport(l.Document(), verifyErr))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var ledgerSealCmd = &cobra.Command{
	Use:   "seal",
	Short: "Seal the ledger; no further entries can be appended",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, st, err := openLedger(cmd.Context(), cfg)
		if l == nil {
			return err
		}
		defer st.close()
		if err := l.Seal(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sealed at %d entries\n", l.Len())
		return nil
	},
}

func init() {
	ledgerExportCmd.Flags().String("format", string(ledger.FormatJSON), "Output format: json or yaml")
	ledgerExportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")

	ledgerCmd.AddCommand(ledgerVerifyCmd, ledgerExportCmd, ledgerShowCmd, ledgerSealCmd)
	rootCmd.AddCommand(ledgerCmd)
}
