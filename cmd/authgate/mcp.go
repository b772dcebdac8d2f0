package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/authgate/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose the audit ledger to MCP clients",
	Long:  `Starts a Model Context Protocol server with read-only tools: verify_ledger, get_entry and ledger_tip.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sse, _ := cmd.Flags().GetBool("sse")
		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.MCP.Port
		}

		l, st, err := openLedger(cmd.Context(), cfg)
		if l == nil {
			return err
		}
		defer st.close()
		if err != nil {
			logger.Error("ledger failed verification", "err", err)
		}

		server := mcp.NewServer(l, mcp.WithLogger(logger))
		if !sse {
			return server.ServeStdio()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.ServeSSE(ctx, port)
	},
}

func init() {
	mcpCmd.Flags().Bool("sse", false, "Serve over SSE instead of stdio")
	mcpCmd.Flags().Int("port", 0, "SSE port (default mcp.port from config)")
	rootCmd.AddCommand(mcpCmd)
}
