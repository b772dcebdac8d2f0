package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aretw0/authgate"
	"github.com/aretw0/authgate/internal/authority"
	"github.com/aretw0/authgate/internal/presentation/tui"
	"github.com/aretw0/authgate/pkg/adapters/memory"
	"github.com/aretw0/authgate/pkg/boundary"
	"github.com/aretw0/authgate/pkg/domain"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type demoOptions struct {
	hold    time.Duration
	pause   time.Duration
	undo    bool
	styled  bool
	key     string
	value   string
	initial string
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk one suggestion through hold, double confirm, audit and undo",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := demoOptions{styled: term.IsTerminal(int(os.Stdout.Fd()))}
		opts.hold, _ = cmd.Flags().GetDuration("hold")
		opts.pause, _ = cmd.Flags().GetDuration("pause")
		opts.undo, _ = cmd.Flags().GetBool("undo")
		opts.key, _ = cmd.Flags().GetString("key")
		opts.value, _ = cmd.Flags().GetString("value")
		opts.initial = "draft"
		return runDemo(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func runDemo(ctx context.Context, out io.Writer, opts demoOptions) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	ws := st.workspace
	if ws == nil {
		ws = memory.NewWorkspace(nil)
	}
	current, err := ws.Read(ctx, []string{opts.key})
	if err != nil {
		return err
	}
	if _, ok := current[opts.key]; !ok {
		if err := ws.Write(ctx, domain.Snapshot{opts.key: opts.initial}); err != nil {
			return err
		}
	}

	boundaryOpts := []boundary.Option{
		boundary.WithTTL(cfg.Boundary.ActionTTL),
		boundary.WithProgressInterval(cfg.Boundary.ProgressInterval),
	}
	if opts.styled {
		tui.PrintBanner(out)
		boundaryOpts = append(boundaryOpts, boundary.WithProgressFunc(func(v boundary.View) {
			fmt.Fprintf(out, "\r  hold %s", tui.ProgressBar(v.HoldProgress, 30))
		}))
	}

	coreOpts := []authgate.Option{
		authgate.WithSigner(provider),
		authgate.WithLedgerStore(st.ledger),
		authgate.WithCheckpointStore(st.checkpoints),
		authgate.WithWorkspace(ws),
		authgate.WithBoundaryOptions(boundaryOpts...),
		authgate.WithLogger(logger),
	}
	if st.locker != nil {
		coreOpts = append(coreOpts, authgate.WithLocker(st.locker))
	}
	core, err := authgate.New(ctx, domain.NewContext("demo", "rev-1", time.Now()), nil, coreOpts...)
	if err != nil {
		return err
	}

	confidence := 0.87
	b := core.Suggest(domain.Suggestion{
		Description: fmt.Sprintf("set %s to %q", opts.key, opts.value),
		Confidence:  &confidence,
		Effect:      domain.Snapshot{opts.key: opts.value},
	})
	defer b.Close()

	show := func(step string) {
		fmt.Fprintf(out, "\n> %s\n", step)
		fmt.Fprintln(out, tui.RenderView(b.View()))
	}

	if err := b.Show(ctx); err != nil {
		return err
	}
	show("show")

	if err := b.Arm(ctx); err != nil {
		return err
	}
	time.Sleep(opts.hold)
	state, err := b.Release(ctx)
	if err != nil {
		return err
	}
	show(fmt.Sprintf("release after %s", opts.hold))
	if state != domain.StateArmed {
		fmt.Fprintf(out, "hold shorter than %s: nothing was authorized\n", authority.HoldThreshold)
		return nil
	}

	if _, err := b.Confirm(ctx); err != nil {
		return err
	}
	show("confirm")
	time.Sleep(opts.pause)
	if _, err := b.Confirm(ctx); err != nil {
		return err
	}
	show("confirm again")

	after, err := ws.Read(ctx, []string{opts.key})
	if err != nil {
		return err
	}
	audit := core.Audit()
	fmt.Fprintf(out, "\n%s = %v\n", opts.key, after[opts.key])
	fmt.Fprintf(out, "ledger: %d entries, tip %s, recorded %t\n", audit.Len(), audit.Tip(), core.CanExecute(b.ActionID()))

	if !opts.undo {
		return nil
	}
	res := core.Undo(ctx, b.ActionID())
	if !res.OK {
		return res.Err
	}
	after, err = ws.Read(ctx, []string{opts.key})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "undo: %s = %v\n", opts.key, after[opts.key])
	return nil
}

func init() {
	demoCmd.Flags().Duration("hold", 500*time.Millisecond, "How long the simulated hold lasts")
	demoCmd.Flags().Duration("pause", 300*time.Millisecond, "Pause between the two confirms")
	demoCmd.Flags().Bool("undo", false, "Undo the action after it executes")
	demoCmd.Flags().String("key", "notes.txt", "Workspace key the suggestion writes")
	demoCmd.Flags().String("value", "published", "Value the suggestion writes")
	rootCmd.AddCommand(demoCmd)
}
