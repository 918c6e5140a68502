package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dex/internal/catalog/models"
	"dex/internal/catalog/providers"
	"dex/internal/catalog/providers/pokeapi"
	"dex/internal/catalog/query"
	"dex/internal/catalog/service"
	"dex/internal/platform/config"
	"dex/internal/platform/logger"
)

// BrowseOptions holds flags for the browse command.
type BrowseOptions struct {
	*RootOptions
	Query       string
	BaseURL     string
	Limit       int
	Concurrency int
	Timeout     time.Duration // per fetch
	Wait        time.Duration // whole run; zero waits until settled
	IDSearch    []string      // categories whose queries also match IDs
}

// BrowseResult is the JSON payload of a browse.
type BrowseResult struct {
	Category string                `json:"category"`
	Query    string                `json:"query"`
	RunID    uuid.UUID             `json:"run_id"`
	Status   models.RunStatus      `json:"status"`
	Ledger   models.Ledger         `json:"ledger"`
	Items    []models.DetailRecord `json:"items"`
}

// NewBrowseCommand creates the browse command. Flag defaults come from the
// same environment variables the server reads.
func NewBrowseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BrowseOptions{RootOptions: rootOpts}
	defaults := config.FromEnv()

	cmd := &cobra.Command{
		Use:   "browse <category>",
		Short: "Aggregate a catalog and print its filtered view",
		Long: `Lists every entry of a category, fetches all details concurrently and
prints the entries whose name contains the query, ordered by name.

Example:
  dexctl browse move --query ow
  dexctl browse move --concurrency 32 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBrowse(ctx, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "case-insensitive name filter")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", defaults.PokeAPI.BaseURL, "PokeAPI base URL")
	cmd.Flags().IntVar(&opts.Limit, "limit", defaults.PokeAPI.ListingLimit, "maximum entries to list")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", defaults.PokeAPI.FetchConcurrency, "detail fetches in flight")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", defaults.PokeAPI.FetchTimeout, "timeout per detail fetch")
	cmd.Flags().StringSliceVar(&opts.IDSearch, "id-search", defaults.IDSearch, "categories whose queries also match entry IDs")
	cmd.Flags().DurationVar(&opts.Wait, "wait", 0, "give up and print partial results after this long (0 waits until settled)")

	return cmd
}

func runBrowse(ctx context.Context, opts *BrowseOptions, category string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr()}
	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	log := logger.NewText(cmd.ErrOrStderr(), level)

	if opts.Limit <= 0 || opts.Concurrency <= 0 || opts.Timeout <= 0 {
		return WrapExitError(ExitCommandError, "invalid flags", fmt.Errorf("--limit, --concurrency and --timeout must be positive"))
	}
	client, err := pokeapi.New(opts.BaseURL,
		pokeapi.WithLimit(opts.Limit),
		pokeapi.WithTimeout(opts.Timeout),
		pokeapi.WithLogger(log),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --base-url", err)
	}

	catalogOpts := []service.Option{
		service.WithLogger(log),
		service.WithConcurrency(opts.Concurrency),
	}
	if slices.Contains(opts.IDSearch, category) {
		catalogOpts = append(catalogOpts, service.WithIDSearch())
	}
	catalog := service.New(category, client, client, catalogOpts...)

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if opts.Wait > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Wait)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	updates, unsubscribe := catalog.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- catalog.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	catalog.OnQueryChanged(opts.Query)
	runID, err := catalog.Refresh(runCtx)
	if err != nil {
		_ = out.Error(string(providers.GetCategory(err)), err.Error())
		return WrapExitError(ExitFailure, "listing failed", err)
	}

	res, waitErr := awaitSettled(runCtx, updates, runID, catalog)
	result := BrowseResult{
		Category: category,
		Query:    res.Query,
		RunID:    runID,
		Status:   res.Snapshot.Status(),
		Ledger:   res.Snapshot.Ledger,
		Items:    res.Items,
	}
	if err := out.Success(result, func(w io.Writer) error { return renderText(w, result) }); err != nil {
		return err
	}
	if waitErr != nil {
		return WrapExitError(ExitFailure, "run did not settle", waitErr)
	}
	return nil
}

// awaitSettled blocks until the view of runID is settled. On cancellation it
// returns the latest partial view with the context error.
func awaitSettled(ctx context.Context, updates <-chan query.Result, runID uuid.UUID, catalog *service.Catalog) (query.Result, error) {
	for {
		select {
		case res, ok := <-updates:
			if !ok {
				return catalog.Current(), context.Canceled
			}
			if res.Snapshot.RunID == runID && res.Snapshot.Status() == models.RunSettled {
				return res, nil
			}
		case <-ctx.Done():
			return catalog.Current(), ctx.Err()
		}
	}
}

func renderText(w io.Writer, r BrowseResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tPOWER\tACCURACY")
	for _, item := range r.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", item.Name, item.Category, item.Power, item.Accuracy)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d shown, %d fetched, %d failed of %d (%s)\n",
		len(r.Items), r.Ledger.Succeeded(), r.Ledger.Failed, r.Ledger.Total, r.Status)
	return err
}
