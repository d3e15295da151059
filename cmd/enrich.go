package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/agent"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

type enrichFlags struct {
	domains      []string
	title        string
	locations    []string
	limit        int
	peopleSearch bool
	verify       bool
	budgetUSD    float64
}

func newEnrichCmd() *cobra.Command {
	var flags enrichFlags
	cmd := &cobra.Command{
		Use:   "enrich [domain...]",
		Short: "Run one enrichment and print the result as JSON",
		Example: `  leadenrich enrich --domains acme.fr,globex.com --title "CEO,CFO" --location France --limit 5
  leadenrich enrich acme.io --people-search --verify --budget 0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(cmd, append(flags.domains, args...), flags)
		},
	}
	cmd.Flags().StringSliceVar(&flags.domains, "domains", nil, "comma separated domains or URLs")
	cmd.Flags().StringVar(&flags.title, "title", "", `titles to keep, e.g. "CEO,CFO"`)
	cmd.Flags().StringSliceVar(&flags.locations, "location", nil, "locations to keep (repeatable)")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "max candidates per domain (0 uses the configured default)")
	cmd.Flags().BoolVar(&flags.peopleSearch, "people-search", false, "also query people-search providers")
	cmd.Flags().BoolVar(&flags.verify, "verify", false, "verify emails and drop undeliverable ones")
	cmd.Flags().Float64Var(&flags.budgetUSD, "budget", -1, "run budget in USD (negative uses the configured default)")
	return cmd
}

func runEnrich(cmd *cobra.Command, domains []string, flags enrichFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if len(domains) == 0 {
		return errors.New("at least one domain is required")
	}
	opts := agent.Options{
		UsePeopleSearch: flags.peopleSearch,
		VerifyEmails:    flags.verify,
		Title:           flags.title,
		Locations:       flags.locations,
	}
	if flags.budgetUSD >= 0 {
		limit := leads.USD(flags.budgetUSD)
		opts.Budget = &limit
	}

	// Ctrl-C ends the run early; partial results are still printed.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := appInstance.Enricher().Enrich(ctx, domains, flags.limit, opts)
	if err != nil {
		return fmt.Errorf("enrich: %w", err)
	}
	appInstance.Logger().Info("enrich command finished",
		zap.String("run_id", result.ID),
		zap.Int("leads", len(result.Leads)),
		zap.String("stop_reason", string(result.Usage.StopReason)),
	)
	return writeResult(cmd, result)
}

func writeResult(cmd *cobra.Command, result leads.RunResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

