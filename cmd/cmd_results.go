package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"exam-proctor-service/internal/config"
	"exam-proctor-service/internal/schema"
	"exam-proctor-service/internal/store"
)

func newResultsCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect stored exam results",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Result database path (default from configuration)")

	open := func() (*store.SQLiteSink, error) {
		path := dbPath
		if path == "" {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			path = cfg.Store.Path
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("result database: %w", err)
		}
		return store.Open(path)
	}

	cmd.AddCommand(newResultsListCommand(open))
	cmd.AddCommand(newResultsShowCommand(open))
	return cmd
}

type openStore func() (*store.SQLiteSink, error)

func newResultsListCommand(open openStore) *cobra.Command {
	var (
		participant string
		limit       int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck

			summaries, err := s.List(cmd.Context(), participant, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No results.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RESULT\tSESSION\tPARTICIPANT\tSUBMITTED\tTRIGGER\tWARNINGS\tHIGH")
			for _, sum := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
					sum.ID, sum.SessionID, sum.ParticipantID,
					sum.Timestamp.Format(time.RFC3339), sum.Trigger,
					sum.Warnings, sum.HighSeverity)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&participant, "participant", "p", "", "Only show results for this participant")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newResultsShowCommand(open openStore) *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "show <result-or-session-id>",
		Short: "Print one result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck

			result, err := s.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if validate {
				v, err := schema.New()
				if err != nil {
					return err
				}
				if err := v.Validate(result); err != nil {
					return fmt.Errorf("result %s: %w", result.ID, err)
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", false, "Check the result against the result schema")
	return cmd
}
