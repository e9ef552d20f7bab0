package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-fightlens/internal/prompt"
	"github.com/ahrav/go-fightlens/internal/worker"
)

func newPromptsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect prompt templates and rule sets",
	}
	cmd.AddCommand(newPromptsListCommand(), newRuleSetsCommand())
	return cmd
}

func newPromptsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the templates of the configured pack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			cache, err := worker.InitializePrompts(cfg.Prompts, logger)
			if err != nil {
				return err
			}
			ids, err := cache.List()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDESCRIPTION")
			for _, id := range ids {
				tmpl, err := cache.Get(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\n", id, tmpl.Description)
			}
			return w.Flush()
		},
	}
}

func newRuleSetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rule-sets",
		Short: "List the known competition rule sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
			for _, rs := range prompt.RuleSets() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", rs.ID, rs.Name, rs.Description)
			}
			return w.Flush()
		},
	}
}
