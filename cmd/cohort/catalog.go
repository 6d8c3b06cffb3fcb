package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arloliu/cohort/internal/design"
	"github.com/arloliu/cohort/types"
)

var catalogDesigns = []types.Design{types.DesignOA32, types.DesignFullFactorial}

func newCatalogCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the scenario catalog and its condition sets",
	}

	cmd.AddCommand(newCatalogSeedCommand(opts))
	cmd.AddCommand(newCatalogListCommand(opts))
	cmd.AddCommand(newCatalogVerifyCommand(opts))

	return cmd
}

func newCatalogSeedCommand(opts *rootOptions) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "seed <scenario[:criterion]>...",
		Short: "Write the scenario catalog and generate condition sets",
		Long: `Write the scenario catalog and generate OA-32 and full factorial
condition sets for every scenario.

An optional criterion after a colon sets the scenario's target criterion,
for example "s1:recommendation". Existing condition sets are kept unless
--overwrite is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios, err := parseScenarios(args)
			if err != nil {
				return err
			}

			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			if err := rt.catalog.Save(ctx, scenarios); err != nil {
				return err
			}

			gen := design.NewGenerator(rt.store, opts.logger)
			for _, sc := range scenarios {
				for _, d := range catalogDesigns {
					var set types.ConditionSet
					if overwrite {
						set, err = gen.Overwrite(ctx, sc.ID, d)
					} else {
						set, err = gen.Ensure(ctx, sc.ID, d)
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d conditions\n", sc.ID, d, len(set.Conditions))
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "regenerate condition sets that already exist")

	return cmd
}

func newCatalogListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			scenarios, err := rt.catalog.ListScenarios(cmd.Context())
			if err != nil {
				return err
			}
			for _, sc := range scenarios {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", sc.ID, sc.TargetCriterion)
			}

			return nil
		},
	}
}

func newCatalogVerifyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check stored condition sets against their designs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := design.CheckStrength2(design.OA32()); err != nil {
				return fmt.Errorf("built-in OA-32: %w", err)
			}

			ctx := cmd.Context()
			scenarios, err := rt.catalog.ListScenarios(ctx)
			if err != nil {
				return err
			}

			gen := design.NewGenerator(rt.store, opts.logger)
			var errs []error
			for _, sc := range scenarios {
				for _, d := range catalogDesigns {
					status := "ok"
					if err := gen.Verify(ctx, sc.ID, d); err != nil {
						status = err.Error()
						errs = append(errs, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", sc.ID, d, status)
				}
			}

			return errors.Join(errs...)
		},
	}
}

// parseScenarios turns "id" or "id:criterion" arguments into catalog entries.
func parseScenarios(args []string) ([]types.Scenario, error) {
	seen := make(map[string]bool, len(args))
	scenarios := make([]types.Scenario, 0, len(args))
	for _, arg := range args {
		id, criterion, _ := strings.Cut(arg, ":")
		if id == "" {
			return nil, fmt.Errorf("%w: empty scenario id in %q", types.ErrInvalidArgument, arg)
		}
		if criterion != "" {
			if _, ok := design.Levels(criterion); !ok {
				return nil, fmt.Errorf("%w: unknown criterion %q for %s", types.ErrInvalidArgument, criterion, id)
			}
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate scenario %s", types.ErrInvalidArgument, id)
		}
		seen[id] = true
		scenarios = append(scenarios, types.Scenario{ID: id, TargetCriterion: criterion})
	}

	return scenarios, nil
}
