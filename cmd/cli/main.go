package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mmmstudio/adapters/excel"
	"mmmstudio/adapters/report"
	"mmmstudio/app"
	"mmmstudio/domain/edit"
	"mmmstudio/domain/modeling"
	"mmmstudio/internal/config"
	"mmmstudio/internal/container"
	"mmmstudio/internal/logging"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "mmmstudio-cli",
		Short:         "Inspect and edit marketing-mix models from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("model", "", "Model to act on (default: the service's active model)")

	rootCmd.AddCommand(
		newModelsCmd(),
		newVariablesCmd(),
		newCorrelateCmd(),
		newSweepCmd(),
		newScreenCmd(),
		newEditCmd(),
		newWeightedCmd(),
		newHistoryCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup builds a container from the environment; the journal is opened only
// when DATABASE_URL is set.
func setup(ctx context.Context) (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Level, true)
	if err != nil {
		return nil, err
	}
	c, err := container.New(cfg, logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
	if err != nil {
		return nil, err
	}
	if err := c.InitWithDatabase(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// resolveModel returns the --model flag or the service's active model
func resolveModel(cmd *cobra.Command, c *container.Container) (string, error) {
	model, _ := cmd.Flags().GetString("model")
	if model != "" {
		return model, nil
	}
	list, err := c.Registry.Refresh(cmd.Context())
	if err != nil {
		return "", err
	}
	if list.ActiveModel == "" {
		return "", fmt.Errorf("no --model given and the service has no active model")
	}
	return list.ActiveModel, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models known to the statistics service",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			list, err := c.Registry.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range list.Models {
				marker := " "
				if m.Name == list.ActiveModel {
					marker = "*"
				}
				fmt.Printf("%s %-30s %s\n", marker, m.Name, m.KPI)
			}
			return nil
		},
	}
}

func newVariablesCmd() *cobra.Command {
	var inModel bool

	cmd := &cobra.Command{
		Use:   "variables",
		Short: "List the variable catalog, or the features of a model with --in-model",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if inModel {
				name, err := resolveModel(cmd, c)
				if err != nil {
					return err
				}
				m, err := c.Registry.Model(cmd.Context(), name)
				if err != nil {
					return err
				}
				return printJSON(m)
			}

			if err := c.Catalog.Refresh(cmd.Context()); err != nil {
				return err
			}
			for group, names := range c.Catalog.Groups() {
				fmt.Printf("%s: %s\n", group, strings.Join(names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&inModel, "in-model", false, "Show the selected model's features instead of the catalog")
	return cmd
}

func newCorrelateCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "correlate [variables...]",
		Short: "Correlate variable series pairwise",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			model, err := resolveModel(cmd, c)
			if err != nil {
				return err
			}
			rep, err := c.Correlation.Correlate(cmd.Context(), app.CorrelationRequest{Model: model, Variables: args})
			if err != nil {
				return err
			}
			if output == "" {
				return printJSON(rep)
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := excel.NewExporter().WriteCorrelation(f, rep.Matrix, rep.Profiles); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write an .xlsx workbook instead of JSON")
	return cmd
}

func newSweepCmd() *cobra.Command {
	var rates []int

	cmd := &cobra.Command{
		Use:   "sweep [variable]",
		Short: "Test one variable at several adstock rates and rank the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			model, err := resolveModel(cmd, c)
			if err != nil {
				return err
			}
			res, err := c.Sweep.Run(cmd.Context(), app.SweepRequest{Model: model, Variable: args[0], Rates: rates})
			if err != nil {
				return err
			}

			fmt.Printf("%-24s %10s %8s %8s\n", "variant", "coef", "t", "p")
			for _, v := range res.Ranked {
				sig := ""
				if v.Significant {
					sig = " *"
				}
				fmt.Printf("%-24s %10.4f %8.3f %8.4f%s\n", v.Label, v.Coefficient, v.TStat, v.PValue, sig)
			}
			for _, f := range res.Failures {
				fmt.Printf("%-24s failed: %s\n", f.Label, f.Error)
			}
			if res.AllFailed() {
				return fmt.Errorf("every rate failed for %s", args[0])
			}
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&rates, "rates", nil, "Adstock percentages to try (default: configured sweep rates)")
	return cmd
}

func newScreenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screen [variable[:rate]...]",
		Short: "Test candidate variables against the model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseScreenArgs(args)
			if err != nil {
				return err
			}

			c, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if req.Model, err = resolveModel(cmd, c); err != nil {
				return err
			}
			res, err := c.Screening.Screen(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	return cmd
}

// parseScreenArgs reads "Name" or "Name:pct" pairs
func parseScreenArgs(args []string) (app.ScreeningRequest, error) {
	req := app.ScreeningRequest{AdstockRates: make(map[string]int)}
	for _, arg := range args {
		name, rate, found := strings.Cut(arg, ":")
		req.Variables = append(req.Variables, name)
		if !found {
			continue
		}
		pct, err := strconv.Atoi(rate)
		if err != nil {
			return req, fmt.Errorf("invalid adstock rate in %q", arg)
		}
		req.AdstockRates[name] = pct
	}
	return req, nil
}

func newEditCmd() *cobra.Command {
	var yes bool
	var rates []int
	var fixed []string

	cmd := &cobra.Command{
		Use:   "edit [add|remove|fix] [variables...]",
		Short: "Preview an edit, then commit it with --yes",
		Long: `Preview adding, removing or pinning variables on a model.

The preview is printed as a table. Without --yes the transaction is cancelled
and the model is left untouched.

Example: mmmstudio-cli edit add Search Social --rates 30,0 --yes
         mmmstudio-cli edit fix TV --coef TV=1.5 --yes`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := edit.ParseMode(args[0])
			if err != nil {
				return err
			}
			req := edit.Request{Mode: mode, Variables: args[1:]}
			for _, pct := range rates {
				req.Params.AdstockRates = append(req.Params.AdstockRates, modeling.RateFromPercent(pct))
			}
			if req.Params.FixedCoefficients, err = parseCoefficients(fixed); err != nil {
				return err
			}

			c, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if req.Model, err = resolveModel(cmd, c); err != nil {
				return err
			}
			engine, err := c.Transactions.Engine(req.Model)
			if err != nil {
				return err
			}

			tx, err := engine.BeginPreview(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Print(report.PreviewMarkdown(tx))

			if !yes {
				fmt.Println("\nnot committed (pass --yes to apply)")
				return engine.Cancel(cmd.Context())
			}
			res, err := engine.Commit(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("\ncommitted %s\n", res.Transaction.ID)
			if res.Stale {
				fmt.Println("warning: the model could not be refetched; local snapshot is stale")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Commit the previewed edit")
	cmd.Flags().IntSliceVar(&rates, "rates", nil, "Adstock percentage per added variable")
	cmd.Flags().StringSliceVar(&fixed, "coef", nil, "Pinned coefficient as NAME=VALUE")
	return cmd
}

func parseCoefficients(pairs []string) (modeling.FixedCoefficientMap, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(modeling.FixedCoefficientMap, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("coefficient %q is not NAME=VALUE", pair)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("coefficient %q: %w", pair, err)
		}
		out[name] = v
	}
	return out, nil
}

func newWeightedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weighted",
		Short: "Create or update weighted composite variables",
	}

	var policy string
	var weights []string

	create := &cobra.Command{
		Use:   "create [base-name] [components...]",
		Short: "Seed weights from significance tests and create the composite",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sign, err := app.ParseSignPolicy(policy)
			if err != nil {
				return err
			}
			overrides, err := parseCoefficients(weights)
			if err != nil {
				return err
			}

			c, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			model, err := resolveModel(cmd, c)
			if err != nil {
				return err
			}
			draft, err := c.Weighted.Seed(cmd.Context(), app.SeedRequest{
				Model: model, BaseName: args[0], Components: args[1:], Policy: sign,
			})
			if err != nil {
				return err
			}
			for name, w := range overrides {
				if err := draft.SetWeight(name, w); err != nil {
					return err
				}
			}
			name, err := c.Weighted.Create(cmd.Context(), draft)
			if err != nil {
				return err
			}
			fmt.Printf("created %s\n", name)
			return printJSON(draft)
		},
	}
	create.Flags().StringVar(&policy, "policy", "mixed", "Sign policy for seeded weights: mixed, positive or negative")
	create.Flags().StringSliceVar(&weights, "weight", nil, "Override a seeded weight as NAME=VALUE")

	var updates []string
	update := &cobra.Command{
		Use:   "update [variable]",
		Short: "Change component weights of an existing composite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := parseCoefficients(updates)
			if err != nil {
				return err
			}

			c, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			model, err := resolveModel(cmd, c)
			if err != nil {
				return err
			}
			draft, err := c.Weighted.Load(cmd.Context(), model, args[0])
			if err != nil {
				return err
			}
			for name, w := range changes {
				if err := draft.SetWeight(name, w); err != nil {
					return err
				}
			}
			if err := c.Weighted.Update(cmd.Context(), draft); err != nil {
				return err
			}
			return printJSON(draft)
		},
	}
	update.Flags().StringSliceVar(&updates, "weight", nil, "New weight as NAME=VALUE")

	cmd.AddCommand(create, update)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled edit transactions (requires DATABASE_URL)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			model, err := resolveModel(cmd, c)
			if err != nil {
				return err
			}
			entries, err := c.Transactions.History(cmd.Context(), model, limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s  %-16s %-8s %s\n", e.ClosedAt.Local().Format("2006-01-02 15:04"), e.Outcome, e.Mode, strings.Join(e.Variables, ","))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")
	return cmd
}
