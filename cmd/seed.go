package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/seed"
)

var seedClear bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load seed companies and index them into their seed namespaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "seed")
		if err != nil {
			return err
		}
		defer env.Close()

		companies, err := env.Source.Load(ctx)
		if err != nil {
			return eris.Wrap(err, "load seed companies")
		}
		companies, err = seed.Validate(companies)
		if err != nil {
			return err
		}
		for _, c := range companies {
			if err := env.Store.SaveCompany(ctx, c); err != nil {
				return eris.Wrapf(err, "save company %s", c.ID)
			}
		}

		n, err := env.Indexer().IndexAll(ctx, companies, seedClear)
		if err != nil {
			return err
		}

		zap.L().Info("seed complete",
			zap.Int("companies", len(companies)),
			zap.Int("documents", n),
			zap.Bool("cleared", seedClear),
		)
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Indexed %d documents for %d companies", n, len(companies))))
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedClear, "clear", true, "clear each seed namespace before indexing; --clear=false keeps documents no longer in the seed")
	rootCmd.AddCommand(seedCmd)
}
