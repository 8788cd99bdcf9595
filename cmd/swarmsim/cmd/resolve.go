package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/swarm-simulator/scenario"
	"github.com/signalsfoundry/swarm-simulator/variation"
)

func newResolveCmd(a *app) *cobra.Command {
	var showSeeds bool
	c := &cobra.Command{
		Use:   "resolve <scenario.yaml>",
		Short: "Print the variation sequence of a scenario",
		Long: `Resolve expands the looping variables of a scenario into its ordered
variation sequence and prints one row per run without executing anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, seq, err := loadSequence(a, args[0])
			if err != nil {
				return err
			}
			return printSequence(cmd, f, seq, showSeeds)
		},
	}
	c.Flags().BoolVar(&showSeeds, "seeds", false, "include the seed drawn for each random variable")
	return c
}

// loadSequence loads a scenario file and resolves it.
func loadSequence(a *app, path string) (*scenario.File, *variation.Sequence, error) {
	f, err := scenario.Load(path)
	if err != nil {
		return nil, nil, err
	}
	sc, err := f.Scenario()
	if err != nil {
		return nil, nil, err
	}
	seq, err := variation.Resolve(sc, variation.WithLogger(a.log))
	if err != nil {
		return nil, nil, err
	}
	return f, seq, nil
}

func printSequence(cmd *cobra.Command, f *scenario.File, seq *variation.Sequence, showSeeds bool) error {
	out := cmd.OutOrStdout()
	title := color.New(color.Bold).SprintFunc()
	dim := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(out, "%s  %d combinations x %d repetitions = %d runs\n",
		title(f.Name), seq.Combinations(), seq.Repetitions(), seq.Len())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "RUN\tCOMB\tREP\tMASTER SEED\tRUN SEED\tPARAMS"
	if showSeeds {
		header += "\tSEEDS"
	}
	fmt.Fprintln(w, header)
	for i, v := range seq.All() {
		row := fmt.Sprintf("%d\t%d\t%d\t%d\t%s\t%s",
			i, v.Index(), v.Repetition(), v.MasterSeed(), dim(fmt.Sprintf("%#x", v.RunSeed())), v.Params())
		if showSeeds {
			seeds := make([]string, 0, len(v.SeedNames()))
			for _, name := range v.SeedNames() {
				s, _ := v.Seed(name)
				seeds = append(seeds, fmt.Sprintf("%s=%d", name, s))
			}
			row += "\t" + strings.Join(seeds, " ")
		}
		fmt.Fprintln(w, row)
	}
	return w.Flush()
}
