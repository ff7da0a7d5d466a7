package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/exposechain/exposechain/internal/risk"
)

var (
	scoreFile   string
	scoreFormat string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a single exposure described in a YAML or JSON file",
	Example: `  exposechain score -f exposure.yaml
  echo '{"environment":"production","port":22}' | exposechain score -f -`,
	Args: cobra.NoArgs,
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().StringVarP(&scoreFile, "file", "f", "", "exposure file (YAML or JSON, - for stdin)")
	scoreCmd.Flags().StringVar(&scoreFormat, "format", "text", "Output format: text or json")
}

func runScore(cmd *cobra.Command, args []string) error {
	data, err := readInput(scoreFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	e, err := parseExposure(data)
	if err != nil {
		return err
	}

	res := risk.NewScorer().Score(e)
	out := cmd.OutOrStdout()
	if scoreFormat == "json" {
		return writeJSON(out, map[string]any{
			"risk_score":   res.Score,
			"severity":     res.Severity(),
			"risk_factors": res.Factors,
			"details":      res.Details,
		})
	}
	return printScore(out, res)
}

func printScore(w io.Writer, res risk.Result) error {
	fmt.Fprintf(w, "Risk score: %.2f (%s)\n\n", res.Score, res.Severity())

	names := make([]string, 0, len(res.Factors))
	for n := range res.Factors {
		names = append(names, n)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FACTOR\tSCORE\tDETAIL")
	for _, n := range names {
		fmt.Fprintf(tw, "%s\t%.1f\t%s\n", n, res.Factors[n], res.Details[n])
	}
	return tw.Flush()
}
