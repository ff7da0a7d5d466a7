package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exposechain/exposechain/internal/service"
)

var (
	chainFile   string
	chainDomain string
	chainFormat string
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Build exposure chains from a file of discovery records",
	Long: `chain reads a YAML or JSON list of exposure records and prints every
path from an entry point (domain, load balancer or ingress) down to the pods
behind it.`,
	Example: `  exposechain chain -f records.yaml
  kubectl get ... | exposechain chain -f - --domain api.example.com`,
	Args: cobra.NoArgs,
	RunE: runChain,
}

func init() {
	chainCmd.Flags().StringVarP(&chainFile, "file", "f", "", "records file (YAML or JSON, - for stdin)")
	chainCmd.Flags().StringVar(&chainDomain, "domain", "", "only print chains starting at this domain")
	chainCmd.Flags().StringVar(&chainFormat, "format", "text", "Output format: text or json")
}

func runChain(cmd *cobra.Command, args []string) error {
	data, err := readInput(chainFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	records, err := parseRecords(data)
	if err != nil {
		return err
	}

	res := service.BuildChains(records, chainDomain)
	out := cmd.OutOrStdout()
	if chainFormat == "json" {
		return writeJSON(out, res)
	}
	printChains(out, res)
	return nil
}

func printChains(w io.Writer, res *service.ChainResult) {
	if len(res.Chains) == 0 {
		fmt.Fprintln(w, "no chains found")
	}
	for i, c := range res.Chains {
		parts := make([]string, len(c))
		for j, n := range c {
			parts[j] = fmt.Sprintf("%s:%s", n.Type, n.Name)
		}
		fmt.Fprintf(w, "%3d. %s\n", i+1, strings.Join(parts, " -> "))
	}
	fmt.Fprintf(w, "\n%d chains, %d nodes, %d edges\n",
		len(res.Chains), res.Stats.TotalNodes, res.Stats.TotalEdges)
}
