package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/events"
	"github.com/exposechain/exposechain/internal/model"
	"github.com/exposechain/exposechain/internal/service"
	"github.com/exposechain/exposechain/internal/store"
	"github.com/exposechain/exposechain/internal/threat"
	"github.com/exposechain/exposechain/pkg/client"
)

var (
	scanFormat string
	serverURL  string
	apiToken   string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a one-off scan without starting the server",
}

func init() {
	scanCmd.PersistentFlags().StringVar(&scanFormat, "format", "text", "Output format: text or json")
	scanCmd.PersistentFlags().StringVar(&serverURL, "server", "", "run the scan on this exposechain server instead of locally (e.g. http://localhost:8000)")
	scanCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("EXPOSECHAIN_TOKEN"), "operator token for --server")
	scanDomainCmd.Flags().StringVar(&scanType, "type", "quick", "Scan type: quick or full")
	scanCmd.AddCommand(scanDomainCmd, scanClusterCmd)
}

// remoteClient returns an API client when --server is set.
func remoteClient() (*client.Client, error) {
	if serverURL == "" {
		return nil, nil
	}
	var opts []client.Option
	if apiToken != "" {
		opts = append(opts, client.WithBearerToken(apiToken))
	}
	return client.New(serverURL, opts...)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ── scan domain ──────────────────────────────────────────────────────────────

var scanType string

var scanDomainCmd = &cobra.Command{
	Use:   "domain <target>",
	Short: "Scan a domain or IP and print its threat assessment",
	Args:  cobra.ExactArgs(1),
	RunE:  runScanDomain,
}

func runScanDomain(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	remote, err := remoteClient()
	if err != nil {
		return err
	}
	if remote != nil {
		resp, err := remote.Scan(ctx, args[0], scanType)
		if err != nil {
			return err
		}
		return printScanResponse(cmd.OutOrStdout(), resp)
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cols, err := newCollectors(cfg, logger)
	if err != nil {
		return err
	}
	defer cols.Close()

	svc := service.NewScanService(newScanner(cols, cfg.Scan.Concurrency, logger), threat.NewPredictor(logger), store.NewMemory(), events.Noop{}, logger)
	resp, err := svc.Scan(ctx, model.ScanRequest{Target: args[0], ScanType: scanType})
	if err != nil {
		return err
	}

	return printScanResponse(cmd.OutOrStdout(), resp)
}

func printScanResponse(w io.Writer, resp *model.ScanResponse) error {
	if scanFormat == "json" {
		return writeJSON(w, resp)
	}
	return printScanText(w, resp)
}

func printScanText(w io.Writer, resp *model.ScanResponse) error {
	fmt.Fprintf(w, "Target:      %s (%s)\n", resp.Target, resp.TargetType)
	fmt.Fprintf(w, "Scan ID:     %s\n", resp.ScanID)
	fmt.Fprintf(w, "Result:      %s\n", resp.Message)

	r := resp.ThreatReport
	if r == nil {
		return nil
	}
	fmt.Fprintf(w, "Risk score:  %d/100\n", r.OverallRiskScore)
	fmt.Fprintf(w, "Level:       %s\n", r.ThreatLevel)
	fmt.Fprintf(w, "Category:    %s\n", r.ThreatCategory.Label())
	fmt.Fprintf(w, "Confidence:  %.0f%%\n", r.Confidence*100)
	fmt.Fprintf(w, "\n%s\n", r.Narrative)

	if len(r.Factors) > 0 {
		fmt.Fprintln(w, "\nFactors:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, f := range r.Factors {
			fmt.Fprintf(tw, "  %+.0f\t%s\t%s\n", f.Points, f.Severity, f.Description)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if len(r.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
	return nil
}

// ── scan cluster ─────────────────────────────────────────────────────────────

var scanClusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Discover cluster and cloud exposures and print them ranked by risk",
	Args:  cobra.NoArgs,
	RunE:  runScanCluster,
}

func runScanCluster(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	remote, err := remoteClient()
	if err != nil {
		return err
	}
	if remote != nil {
		return runRemoteCluster(ctx, cmd.OutOrStdout(), remote)
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg.K8s.Enabled = true
	reg, err := newRegistry(ctx, cfg, logger)
	if err != nil {
		if len(reg.Names()) == 0 {
			return err
		}
		logger.Warn("discovery source unavailable", zap.Error(err))
	}

	st := store.NewMemory()
	svc := service.NewExposureService(reg, st, events.Noop{}, logger)
	rec, err := svc.Discover(ctx, nil)
	if rec == nil {
		return err
	}
	if err != nil {
		logger.Warn("discovery incomplete", zap.Error(err))
	}

	exposures, lerr := svc.Exposures(ctx, rec.ID)
	if lerr != nil {
		return lerr
	}
	return printDiscovery(cmd.OutOrStdout(), rec, exposures)
}

// runRemoteCluster triggers discovery on a server and prints its result.
func runRemoteCluster(ctx context.Context, w io.Writer, remote *client.Client) error {
	rec, err := remote.Discover(ctx)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Scan != nil {
			return printDiscovery(w, apiErr.Scan, nil)
		}
		return err
	}
	exposures, err := remote.Exposures(ctx, rec.ID)
	if err != nil {
		return err
	}
	return printDiscovery(w, rec, exposures)
}

func printDiscovery(w io.Writer, rec *model.ScanRecord, exposures []*model.Exposure) error {
	sort.SliceStable(exposures, func(i, j int) bool {
		return exposures[i].RiskScore > exposures[j].RiskScore
	})

	if scanFormat == "json" {
		if err := writeJSON(w, map[string]any{"scan": rec, "exposures": exposures}); err != nil {
			return err
		}
	} else if err := printExposureTable(w, rec, exposures); err != nil {
		return err
	}
	if rec.Status == model.ScanStatusFailed {
		return fmt.Errorf("discovery failed: %s", rec.Error)
	}
	return nil
}

func printExposureTable(w io.Writer, rec *model.ScanRecord, exposures []*model.Exposure) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tSEVERITY\tNAMESPACE\tNAME\tADDRESS\tPORT\tTLS")
	for _, e := range exposures {
		name := e.ServiceName
		if e.IngressName != "" {
			name = e.IngressName
		}
		addr := e.Domain
		if addr == "" {
			addr = e.IPAddress
		}
		port := "-"
		if e.Port != nil {
			port = fmt.Sprint(*e.Port)
		}
		fmt.Fprintf(tw, "%.2f\t%s\t%s\t%s\t%s\t%s\t%t\n",
			e.RiskScore, e.Severity, e.Namespace, name, addr, port, e.TLSEnabled)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if s := rec.RiskSummary; s != nil {
		fmt.Fprintf(w, "\n%d exposures: %d critical, %d high, %d medium, %d low, %d info (average %.2f)\n",
			s.TotalExposures, s.Critical, s.High, s.Medium, s.Low, s.Info, s.AverageScore)
	}
	if rec.Error != "" {
		fmt.Fprintf(w, "warning: %s\n", strings.TrimSpace(rec.Error))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
