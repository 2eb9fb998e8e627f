package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/auditledger/client"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the integrity of the whole chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := apiClient.Chain.Verify(context.Background())
			if err != nil {
				fatal("verify chain", err)
			}
			rows := make([][]string, len(report.Errors))
			for i, e := range report.Errors {
				rows[i] = []string{strconv.FormatUint(e.BlockNumber, 10), e.Kind, e.Message}
			}
			switch flagFmt {
			case "table":
				fmt.Printf("valid: %t  blocks: %d  events: %d\n", report.IsValid, report.TotalBlocks, report.TotalEvents)
				if len(rows) > 0 {
					formatTable([]string{"BLOCK", "KIND", "MESSAGE"}, rows)
				}
			default:
				output(report, strconv.FormatBool(report.IsValid))
			}
			if !report.IsValid {
				return fmt.Errorf("chain verification found %d errors", len(report.Errors))
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show chain length, pending events and the tip block",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			status, err := apiClient.Chain.Status(context.Background())
			if err != nil {
				fatal("chain status", err)
			}
			output(status, status.Tip.BlockHash)
		},
	}
}

func newReportCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "report <standard>",
		Short: "Generate a compliance report (GDPR, HIPAA, SOX, PCI-DSS)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			from, err := parseTimeFlag(start)
			if err != nil {
				fatal("parse --start", err)
			}
			to, err := parseEndFlag(end)
			if err != nil {
				fatal("parse --end", err)
			}
			report, err := apiClient.Reports.Generate(context.Background(),
				strings.ToUpper(args[0]), derefTime(from), derefTime(to))
			if err != nil {
				fatal("generate report", err)
			}
			if flagFmt == "table" {
				rows := make([][]string, 0, len(report.EventSummary))
				for typ, n := range report.EventSummary {
					rows = append(rows, []string{typ, strconv.Itoa(n)})
				}
				fmt.Printf("%s  %s .. %s  total: %d  chain valid: %t\n", report.ComplianceStandard,
					report.ReportPeriod.Start.Format(time.DateOnly), report.ReportPeriod.End.Format(time.DateOnly),
					report.TotalEvents, report.BlockchainIntegrity.IsValid)
				formatTable([]string{"EVENT_TYPE", "COUNT"}, rows)
				return
			}
			output(report, strconv.Itoa(report.TotalEvents))
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Period start (default: 30 days ago)")
	cmd.Flags().StringVar(&end, "end", "", "Period end (default: now)")
	return cmd
}

func newHealthCmd() *cobra.Command {
	var ready bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server liveness, or readiness with --ready",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if ready {
				resp, err := apiClient.Ready(context.Background())
				if err != nil && !client.IsUnavailable(err) {
					fatal("readiness", err)
				}
				output(resp, resp.Status)
				if err != nil {
					os.Exit(1)
				}
				return
			}
			resp, err := apiClient.Health(context.Background())
			if err != nil {
				fatal("health", err)
			}
			output(resp, resp.Status)
		},
	}
	cmd.Flags().BoolVar(&ready, "ready", false, "Check readiness of dependencies instead of liveness")
	return cmd
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
