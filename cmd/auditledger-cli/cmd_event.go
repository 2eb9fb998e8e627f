package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/auditledger/client"
)

func newEventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Record and inspect audit events",
	}
	cmd.AddCommand(eventAppendCmd())
	cmd.AddCommand(eventListCmd())
	cmd.AddCommand(eventProofCmd())
	return cmd
}

func eventAppendCmd() *cobra.Command {
	var (
		req         client.AppendEventRequest
		detailsJSON string
	)
	cmd := &cobra.Command{
		Use:   "append <event-type> <entity-id>",
		Short: "Record an audit event",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			req.EventType = args[0]
			req.EntityID = args[1]
			if detailsJSON != "" {
				dec := json.NewDecoder(strings.NewReader(detailsJSON))
				dec.UseNumber()
				if err := dec.Decode(&req.Details); err != nil {
					fatal("parse details", err)
				}
			}
			res, err := apiClient.Events.Append(context.Background(), &req)
			if err != nil {
				fatal("append event", err)
			}
			if res.Warning != "" {
				fmt.Fprintf(os.Stderr, "Warning: %s\n", res.Warning)
			}
			output(res, res.Event.EventID)
		},
	}
	cmd.Flags().StringVar(&req.Description, "description", "", "Human readable description")
	cmd.Flags().StringVar(&detailsJSON, "details", "", "Details as a JSON object")
	cmd.Flags().StringVar(&req.Severity, "severity", "", "LOW|MEDIUM|HIGH|CRITICAL (default MEDIUM)")
	cmd.Flags().StringVar(&req.UserID, "user", "", "Acting user ID")
	cmd.Flags().StringVar(&req.AgentID, "agent", "", "Acting agent ID")
	cmd.Flags().StringVar(&req.IPAddress, "ip", "", "Client IP address")
	cmd.Flags().StringVar(&req.UserAgent, "user-agent", "", "Client user agent")
	cmd.Flags().StringSliceVar(&req.ComplianceTags, "tag", nil, "Extra compliance tag (repeatable)")
	return cmd
}

func eventListCmd() *cobra.Command {
	var (
		opts       client.EventListOptions
		start, end string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events matching the given filters",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			var err error
			if opts.Start, err = parseTimeFlag(start); err != nil {
				fatal("parse --start", err)
			}
			if opts.End, err = parseEndFlag(end); err != nil {
				fatal("parse --end", err)
			}
			events, more, err := apiClient.Events.List(context.Background(), &opts)
			if err != nil {
				fatal("list events", err)
			}
			rows := make([][]string, len(events))
			for i, ev := range events {
				rows[i] = []string{ev.EventID, ev.Timestamp.Format(time.RFC3339), ev.EventType, ev.EntityID, ev.Severity}
			}
			outputTable(map[string]any{"events": events, "has_more": more},
				[]string{"EVENT_ID", "TIMESTAMP", "TYPE", "ENTITY", "SEVERITY"}, rows, 0)
		},
	}
	cmd.Flags().StringVar(&opts.EntityID, "entity", "", "Filter by entity ID")
	cmd.Flags().StringVar(&opts.EventType, "type", "", "Filter by event type")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "Filter by user ID")
	cmd.Flags().StringVar(&opts.AgentID, "agent", "", "Filter by agent ID")
	cmd.Flags().StringVar(&opts.ComplianceTag, "tag", "", "Filter by compliance tag")
	cmd.Flags().StringVar(&start, "start", "", "Earliest timestamp (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Latest timestamp (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "Max results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Results to skip")
	return cmd
}

func eventProofCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "proof <event-id>",
		Short: "Fetch the Merkle inclusion proof of a sealed event",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			proof, err := apiClient.Events.Proof(context.Background(), args[0])
			if err != nil {
				fatal("get proof", err)
			}
			if check && !proof.Verify() {
				output(proof, "invalid")
				fatal("verify proof", fmt.Errorf("path does not reproduce merkle root %s", proof.MerkleRoot))
			}
			output(proof, strconv.FormatUint(proof.BlockNumber, 10))
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Recompute the root locally and fail if it does not match")
	return cmd
}

// parseEndFlag is parseTimeFlag for --end: a bare date runs to the end of that day.
func parseEndFlag(s string) (*time.Time, error) {
	t, err := parseTimeFlag(s)
	if err != nil || t == nil {
		return t, err
	}
	if _, dateErr := time.Parse(time.DateOnly, s); dateErr == nil {
		end := t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		return &end, nil
	}
	return t, nil
}

// parseTimeFlag accepts RFC3339 timestamps or bare dates. Empty means unset.
func parseTimeFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q: want RFC3339 or YYYY-MM-DD", s)
}
