package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newBlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Inspect and seal blocks",
	}
	cmd.AddCommand(blockListCmd())
	cmd.AddCommand(blockGetCmd())
	cmd.AddCommand(blockSealCmd())
	return cmd
}

func blockListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List block headers, genesis first",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			headers, more, err := apiClient.Blocks.List(context.Background(), limit, offset)
			if err != nil {
				fatal("list blocks", err)
			}
			rows := make([][]string, len(headers))
			for i, h := range headers {
				rows[i] = []string{
					strconv.FormatUint(h.BlockNumber, 10),
					h.Timestamp.Format(time.RFC3339),
					strconv.Itoa(h.EventCount),
					short(h.BlockHash),
				}
			}
			outputTable(map[string]any{"blocks": headers, "has_more": more},
				[]string{"NUMBER", "TIMESTAMP", "EVENTS", "HASH"}, rows, 0)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Results to skip")
	return cmd
}

func blockGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <number>",
		Short: "Get a block with its events",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			n, err := parseBlockNumber(args[0])
			if err != nil {
				fatal("parse block number", err)
			}
			block, err := apiClient.Blocks.Get(context.Background(), n)
			if err != nil {
				fatal("get block", err)
			}
			output(block, block.BlockHash)
		},
	}
}

func blockSealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seal",
		Short: "Seal all pending events into a new block",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			header, err := apiClient.Blocks.Seal(context.Background())
			if err != nil {
				fatal("seal block", err)
			}
			output(header, strconv.FormatUint(header.BlockNumber, 10))
		},
	}
}

func parseBlockNumber(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a block number", s)
	}
	return n, nil
}
