// Command pegctl is a small operator CLI over the Pegasus client
// facade: get/set/del/ttl/exist/scan against a single table.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pegasus-kv/go-client/pkg/pegasus"
	"github.com/spf13/cobra"
)

var (
	metaServers string
	tableName   string
	timeout     time.Duration
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pegctl",
		Short: "pegctl talks to a Pegasus cluster over the Go client",
	}
	root.PersistentFlags().StringVar(&metaServers, "meta", "", "comma-separated meta server list (host:port,...)")
	root.PersistentFlags().StringVar(&tableName, "table", "", "table name")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "per-operation timeout")
	root.MarkPersistentFlagRequired("meta")
	root.MarkPersistentFlagRequired("table")

	root.AddCommand(getCmd(), setCmd(), delCmd(), ttlCmd(), existCmd(), scanCmd())
	return root
}

func newClient() (*pegasus.Client, error) {
	servers := strings.Split(metaServers, ",")
	return pegasus.NewClient(pegasus.WithMetaServers(servers...), pegasus.WithOperationTimeout(timeout))
}

func withClient(fn func(ctx context.Context, cl *pegasus.Client) error) error {
	cl, err := newClient()
	if err != nil {
		return err
	}
	defer cl.Close()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx, cl)
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <hashKey> <sortKey>",
		Short: "fetch the value at (hashKey, sortKey)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, cl *pegasus.Client) error {
				v, err := cl.Get(ctx, tableName, []byte(args[0]), []byte(args[1]))
				if err != nil {
					return err
				}
				fmt.Println(hex.EncodeToString(v))
				return nil
			})
		},
	}
}

func setCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "set <hashKey> <sortKey> <value>",
		Short: "store value at (hashKey, sortKey)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, cl *pegasus.Client) error {
				return cl.Set(ctx, tableName, []byte(args[0]), []byte(args[1]), []byte(args[2]), ttl)
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "time-to-live (0 = never expires)")
	return cmd
}

func delCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del <hashKey> <sortKey>",
		Short: "remove the record at (hashKey, sortKey)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, cl *pegasus.Client) error {
				return cl.Del(ctx, tableName, []byte(args[0]), []byte(args[1]))
			})
		},
	}
}

func ttlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ttl <hashKey> <sortKey>",
		Short: "print the remaining TTL, in seconds, for (hashKey, sortKey)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, cl *pegasus.Client) error {
				secs, err := cl.TTL(ctx, tableName, []byte(args[0]), []byte(args[1]))
				if err != nil {
					return err
				}
				fmt.Println(secs)
				return nil
			})
		},
	}
}

func existCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exist <hashKey> <sortKey>",
		Short: "check whether (hashKey, sortKey) has a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, cl *pegasus.Client) error {
				ok, err := cl.Exist(ctx, tableName, []byte(args[0]), []byte(args[1]))
				if err != nil {
					return err
				}
				fmt.Println(ok)
				return nil
			})
		},
	}
}

func scanCmd() *cobra.Command {
	var batchSize int32
	cmd := &cobra.Command{
		Use:   "scan <hashKey> [startSortKey] [stopSortKey]",
		Short: "scan every record under hashKey, sorted by sortKey",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, cl *pegasus.Client) error {
				hashKey := []byte(args[0])
				var start, stop []byte
				if len(args) > 1 {
					start = []byte(args[1])
				}
				if len(args) > 2 {
					stop = []byte(args[2])
				}
				opts := pegasus.DefaultScanOptions()
				opts.BatchSize = batchSize

				scanner, err := cl.GetScanner(ctx, tableName, hashKey, start, stop, opts)
				if err != nil {
					return err
				}
				defer scanner.Close(ctx)

				for {
					item, err := scanner.Next(ctx)
					if err == pegasus.ErrScanFinished {
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Printf("%s\t%s\n", item.SortKey, item.Value)
				}
			})
		},
	}
	cmd.Flags().Int32Var(&batchSize, "batch-size", 100, "records fetched per round-trip")
	return cmd
}
