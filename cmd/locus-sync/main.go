// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

// Command locus-sync is a developer tool for the Locus business backend:
// one-shot delta syncs against a local snapshot database and a live tail of
// the realtime order feed.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/leandroveron1110/locus-sync/internal/auth"
	"github.com/leandroveron1110/locus-sync/locuscache"
	"github.com/leandroveron1110/locus-sync/locusrt"
	"github.com/leandroveron1110/locus-sync/locussync"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "locus-sync",
		Short:        "Sync and realtime tooling for Locus business data",
		SilenceUsage: true,
	}
	root.AddCommand(newSyncCmd(), newWatchCmd(), newTokenCmd())
	return root
}

func newSyncCmd() *cobra.Command {
	var (
		baseURL  string
		business string
		dbPath   string
		query    string
		token    string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the order delta for one business and merge it into the local snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := locuscache.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			store := locussync.NewStore[locussync.Order](nil)
			if err := locuscache.RestoreStore(ctx, db, "orders", store); err != nil {
				return err
			}

			fetcher := locussync.NewHTTPFetcher[locussync.Order](baseURL, "/businesses/orders/delta",
				func(context.Context) (string, error) { return token, nil })
			syncer, err := locussync.NewSyncer(store, business, fetcher.Fetch, nil)
			if err != nil {
				return err
			}
			syncer.Alerts = locussync.AlertFunc(func(a locussync.Alert) {
				fmt.Fprintln(cmd.ErrOrStderr(), a.Message)
			})

			if query != "" {
				err = syncer.SyncQuery(ctx, query)
			} else {
				err = syncer.Sync(ctx)
			}
			if err != nil {
				return err
			}

			if err := locuscache.SaveStore(ctx, db, "orders", store); err != nil {
				return err
			}

			cursor, _ := store.LastSyncTime(business)
			fmt.Fprintf(cmd.OutOrStdout(), "%d orders, cursor %s\n", store.Len(business), cursor)
			for _, o := range store.Items(business) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s  %-20s  $%.2f\n", o.ID, o.Status, o.CustomerName, o.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:3000", "backend base URL")
	cmd.Flags().StringVar(&business, "business", "", "business id to sync")
	cmd.Flags().StringVar(&dbPath, "db", "locus-sync.db", "local snapshot database path")
	cmd.Flags().StringVar(&query, "query", "", "full-text search (suppresses the sync cursor)")
	cmd.Flags().StringVar(&token, "token", "", "bearer token")
	_ = cmd.MarkFlagRequired("business")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var (
		wsURL    string
		business string
		strict   bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail the realtime order feed for one business",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			config := locusrt.BridgeConfig{URL: wsURL, Logger: slog.Default()}
			if strict {
				validator, err := locusrt.NewValidator()
				if err != nil {
					return err
				}
				config.Validator = validator
			}
			bridge, err := locusrt.NewBridge(config)
			if err != nil {
				return err
			}
			defer bridge.Shutdown()

			conn, err := bridge.Acquire(ctx, business)
			if err != nil {
				return err
			}

			orders := locussync.NewStore[locussync.Order](nil)
			notifications := locussync.NewNotificationStore()
			feed, err := locusrt.NewOrderFeed(orders, notifications)
			if err != nil {
				return err
			}
			detach := feed.Attach(conn)
			defer detach()

			fmt.Fprintf(cmd.OutOrStdout(), "watching business %s (ctrl-c to stop)\n", business)
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			printed := 0
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					list := notifications.Get(business)
					for i := len(list) - 1 - printed; i >= 0; i-- {
						n := list[i]
						fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s %s\n",
							n.CreatedAt.Format(time.TimeOnly), n.Type, n.Message)
					}
					printed = len(list)
				}
			}
		},
	}

	cmd.Flags().StringVar(&wsURL, "ws-url", "ws://localhost:3000/rt", "realtime websocket URL")
	cmd.Flags().StringVar(&business, "business", "", "business id to watch")
	cmd.Flags().BoolVar(&strict, "strict", false, "validate event payloads against their schemas")
	_ = cmd.MarkFlagRequired("business")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		user       string
		businesses []string
		secret     string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token for the given user and businesses",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.NewBusinessAuth(secret).GenerateToken(user, businesses, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user id (sub claim)")
	cmd.Flags().StringSliceVar(&businesses, "business", nil, "business id (repeatable)")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("business")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}
