// coinrate serves cached crypto prices and conversion rates.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/coinrate/internal/api"
	"github.com/Sternrassler/coinrate/internal/config"
	"github.com/Sternrassler/coinrate/pkg/batch"
	"github.com/Sternrassler/coinrate/pkg/cache"
	"github.com/Sternrassler/coinrate/pkg/catalog"
	"github.com/Sternrassler/coinrate/pkg/client"
	"github.com/Sternrassler/coinrate/pkg/coin"
	"github.com/Sternrassler/coinrate/pkg/logging"
	"github.com/Sternrassler/coinrate/pkg/rate"
	"github.com/Sternrassler/coinrate/pkg/resolver"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Build-time variables (set via -ldflags).
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the wired components shared by all commands.
type app struct {
	cfg      *config.Config
	redis    *redis.Client
	catalog  *catalog.RedisCatalog
	resolver *resolver.Resolver
}

func (a *app) Close() {
	a.resolver.Wait()
	a.redis.Close()
}

// newApp connects to Redis and wires the upstream client, catalog and resolver.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	upstream, err := client.New(client.Config{
		Redis:        redisClient,
		BaseURL:      cfg.Upstream.BaseURL,
		APIKey:       cfg.Upstream.APIKey,
		UserAgent:    "coinrate/" + version,
		Timeout:      cfg.Upstream.Timeout,
		CreditBudget: cfg.Upstream.CreditBudget,
		CreditWindow: cfg.Upstream.CreditWindow,
		RateLimit:    cfg.Upstream.RateLimit,
		Burst:        cfg.Upstream.Burst,
	})
	if err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("create upstream client: %w", err)
	}

	manager := cache.NewManager(redisClient)
	manager.SetStaleRetention(cfg.Cache.StaleRetention)
	locker := cache.NewLocker(redisClient, cfg.Cache.BusyTTL)
	cat := catalog.NewRedisCatalog(redisClient)

	res := resolver.New(upstream, cat, manager, locker,
		resolver.WithBatchConfig(batch.Config{
			ChunkSize:      cfg.Batch.ChunkSize,
			MaxConcurrency: cfg.Batch.MaxConcurrency,
			Timeout:        cfg.Batch.Timeout,
		}),
	)

	return &app{cfg: cfg, redis: redisClient, catalog: cat, resolver: res}, nil
}

func newRootCmd() *cobra.Command {
	v := config.New()

	root := &cobra.Command{
		Use:           "coinrate",
		Short:         "Cached crypto prices and conversion rates",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "config file path (default: ./coinrate.yaml)")
	root.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().Bool("log-pretty", false, "human-readable console logs")
	root.PersistentFlags().String("redis-addr", "", "redis address (host:port)")
	_ = v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.pretty", root.PersistentFlags().Lookup("log-pretty"))
	_ = v.BindPFlag("redis.addr", root.PersistentFlags().Lookup("redis-addr"))

	// load builds the app for a command; callers must Close it.
	load := func(cmd *cobra.Command) (*app, error) {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			v.SetConfigFile(path)
		}
		cfg, err := config.Load(v)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return newApp(cmd.Context(), cfg)
	}

	root.AddCommand(newServeCmd(v, load))
	root.AddCommand(newPriceCmd(load))
	root.AddCommand(newRateCmd(load))
	root.AddCommand(newSeedCmd(load))
	return root
}

type loader func(cmd *cobra.Command) (*app, error)

func newServeCmd(v *viper.Viper, load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			log.Info().
				Str("version", version).
				Str("addr", a.cfg.Server.Addr).
				Str("redis", a.cfg.Redis.Addr).
				Dur("busy_ttl", a.cfg.Cache.BusyTTL).
				Msg("Starting coinrate")

			srv := api.NewServer(a.resolver, a.redis, a.cfg.Server)
			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8080)")
	_ = v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func newPriceCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price <identifier>",
		Short: "Resolve a coin by slug, ticker or id and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			force, _ := cmd.Flags().GetBool("force")
			resolved, err := a.resolver.ResolvePriceForce(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}
			return printJSON(cmd, resolved)
		},
	}
	cmd.Flags().Bool("force", false, "bypass the cached quote")
	return cmd
}

func newRateCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rate <from> <to>",
		Short: "Print the conversion rate between two assets or currencies",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amountStr, _ := cmd.Flags().GetString("amount")
			amount, err := decimal.NewFromString(amountStr)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amountStr, err)
			}

			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			pair, err := a.resolver.Pair(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !pair.Available() {
				return fmt.Errorf("rate %s -> %s unavailable", args[0], args[1])
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s %s (rate %g)\n",
				amount, pair.From.ID, rate.Convert(amount, pair.Rate).Round(8), pair.To.ID, pair.Rate)
			return nil
		},
	}
	cmd.Flags().String("amount", "1", "amount of <from> to convert")
	return cmd
}

func newSeedCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <records.json>",
		Short: "Load token records (JSON array) into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var records []*coin.TokenRecord
			if err := json.Unmarshal(data, &records); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, rec := range records {
				if err := a.catalog.Put(cmd.Context(), rec); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d tokens\n", len(records))
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
