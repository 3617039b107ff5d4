// Command btcore is the CLI surface around the replay core: run a
// single Play, batch a directory of Plays with run-hash memoization,
// and audit a Postgres-backed manifest index. Every piece it touches
// (play.Load, runner.New, artifact.Writer) is a narrow, already-tested
// boundary; the command itself is just wiring.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"btcore/internal/artifact"
	"btcore/internal/bar"
	"btcore/internal/cache"
	"btcore/internal/feed"
	"btcore/internal/obs"
	"btcore/internal/play"
	"btcore/internal/resilience"
	"btcore/internal/runner"
	"btcore/internal/testsupport"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "btcore",
	Short: "Deterministic perpetual-futures backtest core",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("btcore: read config %s: %w", cfgFile, err)
			}
		}
		viper.AutomaticEnv()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "optional viper config file (YAML/JSON/TOML)")
	rootCmd.AddCommand(runCmd, batchCmd, auditCmd)
}

// --- run: replay one Play ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one Play end to end and write its artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		playPath, _ := cmd.Flags().GetString("play")
		outDir, _ := cmd.Flags().GetString("out")
		if playPath == "" {
			return fmt.Errorf("btcore: --play is required")
		}
		if outDir == "" {
			outDir = "./out"
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		manifest, runErr := executeRun(ctx, playPath, outDir)
		if manifest != nil {
			printJSON(manifest)
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().String("play", "", "path to the Play YAML document")
	runCmd.Flags().String("out", "", "output directory for trades/equity/metrics/manifest")
}

// --- batch: replay every Play under a directory, memoizing by hash ---

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every Play in a directory, skipping ones already memoized",
	RunE: func(cmd *cobra.Command, args []string) error {
		playsDir, _ := cmd.Flags().GetString("plays-dir")
		outDir, _ := cmd.Flags().GetString("out")
		cacheAddr, _ := cmd.Flags().GetString("cache-addr")
		dbDSN, _ := cmd.Flags().GetString("db")
		if playsDir == "" {
			return fmt.Errorf("btcore: --plays-dir is required")
		}
		if outDir == "" {
			outDir = "./out"
		}

		matches, err := filepath.Glob(filepath.Join(playsDir, "*.yaml"))
		if err != nil {
			return fmt.Errorf("btcore: glob %s: %w", playsDir, err)
		}

		var runCache *cache.Cache
		if cacheAddr != "" {
			runCache, err = cache.New(cache.Config{Addr: cacheAddr})
			if err != nil {
				return err
			}
			defer runCache.Close()
		}

		var store *artifact.Store
		if dbDSN != "" {
			pool, err := pgxpool.New(cmd.Context(), dbDSN)
			if err != nil {
				return fmt.Errorf("btcore: connect %s: %w", dbDSN, err)
			}
			defer pool.Close()
			store = artifact.NewStore(pool)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Hour)
		defer cancel()

		for _, playPath := range matches {
			if err := ctx.Err(); err != nil {
				return err
			}

			p, err := play.Load(playPath)
			if err != nil {
				return err
			}
			playHash, err := p.Hash()
			if err != nil {
				return fmt.Errorf("btcore: hash %s: %w", playPath, err)
			}

			if runCache != nil {
				if existing, err := runCache.Get(ctx, playHash); err == nil {
					fmt.Fprintf(os.Stderr, "skip %s: already run (%s)\n", playPath, existing.ManifestPath)
					continue
				}
			}

			runOut := filepath.Join(outDir, p.ID+"-"+playHash)
			manifest, runErr := executeRun(ctx, playPath, runOut)
			if runErr != nil {
				return fmt.Errorf("btcore: %s: %w", playPath, runErr)
			}
			printJSON(manifest)

			if runCache != nil {
				_ = runCache.Set(ctx, cache.RunSummary{
					RunHash: playHash, PlayHash: playHash,
					ManifestPath: runOut, ComputedAt: time.Now().UTC(),
				})
			}
			if store != nil {
				if err := store.PutManifest(ctx, *manifest); err != nil {
					return fmt.Errorf("btcore: index manifest for %s: %w", playPath, err)
				}
			}
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().String("plays-dir", "", "directory of Play YAML documents")
	batchCmd.Flags().String("out", "", "output root; each Play gets its own <id>-<hash> subdirectory")
	batchCmd.Flags().String("cache-addr", "", "optional Redis address for run-hash memoization")
	batchCmd.Flags().String("db", "", "optional Postgres DSN for the manifest index")
}

// --- audit: query the manifest index ---

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List indexed run manifests for a symbol",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbDSN, _ := cmd.Flags().GetString("db")
		symbol, _ := cmd.Flags().GetString("symbol")
		if dbDSN == "" || symbol == "" {
			return fmt.Errorf("btcore: --db and --symbol are required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, dbDSN)
		if err != nil {
			return fmt.Errorf("btcore: connect %s: %w", dbDSN, err)
		}
		defer pool.Close()

		store := artifact.NewStore(pool)
		manifests, err := store.ListBySymbol(ctx, symbol)
		if err != nil {
			return err
		}
		for _, m := range manifests {
			printJSON(m)
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().String("db", "", "Postgres DSN")
	auditCmd.Flags().String("symbol", "", "symbol to list manifests for")
}

// executeRun loads, replays, and writes the artifacts for one Play,
// returning the manifest even when runErr is non-nil so a cooperatively
// cancelled run still leaves a partial-run record on disk.
func executeRun(ctx context.Context, playPath, outDir string) (*artifact.Manifest, error) {
	p, err := play.Load(playPath)
	if err != nil {
		return nil, err
	}
	playHash, err := p.Hash()
	if err != nil {
		return nil, fmt.Errorf("btcore: hash play: %w", err)
	}

	runID := uuid.New()
	ctx = obs.WithRunInfo(ctx, obs.RunInfo{RunID: runID.String(), PlayID: p.ID, Symbol: p.Symbol})

	breaker := resilience.NewBreaker(resilience.DefaultConfig("feed_load"))
	store, funding, err := loadFeed(ctx, p, breaker)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics := obs.NewRunMetrics(reg)

	cfg, err := buildRunnerConfig(p, store, funding, metrics)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, runErr := runner.New(cfg).Run(ctx)
	duration := time.Since(start)
	metrics.ReplayDuration.Observe(duration.Seconds())

	bars := 0
	if res != nil {
		bars = res.BarsRun
	}
	obs.LogRunComplete(ctx, bars, duration, runErr)
	if res == nil {
		return nil, fmt.Errorf("btcore: run %s: %w", playPath, runErr)
	}

	writer, err := artifact.NewWriter(outDir, testsupport.SystemClock{})
	if err != nil {
		return nil, err
	}

	low := store.BarsFor(bar.RoleLow)
	var windowFrom, windowTo time.Time
	if low != nil && low.Len() > 0 {
		windowFrom = low.At(0).TsOpen
		windowTo = low.At(low.Len() - 1).TsClose
	}

	meta := artifact.RunMeta{
		RunID: runID, PlayID: p.ID, PlayHash: playHash, Symbol: p.Symbol,
		WindowFrom: windowFrom, WindowTo: windowTo,
		Config: map[string]any{
			"timeframes": p.Timeframes,
			"risk":       p.Risk,
			"exchange":   p.Exchange,
		},
	}
	manifest, err := writer.WriteAll(res, meta)
	if err != nil {
		return nil, fmt.Errorf("btcore: write artifacts: %w", err)
	}
	if runErr != nil {
		return manifest, fmt.Errorf("btcore: run %s ended early: %w", playPath, runErr)
	}
	return manifest, nil
}

// loadFeed resolves the Play's declared CSV sources into a feed.Store
// and funding series, guarding the load under a bounded-wait circuit
// breaker.
func loadFeed(ctx context.Context, p *play.Play, breaker *resilience.Breaker) (*feed.Store, []feed.FundingEvent, error) {
	rolePaths := make(map[bar.Role]string, len(p.Data.RolePaths))
	for roleStr, path := range p.Data.RolePaths {
		role, err := bar.ParseRole(roleStr)
		if err != nil {
			return nil, nil, fmt.Errorf("btcore: data.role_paths: %w", err)
		}
		rolePaths[role] = path
	}
	src := &feed.CSVSource{RolePaths: rolePaths, FundingPath: p.Data.FundingPath}

	tfByRole := map[bar.Role]string{
		bar.RoleLow:  p.Timeframes.Low,
		bar.RoleMed:  p.Timeframes.Med,
		bar.RoleHigh: p.Timeframes.High,
	}

	var series []feed.RoleSeries
	for role, path := range rolePaths {
		tf, err := bar.ParseTimeframe(tfByRole[role])
		if err != nil {
			return nil, nil, fmt.Errorf("btcore: role %s: %w", role, err)
		}
		result, err := breaker.Guard(ctx, func(ctx context.Context) (any, error) {
			return src.LoadRole(ctx, role, tf)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("btcore: load role %s from %s: %w", role, path, err)
		}
		series = append(series, feed.RoleSeries{Role: role, TF: tf, Bars: result.([]bar.Bar)})
	}

	store, err := feed.New(series)
	if err != nil {
		return nil, nil, fmt.Errorf("btcore: build feed store: %w", err)
	}

	funding, err := src.LoadFunding(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("btcore: load funding: %w", err)
	}
	return store, funding, nil
}

func buildRunnerConfig(p *play.Play, store *feed.Store, funding []feed.FundingEvent, metrics *obs.RunMetrics) (runner.Config, error) {
	pipelines, err := p.BuildPipelines()
	if err != nil {
		return runner.Config{}, err
	}
	entries, err := p.CompileEntries()
	if err != nil {
		return runner.Config{}, err
	}
	exits, err := p.CompileExits()
	if err != nil {
		return runner.Config{}, err
	}
	return runner.Config{
		Play: p, Pipelines: pipelines, Entries: entries, Exits: exits,
		Store: store, Funding: funding, Metrics: metrics,
	}, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
