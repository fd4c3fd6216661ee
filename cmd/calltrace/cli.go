package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/DQYXACML/calltrace/config"
	"github.com/DQYXACML/calltrace/database"
	"github.com/DQYXACML/calltrace/flags"
	"github.com/DQYXACML/calltrace/node"
	"github.com/DQYXACML/calltrace/tracing"
	"github.com/DQYXACML/calltrace/tracing/render"
)

var logLevels = map[string]slog.Level{
	"trace": log.LevelTrace,
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
	"crit":  log.LevelCrit,
}

func parseLogLevel(s string) (slog.Level, error) {
	lvl, ok := logLevels[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, errors.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

func setupLogging(ctx *cli.Context) error {
	lvl, err := parseLogLevel(ctx.String(flags.LogLevelFlag.Name))
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true)))
	return nil
}

func parseHashes(ctx *cli.Context) ([]common.Hash, error) {
	if ctx.NArg() == 0 {
		return nil, errors.New("at least one transaction hash is required")
	}
	hashes := make([]common.Hash, 0, ctx.NArg())
	for _, arg := range ctx.Args().Slice() {
		b, err := hexutil.Decode(arg)
		if err != nil || len(b) != common.HashLength {
			return nil, errors.Errorf("invalid transaction hash %q", arg)
		}
		hashes = append(hashes, common.BytesToHash(b))
	}
	return hashes, nil
}

// traceAll traces every hash with at most cfg.Trace.Concurrency requests in
// flight. Results keep the order of hashes.
func traceAll(ctx *cli.Context, cfg *config.Config, client node.EthClient, hashes []common.Hash) ([]*tracing.TxTrace, error) {
	tracer := tracing.NewTracer(client, tracing.BuildOptions{
		RecordPrecompiles: cfg.Trace.RecordPrecompiles,
		RecordLogs:        cfg.Trace.RecordLogs,
	})

	results := make([]*tracing.TxTrace, len(hashes))
	g, gctx := errgroup.WithContext(ctx.Context)
	g.SetLimit(cfg.Trace.Concurrency)
	for i, hash := range hashes {
		g.Go(func() error {
			tt, err := tracer.TraceTransaction(gctx, hash)
			if err != nil {
				return err
			}
			results[i] = tt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type traceOutput struct {
	TxHash      common.Hash     `json:"txHash"`
	BlockNumber string          `json:"blockNumber,omitempty"`
	Success     bool            `json:"success"`
	Trace       json.RawMessage `json:"trace"`
}

func writeTraces(w io.Writer, format string, traces []*tracing.TxTrace) error {
	if format == config.OutputJSON {
		out := make([]traceOutput, len(traces))
		for i, tt := range traces {
			dump, err := json.Marshal(tt.Arena)
			if err != nil {
				return err
			}
			out[i] = traceOutput{TxHash: tt.TxHash, Success: tt.Success, Trace: dump}
			if tt.BlockNumber != nil {
				out[i].BlockNumber = tt.BlockNumber.String()
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, tt := range traces {
		if _, err := fmt.Fprintf(w, "Transaction %s (success: %t)\n", tt.TxHash.Hex(), tt.Success); err != nil {
			return err
		}
		if err := render.Tree(w, tt.Arena); err != nil {
			return err
		}
	}
	return nil
}

func runTrace(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Error("failed to load config", "error", err)
		return err
	}
	if err := cfg.RequireRPC(); err != nil {
		return err
	}
	hashes, err := parseHashes(ctx)
	if err != nil {
		return err
	}

	client, err := node.DialEthClient(ctx.Context, cfg.Chain.ChainRpcUrl, cfg.Chain.RequestTimeout)
	if err != nil {
		log.Error("new eth client fail", "err", err)
		return err
	}
	defer client.Close()

	traces, err := traceAll(ctx, &cfg, client, hashes)
	if err != nil {
		return err
	}

	if cfg.Trace.Store {
		db, err := database.NewDB(ctx.Context, cfg.MasterDB)
		if err != nil {
			log.Error("new database fail", "err", err)
			return err
		}
		defer db.Close()
		for _, tt := range traces {
			if _, err := db.StoreCallTrace(tt.TxHash, tt.BlockNumber, tt.Success, tt.Arena); err != nil {
				return err
			}
		}
	}
	return writeTraces(ctx.App.Writer, cfg.Trace.Output, traces)
}

func runAddresses(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		return err
	}
	if err := cfg.RequireRPC(); err != nil {
		return err
	}
	hashes, err := parseHashes(ctx)
	if err != nil {
		return err
	}
	client, err := node.DialEthClient(ctx.Context, cfg.Chain.ChainRpcUrl, cfg.Chain.RequestTimeout)
	if err != nil {
		return err
	}
	defer client.Close()

	traces, err := traceAll(ctx, &cfg, client, hashes)
	if err != nil {
		return err
	}
	for _, tt := range traces {
		fmt.Fprintf(ctx.App.Writer, "Transaction %s\n", tt.TxHash.Hex())
		for _, addr := range render.Addresses(tt.Arena) {
			fmt.Fprintf(ctx.App.Writer, "  %s\n", addr.Hex())
		}
	}
	return nil
}

func runShow(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		return err
	}
	hashes, err := parseHashes(ctx)
	if err != nil {
		return err
	}
	db, err := database.NewDB(ctx.Context, cfg.MasterDB)
	if err != nil {
		return err
	}
	defer db.Close()

	traces := make([]*tracing.TxTrace, 0, len(hashes))
	for _, hash := range hashes {
		record, err := db.CallTraces.QueryCallTraceByTxHash(hash)
		if err != nil {
			return err
		} else if record == nil {
			return errors.Errorf("no stored call trace for %s", hash.Hex())
		}
		a, err := record.Arena()
		if err != nil {
			return err
		}
		traces = append(traces, &tracing.TxTrace{
			TxHash:      record.TxHash,
			BlockNumber: record.BlockNumber,
			Success:     record.Success,
			Arena:       a,
		})
	}
	return writeTraces(ctx.App.Writer, cfg.Trace.Output, traces)
}

func runMigrations(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}
	log.Info("running migrations...")
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Error("failed to load config", "err", err)
		return err
	}
	db, err := database.NewDB(ctx.Context, cfg.MasterDB)
	if err != nil {
		log.Error("failed to connect to database", "err", err)
		return err
	}
	defer db.Close()
	return db.ExecuteSQLMigration(cfg.Trace.MigrationsDir)
}

func NewCli() *cli.App {
	return &cli.App{
		Name:                 "calltrace",
		Version:              "v0.1.0",
		Usage:                "Rebuild and inspect call trees of mined transactions",
		Description:          "Fetches callTracer frames from a node, assembles them into a call trace arena and renders or stores them",
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:        "trace",
				Usage:       "trace <txhash>...",
				Description: "Trace transactions and print their call trees",
				Flags:       flags.Flags,
				Action:      runTrace,
			},
			{
				Name:        "addresses",
				Usage:       "addresses <txhash>...",
				Description: "Print every address touched by the call trees",
				Flags:       flags.Flags,
				Action:      runAddresses,
			},
			{
				Name:        "show",
				Usage:       "show <txhash>...",
				Description: "Render call trees stored in the database",
				Flags:       append(append([]cli.Flag{}, flags.DBFlags...), flags.OutputFlag),
				Action:      runShow,
			},
			{
				Name:        "migrate",
				Description: "Runs the database migrations",
				Flags:       flags.DBFlags,
				Action:      runMigrations,
			},
			{
				Name:        "version",
				Description: "print version",
				Action: func(ctx *cli.Context) error {
					cli.ShowVersion(ctx)
					return nil
				},
			},
		},
	}
}
