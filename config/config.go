package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/DQYXACML/calltrace/flags"
)

const (
	OutputTree = "tree"
	OutputJSON = "json"
)

type Config struct {
	Chain    ChainConfig `json:"chain" yaml:"chain"`
	MasterDB DBConfig    `json:"masterDB" yaml:"masterDB"`
	Trace    TraceConfig `json:"trace" yaml:"trace"`
}

type ChainConfig struct {
	ChainRpcUrl    string        `json:"rpcURL" yaml:"rpcURL"`
	RequestTimeout time.Duration `json:"requestTimeout" yaml:"requestTimeout"`
}

type DBConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Name     string `json:"name" yaml:"name"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

type TraceConfig struct {
	RecordPrecompiles bool   `json:"precompiles" yaml:"precompiles"`
	RecordLogs        bool   `json:"logs" yaml:"logs"`
	Concurrency       int    `json:"concurrency" yaml:"concurrency"`
	Store             bool   `json:"store" yaml:"store"`
	Output            string `json:"output" yaml:"output"`
	MigrationsDir     string `json:"migrationsDir" yaml:"migrationsDir"`
}

// DefaultConfig mirrors the flag defaults
func DefaultConfig() Config {
	return Config{
		Chain: ChainConfig{
			RequestTimeout: flags.RequestTimeoutFlag.Value,
		},
		MasterDB: DBConfig{
			Host: "localhost",
			Port: 5432,
			Name: "calltrace",
		},
		Trace: TraceConfig{
			RecordLogs:    flags.RecordLogsFlag.Value,
			Concurrency:   flags.ConcurrencyFlag.Value,
			Output:        flags.OutputFlag.Value,
			MigrationsDir: flags.MigrationsFlag.Value,
		},
	}
}

// LoadConfig builds the configuration from defaults, then the selected
// profile of the config file, then explicitly set flags.
func LoadConfig(cliCtx *cli.Context) (Config, error) {
	cfg := DefaultConfig()

	if path := cliCtx.String(flags.ConfigFileFlag.Name); path != "" {
		file, err := LoadProfileFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := file.Apply(&cfg, cliCtx.String(flags.ProfileFlag.Name)); err != nil {
			return Config{}, err
		}
		log.Info("loaded config file", "path", path, "profile", cliCtx.String(flags.ProfileFlag.Name))
	}

	applyFlags(cliCtx, &cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	log.Info("loaded config", "rpc", cfg.Chain.ChainRpcUrl != "", "store", cfg.Trace.Store, "output", cfg.Trace.Output)
	return cfg, nil
}

func applyFlags(cliCtx *cli.Context, cfg *Config) {
	setString(cliCtx, flags.ChainRpcFlag.Name, &cfg.Chain.ChainRpcUrl)
	if cliCtx.IsSet(flags.RequestTimeoutFlag.Name) {
		cfg.Chain.RequestTimeout = cliCtx.Duration(flags.RequestTimeoutFlag.Name)
	}

	setString(cliCtx, flags.MasterDbHostFlag.Name, &cfg.MasterDB.Host)
	setString(cliCtx, flags.MasterDbNameFlag.Name, &cfg.MasterDB.Name)
	setString(cliCtx, flags.MasterDbUserFlag.Name, &cfg.MasterDB.User)
	setString(cliCtx, flags.MasterDbPasswordFlag.Name, &cfg.MasterDB.Password)
	setInt(cliCtx, flags.MasterDbPortFlag.Name, &cfg.MasterDB.Port)
	setString(cliCtx, flags.MigrationsFlag.Name, &cfg.Trace.MigrationsDir)

	setBool(cliCtx, flags.RecordPrecompilesFlag.Name, &cfg.Trace.RecordPrecompiles)
	setBool(cliCtx, flags.RecordLogsFlag.Name, &cfg.Trace.RecordLogs)
	setBool(cliCtx, flags.StoreFlag.Name, &cfg.Trace.Store)
	setInt(cliCtx, flags.ConcurrencyFlag.Name, &cfg.Trace.Concurrency)
	setString(cliCtx, flags.OutputFlag.Name, &cfg.Trace.Output)
}

func setString(cliCtx *cli.Context, name string, dst *string) {
	if cliCtx.IsSet(name) {
		*dst = cliCtx.String(name)
	}
}

func setInt(cliCtx *cli.Context, name string, dst *int) {
	if cliCtx.IsSet(name) {
		*dst = cliCtx.Int(name)
	}
}

func setBool(cliCtx *cli.Context, name string, dst *bool) {
	if cliCtx.IsSet(name) {
		*dst = cliCtx.Bool(name)
	}
}

// Validate checks the values the trace command relies on
func (c *Config) Validate() error {
	if c.Trace.Concurrency < 1 {
		return errors.Errorf("concurrency must be at least 1, got %d", c.Trace.Concurrency)
	}
	switch c.Trace.Output {
	case OutputTree, OutputJSON:
	default:
		return errors.Errorf("unknown output format %q", c.Trace.Output)
	}
	if c.Chain.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	return nil
}

// RequireRPC reports a missing RPC endpoint
func (c *Config) RequireRPC() error {
	if c.Chain.ChainRpcUrl == "" {
		return fmt.Errorf("--%s is required", flags.ChainRpcFlag.Name)
	}
	return nil
}
