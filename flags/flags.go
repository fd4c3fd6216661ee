package flags

import (
	"time"

	"github.com/urfave/cli/v2"
)

const envVarPrefix = "CALLTRACE"

func prefixEnvVars(name string) []string {
	return []string{envVarPrefix + "_" + name}
}

var (
	ConfigFileFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "YAML or JSON profile file",
		EnvVars: prefixEnvVars("CONFIG"),
	}
	ProfileFlag = &cli.StringFlag{
		Name:    "profile",
		Usage:   "Profile of the config file to use",
		Value:   "default",
		EnvVars: prefixEnvVars("PROFILE"),
	}
	LogLevelFlag = &cli.StringFlag{
		Name:    "log.level",
		Usage:   "Log level: trace, debug, info, warn, error, crit",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
	}

	ChainRpcFlag = &cli.StringFlag{
		Name:    "rpc-url",
		Usage:   "HTTP or WS endpoint of a node exposing the debug namespace",
		EnvVars: prefixEnvVars("RPC_URL"),
	}
	RequestTimeoutFlag = &cli.DurationFlag{
		Name:    "request-timeout",
		Usage:   "Timeout of a single RPC request",
		Value:   100 * time.Second,
		EnvVars: prefixEnvVars("REQUEST_TIMEOUT"),
	}

	MasterDbHostFlag = &cli.StringFlag{
		Name:    "master-db-host",
		Usage:   "The host of the master database",
		EnvVars: prefixEnvVars("MASTER_DB_HOST"),
	}
	MasterDbPortFlag = &cli.IntFlag{
		Name:    "master-db-port",
		Usage:   "The port of the master database",
		EnvVars: prefixEnvVars("MASTER_DB_PORT"),
	}
	MasterDbUserFlag = &cli.StringFlag{
		Name:    "master-db-user",
		Usage:   "The user of the master database",
		EnvVars: prefixEnvVars("MASTER_DB_USER"),
	}
	MasterDbPasswordFlag = &cli.StringFlag{
		Name:    "master-db-password",
		Usage:   "The password of the master database",
		EnvVars: prefixEnvVars("MASTER_DB_PASSWORD"),
	}
	MasterDbNameFlag = &cli.StringFlag{
		Name:    "master-db-name",
		Usage:   "The name of the master database",
		EnvVars: prefixEnvVars("MASTER_DB_NAME"),
	}
	MigrationsFlag = &cli.StringFlag{
		Name:    "migrations-dir",
		Usage:   "Directory of SQL migrations",
		Value:   "./database/migrations",
		EnvVars: prefixEnvVars("MIGRATIONS_DIR"),
	}

	RecordPrecompilesFlag = &cli.BoolFlag{
		Name:    "precompiles",
		Usage:   "Show precompile calls in the call graph",
		EnvVars: prefixEnvVars("PRECOMPILES"),
	}
	RecordLogsFlag = &cli.BoolFlag{
		Name:    "logs",
		Usage:   "Interleave emitted logs with calls",
		Value:   true,
		EnvVars: prefixEnvVars("LOGS"),
	}
	ConcurrencyFlag = &cli.IntFlag{
		Name:    "concurrency",
		Usage:   "Number of transactions traced in parallel",
		Value:   4,
		EnvVars: prefixEnvVars("CONCURRENCY"),
	}
	StoreFlag = &cli.BoolFlag{
		Name:    "store",
		Usage:   "Persist traces to the master database",
		EnvVars: prefixEnvVars("STORE"),
	}
	OutputFlag = &cli.StringFlag{
		Name:    "output",
		Usage:   "Output format: tree or json",
		Value:   "tree",
		EnvVars: prefixEnvVars("OUTPUT"),
	}
)

var requireFlags = []cli.Flag{
	ConfigFileFlag,
	ProfileFlag,
	LogLevelFlag,
	ChainRpcFlag,
	RequestTimeoutFlag,
}

var dbFlags = []cli.Flag{
	MasterDbHostFlag,
	MasterDbPortFlag,
	MasterDbUserFlag,
	MasterDbPasswordFlag,
	MasterDbNameFlag,
	MigrationsFlag,
}

var traceFlags = []cli.Flag{
	RecordPrecompilesFlag,
	RecordLogsFlag,
	ConcurrencyFlag,
	StoreFlag,
	OutputFlag,
}

// Flags holds every flag of the trace command
var Flags []cli.Flag

// DBFlags holds the flags of commands that only need the database
var DBFlags []cli.Flag

func init() {
	Flags = append(Flags, requireFlags...)
	Flags = append(Flags, dbFlags...)
	Flags = append(Flags, traceFlags...)

	DBFlags = append(DBFlags, ConfigFileFlag, ProfileFlag, LogLevelFlag)
	DBFlags = append(DBFlags, dbFlags...)
}
