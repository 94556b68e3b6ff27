package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "poolctl",
		Short:        "Yield-splitting pool controller",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a pool and record its initial rate",
		RunE:  runInit,
	}
	addPoolFlags(initCmd.Flags())
	initCmd.Flags().Uint64("deposit-fee-bps", 0, "deposit fee in basis points")
	initCmd.Flags().Uint64("early-redeem-fee-bps", 0, "early redemption fee in basis points")
	initCmd.Flags().Uint64("maturity-redeem-fee-bps", 0, "maturity redemption fee in basis points")
	root.AddCommand(initCmd)

	depositCmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit into the pool and mint claim pairs",
		RunE:  runDeposit,
	}
	addPoolFlags(depositCmd.Flags())
	addOperationFlags(depositCmd.Flags())
	depositCmd.Flags().String("amount", "", "deposit amount in smallest units")
	depositCmd.Flags().Bool("yield-bearing", false, "amount is already in yield-bearing tokens")
	root.AddCommand(depositCmd)

	redeemCmd := &cobra.Command{
		Use:   "redeem",
		Short: "Burn claims and pay out",
		RunE:  runRedeem,
	}
	addPoolFlags(redeemCmd.Flags())
	addOperationFlags(redeemCmd.Flags())
	redeemCmd.Flags().String("principals", "0", "principal claims to burn")
	redeemCmd.Flags().String("yields", "0", "yield claims to burn")
	redeemCmd.Flags().Bool("to-backing", false, "withdraw the payout as backing tokens")
	root.AddCommand(redeemCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the pool's current state",
		RunE:  runStatus,
	}
	addPoolFlags(statusCmd.Flags())
	root.AddCommand(statusCmd)

	refreshCmd := &cobra.Command{
		Use:   "refresh-rate",
		Short: "Pull a fresh rate observation and persist it",
		RunE:  runRefreshRate,
	}
	addPoolFlags(refreshCmd.Flags())
	root.AddCommand(refreshCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// addPoolFlags registers the flags every subcommand shares.
func addPoolFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "chain RPC URL")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("journal", "./data/receipts.jsonl", "receipt journal JSONL path")
	flags.String("pool-name", "default", "pool identifier")
	flags.String("source", "static", "yield source (static, aave, compound, rari, lido, yearn, stakewise)")
	flags.String("source-params", "", "protocol addresses (comma-separated key=value)")
	flags.Uint("backing-decimals", 18, "backing token decimals")
	flags.Uint("yield-decimals", 18, "yield-bearing token decimals")
	flags.String("initial-rate", "", "starting rate for the static source (1e18 precision)")
	flags.String("maturity", "", "maturity timestamp (RFC3339)")
	flags.Int("max-retries", 5, "maximum retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addOperationFlags(flags *pflag.FlagSet) {
	flags.String("holder", "", "claim holder account")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
