package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tfl-research/simtfl"
	"github.com/tfl-research/simtfl/finality"
	"github.com/tfl-research/simtfl/node"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var (
		cfgFile string
		until   int64
		verbose bool
	)

	cmd := &cobra.Command{
		Use:           "simtfl",
		Short:         "Run a trailing finality layer simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config: %w", err)
				}
			}
			var cfg simtfl.Config
			if err := v.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("unmarshal config: %w", err)
			}

			logWriter := io.Discard
			if verbose {
				logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
			}
			logger := zerolog.New(logWriter)

			s, err := node.NewSimulation(cfg, logger)
			if err != nil {
				return err
			}
			if err := s.Run(simtfl.Time(until)); err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), s)
		},
	}

	def := simtfl.DefaultConfig()
	cmd.Flags().StringVar(&cfgFile, "config", "", "path to a config file")
	cmd.Flags().Int64Var(&until, "until", 200, "end of simulated time")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log structured events to stderr")
	cmd.Flags().Int("committee-size", def.CommitteeSize, "number of voters")
	cmd.Flags().Float64("quorum-fraction", def.QuorumFraction, "finalization threshold in (0,1]")
	cmd.Flags().String("latency", string(def.Latency), "latency kind: fixed or uniform")
	cmd.Flags().Int64("fixed-delay", int64(def.FixedDelay), "delay for fixed latency")
	cmd.Flags().Int64("min-delay", int64(def.MinDelay), "lower delay bound for uniform latency")
	cmd.Flags().Int64("max-delay", int64(def.MaxDelay), "upper delay bound for uniform latency")
	cmd.Flags().Float64("loss-probability", def.LossProbability, "per-message drop chance in [0,1)")
	cmd.Flags().Int64("random-seed", def.RandomSeed, "seed for reproducible runs")
	cmd.Flags().Int64("block-interval", int64(def.BlockInterval), "block production cadence")
	cmd.Flags().Uint64("trailing-depth", def.TrailingDepth, "how far behind the tip nodes vote")
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		panic(err)
	}
	return cmd
}

func report(out io.Writer, s *node.Simulation) error {
	if err := s.Trace().WriteTable(out); err != nil {
		return err
	}
	final := s.Finality()
	fmt.Fprintf(out, "\nfinalized height: %d (threshold %d of %d)\n",
		final.FinalizedHeight(), final.Threshold(), final.Committee())

	counts := make(map[finality.Status]int)
	for _, st := range final.Statuses() {
		counts[st]++
	}
	for _, st := range []finality.Status{
		finality.StatusProposed,
		finality.StatusVoting,
		finality.StatusFinalized,
		finality.StatusSuperseded,
	} {
		fmt.Fprintf(out, "%-10s %d\n", st, counts[st])
	}
	return nil
}
