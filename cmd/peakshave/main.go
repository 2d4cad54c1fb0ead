package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:          "peakshave",
		Short:        "Load-duration analysis and battery sizing for peak shaving",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file with PEAK_* overrides")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(analyzeCmd(g))
	rootCmd.AddCommand(compareCmd(g))
	rootCmd.AddCommand(paretoCmd(g))
	rootCmd.AddCommand(serveCmd(g))
	return rootCmd
}

// inputFlags select how a load profile file is read.
type inputFlags struct {
	interval int
	format   string
	unit     string
}

func (in *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&in.interval, "interval", "i", 60, "sample interval in minutes (15 or 60)")
	cmd.Flags().StringVarP(&in.format, "format", "f", "profile", "input format: profile or ha")
	cmd.Flags().StringVar(&in.unit, "unit", "W", "Home Assistant sensor unit: W or kW")
}

type analyzeFlags struct {
	inputFlags
	rowsOut   string
	blocksOut string
	optimize  bool
	topBlocks int
	color     bool
	jsonOut   bool
}

func analyzeCmd(g *globalFlags) *cobra.Command {
	f := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze [load-profile.csv]",
		Short: "Rank percentile thresholds and size storage for one load profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, &f.inputFlags)
			if err != nil {
				return err
			}
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], f)
		},
	}
	f.inputFlags.register(cmd)
	cmd.Flags().StringVar(&f.rowsOut, "csv-out", "", "write threshold rows as CSV to this file")
	cmd.Flags().StringVar(&f.blocksOut, "blocks-out", "", "write event blocks as CSV to this file")
	cmd.Flags().BoolVar(&f.optimize, "optimize", false, "also ask the remote optimizer for a sizing")
	cmd.Flags().IntVar(&f.topBlocks, "blocks", 10, "blocks to list for the recommended threshold (0 = all)")
	cmd.Flags().BoolVar(&f.color, "color", false, "color ratings with ANSI escapes")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "print the session as JSON instead of tables")
	return cmd
}

type compareFlags struct {
	inputFlags
	factors   string
	threshold float64
}

func compareCmd(g *globalFlags) *cobra.Command {
	f := &compareFlags{}
	cmd := &cobra.Command{
		Use:   "compare [load-profile.csv]",
		Short: "Replay scaled battery sizes against the load and compare how well they shave",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, &f.inputFlags)
			if err != nil {
				return err
			}
			factors, err := parseFactors(f.factors)
			if err != nil {
				return fmt.Errorf("invalid factors %q: %w", f.factors, err)
			}
			return runCompare(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], factors, f.threshold)
		},
	}
	f.inputFlags.register(cmd)
	cmd.Flags().StringVar(&f.factors, "factors", "0.5,0.75,1,1.25,1.5", "comma-separated scale factors applied to the heuristic sizing")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "shaving threshold in kW (default: recommended threshold)")
	return cmd
}

func paretoCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pareto [candidates.json]",
		Short: "Select npv_max, cycles_max and balanced strategies from sizing candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd, g, nil); err != nil {
				return err
			}
			return runPareto(cmd.Context(), cmd.OutOrStdout(), cmd.InOrStdin(), args[0])
		},
	}
}

func serveCmd(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API, websocket updates and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g, nil)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address")
	return cmd
}
