package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sylwekczmil/cacp/internal/commander"
	"github.com/sylwekczmil/cacp/internal/config"
	"github.com/sylwekczmil/cacp/internal/logging"
)

var (
	envFiles     []string
	registryPath string
	outputDir    string
	incremental  bool

	rootCmd = &cobra.Command{
		Use:           "cacp",
		Short:         "Compare classification algorithms across datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFiles...)
		},
	}

	runCmd = &cobra.Command{
		Use:   "run [config.yaml]",
		Short: "Run the experiment described by a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE:  runExperiment,
	}

	incrementalCmd = &cobra.Command{
		Use:   "incremental [config.yaml]",
		Short: "Run a configuration as an incremental (prequential) experiment",
		Args:  cobra.ExactArgs(1),
		RunE:  runIncremental,
	}

	reportCmd = &cobra.Command{
		Use:   "report [result dir]",
		Short: "Regenerate the reports of a finished experiment",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport,
	}

	infoCmd = &cobra.Command{
		Use:   "info [config.yaml]",
		Short: "Write the dataset and classifier tables without running anything",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}

	classifiersCmd = &cobra.Command{
		Use:   "classifiers",
		Short: "List the available classifiers and metrics",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			commander.NewCommander(cmd.OutOrStdout()).Catalog()
		},
	}

	experimentsCmd = &cobra.Command{
		Use:   "experiments",
		Short: "List the experiments recorded in the registry",
		Args:  cobra.NoArgs,
		RunE:  runExperiments,
	}

	demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Compare SVC, decision tree and random forest on the reference datasets",
		Args:  cobra.NoArgs,
		RunE:  runDemo,
	}
)

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")

	reportCmd.Flags().BoolVar(&incremental, "incremental", false, "regenerate the incremental reports")
	experimentsCmd.Flags().StringVar(&registryPath, "registry", "", "registry database (default $CACP_REGISTRY)")
	demoCmd.Flags().StringVar(&outputDir, "output", "demo_results", "output directory")
	demoCmd.Flags().StringVar(&registryPath, "registry", "", "registry database to record the run in")

	rootCmd.AddCommand(runCmd, incrementalCmd, reportCmd, infoCmd, classifiersCmd, experimentsCmd, demoCmd)
}

func runExperiment(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	_, err = commander.NewCommander(cmd.OutOrStdout()).RunExperiment(cmd.Context(), cfg)
	return err
}

func runIncremental(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	cfg.Type = config.TypeIncremental
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, err = commander.NewCommander(cmd.OutOrStdout()).RunExperiment(cmd.Context(), cfg)
	return err
}

func runReport(cmd *cobra.Command, args []string) error {
	logConfig := logging.DefaultConfig()
	if level := os.Getenv(config.EnvPrefix + "LOG_LEVEL"); level != "" {
		logConfig.Level = level
	}
	logger, err := logging.New(logConfig)
	if err != nil {
		return err
	}
	return commander.NewCommander(cmd.OutOrStdout()).Report(args[0], incremental, logging.ForExperiment(logger, args[0]))
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	return commander.NewCommander(cmd.OutOrStdout()).Info(cmd.Context(), cfg)
}

func runExperiments(cmd *cobra.Command, args []string) error {
	path := registryPath
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "REGISTRY")
	}
	return commander.NewCommander(cmd.OutOrStdout()).Experiments(cmd.Context(), path)
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg := commander.DemoConfig(outputDir)
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if registryPath != "" {
		cfg.Registry = registryPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, err := commander.NewCommander(cmd.OutOrStdout()).RunExperiment(cmd.Context(), cfg)
	return err
}
