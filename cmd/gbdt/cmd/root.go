package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gogbdt/gbdt/pkg/utils"
)

var (
	// Global flags
	verbose bool
	logger  utils.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gbdt",
	Short: "Train gradient-boosted decision tree ensembles",
	Long: `gbdt is a CLI tool for training gradient-boosted decision tree
ensembles on LIBSVM-format datasets.

It supports regression, logistic, and one-vs-all multiclass objectives,
and can persist trained ensembles as checkpoints for later prediction.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	binName := BinName()
	rootCmd.Example = `  # Train a regression ensemble and save a checkpoint
  ` + binName + ` train -i ./train.libsvm -o ./model.json --objective linear_regression

  # Train a binary classifier with custom hyperparameters
  ` + binName + ` train -i ./train.libsvm -o ./model.json --objective logistic_regression --rounds 200 --depth 5 --eta 0.1

  # Predict with a saved checkpoint
  ` + binName + ` predict -i ./test.libsvm -m ./model.json`
}

// GetLogger returns the configured logger.
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}
