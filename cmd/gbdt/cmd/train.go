package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogbdt/gbdt/internal/boost"
	"github.com/gogbdt/gbdt/internal/dataset"
)

var (
	trainInput           string
	trainOutput          string
	trainObjective       string
	trainRounds          int
	trainDepth           int
	trainEta             float64
	trainLambda          float64
	trainAlpha           float64
	trainGamma           float64
	trainMinChildWeight  float64
	trainMinLeafSize     int64
	trainColsampleTree   float64
	trainColsampleLevel  float64
	trainLabelsCount     int
	trainSeed            uint64
	trainOverlap         int
	trainDoublePrecision bool
	trainSparseThreshold float64
)

// trainCmd represents the train command
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a gradient-boosted ensemble from a LIBSVM dataset",
	Long: `Train reads a LIBSVM-format dataset, grows a gradient-boosted tree
ensemble against it, and optionally writes a JSON checkpoint of the
resulting model.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	binName := BinName()
	trainCmd.Example = fmt.Sprintf(`  %s train -i ./train.libsvm -o ./model.json
  %s train -i ./train.libsvm -o ./model.json --objective logistic_regression --rounds 200`, binName, binName)

	trainCmd.Flags().StringVarP(&trainInput, "input", "i", "", "Input LIBSVM dataset file (required)")
	trainCmd.Flags().StringVarP(&trainOutput, "output", "o", "", "Path to write the trained ensemble checkpoint (JSON)")
	trainCmd.MarkFlagRequired("input")

	trainCmd.Flags().StringVar(&trainObjective, "objective", "linear_regression",
		"Objective: linear_regression, logistic_regression, softmax_one_vs_all")
	trainCmd.Flags().IntVar(&trainRounds, "rounds", 100, "Number of boosting rounds")
	trainCmd.Flags().IntVar(&trainDepth, "depth", 6, "Maximum tree depth")
	trainCmd.Flags().Float64Var(&trainEta, "eta", 0.3, "Learning rate applied to each tree's contribution")
	trainCmd.Flags().Float64Var(&trainLambda, "lambda", 1.0, "L2 regularization on leaf weights")
	trainCmd.Flags().Float64Var(&trainAlpha, "alpha", 0.0, "L1 regularization on leaf weights")
	trainCmd.Flags().Float64Var(&trainGamma, "gamma", 0.0, "Reserved: stored with the model but not used by split finding or leaf weights")
	trainCmd.Flags().Float64Var(&trainMinChildWeight, "min-child-weight", 1.0, "Minimum sum of Hessian in a leaf")
	trainCmd.Flags().Int64Var(&trainMinLeafSize, "min-leaf-size", 1, "Minimum row count in a leaf")
	trainCmd.Flags().Float64Var(&trainColsampleTree, "colsample-by-tree", 1.0, "Fraction of columns sampled once per tree")
	trainCmd.Flags().Float64Var(&trainColsampleLevel, "colsample-by-level", 1.0, "Fraction of the per-tree columns resampled per level")
	trainCmd.Flags().IntVar(&trainLabelsCount, "labels-count", 1, "Number of classes for softmax_one_vs_all")
	trainCmd.Flags().Uint64Var(&trainSeed, "seed", 0, "Random seed for column sampling")
	trainCmd.Flags().IntVar(&trainOverlap, "overlap", 2, "In-flight split-candidate slots overlapped across device streams")
	trainCmd.Flags().BoolVar(&trainDoublePrecision, "double-precision", false, "Accumulate split statistics in double precision")
	trainCmd.Flags().Float64Var(&trainSparseThreshold, "sparse-threshold", dataset.DefaultLoadOptions().SparseThreshold,
		"Minimum zero/absent row fraction before a binary column is stored sparse")
}

func runTrain(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	if _, err := os.Stat(trainInput); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", trainInput)
	}

	log.Info("=== GBDT Training ===")
	log.Info("Input file:  %s", trainInput)
	log.Info("Objective:   %s", trainObjective)
	log.Info("Rounds:      %d", trainRounds)
	log.Info("Depth:       %d", trainDepth)
	log.Info("")

	loadOpts := dataset.LoadOptions{SparseThreshold: trainSparseThreshold}
	data, y, err := dataset.LoadLIBSVMFile(trainInput, loadOpts)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	log.Info("Loaded dataset: %d rows, %d dense columns, %d sparse columns", data.Rows, data.ColumnsDense, data.ColumnsSparse)

	param := boost.TreeParam{
		Depth:            trainDepth,
		MinLeafSize:      trainMinLeafSize,
		MinChildWeight:   trainMinChildWeight,
		Gamma:            trainGamma,
		Lambda:           trainLambda,
		Alpha:            trainAlpha,
		Eta:              trainEta,
		ColsampleByTree:  trainColsampleTree,
		ColsampleByLevel: trainColsampleLevel,
		LabelsCount:      trainLabelsCount,
		Objective:        boost.Objective(trainObjective),
	}
	cfg := boost.InternalConfiguration{
		Seed:            trainSeed,
		Overlap:         trainOverlap,
		DoublePrecision: trainDoublePrecision,
	}

	if err := boost.Validate(param, cfg, data.Columns()); err != nil {
		return fmt.Errorf("invalid training configuration: %w", err)
	}

	obj, err := boost.NewObjective(param)
	if err != nil {
		return fmt.Errorf("invalid objective: %w", err)
	}

	ensemble := boost.NewEnsemble(param, cfg, obj)

	log.Info("Starting training...")
	start := time.Now()
	err = ensemble.Fit(context.Background(), data, y, trainRounds, func(round, treesSoFar int, meanAbsGrad float64) {
		if round == 0 || (round+1)%10 == 0 || round+1 == trainRounds {
			log.Info("  round %4d/%d  trees=%-4d  mean|grad|=%.6f", round+1, trainRounds, treesSoFar, meanAbsGrad)
		}
	})
	trainTime := time.Since(start)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	log.Info("Training completed in %s", trainTime)

	if trainOutput != "" {
		blob, err := boost.EncodeEnsemble(ensemble)
		if err != nil {
			return fmt.Errorf("failed to encode checkpoint: %w", err)
		}
		if err := os.WriteFile(trainOutput, blob, 0644); err != nil {
			return fmt.Errorf("failed to write checkpoint %s: %w", trainOutput, err)
		}
		log.Info("Checkpoint written to: %s", trainOutput)
	}

	return nil
}
