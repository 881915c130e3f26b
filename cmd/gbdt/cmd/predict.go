package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogbdt/gbdt/internal/boost"
	"github.com/gogbdt/gbdt/internal/dataset"
)

var (
	predictInput      string
	predictCheckpoint string
	predictOutput     string
)

// predictCmd represents the predict command
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score a LIBSVM dataset with a trained ensemble checkpoint",
	Long: `Predict loads an ensemble checkpoint written by "train" and scores
every row of a LIBSVM-format dataset, printing per-row predictions (or
writing them to a file) and, for a single-label model whose dataset has
labels, the mean squared error against them.`,
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringVarP(&predictInput, "input", "i", "", "Input LIBSVM dataset file to score (required)")
	predictCmd.Flags().StringVarP(&predictCheckpoint, "model", "m", "", "Ensemble checkpoint file written by train (required)")
	predictCmd.Flags().StringVarP(&predictOutput, "output", "o", "", "Path to write one prediction per line (default: stdout)")
	predictCmd.MarkFlagRequired("input")
	predictCmd.MarkFlagRequired("model")
}

func runPredict(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	blob, err := os.ReadFile(predictCheckpoint)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint %s: %w", predictCheckpoint, err)
	}
	ensemble, err := boost.DecodeEnsemble(blob)
	if err != nil {
		return fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	data, y, err := dataset.LoadLIBSVMFile(predictInput, dataset.DefaultLoadOptions())
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	log.Info("Scoring %d rows with %d labels", data.Rows, ensemble.Objective.LabelsCount())
	pred := ensemble.Predict(data)

	var out *os.File
	if predictOutput == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(predictOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file %s: %w", predictOutput, err)
		}
		defer out.Close()
	}

	labels := ensemble.Objective.LabelsCount()
	var sqErr float64
	haveLabels := len(y) == data.Rows && labels == 1
	for i := 0; i < data.Rows; i++ {
		fields := make([]string, labels)
		for l := 0; l < labels; l++ {
			fields[l] = strconv.FormatFloat(pred[l*data.Rows+i], 'f', 6, 64)
		}
		fmt.Fprintln(out, strings.Join(fields, "\t"))
		if haveLabels {
			d := pred[i] - y[i]
			sqErr += d * d
		}
	}

	if haveLabels {
		log.Info("Mean squared error: %.6f", sqErr/float64(data.Rows))
	}
	return nil
}
