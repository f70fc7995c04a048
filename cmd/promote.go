package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/maru-labs/maru/internal/tuning"
)

// thresholdsPath is the operator-managed file of promoted per-group fuzzy
// thresholds. The tuner recommends changes; only this command applies them.
var thresholdsPath = "thresholds.yaml"

type thresholdsFile struct {
	Thresholds map[string]float64 `yaml:"thresholds"`
}

var promoteCmd = &cobra.Command{
	Use:   "promote [group] [threshold]",
	Short: "Promote a fuzzy-match threshold for a keyword group",
	Long: `Promote a tuned fuzzy-match threshold for a normalization keyword
group. Recommendations computed from correction feedback never apply
themselves; promotion through this command is the only way a threshold
changes.

Examples:
  maru promote progress 0.75
  maru promote methodology 0.65`,
	Args: cobra.ExactArgs(2),
	RunE: runPromote,
}

func init() {
	rootCmd.AddCommand(promoteCmd)
	promoteCmd.Flags().StringVar(&thresholdsPath, "thresholds", "thresholds.yaml", "Path to the promoted thresholds file")
}

func runPromote(cmd *cobra.Command, args []string) error {
	group := args[0]
	threshold, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("threshold must be a number: %w", err)
	}

	// Bounds checking lives in the tuner so the CLI and a future admin API
	// agree on what is promotable.
	tuner := tuning.NewTuner(threshold)
	if err := tuner.Promote(group, threshold); err != nil {
		return err
	}

	file, err := readThresholds()
	if err != nil {
		return err
	}
	file.Thresholds[group] = threshold

	if err := writeThresholds(file); err != nil {
		return err
	}

	fmt.Printf("promoted %s to %.2f\n", group, threshold)

	groups := make([]string, 0, len(file.Thresholds))
	for g := range file.Thresholds {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		fmt.Printf("  %s: %.2f\n", g, file.Thresholds[g])
	}
	return nil
}

func readThresholds() (*thresholdsFile, error) {
	file := &thresholdsFile{Thresholds: make(map[string]float64)}

	data, err := os.ReadFile(thresholdsPath)
	if os.IsNotExist(err) {
		return file, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", thresholdsPath, err)
	}
	if file.Thresholds == nil {
		file.Thresholds = make(map[string]float64)
	}
	return file, nil
}

func writeThresholds(file *thresholdsFile) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return err
	}
	return os.WriteFile(thresholdsPath, data, 0o644)
}

// loadThresholds feeds promoted thresholds into a live tuner. A missing
// file is not an error.
func loadThresholds(tuner *tuning.Tuner) error {
	file, err := readThresholds()
	if err != nil {
		return err
	}
	for group, threshold := range file.Thresholds {
		if err := tuner.Promote(group, threshold); err != nil {
			return fmt.Errorf("threshold for %s: %w", group, err)
		}
	}
	return nil
}
