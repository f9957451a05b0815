package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/bundle"
)

type inspectOutput struct {
	Current  string          `json:"current" yaml:"current"`
	Versions []string        `json:"versions,omitempty" yaml:"versions,omitempty"`
	Metadata bundle.Metadata `json:"metadata" yaml:"metadata"`
}

func inspectCmd() *cobra.Command {
	var (
		output     string
		versionArg string
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show metadata of the live (or a named) model bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store := bundle.NewStore(cfg.Bundle.Dir, cfg.Training.Registry())

			var b *bundle.Bundle
			if versionArg != "" {
				b, err = store.LoadVersion(versionArg)
			} else {
				b, err = store.Load()
			}
			if err != nil {
				return err
			}
			out := inspectOutput{Metadata: b.Metadata}
			if out.Current, err = store.Current(); err != nil {
				return err
			}
			if out.Versions, err = store.Versions(); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, out, func(tw *tabwriter.Writer) {
				writeInspectTable(tw, out)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format (table, json, yaml)")
	cmd.Flags().StringVar(&versionArg, "version", "", "inspect this published version instead of current")
	return cmd
}

func writeInspectTable(tw *tabwriter.Writer, out inspectOutput) {
	m := out.Metadata
	fmt.Fprintf(tw, "Version:\t%s\n", m.Version)
	if out.Current != "" && out.Current != m.Version {
		fmt.Fprintf(tw, "Current:\t%s\n", out.Current)
	}
	fmt.Fprintf(tw, "Model type:\t%s\n", m.ModelType)
	fmt.Fprintf(tw, "Trained at:\t%s\n", m.TrainedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Best AUC:\t%.4f\n", m.BestAUC)
	fmt.Fprintf(tw, "Accuracy:\t%.4f\n", m.Accuracy)
	fmt.Fprintf(tw, "Samples:\t%d training, %d test\n", m.TrainingSamples, m.TestSamples)
	fmt.Fprintf(tw, "Features:\t%d\n", m.FeaturesUsed)
	if m.Thresholds != nil {
		fmt.Fprintf(tw, "Thresholds:\tamount > %.2f high, < %.2f low; items > %.0f\n",
			m.Thresholds.HighAmount, m.Thresholds.LowAmount, m.Thresholds.HighItemCount)
	}
	if len(m.DatasetColumns) > 0 {
		fmt.Fprintf(tw, "Dataset columns:\t%s\n", strings.Join(m.DatasetColumns, ", "))
	}
	if len(out.Versions) > 0 {
		fmt.Fprintf(tw, "Published versions:\t%d\n", len(out.Versions))
	}
	fmt.Fprintln(tw)

	names := make([]string, 0, len(m.FeatureImportances))
	for name := range m.FeatureImportances {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := m.FeatureImportances[names[i]], m.FeatureImportances[names[j]]
		if a != b {
			return a > b
		}
		return names[i] < names[j]
	})
	fmt.Fprintln(tw, "FEATURE\tIMPORTANCE")
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%.4f\n", name, m.FeatureImportances[name])
	}
}
