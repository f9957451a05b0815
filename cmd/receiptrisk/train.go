package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/bundle"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/config"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/dataset"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/train"
)

const topFeatures = 10

type trainOutput struct {
	Version      string `json:"version" yaml:"version"`
	BundleDir    string `json:"bundle_dir" yaml:"bundle_dir"`
	train.Report `yaml:",inline"`
}

func trainCmd() *cobra.Command {
	var (
		data       string
		table      string
		output     string
		dryRun     bool
		noProgress bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train candidate classifiers and publish the best as a new bundle",
		Long: `Train reads a labelled receipt table (CSV, or a SQLite table), derives features,
balances the classes, fits every configured candidate and publishes the one with
the highest held-out ROC AUC to the bundle store. A failed run leaves the live
bundle untouched.

Examples:
  receiptrisk train --data receipts.csv --bundle-dir models
  receiptrisk train --data receipts.db --table receipts --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr(), false)

			tab, err := dataset.Load(cmd.Context(), data, table)
			if err != nil {
				return err
			}
			logger.Info("dataset loaded", "path", data, "records", len(tab.Records), "fraud", tab.FraudCount())

			tc := trainerConfig(cfg.Training)
			reg := cfg.Training.Registry()
			opts := []train.Option{train.WithLogger(logger)}
			if !noProgress {
				bar := newProgressBar(cmd.ErrOrStderr(), len(tc.Candidates), "Fitting candidates")
				opts = append(opts, train.OnCandidateFitted(func(train.CandidateReport) { advance(bar) }))
			}

			res, err := train.New(tc, reg, opts...).Train(cmd.Context(), tab.Records)
			if err != nil {
				return err
			}
			res.Bundle.Metadata.DatasetColumns = tab.Columns

			out := trainOutput{BundleDir: cfg.Bundle.Dir, Report: res.Report}
			if !dryRun {
				store := bundle.NewStore(cfg.Bundle.Dir, reg)
				if out.Version, err = store.Publish(res.Bundle); err != nil {
					return err
				}
				logger.Info("bundle published", "version", out.Version, "dir", cfg.Bundle.Dir)
			}
			return render(cmd.OutOrStdout(), output, out, func(tw *tabwriter.Writer) {
				writeTrainTable(tw, out)
			})
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "labelled receipt table (.csv, .db, .sqlite, .sqlite3)")
	cmd.Flags().StringVar(&table, "table", dataset.DefaultTable, "table name for SQLite datasets")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "report format (table, json, yaml)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "train and report without publishing")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "hide the progress bar")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func trainerConfig(t config.TrainingConf) train.Config {
	return train.Config{
		Candidates:      t.Candidates,
		TestSize:        t.TestSize,
		Seed:            t.Seed,
		Neighbors:       t.Neighbors,
		ThresholdPolicy: t.ThresholdPolicy,
	}
}

func writeTrainTable(tw *tabwriter.Writer, out trainOutput) {
	r := out.Report
	if out.Version != "" {
		fmt.Fprintf(tw, "Version:\t%s\n", out.Version)
	} else {
		fmt.Fprintf(tw, "Version:\t(dry run, not published)\n")
	}
	fmt.Fprintf(tw, "Records:\t%d (%d fraud)\n", r.Records, r.FraudRecords)
	fmt.Fprintf(tw, "Balanced samples:\t%d (train %d, test %d)\n", r.BalancedSamples, r.TrainSamples, r.TestSamples)
	fmt.Fprintf(tw, "Thresholds:\tamount > %.2f high, < %.2f low; items > %.0f\n",
		r.Thresholds.HighAmount, r.Thresholds.LowAmount, r.Thresholds.HighItemCount)
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "MODEL\tAUC\tACCURACY\tPRECISION\tRECALL\tF1\tDURATION")
	for _, c := range r.Candidates {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%s\n",
			c.Model, c.AUC, c.Report.Accuracy,
			c.Report.Fraud.Precision, c.Report.Fraud.Recall, c.Report.Fraud.F1, c.Duration.Round(time.Millisecond))
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Winner:\t%s (AUC %.4f)\n", r.Winner, r.BestAUC)
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "FEATURE\tIMPORTANCE")
	for i, imp := range r.Importances {
		if i == topFeatures {
			break
		}
		fmt.Fprintf(tw, "%s\t%.4f\n", imp.Feature, imp.Importance)
	}
}
