package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/bundle"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/config"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/dataset"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/engine"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/evaluate"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/inference"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/risk"
)

// batchSummary is the outcome of scoring a labelled table against the live bundle.
type batchSummary struct {
	Version   string          `json:"version" yaml:"version"`
	ModelType string          `json:"model_type" yaml:"model_type"`
	Records   int             `json:"records" yaml:"records"`
	Scored    int             `json:"scored" yaml:"scored"`
	Failed    int             `json:"failed" yaml:"failed"`
	Levels    map[string]int  `json:"risk_levels" yaml:"risk_levels"`
	AUC       *float64        `json:"auc,omitempty" yaml:"auc,omitempty"`
	Report    evaluate.Report `json:"report" yaml:"report"`
}

func batchCmd() *cobra.Command {
	var (
		data       string
		table      string
		output     string
		noProgress bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Score a labelled receipt table and report accuracy against the live bundle",
		Long: `Batch scores every receipt of a labelled table through the worker pool and
compares the decisions with the is_fraud labels.

Examples:
  receiptrisk batch --data receipts.csv
  receiptrisk batch --data receipts.db --output yaml`,
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
			svc := inference.New()
			if err := svc.Load(bundle.NewStore(cfg.Bundle.Dir, cfg.Training.Registry())); err != nil {
				return err
			}

			var progress func()
			if !noProgress {
				bar := newProgressBar(cmd.ErrOrStderr(), len(tab.Records), "Scoring receipts")
				progress = func() { advance(bar) }
			}
			sum, err := runBatch(cmd.Context(), svc, tab, batchEngineConf(cfg), progress, logger)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, sum, func(tw *tabwriter.Writer) {
				writeBatchTable(tw, sum)
			})
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "labelled receipt table (.csv, .db, .sqlite, .sqlite3)")
	cmd.Flags().StringVar(&table, "table", dataset.DefaultTable, "table name for SQLite datasets")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "report format (table, json, yaml)")
	cmd.Flags().Int("workers", 0, "scoring workers (overrides batch.workers)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "hide the progress bar")
	_ = cmd.MarkFlagRequired("data")
	_ = viper.BindPFlag("batch.workers", cmd.Flags().Lookup("workers"))
	return cmd
}

func batchEngineConf(cfg *config.Config) config.EngineConf {
	return config.EngineConf{
		Workers:    cfg.Batch.Workers,
		QueueDepth: cfg.Engine.QueueDepth,
		TimeoutMs:  cfg.Engine.TimeoutMs,
	}
}

// runBatch scores tab with svc on a private engine and summarises the outcome.
func runBatch(ctx context.Context, svc *inference.Service, tab *dataset.Table, conf config.EngineConf, progress func(), logger *slog.Logger) (batchSummary, error) {
	info, ok := svc.Model()
	if !ok {
		return batchSummary{}, inference.ErrModelNotLoaded
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eng := engine.New(ctx, svc, conf)
	defer eng.Shutdown()

	results, err := eng.ScoreBatch(ctx, tab.Unlabelled(), progress)
	if err != nil {
		return batchSummary{}, err
	}

	sum := batchSummary{
		Version:   info.Version,
		ModelType: info.ModelType,
		Records:   len(tab.Records),
		Levels: map[string]int{
			risk.LevelLow.String():    0,
			risk.LevelMedium.String(): 0,
			risk.LevelHigh.String():   0,
		},
	}
	var (
		scores []float64
		labels []int
	)
	for i, res := range results {
		if res == nil || res.Err != nil {
			sum.Failed++
			if res != nil {
				logger.Warn("receipt scoring failed", "index", i, "err", res.Err)
			}
			continue
		}
		sum.Scored++
		sum.Levels[res.Prediction.RiskLevel.String()]++
		scores = append(scores, res.Prediction.FraudProbability)
		label := 0
		if tab.Records[i].IsFraud {
			label = 1
		}
		labels = append(labels, label)
	}
	if sum.Scored == 0 {
		return sum, errors.New("batch: no receipt could be scored")
	}

	sum.Report = evaluate.Classify(evaluate.Predict(scores), labels)
	if auc, err := evaluate.AUC(scores, labels); err == nil {
		sum.AUC = &auc
	} else {
		logger.Info("AUC not reported", "reason", err)
	}
	logger.Info("batch complete", "scored", sum.Scored, "failed", sum.Failed, "accuracy", sum.Report.Accuracy)
	return sum, nil
}

func writeBatchTable(tw *tabwriter.Writer, s batchSummary) {
	fmt.Fprintf(tw, "Model:\t%s (%s)\n", s.ModelType, s.Version)
	fmt.Fprintf(tw, "Records:\t%d (scored %d, failed %d)\n", s.Records, s.Scored, s.Failed)
	fmt.Fprintf(tw, "Accuracy:\t%.2f%%\n", s.Report.Accuracy*100)
	if s.AUC != nil {
		fmt.Fprintf(tw, "ROC AUC:\t%.4f\n", *s.AUC)
	}
	fmt.Fprintln(tw)

	cm := s.Report.Confusion
	fmt.Fprintln(tw, "\tPREDICTED LEGIT\tPREDICTED FRAUD")
	fmt.Fprintf(tw, "actual legit\t%d\t%d\n", cm[0][0], cm[0][1])
	fmt.Fprintf(tw, "actual fraud\t%d\t%d\n", cm[1][0], cm[1][1])
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "CLASS\tPRECISION\tRECALL\tF1\tSUPPORT")
	writeClassRow(tw, "legitimate", s.Report.Legitimate)
	writeClassRow(tw, "fraud", s.Report.Fraud)
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "RISK LEVEL\tRECEIPTS")
	for _, l := range []risk.Level{risk.LevelLow, risk.LevelMedium, risk.LevelHigh} {
		fmt.Fprintf(tw, "%s\t%d\n", l, s.Levels[l.String()])
	}
}

func writeClassRow(w io.Writer, name string, m evaluate.ClassMetrics) {
	fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.4f\t%d\n", name, m.Precision, m.Recall, m.F1, m.Support)
}
