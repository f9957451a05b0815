package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/bundle"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/inference"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/receipt"
)

const maxStdinBytes = 1 << 20

// errorDoc is the single document written to stderr on failure.
type errorDoc struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func predictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict",
		Short: "Score one receipt read from stdin",
		Long: `Predict reads one JSON receipt from stdin, either typed fields or
{"items": [{"label": ..., "value": ...}]}, and writes exactly one JSON decision
to stdout. On any failure it writes one {"error", "message"} document to stderr
and exits 1. Logs are discarded unless --verbose is set.

Example:
  echo '{"items":[{"label":"Vendor","value":"Starbucks"},{"label":"Total Amount","value":"$12.45"}]}' | receiptrisk predict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				writeErrorDoc(cmd.ErrOrStderr(), "invalid_config", err.Error())
				return &exitError{code: 1}
			}
			logger := newLogger(cfg, cmd.ErrOrStderr(), true)
			store := bundle.NewStore(cfg.Bundle.Dir, cfg.Training.Registry())
			if code := runPredict(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), store, logger); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

// runPredict implements the stdin contract and returns the exit code.
// Exactly one of stdout or stderr receives a document.
func runPredict(in io.Reader, out, errOut io.Writer, loader inference.Loader, logger *slog.Logger) int {
	fail := func(code, msg string) int {
		logger.Error("prediction failed", "code", code, "message", msg)
		writeErrorDoc(errOut, code, msg)
		return 1
	}

	data, err := io.ReadAll(io.LimitReader(in, maxStdinBytes))
	if err != nil {
		return fail("invalid_request", fmt.Sprintf("read stdin: %v", err))
	}
	rec, err := receipt.Decode(data)
	if err != nil {
		if errors.Is(err, receipt.ErrEmptyInput) {
			return fail("invalid_request", "No input data provided")
		}
		return fail("invalid_request", err.Error())
	}

	svc := inference.New()
	if err := svc.Load(loader); err != nil {
		return fail("model_not_loaded", fmt.Sprintf("model load failed: %v", err))
	}
	info, _ := svc.Model()
	logger.Debug("model loaded", "version", info.Version, "model_type", info.ModelType)

	pred, err := svc.Score(rec)
	if err != nil {
		return fail("prediction_failed", fmt.Sprintf("Prediction failed: %v", err))
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(pred.Decision); err != nil {
		return fail("prediction_failed", fmt.Sprintf("encode decision: %v", err))
	}
	if _, err := out.Write(buf.Bytes()); err != nil {
		logger.Error("write decision", "err", err)
		return 1
	}
	return 0
}

func writeErrorDoc(w io.Writer, code, msg string) {
	_ = json.NewEncoder(w).Encode(errorDoc{Error: code, Message: msg})
}
