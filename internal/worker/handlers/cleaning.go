package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/worker"
)

type cleaningPayload struct {
	Source          string   `json:"source"`
	RowCount        int      `json:"row_count"`
	Operations      []string `json:"operations"`
	SimulateFailure bool     `json:"simulate_failure"`
}

type cleaningResult struct {
	Source            string   `json:"source"`
	OriginalRows      int      `json:"original_rows"`
	CleanedRows       int      `json:"cleaned_rows"`
	RemovedRows       int      `json:"removed_rows"`
	OperationsApplied []string `json:"operations_applied"`
	QualityScore      float64  `json:"quality_score"`
}

// DataCleaning simulates an ETL pass: processing time grows with row count.
func DataCleaning(logger *slog.Logger) worker.Handler {
	return func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		var p cleaningPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode cleaning payload: %w", err)
		}
		if p.Source == "" {
			p.Source = "unknown"
		}
		if p.RowCount == 0 {
			p.RowCount = 1000
		}
		if len(p.Operations) == 0 {
			p.Operations = []string{"dedup", "normalize", "validate"}
		}

		logger.Info("cleaning data", "source", p.Source, "rows", p.RowCount, "operations", p.Operations)

		processing := 200*time.Millisecond + time.Duration(p.RowCount)*100*time.Microsecond
		if err := wait(ctx, processing); err != nil {
			return nil, err
		}
		if p.SimulateFailure {
			return nil, errors.New("data source connection lost (simulated)")
		}

		cleaned := int(float64(p.RowCount) * (0.85 + rand.Float64()*0.14))
		return json.Marshal(cleaningResult{
			Source:            p.Source,
			OriginalRows:      p.RowCount,
			CleanedRows:       cleaned,
			RemovedRows:       p.RowCount - cleaned,
			OperationsApplied: p.Operations,
			QualityScore:      round3(0.90 + rand.Float64()*0.10),
		})
	}
}
