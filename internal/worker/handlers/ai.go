package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/worker"
)

type aiPayload struct {
	Task            string `json:"task"`
	Input           string `json:"input"`
	SimulateFailure bool   `json:"simulate_failure"`
}

type aiResult struct {
	TaskType          string  `json:"task_type"`
	ProcessingTimeSec float64 `json:"processing_time_sec"`
	Result            any     `json:"result"`
}

type classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type summarization struct {
	Summary          string  `json:"summary"`
	CompressionRatio float64 `json:"compression_ratio"`
}

var sentiments = []string{"positive", "negative", "neutral"}

// AITask simulates model inference: processing time grows with input size,
// capped at five seconds.
func AITask(logger *slog.Logger) worker.Handler {
	return func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		var p aiPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode ai payload: %w", err)
		}
		if p.Task == "" {
			p.Task = "classification"
		}

		logger.Info("running ai task", "task", p.Task, "input_length", len(p.Input))

		processing := 300*time.Millisecond + time.Duration(len(p.Input))*time.Millisecond
		if processing > 5*time.Second {
			processing = 5 * time.Second
		}
		if err := wait(ctx, processing); err != nil {
			return nil, err
		}
		if p.SimulateFailure {
			return nil, errors.New("model inference timeout (simulated)")
		}

		var result any
		switch p.Task {
		case "classification":
			result = classification{
				Label:      sentiments[rand.Intn(len(sentiments))],
				Confidence: round3(0.7 + rand.Float64()*0.29),
			}
		case "summarization":
			summary := p.Input
			if len(summary) > 100 {
				summary = summary[:100] + "..."
			}
			result = summarization{Summary: summary, CompressionRatio: 0.3}
		default:
			result = map[string]string{"output": "processed"}
		}

		return json.Marshal(aiResult{
			TaskType:          p.Task,
			ProcessingTimeSec: math.Round(processing.Seconds()*100) / 100,
			Result:            result,
		})
	}
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
