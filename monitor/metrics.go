package monitor

import "time"

const (
	StageRetrieve = "retrieve"
	StageGenerate = "generate"
)

type StageMetrics struct {
	Stage    string        `json:"stage"`
	Items    int           `json:"items"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
}

type RequestMetrics struct {
	RequestID     string                  `json:"request_id"`
	TotalDuration time.Duration           `json:"total_duration"`
	Stages        map[string]StageMetrics `json:"stages"`
	StartTime     time.Time               `json:"start_time"`
	EndTime       time.Time               `json:"end_time"`
}

// StageMs is the duration of stage in milliseconds, 0 if it never ran.
func (m RequestMetrics) StageMs(stage string) int64 {
	return m.Stages[stage].Duration.Milliseconds()
}
