// Package agent tracks per-agent execution outcomes and feedback, and
// maintains the adaptive selection weights a router uses to bias which
// agent answers a query.
package agent

import "time"

// Type identifies a specialized reasoning agent.
type Type string

const (
	TypeFinancialPlanning Type = "financial_planning"
	TypeRiskAssessment    Type = "risk_assessment"
	TypeInvestmentAdvisor Type = "investment_advisor"
	TypeMonitoring        Type = "monitoring"
	TypeTaxAdvisor        Type = "tax_advisor"
	TypeGeneral           Type = "general"
)

// AllTypes returns every known agent type.
func AllTypes() []Type {
	return []Type{
		TypeFinancialPlanning,
		TypeRiskAssessment,
		TypeInvestmentAdvisor,
		TypeMonitoring,
		TypeTaxAdvisor,
		TypeGeneral,
	}
}

// Valid reports whether t is a known agent type.
func (t Type) Valid() bool {
	switch t {
	case TypeFinancialPlanning, TypeRiskAssessment, TypeInvestmentAdvisor,
		TypeMonitoring, TypeTaxAdvisor, TypeGeneral:
		return true
	}
	return false
}

// Execution records one completed agent run.
type Execution struct {
	// TraceID uniquely identifies the run; feedback references it.
	TraceID string `json:"trace_id"`

	// AgentType is the agent that ran.
	AgentType Type `json:"agent_type"`

	// UserID is the user the agent ran for.
	UserID string `json:"user_id,omitempty"`

	// Success reports whether the run completed successfully.
	Success bool `json:"success"`

	// Confidence is the agent's self-reported confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// DurationMs is the run duration in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// Timestamp is when the run finished. Zero means "now".
	Timestamp time.Time `json:"timestamp"`
}

// Sentiment classifies a feedback rating.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Feedback is a user's rating of one execution.
type Feedback struct {
	// TraceID references the rated execution.
	TraceID string `json:"trace_id"`

	// UserID is the user who gave the rating.
	UserID string `json:"user_id,omitempty"`

	// Rating is a 1-5 star rating.
	Rating int `json:"rating"`

	// Comment is optional free text.
	Comment string `json:"comment,omitempty"`

	// Timestamp is when the feedback was given. Zero means "now".
	Timestamp time.Time `json:"timestamp"`
}

// Sentiment maps the rating onto a sentiment bucket: 4-5 positive,
// 1-2 negative, 3 neutral.
func (f Feedback) Sentiment() Sentiment {
	switch {
	case f.Rating >= 4:
		return SentimentPositive
	case f.Rating <= 2:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Metrics are the accumulated counters for one agent type.
type Metrics struct {
	AgentType        Type    `json:"agent_type"`
	TotalExecutions  int     `json:"total_executions"`
	SuccessCount     int     `json:"success_count"`
	ConfidenceSum    float64 `json:"confidence_sum"`
	DurationSumMs    int64   `json:"duration_sum_ms"`
	PositiveFeedback int     `json:"positive_feedback"`
	NegativeFeedback int     `json:"negative_feedback"`
	NeutralFeedback  int     `json:"neutral_feedback"`

	// LastUpdated is when an execution or feedback last mutated these
	// counters.
	LastUpdated time.Time `json:"last_updated"`
}

// SuccessRate returns the success percentage in [0, 100].
func (m Metrics) SuccessRate() float64 {
	if m.TotalExecutions == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(m.TotalExecutions) * 100
}

// AvgConfidence returns the mean confidence in [0, 1].
func (m Metrics) AvgConfidence() float64 {
	if m.TotalExecutions == 0 {
		return 0
	}
	return m.ConfidenceSum / float64(m.TotalExecutions)
}

// AvgDurationMs returns the mean run duration in milliseconds.
func (m Metrics) AvgDurationMs() float64 {
	if m.TotalExecutions == 0 {
		return 0
	}
	return float64(m.DurationSumMs) / float64(m.TotalExecutions)
}

// PositiveFeedbackRate returns positive/(positive+negative) as a
// percentage; neutral feedback is excluded. No feedback means 0.
func (m Metrics) PositiveFeedbackRate() float64 {
	rated := m.PositiveFeedback + m.NegativeFeedback
	if rated == 0 {
		return 0
	}
	return float64(m.PositiveFeedback) / float64(rated) * 100
}

// Performance is the derived per-agent report returned to callers.
type Performance struct {
	AgentType            Type    `json:"agent_type"`
	TotalExecutions      int     `json:"total_executions"`
	SuccessRate          float64 `json:"success_rate"`
	AvgConfidence        float64 `json:"avg_confidence"`
	AvgDurationMs        float64 `json:"avg_duration_ms"`
	PositiveFeedbackRate float64 `json:"positive_feedback_rate"`
	FeedbackCount        int     `json:"feedback_count"`

	// Trend is the confidence improvement over the trend window as a
	// percentage; 0 when samples are insufficient.
	Trend float64 `json:"trend"`

	// CurrentWeight is the agent's live selection weight.
	CurrentWeight float64 `json:"current_weight"`

	// LastUpdated is when the underlying counters last changed.
	LastUpdated time.Time `json:"last_updated"`
}
