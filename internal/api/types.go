package api

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Timeframe is a kline/signal bucket width.
type Timeframe string

const (
	Timeframe1h Timeframe = "1h"
	Timeframe4h Timeframe = "4h"
	Timeframe1d Timeframe = "1d"
)

// Valid reports whether t is a timeframe the backend serves.
func (t Timeframe) Valid() bool {
	switch t {
	case Timeframe1h, Timeframe4h, Timeframe1d:
		return true
	}
	return false
}

// Default limits for list endpoints.
const (
	DefaultKlineLimit       = 120
	DefaultDecisionLimit    = 20
	DefaultSignalLimit      = 180
	DefaultMindHistoryLimit = 20
)

// Kline from GET /api/klines
type Kline struct {
	Symbol    string          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
	OpenTime  string          `json:"open_time"` // ISO 8601
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// RiskCheck is the risk gate outcome attached to a decision.
type RiskCheck struct {
	Approved    bool     `json:"approved"`
	Violations  []string `json:"violations"`
	Adjustments []string `json:"adjustments"`
}

// DecisionReasoning explains a decision. Unknown keys are kept in Extra.
type DecisionReasoning struct {
	MindAlignment string     `json:"mind_alignment,omitempty"`
	BiasCheck     string     `json:"bias_check,omitempty"`
	FinalLogic    string     `json:"final_logic,omitempty"`
	RiskCheck     *RiskCheck `json:"risk_check,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (r *DecisionReasoning) UnmarshalJSON(data []byte) error {
	type plain DecisionReasoning
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range []string{"mind_alignment", "bias_check", "final_logic", "risk_check"} {
		delete(all, k)
	}
	if len(all) > 0 {
		p.Extra = all
	}

	*r = DecisionReasoning(p)
	return nil
}

// Decision from GET /api/decisions
type Decision struct {
	ID              int64             `json:"id"`
	Timestamp       string            `json:"timestamp"`
	Decision        string            `json:"decision"` // buy, sell, hold
	PositionSizePct decimal.Decimal   `json:"position_size_pct"`
	EntryPrice      decimal.Decimal   `json:"entry_price"`
	StopLoss        decimal.Decimal   `json:"stop_loss"`
	TakeProfit      decimal.Decimal   `json:"take_profit"`
	Confidence      decimal.Decimal   `json:"confidence"`
	Reasoning       DecisionReasoning `json:"reasoning"`
	ModelUsed       string            `json:"model_used"`
	InputHash       string            `json:"input_hash,omitempty"`
}

// Position is one open position in the portfolio.
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	MarkPrice     decimal.Decimal `json:"mark_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Portfolio from GET /api/portfolio
type Portfolio struct {
	Symbol      string          `json:"symbol"`
	MarkPrice   decimal.Decimal `json:"mark_price"`
	Balance     decimal.Decimal `json:"balance"`
	Equity      decimal.Decimal `json:"equity"`
	Available   decimal.Decimal `json:"available"`
	ExposurePct decimal.Decimal `json:"exposure_pct"`
	DailyPnLPct decimal.Decimal `json:"daily_pnl_pct"`
	Positions   []Position      `json:"positions"`
}

// SignalsResponse from GET /api/signals. The indicator series vary by
// backend version, so they are kept raw.
type SignalsResponse map[string]json.RawMessage

// MarketMind is the editable cognitive-state document.
type MarketMind map[string]any

// MarketMindResponse from GET /api/mind
type MarketMindResponse struct {
	MarketMind    MarketMind `json:"market_mind"`
	PromptPreview string     `json:"prompt_preview"`
}

// MarketMindUpdate is the PUT /api/mind body.
type MarketMindUpdate struct {
	MarketMind    MarketMind `json:"market_mind"`
	ChangedBy     string     `json:"changed_by"`
	ChangeSummary string     `json:"change_summary"`
}

// MarketMindHistoryItem from GET /api/mind/history
type MarketMindHistoryItem struct {
	ID            int64      `json:"id"`
	ChangedAt     string     `json:"changed_at"`
	ChangedBy     string     `json:"changed_by"`
	ChangeSummary string     `json:"change_summary"`
	PreviousState MarketMind `json:"previous_state"`
	NewState      MarketMind `json:"new_state"`
}

// PerformancePoint is one day of the equity curve.
type PerformancePoint struct {
	Date   string          `json:"date"`
	Equity decimal.Decimal `json:"equity"`
}

// PerformanceMetrics summarizes realized performance.
type PerformanceMetrics struct {
	TotalReturnPct decimal.Decimal `json:"total_return_pct"`
	MaxDrawdownPct decimal.Decimal `json:"max_drawdown_pct"`
	WinRate        decimal.Decimal `json:"win_rate"`
	ProfitFactor   decimal.Decimal `json:"profit_factor"`
}

// PerformanceResponse from GET /api/performance
type PerformanceResponse struct {
	EquityCurve []PerformancePoint `json:"equity_curve"`
	Metrics     PerformanceMetrics `json:"metrics"`
}

// SchedulerStatus is reported either as a bare string or as {"status": "..."}.
type SchedulerStatus struct {
	Status string
}

func (s *SchedulerStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.Status = str
		return nil
	}

	var obj struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("scheduler status: %w", err)
	}
	s.Status = obj.Status
	return nil
}

func (s SchedulerStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Status)
}

// SystemStatus from GET /api/system/status
type SystemStatus struct {
	Trading               string          `json:"trading"`
	Scheduler             SchedulerStatus `json:"scheduler"`
	DataPipeline          string          `json:"data_pipeline"`
	Agent                 string          `json:"agent"`
	AnalysisIntervalHours decimal.Decimal `json:"analysis_interval_hours"`
	LastDecisionAt        *string         `json:"last_decision_at"`
}

// SystemHealth from GET /api/system/health
type SystemHealth struct {
	Status    string           `json:"status"`
	Service   string           `json:"service"`
	Scheduler *SchedulerStatus `json:"scheduler,omitempty"`
}

// CommandResult is the free-form body returned by command endpoints.
type CommandResult map[string]any

type itemsResponse[T any] struct {
	Items []T `json:"items"`
}
