// Package calc talks to the remote EVE/NII calculation engine. The engine
// receives a reduced view of the ledger snapshot and returns per-scenario
// deltas; this package only defines the shapes exchanged, not the valuation
// math, which lives entirely on the remote side.
//
// Responses are keyed by a monotonically increasing request counter: a
// completion that is no longer the latest issued request is discarded, so
// out-of-order network completion can never paint stale results.
package calc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/irrbb/whatif-engine/internal/model"
)

// Recognized rate-shock scenario identifiers.
const (
	ScenarioBase         = "base"
	ScenarioWorst        = "worst"
	ScenarioParallelUp   = "parallel-up"
	ScenarioParallelDown = "parallel-down"
	ScenarioSteepener    = "steepener"
	ScenarioFlattener    = "flattener"
	ScenarioShortUp      = "short-up"
	ScenarioShortDown    = "short-down"
)

// DefaultScenarios is the scenario list requested when the environment
// supplies none.
func DefaultScenarios() []string {
	return []string{
		ScenarioParallelUp, ScenarioParallelDown,
		ScenarioSteepener, ScenarioFlattener,
		ScenarioShortUp, ScenarioShortDown,
	}
}

var (
	// ErrImpactUnavailable is returned when the remote engine cannot be
	// reached or rejects the request. It is a non-fatal condition: the
	// ledger is untouched and the caller shows "impact unavailable".
	ErrImpactUnavailable = errors.New("calc: impact unavailable")

	// ErrStaleResponse is returned when a response arrives for a request
	// that has been superseded by a newer one.
	ErrStaleResponse = errors.New("calc: stale response discarded")
)

// Record is the reduced modification view the remote engine understands.
// Field names follow the engine's wire contract.
type Record struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Side        string          `json:"side,omitempty"`
	Label       string          `json:"label,omitempty"`
	Notional    decimal.Decimal `json:"notional"`
	Currency    string          `json:"currency,omitempty"`
	Category    string          `json:"category,omitempty"`
	Subcategory string          `json:"subcategory,omitempty"`
	Rate        decimal.Decimal `json:"rate,omitempty"`
	Spread      decimal.Decimal `json:"spread,omitempty"`

	Maturity     float64 `json:"maturity,omitempty"`
	StartDate    string  `json:"startDate,omitempty"`
	MaturityDate string  `json:"maturityDate,omitempty"`

	PaymentFreq   string `json:"paymentFreq,omitempty"`
	RepricingFreq string `json:"repricingFreq,omitempty"`
	RefIndex      string `json:"refIndex,omitempty"`

	RemoveMode  string   `json:"removeMode,omitempty"`
	ContractIDs []string `json:"contractIds,omitempty"`

	Repricing   *model.RepricingOverride   `json:"repricing,omitempty"`
	Behavioural *model.BehaviouralOverride `json:"behavioural,omitempty"`
}

// Request is the outbound calculation payload.
type Request struct {
	AnalysisDate  string   `json:"analysis_date,omitempty"`
	Scenarios     []string `json:"scenarios"`
	Modifications []Record `json:"modifications"`
}

// BucketDelta is a per-tenor EVE present-value delta for one scenario,
// consumed directly by the stack decomposer as its dA/dL input.
type BucketDelta struct {
	Scenario         string          `json:"scenario"`
	BucketName       string          `json:"bucket_name"`
	AssetPVDelta     decimal.Decimal `json:"asset_pv_delta"`
	LiabilityPVDelta decimal.Decimal `json:"liability_pv_delta"`
}

// MonthDelta is a per-month NII delta for one scenario.
type MonthDelta struct {
	Scenario     string          `json:"scenario"`
	MonthIndex   int             `json:"month_index"`
	MonthLabel   string          `json:"month_label"`
	IncomeDelta  decimal.Decimal `json:"income_delta"`
	ExpenseDelta decimal.Decimal `json:"expense_delta"`
}

// Results is the inbound calculation response.
type Results struct {
	BaseEVEDelta      decimal.Decimal            `json:"base_eve_delta"`
	WorstEVEDelta     decimal.Decimal            `json:"worst_eve_delta"`
	BaseNIIDelta      decimal.Decimal            `json:"base_nii_delta"`
	WorstNIIDelta     decimal.Decimal            `json:"worst_nii_delta"`
	ScenarioEVEDeltas map[string]decimal.Decimal `json:"scenario_eve_deltas"`
	ScenarioNIIDeltas map[string]decimal.Decimal `json:"scenario_nii_deltas"`
	BucketDeltas      []BucketDelta              `json:"eve_bucket_deltas"`
	MonthDeltas       []MonthDelta               `json:"nii_month_deltas"`
	CalculatedAt      string                     `json:"calculated_at"`
}

// BuildRecords reduces a ledger snapshot to the wire form. The snapshot is
// already a deep copy, so the reduction never aliases ledger state.
func BuildRecords(mods []model.Modification) []Record {
	records := make([]Record, 0, len(mods))
	for i := range mods {
		m := &mods[i]
		rec := Record{
			ID:            m.ID,
			Type:          string(m.Kind),
			Side:          string(m.Side),
			Label:         m.Label,
			Notional:      m.Notional,
			Currency:      m.Currency,
			Category:      m.Category,
			Subcategory:   m.Subcategory,
			Rate:          m.Rate,
			Spread:        m.Spread,
			Maturity:      m.MaturityYears,
			PaymentFreq:   m.PaymentFreq,
			RepricingFreq: m.RepricingFreq,
			RefIndex:      m.RefIndex,
			RemoveMode:    string(m.RemoveMode),
			ContractIDs:   m.ContractIDs,
			Repricing:     m.Repricing,
			Behavioural:   m.Behavioural,
		}
		if m.StartDate != nil {
			rec.StartDate = m.StartDate.Format("2006-01-02")
		}
		if m.MaturityDate != nil {
			rec.MaturityDate = m.MaturityDate.Format("2006-01-02")
		}
		records = append(records, rec)
	}
	return records
}

// Client issues calculation requests against the remote engine.
type Client struct {
	baseURL string
	httpc   *http.Client
	seq     atomic.Uint64
}

// NewClient creates a calculation client for the given engine base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Calculate sends the request and returns the engine's results.
//
// Each call takes the next value of the request counter; when the call
// completes, the result is kept only if no newer request has been issued in
// the meantime. A superseded completion returns ErrStaleResponse. Transport
// and HTTP-level failures return ErrImpactUnavailable.
func (c *Client) Calculate(ctx context.Context, req Request) (*Results, error) {
	seq := c.seq.Add(1)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImpactUnavailable, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/calculate/whatif", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImpactUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImpactUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: engine returned %d", ErrImpactUnavailable, resp.StatusCode)
	}

	var results Results
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImpactUnavailable, err)
	}

	// Stale-response suppression: only the latest issued request may
	// deliver results, regardless of completion order.
	if c.seq.Load() != seq {
		return nil, ErrStaleResponse
	}
	return &results, nil
}
