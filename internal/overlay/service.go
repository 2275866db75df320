// Package overlay provides the HTTP handlers and business logic for the
// what-if overlay: ledger mutations, tenor allocation, waterfall stack
// decomposition, repricing impact, field resolution, and applying the
// overlay to the remote calculation engine.
//
// All monetary values use shopspring/decimal — never float64 for money.
package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/irrbb/whatif-engine/internal/allocator"
	"github.com/irrbb/whatif-engine/internal/calc"
	"github.com/irrbb/whatif-engine/internal/guard"
	"github.com/irrbb/whatif-engine/internal/impact"
	"github.com/irrbb/whatif-engine/internal/ledger"
	"github.com/irrbb/whatif-engine/internal/metrics"
	"github.com/irrbb/whatif-engine/internal/model"
	"github.com/irrbb/whatif-engine/internal/resolver"
	"github.com/irrbb/whatif-engine/internal/stack"
	"github.com/irrbb/whatif-engine/internal/tenor"
)

// Calculator is the remote calculation collaborator.
type Calculator interface {
	Calculate(ctx context.Context, req calc.Request) (*calc.Results, error)
}

// Service handles overlay operations for one session's ledger. The applied
// flag is tracked as the ledger version at the last successful apply; any
// mutation moves the version past it.
type Service struct {
	ledger    ledger.Store
	grid      tenor.Grid
	calc      Calculator
	scenarios []string
	wsHub     *WSHub // optional; nil disables broadcasting

	mu             sync.Mutex
	hasApplied     bool
	appliedVersion uint64
	lastResults    *calc.Results
}

// NewService creates a new overlay service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st ledger.Store, grid tenor.Grid, calculator Calculator, scenarios []string, hub *WSHub) *Service {
	if len(scenarios) == 0 {
		scenarios = calc.DefaultScenarios()
	}
	return &Service{
		ledger:    st,
		grid:      grid,
		calc:      calculator,
		scenarios: scenarios,
		wsHub:     hub,
	}
}

// --- Request/Response types ---

// AllocationBucket is one row of the allocation response: the tenor bucket
// plus its signed per-side deltas.
type AllocationBucket struct {
	BucketIndex      int             `json:"bucket_index"`
	Label            string          `json:"label"`
	UpperBoundMonths int             `json:"upper_bound_months"`
	AssetDelta       decimal.Decimal `json:"asset_delta"`
	LiabilityDelta   decimal.Decimal `json:"liability_delta"`
}

// AllocationResponse is the JSON body returned from GET /allocation.
type AllocationResponse struct {
	Version uint64             `json:"version"`
	Buckets []AllocationBucket `json:"buckets"`
}

// StackBucketRequest carries one bucket's baseline and shocked values for
// stack decomposition. Liability values follow the chart convention (<= 0).
type StackBucketRequest struct {
	Label             string          `json:"label"`
	BaselineAsset     decimal.Decimal `json:"baseline_asset"`
	BaselineLiability decimal.Decimal `json:"baseline_liability"`
	ShockedAsset      decimal.Decimal `json:"shocked_asset"`
	ShockedLiability  decimal.Decimal `json:"shocked_liability"`
}

// StacksRequest is the JSON body for POST /stacks.
type StacksRequest struct {
	Scenario string               `json:"scenario"`
	Buckets  []StackBucketRequest `json:"buckets"`
}

// StackBucketResponse is the decomposition of one bucket for both stacks.
type StackBucketResponse struct {
	Label       string          `json:"label"`
	Pair        stack.Pair      `json:"segments"`
	BaselineNet decimal.Decimal `json:"baseline_net"`
	ShockedNet  decimal.Decimal `json:"shocked_net"`
}

// StacksResponse is the JSON body returned from POST /stacks.
type StacksResponse struct {
	Scenario string                `json:"scenario"`
	Version  uint64                `json:"version"`
	Buckets  []StackBucketResponse `json:"buckets"`
}

// ResolveRequest is the JSON body for POST /resolve. Fields defaults to the
// built-in product schema when omitted.
type ResolveRequest struct {
	Fields    []resolver.Field  `json:"fields,omitempty"`
	Values    map[string]string `json:"values"`
	Excluded  []string          `json:"excluded,omitempty"`
	ChangedID string            `json:"changed_id,omitempty"`
}

// ResolveResponse is the JSON body returned from POST /resolve.
type ResolveResponse struct {
	Visible map[string]bool   `json:"visible"`
	Ready   bool              `json:"ready"`
	Values  map[string]string `json:"values"`
}

// StateResponse is the JSON body returned from GET /state.
type StateResponse struct {
	Version             uint64         `json:"version"`
	Applied             bool           `json:"applied"`
	Counts              map[string]int `json:"counts"`
	LockedSubcategories []string       `json:"locked_subcategories"`
}

// --- HTTP Handlers ---

// AddModification handles POST /api/v1/modifications
func (s *Service) AddModification(w http.ResponseWriter, r *http.Request) {
	var mod model.Modification
	if err := json.NewDecoder(r.Body).Decode(&mod); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if mod.Kind == "" {
		writeError(w, ledger.ErrMissingKind.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	existing, err := s.ledger.List(ctx)
	if err != nil {
		writeError(w, "failed to read ledger", http.StatusInternalServerError)
		return
	}
	if err := guard.CheckRemoveLock(existing, &mod); err != nil {
		metrics.LockRejectionsTotal.Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	id, err := s.ledger.Add(ctx, &mod)
	if err != nil {
		if errors.Is(err, ledger.ErrMissingKind) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, "failed to store modification", http.StatusInternalServerError)
		return
	}

	stored, err := s.ledger.Get(ctx, id)
	if err != nil {
		writeError(w, "failed to read back modification", http.StatusInternalServerError)
		return
	}

	s.afterMutation(ctx, "modification_added", id, string(mod.Kind), "add")

	slog.Info("modification added",
		"id", id,
		"kind", mod.Kind,
		"side", mod.Side,
		"subcategory", mod.Subcategory,
		"notional", mod.Notional.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(stored)
}

// ListModifications handles GET /api/v1/modifications
func (s *Service) ListModifications(w http.ResponseWriter, r *http.Request) {
	mods, err := s.ledger.List(r.Context())
	if err != nil {
		writeError(w, "failed to list modifications", http.StatusInternalServerError)
		return
	}
	if mods == nil {
		mods = []model.Modification{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mods)
}

// UpdateModification handles PATCH /api/v1/modifications/{modID}
func (s *Service) UpdateModification(w http.ResponseWriter, r *http.Request) {
	modID := chi.URLParam(r, "modID")

	var patch ledger.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := s.ledger.Update(ctx, modID, patch); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, "modification not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to update modification", http.StatusInternalServerError)
		return
	}

	stored, err := s.ledger.Get(ctx, modID)
	if err != nil {
		writeError(w, "failed to read back modification", http.StatusInternalServerError)
		return
	}

	s.afterMutation(ctx, "modification_updated", modID, string(stored.Kind), "update")

	slog.Info("modification updated", "id", modID, "kind", stored.Kind)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stored)
}

// RemoveModification handles DELETE /api/v1/modifications/{modID}
func (s *Service) RemoveModification(w http.ResponseWriter, r *http.Request) {
	modID := chi.URLParam(r, "modID")

	ctx := r.Context()
	if err := s.ledger.Remove(ctx, modID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, "modification not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to remove modification", http.StatusInternalServerError)
		return
	}

	s.afterMutation(ctx, "modification_removed", modID, "", "remove")

	slog.Info("modification removed", "id", modID)
	w.WriteHeader(http.StatusNoContent)
}

// ClearModifications handles DELETE /api/v1/modifications
func (s *Service) ClearModifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.ledger.Clear(ctx); err != nil {
		writeError(w, "failed to clear ledger", http.StatusInternalServerError)
		return
	}

	s.afterMutation(ctx, "ledger_cleared", "", "", "clear")

	slog.Info("ledger cleared")
	w.WriteHeader(http.StatusNoContent)
}

// GetAllocation handles GET /api/v1/allocation
// Recomputes the per-bucket signed deltas from the current ledger snapshot.
func (s *Service) GetAllocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	mods, err := s.ledger.List(ctx)
	if err != nil {
		writeError(w, "failed to read ledger", http.StatusInternalServerError)
		return
	}
	version, err := s.ledger.Version(ctx)
	if err != nil {
		writeError(w, "failed to read ledger version", http.StatusInternalServerError)
		return
	}

	deltas := allocator.Allocate(mods, s.grid)
	buckets := make([]AllocationBucket, len(deltas))
	for i, d := range deltas {
		buckets[i] = AllocationBucket{
			BucketIndex:      d.BucketIndex,
			Label:            s.grid[i].Label,
			UpperBoundMonths: s.grid[i].UpperBoundMonths,
			AssetDelta:       d.AssetDelta,
			LiabilityDelta:   d.LiabilityDelta,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AllocationResponse{Version: version, Buckets: buckets})
}

// ComputeStacks handles POST /api/v1/stacks
// Decomposes baseline and scenario-shocked values into renderable segments.
// The overlay deltas come from the current ledger's allocation; when the last
// apply returned per-bucket PV deltas for the requested scenario, those are
// used instead.
func (s *Service) ComputeStacks(w http.ResponseWriter, r *http.Request) {
	var req StacksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	mods, err := s.ledger.List(ctx)
	if err != nil {
		writeError(w, "failed to read ledger", http.StatusInternalServerError)
		return
	}
	version, err := s.ledger.Version(ctx)
	if err != nil {
		writeError(w, "failed to read ledger version", http.StatusInternalServerError)
		return
	}

	deltas := allocator.Allocate(mods, s.grid)
	remote := s.remoteBucketDeltas(req.Scenario, version)

	resp := StacksResponse{Scenario: req.Scenario, Version: version}
	for _, b := range req.Buckets {
		dA, dL := decimal.Zero, decimal.Zero
		if rd, ok := remote[b.Label]; ok {
			// Engine PV deltas are already in the chart's signed convention.
			dA, dL = rd.AssetPVDelta, rd.LiabilityPVDelta
		} else if idx := s.grid.Index(b.Label); idx >= 0 {
			dA, dL = stack.FromAllocator(deltas[idx])
		}
		pair := stack.DecomposePair(
			b.BaselineAsset, b.BaselineLiability,
			b.ShockedAsset, b.ShockedLiability,
			dA, dL,
		)
		resp.Buckets = append(resp.Buckets, StackBucketResponse{
			Label:       b.Label,
			Pair:        pair,
			BaselineNet: pair.Baseline.Net(),
			ShockedNet:  pair.Shocked.Net(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// remoteBucketDeltas returns the last apply's per-bucket PV deltas for the
// scenario, keyed by bucket name. Empty when no apply has succeeded, when the
// results predate the current ledger version, or when the engine returned no
// bucket detail.
func (s *Service) remoteBucketDeltas(scenario string, version uint64) map[string]calc.BucketDelta {
	if scenario == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastResults == nil || !s.hasApplied || s.appliedVersion != version {
		return nil
	}

	out := make(map[string]calc.BucketDelta)
	for _, bd := range s.lastResults.BucketDeltas {
		if bd.Scenario == scenario {
			out[bd.BucketName] = bd
		}
	}
	return out
}

// GetImpact handles GET /api/v1/impact?base_nii=...&total_assets=...
// Returns the repricing income-statement summary.
func (s *Service) GetImpact(w http.ResponseWriter, r *http.Request) {
	baseNII, err := queryDecimal(r, "base_nii")
	if err != nil {
		writeError(w, "invalid base_nii", http.StatusBadRequest)
		return
	}
	totalAssets, err := queryDecimal(r, "total_assets")
	if err != nil {
		writeError(w, "invalid total_assets", http.StatusBadRequest)
		return
	}

	mods, err := s.ledger.List(r.Context())
	if err != nil {
		writeError(w, "failed to read ledger", http.StatusInternalServerError)
		return
	}

	summary := impact.Aggregate(mods, baseNII, totalAssets)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// ResolveFields handles POST /api/v1/resolve
// Computes field visibility and readiness for a product-configuration form
// state, applying cascade clears and derived values first.
func (s *Service) ResolveFields(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	schema := req.Fields
	if len(schema) == 0 {
		schema = resolver.DefaultProductSchema()
	}
	values := req.Values
	if values == nil {
		values = map[string]string{}
	}
	if req.ChangedID != "" {
		values = resolver.CascadeClear(schema, values, req.ChangedID)
	}
	values = resolver.ApplyDerived(schema, values)

	excluded := make(map[string]bool, len(req.Excluded))
	for _, id := range req.Excluded {
		excluded[id] = true
	}

	res := resolver.Resolve(schema, values, excluded)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ResolveResponse{
		Visible: res.Visible,
		Ready:   res.Ready,
		Values:  values,
	})
}

// Apply handles POST /api/v1/apply
// Sends the current ledger snapshot to the remote calculation engine and,
// on success, arms the applied flag for the snapshot's version. A failure
// leaves the ledger untouched.
func (s *Service) Apply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	mods, err := s.ledger.List(ctx)
	if err != nil {
		writeError(w, "failed to read ledger", http.StatusInternalServerError)
		return
	}
	version, err := s.ledger.Version(ctx)
	if err != nil {
		writeError(w, "failed to read ledger version", http.StatusInternalServerError)
		return
	}

	req := calc.Request{
		Scenarios:     s.scenarios,
		Modifications: calc.BuildRecords(mods),
	}

	start := time.Now()
	results, err := s.calc.Calculate(ctx, req)
	metrics.ApplyLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		switch {
		case errors.Is(err, calc.ErrStaleResponse):
			metrics.StaleResponsesTotal.Inc()
			writeError(w, "superseded by a newer apply", http.StatusConflict)
		case errors.Is(err, calc.ErrImpactUnavailable):
			slog.Warn("remote calculation failed", "err", err)
			writeError(w, "impact unavailable", http.StatusServiceUnavailable)
		default:
			writeError(w, "calculation failed", http.StatusInternalServerError)
		}
		return
	}

	s.mu.Lock()
	s.hasApplied = true
	s.appliedVersion = version
	s.lastResults = results
	s.mu.Unlock()

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: "applied", Version: version})
	}

	slog.Info("overlay applied",
		"version", version,
		"modifications", len(mods),
		"scenarios", len(s.scenarios),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// GetResults handles GET /api/v1/results
// Returns the results of the most recent successful apply, if any.
func (s *Service) GetResults(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	results := s.lastResults
	s.mu.Unlock()

	if results == nil {
		writeError(w, "no results: overlay has not been applied", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// GetState handles GET /api/v1/state
func (s *Service) GetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	version, err := s.ledger.Version(ctx)
	if err != nil {
		writeError(w, "failed to read ledger version", http.StatusInternalServerError)
		return
	}
	mods, err := s.ledger.List(ctx)
	if err != nil {
		writeError(w, "failed to read ledger", http.StatusInternalServerError)
		return
	}

	counts := make(map[string]int)
	for _, kind := range []model.Kind{model.KindAdd, model.KindRemove, model.KindReprice, model.KindBehavioural} {
		n, err := s.ledger.CountByKind(ctx, kind)
		if err != nil {
			writeError(w, "failed to count modifications", http.StatusInternalServerError)
			return
		}
		counts[string(kind)] = n
	}

	s.mu.Lock()
	applied := s.hasApplied && s.appliedVersion == version
	s.mu.Unlock()

	locked := guard.LockedSubcategories(mods)
	if locked == nil {
		locked = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StateResponse{
		Version:             version,
		Applied:             applied,
		Counts:              counts,
		LockedSubcategories: locked,
	})
}

// afterMutation updates gauges and broadcasts the change. The applied flag
// needs no explicit reset here: it compares versions, and every mutation
// advances the version.
func (s *Service) afterMutation(ctx context.Context, event, id, kind, op string) {
	metrics.ModificationsTotal.WithLabelValues(kind, op).Inc()
	if mods, err := s.ledger.List(ctx); err == nil {
		metrics.LedgerSize.Set(float64(len(mods)))
	}
	if s.wsHub != nil {
		version, _ := s.ledger.Version(ctx)
		s.wsHub.Broadcast(WSMessage{Type: event, ID: id, Kind: kind, Version: version})
	}
}

func queryDecimal(r *http.Request, key string) (decimal.Decimal, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
