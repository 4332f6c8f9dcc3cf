package track

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultTimeout = 5 * time.Second

// Snapshot is the server-side view fetched by Refresh. TakenAt is the
// local time just before the request was issued; any local increment
// after that moment cannot be reflected in the snapshot.
type Snapshot struct {
	TotalInteractions int64
	TopComponents     []ComponentCount
	TakenAt           time.Time
}

// ComponentCount is one ranked component, either from the server or after
// merging in the local delta.
type ComponentCount struct {
	ComponentName string    `json:"componentName"`
	Count         int64     `json:"count"`
	LastUsed      time.Time `json:"lastUsed"`
}

// Client records UI interactions optimistically: every Track call bumps a
// local persisted counter immediately and reports the event to the server
// in the background. Read methods overlay the local deltas on the last
// fetched server snapshot, so displayed totals never go backwards while
// reports are in flight. Reconciliation happens only on explicit Refresh.
type Client struct {
	baseURL   string
	httpc     *http.Client
	store     *StateStore
	logger    *zap.Logger
	sessionID string

	mu       sync.Mutex
	state    *CounterState
	snapshot *Snapshot

	wg sync.WaitGroup
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 5 second timeout client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithLogger sets the client logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a tracking client persisting its counters at
// statePath. The session ID is generated fresh for every client and is
// never persisted; counters outlive the session, the session does not
// outlive the client.
func NewClient(baseURL, statePath string, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		httpc:     &http.Client{Timeout: defaultTimeout},
		store:     NewStateStore(statePath),
		logger:    zap.NewNop(),
		sessionID: uuid.New().String(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.state = c.store.Load()
	return c
}

// SessionID returns the session identifier attached to reported events.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Track records one interaction. The local counter is incremented and
// persisted before the server report is dispatched, so a crash between
// the two loses the report but never the local count. Report failures are
// logged and never surfaced to the caller.
func (c *Client) Track(componentName, variant, action string) {
	now := time.Now()

	c.mu.Lock()
	c.state.Counters[componentName]++
	c.state.ActionInteractions[action]++
	c.state.LastIncrementAt = now
	if err := c.store.Save(c.state); err != nil {
		c.logger.Warn("failed to persist counter state", zap.Error(err))
	}
	c.mu.Unlock()

	payload := map[string]interface{}{
		"componentName": componentName,
		"variant":       variant,
		"action":        action,
		"timestamp":     now.UTC(),
		"sessionId":     c.sessionID,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.report(payload)
	}()
}

func (c *Client) report(payload map[string]interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("failed to encode tracking report", zap.Error(err))
		return
	}

	resp, err := c.httpc.Post(c.baseURL+"/components/track", "application/json", bytes.NewReader(body))
	if err != nil {
		c.logger.Debug("tracking report failed", zap.Error(err))
		return
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		c.logger.Debug("tracking report rejected", zap.Int("status", resp.StatusCode))
	}
}

// overviewResponse is the subset of the stats payload the client needs.
type overviewResponse struct {
	Summary *struct {
		TotalInteractions int64 `json:"totalInteractions"`
	} `json:"summary"`
	BasicStats []struct {
		TotalInteractions int64 `json:"totalInteractions"`
	} `json:"basicStats"`
	TopComponents []ComponentCount `json:"topComponents"`
}

// serverTotal prefers the summary total, falling back to summing the
// per-component totals when the summary is absent.
func (o *overviewResponse) serverTotal() int64 {
	if o.Summary != nil {
		return o.Summary.TotalInteractions
	}
	var total int64
	for _, cs := range o.BasicStats {
		total += cs.TotalInteractions
	}
	return total
}

// Refresh fetches a fresh server snapshot and reconciles local counters
// against it. A local delta is zeroed only when no increment happened
// after the snapshot was requested; otherwise the delta is kept so
// interactions recorded during the refresh stay visible. On failure the
// local state is left untouched.
func (c *Client) Refresh(ctx context.Context) error {
	takenAt := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/components/stats?limit=1", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stats request returned status %d", resp.StatusCode)
	}

	var overview overviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&overview); err != nil {
		return fmt.Errorf("failed to decode stats: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = &Snapshot{
		TotalInteractions: overview.serverTotal(),
		TopComponents:     overview.TopComponents,
		TakenAt:           takenAt,
	}

	if !c.state.LastIncrementAt.After(takenAt) {
		c.state.Counters = make(map[string]int64)
		c.state.ActionInteractions = make(map[string]int64)
		if err := c.store.Save(c.state); err != nil {
			c.logger.Warn("failed to persist counter state", zap.Error(err))
		}
	}
	return nil
}

// ActionCounts returns a copy of the unreconciled per-action deltas.
func (c *Client) ActionCounts() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[string]int64, len(c.state.ActionInteractions))
	for action, n := range c.state.ActionInteractions {
		counts[action] = n
	}
	return counts
}

// CombinedTotal returns the last snapshot total plus every unreconciled
// local delta. Before the first Refresh the snapshot total is zero and
// the result is purely local.
func (c *Client) CombinedTotal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	if c.snapshot != nil {
		total = c.snapshot.TotalInteractions
	}
	return total + c.state.LocalTotal()
}

// TopComponents merges the snapshot ranking with local deltas by
// component name, sorted by merged count descending, truncated to n.
func (c *Client) TopComponents(n int) []ComponentCount {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := make(map[string]ComponentCount)
	if c.snapshot != nil {
		for _, tc := range c.snapshot.TopComponents {
			merged[tc.ComponentName] = tc
		}
	}
	for name, delta := range c.state.Counters {
		if delta == 0 {
			continue
		}
		cc := merged[name]
		cc.ComponentName = name
		cc.Count += delta
		if c.state.LastIncrementAt.After(cc.LastUsed) {
			cc.LastUsed = c.state.LastIncrementAt
		}
		merged[name] = cc
	}

	result := make([]ComponentCount, 0, len(merged))
	for _, cc := range merged {
		result = append(result, cc)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].ComponentName < result[j].ComponentName
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// Close waits for in-flight reports and persists the final state.
func (c *Client) Close() error {
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Save(c.state)
}
