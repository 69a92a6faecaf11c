// Package abr is the player-side adaptive quality decision engine.
package abr

import (
	"context"
	"sync"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/platform"

	"go.uber.org/zap"
)

const (
	metricsHistorySize   = 5
	bandwidthHistorySize = 10
	decisionHistorySize  = 20

	memoryPressureFraction = 0.8
	// Upgrades require headroom on the device.
	upgradeMemoryFraction = 0.7
	upgradeCPUFraction    = 0.6
	upgradeMaxRebuffer    = 0.01
	minUpgradeConfidence  = 0.7

	// Bandwidth rule: trouble below 1.2x the current bitrate, target 80% of the average.
	bandwidthTroubleFactor = 1.2
	bandwidthTargetFactor  = 0.8
	// Local-only recommendations keep 30% headroom.
	fallbackSafetyFactor = 0.7
	fallbackConfidence   = 0.5
)

// LevelChangeFunc receives each decision when it is applied.
type LevelChangeFunc func(decision domain.AdaptationDecision)

type Config struct {
	Profile      platform.Profile
	Ladder       domain.Ladder
	SessionID    domain.SessionID
	InitialLevel int
	// Backend may be nil, in which case every recommendation is the local fallback.
	Backend       Backend
	Clock         Clock
	OnLevelChange LevelChangeFunc
	Logger        *zap.SugaredLogger
}

type pendingChange struct {
	seq      uint64
	decision domain.AdaptationDecision
	timer    Timer
}

// Engine evaluates telemetry against the platform's adaptation rules and schedules at
// most one quality change per evaluation. A newer decision cancels a pending one.
type Engine struct {
	profile   platform.Profile
	rules     platform.AdaptationRules
	ladder    domain.Ladder
	sessionID domain.SessionID
	backend   Backend
	clock     Clock
	onChange  LevelChangeFunc
	logger    *zap.SugaredLogger

	mu         sync.Mutex
	level      int
	metrics    []domain.PerformanceMetrics
	bandwidth  []float64 // kbps
	decisions  []domain.AdaptationDecision
	lastChange time.Time
	lastIssued time.Time
	pending    *pendingChange
	seq        uint64
	stopped    bool
}

func NewEngine(cfg Config) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}
	ladder := cfg.Ladder
	if len(ladder) == 0 {
		ladder = domain.DefaultLadder
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	level := cfg.InitialLevel
	if level < 0 || level > ladder.MaxIndex() {
		level = 0
	}

	return &Engine{
		profile:   cfg.Profile,
		rules:     cfg.Profile.Rules,
		ladder:    ladder,
		sessionID: cfg.SessionID,
		backend:   cfg.Backend,
		clock:     clock,
		onChange:  cfg.OnLevelChange,
		logger:    logger,
		level:     level,
	}
}

// RecordMetrics appends a telemetry sample. A positive BandwidthKbps also feeds the bandwidth history.
func (e *Engine) RecordMetrics(m domain.PerformanceMetrics) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if m.Timestamp.IsZero() {
		m.Timestamp = e.clock.Now()
	}
	e.metrics = appendCapped(e.metrics, m, metricsHistorySize)
	if m.BandwidthKbps > 0 {
		e.bandwidth = appendCapped(e.bandwidth, m.BandwidthKbps, bandwidthHistorySize)
	}
}

// RecordBandwidth appends a throughput sample in kbps.
func (e *Engine) RecordBandwidth(kbps float64) {
	if kbps <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bandwidth = appendCapped(e.bandwidth, kbps, bandwidthHistorySize)
}

// snapshot is the state one evaluation works from. Cooldown is decided when it is taken.
type snapshot struct {
	now          time.Time
	level        int
	lastIssued   time.Time
	lastChange   time.Time
	latest       domain.PerformanceMetrics
	avgMemory    float64
	avgCPU       float64
	avgLatency   float64
	avgRebuffer  float64
	avgBandwidth float64 // kbps, 0 when unknown
	coolingDown  bool
}

func (e *Engine) snapshot() (snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || len(e.metrics) == 0 {
		return snapshot{}, false
	}

	s := snapshot{
		now:        e.clock.Now(),
		level:      e.level,
		lastIssued: e.lastIssued,
		lastChange: e.lastChange,
		latest:     e.metrics[len(e.metrics)-1],
	}
	for _, m := range e.metrics {
		s.avgMemory += m.MemoryUsageMB
		s.avgCPU += m.CPUUsage
		s.avgLatency += m.InputLatencyMs
		s.avgRebuffer += m.RebufferRatio
	}
	n := float64(len(e.metrics))
	s.avgMemory /= n
	s.avgCPU /= n
	s.avgLatency /= n
	s.avgRebuffer /= n
	s.avgBandwidth = average(e.bandwidth)

	last := e.lastChange
	if e.lastIssued.After(last) {
		last = e.lastIssued
	}
	s.coolingDown = !last.IsZero() && s.now.Sub(last) < e.rules.UpgradeCooldown
	return s, true
}

// Evaluate runs the rule cascade once and schedules the winning decision, if any.
func (e *Engine) Evaluate(ctx context.Context) *domain.AdaptationDecision {
	s, ok := e.snapshot()
	if !ok {
		return nil
	}

	decision := e.downgrade(s)
	if decision == nil {
		decision = e.upgrade(ctx, s)
	}
	if decision == nil {
		decision = e.latencyGuard(s)
	}
	if decision == nil {
		return nil
	}

	decision.PreviousLevel = s.level
	decision.IssuedAt = s.now
	decision.MetricsSnapshot = s.latest

	if !e.issue(*decision, s) {
		return nil
	}
	return decision
}

// downgrade covers the resource, rebuffer and bandwidth rules in priority order.
func (e *Engine) downgrade(s snapshot) *domain.AdaptationDecision {
	smartTV := e.profile.IsSmartTV()

	if smartTV && e.rules.MaxMemoryUsageMB > 0 && s.avgMemory > e.rules.MaxMemoryUsageMB*memoryPressureFraction {
		if d := e.stepDown(s.level, 2, domain.ReasonMemoryPressure, 0.95, time.Second); d != nil {
			return d
		}
	}

	if smartTV && e.rules.MaxCPUUsage > 0 && s.avgCPU > e.rules.MaxCPUUsage {
		if d := e.stepDown(s.level, 1, domain.ReasonCPUOverload, 0.9, 2*time.Second); d != nil {
			return d
		}
	}

	if s.avgRebuffer > e.rules.MaxRebufferRatio {
		if d := e.stepDown(s.level, 1, domain.ReasonRebuffering, 0.85, 3*time.Second); d != nil {
			return d
		}
	}

	if s.avgBandwidth > 0 {
		current, _ := e.ladder.Level(s.level)
		if s.avgBandwidth < float64(current.BitrateBps)*bandwidthTroubleFactor/1000 {
			target := e.ladder.HighestWithin(s.avgBandwidth * bandwidthTargetFactor * 1000).ID
			if target < s.level {
				return &domain.AdaptationDecision{
					TargetLevel: target,
					Reason:      domain.ReasonLowBandwidth,
					Confidence:  0.8,
					DelayMs:     5000,
				}
			}
		}
	}

	return nil
}

func (e *Engine) upgrade(ctx context.Context, s snapshot) *domain.AdaptationDecision {
	if s.coolingDown || s.level >= e.ladder.MaxIndex() {
		return nil
	}
	if s.latest.BufferLength < e.rules.BufferTargetSec || s.avgRebuffer > upgradeMaxRebuffer {
		return nil
	}
	if e.rules.MaxMemoryUsageMB > 0 && s.avgMemory >= e.rules.MaxMemoryUsageMB*upgradeMemoryFraction {
		return nil
	}
	if e.rules.MaxCPUUsage > 0 && s.avgCPU >= e.rules.MaxCPUUsage*upgradeCPUFraction {
		return nil
	}

	rec := e.recommend(ctx, s.avgBandwidth)
	if rec.Confidence < minUpgradeConfidence || rec.RecommendedLevel <= s.level {
		return nil
	}

	target := rec.RecommendedLevel
	if target > e.ladder.MaxIndex() {
		target = e.ladder.MaxIndex()
	}
	return &domain.AdaptationDecision{
		TargetLevel: target,
		Reason:      domain.ReasonUpgrade,
		Confidence:  rec.Confidence,
		DelayMs:     int(e.upgradeDelay() / time.Millisecond),
	}
}

func (e *Engine) latencyGuard(s snapshot) *domain.AdaptationDecision {
	if !e.profile.IsSmartTV() || e.rules.MaxInputLatencyMs <= 0 || s.avgLatency <= e.rules.MaxInputLatencyMs {
		return nil
	}
	return e.stepDown(s.level, 1, domain.ReasonInputLatency, 0.7, 4*time.Second)
}

// stepDown returns nil when the player is already at the bottom so later rules get a chance.
func (e *Engine) stepDown(level, steps int, reason string, confidence float64, delay time.Duration) *domain.AdaptationDecision {
	target := level - steps
	if target < 0 {
		target = 0
	}
	if target == level {
		return nil
	}
	return &domain.AdaptationDecision{
		TargetLevel: target,
		Reason:      reason,
		Confidence:  confidence,
		DelayMs:     int(delay / time.Millisecond),
	}
}

func (e *Engine) upgradeDelay() time.Duration {
	if e.rules.UpgradeDelay > 0 {
		return e.rules.UpgradeDelay
	}
	return 8 * time.Second
}

// Recommendation returns the backend's view of the session, or the local fallback.
func (e *Engine) Recommendation(ctx context.Context) domain.StreamingRecommendation {
	e.mu.Lock()
	avg := average(e.bandwidth)
	e.mu.Unlock()
	return e.recommend(ctx, avg)
}

// recommend never fails: backend errors degrade to a bandwidth-only pick.
func (e *Engine) recommend(ctx context.Context, avgKbps float64) domain.StreamingRecommendation {
	if e.backend != nil {
		rec, err := e.backend.Recommend(ctx, e.sessionID)
		if err == nil {
			return rec
		}
		e.logger.Debugw("backend recommendation unavailable, using fallback",
			"session_id", e.sessionID,
			"error", err,
		)
	}

	bps := avgKbps * 1000
	if bps <= 0 {
		bps = domain.DefaultBandwidthBps
	}
	return domain.StreamingRecommendation{
		RecommendedLevel:   e.ladder.HighestWithin(bps * fallbackSafetyFactor).ID,
		EstimatedBandwidth: bps,
		Confidence:         fallbackConfidence,
		Source:             domain.RecommendationSourceFallback,
	}
}

// issue records the decision and schedules it, replacing any pending change. It refuses
// when the level moved or another decision was issued while the evaluation was suspended
// on the backend, so overlapping evaluations cannot both pass the same cooldown check.
func (e *Engine) issue(d domain.AdaptationDecision, s snapshot) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || e.level != s.level {
		return false
	}
	if !e.lastIssued.Equal(s.lastIssued) || !e.lastChange.Equal(s.lastChange) {
		e.logger.Debugw("dropping decision from stale evaluation",
			"session_id", e.sessionID,
			"reason", d.Reason,
			"to_level", d.TargetLevel,
		)
		return false
	}

	e.decisions = appendCapped(e.decisions, d, decisionHistorySize)
	e.lastIssued = d.IssuedAt
	e.cancelPendingLocked()

	e.seq++
	p := &pendingChange{seq: e.seq, decision: d}
	p.timer = e.clock.AfterFunc(time.Duration(d.DelayMs)*time.Millisecond, func() {
		e.apply(p.seq)
	})
	e.pending = p

	e.logger.Infow("quality decision scheduled",
		"session_id", e.sessionID,
		"reason", d.Reason,
		"from_level", d.PreviousLevel,
		"to_level", d.TargetLevel,
		"confidence", d.Confidence,
		"delay_ms", d.DelayMs,
	)
	return true
}

func (e *Engine) apply(seq uint64) {
	e.mu.Lock()
	if e.stopped || e.pending == nil || e.pending.seq != seq {
		e.mu.Unlock()
		return
	}
	d := e.pending.decision
	e.pending = nil
	e.level = d.TargetLevel
	e.lastChange = e.clock.Now()
	onChange := e.onChange
	e.mu.Unlock()

	if onChange != nil {
		onChange(d)
	}
}

func (e *Engine) cancelPendingLocked() {
	if e.pending != nil {
		e.pending.timer.Stop()
		e.pending = nil
	}
}

// HandleFatalError drops straight to level 0, bypassing the cascade and any pending change.
func (e *Engine) HandleFatalError(detail string) domain.AdaptationDecision {
	e.mu.Lock()
	now := e.clock.Now()
	d := domain.AdaptationDecision{
		TargetLevel:   0,
		PreviousLevel: e.level,
		Reason:        domain.ReasonFatalError,
		Confidence:    1,
		IssuedAt:      now,
	}
	if len(e.metrics) > 0 {
		d.MetricsSnapshot = e.metrics[len(e.metrics)-1]
	}

	e.cancelPendingLocked()
	e.decisions = appendCapped(e.decisions, d, decisionHistorySize)
	e.level = 0
	e.lastChange = now
	e.lastIssued = now
	onChange := e.onChange
	e.mu.Unlock()

	e.logger.Warnw("fatal playback error, dropping to lowest quality",
		"session_id", e.sessionID,
		"detail", detail,
		"from_level", d.PreviousLevel,
	)
	if onChange != nil {
		onChange(d)
	}
	return d
}

// Run evaluates every interval until ctx ends. A zero interval uses the platform's.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = e.rules.EvaluationInterval
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	tick := make(chan struct{}, 1)
	for {
		t := e.clock.AfterFunc(interval, func() {
			select {
			case tick <- struct{}{}:
			default:
			}
		})

		select {
		case <-ctx.Done():
			t.Stop()
			e.Stop()
			return
		case <-tick:
			e.Evaluate(ctx)
		}
	}
}

// Stop cancels any pending change. The engine issues no decisions afterwards.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	e.cancelPendingLocked()
}

func (e *Engine) CurrentLevel() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

// Pending returns the scheduled but not yet applied decision.
func (e *Engine) Pending() (domain.AdaptationDecision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return domain.AdaptationDecision{}, false
	}
	return e.pending.decision, true
}

// Decisions returns the recent decision history, oldest first.
func (e *Engine) Decisions() []domain.AdaptationDecision {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.AdaptationDecision(nil), e.decisions...)
}

func appendCapped[T any](s []T, v T, max int) []T {
	s = append(s, v)
	if len(s) > max {
		s = append(s[:0], s[len(s)-max:]...)
	}
	return s
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
