package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"edgestream/internal/client/abr"
	"edgestream/internal/core/domain"
	"edgestream/internal/core/platform"
	"edgestream/pkg/config"
	"edgestream/pkg/logger"
	"edgestream/pkg/utils"

	"github.com/grafov/m3u8"
	"go.uber.org/zap"
)

const reportInterval = 10 * time.Second

func main() {
	var (
		configPath = flag.String("config", "", "path to config.yaml")
		serverURL  = flag.String("server", "", "edge server base URL")
		userAgent  = flag.String("ua", "", "User-Agent used for platform detection")
		platformID = flag.String("platform", "", "platform id, overrides -ua detection")
		contentID  = flag.String("content", "", "content id to play")
		duration   = flag.Duration("duration", 2*time.Minute, "how long to play")
		baseKbps   = flag.Float64("bandwidth", 6000, "mean simulated throughput in kbps")
		listOnly   = flag.Bool("platforms", false, "list known platforms and exit")
	)
	flag.Parse()

	registry := platform.NewRegistry()
	if *listOnly {
		for _, p := range registry.List() {
			fmt.Printf("%-10s %-22s %s\n", p.ID, p.Name, p.DeviceType())
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.Player.ServerURL = *serverURL
	}
	if *userAgent != "" {
		cfg.Player.UserAgent = *userAgent
	}
	if *contentID != "" {
		cfg.Player.ContentID = *contentID
	}

	zapLogger := logger.Must(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	profile := registry.ForUserAgent(cfg.Player.UserAgent)
	if *platformID != "" {
		if _, ok := registry.Lookup(*platformID); !ok {
			log.Warnw("unknown platform, using desktop profile", "platform", *platformID)
		}
		profile = registry.Get(*platformID)
	}

	hlsConfig, _ := json.MarshalIndent(profile.HLS, "", "  ")
	fmt.Printf("platform: %s (%s)\nhlsConfig: %s\n", profile.Name, profile.ID, hlsConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	backend := abr.NewHTTPBackend(cfg.Player.ServerURL, cfg.Player.BackendTimeout, log,
		abr.WithUserAgent(cfg.Player.UserAgent))

	started := time.Now()
	master, err := backend.FetchMaster(ctx, cfg.Player.ContentID, "", profile.DeviceType())
	if err != nil {
		log.Fatalw("failed to fetch master playlist", "error", err)
	}
	startupMs := float64(time.Since(started).Milliseconds())

	ladder, err := offeredLadder(master.Body)
	if err != nil {
		log.Fatalw("invalid master playlist", "error", err)
	}
	log.Infow("master playlist received",
		"session_id", master.SessionID,
		"edge_location", master.EdgeLocation,
		"cache", master.CacheStatus,
		"variants", len(ladder),
	)

	p := &player{
		backend:   backend,
		sessionID: master.SessionID,
		ladder:    ladder,
		log:       log,
	}

	rec, err := backend.Recommend(ctx, master.SessionID)
	startLevel := 0
	if err == nil && rec.RecommendedLevel < len(ladder) {
		startLevel = rec.RecommendedLevel
	}

	engine := abr.NewEngine(abr.Config{
		Profile:       profile,
		Ladder:        ladder,
		SessionID:     master.SessionID,
		InitialLevel:  startLevel,
		Backend:       backend,
		OnLevelChange: p.onLevelChange,
		Logger:        log,
	})
	p.queue(domain.EventPlaybackStart, map[string]interface{}{"qualityId": startLevel})

	go engine.Run(ctx, cfg.Player.EvaluationInterval)

	sim := newTelemetry(profile, ladder, *baseKbps, time.Now().UnixNano())
	second := time.NewTicker(time.Second)
	defer second.Stop()
	report := time.NewTicker(reportInterval)
	defer report.Stop()

	var (
		reports, failed int
		lastKbps        float64
	)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-second.C:
			m := sim.next(engine.CurrentLevel())
			engine.RecordMetrics(m)
			lastKbps = m.BandwidthKbps
			if m.RebufferRatio > 0 {
				p.queue(domain.EventRebuffer, map[string]interface{}{"qualityId": m.CurrentLevel})
			}
		case <-report.C:
			p.queue(domain.EventBandwidth, map[string]interface{}{
				"bandwidth": lastKbps * 1000,
			})
			reports++
			if !p.flush(ctx) {
				failed++
			}
		}
	}
	engine.Stop()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.Player.BackendTimeout)
	defer flushCancel()
	p.flush(flushCtx)
	final := engine.Recommendation(flushCtx)

	errorRate := 0.0
	if reports > 0 {
		errorRate = float64(failed) / float64(reports)
	}
	score := abr.CalculateQoEScore(domain.QoEMetrics{
		RebufferRatio:    sim.rebufferRatio(),
		StartupTimeMs:    startupMs,
		BitrateStability: stability(p.switchCount()),
		ErrorRate:        errorRate,
		PlatformType:     string(profile.Type),
	})

	log.Infow("playback finished",
		"session_id", master.SessionID,
		"played", utils.FormatDuration(time.Since(started)),
		"final_level", engine.CurrentLevel(),
		"decisions", len(engine.Decisions()),
		"rebuffer_ratio", sim.rebufferRatio(),
		"client_qoe", score,
		"recommended_level", final.RecommendedLevel,
		"recommendation_source", final.Source,
		"backend_breaker", backend.BreakerState().String(),
	)
}

// offeredLadder maps the master playlist's variants back onto the ladder. The edge only
// ever trims the top of the ladder, so the offered ids stay valid engine levels.
func offeredLadder(body string) (domain.Ladder, error) {
	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(body), false)
	if err != nil {
		return nil, err
	}
	if listType != m3u8.MASTER {
		return nil, fmt.Errorf("expected a master playlist")
	}

	offered := make(map[int]bool)
	for _, v := range playlist.(*m3u8.MasterPlaylist).Variants {
		offered[int(v.Bandwidth)] = true
	}
	ladder := domain.DefaultLadder.Filter(func(q domain.QualityLevel) bool {
		return offered[q.BitrateBps]
	})
	if len(ladder) == 0 {
		return nil, fmt.Errorf("master playlist offers no known variants")
	}
	for i, q := range ladder {
		if q.ID != i {
			return nil, fmt.Errorf("master playlist skips quality %d", i)
		}
	}
	return ladder, nil
}

// stability is a percentage that loses five points per quality switch.
func stability(switches int) float64 {
	s := 100 - 5*float64(switches)
	if s < 0 {
		return 0
	}
	return s
}

type player struct {
	backend   *abr.HTTPBackend
	sessionID domain.SessionID
	ladder    domain.Ladder
	log       *zap.SugaredLogger

	mu       sync.Mutex
	pending  []domain.AnalyticsEvent
	switches int
}

func (p *player) onLevelChange(d domain.AdaptationDecision) {
	p.mu.Lock()
	p.switches++
	p.mu.Unlock()

	bitrate := "unknown"
	if q, err := p.ladder.Level(d.TargetLevel); err == nil {
		bitrate = utils.FormatBitrate(float64(q.BitrateBps))
	}
	p.log.Infow("quality changed",
		"reason", d.Reason,
		"from_level", d.PreviousLevel,
		"to_level", d.TargetLevel,
		"bitrate", bitrate,
		"confidence", d.Confidence,
	)
	p.queue(domain.EventQualitySwitch, map[string]interface{}{"qualityId": d.TargetLevel})
}

func (p *player) switchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.switches
}

func (p *player) queue(t domain.EventType, data map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, domain.AnalyticsEvent{
		Type:      t,
		SessionID: p.sessionID,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// flush reports queued events. Failed batches are dropped.
func (p *player) flush(ctx context.Context) bool {
	p.mu.Lock()
	events := p.pending
	p.pending = nil
	p.mu.Unlock()

	if len(events) == 0 {
		return true
	}

	result, err := p.backend.ReportEvents(ctx, p.sessionID, events)
	if err != nil {
		p.log.Warnw("failed to report analytics events", "error", err, "dropped", len(events))
		return false
	}
	for _, r := range result.Recommendations {
		p.log.Infow("server recommendation", "type", r.Type, "message", r.Message)
	}
	p.log.Debugw("analytics reported", "received", result.Received, "qoe_score", result.QoEScore)
	return true
}
