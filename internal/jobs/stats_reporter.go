package jobs

import (
	"log/slog"
	"sync"
	"time"

	"github.com/forgo/saga/presence/internal/model"
)

// StatsSource supplies live presence counts
type StatsSource interface {
	Stats() *model.PresenceStats
}

// StatsReport is one sample taken by the reporter
type StatsReport struct {
	Stats *model.PresenceStats
	// NewlyDropped counts pushes dropped since the previous sample
	NewlyDropped uint64
}

// StatsReporter periodically logs live room and layer occupancy, and warns
// when slow consumers started losing pushes since the last sample.
type StatsReporter struct {
	source   StatsSource
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex

	lastDropped uint64
}

// NewStatsReporter creates a new stats reporter job
func NewStatsReporter(source StatsSource, interval time.Duration) *StatsReporter {
	if interval == 0 {
		interval = time.Minute
	}
	return &StatsReporter{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the stats reporter job
func (r *StatsReporter) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run()
	slog.Info("stats reporter started", slog.Duration("interval", r.interval))
}

// Stop stops the reporter and waits for the loop to exit
func (r *StatsReporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
	slog.Info("stats reporter stopped")
}

func (r *StatsReporter) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce()
		case <-r.stopCh:
			return
		}
	}
}

// RunOnce samples and logs the stats once (for testing or manual trigger)
func (r *StatsReporter) RunOnce() StatsReport {
	stats := r.source.Stats()

	r.mu.Lock()
	var dropped uint64
	if stats.DroppedPushes >= r.lastDropped {
		dropped = stats.DroppedPushes - r.lastDropped
	}
	r.lastDropped = stats.DroppedPushes
	r.mu.Unlock()

	slog.Info("presence stats",
		slog.Int("connections", stats.Connections),
		slog.Int("occupied_rooms", len(stats.Rooms)),
		slog.Int("room_members", sum(stats.Rooms)),
		slog.Int("occupied_layers", len(stats.Layers)),
		slog.Int("layer_members", sum(stats.Layers)),
	)
	if dropped > 0 {
		slog.Warn("pushes dropped for slow consumers",
			slog.Uint64("dropped", dropped),
			slog.Uint64("dropped_total", stats.DroppedPushes),
		)
	}

	return StatsReport{Stats: stats, NewlyDropped: dropped}
}

// IsRunning returns whether the reporter is running
func (r *StatsReporter) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func sum(counts map[string]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}
