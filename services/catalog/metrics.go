package catalog

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pgcats/models"
)

// buildMetrics collects counters and phase durations for one build.
// Counter methods are safe to call from concurrent enrichment tasks.
type buildMetrics struct {
	buildID string
	started time.Time

	discoverStart    time.Time
	discoverDuration time.Duration
	discoverPages    int

	filterBefore int
	filterAfter  int

	processingStart    time.Time
	processingDuration time.Duration
	processingTotal    int

	successes atomic.Int64
	failures  atomic.Int64
	omdbHits  atomic.Int64
	omdbFetch atomic.Int64
	tmdbCalls atomic.Int64
}

func newBuildMetrics() *buildMetrics {
	return &buildMetrics{
		buildID: uuid.NewString(),
		started: time.Now(),
	}
}

func (m *buildMetrics) startDiscover() { m.discoverStart = time.Now() }

func (m *buildMetrics) endDiscover(pages int) {
	m.discoverPages = pages
	m.discoverDuration = time.Since(m.discoverStart)
}

func (m *buildMetrics) setFiltering(before, after int) {
	m.filterBefore = before
	m.filterAfter = after
}

func (m *buildMetrics) startProcessing() { m.processingStart = time.Now() }

func (m *buildMetrics) endProcessing(total int) {
	m.processingTotal = total
	m.processingDuration = time.Since(m.processingStart)
}

func (m *buildMetrics) incSuccess()   { m.successes.Add(1) }
func (m *buildMetrics) incFailure()   { m.failures.Add(1) }
func (m *buildMetrics) incOMDBHit()   { m.omdbHits.Add(1) }
func (m *buildMetrics) incOMDBFetch() { m.omdbFetch.Add(1) }
func (m *buildMetrics) incTMDBCall()  { m.tmdbCalls.Add(1) }

// report finalizes the metrics into the externally visible shape.
func (m *buildMetrics) report() models.BuildReport {
	return models.BuildReport{
		BuildID: m.buildID,
		Discover: models.DiscoverStats{
			Pages:      m.discoverPages,
			DurationMS: m.discoverDuration.Milliseconds(),
		},
		Filtering: models.FilterStats{
			Before: m.filterBefore,
			After:  m.filterAfter,
		},
		Processing: models.ProcessingStats{
			Total:      m.processingTotal,
			Successes:  m.successes.Load(),
			Failures:   m.failures.Load(),
			DurationMS: m.processingDuration.Milliseconds(),
		},
		OMDB: models.ProviderStats{
			Hits:    m.omdbHits.Load(),
			Fetches: m.omdbFetch.Load(),
		},
		TMDBCalls:  m.tmdbCalls.Load(),
		DurationMS: time.Since(m.started).Milliseconds(),
	}
}
