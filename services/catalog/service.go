// Package catalog implements the personalized movie catalog build
// pipeline: discover candidates from TMDB, enrich each one with
// credits and critic ratings, score, filter and rank.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"pgcats/internal/httpx"
	"pgcats/internal/taskpool"
	"pgcats/models"
)

// enrichConcurrency caps in-flight per-movie enrichment. 6-10 is safe
// for TMDB + OMDB rate limits.
const enrichConcurrency = 8

var ErrTMDBTokenRequired = errors.New("TMDB_TOKEN not configured")

// Options configures a catalog build service.
type Options struct {
	TMDBToken  string
	OMDBAPIKey string
	// CacheDir holds the durable ratings cache.
	CacheDir string
	// PosterBaseURL and LogoBaseURL front the image stores; entries
	// reference <poster>/<tmdbID>.jpg and <logo>/<imdbID>/img.
	PosterBaseURL string
	LogoBaseURL   string
	// Fs defaults to the OS filesystem; tests pass a memory fs.
	Fs afero.Fs
	// HTTPClient defaults to a pooled retrying client; tests inject a
	// stub transport through httpx.New.
	HTTPClient *httpx.Client
}

// Service owns the provider clients and the rating cache and runs
// builds. Safe for concurrent use; each build carries its own metrics.
type Service struct {
	tmdb          *tmdbClient
	omdb          *omdbClient
	store         *ratingStore
	posterBaseURL string
	logoBaseURL   string
}

// NewService wires a build service. A missing TMDB token is fatal: the
// pipeline cannot discover anything without provider A. A missing OMDB
// key only degrades ratings to empty records.
func NewService(opts Options) (*Service, error) {
	if strings.TrimSpace(opts.TMDBToken) == "" {
		return nil, ErrTMDBTokenRequired
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = httpx.New(nil)
	}
	if !newOMDBClient(opts.OMDBAPIKey, httpc).isConfigured() {
		log.Printf("[catalog] OMDB_API_KEY not set; critic ratings will be empty")
	}
	return &Service{
		tmdb:          newTMDBClient(opts.TMDBToken, httpc),
		omdb:          newOMDBClient(opts.OMDBAPIKey, httpc),
		store:         newRatingStore(fs, opts.CacheDir),
		posterBaseURL: strings.TrimRight(opts.PosterBaseURL, "/"),
		logoBaseURL:   strings.TrimRight(opts.LogoBaseURL, "/"),
	}, nil
}

// genreMap holds the per-build bidirectional genre taxonomy for one
// language. Immutable after construction.
type genreMap struct {
	idToName map[int64]string
	nameToID map[string]int64
}

func newGenreMap(list tmdbGenreList) genreMap {
	gm := genreMap{
		idToName: make(map[int64]string, len(list.Genres)),
		nameToID: make(map[string]int64, len(list.Genres)),
	}
	for _, g := range list.Genres {
		gm.idToName[g.ID] = g.Name
		gm.nameToID[strings.ToLower(g.Name)] = g.ID
	}
	return gm
}

// resolveIDs maps lowercased genre names to ids, silently dropping
// names the taxonomy does not know.
func (gm genreMap) resolveIDs(names []string) []int64 {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		if id, ok := gm.nameToID[strings.ToLower(name)]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// names resolves genre ids to display names, dropping unresolvable ids.
func (gm genreMap) names(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := gm.idToName[id]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Build runs the full pipeline for cfg and returns catalog entries
// sorted descending by composite score. The config is assumed
// pre-validated by the caller. Per-movie failures are counted and
// logged but never abort the build; taxonomy or discovery failures do.
func (s *Service) Build(ctx context.Context, cfg models.BuildConfig) ([]models.CatalogEntry, models.BuildReport, error) {
	m := newBuildMetrics()
	log.Printf("[catalog] build %s: years %d-%d, %d pages, language %s, genres %v",
		m.buildID, cfg.StartYear, cfg.EndYear, cfg.Pages, cfg.Language, cfg.Genres)

	genreData, err := s.tmdb.fetchGenres(ctx, m, cfg.Language)
	if err != nil {
		return nil, m.report(), fmt.Errorf("fetch genres: %w", err)
	}
	gm := newGenreMap(genreData)

	candidates, err := s.discoverCandidates(ctx, m, cfg, gm)
	if err != nil {
		return nil, m.report(), err
	}

	filtered := prefilter(candidates)
	m.setFiltering(len(candidates), len(filtered))

	entries := s.enrich(ctx, m, gm, filtered)

	minScore := cfg.MinCriticScore
	kept := entries[:0]
	for _, e := range entries {
		if e.FinalCriticScore >= minScore {
			kept = append(kept, e)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].FinalCriticScore > kept[j].FinalCriticScore
	})

	// Cache persistence is best effort: the catalog is still the
	// build's primary output when the write fails.
	if err := s.store.persist(); err != nil {
		log.Printf("[catalog] WARNING: could not write ratings cache: %v", err)
	}

	report := m.report()
	log.Printf("[catalog] build %s done: %d entries (%d discovered, %d enriched ok, %d failed) in %dms",
		m.buildID, len(kept), report.Filtering.Before, report.Processing.Successes,
		report.Processing.Failures, report.DurationMS)
	return kept, report, nil
}

// discoverCandidates queries every requested page concurrently and
// flattens the results in page order, deduplicating by TMDB id and
// dropping posterless movies at flatten time.
func (s *Service) discoverCandidates(ctx context.Context, m *buildMetrics, cfg models.BuildConfig, gm genreMap) ([]tmdbMovie, error) {
	opts := discoverOptions{
		language:  cfg.Language,
		startYear: cfg.StartYear,
		endYear:   cfg.EndYear,
		sortBy:    cfg.SortOrder,
	}
	if ids := gm.resolveIDs(cfg.Genres); len(ids) > 0 {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = fmt.Sprintf("%d", id)
		}
		opts.withGenres = strings.Join(parts, ",")
	}

	pages := cfg.Pages
	if pages < 1 {
		pages = 1
	}

	type pageResult struct {
		page tmdbDiscoverPage
		err  error
	}

	m.startDiscover()
	tasks := make([]func() pageResult, pages)
	for i := 0; i < pages; i++ {
		page := i + 1
		tasks[i] = func() pageResult {
			result, err := s.tmdb.discover(ctx, m, opts, page)
			return pageResult{page: result, err: err}
		}
	}
	// Page count is caller-capped at 50, so no tighter limit is needed
	// for the discovery fan-out.
	results := taskpool.Run(pages, tasks)
	m.endDiscover(pages)

	var candidates []tmdbMovie
	seen := make(map[int64]bool)
	for _, r := range results {
		if r.err != nil {
			return nil, fmt.Errorf("discover movies: %w", r.err)
		}
		for _, mov := range r.page.Results {
			if mov.PosterPath == "" || seen[mov.ID] {
				continue
			}
			seen[mov.ID] = true
			candidates = append(candidates, mov)
		}
	}
	return candidates, nil
}

// prefilter drops candidates with missing release dates or vote data
// and re-applies the discover vote thresholds. Providers occasionally
// return rows that violate their own query filters.
func prefilter(candidates []tmdbMovie) []tmdbMovie {
	filtered := make([]tmdbMovie, 0, len(candidates))
	for _, mov := range candidates {
		if mov.ReleaseDate == "" {
			continue
		}
		if mov.VoteAverage == nil || mov.VoteCount == nil {
			continue
		}
		if *mov.VoteAverage < minVoteAverage || *mov.VoteCount < minVoteCount {
			continue
		}
		filtered = append(filtered, mov)
	}
	return filtered
}

// enrich runs every candidate through the bounded scheduler and returns
// the surviving entries. Result order follows candidate order before
// nil filtering.
func (s *Service) enrich(ctx context.Context, m *buildMetrics, gm genreMap, candidates []tmdbMovie) []models.CatalogEntry {
	m.startProcessing()
	tasks := make([]func() *models.CatalogEntry, len(candidates))
	for i, mov := range candidates {
		mov := mov
		tasks[i] = func() *models.CatalogEntry {
			return s.buildEntry(ctx, m, gm, mov)
		}
	}
	results := taskpool.Run(enrichConcurrency, tasks)
	m.endProcessing(len(candidates))

	entries := make([]models.CatalogEntry, 0, len(results))
	for _, e := range results {
		if e != nil {
			entries = append(entries, *e)
		}
	}
	return entries
}

// buildEntry enriches and scores a single candidate. Any failure,
// including a panic, is contained here: the movie is excluded and the
// failure counter incremented, nothing more.
func (s *Service) buildEntry(ctx context.Context, m *buildMetrics, gm genreMap, mov tmdbMovie) (entry *models.CatalogEntry) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[catalog] panic building movie %d: %v", mov.ID, r)
			m.incFailure()
			entry = nil
		}
	}()

	bundle, err := s.tmdb.movieBundle(ctx, m, mov.ID)
	if err != nil {
		log.Printf("[catalog] bundle fetch failed for movie %d: %v", mov.ID, err)
		m.incFailure()
		return nil
	}
	if bundle.ExternalIDs == nil || bundle.Credits == nil {
		log.Printf("[catalog] bundle missing external ids or credits for movie %d", mov.ID)
		m.incFailure()
		return nil
	}

	imdbID := strings.TrimSpace(bundle.ExternalIDs.IMDBID)
	if imdbID == "" {
		// Without the cross-provider id the movie can be neither rated
		// nor cleanly surfaced downstream.
		log.Printf("[catalog] missing IMDB ID for movie %d", mov.ID)
		m.incFailure()
		return nil
	}

	// The rating lookup may hit the network; derive credits while it
	// runs.
	type ratingResult struct {
		rec     models.RatingRecord
		fetched bool
	}
	ratingCh := make(chan ratingResult, 1)
	go func() {
		rec, fetched := s.resolveRating(ctx, m, mov.ID, imdbID)
		ratingCh <- ratingResult{rec: rec, fetched: fetched}
	}()

	directors := crewNamesByJob(bundle.Credits.Crew, "Director", 4)
	cast := castNames(bundle.Credits.Cast, 4)

	res := <-ratingCh
	if res.fetched && res.rec.Empty() {
		log.Printf("[catalog] rating missing for %s", imdbID)
		m.incFailure()
		return nil
	}

	score := compositeScore(res.rec.IMDB, res.rec.Metascore, res.rec.RT)
	m.incSuccess()

	return &models.CatalogEntry{
		ID:               imdbID,
		Type:             "movie",
		Name:             mov.Title,
		Poster:           fmt.Sprintf("%s/%d.jpg", s.posterBaseURL, mov.ID),
		Logo:             fmt.Sprintf("%s/%s/img", s.logoBaseURL, imdbID),
		Description:      mov.Overview,
		Year:             releaseYear(mov.ReleaseDate),
		Genres:           gm.names(mov.GenreIDs),
		Director:         directors,
		Cast:             cast,
		Metascore:        res.rec.Metascore,
		IMDBRating:       res.rec.IMDB,
		RottenTomatoes:   res.rec.RT,
		FinalCriticScore: roundScore(score),
	}
}

// resolveRating implements the cache-or-fetch contract. The bool result
// reports whether a live fetch was required, which the caller needs to
// tell "upstream has no data" apart from "never actually looked".
func (s *Service) resolveRating(ctx context.Context, m *buildMetrics, tmdbID int64, imdbID string) (models.RatingRecord, bool) {
	key := cacheKey(imdbID, tmdbID)

	// A cached record counts as a hit when it carries any score, or
	// when a previous live fetch already established there is none.
	if rec, ok := s.store.get(key); ok && (!rec.Empty() || rec.Fetched) {
		m.incOMDBHit()
		return rec, false
	}

	// Without an IMDB ID or provider credential there is nothing to
	// fetch; synthesize an empty record so the key stays tracked.
	if imdbID == "" || !s.omdb.isConfigured() {
		rec := models.RatingRecord{
			IMDBID:    imdbID,
			FetchedAt: time.Now().UTC().Format(time.RFC3339),
		}
		s.store.put(key, rec)
		return rec, false
	}

	m.incOMDBFetch()
	rec, err := s.omdb.fetchRating(ctx, imdbID)
	if err != nil {
		// Cache the attempt timestamp but leave the record unfetched:
		// a provider outage must not pin the id to "no data", the next
		// lookup retries.
		log.Printf("[catalog] OMDB error for %s: %v", imdbID, err)
		rec = models.RatingRecord{
			IMDBID:    imdbID,
			FetchedAt: time.Now().UTC().Format(time.RFC3339),
		}
	}
	s.store.put(key, rec)
	return rec, true
}

// crewNamesByJob returns up to limit crew names with the given job, in
// credits order.
func crewNamesByJob(crew []tmdbCrewMember, job string, limit int) []string {
	names := make([]string, 0, limit)
	for _, c := range crew {
		if c.Job != job {
			continue
		}
		names = append(names, c.Name)
		if len(names) == limit {
			break
		}
	}
	return names
}

// castNames returns up to limit cast names in billing order.
func castNames(cast []tmdbCastMember, limit int) []string {
	names := make([]string, 0, limit)
	for _, c := range cast {
		names = append(names, c.Name)
		if len(names) == limit {
			break
		}
	}
	return names
}

// releaseYear derives the 4-digit year prefix of a release date string.
func releaseYear(releaseDate string) string {
	if len(releaseDate) < 4 {
		return ""
	}
	return releaseDate[:4]
}
