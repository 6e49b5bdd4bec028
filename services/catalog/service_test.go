package catalog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"

	"pgcats/internal/httpx"
	"pgcats/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func newTestService(t *testing.T, omdbKey string, rt roundTripFunc) *Service {
	t.Helper()
	svc, err := NewService(Options{
		TMDBToken:     "test-token",
		OMDBAPIKey:    omdbKey,
		CacheDir:      "cache",
		PosterBaseURL: "https://posters.example/posters",
		LogoBaseURL:   "https://logos.example/logo/medium",
		Fs:            afero.NewMemMapFs(),
		HTTPClient:    httpx.New(&http.Client{Transport: rt}),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestNewServiceRequiresTMDBToken(t *testing.T) {
	_, err := NewService(Options{OMDBAPIKey: "k"})
	if err == nil {
		t.Fatal("expected error for missing TMDB token")
	}
}

// A pre-seeded all-null record that never went through a fetch must
// trigger a live fetch; the fetched result replaces it.
func TestResolveRatingPreSeededEmptyRecordTriggersFetch(t *testing.T) {
	var omdbCalls atomic.Int64

	svc := newTestService(t, "omdb-key", func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Host, "omdbapi.com") {
			omdbCalls.Add(1)
			return jsonResponse(200, `{"imdbRating":"7.5","Metascore":"60","Ratings":[{"Source":"Rotten Tomatoes","Value":"80%"}]}`), nil
		}
		t.Errorf("unexpected request: %s", req.URL.String())
		return jsonResponse(404, `{}`), nil
	})

	svc.store.put("tt0000001", models.RatingRecord{IMDBID: "tt0000001"})

	m := newBuildMetrics()
	rec, fetched := svc.resolveRating(context.Background(), m, 1, "tt0000001")
	if !fetched {
		t.Fatal("expected a live fetch for a pre-seeded empty record")
	}
	if omdbCalls.Load() != 1 {
		t.Fatalf("expected 1 OMDB call, got %d", omdbCalls.Load())
	}
	if rec.IMDB == nil || *rec.IMDB != 7.5 {
		t.Fatalf("unexpected imdb rating: %+v", rec)
	}
	if rec.RT == nil || *rec.RT != 80 {
		t.Fatalf("unexpected rt rating: %+v", rec)
	}
}

// An all-null record that came back from a real fetch is a valid hit:
// no repeat fetch on later lookups.
func TestResolveRatingFetchedEmptyRecordIsHit(t *testing.T) {
	var omdbCalls atomic.Int64

	svc := newTestService(t, "omdb-key", func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Host, "omdbapi.com") {
			omdbCalls.Add(1)
			return jsonResponse(200, `{"imdbRating":"N/A","Metascore":"N/A","Ratings":[]}`), nil
		}
		return jsonResponse(404, `{}`), nil
	})

	m := newBuildMetrics()
	rec, fetched := svc.resolveRating(context.Background(), m, 2, "tt0000002")
	if !fetched || !rec.Empty() {
		t.Fatalf("expected a fetched empty record, got fetched=%v rec=%+v", fetched, rec)
	}

	rec2, fetched2 := svc.resolveRating(context.Background(), m, 2, "tt0000002")
	if fetched2 {
		t.Fatal("expected cache hit for previously fetched empty record")
	}
	if !rec2.Fetched {
		t.Fatal("expected the fetched marker to survive the cache")
	}
	if omdbCalls.Load() != 1 {
		t.Fatalf("expected exactly 1 OMDB call, got %d", omdbCalls.Load())
	}
}

// A failed rating fetch must not poison the cache: the empty record is
// stored without the fetched marker, so the next lookup retries once
// the provider recovers.
func TestResolveRatingProviderOutageRetriesLater(t *testing.T) {
	var omdbCalls atomic.Int64
	var down atomic.Bool

	svc := newTestService(t, "omdb-key", func(req *http.Request) (*http.Response, error) {
		omdbCalls.Add(1)
		if down.Load() {
			return nil, errors.New("connection refused")
		}
		return jsonResponse(200, `{"imdbRating":"7.2","Metascore":"58","Ratings":[]}`), nil
	})

	down.Store(true)
	m := newBuildMetrics()
	rec, fetched := svc.resolveRating(context.Background(), m, 4, "tt0000004")
	if !fetched || !rec.Empty() {
		t.Fatalf("expected a failed live fetch, got fetched=%v rec=%+v", fetched, rec)
	}
	if rec.Fetched {
		t.Fatal("a failed fetch must not mark the record as fetched")
	}

	down.Store(false)
	rec2, fetched2 := svc.resolveRating(context.Background(), m, 4, "tt0000004")
	if !fetched2 {
		t.Fatal("expected a retry after the provider recovered")
	}
	if rec2.IMDB == nil || *rec2.IMDB != 7.2 {
		t.Fatalf("unexpected record after recovery: %+v", rec2)
	}
	if omdbCalls.Load() != 2 {
		t.Fatalf("expected 2 OMDB calls, got %d", omdbCalls.Load())
	}
}

// Without an OMDB key the resolver synthesizes an empty record with no
// network call at all.
func TestResolveRatingWithoutCredential(t *testing.T) {
	svc := newTestService(t, "", func(req *http.Request) (*http.Response, error) {
		t.Errorf("unexpected network call: %s", req.URL.String())
		return jsonResponse(500, `{}`), nil
	})

	m := newBuildMetrics()
	rec, fetched := svc.resolveRating(context.Background(), m, 3, "tt0000003")
	if fetched {
		t.Fatal("expected no live fetch without a credential")
	}
	if !rec.Empty() || rec.Fetched {
		t.Fatalf("expected synthesized empty record, got %+v", rec)
	}
	if rec.FetchedAt == "" {
		t.Fatal("expected a fresh timestamp on the synthesized record")
	}
}

const testGenreBody = `{"genres":[{"id":35,"name":"Comedy"},{"id":18,"name":"Drama"}]}`

// Full pipeline against a stubbed provider pair: three discoverable
// movies, one without a poster, two scoring above the threshold.
func TestBuildEndToEnd(t *testing.T) {
	var mu sync.Mutex
	discoverQueries := []string{}

	rt := func(req *http.Request) (*http.Response, error) {
		path := req.URL.Path

		if strings.Contains(req.URL.Host, "omdbapi.com") {
			switch req.URL.Query().Get("i") {
			case "tt0000001":
				return jsonResponse(200, `{"imdbRating":"8.0","Metascore":"70","Ratings":[{"Source":"Rotten Tomatoes","Value":"60%"}]}`), nil
			case "tt0000002":
				return jsonResponse(200, `{"imdbRating":"6.0","Metascore":"90","Ratings":[]}`), nil
			}
			return jsonResponse(200, `{"Response":"False"}`), nil
		}

		switch {
		case path == "/3/genre/movie/list":
			return jsonResponse(200, testGenreBody), nil

		case path == "/3/discover/movie":
			mu.Lock()
			discoverQueries = append(discoverQueries, req.URL.RawQuery)
			mu.Unlock()
			if req.Header.Get("Authorization") != "Bearer test-token" {
				t.Errorf("missing bearer token on discover request")
			}
			return jsonResponse(200, `{"page":1,"results":[
				{"id":1,"title":"First","overview":"a","release_date":"2001-05-10","poster_path":"/p1.jpg","vote_average":7.1,"vote_count":500,"genre_ids":[35]},
				{"id":2,"title":"Second","overview":"b","release_date":"2003-01-02","poster_path":"/p2.jpg","vote_average":6.4,"vote_count":300,"genre_ids":[35,18]},
				{"id":3,"title":"No Poster","overview":"c","release_date":"2004-07-07","poster_path":"","vote_average":8.0,"vote_count":900,"genre_ids":[35]}
			]}`), nil

		case path == "/3/movie/1":
			return jsonResponse(200, `{"id":1,"external_ids":{"imdb_id":"tt0000001"},"credits":{"cast":[{"name":"Alice"},{"name":"Bob"}],"crew":[{"name":"Carol","job":"Director"},{"name":"Dan","job":"Producer"}]}}`), nil

		case path == "/3/movie/2":
			return jsonResponse(200, `{"id":2,"external_ids":{"imdb_id":"tt0000002"},"credits":{"cast":[{"name":"Eve"}],"crew":[{"name":"Frank","job":"Director"}]}}`), nil
		}

		t.Logf("unhandled request: %s %s", req.Method, req.URL.String())
		return jsonResponse(404, `{}`), nil
	}

	svc := newTestService(t, "omdb-key", rt)

	entries, report, err := svc.Build(context.Background(), models.BuildConfig{
		StartYear:      2000,
		EndYear:        2005,
		Pages:          1,
		Language:       "en-US",
		SortOrder:      "popularity.desc",
		Genres:         []string{"comedy"},
		MinCriticScore: 50,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	// 0.5*80 + 0.3*70 + 0.2*60 = 73.0 beats 0.7*60 + 0.3*90 = 69.0.
	if entries[0].ID != "tt0000001" || entries[0].FinalCriticScore != 73.0 {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].ID != "tt0000002" || entries[1].FinalCriticScore != 69.0 {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}

	if entries[0].Year != "2001" {
		t.Errorf("expected year 2001, got %q", entries[0].Year)
	}
	if got := entries[0].Genres; len(got) != 1 || got[0] != "Comedy" {
		t.Errorf("unexpected genres: %v", got)
	}
	if got := entries[0].Director; len(got) != 1 || got[0] != "Carol" {
		t.Errorf("unexpected directors: %v", got)
	}
	if got := entries[0].Cast; len(got) != 2 || got[0] != "Alice" {
		t.Errorf("unexpected cast: %v", got)
	}
	if entries[0].Poster != "https://posters.example/posters/1.jpg" {
		t.Errorf("unexpected poster url: %s", entries[0].Poster)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(discoverQueries) != 1 {
		t.Fatalf("expected 1 discover call, got %d", len(discoverQueries))
	}
	q := discoverQueries[0]
	for _, want := range []string{
		"with_genres=35",
		"primary_release_date.gte=2000-01-01",
		"primary_release_date.lte=2005-12-31",
		"vote_count.gte=100",
		"sort_by=popularity.desc",
	} {
		if !strings.Contains(q, want) {
			t.Errorf("discover query missing %q: %s", want, q)
		}
	}

	// Posterless movie dropped at flatten, so only 2 reached
	// enrichment and both succeeded.
	if report.Filtering.Before != 2 || report.Filtering.After != 2 {
		t.Errorf("unexpected filtering stats: %+v", report.Filtering)
	}
	if report.Processing.Successes != 2 || report.Processing.Failures != 0 {
		t.Errorf("unexpected processing stats: %+v", report.Processing)
	}
	if report.OMDB.Fetches != 2 {
		t.Errorf("expected 2 OMDB fetches, got %+v", report.OMDB)
	}
}

// A candidate whose bundle lacks external ids is excluded without
// aborting the batch.
func TestBuildSoftFailureKeepsBatch(t *testing.T) {
	rt := func(req *http.Request) (*http.Response, error) {
		path := req.URL.Path
		if strings.Contains(req.URL.Host, "omdbapi.com") {
			return jsonResponse(200, `{"imdbRating":"7.0","Metascore":"65","Ratings":[]}`), nil
		}
		switch {
		case path == "/3/genre/movie/list":
			return jsonResponse(200, testGenreBody), nil
		case path == "/3/discover/movie":
			return jsonResponse(200, `{"page":1,"results":[
				{"id":1,"title":"Good","overview":"a","release_date":"2001-05-10","poster_path":"/p1.jpg","vote_average":7.1,"vote_count":500,"genre_ids":[35]},
				{"id":2,"title":"Broken","overview":"b","release_date":"2002-01-01","poster_path":"/p2.jpg","vote_average":6.0,"vote_count":200,"genre_ids":[35]}
			]}`), nil
		case path == "/3/movie/1":
			return jsonResponse(200, `{"id":1,"external_ids":{"imdb_id":"tt0000001"},"credits":{"cast":[],"crew":[]}}`), nil
		case path == "/3/movie/2":
			return jsonResponse(200, `{"id":2,"external_ids":{"imdb_id":""},"credits":{"cast":[],"crew":[]}}`), nil
		}
		return jsonResponse(404, `{}`), nil
	}

	svc := newTestService(t, "omdb-key", rt)
	entries, report, err := svc.Build(context.Background(), models.BuildConfig{
		StartYear: 2000, EndYear: 2005, Pages: 1,
		Language: "en-US", SortOrder: "popularity.desc",
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "tt0000001" {
		t.Fatalf("expected only the intact movie, got %+v", entries)
	}
	if report.Processing.Failures != 1 {
		t.Fatalf("expected 1 recorded failure, got %+v", report.Processing)
	}
}

// An empty taxonomy response disables genre filtering instead of
// failing the build.
func TestBuildEmptyTaxonomy(t *testing.T) {
	sawWithGenres := false
	rt := func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/3/genre/movie/list":
			return jsonResponse(200, `{}`), nil
		case "/3/discover/movie":
			if req.URL.Query().Get("with_genres") != "" {
				sawWithGenres = true
			}
			return jsonResponse(200, `{"page":1,"results":[]}`), nil
		}
		return jsonResponse(404, `{}`), nil
	}

	svc := newTestService(t, "", rt)
	entries, _, err := svc.Build(context.Background(), models.BuildConfig{
		StartYear: 2000, EndYear: 2005, Pages: 1,
		Language: "en-US", SortOrder: "popularity.desc",
		Genres: []string{"comedy"},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
	if sawWithGenres {
		t.Fatal("expected with_genres to be omitted when no genre resolves")
	}
}

// A discovery failure is fatal for the whole build.
func TestBuildDiscoveryFailureIsFatal(t *testing.T) {
	rt := func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/3/genre/movie/list":
			return jsonResponse(200, testGenreBody), nil
		case "/3/discover/movie":
			return jsonResponse(404, `{}`), nil
		}
		return jsonResponse(404, `{}`), nil
	}

	svc := newTestService(t, "", rt)
	_, _, err := svc.Build(context.Background(), models.BuildConfig{
		StartYear: 2000, EndYear: 2005, Pages: 2,
		Language: "en-US", SortOrder: "popularity.desc",
	})
	if err == nil {
		t.Fatal("expected build to fail when discovery fails")
	}
}
