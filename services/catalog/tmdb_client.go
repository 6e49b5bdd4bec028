package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"pgcats/internal/httpx"
)

const tmdbBaseURL = "https://api.themoviedb.org/3"

// Discover thresholds. Fixed business rules, not user-configurable.
const (
	minVoteAverage = 1.0
	minVoteCount   = 100
)

// tmdbClient wraps the movie metadata provider: genre taxonomy, paged
// discovery and the per-movie bundle endpoint.
type tmdbClient struct {
	token string
	httpc *httpx.Client
}

func newTMDBClient(token string, httpc *httpx.Client) *tmdbClient {
	return &tmdbClient{token: strings.TrimSpace(token), httpc: httpc}
}

func (c *tmdbClient) isConfigured() bool {
	return c != nil && c.token != ""
}

type tmdbGenre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type tmdbGenreList struct {
	Genres []tmdbGenre `json:"genres"`
}

// tmdbMovie is one raw discover result: the candidate record the
// enrichment stage consumes. Vote fields are pointers because the
// provider occasionally omits them.
type tmdbMovie struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Overview    string   `json:"overview"`
	ReleaseDate string   `json:"release_date"`
	PosterPath  string   `json:"poster_path"`
	VoteAverage *float64 `json:"vote_average"`
	VoteCount   *int64   `json:"vote_count"`
	GenreIDs    []int64  `json:"genre_ids"`
}

type tmdbDiscoverPage struct {
	Page    int         `json:"page"`
	Results []tmdbMovie `json:"results"`
}

type tmdbExternalIDs struct {
	IMDBID string `json:"imdb_id"`
}

type tmdbCastMember struct {
	Name string `json:"name"`
}

type tmdbCrewMember struct {
	Name string `json:"name"`
	Job  string `json:"job"`
}

type tmdbCredits struct {
	Cast []tmdbCastMember `json:"cast"`
	Crew []tmdbCrewMember `json:"crew"`
}

// tmdbMovieBundle is the movie details response with external_ids and
// credits appended, fetched in a single call.
type tmdbMovieBundle struct {
	ID          int64            `json:"id"`
	ExternalIDs *tmdbExternalIDs `json:"external_ids"`
	Credits     *tmdbCredits     `json:"credits"`
}

// get performs an authenticated TMDB GET and decodes into v.
func (c *tmdbClient) get(ctx context.Context, m *buildMetrics, endpoint string, params url.Values, v any) error {
	if m != nil {
		m.incTMDBCall()
	}
	u := fmt.Sprintf("%s/%s", tmdbBaseURL, endpoint)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	header := http.Header{
		"Accept":        []string{"application/json"},
		"Authorization": []string{"Bearer " + c.token},
	}
	return c.httpc.GetJSON(ctx, u, header, v)
}

// fetchGenres loads the genre taxonomy for the given language.
func (c *tmdbClient) fetchGenres(ctx context.Context, m *buildMetrics, language string) (tmdbGenreList, error) {
	params := url.Values{}
	if language != "" {
		params.Set("language", language)
	}
	var list tmdbGenreList
	if err := c.get(ctx, m, "genre/movie/list", params, &list); err != nil {
		return tmdbGenreList{}, fmt.Errorf("tmdb genres: %w", err)
	}
	return list, nil
}

// discoverOptions are the page-independent discover query parameters.
type discoverOptions struct {
	language   string
	startYear  int
	endYear    int
	sortBy     string
	withGenres string // comma-joined genre ids; empty means no filter
}

// discover fetches one page of the discover endpoint.
func (c *tmdbClient) discover(ctx context.Context, m *buildMetrics, opts discoverOptions, page int) (tmdbDiscoverPage, error) {
	params := url.Values{}
	params.Set("language", opts.language)
	params.Set("include_adult", "false")
	params.Set("include_video", "false")
	params.Set("primary_release_date.gte", fmt.Sprintf("%d-01-01", opts.startYear))
	params.Set("primary_release_date.lte", fmt.Sprintf("%d-12-31", opts.endYear))
	params.Set("vote_average.gte", fmt.Sprintf("%g", minVoteAverage))
	params.Set("vote_count.gte", fmt.Sprintf("%d", minVoteCount))
	params.Set("sort_by", opts.sortBy)
	if opts.withGenres != "" {
		params.Set("with_genres", opts.withGenres)
	}
	params.Set("page", fmt.Sprintf("%d", page))

	var result tmdbDiscoverPage
	if err := c.get(ctx, m, "discover/movie", params, &result); err != nil {
		return tmdbDiscoverPage{}, fmt.Errorf("tmdb discover page %d: %w", page, err)
	}
	return result, nil
}

// movieBundle fetches movie details with external ids and credits in
// one call.
func (c *tmdbClient) movieBundle(ctx context.Context, m *buildMetrics, tmdbID int64) (tmdbMovieBundle, error) {
	params := url.Values{}
	params.Set("append_to_response", "external_ids,credits")
	var bundle tmdbMovieBundle
	if err := c.get(ctx, m, fmt.Sprintf("movie/%d", tmdbID), params, &bundle); err != nil {
		return tmdbMovieBundle{}, fmt.Errorf("tmdb bundle %d: %w", tmdbID, err)
	}
	return bundle, nil
}
