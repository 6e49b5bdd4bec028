package models

// Data types shared between the catalog build pipeline and its callers.

// BuildConfig describes one catalog build request. Callers validate the
// field ranges before handing it to the pipeline.
type BuildConfig struct {
	StartYear      int      `json:"start_year"`
	EndYear        int      `json:"end_year"`
	Pages          int      `json:"pages"` // 1..50
	Language       string   `json:"language"`
	SortOrder      string   `json:"sort_order"` // e.g. popularity.desc
	Genres         []string `json:"genres"`     // lowercased genre names
	MinCriticScore float64  `json:"min_critic_score"`
}

// RatingRecord is one entry of the durable ratings cache. Score fields
// are pointers so "no data from the provider" survives serialization.
type RatingRecord struct {
	IMDBID    string   `json:"imdb_id"`
	IMDB      *float64 `json:"imdb"`      // 0-10
	Metascore *int     `json:"metascore"` // 0-100
	RT        *int     `json:"rt"`        // 0-100
	FetchedAt string   `json:"fetched_at"`
	// Fetched marks records produced by a successful live provider
	// call. An all-null record with Fetched set is a genuine "no data"
	// answer and must not trigger another fetch; an all-null record
	// without it was synthesized (no credential, no cross-provider id
	// or a failed fetch) and is retried on the next lookup.
	Fetched bool `json:"fetched,omitempty"`
}

// Empty reports whether all three scores are absent.
func (r RatingRecord) Empty() bool {
	return r.IMDB == nil && r.Metascore == nil && r.RT == nil
}

// CatalogEntry is one fully enriched, scored movie in the build output.
// Field names are carried verbatim into the discovery-protocol
// responses, so they stay snake_case.
type CatalogEntry struct {
	ID               string   `json:"id"` // IMDB ID when known, else tmdb:<id>
	Type             string   `json:"type"`
	Name             string   `json:"name"`
	Poster           string   `json:"poster"`
	Logo             string   `json:"logo,omitempty"`
	Description      string   `json:"description"`
	Year             string   `json:"year,omitempty"`
	Genres           []string `json:"genres"`
	Director         []string `json:"director"`
	Cast             []string `json:"cast"`
	Metascore        *int     `json:"metascore"`
	IMDBRating       *float64 `json:"imdb_rating"`
	RottenTomatoes   *int     `json:"rotten_tomatoes"`
	FinalCriticScore float64  `json:"final_critic_score"`
}

// BuildReport carries per-build diagnostics. It is logged at build end
// and returned to the build trigger; never persisted.
type BuildReport struct {
	BuildID    string          `json:"build_id"`
	Discover   DiscoverStats   `json:"discover"`
	Filtering  FilterStats     `json:"filtering"`
	Processing ProcessingStats `json:"processing"`
	OMDB       ProviderStats   `json:"omdb"`
	TMDBCalls  int64           `json:"tmdb_calls"`
	DurationMS int64           `json:"total_duration_ms"`
}

type DiscoverStats struct {
	Pages      int   `json:"pages"`
	DurationMS int64 `json:"duration_ms"`
}

type FilterStats struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

type ProcessingStats struct {
	Total      int   `json:"total"`
	Successes  int64 `json:"successes"`
	Failures   int64 `json:"failures"`
	DurationMS int64 `json:"duration_ms"`
}

type ProviderStats struct {
	Hits    int64 `json:"hits"`
	Fetches int64 `json:"fetches"`
}
