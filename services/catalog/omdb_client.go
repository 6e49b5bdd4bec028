package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pgcats/internal/httpx"
	"pgcats/models"
)

const omdbBaseURL = "https://www.omdbapi.com/"

// omdbNA is the provider's sentinel for a missing value.
const omdbNA = "N/A"

// omdbClient fetches critic ratings for a single IMDB ID.
type omdbClient struct {
	apiKey string
	httpc  *httpx.Client
}

func newOMDBClient(apiKey string, httpc *httpx.Client) *omdbClient {
	return &omdbClient{apiKey: strings.TrimSpace(apiKey), httpc: httpc}
}

func (c *omdbClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

type omdbRatingEntry struct {
	Source string `json:"Source"`
	Value  string `json:"Value"`
}

// omdbResponse covers the subset of the OMDB payload we consume. All
// numeric values arrive as strings, "N/A" when absent.
type omdbResponse struct {
	IMDBRating string            `json:"imdbRating"`
	Metascore  string            `json:"Metascore"`
	Ratings    []omdbRatingEntry `json:"Ratings"`
}

// fetchRating performs a live OMDB lookup and parses it into a rating
// record. A response with no usable scores still yields a valid record
// (all nil) so genuine "no data" answers get cached.
func (c *omdbClient) fetchRating(ctx context.Context, imdbID string) (models.RatingRecord, error) {
	u := fmt.Sprintf("%s?i=%s&apikey=%s", omdbBaseURL, url.QueryEscape(imdbID), url.QueryEscape(c.apiKey))

	var data omdbResponse
	if err := c.httpc.GetJSON(ctx, u, nil, &data); err != nil {
		return models.RatingRecord{}, err
	}

	return models.RatingRecord{
		IMDBID:    imdbID,
		IMDB:      parseOMDBFloat(data.IMDBRating),
		Metascore: parseOMDBInt(data.Metascore),
		RT:        extractRottenTomatoes(data.Ratings),
		FetchedAt: time.Now().UTC().Format(time.RFC3339),
		Fetched:   true,
	}, nil
}

func parseOMDBFloat(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == omdbNA {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseOMDBInt(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == omdbNA {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

// extractRottenTomatoes pulls the percentage out of the named entry of
// the ratings list, e.g. {"Source": "Rotten Tomatoes", "Value": "87%"}.
func extractRottenTomatoes(ratings []omdbRatingEntry) *int {
	for _, r := range ratings {
		if r.Source != "Rotten Tomatoes" {
			continue
		}
		value := strings.TrimSuffix(strings.TrimSpace(r.Value), "%")
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil
		}
		return &n
	}
	return nil
}
