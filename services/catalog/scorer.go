package catalog

import "math"

// Composite score weights. IMDB is on a 0-10 scale and gets scaled by
// 10 before blending; metascore and Rotten Tomatoes are already 0-100.
const (
	weightIMDBFull = 0.5
	weightMeta     = 0.3
	weightRT       = 0.2
	weightIMDBPair = 0.7
	weightOther    = 0.3
)

// compositeScore blends up to three critic ratings into a 0-100 value.
// Absent inputs shift weight onto the remaining ones; with nothing at
// all the score is 0.
func compositeScore(imdb *float64, metascore, rt *int) float64 {
	var imdbScaled float64
	if imdb != nil {
		imdbScaled = *imdb * 10
	}

	switch {
	case metascore != nil && rt != nil:
		return imdbScaled*weightIMDBFull + float64(*metascore)*weightMeta + float64(*rt)*weightRT
	case metascore != nil:
		return imdbScaled*weightIMDBPair + float64(*metascore)*weightOther
	case rt != nil:
		return imdbScaled*weightIMDBPair + float64(*rt)*weightOther
	case imdb != nil:
		return imdbScaled
	default:
		return 0
	}
}

// roundScore rounds to one decimal. Applied when the catalog entry is
// assembled, not inside compositeScore, so tests can check raw blends.
func roundScore(s float64) float64 {
	return math.Round(s*10) / 10
}
