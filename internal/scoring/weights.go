package scoring

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// ItemWeights defines the scoring weights and decay parameters for one
// item kind.
type ItemWeights struct {
	Upvotes  float64 `json:"upvotes"`  // Weight for ln(1+upvotes)
	Saves    float64 `json:"saves"`    // Weight for ln(1+saves)
	Comments float64 `json:"comments"` // Weight for ln(1+comments)
	Visits   float64 `json:"visits"`   // Weight for ln(1+visits), 0 for collections

	HalfLifeHours float64 `json:"half_life_hours"` // Age decay half-life in hours
	PromoBoost    float64 `json:"promo_boost"`     // Additive boost while promoted (default: 0.5)
}

// Weights holds the weight configurations for both ranked item kinds.
type Weights struct {
	Card       ItemWeights `json:"card"`
	Collection ItemWeights `json:"collection"`
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"` // Config version for future compatibility
	Weights Weights `json:"weights"` // Weight configurations
}

// DefaultWeights returns the default scoring weight configuration.
//
// Card formula components favor comments and saves over raw upvotes, and
// include visit counts; cards decay with a 48 hour half-life so fresh
// material surfaces quickly.
//
// Collections have no visit counter, weight saves heaviest (saving a
// collection is the strongest curation signal), and decay with a 168
// hour half-life because curated sets stay relevant longer.
func DefaultWeights() *Weights {
	return &Weights{
		Card: ItemWeights{
			Upvotes:       1.0,
			Saves:         2.0,
			Comments:      2.5,
			Visits:        1.5,
			HalfLifeHours: 48,
			PromoBoost:    0.5,
		},
		Collection: ItemWeights{
			Upvotes:       0.8,
			Saves:         3.0,
			Comments:      2.0,
			Visits:        0,
			HalfLifeHours: 168,
			PromoBoost:    0.5,
		},
	}
}

// LoadCalibration loads scoring weights from a JSON calibration file.
// If the file doesn't exist or can't be read, returns default weights
// with an error. Partial configurations are merged with defaults for
// graceful degradation.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultWeights()
	merged := Merge(defaults, &config.Weights)
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// ParseOverrides parses a JSON weights document, as stored in the
// ranking_config table by the admin surface. Unlike LoadCalibration it
// does not fall back silently: a malformed document is an error so the
// admin endpoint can reject it before it is persisted.
func ParseOverrides(data []byte) (*Weights, error) {
	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse weight overrides: %w", err)
	}
	return &w, nil
}

// Merge merges override weights with base weights. Only non-zero values
// from the override are applied, which allows partial overrides both in
// the calibration file and in the ranking_config table.
//
// Visits cannot be overridden to a non-zero value for collections: the
// collection kind has no visit counter, so its visits weight is pinned
// to 0 regardless of the override.
func Merge(base *Weights, override *Weights) *Weights {
	if base == nil {
		return DefaultWeights()
	}
	if override == nil {
		result := *base
		return &result
	}

	result := *base
	result.Card = mergeItem(base.Card, override.Card)
	result.Collection = mergeItem(base.Collection, override.Collection)
	result.Collection.Visits = 0

	return &result
}

func mergeItem(base, override ItemWeights) ItemWeights {
	result := base
	if override.Upvotes != 0 {
		result.Upvotes = override.Upvotes
	}
	if override.Saves != 0 {
		result.Saves = override.Saves
	}
	if override.Comments != 0 {
		result.Comments = override.Comments
	}
	if override.Visits != 0 {
		result.Visits = override.Visits
	}
	if override.HalfLifeHours != 0 {
		result.HalfLifeHours = override.HalfLifeHours
	}
	if override.PromoBoost != 0 {
		result.PromoBoost = override.PromoBoost
	}
	return result
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	var overrides []string

	overrides = append(overrides, diffItem("card", defaults.Card, loaded.Card)...)
	overrides = append(overrides, diffItem("collection", defaults.Collection, loaded.Collection)...)

	if len(overrides) > 0 {
		slog.Info("loaded scoring calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded scoring calibration (using all defaults)")
	}
}

func diffItem(kind string, def, got ItemWeights) []string {
	var out []string
	add := func(field string, from, to float64) {
		if from != to {
			out = append(out, fmt.Sprintf("%s.%s: %.2f -> %.2f", kind, field, from, to))
		}
	}
	add("upvotes", def.Upvotes, got.Upvotes)
	add("saves", def.Saves, got.Saves)
	add("comments", def.Comments, got.Comments)
	add("visits", def.Visits, got.Visits)
	add("half_life_hours", def.HalfLifeHours, got.HalfLifeHours)
	add("promo_boost", def.PromoBoost, got.PromoBoost)
	return out
}
