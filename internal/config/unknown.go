package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownGlobalKeys are the valid flat top-level keys in the config file.
// These correspond to fields in the embedded sub-config structs.
var knownGlobalKeys = map[string]bool{
	// Identity
	"skill_type": true, "user_id": true,
	// Store settings
	"store_backend": true, "sqlite_path": true, "redis_addr": true,
	"redis_password": true, "redis_db": true, "redis_key_prefix": true,
	// Logging settings
	"log_level": true, "log_format": true,
	// Network settings
	"request_timeout": true, "user_agent": true,
	// Metrics settings
	"metrics_textfile": true,
}

// knownSettingsKeys are the valid keys of a settings file imported into
// the store.
var knownSettingsKeys = map[string]bool{
	"base_url": true, "token_url": true, "authorization": true,
	"app_identifier": true, "device_model": true, "device_name": true,
	"scope": true, "user_prefix": true, "sync_url": true,
	"app_version": true, "app_type": true, "homesdata_url": true, "homestatus_url": true,
}

// knownGlobalKeysList and knownSettingsKeysList are the sorted slice forms
// for Levenshtein matching. Sorted for deterministic suggestions when two
// candidates have the same edit distance.
var (
	knownGlobalKeysList   = sortedKeys(knownGlobalKeys)
	knownSettingsKeysList = sortedKeys(knownSettingsKeys)
)

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key. what
// names the file kind in messages ("config", "settings").
func checkUnknownKeys(md *toml.MetaData, what string, known []string) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	seen := make(map[string]bool)

	for _, key := range undecoded {
		// Tables are reported once by their top-level name.
		fieldName := strings.SplitN(key.String(), ".", 2)[0]
		if seen[fieldName] {
			continue
		}

		seen[fieldName] = true

		if suggestion := closestMatch(fieldName, known); suggestion != "" {
			errs = append(errs, fmt.Errorf("unknown %s key %q — did you mean %q?", what, fieldName, suggestion))
		} else {
			errs = append(errs, fmt.Errorf("unknown %s key %q", what, fieldName))
		}
	}

	return errors.Join(errs...)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Use single-row optimization to avoid allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// minOf returns the minimum of three integers.
func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
