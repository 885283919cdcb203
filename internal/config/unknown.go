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

// knownKeys lists the valid keys of every section.
var knownKeys = map[string][]string{
	"remote":  {"drive_id", "folder_id"},
	"sync":    {"source_dir", "request_delay", "skip_dotfiles", "exclude", "verify_uploads", "watch_debounce"},
	"retry":   {"max_retries", "base_backoff", "max_backoff"},
	"network": {"connect_timeout", "data_timeout", "user_agent", "graph_base_url"},
	"auth":    {"token_file", "client_id", "tenant"},
	"logging": {"log_level", "log_format"},
	"state":   {"history_db"},
	"notify":  {"webhook_url", "outputs_file"},
}

// knownSections is the sorted section list for Levenshtein matching.
// Sorted for deterministic suggestions when two candidates have the same
// edit distance.
var knownSections = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		errs = append(errs, buildKeyError(key))
	}

	return errors.Join(errs...)
}

// buildKeyError describes one undecoded key, suggesting the closest known
// section or key.
func buildKeyError(key toml.Key) error {
	section := key[0]

	fields, ok := knownKeys[section]
	if !ok || len(key) == 1 {
		if suggestion := closestMatch(section, knownSections); suggestion != "" {
			return fmt.Errorf("unknown config key %q; did you mean [%s]?", key.String(), suggestion)
		}

		return fmt.Errorf("unknown config key %q", key.String())
	}

	field := strings.Join(key[1:], ".")

	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)

	if suggestion := closestMatch(field, sorted); suggestion != "" {
		return fmt.Errorf("unknown config key %q; did you mean %q?", key.String(), section+"."+suggestion)
	}

	return fmt.Errorf("unknown config key %q", key.String())
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

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
