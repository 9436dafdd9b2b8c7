package aicache

import (
	"sort"
	"strconv"
	"strings"
)

const (
	BucketLow  = "low"
	BucketMed  = "med"
	BucketHigh = "high"

	fieldSep = "|"
	tagSep   = ","
)

// MoodBucket maps a 0-10 intensity onto low/med/high.
func MoodBucket(intensity int) string {
	switch {
	case intensity >= 7:
		return BucketHigh
	case intensity >= 4:
		return BucketMed
	default:
		return BucketLow
	}
}

// CacheKey identifies a class of AI request. Two requests with the same
// signature get the same cached answer.
type CacheKey struct {
	Feature   string
	Intensity int
	Tags      []string
	Language  string
}

// Signature renders the key as feature|bucket|tags|intensity|language with
// tags lower-cased, de-duplicated and sorted.
func (k CacheKey) Signature() string {
	lang := strings.ToLower(strings.TrimSpace(k.Language))
	if lang == "" {
		lang = "en"
	}
	parts := []string{
		"f:" + strings.ToLower(strings.TrimSpace(k.Feature)),
		"b:" + MoodBucket(k.Intensity),
		"t:" + strings.Join(NormalizeTags(k.Tags), tagSep),
		"i:" + strconv.Itoa(k.Intensity),
		"l:" + lang,
	}
	return strings.Join(parts, fieldSep)
}

// NormalizeTags trims, lower-cases, de-duplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// tokens splits a signature into its comparable parts. Each tag becomes its own
// token so that overlapping tag sets score partially.
func tokens(signature string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, field := range strings.Split(signature, fieldSep) {
		if strings.HasPrefix(field, "t:") {
			for _, tag := range strings.Split(strings.TrimPrefix(field, "t:"), tagSep) {
				if tag != "" {
					set["t:"+tag] = struct{}{}
				}
			}
			continue
		}
		if field != "" {
			set[field] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Jaccard returns |a∩b| / |a∪b| over normalized tag sets.
func Jaccard(a, b []string) float64 {
	return jaccard(toSet(NormalizeTags(a)), toSet(NormalizeTags(b)))
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
