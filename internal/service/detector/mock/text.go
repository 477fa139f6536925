package mock

import (
	"context"
	"strings"
	"unicode"

	"exam-proctor-service/internal/service/detector"
)

// aiMarkers are phrases over-represented in generated prose.
var aiMarkers = []string{
	"as an ai language model",
	"it is important to note",
	"in conclusion",
	"furthermore",
	"moreover",
	"delve into",
	"in today's fast-paced world",
	"plays a crucial role",
	"a testament to",
	"overall,",
}

// AuthenticityDetector flags text containing several generated-prose markers.
type AuthenticityDetector struct {
	MinMarkers int
}

// NewAuthenticityDetector returns a detector flagging at two or more markers.
func NewAuthenticityDetector() *AuthenticityDetector {
	return &AuthenticityDetector{MinMarkers: 2}
}

// Check implements detector.AuthenticityDetector.
func (d *AuthenticityDetector) Check(ctx context.Context, text string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "as an ai") {
		return true, nil
	}
	hits := 0
	for _, m := range aiMarkers {
		if strings.Contains(lower, m) {
			hits++
		}
	}
	return hits >= d.MinMarkers, nil
}

const shingleSize = 5

// OriginalityDetector compares word shingles against a reference corpus.
type OriginalityDetector struct {
	threshold float64
	corpus    []map[string]struct{}
}

// NewOriginalityDetector builds a detector over the given reference texts.
// Answers whose shingle containment reaches threshold are flagged.
func NewOriginalityDetector(references []string, threshold float64) *OriginalityDetector {
	d := &OriginalityDetector{threshold: threshold}
	for _, ref := range references {
		d.corpus = append(d.corpus, shingles(ref))
	}
	return d
}

// Check implements detector.OriginalityDetector. Similarity is the highest
// fraction of the answer's shingles found in any single reference.
func (d *OriginalityDetector) Check(ctx context.Context, text string) (detector.OriginalityResult, error) {
	if err := ctx.Err(); err != nil {
		return detector.OriginalityResult{}, err
	}
	answer := shingles(text)
	if len(answer) == 0 {
		return detector.OriginalityResult{}, nil
	}
	var best float64
	for _, ref := range d.corpus {
		shared := 0
		for s := range answer {
			if _, ok := ref[s]; ok {
				shared++
			}
		}
		if sim := float64(shared) / float64(len(answer)); sim > best {
			best = sim
		}
	}
	return detector.OriginalityResult{
		Flagged:    best >= d.threshold,
		Similarity: best,
	}, nil
}

func shingles(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{})
	for i := 0; i+shingleSize <= len(words); i++ {
		out[strings.Join(words[i:i+shingleSize], " ")] = struct{}{}
	}
	return out
}
