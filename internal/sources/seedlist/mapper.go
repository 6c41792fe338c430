package seedlist

import (
	"fmt"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
)

// Source is recorded on every seeded reputation record.
const Source = "seed"

const defaultConfidence = 100

// Seed is a normalised entry ready to be written to the reputation cache.
type Seed struct {
	URL        string
	Verdict    domain.Verdict
	Assessment domain.Assessment
}

// Skipped describes an entry that could not be used.
type Skipped struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Mapper converts a seed file into seeds.
type Mapper struct{}

func NewMapper() *Mapper {
	return &Mapper{}
}

// Map normalises every entry. Invalid URLs are skipped. A URL listed in both
// lists is a contradiction and fails the whole file; duplicates within one
// list keep the last entry.
func (m *Mapper) Map(f File) ([]Seed, []Skipped, error) {
	var seeds []Seed
	var skipped []Skipped
	seen := make(map[string]domain.List)
	index := make(map[string]int)

	add := func(list domain.List, entries []Entry) error {
		for _, e := range entries {
			url, err := domain.NormalizeURL(e.URL)
			if err != nil {
				skipped = append(skipped, Skipped{URL: e.URL, Reason: err.Error()})
				continue
			}
			if prev, ok := seen[url]; ok && prev != list {
				return fmt.Errorf("%s is listed in both %s and %s", url, prev, list)
			}

			seed := Seed{
				URL:     url,
				Verdict: list.Verdict(),
				Assessment: domain.Assessment{
					ThreatType: e.ThreatType,
					Confidence: defaultConfidence,
					Source:     Source,
					Details:    e.Details,
				},
			}
			if list == domain.Whitelist {
				seed.Assessment.ThreatType = ""
			}
			if e.Confidence != nil {
				seed.Assessment.Confidence = *e.Confidence
			}

			if i, ok := index[url]; ok {
				seeds[i] = seed
				continue
			}
			seen[url] = list
			index[url] = len(seeds)
			seeds = append(seeds, seed)
		}
		return nil
	}

	if err := add(domain.Whitelist, f.Whitelist); err != nil {
		return nil, nil, err
	}
	if err := add(domain.Blacklist, f.Blacklist); err != nil {
		return nil, nil, err
	}
	return seeds, skipped, nil
}
