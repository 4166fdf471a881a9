// Package selector scores the tool catalogue against a natural-language
// intent string and returns the top-K matches, so an MCP host that asks
// for "just the relevant tools" doesn't have to see all of them.
package selector

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/genobridge/genobridge/pkg/registry"
)

// Weights tunes the four scoring terms from §4.8.
type Weights struct {
	Keyword  float64
	Category float64
	Priority float64
	Context  float64
}

// DefaultWeights are the values decided for the three-way tie the
// specification left open: w1=3 (keyword), w2=2 (category), w3=0.1
// (priority), w4=1.5 (context).
var DefaultWeights = Weights{Keyword: 3, Category: 2, Priority: 0.1, Context: 1.5}

var categoryHints = map[string]registry.Category{
	"blast":     registry.CategoryExternal,
	"translate": registry.CategorySequence,
	"gc":        registry.CategorySequence,
	"orf":       registry.CategorySequence,
	"codon":     registry.CategorySequence,
	"navigate":  registry.CategoryNavigation,
	"zoom":      registry.CategoryNavigation,
	"uniprot":   registry.CategoryDatabase,
	"pdb":       registry.CategoryDatabase,
	"alphafold": registry.CategoryDatabase,
	"pathway":   registry.CategoryPathway,
	"copy":      registry.CategoryAction,
	"paste":     registry.CategoryAction,
	"undo":      registry.CategoryAction,
	"generate":  registry.CategoryAIGen,
	"evo2":      registry.CategoryAIGen,
	"plugin":    registry.CategoryPluginMgmt,
}

const defaultTopK = 10
const cacheTTL = 5 * time.Minute

type cacheEntry struct {
	result    []*registry.Descriptor
	expiresAt time.Time
}

// Selector scores registry.Descriptors against an intent + context.
type Selector struct {
	registry *registry.Registry
	weights  Weights

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New builds a Selector reading from reg with the given weights. A zero
// Weights value is replaced with DefaultWeights.
func New(reg *registry.Registry, weights Weights) *Selector {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	return &Selector{registry: reg, weights: weights, cache: make(map[string]cacheEntry)}
}

// Select returns up to topK descriptors ranked by relevance to intent and
// ctx (an opaque snapshot of client UI state, may be nil). It never
// returns zero tools when the registry is non-empty: a miss on every
// keyword falls back to the globally highest-priority descriptors.
func (s *Selector) Select(intent string, ctx map[string]any, topK int) []*registry.Descriptor {
	if topK <= 0 {
		topK = defaultTopK
	}

	key := cacheKey(intent, ctx, topK)
	if cached, ok := s.cached(key); ok {
		return cached
	}

	all := s.registry.All()
	intentLower := strings.ToLower(intent)
	hintedCategory := classifyIntent(intentLower)

	type scored struct {
		d     *registry.Descriptor
		score float64
	}

	results := make([]scored, 0, len(all))
	var anyKeywordMatch bool

	for _, d := range all {
		score := 0.0

		kw := keywordMatches(d, intentLower)
		if kw > 0 {
			anyKeywordMatch = true
		}
		score += s.weights.Keyword * float64(kw)

		if hintedCategory != "" && d.Category == hintedCategory {
			score += s.weights.Category
		}

		score += s.weights.Priority * float64(d.Priority)

		if contextMatchesSchema(d, ctx) {
			score += s.weights.Context
		}

		results = append(results, scored{d: d, score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		if results[i].d.Priority != results[j].d.Priority {
			return results[i].d.Priority > results[j].d.Priority
		}
		return results[i].d.Name < results[j].d.Name
	})

	var out []*registry.Descriptor
	if anyKeywordMatch {
		for i := 0; i < len(results) && i < topK; i++ {
			out = append(out, results[i].d)
		}
	} else {
		out = highestPriority(all, topK)
	}

	s.store(key, out)
	return out
}

func keywordMatches(d *registry.Descriptor, intentLower string) int {
	words := strings.Fields(intentLower)
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[strings.TrimSuffix(w, "s")] = true
	}

	count := 0
	for _, kw := range d.Keywords {
		stem := strings.TrimSuffix(strings.ToLower(kw), "s")
		if wordSet[stem] {
			count++
		}
	}
	return count
}

func classifyIntent(intentLower string) registry.Category {
	for hint, category := range categoryHints {
		if strings.Contains(intentLower, hint) {
			return category
		}
	}
	return ""
}

// contextMatchesSchema boosts a descriptor when the caller's context
// mentions an entity role (gene, chromosome, sequence...) that the
// descriptor's schema also has a property for.
func contextMatchesSchema(d *registry.Descriptor, ctx map[string]any) bool {
	if len(ctx) == 0 {
		return false
	}
	for role := range ctx {
		if _, ok := d.Schema.Properties[role]; ok {
			return true
		}
	}
	return false
}

func highestPriority(all []*registry.Descriptor, topK int) []*registry.Descriptor {
	sorted := make([]*registry.Descriptor, len(all))
	copy(sorted, all)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].Name < sorted[j].Name
	})
	if len(sorted) > topK {
		sorted = sorted[:topK]
	}
	return sorted
}

func (s *Selector) cached(key string) ([]*registry.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.result, true
}

func (s *Selector) store(key string, result []*registry.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = cacheEntry{result: result, expiresAt: time.Now().Add(cacheTTL)}
}

func cacheKey(intent string, ctx map[string]any, topK int) string {
	data, _ := json.Marshal(struct {
		Intent string         `json:"intent"`
		Ctx    map[string]any `json:"ctx"`
		TopK   int            `json:"topK"`
	}{intent, ctx, topK})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
