package pipeline

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/folioenrich/folioenrich/internal/embedding"
	"github.com/folioenrich/folioenrich/internal/matching"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/ontology"
)

const (
	lexicalExactPreferred = 1.0
	lexicalExactAlt       = 0.8
	lexicalFuzzy          = 0.5

	compositeLexicalWeight  = 0.6
	compositeSemanticWeight = 0.4

	// resolverBackups is the number of ranked alternates kept per
	// annotation.
	resolverBackups = 5
)

// labelEntry is one ontology label in the resolver's inverted index.
type labelEntry struct {
	iri       string
	preferred bool
}

// resolution is a cached outcome for one (surface, branch hint) pair.
// Resolution is deterministic for a given ontology snapshot, so repeated
// surfaces are resolved once per job.
type resolution struct {
	iri     string
	backups []model.Candidate
}

// Resolver maps surface text to concrete ontology IRIs. Annotations that
// already carry an IRI take a verification fast path; label-only
// discoveries go through lexical plus semantic candidate ranking.
type Resolver struct {
	acc   ontology.Accessor
	index *embedding.Index

	labels map[string][]labelEntry

	mu    sync.Mutex
	cache map[string]resolution
}

// NewResolver builds the label index eagerly. A nil embedding index
// degrades scoring to lexical-only.
func NewResolver(acc ontology.Accessor, index *embedding.Index) *Resolver {
	r := &Resolver{
		acc:    acc,
		index:  index,
		labels: make(map[string][]labelEntry),
		cache:  make(map[string]resolution),
	}
	acc.IterateClasses(func(c ontology.Class) bool {
		r.addLabel(c.PreferredLabel, c.IRI, true)
		for _, alt := range c.AltLabels {
			r.addLabel(alt, c.IRI, false)
		}
		return true
	})
	return r
}

func (r *Resolver) addLabel(label, iri string, preferred bool) {
	k := matching.FoldCollapse(label)
	if k == "" {
		return
	}
	r.labels[k] = append(r.labels[k], labelEntry{iri: iri, preferred: preferred})
}

// Resolve fills in IRIs, labels, definitions, branch sets and backup
// candidates for every non-rejected annotation. Annotations whose IRI
// cannot be grounded in the ontology are rejected, never dropped.
func (r *Resolver) Resolve(ctx context.Context, matches []*model.ConceptMatch, res *model.JobResult) {
	for _, m := range matches {
		if m.State == model.StateRejected {
			continue
		}
		if m.ConceptIRI != "" {
			r.verify(m, res)
			continue
		}
		r.resolveSurface(ctx, m, res)
	}
}

// verify is the fast path for annotations that already name an IRI.
func (r *Resolver) verify(m *model.ConceptMatch, res *model.JobResult) {
	c, err := r.acc.GetClass(m.ConceptIRI)
	if err != nil {
		m.State = model.StateRejected
		m.AppendLineage("resolver", "rejected", m.ConceptIRI, "", "unresolved_iri")
		res.AddQualitySignal("resolver", "unresolved IRI "+m.ConceptIRI)
		return
	}
	if m.PreferredLabel == "" {
		m.PreferredLabel = c.PreferredLabel
	}
	if m.Definition == "" {
		m.Definition = c.Definition
	}
	if len(m.Branches) == 0 {
		m.Branches = c.Branches
	}
	r.attachBackups(m)
	m.AppendLineage("resolver", "resolved", "", m.ConceptIRI, "iri_verified")
}

// resolveSurface ranks candidate concepts for a label-only discovery.
func (r *Resolver) resolveSurface(ctx context.Context, m *model.ConceptMatch, res *model.JobResult) {
	key := matching.FoldCollapse(m.SurfaceText) + "\x1f" + strings.ToLower(strings.Join(m.Branches, ","))

	r.mu.Lock()
	cached, hit := r.cache[key]
	r.mu.Unlock()

	if !hit {
		cached = r.rank(ctx, m.SurfaceText, m.Branches)
		r.mu.Lock()
		r.cache[key] = cached
		r.mu.Unlock()
	}

	if cached.iri == "" {
		m.State = model.StateRejected
		m.AppendLineage("resolver", "rejected", "", "", "unresolved_surface")
		res.AddQualitySignal("resolver", "no concept for surface "+strings.TrimSpace(m.SurfaceText))
		return
	}

	c, err := r.acc.GetClass(cached.iri)
	if err != nil {
		m.State = model.StateRejected
		m.AppendLineage("resolver", "rejected", cached.iri, "", "unresolved_iri")
		res.AddQualitySignal("resolver", "unresolved IRI "+cached.iri)
		return
	}

	m.ConceptIRI = c.IRI
	m.PreferredLabel = c.PreferredLabel
	m.Definition = c.Definition
	m.Branches = c.Branches
	for _, b := range cached.backups {
		m.AddBackup(b)
	}
	m.AppendLineage("resolver", "resolved", "", c.IRI, "surface_ranked")
}

// scoredCandidate holds the ranking key for one candidate IRI.
type scoredCandidate struct {
	iri       string
	label     string
	score     float64
	preferred bool
	onHint    bool
}

// rank scores every label-index hit for the surface with the composite
// lexical plus semantic score and returns the winner plus backups.
func (r *Resolver) rank(ctx context.Context, surface string, branchHint []string) resolution {
	folded := matching.FoldCollapse(surface)
	if folded == "" {
		return resolution{}
	}

	byIRI := make(map[string]*scoredCandidate)
	collect := func(entries []labelEntry, lexical float64) {
		for _, e := range entries {
			cur, ok := byIRI[e.iri]
			if ok && cur.score >= lexical {
				if e.preferred {
					cur.preferred = true
				}
				continue
			}
			c, err := r.acc.GetClass(e.iri)
			if err != nil {
				continue
			}
			byIRI[e.iri] = &scoredCandidate{
				iri:       e.iri,
				label:     c.PreferredLabel,
				score:     lexical,
				preferred: e.preferred,
				onHint:    onAnyBranch(c.Branches, branchHint),
			}
		}
	}

	for _, e := range r.labels[folded] {
		if e.preferred {
			collect([]labelEntry{e}, lexicalExactPreferred)
		} else {
			collect([]labelEntry{e}, lexicalExactAlt)
		}
	}
	if len(byIRI) == 0 {
		for labelKey, entries := range r.labels {
			if fuzzyContains(labelKey, folded) {
				collect(entries, lexicalFuzzy)
			}
		}
	}
	if len(byIRI) == 0 {
		return resolution{}
	}

	candidates := make([]*scoredCandidate, 0, len(byIRI))
	for _, c := range byIRI {
		candidates = append(candidates, c)
	}

	// Blend in semantic similarity when an embedding index is live.
	if r.index != nil {
		for _, c := range candidates {
			sem, err := r.index.Score(ctx, surface, c.iri)
			if err == nil {
				c.score = compositeLexicalWeight*c.score + compositeSemanticWeight*sem
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.onHint != b.onHint {
			return a.onHint
		}
		if a.score != b.score {
			return a.score > b.score
		}
		if a.preferred != b.preferred {
			return a.preferred
		}
		return a.iri < b.iri
	})

	out := resolution{iri: candidates[0].iri}
	for _, c := range candidates[1:] {
		if len(out.backups) == resolverBackups {
			break
		}
		out.backups = append(out.backups, model.Candidate{IRI: c.iri, Label: c.label, Score: c.score})
	}
	return out
}

// attachBackups ranks alternates for an annotation that arrived with its
// IRI already set, reusing the same candidate machinery.
func (r *Resolver) attachBackups(m *model.ConceptMatch) {
	folded := matching.FoldCollapse(m.SurfaceText)
	entries := r.labels[folded]
	if len(entries) < 2 {
		return
	}
	alts := make([]scoredCandidate, 0, len(entries))
	for _, e := range entries {
		if e.iri == m.ConceptIRI {
			continue
		}
		c, err := r.acc.GetClass(e.iri)
		if err != nil {
			continue
		}
		score := lexicalExactAlt
		if e.preferred {
			score = lexicalExactPreferred
		}
		alts = append(alts, scoredCandidate{iri: e.iri, label: c.PreferredLabel, score: score, preferred: e.preferred})
	}
	sort.Slice(alts, func(i, j int) bool {
		if alts[i].score != alts[j].score {
			return alts[i].score > alts[j].score
		}
		return alts[i].iri < alts[j].iri
	})
	for i, c := range alts {
		if i == resolverBackups {
			break
		}
		m.AddBackup(model.Candidate{IRI: c.iri, Label: c.label, Score: c.score})
	}
}

// fuzzyContains reports whether every word of the surface occurs in the
// label, a deliberately conservative fallback used only when no exact
// label matched.
func fuzzyContains(labelKey, folded string) bool {
	words := strings.Fields(folded)
	if len(words) == 0 {
		return false
	}
	labelWords := make(map[string]bool)
	for _, w := range strings.Fields(labelKey) {
		labelWords[w] = true
	}
	for _, w := range words {
		if !labelWords[w] {
			return false
		}
	}
	return true
}

func onAnyBranch(branches, hint []string) bool {
	for _, h := range hint {
		if onBranch(branches, h) {
			return true
		}
	}
	return false
}
