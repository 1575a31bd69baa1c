package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/folioenrich/folioenrich/internal/llm"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/worker"
)

// docTypeOpening is how much of the document the classifier sees. Legal
// documents identify themselves in their caption and first paragraphs.
const docTypeOpening = 1500

// maxAreasOfLaw caps the post-pipeline classification.
const maxAreasOfLaw = 3

// DocTyper classifies the document type from the opening, cross-checks
// the classification against the pipeline's evidence and derives the
// areas of law.
type DocTyper struct {
	provider llm.Provider
	budget   llm.Budget
	limiter  *worker.Limiter
}

// NewDocTyper creates a document-type classifier; nil provider degrades
// Classify to empty and AreasOfLaw to the branch-frequency fallback.
func NewDocTyper(provider llm.Provider, budget llm.Budget, limiter *worker.Limiter) *DocTyper {
	return &DocTyper{provider: provider, budget: budget, limiter: limiter}
}

// Classify returns the document type, or empty when the model is offline
// or unsure.
func (d *DocTyper) Classify(ctx context.Context, doc *model.Document, res *model.JobResult) string {
	if d.provider == nil {
		return ""
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, "document_type"); err != nil {
			return ""
		}
	}

	opening := doc.Text
	if len(opening) > docTypeOpening {
		opening = opening[:docTypeOpening]
	}

	var resp llm.DocTypeResponse
	if err := llm.StructuredInto(ctx, d.provider, llm.BuildDocTypePrompt(opening), llm.DocTypeSchema, d.budget, &resp); err != nil {
		res.AddQualitySignal("document_type", fmt.Sprintf("classification failed: %v", err))
		return ""
	}
	return strings.ToLower(strings.TrimSpace(resp.DocumentType))
}

// CrossCheck verifies the classified type against the extracted concepts
// and metadata. An inconsistency never changes the type; it surfaces as
// a quality signal for the caller to weigh.
func (d *DocTyper) CrossCheck(ctx context.Context, res *model.JobResult) {
	if d.provider == nil || res.DocumentType == "" {
		return
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, "document_type"); err != nil {
			return
		}
	}

	prompt := llm.BuildCrossCheckPrompt(res.DocumentType, topConceptLabels(res, 20), metadataSummary(res.Metadata))

	var resp llm.CrossCheckResponse
	if err := llm.StructuredInto(ctx, d.provider, prompt, llm.CrossCheckSchema, d.budget, &resp); err != nil {
		return
	}
	if !resp.Consistent {
		res.AddQualitySignal("document_type", "classification inconsistent with evidence: "+resp.Reason)
	}
}

// AreasOfLaw classifies the document's areas of law from the surviving
// concepts. Offline, branch frequency across confirmed annotations
// stands in for the model.
func (d *DocTyper) AreasOfLaw(ctx context.Context, res *model.JobResult) []model.AreaOfLaw {
	if d.provider != nil {
		if areas := d.areasFromModel(ctx, res); len(areas) > 0 {
			return areas
		}
	}
	return branchFrequencyAreas(res)
}

func (d *DocTyper) areasFromModel(ctx context.Context, res *model.JobResult) []model.AreaOfLaw {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, "area_of_law"); err != nil {
			return nil
		}
	}

	prompt := llm.BuildAreaOfLawPrompt(topConceptLabels(res, 30), res.DocumentType)

	var resp llm.AreaOfLawResponse
	if err := llm.StructuredInto(ctx, d.provider, prompt, llm.AreaOfLawSchema, d.budget, &resp); err != nil {
		res.AddQualitySignal("area_of_law", fmt.Sprintf("classification failed: %v", err))
		return nil
	}

	var out []model.AreaOfLaw
	for _, a := range resp.Areas {
		if len(out) == maxAreasOfLaw {
			break
		}
		area := strings.TrimSpace(a.Area)
		if area == "" {
			continue
		}
		out = append(out, model.AreaOfLaw{Area: area, Confidence: anchorScore(a.Confidence)})
	}
	return out
}

// branchFrequencyAreas derives areas from how often each ontology branch
// appears among live annotations, scaled to the dominant branch.
func branchFrequencyAreas(res *model.JobResult) []model.AreaOfLaw {
	counts := make(map[string]int)
	for _, m := range liveMatches(res.Annotations) {
		for _, b := range m.Branches {
			counts[b]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	branches := make([]string, 0, len(counts))
	for b := range counts {
		branches = append(branches, b)
	}
	sort.Slice(branches, func(i, j int) bool {
		if counts[branches[i]] != counts[branches[j]] {
			return counts[branches[i]] > counts[branches[j]]
		}
		return branches[i] < branches[j]
	})

	top := float64(counts[branches[0]])
	var out []model.AreaOfLaw
	for _, b := range branches {
		if len(out) == maxAreasOfLaw {
			break
		}
		out = append(out, model.AreaOfLaw{Area: b, Confidence: float64(counts[b]) / top})
	}
	return out
}

// topConceptLabels collects distinct preferred labels of live annotations
// ordered by descending confidence.
func topConceptLabels(res *model.JobResult, limit int) []string {
	live := liveMatches(res.Annotations)
	sort.SliceStable(live, func(i, j int) bool { return live[i].Confidence > live[j].Confidence })

	seen := make(map[string]bool)
	var out []string
	for _, m := range live {
		label := m.PreferredLabel
		if label == "" {
			label = m.SurfaceText
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
		if len(out) == limit {
			break
		}
	}
	return out
}

func metadataSummary(md *model.DocumentMetadata) string {
	if md == nil {
		return ""
	}
	var parts []string
	if md.CaseName != "" {
		parts = append(parts, "case "+md.CaseName)
	}
	if md.Court != "" {
		parts = append(parts, "court "+md.Court)
	}
	if len(md.Parties) > 0 {
		parts = append(parts, "parties "+strings.Join(md.Parties, "; "))
	}
	if md.ContractType != "" {
		parts = append(parts, "contract type "+md.ContractType)
	}
	return strings.Join(parts, ", ")
}
