package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Prompts are data: static templates with injected lists. Each structured
// prompt carries a versioned response schema used both for the provider's
// system message and for validation.

// SchemaVersion tags the structured-response schemas below.
const SchemaVersion = "v1"

// ConceptResponse is the concept-proposer structured response.
type ConceptResponse struct {
	Concepts []struct {
		ConceptText string  `json:"concept_text"`
		BranchHint  string  `json:"branch_hint"`
		Confidence  float64 `json:"confidence"`
	} `json:"concepts"`
}

// ConceptSchema is the JSON schema for ConceptResponse.
var ConceptSchema = json.RawMessage(`{"type":"object","properties":{"concepts":{"type":"array","items":{"type":"object","properties":{"concept_text":{"type":"string"},"branch_hint":{"type":"string"},"confidence":{"type":"number"}},"required":["concept_text","branch_hint","confidence"]}}},"required":["concepts"]}`)

// BuildConceptPrompt assembles the per-chunk concept identification prompt.
func BuildConceptPrompt(chunk string, branches []string) string {
	var b strings.Builder
	b.WriteString("You are a legal concept annotator. Identify every legal concept in the text below.\n\n")
	b.WriteString("For each concept provide:\n")
	b.WriteString("1. concept_text: the EXACT contiguous text as it appears, verbatim\n")
	b.WriteString("2. branch_hint: the most likely ontology branch from the list\n")
	b.WriteString("3. confidence: 0.0-1.0\n\n")
	b.WriteString("Ontology branches:\n")
	for _, br := range branches {
		fmt.Fprintf(&b, "- %s\n", br)
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Use the exact text, never paraphrase or normalize\n")
	b.WriteString("- Prefer the most specific concept (\"breach of contract\" over \"breach\")\n")
	b.WriteString("- A concept is 1-5 words long\n")
	b.WriteString("- Skip common English words that are not legal concepts in context\n")
	b.WriteString("- Skip area-of-law categories; those are document-level, not text spans\n")
	b.WriteString("\nTEXT:\n")
	b.WriteString(chunk)
	return b.String()
}

// RerankResponse is the contextual rerank structured response.
type RerankResponse struct {
	ContextScore float64 `json:"contextual_score"`
}

// RerankSchema is the JSON schema for RerankResponse.
var RerankSchema = json.RawMessage(`{"type":"object","properties":{"contextual_score":{"type":"number"}},"required":["contextual_score"]}`)

// BuildRerankPrompt scores one annotation against its context window using
// a four-anchor rubric.
func BuildRerankPrompt(surface, label, definition, window string) string {
	var b strings.Builder
	b.WriteString("Score how well the ontology concept fits this text occurrence in context.\n\n")
	fmt.Fprintf(&b, "Occurrence: %q\nConcept: %s\n", surface, label)
	if definition != "" {
		fmt.Fprintf(&b, "Definition: %s\n", definition)
	}
	fmt.Fprintf(&b, "\nContext:\n%s\n\n", window)
	b.WriteString("Rubric:\n")
	b.WriteString("- 0.95 the concept is unambiguously what the text means here\n")
	b.WriteString("- 0.70 plausible reading, some ambiguity\n")
	b.WriteString("- 0.40 weak fit, the text probably means something else\n")
	b.WriteString("- 0.20 likely false positive\n")
	return b.String()
}

// BranchJudgeResponse is the branch-judge structured response.
type BranchJudgeResponse struct {
	Branch     string  `json:"branch"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// BranchJudgeSchema is the JSON schema for BranchJudgeResponse.
var BranchJudgeSchema = json.RawMessage(`{"type":"object","properties":{"branch":{"type":"string"},"confidence":{"type":"number"},"reasoning":{"type":"string"}},"required":["branch","confidence"]}`)

// BuildBranchJudgePrompt disambiguates the branch of a multi-branch concept.
func BuildBranchJudgePrompt(surface, sentence string, candidates []string) string {
	var b strings.Builder
	b.WriteString("You are a legal ontology expert. Pick the single branch this concept belongs to in this sentence.\n\n")
	fmt.Fprintf(&b, "Concept: %q\nSentence: %s\nCandidate branches: %s\n", surface, sentence, strings.Join(candidates, ", "))
	return b.String()
}

// DocTypeResponse is the document-type classifier structured response.
type DocTypeResponse struct {
	DocumentType string  `json:"document_type"`
	Confidence   float64 `json:"confidence"`
}

// DocTypeSchema is the JSON schema for DocTypeResponse.
var DocTypeSchema = json.RawMessage(`{"type":"object","properties":{"document_type":{"type":"string"},"confidence":{"type":"number"}},"required":["document_type","confidence"]}`)

// BuildDocTypePrompt classifies the document from its opening.
func BuildDocTypePrompt(opening string) string {
	return "Classify this legal document from its opening. Answer with a short type such as " +
		"\"complaint\", \"motion\", \"contract\", \"court opinion\", \"statute\", \"brief\", \"letter\".\n\nOPENING:\n" + opening
}

// LinkResponse is the individual/property linker structured response.
type LinkResponse struct {
	SubjectIRI string  `json:"subject_iri,omitempty"`
	ObjectIRI  string  `json:"object_iri,omitempty"`
	ConceptIRI string  `json:"concept_iri,omitempty"`
	Confidence float64 `json:"confidence"`
}

// LinkSchema is the JSON schema for LinkResponse.
var LinkSchema = json.RawMessage(`{"type":"object","properties":{"subject_iri":{"type":"string"},"object_iri":{"type":"string"},"concept_iri":{"type":"string"},"confidence":{"type":"number"}}}`)

// BuildIndividualLinkPrompt validates or overrides the nearest-class link
// for an extracted individual.
func BuildIndividualLinkPrompt(surface, typ, sentence string, candidates []string) string {
	var b strings.Builder
	b.WriteString("Link this extracted entity to the ontology class it instantiates, or none.\n\n")
	fmt.Fprintf(&b, "Entity: %q (type %s)\nSentence: %s\nCandidate class IRIs:\n", surface, typ, sentence)
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\nRespond with concept_iri (one of the candidates or empty) and confidence.")
	return b.String()
}

// BuildPropertyLinkPrompt validates or overrides the nearest-neighbor
// domain/range binding for a property occurrence.
func BuildPropertyLinkPrompt(surface, label, sentence string, subjects, objects []string) string {
	var b strings.Builder
	b.WriteString("Bind this legal relation occurrence to its subject and object concepts.\n\n")
	fmt.Fprintf(&b, "Relation: %q (%s)\nSentence: %s\n", surface, label, sentence)
	b.WriteString("Subject candidates:\n")
	for _, s := range subjects {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString("Object candidates:\n")
	for _, o := range objects {
		fmt.Fprintf(&b, "- %s\n", o)
	}
	b.WriteString("\nRespond with subject_iri, object_iri (each one of the candidates or empty) and confidence.")
	return b.String()
}

// AreaOfLawResponse is the post-pipeline area-of-law response.
type AreaOfLawResponse struct {
	Areas []struct {
		Area       string  `json:"area"`
		Confidence float64 `json:"confidence"`
	} `json:"areas"`
}

// AreaOfLawSchema is the JSON schema for AreaOfLawResponse.
var AreaOfLawSchema = json.RawMessage(`{"type":"object","properties":{"areas":{"type":"array","items":{"type":"object","properties":{"area":{"type":"string"},"confidence":{"type":"number"}},"required":["area","confidence"]}}},"required":["areas"]}`)

// BuildAreaOfLawPrompt classifies areas of law from pipeline output.
func BuildAreaOfLawPrompt(concepts []string, docType string) string {
	var b strings.Builder
	b.WriteString("Classify the areas of law for a document with these characteristics.\n\n")
	if docType != "" {
		fmt.Fprintf(&b, "Document type: %s\n", docType)
	}
	fmt.Fprintf(&b, "Legal concepts found: %s\n", strings.Join(concepts, ", "))
	b.WriteString("\nReturn up to three areas with confidences.")
	return b.String()
}

// MetadataSchema is the JSON schema for the document metadata record. The
// response unmarshals directly into model.DocumentMetadata.
var MetadataSchema = json.RawMessage(`{"type":"object","properties":{"case_name":{"type":"string"},"court":{"type":"string"},"judge":{"type":"string"},"case_number":{"type":"string"},"parties":{"type":"array","items":{"type":"string"}},"jurisdiction":{"type":"string"},"procedural_posture":{"type":"string"},"cause_of_action":{"type":"string"},"claim_types":{"type":"array","items":{"type":"string"}},"relief_sought":{"type":"string"},"disposition":{"type":"string"},"standard_of_review":{"type":"string"},"governing_law":{"type":"string"},"author":{"type":"string"},"recipient":{"type":"string"},"attorneys":{"type":"array","items":{"type":"string"}},"signatories":{"type":"array","items":{"type":"string"}},"witnesses":{"type":"array","items":{"type":"string"}},"date_filed":{"type":"string"},"date_signed":{"type":"string"},"date_effective":{"type":"string"},"dates_mentioned":{"type":"array","items":{"type":"string"}},"document_title":{"type":"string"},"contract_type":{"type":"string"},"term_duration":{"type":"string"},"termination_conditions":{"type":"string"},"language":{"type":"string"},"dominant_branches":{"type":"array","items":{"type":"string"}}}}`)

// BuildMetadataPrompt assembles the single metadata-synthesis call from the
// full pipeline context. Values must be extracted, never invented.
func BuildMetadataPrompt(docType, opening, closing string, context map[string][]string) string {
	var b strings.Builder
	b.WriteString("You are a legal metadata extractor. A pipeline has already extracted entities, relations and concepts from the whole document. Using this context plus the document bookends, fill the metadata record. Leave fields empty when unsupported by the context; never invent values.\n\n")
	if docType != "" {
		fmt.Fprintf(&b, "Document type: %s\n\n", docType)
	}
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(context[k]) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", strings.ToUpper(k))
		for _, v := range context[k] {
			fmt.Fprintf(&b, "  %s\n", v)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "DOCUMENT OPENING:\n%s\n\n", opening)
	if closing != "" {
		fmt.Fprintf(&b, "DOCUMENT CLOSING:\n%s\n", closing)
	}
	return b.String()
}

// CrossCheckResponse is the document-type quality cross-check response.
type CrossCheckResponse struct {
	Consistent bool   `json:"consistent"`
	Reason     string `json:"reason"`
}

// CrossCheckSchema is the JSON schema for CrossCheckResponse.
var CrossCheckSchema = json.RawMessage(`{"type":"object","properties":{"consistent":{"type":"boolean"},"reason":{"type":"string"}},"required":["consistent"]}`)

// BuildCrossCheckPrompt asks whether the classified type matches the
// pipeline's evidence.
func BuildCrossCheckPrompt(docType string, concepts []string, metadataSummary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A document was classified as %q. Check this against the extraction evidence.\n\n", docType)
	fmt.Fprintf(&b, "Concepts: %s\n", strings.Join(concepts, ", "))
	if metadataSummary != "" {
		fmt.Fprintf(&b, "Metadata: %s\n", metadataSummary)
	}
	b.WriteString("\nIs the classification consistent with the evidence?")
	return b.String()
}
