package model

// DocumentMetadata is the document-level record produced by the metadata
// synthesizer. Every field is extracted, never invented; absent values stay
// empty.
type DocumentMetadata struct {
	CaseName              string   `json:"case_name,omitempty"`
	Court                 string   `json:"court,omitempty"`
	Judge                 string   `json:"judge,omitempty"`
	CaseNumber            string   `json:"case_number,omitempty"`
	Parties               []string `json:"parties,omitempty"`
	Jurisdiction          string   `json:"jurisdiction,omitempty"`
	ProceduralPosture     string   `json:"procedural_posture,omitempty"`
	CauseOfAction         string   `json:"cause_of_action,omitempty"`
	ClaimTypes            []string `json:"claim_types,omitempty"`
	ReliefSought          string   `json:"relief_sought,omitempty"`
	Disposition           string   `json:"disposition,omitempty"`
	StandardOfReview      string   `json:"standard_of_review,omitempty"`
	GoverningLaw          string   `json:"governing_law,omitempty"`
	Author                string   `json:"author,omitempty"`
	Recipient             string   `json:"recipient,omitempty"`
	Attorneys             []string `json:"attorneys,omitempty"`
	Signatories           []string `json:"signatories,omitempty"`
	Witnesses             []string `json:"witnesses,omitempty"`
	DateFiled             string   `json:"date_filed,omitempty"`
	DateSigned            string   `json:"date_signed,omitempty"`
	DateEffective         string   `json:"date_effective,omitempty"`
	DatesMentioned        []string `json:"dates_mentioned,omitempty"`
	DocumentTitle         string   `json:"document_title,omitempty"`
	ContractType          string   `json:"contract_type,omitempty"`
	TermDuration          string   `json:"term_duration,omitempty"`
	TerminationConditions string   `json:"termination_conditions,omitempty"`
	Language              string   `json:"language,omitempty"`
	DominantBranches      []string `json:"dominant_branches,omitempty"`
}
