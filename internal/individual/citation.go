package individual

import (
	"regexp"
	"sort"
	"strings"

	"github.com/folioenrich/folioenrich/internal/model"
)

// reporter maps a case reporter abbreviation to its canonical form and the
// slug used to build a cite.case.law resolution URL.
type reporter struct {
	abbr string
	slug string
}

var reporters = []reporter{
	{"U.S.", "us"},
	{"S. Ct.", "s-ct"},
	{"L. Ed. 2d", "l-ed-2d"},
	{"L. Ed.", "l-ed"},
	{"F.4th", "f4th"},
	{"F.3d", "f3d"},
	{"F.2d", "f2d"},
	{"F. Supp. 3d", "f-supp-3d"},
	{"F. Supp. 2d", "f-supp-2d"},
	{"F. Supp.", "f-supp"},
	{"F.R.D.", "frd"},
	{"B.R.", "br"},
	{"Fed. Cl.", "fed-cl"},
	{"F.", "f"},
	{"A.3d", "a3d"},
	{"A.2d", "a2d"},
	{"P.3d", "p3d"},
	{"P.2d", "p2d"},
	{"N.E.3d", "ne3d"},
	{"N.E.2d", "ne2d"},
	{"N.W.2d", "nw2d"},
	{"S.E.2d", "se2d"},
	{"S.W.3d", "sw3d"},
	{"S.W.2d", "sw2d"},
	{"So. 3d", "so3d"},
	{"So. 2d", "so2d"},
	{"Cal. Rptr. 3d", "cal-rptr-3d"},
	{"N.Y.S.3d", "nys3d"},
	{"N.Y.S.2d", "nys2d"},
	{"Wn.2d", "wash-2d"},
}

// CitationExtractor parses case citations in "volume reporter page" form
// with an optional pinpoint and parenthetical, normalizing the reporter
// abbreviation and attaching a resolution URL.
type CitationExtractor struct {
	re    *regexp.Regexp
	canon map[string]reporter
}

// NewCitationExtractor builds the citation matcher from the reporter table.
func NewCitationExtractor() *CitationExtractor {
	// Longest abbreviations first so "F. Supp. 2d" wins over "F.".
	sorted := append([]reporter(nil), reporters...)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i].abbr) > len(sorted[j].abbr)
	})

	canon := make(map[string]reporter, len(sorted))
	alts := make([]string, 0, len(sorted))
	for _, r := range sorted {
		canon[foldReporter(r.abbr)] = r
		alts = append(alts, strings.ReplaceAll(regexp.QuoteMeta(r.abbr), " ", `\s+`))
	}

	return &CitationExtractor{
		re: regexp.MustCompile(
			`(\d{1,4})\s+(` + strings.Join(alts, "|") + `)\s+(\d{1,5})` +
				`(?:,\s*\d{1,5}(?:[-–]\d{1,5})?)?` +
				`(?:\s+\(([^()]{0,60}?\d{4})\))?`),
		canon: canon,
	}
}

// Name returns "citation".
func (e *CitationExtractor) Name() string { return "citation" }

// Extract finds case citations and fills normalized forms and URLs.
func (e *CitationExtractor) Extract(text string) []*model.Individual {
	var out []*model.Individual
	for _, m := range e.re.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		surface := text[start:end]
		volume := text[m[2]:m[3]]
		rawReporter := text[m[4]:m[5]]
		page := text[m[6]:m[7]]

		rep, ok := e.canon[foldReporter(rawReporter)]
		if !ok {
			continue
		}

		ind := model.NewIndividual(
			model.Span{Start: start, End: end},
			surface, model.IndividualCitation, 0.92, "citation",
		)
		ind.NormalizedForm = volume + " " + rep.abbr + " " + page
		ind.ResolvedURL = "https://cite.case.law/" + rep.slug + "/" + volume + "/" + page + "/"
		out = append(out, ind)
	}
	return out
}

// foldReporter collapses whitespace so "F.  Supp.  2d" keys the same
// table entry as "F. Supp. 2d".
func foldReporter(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
