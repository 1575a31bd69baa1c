// Package individual extracts OWL-style named instances from the
// normalized text: citations, dates, amounts, parties and the other typed
// entities the ontology can anchor. Everything here runs without a
// language model.
package individual

import (
	"regexp"
	"strings"

	"github.com/folioenrich/folioenrich/internal/model"
)

// Extractor produces typed individuals from the normalized text.
type Extractor interface {
	Name() string
	Extract(text string) []*model.Individual
}

// Extractors returns the full extractor set in execution order.
func Extractors() []Extractor {
	out := []Extractor{NewCitationExtractor()}
	for _, e := range regexExtractors {
		out = append(out, e)
	}
	out = append(out, orgExtractor{}, NewNERExtractor())
	return out
}

// ExtractAll runs every extractor and deduplicates the combined output.
func ExtractAll(text string) []*model.Individual {
	var all []*model.Individual
	for _, e := range Extractors() {
		all = append(all, e.Extract(text)...)
	}
	return Deduplicate(all)
}

// regexExtractor is a single-pattern extractor. normalize, when set,
// derives the normalized form from the raw match.
type regexExtractor struct {
	name      string
	typ       model.IndividualType
	conf      float64
	re        *regexp.Regexp
	minLen    int
	normalize func(string) string
}

func (e *regexExtractor) Name() string { return e.name }

func (e *regexExtractor) Extract(text string) []*model.Individual {
	var out []*model.Individual
	for _, loc := range e.re.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		surface := strings.TrimSpace(raw)
		if len(surface) < e.minLen || surface == "" {
			continue
		}
		// Keep the span aligned with the trimmed surface form.
		start := loc[0] + strings.Index(raw, surface)
		ind := model.NewIndividual(
			model.Span{Start: start, End: start + len(surface)},
			surface, e.typ, e.conf, e.name,
		)
		if e.normalize != nil {
			ind.NormalizedForm = e.normalize(surface)
		}
		out = append(out, ind)
	}
	return out
}

const monthAlt = `January|February|March|April|May|June|July|August|` +
	`September|October|November|December|` +
	`Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec`

const smallNumberAlt = `one|two|three|four|five|six|seven|eight|nine|ten|` +
	`eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty|` +
	`thirty|forty|fifty|sixty|seventy|eighty|ninety|hundred|thousand|million|billion|trillion`

var regexExtractors = []*regexExtractor{
	{
		name: "money", typ: model.IndividualMoney, conf: 0.93, minLen: 2,
		re: regexp.MustCompile(`(?i)` +
			`[$€£¥₹]\s*[\d,]+(?:\.\d+)?\s*(?:(?:hundred|thousand|million|billion|trillion|[KMBT])(?:\s+dollars?)?)?` +
			`|[\d,]+(?:\.\d+)?\s*(?:dollars?|cents?|USD|EUR|GBP|JPY)` +
			`|(?:(?:` + smallNumberAlt + `)[\s-]*)+(?:dollars?|cents?|pounds?|euros?)`),
	},
	{
		name: "date", typ: model.IndividualDate, conf: 0.92,
		re: regexp.MustCompile(`(?i)` +
			`(?:(?:` + monthAlt + `)\.?\s+\d{1,2},?\s+\d{4})` +
			`|(?:\d{1,2}\s+(?:` + monthAlt + `)\.?\s+\d{4})` +
			`|(?:\d{1,2}/\d{1,2}/\d{2,4})` +
			`|(?:\d{4}-\d{2}-\d{2})` +
			`|(?:the\s+\d{1,2}(?:st|nd|rd|th)\s+day\s+of\s+(?:` + monthAlt + `)\.?,?\s+\d{4})`),
		normalize: normalizeDate,
	},
	{
		name: "duration", typ: model.IndividualDuration, conf: 0.90,
		re: regexp.MustCompile(`(?i)` +
			`(?:\d+(?:\.\d+)?|` + smallNumberAlt + `)` +
			`(?:\s*\(\d+\))?` +
			`\s+(?:second|minute|hour|day|week|month|year|decade)s?\b`),
	},
	{
		name: "percent", typ: model.IndividualPercent, conf: 0.93,
		re: regexp.MustCompile(`(?i)` +
			`\d+(?:\.\d+)?\s*%` +
			`|(?:` + smallNumberAlt + `)\s+percent` +
			`|\d+(?:\.\d+)?\s+basis\s+points?`),
	},
	{
		name: "court", typ: model.IndividualCourt, conf: 0.91,
		re: regexp.MustCompile(`(?i)` +
			`(?:Supreme Court of (?:the United States|[A-Z][a-z]+(?: [A-Z][a-z]+)*))` +
			`|(?:United States (?:District|Circuit|Bankruptcy|Tax) Court)` +
			`|(?:(?:First|Second|Third|Fourth|Fifth|Sixth|Seventh|Eighth|Ninth|Tenth|Eleventh|D\.?C\.?) Circuit)` +
			`|(?:[SNWCE]\.D\.\s*[A-Z][a-z]+\.?)` +
			`|(?:Court of (?:Appeals?|Common Pleas|Claims|Chancery)(?:\s+(?:for|of)\s+[\w\s]+)?)` +
			`|(?:(?:Superior|District|Circuit|Appellate|Family|Probate|Municipal|Juvenile|Small Claims) Court(?:\s+(?:of|for)\s+[A-Z][\w\s]*)?)`),
	},
	{
		name: "address", typ: model.IndividualAddress, conf: 0.87, minLen: 10,
		re: regexp.MustCompile(
			`\d{1,5}\s+[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*` +
				`\s+(?:Street|St|Avenue|Ave|Boulevard|Blvd|Road|Rd|Drive|Dr|Lane|Ln|Way|Court|Ct|Place|Pl|Circle|Cir|Terrace|Ter|Pike|Highway|Hwy)\.?` +
				`(?:,?\s+(?:Suite|Ste|Apt|Unit|Floor|Fl|Room|Rm)\.?\s*\d+)?` +
				`(?:,\s+[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*)?` +
				`(?:,?\s+[A-Z]{2})?` +
				`(?:\s+\d{5}(?:-\d{4})?)?`),
	},
	{
		name: "phone", typ: model.IndividualPhone, conf: 0.90,
		re: regexp.MustCompile(`(?:\+1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]?\d{4}\b`),
		normalize: func(s string) string {
			digits := strings.Map(func(r rune) rune {
				if r >= '0' && r <= '9' {
					return r
				}
				return -1
			}, s)
			if len(digits) == 11 && digits[0] == '1' {
				digits = digits[1:]
			}
			return digits
		},
	},
	{
		name: "email", typ: model.IndividualEmail, conf: 0.95,
		re:        regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		normalize: strings.ToLower,
	},
	{
		name: "url", typ: model.IndividualURL, conf: 0.95,
		re: regexp.MustCompile(`https?://[^\s<>"')\]]+`),
	},
	{
		name: "statute", typ: model.IndividualStatute, conf: 0.90,
		re: regexp.MustCompile(
			`\d+\s+U\.S\.C\.(?:A\.)?\s+§{1,2}\s*[\d.]+(?:\([a-z0-9]+\))*` +
				`|[A-Z][a-z]+\.?\s+(?:Rev\.\s+)?(?:Civ\.|Penal|Gen\.|Bus\.|Corp\.|Lab\.|Ins\.)?\s*(?:Code|Stat\.|Laws)\s+(?:Ann\.\s+)?§{1,2}\s*[\d.\-]+` +
				`|§{1,2}\s*\d+(?:\.\d+)*(?:\([a-z0-9]+\))*`),
	},
	{
		name: "case_number", typ: model.IndividualCaseNumber, conf: 0.88,
		re: regexp.MustCompile(`(?i)(?:Case\s+)?No\.\s*\d{1,2}:\d{2}-[a-z]{2}-\d{3,6}(?:-[A-Z]{2,4})?` +
			`|(?:Case\s+|Docket\s+)No\.\s*[\dA-Z][\d\-A-Z]{3,15}`),
	},
}

var monthNumbers = map[string]string{
	"january": "01", "jan": "01", "february": "02", "feb": "02",
	"march": "03", "mar": "03", "april": "04", "apr": "04", "may": "05",
	"june": "06", "jun": "06", "july": "07", "jul": "07",
	"august": "08", "aug": "08", "september": "09", "sep": "09",
	"october": "10", "oct": "10", "november": "11", "nov": "11",
	"december": "12", "dec": "12",
}

var (
	dateTextualRe = regexp.MustCompile(`(?i)^(` + monthAlt + `)\.?\s+(\d{1,2}),?\s+(\d{4})$`)
	dateDayFirst  = regexp.MustCompile(`(?i)^(\d{1,2})\s+(` + monthAlt + `)\.?\s+(\d{4})$`)
	dateSlashed   = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)
	dateISO       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateDayOf     = regexp.MustCompile(`(?i)^the\s+(\d{1,2})(?:st|nd|rd|th)\s+day\s+of\s+(` + monthAlt + `)\.?,?\s+(\d{4})$`)
)

// normalizeDate renders any recognized surface form as ISO-8601, or empty
// when the form is ambiguous.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if dateISO.MatchString(s) {
		return s
	}
	if m := dateTextualRe.FindStringSubmatch(s); m != nil {
		return isoDate(m[3], monthNumbers[strings.ToLower(m[1])], m[2])
	}
	if m := dateDayFirst.FindStringSubmatch(s); m != nil {
		return isoDate(m[3], monthNumbers[strings.ToLower(m[2])], m[1])
	}
	if m := dateDayOf.FindStringSubmatch(s); m != nil {
		return isoDate(m[3], monthNumbers[strings.ToLower(m[2])], m[1])
	}
	if m := dateSlashed.FindStringSubmatch(s); m != nil {
		year := m[3]
		if len(year) == 2 {
			year = "20" + year
		}
		// US convention: month/day/year.
		return isoDate(year, pad2(m[1]), m[2])
	}
	return ""
}

func isoDate(year, month, day string) string {
	if month == "" {
		return ""
	}
	return year + "-" + month + "-" + pad2(day)
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
