package matching

import (
	"unicode"
	"unicode/utf8"
)

// Match is one raw automaton hit: a half-open byte span into the scanned
// text plus the pattern's attached metadata.
type Match struct {
	Start   int
	End     int
	Pattern string
	// Key identifies the concept behind the pattern (an IRI). Matches with
	// identical spans but distinct keys all survive overlap resolution.
	Key   string
	Value any
}

type pattern struct {
	key     string
	folded  string
	runeLen int
	id      string
	value   any
}

type trieNode struct {
	next    map[rune]*trieNode
	fail    *trieNode
	outputs []int
}

func newTrieNode() *trieNode {
	return &trieNode{next: make(map[rune]*trieNode)}
}

// Automaton is a case-insensitive Aho-Corasick matcher with word-boundary
// validation. Patterns are folded (NFKC + lowercase) when added; the scan
// lowercases the input rune by rune, so the input text itself must already
// be NFKC-normalized for offsets to line up. Scanning is O(n + z).
type Automaton struct {
	root         *trieNode
	patterns     []pattern
	built        bool
	hyphenAsWord bool
}

// NewAutomaton creates an empty automaton. hyphenAsWord controls whether
// hyphens count as word characters during boundary checks.
func NewAutomaton(hyphenAsWord bool) *Automaton {
	return &Automaton{root: newTrieNode(), hyphenAsWord: hyphenAsWord}
}

// Add registers a pattern. key identifies the concept (IRI) for overlap
// dedup; value is arbitrary metadata surfaced on matches. Empty patterns
// are ignored.
func (a *Automaton) Add(pat, key string, value any) {
	folded := Fold(pat)
	if folded == "" {
		return
	}
	a.patterns = append(a.patterns, pattern{
		key:     folded,
		folded:  folded,
		runeLen: utf8.RuneCountInString(folded),
		id:      key,
		value:   value,
	})
	a.built = false
}

// Len returns the number of registered patterns.
func (a *Automaton) Len() int { return len(a.patterns) }

// Build constructs goto and failure links. Called implicitly by Scan.
func (a *Automaton) Build() {
	a.root = newTrieNode()
	for i, p := range a.patterns {
		node := a.root
		for _, r := range p.folded {
			child, ok := node.next[r]
			if !ok {
				child = newTrieNode()
				node.next[r] = child
			}
			node = child
		}
		node.outputs = append(node.outputs, i)
	}

	// BFS to set failure links and merge suffix outputs.
	queue := make([]*trieNode, 0, len(a.root.next))
	for _, child := range a.root.next {
		child.fail = a.root
		queue = append(queue, child)
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for r, child := range node.next {
			queue = append(queue, child)
			f := node.fail
			for f != nil {
				if n, ok := f.next[r]; ok {
					child.fail = n
					break
				}
				f = f.fail
			}
			if child.fail == nil {
				child.fail = a.root
			}
			child.outputs = append(child.outputs, child.fail.outputs...)
		}
	}
	a.built = true
}

// Scan finds every word-boundary-valid occurrence of every pattern in text
// and returns the containment-resolved match set ordered by (start, -len).
func (a *Automaton) Scan(text string) []Match {
	return ResolveOverlaps(a.ScanRaw(text))
}

// ScanRaw finds matches without overlap resolution.
func (a *Automaton) ScanRaw(text string) []Match {
	if !a.built {
		a.Build()
	}

	var matches []Match
	// starts[i] is the byte offset of the i-th rune scanned so far; a match
	// of k runes ending at rune i starts at starts[i-k+1].
	starts := make([]int, 0, len(text))
	node := a.root

	for i, r := range text {
		starts = append(starts, i)
		lr := unicode.ToLower(r)

		for node != a.root && node.next[lr] == nil {
			node = node.fail
		}
		if n, ok := node.next[lr]; ok {
			node = n
		}

		for _, pi := range node.outputs {
			p := a.patterns[pi]
			startRune := len(starts) - p.runeLen
			if startRune < 0 {
				continue
			}
			start := starts[startRune]
			end := i + utf8.RuneLen(r)
			if !a.boundaryBefore(text, start) || !a.boundaryAfter(text, end) {
				continue
			}
			matches = append(matches, Match{
				Start:   start,
				End:     end,
				Pattern: p.folded,
				Key:     p.id,
				Value:   p.value,
			})
		}
	}
	return matches
}

func (a *Automaton) boundaryBefore(text string, pos int) bool {
	if pos == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:pos])
	return !wordChar(r, a.hyphenAsWord)
}

func (a *Automaton) boundaryAfter(text string, pos int) bool {
	if pos >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[pos:])
	return !wordChar(r, a.hyphenAsWord)
}
