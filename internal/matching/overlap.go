package matching

import "sort"

// ResolveOverlaps applies the containment-aware overlap policy:
//
//   - contained spans (one fully inside another) both survive;
//   - partial overlaps keep the longer span, ties keep the earlier start;
//   - identical spans keep one match per distinct key, collapsing duplicates.
//
// The result is ordered by (start, -len, key).
func ResolveOverlaps(matches []Match) []Match {
	if len(matches) == 0 {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Start != matches[j].Start {
			return matches[i].Start < matches[j].Start
		}
		li, lj := matches[i].End-matches[i].Start, matches[j].End-matches[j].Start
		if li != lj {
			return li > lj
		}
		return matches[i].Key < matches[j].Key
	})

	var resolved []Match
	for _, m := range matches {
		dominated := false
		for i, kept := range resolved {
			if m.Start >= kept.End || m.End <= kept.Start {
				continue // no overlap
			}

			if m.Start == kept.Start && m.End == kept.End {
				if m.Key == kept.Key {
					dominated = true // duplicate
					break
				}
				continue // identical span, distinct concept: both survive
			}

			// Containment in either direction: nested spans survive.
			if (m.Start >= kept.Start && m.End <= kept.End) ||
				(kept.Start >= m.Start && kept.End <= m.End) {
				continue
			}

			// Partial overlap: the longer span wins. With the sort order
			// above, an equal-length partial overlap keeps the earlier start.
			if m.End-m.Start > kept.End-kept.Start {
				resolved[i] = m
			}
			dominated = true
			break
		}
		if !dominated {
			resolved = append(resolved, m)
		}
	}

	sort.Slice(resolved, func(i, j int) bool {
		if resolved[i].Start != resolved[j].Start {
			return resolved[i].Start < resolved[j].Start
		}
		li, lj := resolved[i].End-resolved[i].Start, resolved[j].End-resolved[j].Start
		if li != lj {
			return li > lj
		}
		return resolved[i].Key < resolved[j].Key
	})
	return resolved
}
