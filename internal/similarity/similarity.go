// Package similarity implements Ratcliff/Obershelp string similarity for
// fuzzy identity matching. The ratio is 2*M/T where M is the total length
// of recursively matched common substrings and T the combined input length.
package similarity

import "strings"

// Ratio returns the Ratcliff/Obershelp similarity of a and b in [0, 1].
// Inputs are compared case-insensitively after trimming surrounding
// whitespace. Either input empty after trimming yields 0.0.
func Ratio(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0.0
	}
	matched := matchedLen(a, b)
	return 2.0 * float64(matched) / float64(len(a)+len(b))
}

// matchedLen sums the lengths of the longest common substring and,
// recursively, of the common substrings in the unmatched remainders on
// each side of it.
func matchedLen(a, b string) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchedLen(a[:ai], b[:bi])
	total += matchedLen(a[ai+size:], b[bi+size:])
	return total
}

// longestCommonSubstring finds the leftmost longest common substring,
// returning its start offsets in a and b and its length. Ties break toward
// the lowest offset in a, then in b.
func longestCommonSubstring(a, b string) (int, int, int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	// lengths[j] holds the run length ending at a[i-1], b[j-1] for the
	// previous row of the DP table.
	lengths := make([]int, len(b)+1)
	bestA, bestB, bestSize := 0, 0, 0

	for i := 1; i <= len(a); i++ {
		prevDiag := 0
		for j := 1; j <= len(b); j++ {
			cur := lengths[j]
			if a[i-1] == b[j-1] {
				run := prevDiag + 1
				lengths[j] = run
				if run > bestSize {
					bestSize = run
					bestA = i - run
					bestB = j - run
				}
			} else {
				lengths[j] = 0
			}
			prevDiag = cur
		}
	}
	return bestA, bestB, bestSize
}
