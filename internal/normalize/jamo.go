// Package normalize implements the three-layer Korean query normalizer:
// L1 jamo decomposition with fuzzy keyword matching, L2 exact typo
// dictionary replacement, and L3 LLM rewrite for queries that remain
// unrecognized. Normalization is idempotent: a normalized query passes
// through every layer unchanged.
package normalize

// Hangul syllable composition constants (Unicode chapter 3.12).
const (
	syllableBase = rune(0xAC00)
	syllableEnd  = rune(0xD7A3)
	jungCount    = 21
	jongCount    = 28
)

var choseong = []rune{
	'ㄱ', 'ㄲ', 'ㄴ', 'ㄷ', 'ㄸ', 'ㄹ', 'ㅁ', 'ㅂ', 'ㅃ', 'ㅅ',
	'ㅆ', 'ㅇ', 'ㅈ', 'ㅉ', 'ㅊ', 'ㅋ', 'ㅌ', 'ㅍ', 'ㅎ',
}

var jungseong = []rune{
	'ㅏ', 'ㅐ', 'ㅑ', 'ㅒ', 'ㅓ', 'ㅔ', 'ㅕ', 'ㅖ', 'ㅗ', 'ㅘ',
	'ㅙ', 'ㅚ', 'ㅛ', 'ㅜ', 'ㅝ', 'ㅞ', 'ㅟ', 'ㅠ', 'ㅡ', 'ㅢ', 'ㅣ',
}

var jongseong = []rune{
	0, 'ㄱ', 'ㄲ', 'ㄳ', 'ㄴ', 'ㄵ', 'ㄶ', 'ㄷ', 'ㄹ', 'ㄺ',
	'ㄻ', 'ㄼ', 'ㄽ', 'ㄾ', 'ㄿ', 'ㅀ', 'ㅁ', 'ㅂ', 'ㅄ', 'ㅅ',
	'ㅆ', 'ㅇ', 'ㅈ', 'ㅊ', 'ㅋ', 'ㅌ', 'ㅍ', 'ㅎ',
}

// DecomposeJamo expands precomposed Hangul syllables into their jamo
// sequence. Compatibility jamo and non-Hangul runes pass through unchanged,
// so "ㅅㅋ럼" and "스크럼" decompose into comparable sequences.
func DecomposeJamo(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r < syllableBase || r > syllableEnd {
			out = append(out, r)
			continue
		}
		idx := r - syllableBase
		cho := idx / (jungCount * jongCount)
		jung := (idx % (jungCount * jongCount)) / jongCount
		jong := idx % jongCount

		out = append(out, choseong[cho], jungseong[jung])
		if jong != 0 {
			out = append(out, jongseong[jong])
		}
	}
	return out
}

// JamoSimilarity returns the normalized Levenshtein similarity of the jamo
// decompositions of a and b, in [0,1]. Identical strings score 1.
func JamoSimilarity(a, b string) float64 {
	ja := DecomposeJamo(a)
	jb := DecomposeJamo(b)

	if len(ja) == 0 && len(jb) == 0 {
		return 1
	}

	dist := levenshtein(ja, jb)
	longest := len(ja)
	if len(jb) > longest {
		longest = len(jb)
	}
	return 1 - float64(dist)/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
