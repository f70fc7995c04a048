package normalize

// KeywordGroup is a family of PM-domain keywords sharing a fuzzy-match
// threshold. Thresholds are tunable per group via the threshold provider.
type KeywordGroup struct {
	Name     string
	Keywords []string
}

// DefaultKeywordGroups is the PM-domain keyword set the L1 matcher corrects
// toward. Group names are the keys the threshold tuner manages.
func DefaultKeywordGroups() []KeywordGroup {
	return []KeywordGroup{
		{Name: "progress", Keywords: []string{"진행률", "진척도", "달성률", "완료율"}},
		{Name: "sprint", Keywords: []string{"스프린트", "이터레이션"}},
		{Name: "methodology", Keywords: []string{"스크럼", "칸반", "애자일", "워터폴"}},
		{Name: "work_item", Keywords: []string{"이슈", "태스크", "작업", "티켓", "백로그"}},
		{Name: "schedule", Keywords: []string{"마일스톤", "마감", "일정", "데드라인"}},
		{Name: "risk", Keywords: []string{"블로커", "리스크", "지연"}},
		{Name: "people", Keywords: []string{"담당자", "팀원", "리뷰어"}},
	}
}

// TypoDictionary is the L2 exact-replacement dictionary. Entries come from
// human-promoted shadow candidates; the normalizer never grows it on its own.
type TypoDictionary map[string]string

// DefaultTypoDictionary returns the shipped production dictionary.
func DefaultTypoDictionary() TypoDictionary {
	return TypoDictionary{
		"스프린드": "스프린트",
		"진행율":  "진행률",
		"마일스돈": "마일스톤",
		"블록커":  "블로커",
	}
}
