package turn

// ErrorCode is the structured outcome of a turn. Stages communicate failure
// through these codes; the Guardian and renderer never parse error strings.
type ErrorCode string

const (
	// ErrCodeNone means the turn produced a grounded answer.
	ErrCodeNone ErrorCode = "NONE"

	// ErrCodeEmpty means retrieval succeeded but yielded no usable
	// evidence. Always accompanied by a recovery plan.
	ErrCodeEmpty ErrorCode = "EMPTY"

	// ErrCodeDBFailure means a whitelisted data backend failed. Document
	// sources never substitute for the missing numbers.
	ErrCodeDBFailure ErrorCode = "DB_FAILURE"

	// ErrCodeForbidden means policy denied the request. Never retried.
	ErrCodeForbidden ErrorCode = "FORBIDDEN"

	// ErrCodeTimeout means the turn deadline elapsed.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeUnsupported means plan or spec validation failed repeatedly,
	// or recovery ceilings were exhausted.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED"
)

// Explanation is the mandatory transparency record attached to every
// non-CASUAL response. The public view is PII-masked; raw evidence lives
// only in the debug view.
type Explanation struct {
	Intent          string         `json:"intent"`
	Confidence      float64        `json:"confidence"`
	Track           Track          `json:"track"`
	SourcesUsed     []Source       `json:"sources_used"`
	EvidenceCounts  map[Source]int `json:"evidence_counts"`
	RulesFired      []string       `json:"rules_fired,omitempty"`
	FreshnessSecond int64          `json:"freshness_seconds"`
}

// Response is the frozen contract returned to the caller.
// Invariant: ErrorCode != NONE implies Tips or Recovery content is present;
// "no data without next steps".
type Response struct {
	TraceID     string       `json:"trace_id"`
	Data        string       `json:"data"`
	Warnings    []string     `json:"warnings,omitempty"`
	Tips        []string     `json:"tips,omitempty"`
	ErrorCode   ErrorCode    `json:"error_code"`
	Explanation *Explanation `json:"explanation,omitempty"`
	AnswerType  AnswerType   `json:"answer_type,omitempty"`
}
