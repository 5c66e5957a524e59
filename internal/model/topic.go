package model

type TopicCategory string

const (
	CategoryCommonProblem TopicCategory = "common_problem"
	CategoryNewFeature    TopicCategory = "new_feature"
	CategoryDocumentation TopicCategory = "documentation"
	CategoryOther         TopicCategory = "other"
)

// Topic is a canonical trending question produced by one refresh cycle.
type Topic struct {
	ID               string        `json:"id"`
	QuestionText     string        `json:"question_text"`
	Category         TopicCategory `json:"category"`
	RawScore         float64       `json:"raw_score"`
	Frequency        int           `json:"frequency"`
	Sources          []TopicSource `json:"sources"`
	Trend            float64       `json:"trend"`
	HasGoodAnswer    bool          `json:"has_good_answer"`
	AnswerConfidence float64       `json:"answer_confidence"`
	// Validated distinguishes a checked knowledge gap from a topic the
	// validation cap never reached.
	Validated bool  `json:"validated"`
	LastSeen  int64 `json:"last_seen"`
}

type TopicSource struct {
	Type   string  `json:"type"`
	Count  int     `json:"count"`
	Weight float64 `json:"weight"`
}

// TopicGeneration stamps one persisted topic cache. The current pointer only
// moves after a full generation has been written.
type TopicGeneration struct {
	ID         int64 `json:"id"`
	Scope      Scope `json:"scope"`
	TopicCount int   `json:"topic_count"`
	Ctime      int64 `json:"ctime"`
}
