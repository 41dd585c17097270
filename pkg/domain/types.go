// Package domain holds the data model shared by every pipeline stage:
// comments in, a taxonomy, a claim tree, a sorted tree, and crux analysis
// results. Nothing in this package talks to an LLM, the network, or disk.
package domain

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Comment is an immutable participant input.
type Comment struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
}

// Subtopic is a leaf of the taxonomy.
type Subtopic struct {
	Name        string `json:"subtopicName"`
	Description string `json:"subtopicShortDescription"`
}

// Topic groups subtopics under a title. Created in Stage 1, referenced by
// name thereafter.
type Topic struct {
	Name        string     `json:"topicName"`
	Description string     `json:"topicShortDescription"`
	Subtopics   []Subtopic `json:"subtopics"`
}

// Taxonomy is the ordered topic/subtopic structure produced by Stage 1.
type Taxonomy []Topic

// GeneralSubtopic is the fallback subtopic name when a placed claim carries
// no subtopic name (including a claim defaulted onto a first topic that has
// no subtopics). A claim naming a subtopic absent from the taxonomy keeps
// that name.
const GeneralSubtopic = "General"

// NoneSubtopic is the placeholder subtopic key used when a topic from the
// taxonomy receives zero claims. Ambiguous with a legitimate subtopic
// literally named "None" — kept for compatibility with the source pipeline.
const NoneSubtopic = "None"

// UnknownSpeaker is substituted for claims that arrive without a speaker.
const UnknownSpeaker = "unknown"

// Claim is an atomic assertion extracted from one comment and placed under
// one (topic, subtopic) pair. Duplicates and Duplicated are populated by
// Stage 3; a claim with Duplicated true never itself carries duplicates.
type Claim struct {
	Text         string  `json:"claim"`
	Quote        string  `json:"quote"`
	TopicName    string  `json:"topicName"`
	SubtopicName string  `json:"subtopicName"`
	CommentID    string  `json:"commentId"`
	Speaker      string  `json:"speaker"`
	Duplicates   []Claim `json:"duplicates,omitempty"`
	Duplicated   bool    `json:"duplicated"`
}

// SubtopicBucket aggregates the claims placed under one subtopic.
type SubtopicBucket struct {
	Claims   []Claim         `json:"claims"`
	Total    int             `json:"total"`
	Speakers map[string]bool `json:"-"`
}

// SpeakerList returns the bucket's speakers, sorted.
func (b *SubtopicBucket) SpeakerList() []string {
	return sortedKeys(b.Speakers)
}

// MarshalJSON renders Speakers as a sorted array, since the set itself
// (map[string]bool) carries no meaningful JSON shape of its own.
func (b SubtopicBucket) MarshalJSON() ([]byte, error) {
	type wire struct {
		Claims   []Claim  `json:"claims"`
		Total    int      `json:"total"`
		Speakers []string `json:"speakers"`
	}
	return json.Marshal(wire{Claims: b.Claims, Total: b.Total, Speakers: b.SpeakerList()})
}

// UnmarshalJSON reconstructs Speakers from the wire array, the inverse of
// MarshalJSON. Callers that decode a SubtopicBucket from a request body
// (Stage 3's input tree) depend on this to get a non-nil speaker set.
func (b *SubtopicBucket) UnmarshalJSON(data []byte) error {
	var wire struct {
		Claims   []Claim  `json:"claims"`
		Total    int      `json:"total"`
		Speakers []string `json:"speakers"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	b.Claims = wire.Claims
	b.Total = wire.Total
	b.Speakers = make(map[string]bool, len(wire.Speakers))
	for _, s := range wire.Speakers {
		b.Speakers[s] = true
	}
	return nil
}

// TopicBucket aggregates subtopic buckets under one topic.
type TopicBucket struct {
	Subtopics map[string]*SubtopicBucket `json:"subtopics"`
	Total     int                        `json:"total"`
	Speakers  map[string]bool            `json:"-"`
}

// SpeakerList returns the bucket's speakers, sorted.
func (b *TopicBucket) SpeakerList() []string {
	return sortedKeys(b.Speakers)
}

// MarshalJSON renders Speakers as a sorted array, mirroring SubtopicBucket.
func (b TopicBucket) MarshalJSON() ([]byte, error) {
	type wire struct {
		Subtopics map[string]*SubtopicBucket `json:"subtopics"`
		Total     int                        `json:"total"`
		Speakers  []string                   `json:"speakers"`
	}
	return json.Marshal(wire{Subtopics: b.Subtopics, Total: b.Total, Speakers: b.SpeakerList()})
}

// UnmarshalJSON reconstructs Speakers from the wire array, the inverse of
// MarshalJSON.
func (b *TopicBucket) UnmarshalJSON(data []byte) error {
	var wire struct {
		Subtopics map[string]*SubtopicBucket `json:"subtopics"`
		Total     int                        `json:"total"`
		Speakers  []string                   `json:"speakers"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	b.Subtopics = wire.Subtopics
	b.Total = wire.Total
	b.Speakers = make(map[string]bool, len(wire.Speakers))
	for _, s := range wire.Speakers {
		b.Speakers[s] = true
	}
	return nil
}

// ClaimTree maps topic name to its aggregated bucket. Produced by Stage 2,
// consumed and reshaped by Stage 3, and reused (in its un-deduped shape) as
// the input to Stage 4.
type ClaimTree map[string]*TopicBucket

// NewTopicBucket returns an empty, initialized bucket.
func NewTopicBucket() *TopicBucket {
	return &TopicBucket{
		Subtopics: make(map[string]*SubtopicBucket),
		Speakers:  make(map[string]bool),
	}
}

// NewSubtopicBucket returns an empty, initialized bucket.
func NewSubtopicBucket() *SubtopicBucket {
	return &SubtopicBucket{
		Claims:   []Claim{},
		Speakers: make(map[string]bool),
	}
}

// Counts is the pair reported alongside every sorted tree node.
type Counts struct {
	Claims   int `json:"claims"`
	Speakers int `json:"speakers"`
}

// SortedSubtopic is one (subtopicName, bucket) entry inside a sorted topic.
type SortedSubtopic struct {
	Name    string   `json:"subtopicName"`
	Claims  []Claim  `json:"claims"`
	Speaker []string `json:"speakers"`
	Counts  Counts   `json:"counts"`
}

// SortedTopic is one (topicName, record) entry of the sorted tree.
type SortedTopic struct {
	Name      string           `json:"topicName"`
	Subtopics []SortedSubtopic `json:"topics"`
	Speakers  []string         `json:"speakers"`
	Counts    Counts           `json:"counts"`
}

// SortedTree is the Stage 3 output: topics ordered by popularity, each with
// its subtopics ordered the same way.
type SortedTree []SortedTopic

// SpeakerMap is a deterministic bijection between speaker names and
// stringified numeric ids, derived by sorting the distinct speakers found
// in a ClaimTree and enumerating from 0.
type SpeakerMap map[string]string

// NewSpeakerMap builds the deterministic speaker map for a claim tree.
func NewSpeakerMap(tree ClaimTree) SpeakerMap {
	seen := make(map[string]bool)
	for _, topic := range tree {
		for _, sub := range topic.Subtopics {
			for _, c := range sub.Claims {
				speaker := c.Speaker
				if speaker == "" {
					speaker = UnknownSpeaker
				}
				seen[speaker] = true
			}
		}
	}
	names := sortedKeys(seen)
	m := make(SpeakerMap, len(names))
	for i, name := range names {
		m[name] = strconv.Itoa(i)
	}
	return m
}

// CruxRow is one synthesized crux claim with its per-speaker stances.
type CruxRow struct {
	CruxClaim   string   `json:"cruxClaim"`
	Agree       []string `json:"agree"`
	Disagree    []string `json:"disagree"`
	Explanation string   `json:"explanation"`
}

// ControversyMatrix is a square, symmetric, zero-diagonal matrix of
// pairwise crux disagreement scores.
type ControversyMatrix [][]float64

// NewControversyMatrix allocates an n*n zeroed matrix.
func NewControversyMatrix(n int) ControversyMatrix {
	m := make(ControversyMatrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}

// TopCruxPair is one ranked entry of the top-K divisive crux pairs.
type TopCruxPair struct {
	Score  float64 `json:"score"`
	CruxA  CruxRow `json:"cruxA"`
	CruxB  CruxRow `json:"cruxB"`
	IndexA int     `json:"-"`
	IndexB int     `json:"-"`
}

// TokenUsage is the accounting summary returned by every stage.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates u2 into u in place and returns u for chaining.
func (u *TokenUsage) Add(u2 TokenUsage) *TokenUsage {
	u.PromptTokens += u2.PromptTokens
	u.CompletionTokens += u2.CompletionTokens
	u.TotalTokens += u2.TotalTokens
	return u
}

// LLMConfig names the model and prompts a stage should use for its calls.
type LLMConfig struct {
	ModelName    string `json:"modelName"`
	SystemPrompt string `json:"systemPrompt"`
	UserPrompt   string `json:"userPrompt"`
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
