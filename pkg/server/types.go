package server

import (
	"github.com/talktothecity/pipeline/pkg/dedup"
	"github.com/talktothecity/pipeline/pkg/domain"
)

// taxonomyWrapper is the wire shape of Stage 1's output object, used here
// as Stage 2's "tree" request field: {"taxonomy": [...]}.
type taxonomyWrapper struct {
	Taxonomy domain.Taxonomy `json:"taxonomy"`
}

// topicTreeRequest is the POST /topic_tree body.
type topicTreeRequest struct {
	Comments []domain.Comment `json:"comments"`
	LLM      domain.LLMConfig `json:"llm"`
}

// claimsRequest is the POST /claims body.
type claimsRequest struct {
	Comments []domain.Comment `json:"comments"`
	LLM      domain.LLMConfig `json:"llm"`
	Tree     taxonomyWrapper  `json:"tree"`
}

// sortClaimsTreeRequest is the PUT /sort_claims_tree/ body.
type sortClaimsTreeRequest struct {
	Tree domain.ClaimTree `json:"tree"`
	LLM  domain.LLMConfig `json:"llm"`
	Sort dedup.SortKey    `json:"sort"`
}

// cruxesRequest is the POST /cruxes body.
type cruxesRequest struct {
	CruxTree domain.ClaimTree `json:"cruxTree"`
	LLM      domain.LLMConfig `json:"llm"`
	Topics   domain.Taxonomy  `json:"topics"`
	TopK     int              `json:"topK"`
}
