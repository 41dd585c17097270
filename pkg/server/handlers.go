package server

import (
	"net/http"
	"sort"

	"github.com/talktothecity/pipeline/pkg/claims"
	"github.com/talktothecity/pipeline/pkg/crux"
	"github.com/talktothecity/pipeline/pkg/dedup"
	"github.com/talktothecity/pipeline/pkg/taxonomy"
)

// handleHealth reports liveness and the set of registered LLM backends;
// it performs no LLM calls itself.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, s.completers.Count())
	for name := range s.cfg.LLMs {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, map[string]any{"status": "ok", "backends": names})
}

// handleTopicTree serves POST /topic_tree (Stage 1).
func (s *Server) handleTopicTree(w http.ResponseWriter, r *http.Request) {
	var in topicTreeRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	completer, err := s.resolveCompleter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	in.LLM.ModelName = s.resolveModelName(in.LLM.ModelName)

	stage := taxonomy.New(completer, s.telemetry)
	out, err := stage.Run(r.Context(), taxonomy.Input{
		Comments: in.Comments,
		LLM:      in.LLM,
		Filter:   s.claimsFilter,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// handleClaims serves POST /claims (Stage 2).
func (s *Server) handleClaims(w http.ResponseWriter, r *http.Request) {
	var in claimsRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	completer, err := s.resolveCompleter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	in.LLM.ModelName = s.resolveModelName(in.LLM.ModelName)

	stage := claims.New(completer, s.telemetry, s.poolSize())
	out, err := stage.Run(r.Context(), claims.Input{
		Comments: in.Comments,
		LLM:      in.LLM,
		Tree:     in.Tree.Taxonomy,
		Filter:   s.claimsFilter,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// handleSortClaimsTree serves PUT /sort_claims_tree/ (Stage 3).
func (s *Server) handleSortClaimsTree(w http.ResponseWriter, r *http.Request) {
	var in sortClaimsTreeRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	completer, err := s.resolveCompleter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	in.LLM.ModelName = s.resolveModelName(in.LLM.ModelName)

	stage := dedup.New(completer, s.telemetry, s.poolSize())
	out, err := stage.Run(r.Context(), dedup.Input{
		Tree: in.Tree,
		LLM:  in.LLM,
		Sort: in.Sort,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// handleCruxes serves POST /cruxes (Stage 4).
func (s *Server) handleCruxes(w http.ResponseWriter, r *http.Request) {
	var in cruxesRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	completer, err := s.resolveCompleter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	in.LLM.ModelName = s.resolveModelName(in.LLM.ModelName)

	stage := crux.New(completer, s.telemetry, s.poolSize())
	out, err := stage.Run(r.Context(), crux.Input{
		CruxTree: in.CruxTree,
		LLM:      in.LLM,
		Topics:   in.Topics,
		TopK:     in.TopK,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}
