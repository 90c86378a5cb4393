package server

import (
	"errors"
	"net/http"
	"strings"

	"mercator-hq/covenant/pkg/artifact"
	"mercator-hq/covenant/pkg/policy/engine"
	"mercator-hq/covenant/pkg/rules"
)

// EnforcementFailure is the 500 body for a request that produced no
// decision. Approved is always false.
type EnforcementFailure struct {
	ErrorBody
	DecisionID string `json:"decision_id"`
	Approved   bool   `json:"approved"`
	State      string `json:"state"`
}

func (s *Server) handleEnforce(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	decision, err := s.deps.Engine.Enforce(r.Context(), req)
	if err != nil {
		var enfErr *engine.EnforcementError
		if errors.As(err, &enfErr) {
			writeJSON(w, http.StatusInternalServerError, EnforcementFailure{
				ErrorBody: ErrorBody{Error: ErrorDetail{
					Code:      codeEnforcement,
					Message:   enfErr.Cause.Error(),
					RequestID: w.Header().Get(RequestIDHeader),
				}},
				DecisionID: enfErr.RequestID,
				State:      enfErr.State.String(),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// PolicyUpload is the body of POST /v1/policies.
type PolicyUpload struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// PolicyList is the body of GET /v1/policies.
type PolicyList struct {
	Sources []string      `json:"sources"`
	Version string        `json:"version"`
	Summary rules.Summary `json:"summary"`
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	set := s.deps.Engine.RuleSet()
	sources := set.Sources()
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, PolicyList{
		Sources: sources,
		Version: s.deps.Engine.Version(),
		Summary: set.Summary(),
	})
}

func (s *Server) handleUploadPolicy(w http.ResponseWriter, r *http.Request) {
	var up PolicyUpload
	if !decodeJSON(w, r, &up) {
		return
	}
	up.Source = strings.TrimSpace(up.Source)
	if up.Source == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "source is required")
		return
	}

	result, err := s.deps.Engine.LoadPolicy(r.Context(), up.Source, up.Text)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeInvalidPolicy, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	removed, err := s.deps.Engine.RemovePolicy(source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, codeNotFound, "no rules loaded from "+source)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RuleList is the body of GET /v1/rules.
type RuleList struct {
	Rules   []rules.PolicyRule `json:"rules"`
	Total   int                `json:"total"`
	Version string             `json:"version"`
}

// handleListRules supports filtering by category, compliance_level and source.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := q.Get("category")
	level := q.Get("compliance_level")
	source := q.Get("source")

	all := s.deps.Engine.Rules()
	out := make([]rules.PolicyRule, 0, len(all))
	for _, rule := range all {
		if category != "" && !strings.EqualFold(string(rule.Category), category) {
			continue
		}
		if level != "" && !strings.EqualFold(string(rule.Level), level) {
			continue
		}
		if source != "" && rule.SourceDocument != source {
			continue
		}
		out = append(out, rule)
	}
	writeJSON(w, http.StatusOK, RuleList{
		Rules:   out,
		Total:   len(out),
		Version: s.deps.Engine.Version(),
	})
}

func (s *Server) handleExportRules(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Engine.ExportStructured(s.deps.Artifact)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}

	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		_ = doc.WriteJSON(w)
	case "yaml", "yml":
		w.Header().Set("Content-Type", "application/yaml")
		_ = doc.WriteYAML(w)
	default:
		writeError(w, http.StatusBadRequest, codeBadRequest, "unsupported format "+format)
	}
}

func (s *Server) handleExportArtifact(w http.ResponseWriter, r *http.Request) {
	src, err := s.deps.Engine.ExportArtifact(s.deps.Artifact)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/x-go; charset=utf-8")
	_, _ = w.Write(src)
}

// ImportResult is the body of POST /v1/rules/import.
type ImportResult struct {
	Imported int    `json:"imported"`
	Version  string `json:"version"`
}

// handleImportRules replaces the complete rule set with an interchange
// document.
func (s *Server) handleImportRules(w http.ResponseWriter, r *http.Request) {
	_, set, err := artifact.LoadDocument(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeBodyError(w, err)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, codeInvalidDocument, err.Error())
		return
	}

	version, err := s.deps.Engine.ReplaceRules(set.Rules())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeInvalidDocument, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ImportResult{Imported: set.Len(), Version: version})
}
