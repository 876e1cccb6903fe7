package rag

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// StrategyType is the closed set of case outcomes produced by a turn.
type StrategyType string

const (
	StrategySuccessful    StrategyType = "successful"
	StrategyFailed        StrategyType = "failed"
	StrategyConversational StrategyType = "conversational"
)

// CaseID is a stable identifier derived from session id + turn id.
type CaseID string

// caseIDNamespace scopes the deterministic UUIDv5-style derivation below so
// case ids never collide with UUIDs minted elsewhere in the platform.
var caseIDNamespace = uuid.MustParse("6f6e8b2e-6e5e-4b0a-9d2e-2d6a9a7b6b10")

// NewCaseID derives a stable UUID from session id + turn id, so re-extracting
// the same turn always yields the same case id (no random generator
// involved, matching the original's "stable UUID derived from
// session_id+turn_id" requirement).
func NewCaseID(sessionID string, turnID int) CaseID {
	name := fmt.Sprintf("%s:%d", sessionID, turnID)
	return CaseID(uuid.NewSHA1(caseIDNamespace, []byte(name)).String())
}

// Phase is one planned step of a turn's execution.
type Phase struct {
	ID         string
	Required   bool
	Completed  bool
	ActionsRan int
	ToolUsed   string
}

// TraceEntry is one execution-trace event recorded during a turn.
type TraceEntry struct {
	Unrecoverable bool
	Message       string
}

// TurnSummary is the raw input a completed turn hands to case extraction.
type TurnSummary struct {
	SessionID            string
	TurnID               int
	UserQuery            string
	OriginalPlan         []Phase
	Trace                []TraceEntry
	SystemOrchestrationRan bool
	Intent               string
	Strategy             string
	Metrics              map[string]any
	OutputTokens         int
	HadPlanImprovements     bool
	HadTacticalImprovements bool
	Timestamp            int64
}

// RAGCase is one indexed record: a case id, its originating query, outcome
// classification, and the scalar metadata retrieval and champion election
// operate on.
type RAGCase struct {
	ID           CaseID
	UserQuery    string
	StrategyType StrategyType
	Payload      map[string]any

	CollectionID            string
	UserUUID                string
	IsMostEfficient         bool
	UserFeedbackScore       int
	OutputTokens            int
	HadPlanImprovements     bool
	HadTacticalImprovements bool
	HasOrchestration        bool
	Timestamp               int64
}

// tdaContextReportTool is the history-only shortcut tool name; a phase that
// used it cannot count toward a successful extraction (spec §4.8).
const tdaContextReportTool = "TDA_ContextReport"

// ExtractCase applies the strict extraction rules of spec §4.8 to a
// completed turn. It returns (nil, false) when the turn does not qualify as
// a successful case; it does not classify failed or conversational turns.
func ExtractCase(turn TurnSummary, collectionID, userUUID string) (*RAGCase, bool) {
	if strings.TrimSpace(turn.UserQuery) == "" {
		return nil, false
	}
	if len(turn.OriginalPlan) == 0 {
		return nil, false
	}
	hasValidPhase := false
	for _, p := range turn.OriginalPlan {
		if p.ID != "" {
			hasValidPhase = true
			break
		}
	}
	if !hasValidPhase {
		return nil, false
	}

	for _, t := range turn.Trace {
		if t.Unrecoverable {
			return nil, false
		}
	}

	for _, p := range turn.OriginalPlan {
		if p.ToolUsed == tdaContextReportTool {
			return nil, false
		}
	}

	requiredSatisfied := false
	anyActionSucceeded := false
	allRequiredCompleted := true
	for _, p := range turn.OriginalPlan {
		if p.ActionsRan > 0 {
			anyActionSucceeded = true
		}
		if p.Required {
			if p.Completed && p.ActionsRan > 0 {
				requiredSatisfied = true
			} else {
				allRequiredCompleted = false
			}
		}
	}
	if !allRequiredCompleted {
		// Completed phases may be a subset of required phases only when
		// system orchestration ran and at least one action succeeded.
		if !(turn.SystemOrchestrationRan && anyActionSucceeded) {
			return nil, false
		}
	} else if !requiredSatisfied && !turn.SystemOrchestrationRan {
		return nil, false
	}

	return &RAGCase{
		ID:                      NewCaseID(turn.SessionID, turn.TurnID),
		UserQuery:               turn.UserQuery,
		StrategyType:            StrategySuccessful,
		Payload: map[string]any{
			"intent":   turn.Intent,
			"strategy": turn.Strategy,
			"metrics":  turn.Metrics,
		},
		CollectionID:            collectionID,
		UserUUID:                userUUID,
		IsMostEfficient:         false,
		UserFeedbackScore:       0,
		OutputTokens:            turn.OutputTokens,
		HadPlanImprovements:     turn.HadPlanImprovements,
		HadTacticalImprovements: turn.HadTacticalImprovements,
		HasOrchestration:        turn.SystemOrchestrationRan,
		Timestamp:               turn.Timestamp,
	}, true
}
