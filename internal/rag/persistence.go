package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// caseFile is the on-disk JSON shape for a RAGCase. Kept distinct from
// RAGCase itself so field renames on the in-memory type don't silently
// change the persisted format.
type caseFile struct {
	ID                      string         `json:"id"`
	UserQuery               string         `json:"user_query"`
	StrategyType            string         `json:"strategy_type"`
	Payload                 map[string]any `json:"payload"`
	CollectionID            string         `json:"collection_id"`
	UserUUID                string         `json:"user_uuid"`
	IsMostEfficient         bool           `json:"is_most_efficient"`
	UserFeedbackScore       int            `json:"user_feedback_score"`
	OutputTokens            int            `json:"output_tokens"`
	HadPlanImprovements     bool           `json:"had_plan_improvements"`
	HadTacticalImprovements bool           `json:"had_tactical_improvements"`
	HasOrchestration        bool           `json:"has_orchestration"`
	Timestamp               int64          `json:"timestamp"`
}

func toCaseFile(rc *RAGCase) caseFile {
	return caseFile{
		ID:                      string(rc.ID),
		UserQuery:               rc.UserQuery,
		StrategyType:            string(rc.StrategyType),
		Payload:                 rc.Payload,
		CollectionID:            rc.CollectionID,
		UserUUID:                rc.UserUUID,
		IsMostEfficient:         rc.IsMostEfficient,
		UserFeedbackScore:       rc.UserFeedbackScore,
		OutputTokens:            rc.OutputTokens,
		HadPlanImprovements:     rc.HadPlanImprovements,
		HadTacticalImprovements: rc.HadTacticalImprovements,
		HasOrchestration:        rc.HasOrchestration,
		Timestamp:               rc.Timestamp,
	}
}

func (cf caseFile) toCase() *RAGCase {
	return &RAGCase{
		ID:                      CaseID(cf.ID),
		UserQuery:               cf.UserQuery,
		StrategyType:            StrategyType(cf.StrategyType),
		Payload:                 cf.Payload,
		CollectionID:            cf.CollectionID,
		UserUUID:                cf.UserUUID,
		IsMostEfficient:         cf.IsMostEfficient,
		UserFeedbackScore:       cf.UserFeedbackScore,
		OutputTokens:            cf.OutputTokens,
		HadPlanImprovements:     cf.HadPlanImprovements,
		HadTacticalImprovements: cf.HadTacticalImprovements,
		HasOrchestration:        cf.HasOrchestration,
		Timestamp:               cf.Timestamp,
	}
}

// loadCaseFile reads and decodes a single case JSON file.
func loadCaseFile(path string) (*RAGCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cf caseFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("decode case file %q: %w", path, err)
	}
	return cf.toCase(), nil
}

// writeCaseFile persists a case atomically: write to a temp file in the
// same directory, then rename over the target, so a crash mid-write never
// leaves a truncated case file behind.
func writeCaseFile(path string, rc *RAGCase) error {
	data, err := json.MarshalIndent(toCaseFile(rc), "", "  ")
	if err != nil {
		return fmt.Errorf("encode case %q: %w", rc.ID, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".case-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp case file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp case file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp case file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp case file into place: %w", err)
	}
	return nil
}

// caseToDocument embeds a case's user_query as the retrievable text and
// carries the scalar fields retrieval and champion election need as
// metadata, since chromem-go's where-filter only matches string metadata.
func caseToDocument(rc *RAGCase) Document {
	return Document{
		ID:      string(rc.ID),
		Content: rc.UserQuery,
		Metadata: map[string]string{
			"strategy_type":            string(rc.StrategyType),
			"collection_id":            rc.CollectionID,
			"user_uuid":                rc.UserUUID,
			"is_most_efficient":        strconv.FormatBool(rc.IsMostEfficient),
			"user_feedback_score":      strconv.Itoa(rc.UserFeedbackScore),
			"output_tokens":            strconv.Itoa(rc.OutputTokens),
			"had_plan_improvements":    strconv.FormatBool(rc.HadPlanImprovements),
			"had_tactical_improvements": strconv.FormatBool(rc.HadTacticalImprovements),
		},
	}
}

// caseFromMetadata reconstructs the scalar fields retrieval scoring needs
// from a query result's document, without a second disk read. The full
// Payload is not carried in vector-store metadata, so callers needing it
// should re-load the case file by ID.
func caseFromMetadata(doc Document) (RAGCase, bool) {
	m := doc.Metadata
	if m == nil {
		return RAGCase{}, false
	}
	score, err := strconv.Atoi(m["user_feedback_score"])
	if err != nil {
		return RAGCase{}, false
	}
	tokens, _ := strconv.Atoi(m["output_tokens"])
	return RAGCase{
		ID:                      CaseID(doc.ID),
		UserQuery:               doc.Content,
		StrategyType:            StrategyType(m["strategy_type"]),
		CollectionID:            m["collection_id"],
		UserUUID:                m["user_uuid"],
		IsMostEfficient:         m["is_most_efficient"] == "true",
		UserFeedbackScore:       score,
		OutputTokens:            tokens,
		HadPlanImprovements:     m["had_plan_improvements"] == "true",
		HadTacticalImprovements: m["had_tactical_improvements"] == "true",
	}, true
}

// legacyCaseFile is the flat-layout shape (all collections' cases in one
// directory, collection id carried only inside metadata) that predates
// per-collection subdirectories.
type legacyCaseFile struct {
	caseFile
	Metadata struct {
		CollectionID string `json:"collection_id"`
	} `json:"metadata"`
}

// migrateLegacyLayout moves case files found directly under baseDir (the
// pre-subdirectory flat layout) into their collection's subdirectory,
// reading the owning collection id from each file's metadata.collection_id.
// Supplements the per-collection directory layout the rest of this package
// assumes; see SPEC_FULL.md's legacy-migration note.
func migrateLegacyLayout(baseDir string) error {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(baseDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var legacy legacyCaseFile
		if err := json.Unmarshal(data, &legacy); err != nil {
			continue
		}
		collectionID := legacy.Metadata.CollectionID
		if collectionID == "" {
			collectionID = legacy.CollectionID
		}
		if collectionID == "" {
			continue
		}

		rc := legacy.caseFile.toCase()
		rc.CollectionID = collectionID
		destDir := filepath.Join(baseDir, "collection_"+collectionID)
		destPath := filepath.Join(destDir, entry.Name())

		if err := writeCaseFile(destPath, rc); err != nil {
			return fmt.Errorf("migrate legacy case file %q: %w", entry.Name(), err)
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove migrated legacy case file %q: %w", entry.Name(), err)
		}
	}
	return nil
}

// rebuildIfEmpty re-indexes a collection's on-disk case files into its
// vector store when the store reports zero documents but the directory is
// non-empty — the state left behind by a crash between file-write and
// index-add, or a process restart against a fresh in-memory store backed
// by a persistent on-disk case directory.
func (e *Engine) rebuildIfEmpty(collectionID string) error {
	c, ok := e.collections[collectionID]
	if !ok {
		return fmt.Errorf("rebuild_if_empty: collection %q not registered", collectionID)
	}
	store, err := e.storeFor(c)
	if err != nil {
		return err
	}
	if store.Count() > 0 {
		return nil
	}

	dir := e.collectionDir(collectionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var docs []Document
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rc, err := loadCaseFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		docs = append(docs, caseToDocument(rc))
	}
	if len(docs) == 0 {
		return nil
	}
	return store.Add(context.Background(), docs)
}
