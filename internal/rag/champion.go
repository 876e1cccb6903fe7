package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"weavectx/internal/shared/logging"
)

// cleanlinessPenalty is the per-flag score deduction applied to retrieved
// candidates that required plan or tactical improvements mid-turn (spec
// §4.7's "cleanliness penalty").
const cleanlinessPenalty = 0.05

// overFetchMultiplier is how many more candidates than k are requested from
// the vector store before adjusted-score ranking and truncation (spec §4.7
// step 2: "k × 10 candidates").
const overFetchMultiplier = 10

// Engine is the RAG Retriever + Feedback/Champion Maintenance subsystem
// (spec C7/C8): per-collection indexing, access-scoped retrieval, and
// transactional champion election.
type Engine struct {
	mu          sync.RWMutex
	baseDir     string
	collections map[string]*RAGCollection
	stores      map[string]*VectorStore
	// collectionLocks serializes champion updates per collection so a
	// concurrent new-turn ingestion and an explicit feedback update never
	// race on the same champion pointer (spec §5: single-writer per
	// collection).
	collectionLocks map[string]*sync.Mutex
	embedders       map[string]*Embedder
	logger          logging.Logger
}

// NewEngine constructs an Engine rooted at baseDir, one subdirectory per
// collection (baseDir/collection_<collection_id>/*.json).
func NewEngine(baseDir string, logger logging.Logger) *Engine {
	return &Engine{
		baseDir:          baseDir,
		collections:      make(map[string]*RAGCollection),
		stores:           make(map[string]*VectorStore),
		collectionLocks:  make(map[string]*sync.Mutex),
		embedders:        make(map[string]*Embedder),
		logger:           logging.OrNop(logger),
	}
}

// RegisterCollection adds a collection definition and lazily prepares its
// on-disk directory. Planner collections are expected to be registered only
// when their MCP server matches the current session (the caller's
// responsibility); knowledge collections are always registered.
func (e *Engine) RegisterCollection(c *RAGCollection, embedder *Embedder) error {
	if err := c.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.collections[c.ID] = c
	e.embedders[c.ID] = embedder
	e.collectionLocks[c.ID] = &sync.Mutex{}
	return nil
}

func (e *Engine) collectionDir(id string) string {
	return filepath.Join(e.baseDir, "collection_"+id)
}

func (e *Engine) storeFor(c *RAGCollection) (*VectorStore, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.stores[c.ID]; ok {
		return s, nil
	}
	embedder, ok := e.embedders[c.ID]
	if !ok {
		return nil, fmt.Errorf("no embedder registered for collection %q", c.ID)
	}
	store, err := NewVectorStore(StoreConfig{PersistPath: e.collectionDir(c.ID), Collection: c.ID}, embedder)
	if err != nil {
		return nil, err
	}
	e.stores[c.ID] = store
	return store, nil
}

func (e *Engine) lockFor(collectionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.collectionLocks[collectionID]
	if !ok {
		l = &sync.Mutex{}
		e.collectionLocks[collectionID] = l
	}
	return l
}

// ExampleResult is one retrieved few-shot example, enriched with its owning
// collection and server id (spec §4.7 step 5).
type ExampleResult struct {
	Case          RAGCase
	CollectionID  string
	CollectionName string
	MCPServerID   string
	Similarity    float64
	AdjustedScore float64
}

// AccessSubject identifies the caller of a retrieval or write operation.
type AccessSubject struct {
	UserUUID   string
	Subscribed map[string]bool
}

// accessibleCollections intersects allowedIDs (nil = no restriction) with
// subject's access set and repositoryType, per spec §4.7 step 1.
func (e *Engine) accessibleCollections(subject AccessSubject, allowedIDs []string, repositoryType RepositoryType) []*RAGCollection {
	var allowSet map[string]bool
	if allowedIDs != nil {
		allowSet = make(map[string]bool, len(allowedIDs))
		for _, id := range allowedIDs {
			allowSet[id] = true
		}
	}

	as := accessSubject{UserUUID: subject.UserUUID, Subscribed: subject.Subscribed}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*RAGCollection
	for _, c := range e.collections {
		if c.RepositoryType != repositoryType {
			continue
		}
		if allowSet != nil && !allowSet[c.ID] {
			continue
		}
		if !c.isAccessible(as) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RetrieveExamples implements spec §4.7's retrieve_examples: access
// scoping, per-collection over-fetch, cleanliness-penalty scoring, and
// top-k truncation.
func (e *Engine) RetrieveExamples(ctx context.Context, subject AccessSubject, query string, k int, minScore float64, allowedCollectionIDs []string, repositoryType RepositoryType) ([]ExampleResult, error) {
	if k <= 0 {
		k = 1
	}

	collections := e.accessibleCollections(subject, allowedCollectionIDs, repositoryType)
	var candidates []ExampleResult

	for _, c := range collections {
		store, err := e.storeFor(c)
		if err != nil {
			e.logger.Warn("retrieve_examples: skipping collection %q: %v", c.ID, err)
			continue
		}

		results, err := store.QueryText(ctx, query, k*overFetchMultiplier, map[string]string{
			"strategy_type": string(StrategySuccessful),
		})
		if err != nil {
			e.logger.Warn("retrieve_examples: query failed for collection %q: %v", c.ID, err)
			continue
		}

		for _, r := range results {
			rc, ok := caseFromMetadata(r.Document)
			if !ok {
				continue
			}
			if rc.UserFeedbackScore < 0 {
				continue
			}
			if !(rc.IsMostEfficient || rc.UserFeedbackScore > 0) {
				continue
			}

			similarity := float64(r.Similarity)
			if similarity < minScore {
				continue
			}

			adjusted := similarity
			if rc.HadTacticalImprovements {
				adjusted -= cleanlinessPenalty
			}
			if rc.HadPlanImprovements {
				adjusted -= cleanlinessPenalty
			}

			candidates = append(candidates, ExampleResult{
				Case:           rc,
				CollectionID:   c.ID,
				CollectionName: c.DisplayName,
				MCPServerID:    c.MCPServerID,
				Similarity:     similarity,
				AdjustedScore:  adjusted,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].AdjustedScore > candidates[j].AdjustedScore })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// findChampionOnDisk returns the current champion case for (collectionID,
// userQuery, userUUID), if one exists. Champion lookup is an exact
// metadata match rather than a similarity search, so this scans the
// collection's case files directly instead of querying the vector index.
func (e *Engine) findChampionOnDisk(collectionID, userQuery, userUUID string) (*RAGCase, error) {
	dir := e.collectionDir(collectionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rc, err := loadCaseFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if rc.UserQuery == userQuery && rc.UserUUID == userUUID && rc.IsMostEfficient {
			return rc, nil
		}
	}
	return nil, nil
}

// outranks implements spec §4.8 step 4's lexicographic champion priority:
// downvoted candidates never win; a downvoted incumbent always loses;
// higher feedback score wins; ties broken by fewer output tokens.
func outranks(candidate, incumbent *RAGCase) bool {
	if candidate.UserFeedbackScore < 0 {
		return false
	}
	if incumbent == nil {
		return true
	}
	if incumbent.UserFeedbackScore < 0 {
		return true
	}
	if candidate.UserFeedbackScore != incumbent.UserFeedbackScore {
		return candidate.UserFeedbackScore > incumbent.UserFeedbackScore
	}
	return candidate.OutputTokens < incumbent.OutputTokens
}

// ProcessTurnForRAG implements spec §4.8's process_turn_for_rag: determines
// the target collection, validates write access, extracts a case, runs
// champion election against the existing champion for the same
// (user_query, user), and persists transactionally.
func (e *Engine) ProcessTurnForRAG(ctx context.Context, subject AccessSubject, turn TurnSummary, collectionID, defaultCollectionID string) (*RAGCase, error) {
	target := collectionID
	if target == "" {
		target = defaultCollectionID
	}
	if target == "" {
		return nil, fmt.Errorf("process_turn_for_rag: no target collection (no explicit or default collection)")
	}

	e.mu.RLock()
	c, ok := e.collections[target]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("process_turn_for_rag: collection %q not registered", target)
	}
	if !c.isWritable(accessSubject{UserUUID: subject.UserUUID, Subscribed: subject.Subscribed}) {
		return nil, fmt.Errorf("process_turn_for_rag: user %q has no write access to collection %q", subject.UserUUID, target)
	}

	newCase, ok := ExtractCase(turn, target, subject.UserUUID)
	if !ok {
		return nil, fmt.Errorf("process_turn_for_rag: turn did not qualify as a successful case")
	}

	lock := e.lockFor(target)
	lock.Lock()
	defer lock.Unlock()

	incumbent, err := e.findChampionOnDisk(target, newCase.UserQuery, newCase.UserUUID)
	if err != nil {
		return nil, fmt.Errorf("process_turn_for_rag: read champion: %w", err)
	}

	if outranks(newCase, incumbent) {
		newCase.IsMostEfficient = true
		if incumbent != nil {
			incumbent.IsMostEfficient = false
			if err := e.persistCase(ctx, target, incumbent); err != nil {
				return nil, fmt.Errorf("process_turn_for_rag: demote incumbent: %w", err)
			}
		}
	}

	if err := e.persistCase(ctx, target, newCase); err != nil {
		return nil, fmt.Errorf("process_turn_for_rag: persist new case: %w", err)
	}
	return newCase, nil
}

// UpdateCaseFeedback implements spec §4.8's update_case_feedback: locates
// the case across all registered collections, updates its score, the vector
// index metadata, and — on a negative score — demotes it and re-elects a
// champion for the affected (user_query, user) cohort.
func (e *Engine) UpdateCaseFeedback(ctx context.Context, caseID CaseID, score int) error {
	normalized := strings.TrimPrefix(string(caseID), "case_")

	e.mu.RLock()
	ids := make([]string, 0, len(e.collections))
	for id := range e.collections {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	sort.Strings(ids)

	for _, collectionID := range ids {
		path, rc, err := e.findCaseFile(collectionID, CaseID(normalized))
		if err != nil || rc == nil {
			continue
		}

		lock := e.lockFor(collectionID)
		lock.Lock()

		rc.UserFeedbackScore = score
		if err := writeCaseFile(path, rc); err != nil {
			lock.Unlock()
			return fmt.Errorf("update_case_feedback: persist score: %w", err)
		}

		store, serr := e.storeFor(e.collections[collectionID])
		if serr == nil {
			_ = store.Update(ctx, string(rc.ID), map[string]string{"user_feedback_score": strconv.Itoa(score)})
		}

		if score < 0 {
			if rc.IsMostEfficient {
				rc.IsMostEfficient = false
				if err := writeCaseFile(path, rc); err != nil {
					lock.Unlock()
					return fmt.Errorf("update_case_feedback: demote: %w", err)
				}
			}
			if err := e.reelectChampion(ctx, collectionID, rc.UserQuery, rc.UserUUID); err != nil {
				lock.Unlock()
				return fmt.Errorf("update_case_feedback: re-election: %w", err)
			}
		}

		lock.Unlock()
		return nil
	}
	return fmt.Errorf("update_case_feedback: case %q not found in any collection", caseID)
}

// reelectChampion scans the cohort {strategy_type=successful,
// user_query=userQuery, user_feedback_score>=0} scoped to the same user as
// the downvoted case (spec §4.8/S6 — not collection-wide), and promotes the
// best remaining case under the same ordering as ProcessTurnForRAG.
func (e *Engine) reelectChampion(_ context.Context, collectionID, userQuery, userUUID string) error {
	dir := e.collectionDir(collectionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var best *RAGCase
	var bestPath string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		rc, err := loadCaseFile(path)
		if err != nil {
			continue
		}
		if rc.StrategyType != StrategySuccessful || rc.UserQuery != userQuery || rc.UserUUID != userUUID {
			continue
		}
		if rc.UserFeedbackScore < 0 {
			continue
		}
		if outranks(rc, best) {
			best = rc
			bestPath = path
		}
	}

	if best == nil {
		return nil
	}
	best.IsMostEfficient = true
	return writeCaseFile(bestPath, best)
}

func (e *Engine) findCaseFile(collectionID string, id CaseID) (string, *RAGCase, error) {
	dir := e.collectionDir(collectionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, nil
		}
		return "", nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		rc, err := loadCaseFile(path)
		if err != nil {
			continue
		}
		if rc.ID == id {
			return path, rc, nil
		}
	}
	return "", nil, nil
}

// persistCase writes a case's JSON file and upserts it into the vector
// index, keyed on its user_query embedding.
func (e *Engine) persistCase(ctx context.Context, collectionID string, rc *RAGCase) error {
	dir := e.collectionDir(collectionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, string(rc.ID)+".json")
	if err := writeCaseFile(path, rc); err != nil {
		return err
	}

	store, err := e.storeFor(e.collections[collectionID])
	if err != nil {
		return err
	}
	// Re-persisting an existing case (e.g. demoting the prior champion)
	// reuses the same document id; chromem-go has no upsert primitive, so
	// clear any prior entry before adding rather than relying on
	// AddDocuments to overwrite it.
	_ = store.Delete(ctx, []string{string(rc.ID)})
	return store.Add(ctx, []Document{caseToDocument(rc)})
}
