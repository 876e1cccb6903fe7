package logging

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	logDirEnvVar      = "WEAVECTX_LOG_DIR"
	requestLogEnvVar  = "WEAVECTX_REQUEST_LOG_DIR"
	serviceLogFileName = "service.log"
	llmLogFileName     = "llm.log"
	latencyLogFileName = "latency.log"
	requestLogFileName = "requests.jsonl"
)

// LogIndexOptions controls pagination of FetchRecentLogIndex.
type LogIndexOptions struct {
	Limit  int
	Offset int
}

// LogIndexEntry is one aggregated per-log_id summary across all log sources.
type LogIndexEntry struct {
	LogID        string
	ServiceCount int
	LLMCount     int
	LatencyCount int
	RequestCount int
	TotalCount   int
	Sources      []string
	latest       time.Time
}

type logAggregate struct {
	entry   LogIndexEntry
	sources map[string]bool
}

// FetchRecentLogIndex scans the configured log directories and returns a
// paginated, most-recent-first index of activity grouped by log id. Entries
// with no LLM or request activity and at most two total lines are treated
// as noise and omitted.
func FetchRecentLogIndex(opts LogIndexOptions) []LogIndexEntry {
	logDir := os.Getenv(logDirEnvVar)
	requestDir := os.Getenv(requestLogEnvVar)

	aggregates := map[string]*logAggregate{}

	scanTextFile(filepath.Join(logDir, serviceLogFileName), aggregates, func(a *logAggregate) { a.entry.ServiceCount++ }, "service")
	scanTextFile(filepath.Join(logDir, llmLogFileName), aggregates, func(a *logAggregate) { a.entry.LLMCount++ }, "llm")
	scanTextFile(filepath.Join(logDir, latencyLogFileName), aggregates, func(a *logAggregate) { a.entry.LatencyCount++ }, "latency")
	scanRequestFile(filepath.Join(requestDir, requestLogFileName), aggregates)

	entries := make([]LogIndexEntry, 0, len(aggregates))
	for _, agg := range aggregates {
		agg.entry.TotalCount = agg.entry.ServiceCount + agg.entry.LLMCount + agg.entry.LatencyCount + agg.entry.RequestCount
		if agg.entry.TotalCount <= 2 && agg.entry.LLMCount == 0 && agg.entry.RequestCount == 0 {
			continue // noise: a couple of stray service lines with no other activity
		}
		sources := make([]string, 0, len(agg.sources))
		for s := range agg.sources {
			sources = append(sources, s)
		}
		sort.Strings(sources)
		agg.entry.Sources = sources
		entries = append(entries, agg.entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].latest.Equal(entries[j].latest) {
			return entries[i].LogID > entries[j].LogID
		}
		return entries[i].latest.After(entries[j].latest)
	})

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(entries) {
		return nil
	}
	entries = entries[offset:]

	limit := opts.Limit
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}

func aggregateFor(aggregates map[string]*logAggregate, logID, source string, ts time.Time) *logAggregate {
	agg, ok := aggregates[logID]
	if !ok {
		agg = &logAggregate{entry: LogIndexEntry{LogID: logID}, sources: map[string]bool{}}
		aggregates[logID] = agg
	}
	agg.sources[source] = true
	if ts.After(agg.entry.latest) {
		agg.entry.latest = ts
	}
	return agg
}

func scanTextFile(path string, aggregates map[string]*logAggregate, bump func(*logAggregate), source string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parsed := parseTextLogLine(line)
		if parsed.LogID == "" {
			continue
		}
		ts, _ := time.ParseInLocation("2006-01-02 15:04:05", parsed.Timestamp, time.Local)
		agg := aggregateFor(aggregates, parsed.LogID, source, ts)
		bump(agg)
	}
}

func scanRequestFile(path string, aggregates map[string]*logAggregate) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parsed, ok := parseRequestLogJSON(line)
		if !ok || parsed.LogID == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, parsed.Timestamp)
		if err != nil {
			ts, _ = time.Parse(time.RFC3339, parsed.Timestamp)
		}
		agg := aggregateFor(aggregates, parsed.LogID, "requests", ts)
		agg.entry.RequestCount++
	}
}
