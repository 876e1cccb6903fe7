package logging

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// structuredLogEntry is a parsed line from one of the plain-text log files
// (service/llm/latency).
type structuredLogEntry struct {
	Raw        string
	Timestamp  string
	Level      string
	Category   string
	Component  string
	LogID      string
	SourceFile string
	SourceLine int
	Message    string
}

// textLogPattern matches lines of the shape:
//
//	2026-02-08 01:11:57 [INFO] [SERVICE] [Main] [log_id=log-abc123] lark.go:196 - message
//
// the log_id bracket and the "file:line - " source prefix are optional.
var textLogPattern = regexp.MustCompile(
	`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) \[(\w+)\] \[(\w+)\] \[([^\]]+)\] (?:\[log_id=([^\]]+)\] )?(?:(\S+):(\d+) - )?(.*)$`,
)

// parseTextLogLine parses one line of a plain-text log file. Unparseable
// lines are returned with only Raw and Message populated.
func parseTextLogLine(line string) structuredLogEntry {
	m := textLogPattern.FindStringSubmatch(line)
	if m == nil {
		return structuredLogEntry{Raw: line, Message: line}
	}
	lineNo, _ := strconv.Atoi(m[7])
	return structuredLogEntry{
		Raw:        line,
		Timestamp:  m[1],
		Level:      m[2],
		Category:   m[3],
		Component:  m[4],
		LogID:      m[5],
		SourceFile: m[6],
		SourceLine: lineNo,
		Message:    m[8],
	}
}

// requestLogEntry is a parsed line from the JSONL request/response log.
type requestLogEntry struct {
	Raw       string
	Timestamp string
	RequestID string
	LogID     string
	EntryType string
	BodyBytes int
	Payload   json.RawMessage
}

// parseRequestLogJSON parses one JSONL line from the request log. The
// log_id is derived from the request_id prefix (before the first colon)
// when not present explicitly.
func parseRequestLogJSON(raw string) (requestLogEntry, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return requestLogEntry{}, false
	}

	var doc struct {
		Timestamp string          `json:"timestamp"`
		RequestID string          `json:"request_id"`
		LogID     string          `json:"log_id"`
		EntryType string          `json:"entry_type"`
		BodyBytes int             `json:"body_bytes"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return requestLogEntry{}, false
	}

	logID := doc.LogID
	if logID == "" && doc.RequestID != "" {
		if idx := strings.IndexByte(doc.RequestID, ':'); idx >= 0 {
			logID = doc.RequestID[:idx]
		} else {
			logID = doc.RequestID
		}
	}

	payload := doc.Payload
	if string(payload) == "null" {
		payload = nil
	}

	return requestLogEntry{
		Raw:       raw,
		Timestamp: doc.Timestamp,
		RequestID: doc.RequestID,
		LogID:     logID,
		EntryType: doc.EntryType,
		BodyBytes: doc.BodyBytes,
		Payload:   payload,
	}, true
}
