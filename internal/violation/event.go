// Package violation owns the durable form of violation events: the
// append-only log, the snapshot image namespace, and the read-only queries
// answered by parsing both back. The filename and log-line grammars in this
// package are the only index the system has.
package violation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ppewatch/internal/detection"
)

// timeLayout is the second-precision timestamp used in log lines and
// cross-referenced against snapshot filenames.
const timeLayout = "2006-01-02 15:04:05"

// Event is a single detector output classified as non-compliant for the
// active domain.
type Event struct {
	Domain     string         `json:"domain"`
	Class      string         `json:"class"`
	Confidence float64        `json:"confidence"`
	BBox       detection.BBox `json:"bbox"`
	DetectedAt time.Time      `json:"detected_at"`
	ImageRef   string         `json:"image_ref,omitempty"`
}

// LogLine renders the event in the append-only log format:
// [2025-07-13 21:47:03] [Manufacturing] NO-hardhat 0.99 (10, 10, 50, 50)
func (e Event) LogLine() string {
	return fmt.Sprintf("[%s] [%s] %s %.2f %s",
		e.DetectedAt.Format(timeLayout), e.Domain, e.Class, e.Confidence, e.BBox)
}

var logLinePattern = regexp.MustCompile(`^\[([^\]]+)\] \[([^\]]+)\] (.+) ([0-9.]+) \(([^)]*)\)\s*$`)

// ParseLogLine parses one log line back into an event. Blank or malformed
// lines return an error and are skipped by callers.
func ParseLogLine(line string) (Event, error) {
	m := logLinePattern.FindStringSubmatch(line)
	if m == nil {
		return Event{}, fmt.Errorf("violation: malformed log line %q", line)
	}

	ts, err := time.ParseInLocation(timeLayout, m[1], time.Local)
	if err != nil {
		return Event{}, fmt.Errorf("violation: bad timestamp in log line: %w", err)
	}
	conf, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Event{}, fmt.Errorf("violation: bad confidence in log line: %w", err)
	}

	e := Event{
		Domain:     m[2],
		Class:      m[3],
		Confidence: conf,
		DetectedAt: ts,
	}

	coords := strings.Split(m[5], ",")
	if len(coords) == 4 {
		vals := make([]int, 4)
		ok := true
		for i, c := range coords {
			v, err := strconv.Atoi(strings.TrimSpace(c))
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if ok {
			e.BBox = detection.BBox{X1: vals[0], Y1: vals[1], X2: vals[2], Y2: vals[3]}
		}
	}
	return e, nil
}
