package violation

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

// Query answers read-only aggregate questions by scanning the snapshot
// namespace and the violation log. There is no separate index: correctness
// rests entirely on the filename and log-line grammars. Malformed entries
// are skipped individually, never aborting a scan.
type Query struct {
	baseDir string
	logPath string
}

// NewQuery creates a query layer over the given snapshot directory and log.
func NewQuery(baseDir, logPath string) *Query {
	return &Query{baseDir: baseDir, logPath: logPath}
}

// Entry is one parsed snapshot file.
type Entry struct {
	Filename  string    `json:"filename"` // <domain dir>/<file>
	Domain    string    `json:"domain"`
	Timestamp time.Time `json:"timestamp"`
}

// DomainCount is the number of violations recorded for one domain.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// DateCount is the number of violations recorded on one calendar date.
type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// TypeCount is the number of violations of one class.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// scan walks every domain directory and parses the snapshot filenames.
// A missing base directory yields an empty result, not an error.
func (q *Query) scan() ([]Entry, error) {
	dirs, err := os.ReadDir(q.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("violation: scanning %s: %w", q.baseDir, err)
	}

	var entries []Entry
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(q.baseDir, dir.Name()))
		if err != nil {
			continue
		}
		for _, file := range files {
			domain, ts, err := ParseFilename(file.Name())
			if err != nil {
				continue
			}
			entries = append(entries, Entry{
				Filename:  filepath.Join(dir.Name(), file.Name()),
				Domain:    domain,
				Timestamp: ts,
			})
		}
	}
	return entries, nil
}

// CountByDomain returns per-domain violation counts for the given calendar
// date ("2006-01-02"). An empty date counts across all dates.
func (q *Query) CountByDomain(date string) ([]DomainCount, error) {
	entries, err := q.scan()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, e := range entries {
		if date != "" && e.Timestamp.Format(dateLayout) != date {
			continue
		}
		counts[e.Domain]++
	}

	result := make([]DomainCount, 0, len(counts))
	for domain, count := range counts {
		result = append(result, DomainCount{Domain: domain, Count: count})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Domain < result[j].Domain })
	return result, nil
}

// Timeline returns per-day violation counts over the inclusive date range.
// An unparsable or reversed range returns an empty result rather than an
// error.
func (q *Query) Timeline(from, to string) ([]DateCount, error) {
	fromDay, err := time.ParseInLocation(dateLayout, from, time.Local)
	if err != nil {
		return []DateCount{}, nil
	}
	toDay, err := time.ParseInLocation(dateLayout, to, time.Local)
	if err != nil {
		return []DateCount{}, nil
	}
	if fromDay.After(toDay) {
		return []DateCount{}, nil
	}

	entries, err := q.scan()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, e := range entries {
		day := time.Date(e.Timestamp.Year(), e.Timestamp.Month(), e.Timestamp.Day(), 0, 0, 0, 0, e.Timestamp.Location())
		if day.Before(fromDay) || day.After(toDay) {
			continue
		}
		counts[e.Timestamp.Format(dateLayout)]++
	}

	result := make([]DateCount, 0, len(counts))
	for date, count := range counts {
		result = append(result, DateCount{Date: date, Count: count})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

// Recent returns the newest entries, most recent first.
func (q *Query) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	entries, err := q.scan()
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// ByType counts log entries per violation class for the given date,
// considering only events that also have a saved snapshot for their
// (domain, second-precision timestamp) pair. Log lines without a matching
// image are silently excluded: an event counts here only if it was also
// visually captured.
func (q *Query) ByType(date string) ([]TypeCount, error) {
	entries, err := q.scan()
	if err != nil {
		return nil, err
	}

	type key struct {
		domain string
		second string
	}
	saved := make(map[key]struct{})
	for _, e := range entries {
		if e.Timestamp.Format(dateLayout) != date {
			continue
		}
		saved[key{e.Domain, e.Timestamp.Format(timeLayout)}] = struct{}{}
	}

	f, err := os.Open(q.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []TypeCount{}, nil
		}
		return nil, fmt.Errorf("violation: opening log: %w", err)
	}
	defer f.Close()

	counts := make(map[string]int)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		event, err := ParseLogLine(scanner.Text())
		if err != nil {
			continue
		}
		k := key{event.Domain, event.DetectedAt.Format(timeLayout)}
		if _, ok := saved[k]; ok {
			counts[event.Class]++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("violation: reading log: %w", err)
	}

	result := make([]TypeCount, 0, len(counts))
	for class, count := range counts {
		result = append(result, TypeCount{Type: class, Count: count})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result, nil
}

// List returns entries on the given date filtered by an inclusive
// time-of-day range at minute granularity ("15:04"), most recent first.
// Empty bounds disable the time filter.
func (q *Query) List(date, timeFrom, timeTo string) ([]Entry, error) {
	entries, err := q.scan()
	if err != nil {
		return nil, err
	}

	var result []Entry
	for _, e := range entries {
		if date != "" && e.Timestamp.Format(dateLayout) != date {
			continue
		}
		if timeFrom != "" && timeTo != "" {
			minute := e.Timestamp.Format("15:04")
			if minute < timeFrom || minute > timeTo {
				continue
			}
		}
		result = append(result, e)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })
	return result, nil
}
