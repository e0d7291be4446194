package violation

import (
	"fmt"
	"regexp"
	"time"
	"unicode"
)

// Snapshot filenames encode (domain, detected_at) to microsecond precision:
// violation_<domain>_<YYYYMMDD>_<HHMMSS>_<microseconds>.jpg. The domain is
// the literal label used at save time and may itself contain underscores,
// which is why parsing is pattern-based rather than split-based.
var filenamePattern = regexp.MustCompile(`^violation_(.+?)_(\d{8})_(\d{6})_(\d+)\.jpg$`)

// Filename encodes a snapshot filename for a violation.
func Filename(domain string, t time.Time) string {
	return fmt.Sprintf("violation_%s_%s_%06d.jpg",
		domain, t.Format("20060102_150405"), t.Nanosecond()/1000)
}

// ParseFilename recovers the domain and timestamp from a snapshot filename.
func ParseFilename(name string) (domain string, t time.Time, err error) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, fmt.Errorf("violation: malformed filename %q", name)
	}

	t, err = time.ParseInLocation("20060102_150405", m[2]+"_"+m[3], time.Local)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("violation: bad timestamp in filename %q: %w", name, err)
	}

	var micros int
	fmt.Sscanf(m[4], "%d", &micros)
	t = t.Add(time.Duration(micros) * time.Microsecond)

	return m[1], t, nil
}

// DomainCode derives the per-domain snapshot directory name: non-alphanumeric
// characters stripped, truncated to four characters ("Oil & Gas" -> "OilG").
func DomainCode(domain string) string {
	code := make([]rune, 0, 4)
	for _, r := range domain {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			code = append(code, r)
			if len(code) == 4 {
				break
			}
		}
	}
	return string(code)
}
