package types

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"time"
)

// HourKey identifies one hourly archive slice (one source file's worth of
// data). It is the partition key for Bronze and Silver output files.
type HourKey struct {
	Year  int
	Month int
	Day   int
	Hour  int
}

// archiveNameRe matches gharchive file stems like "2024-01-01-10".
// The hour component is not zero-padded in archive filenames.
var archiveNameRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})-(\d{1,2})$`)

// ParseHourKey parses an HourKey from an archive or partition file path.
// Accepted stems: "YYYY-MM-DD-H" and "YYYY-MM-DD-HH", with any number of
// trailing extensions (".json.gz", ".bronze.sqlite", ".events.csv", ...).
func ParseHourKey(filePath string) (HourKey, error) {
	stem := path.Base(filePath)
	for {
		ext := path.Ext(stem)
		if ext == "" {
			break
		}
		stem = stem[:len(stem)-len(ext)]
	}

	m := archiveNameRe.FindStringSubmatch(stem)
	if m == nil {
		return HourKey{}, fmt.Errorf("types: %q is not a YYYY-MM-DD-H archive name", filePath)
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 {
		return HourKey{}, fmt.Errorf("types: %q has out-of-range date components", filePath)
	}

	return HourKey{Year: year, Month: month, Day: day, Hour: hour}, nil
}

// HourKeyFromTime builds an HourKey from a timestamp, truncated to the hour.
func HourKeyFromTime(t time.Time) HourKey {
	t = t.UTC()
	return HourKey{Year: t.Year(), Month: int(t.Month()), Day: t.Day(), Hour: t.Hour()}
}

// Date returns the "YYYY-MM-DD" date component.
func (k HourKey) Date() string {
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, k.Month, k.Day)
}

// String returns the zero-padded "YYYY-MM-DD-HH" form used for partition
// filenames. Note this differs from the archive filename form, which does
// not pad the hour.
func (k HourKey) String() string {
	return fmt.Sprintf("%04d-%02d-%02d-%02d", k.Year, k.Month, k.Day, k.Hour)
}

// ArchiveName returns the upstream archive filename for this hour
// ("YYYY-MM-DD-H.json.gz", hour unpadded as served by gharchive.org).
func (k HourKey) ArchiveName() string {
	return fmt.Sprintf("%04d-%02d-%02d-%d.json.gz", k.Year, k.Month, k.Day, k.Hour)
}

// DateDir returns the "YYYY/MM/DD" directory fragment used to organize raw
// and Bronze files.
func (k HourKey) DateDir() string {
	return fmt.Sprintf("%04d/%02d/%02d", k.Year, k.Month, k.Day)
}

// Time returns the start of the hour as a UTC timestamp.
func (k HourKey) Time() time.Time {
	return time.Date(k.Year, time.Month(k.Month), k.Day, k.Hour, 0, 0, 0, time.UTC)
}

// Before reports whether k is chronologically before other.
func (k HourKey) Before(other HourKey) bool {
	return k.Time().Before(other.Time())
}

// DateRange is an inclusive range of dates used to scope a Gold run.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the given date (time component ignored) falls
// within the range. A zero-valued range contains every date.
func (r DateRange) Contains(t time.Time) bool {
	if r.Start.IsZero() && r.End.IsZero() {
		return true
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if !r.Start.IsZero() && d.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && d.After(r.End) {
		return false
	}
	return true
}
