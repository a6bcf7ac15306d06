package backer

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ExifTag names an EXIF ASCII datetime field.
type ExifTag string

const (
	ExifDateTime         ExifTag = "DateTime"
	ExifDateTimeOriginal ExifTag = "DateTimeOriginal"
)

// exifDateTags is the order in which EXIF fields are consulted.
var exifDateTags = []ExifTag{ExifDateTime, ExifDateTimeOriginal}

const (
	exifDateLayout = "2006:01:02 15:04:05"
	DateTimeLayout = "2006-01-02 15:04:05"
	DateLayout     = "2006-01-02"
)

// ExifView exposes the EXIF fields the scanner cares about.
type ExifView interface {
	// DateTime returns the raw ASCII value of tag. Empty values report false.
	DateTime(tag ExifTag) (string, bool)
	// Orientation returns the EXIF orientation, if present.
	Orientation() (uint16, bool)
}

// DatePathRule derives a date from a relative path. Template is expanded with
// the pattern's capture groups ($1, ${name}) and must yield either
// "YYYY-MM-DD HH:MM:SS" or "YYYY-MM-DD".
type DatePathRule struct {
	Pattern  *regexp.Regexp
	Template string
}

// NewDatePathRule compiles pattern into a rule.
func NewDatePathRule(pattern, template string) (DatePathRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return DatePathRule{}, fmt.Errorf("compiling date path pattern %q: %w", pattern, err)
	}
	return DatePathRule{Pattern: re, Template: template}, nil
}

// Apply returns the date the rule derives from relativePath, if the pattern
// matches and the expanded template parses.
func (r DatePathRule) Apply(relativePath string) (time.Time, bool) {
	match := r.Pattern.FindStringSubmatchIndex(relativePath)
	if match == nil {
		return time.Time{}, false
	}
	expanded := string(r.Pattern.ExpandString(nil, r.Template, relativePath, match))
	if t, err := time.Parse(DateTimeLayout, expanded); err == nil {
		return t, true
	}
	if t, err := time.Parse(DateLayout, expanded); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// ResolveDate picks a capture date for a file. EXIF datetime fields are tried
// first, then rules in order; the first that yields a valid date wins.
// exif may be nil.
func ResolveDate(exif ExifView, relativePath string, rules []DatePathRule) sql.NullTime {
	if exif != nil {
		for _, tag := range exifDateTags {
			raw, ok := exif.DateTime(tag)
			if !ok {
				continue
			}
			if t, ok := parseExifDateTime(raw); ok {
				return sql.NullTime{Time: t, Valid: true}
			}
		}
	}

	for _, rule := range rules {
		if t, ok := rule.Apply(relativePath); ok {
			return sql.NullTime{Time: t, Valid: true}
		}
	}

	return sql.NullTime{}
}

func parseExifDateTime(raw string) (time.Time, bool) {
	raw = strings.TrimRight(raw, "\x00 ")
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(exifDateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
