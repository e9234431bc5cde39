// Package filter implements the local type and date filters and the
// newest-first ordering applied to the current drive view.
package filter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rescale/drivectl/internal/models"
)

// TypeFilter restricts the view to one family of files.
type TypeFilter string

const (
	TypeAll           TypeFilter = "all"
	TypeFolders       TypeFilter = "folders"
	TypeDocuments     TypeFilter = "documents"
	TypeImages        TypeFilter = "images"
	TypeVideos        TypeFilter = "videos"
	TypePresentations TypeFilter = "presentations"
	TypeSpreadsheets  TypeFilter = "spreadsheets"
)

// AllTypeFilters lists every type filter in display order.
var AllTypeFilters = []TypeFilter{
	TypeAll, TypeFolders, TypeDocuments, TypeImages, TypeVideos, TypePresentations, TypeSpreadsheets,
}

func extSet(exts ...string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[e] = true
	}
	return m
}

var extensions = map[TypeFilter]map[string]bool{
	TypeDocuments:     extSet("pdf", "doc", "docx", "txt", "md", "rtf", "odt"),
	TypeImages:        extSet("jpg", "jpeg", "png", "gif", "bmp", "svg", "webp", "heic"),
	TypeVideos:        extSet("mp4", "mov", "avi", "mkv", "webm", "wmv"),
	TypePresentations: extSet("ppt", "pptx", "key", "odp"),
	TypeSpreadsheets:  extSet("xls", "xlsx", "csv", "ods", "numbers"),
}

// ParseTypeFilter validates a type filter name.
func ParseTypeFilter(s string) (TypeFilter, error) {
	f := TypeFilter(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTypeFilters {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown type filter %q", s)
}

// Matches reports whether rec belongs to the filter's family.
func (f TypeFilter) Matches(rec models.FileRecord) bool {
	switch f {
	case TypeAll, "":
		return true
	case TypeFolders:
		return strings.EqualFold(strings.TrimSpace(rec.Type), "folder")
	}
	set, ok := extensions[f]
	if !ok {
		return false
	}
	return set[rec.Extension()]
}

// DateFilter restricts the view to records processed after a cutoff.
type DateFilter string

const (
	DateAll   DateFilter = "all"
	DateToday DateFilter = "today"
	DateWeek  DateFilter = "week"
	DateMonth DateFilter = "month"
	DateYear  DateFilter = "year"
)

// AllDateFilters lists every date filter, narrowest last.
var AllDateFilters = []DateFilter{DateAll, DateYear, DateMonth, DateWeek, DateToday}

// ParseDateFilter validates a date filter name.
func ParseDateFilter(s string) (DateFilter, error) {
	f := DateFilter(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllDateFilters {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown date filter %q", s)
}

// Cutoff returns the oldest instant the filter keeps, relative to local
// midnight of now. ok is false for DateAll.
func (f DateFilter) Cutoff(now time.Time) (cutoff time.Time, ok bool) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch f {
	case DateToday:
		return midnight, true
	case DateWeek:
		return midnight.AddDate(0, 0, -7), true
	case DateMonth:
		return midnight.AddDate(0, -1, 0), true
	case DateYear:
		return midnight.AddDate(-1, 0, 0), true
	}
	return time.Time{}, false
}

// Matches reports whether rec was processed at or after the cutoff.
// Unparseable timestamps count as the epoch.
func (f DateFilter) Matches(rec models.FileRecord, now time.Time) bool {
	cutoff, ok := f.Cutoff(now)
	if !ok {
		return true
	}
	return !processedAt(rec).Before(cutoff)
}

func processedAt(rec models.FileRecord) time.Time {
	if t, ok := rec.ProcessedTime(); ok {
		return t
	}
	return time.Unix(0, 0)
}

// Sort orders records newest first. The sort is stable and works on a copy.
func Sort(list []models.FileRecord) []models.FileRecord {
	out := make([]models.FileRecord, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		return processedAt(out[i]).After(processedAt(out[j]))
	})
	return out
}

// Apply filters by type and date, then sorts. The input is not modified.
func Apply(list []models.FileRecord, tf TypeFilter, df DateFilter, now time.Time) []models.FileRecord {
	kept := make([]models.FileRecord, 0, len(list))
	for _, rec := range list {
		if tf.Matches(rec) && df.Matches(rec, now) {
			kept = append(kept, rec)
		}
	}
	return Sort(kept)
}
