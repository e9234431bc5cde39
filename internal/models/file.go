// Package models holds the wire and view types shared by the API client,
// the drive store and the CLI.
package models

import (
	"errors"
	"strings"
	"time"
)

// Security verdicts returned by the processing service.
const (
	SecuritySafe   = "safe"
	SecurityUnsafe = "unsafe"
	SecurityBanned = "banned"
)

// OwnerSelf is the owner shown for every record the user lists.
const OwnerSelf = "You"

// ErrMissingID is returned by Validate when a server row has no id.
var ErrMissingID = errors.New("missing id")

// FileRecord is one entry of the current drive view.
// Records are only ever built from server responses.
type FileRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Size         int64  `json:"size"`
	ProcessedAt  string `json:"processedAt"`
	Starred      bool   `json:"starred"`
	Shared       bool   `json:"shared"`
	Owner        string `json:"owner"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	ParentID     string `json:"parentId,omitempty"`
}

// ProcessedTime parses ProcessedAt. The second result is false when the
// timestamp is empty or in an unknown format.
func (f FileRecord) ProcessedTime() (time.Time, bool) {
	return ParseTimestamp(f.ProcessedAt)
}

// Extension returns the lowercased extension of the record, taken from the
// name when it has one and from the type otherwise.
func (f FileRecord) Extension() string {
	if i := strings.LastIndexByte(f.Name, '.'); i >= 0 && i < len(f.Name)-1 {
		return strings.ToLower(f.Name[i+1:])
	}
	t := strings.ToLower(strings.TrimSpace(f.Type))
	if i := strings.LastIndexByte(t, '.'); i >= 0 {
		return t[i+1:]
	}
	if i := strings.LastIndexByte(t, '/'); i >= 0 {
		return t[i+1:]
	}
	return t
}

// FileMetadata is a list or search row from the search service.
type FileMetadata struct {
	ID           string `json:"id"`
	FileName     string `json:"fileName"`
	FileType     string `json:"fileType"`
	FileSize     int64  `json:"fileSize"`
	ProcessedAt  string `json:"processedAt"`
	IsStarred    *bool  `json:"isStarred"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// Validate checks the fields a row must carry.
func (m FileMetadata) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return ErrMissingID
	}
	return nil
}

// ToFileRecord maps the row to a record owned by the current user. A missing
// isStarred counts as false.
func (m FileMetadata) ToFileRecord() FileRecord {
	return FileRecord{
		ID:           m.ID,
		Name:         m.FileName,
		Type:         m.FileType,
		Size:         m.FileSize,
		ProcessedAt:  m.ProcessedAt,
		Starred:      m.IsStarred != nil && *m.IsStarred,
		Owner:        OwnerSelf,
		ThumbnailURL: m.ThumbnailURL,
	}
}

// ProcessedDocument is the processing service's answer to an upload.
type ProcessedDocument struct {
	ID              string  `json:"id"`
	FileName        string  `json:"fileName"`
	FileType        string  `json:"fileType"`
	FileSize        int64   `json:"fileSize"`
	S3Location      string  `json:"s3Location"`
	SecurityStatus  string  `json:"securityStatus"`
	RejectionReason *string `json:"rejectionReason"`
	UserID          string  `json:"userId"`
	ProcessedAt     string  `json:"processedAt"`
	IsStarred       bool    `json:"isStarred"`
	ThumbnailURL    string  `json:"thumbnailUrl,omitempty"`
}

// Validate checks the fields every verdict must carry.
func (d ProcessedDocument) Validate() error {
	if strings.TrimSpace(d.SecurityStatus) == "" {
		return errors.New("missing securityStatus")
	}
	if d.Safe() && strings.TrimSpace(d.ID) == "" {
		return ErrMissingID
	}
	return nil
}

// Safe reports whether the server accepted the file.
func (d ProcessedDocument) Safe() bool {
	return strings.EqualFold(d.SecurityStatus, SecuritySafe)
}

// Banned reports whether the verdict suspends the account.
func (d ProcessedDocument) Banned() bool {
	return strings.EqualFold(d.SecurityStatus, SecurityBanned)
}

// Reason returns the rejection reason, or fallback when the server sent none.
func (d ProcessedDocument) Reason(fallback string) string {
	if d.RejectionReason == nil || strings.TrimSpace(*d.RejectionReason) == "" {
		return fallback
	}
	return *d.RejectionReason
}

// ToFileRecord builds the record from server fields only.
func (d ProcessedDocument) ToFileRecord() FileRecord {
	return FileRecord{
		ID:           d.ID,
		Name:         d.FileName,
		Type:         d.FileType,
		Size:         d.FileSize,
		ProcessedAt:  d.ProcessedAt,
		Starred:      d.IsStarred,
		Owner:        OwnerSelf,
		ThumbnailURL: d.ThumbnailURL,
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the zone-less ISO forms the services
// emit. Zone-less values are read as local time.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
