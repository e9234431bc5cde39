package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rescale/drivectl/internal/models"
)

// ErrUnknownView is returned for a view name with no fetch behind it.
var ErrUnknownView = errors.New("unknown view")

// View is one of the sidebar lists.
type View string

const (
	ViewMyDrive View = "my-drive"
	ViewShared  View = "shared-with-me"
	ViewRecent  View = "recent"
	ViewStarred View = "starred"
	ViewTrash   View = "trash"
)

// AllViews lists every view in sidebar order.
var AllViews = []View{ViewMyDrive, ViewShared, ViewRecent, ViewStarred, ViewTrash}

// ParseView validates a view name.
func ParseView(s string) (View, error) {
	v := View(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := fetchTable[v]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownView, s)
	}
	return v, nil
}

// ViewMode is how the shell renders the list.
type ViewMode string

const (
	ModeGrid ViewMode = "grid"
	ModeList ViewMode = "list"
)

// ParseViewMode validates a view mode name.
func ParseViewMode(s string) (ViewMode, error) {
	switch m := ViewMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeGrid, ModeList:
		return m, nil
	}
	return "", fmt.Errorf("unknown view mode %q (grid or list)", s)
}

// starMode overrides the starred flag of rows loaded for a view.
type starMode int

const (
	starFromRow starMode = iota
	starForceOn
	starForceOff
)

type viewFetch struct {
	acceptsQuery bool
	star         starMode
	fetch        func(ctx context.Context, b Backend, query string) ([]models.FileMetadata, error)
}

// fetchTable maps every view to the one call that loads it.
var fetchTable = map[View]viewFetch{
	ViewMyDrive: {
		acceptsQuery: true,
		fetch: func(ctx context.Context, b Backend, q string) ([]models.FileMetadata, error) {
			return b.ListFiles(ctx, q)
		},
	},
	// sharing is not modelled by the backend yet; the drive list stands in
	ViewShared: {
		fetch: func(ctx context.Context, b Backend, _ string) ([]models.FileMetadata, error) {
			return b.ListFiles(ctx, "")
		},
	},
	ViewRecent: {
		fetch: func(ctx context.Context, b Backend, _ string) ([]models.FileMetadata, error) {
			return b.ListRecent(ctx)
		},
	},
	ViewStarred: {
		star: starForceOn,
		fetch: func(ctx context.Context, b Backend, _ string) ([]models.FileMetadata, error) {
			return b.ListStarred(ctx)
		},
	},
	ViewTrash: {
		acceptsQuery: true,
		star:         starForceOff,
		fetch: func(ctx context.Context, b Backend, q string) ([]models.FileMetadata, error) {
			return b.ListTrash(ctx, q)
		},
	},
}

// toRecord maps a row loaded for the view.
func (vf viewFetch) toRecord(row models.FileMetadata) models.FileRecord {
	rec := row.ToFileRecord()
	switch vf.star {
	case starForceOn:
		rec.Starred = true
	case starForceOff:
		rec.Starred = false
	}
	return rec
}
