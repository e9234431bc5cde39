package state

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rescale/drivectl/internal/events"
	"github.com/rescale/drivectl/internal/filter"
	"github.com/rescale/drivectl/internal/logging"
	"github.com/rescale/drivectl/internal/models"
)

// ErrFileNotFound is returned by per-record actions for an id that is not in
// the current list.
var ErrFileNotFound = errors.New("file not in current view")

// Backend is what the store needs from the services. api.Client implements it.
type Backend interface {
	ListFiles(ctx context.Context, query string) ([]models.FileMetadata, error)
	ListTrash(ctx context.Context, query string) ([]models.FileMetadata, error)
	ListStarred(ctx context.Context) ([]models.FileMetadata, error)
	ListRecent(ctx context.Context) ([]models.FileMetadata, error)

	SetStar(ctx context.Context, id string, starred bool) error
	MoveToRecycleBin(ctx context.Context, ids []string) error
	RestoreFiles(ctx context.Context, ids []string) error
	PermanentlyDeleteFiles(ctx context.Context, ids []string) error
	DownloadFiles(ctx context.Context, ids []string, w io.Writer, sizeHint func(int64)) (int64, error)

	GetStoragePlan(ctx context.Context) (*models.StoragePlan, error)
	GetTagsAndCategories(ctx context.Context) (*models.TagsAndCategories, error)
	Checkout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutResponse, error)
}

// Notifier receives every caught error and success message. *notify.Notifier
// implements it.
type Notifier interface {
	Success(title, message string)
	Error(title string, err error)
}

type nopNotifier struct{}

func (nopNotifier) Success(string, string) {}
func (nopNotifier) Error(string, error)    {}

// Snapshot is a copy of the store's state at one instant.
type Snapshot struct {
	View          View
	Files         []models.FileRecord
	Selected      []string
	SearchQuery   string
	TypeFilter    filter.TypeFilter
	DateFilter    filter.DateFilter
	Mode          ViewMode
	CurrentFolder string
	Loading       bool
	FileLoading   []string

	StoragePlan  string
	StorageUsed  int64
	StorageTotal int64

	Tags       []string
	Categories []string
}

// Store is the drive view state. All fields change only through its
// methods; events are published after the lock is released.
type Store struct {
	backend  Backend
	eventBus *events.EventBus
	notifier Notifier
	logger   *logging.Logger
	records  *recordLocks

	mu            sync.RWMutex
	files         []models.FileRecord
	activeView    View
	selected      map[string]bool
	searchQuery   string
	typeFilter    filter.TypeFilter
	dateFilter    filter.DateFilter
	mode          ViewMode
	currentFolder string
	loading       int // fetches and batches in flight
	fileLoading   map[string]bool
	fetchSeq      uint64

	storagePlan  string
	storageUsed  int64
	storageTotal int64
	tags         []string
	categories   []string
}

// NewStore creates an empty store on the my-drive view.
func NewStore(backend Backend, eventBus *events.EventBus, notifier Notifier, logger *logging.Logger) *Store {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Store{
		backend:     backend,
		eventBus:    eventBus,
		notifier:    notifier,
		logger:      logger.Component("state"),
		records:     newRecordLocks(),
		files:       make([]models.FileRecord, 0),
		activeView:  ViewMyDrive,
		selected:    make(map[string]bool),
		typeFilter:  filter.TypeAll,
		dateFilter:  filter.DateAll,
		mode:        ModeGrid,
		fileLoading: make(map[string]bool),
	}
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		View:          s.activeView,
		Files:         s.filesLocked(),
		Selected:      s.selectedLocked(),
		SearchQuery:   s.searchQuery,
		TypeFilter:    s.typeFilter,
		DateFilter:    s.dateFilter,
		Mode:          s.mode,
		CurrentFolder: s.currentFolder,
		Loading:       s.loading > 0,
		FileLoading:   sortedKeys(s.fileLoading),
		StoragePlan:   s.storagePlan,
		StorageUsed:   s.storageUsed,
		StorageTotal:  s.storageTotal,
		Tags:          append([]string(nil), s.tags...),
		Categories:    append([]string(nil), s.categories...),
	}
}

// Files returns a copy of the current list.
func (s *Store) Files() []models.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filesLocked()
}

func (s *Store) filesLocked() []models.FileRecord {
	out := make([]models.FileRecord, len(s.files))
	copy(out, s.files)
	return out
}

// File returns the record with id from the current list.
func (s *Store) File(id string) (models.FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.FileRecord{}, false
	}
	return s.files[i], true
}

func (s *Store) indexLocked(id string) int {
	for i := range s.files {
		if s.files[i].ID == id {
			return i
		}
	}
	return -1
}

// ActiveView returns the current view.
func (s *Store) ActiveView() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeView
}

// IsLoading returns the global loading flag.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// IsFileLoading reports whether an action on id is in flight.
func (s *Store) IsFileLoading(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fileLoading[id]
}

// Visible returns the current list with the local type and date filters
// applied, newest first.
func (s *Store) Visible(now time.Time) []models.FileRecord {
	s.mu.RLock()
	files := s.filesLocked()
	tf, df := s.typeFilter, s.dateFilter
	s.mu.RUnlock()
	return filter.Apply(files, tf, df, now)
}

// StorageRemaining returns the free bytes of the plan, -1 when the plan or
// usage has not been fetched.
func (s *Store) StorageRemaining() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.storageTotal <= 0 {
		return -1
	}
	if s.storageUsed >= s.storageTotal {
		return 0
	}
	return s.storageTotal - s.storageUsed
}

// --- fetches ---

// FetchFiles loads my drive, or the search hits for query when it is not blank.
func (s *Store) FetchFiles(ctx context.Context, query string) error {
	return s.fetchView(ctx, ViewMyDrive, query)
}

// FetchRecycledFiles loads the recycle bin, or the search hits inside it.
func (s *Store) FetchRecycledFiles(ctx context.Context, query string) error {
	return s.fetchView(ctx, ViewTrash, query)
}

// FetchStarredFiles loads the starred files.
func (s *Store) FetchStarredFiles(ctx context.Context) error {
	return s.fetchView(ctx, ViewStarred, "")
}

// FetchRecentFiles loads the recently processed files.
func (s *Store) FetchRecentFiles(ctx context.Context) error {
	return s.fetchView(ctx, ViewRecent, "")
}

// SetActiveView switches the view, clears the selection and loads the new
// list. The old list is never merged into the new one.
func (s *Store) SetActiveView(ctx context.Context, view View) error {
	vf, ok := fetchTable[view]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownView, view)
	}

	s.mu.Lock()
	s.activeView = view
	clear(s.selected)
	query := ""
	if vf.acceptsQuery {
		query = s.searchQuery
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.eventBus.Publish(NewViewChangedEvent(snap))
	s.eventBus.Publish(NewSelectionChangedEvent(nil))

	return s.fetchView(ctx, view, query)
}

// Refresh reloads the active view with the current search query.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.RLock()
	view, query := s.activeView, s.searchQuery
	s.mu.RUnlock()
	if !fetchTable[view].acceptsQuery {
		query = ""
	}
	return s.fetchView(ctx, view, query)
}

func (s *Store) fetchView(ctx context.Context, view View, query string) error {
	s.setLoading(true)
	defer s.setLoading(false)
	return s.load(ctx, view, strings.TrimSpace(query))
}

// load runs the view's fetch and replaces the list. It leaves the loading
// flag alone so batch actions can refresh inside their own loading scope.
func (s *Store) load(ctx context.Context, view View, query string) error {
	vf, ok := fetchTable[view]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownView, view)
	}

	s.mu.Lock()
	s.fetchSeq++
	seq := s.fetchSeq
	s.mu.Unlock()

	rows, err := vf.fetch(ctx, s.backend, query)
	if err != nil {
		s.logger.Error().Err(err).Str("view", string(view)).Str("query", query).Msg("fetch failed")
		s.replaceFiles(seq, view, nil)
		s.notifier.Error("Failed to load files", err)
		return fmt.Errorf("load %s: %w", view, err)
	}

	files := make([]models.FileRecord, 0, len(rows))
	for _, row := range rows {
		files = append(files, vf.toRecord(row))
	}
	s.replaceFiles(seq, view, files)
	s.logger.Debug().Str("view", string(view)).Int("count", len(files)).Msg("list loaded")
	return nil
}

// replaceFiles installs a fetched list unless a newer fetch has started.
func (s *Store) replaceFiles(seq uint64, view View, files []models.FileRecord) {
	if files == nil {
		files = make([]models.FileRecord, 0)
	}

	s.mu.Lock()
	if seq != s.fetchSeq {
		s.mu.Unlock()
		s.logger.Debug().Str("view", string(view)).Msg("discarding superseded fetch")
		return
	}
	s.files = files
	clear(s.selected)
	filesCopy := s.filesLocked()
	s.mu.Unlock()

	s.eventBus.Publish(NewFileListChangedEvent(view, filesCopy))
	s.eventBus.Publish(NewSelectionChangedEvent(nil))
}

// setLoading counts overlapping fetches and batches; the flag drops only
// when the last one ends.
func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	was := s.loading > 0
	if loading {
		s.loading++
	} else if s.loading > 0 {
		s.loading--
	}
	now := s.loading > 0
	view := s.activeView
	s.mu.Unlock()

	if was != now {
		s.eventBus.Publish(NewFileListLoadingEvent(view, now))
	}
}

func (s *Store) setFileLoading(id string, loading bool) {
	s.mu.Lock()
	if loading {
		s.fileLoading[id] = true
	} else {
		delete(s.fileLoading, id)
	}
	s.mu.Unlock()

	s.eventBus.Publish(NewFileLoadingEvent(id, loading))
}

// --- local setters ---

// SetSearchQuery stores the query used by views that accept one. It does not
// fetch; call Refresh or SetActiveView.
func (s *Store) SetSearchQuery(q string) {
	s.updateView(func() { s.searchQuery = strings.TrimSpace(q) })
}

// SetFileTypeFilter sets the local type filter.
func (s *Store) SetFileTypeFilter(f filter.TypeFilter) {
	s.updateView(func() { s.typeFilter = f })
}

// SetDateFilter sets the local date filter.
func (s *Store) SetDateFilter(f filter.DateFilter) {
	s.updateView(func() { s.dateFilter = f })
}

// SetViewMode switches between grid and list rendering.
func (s *Store) SetViewMode(m ViewMode) {
	s.updateView(func() { s.mode = m })
}

// SetCurrentFolder records the folder being browsed.
func (s *Store) SetCurrentFolder(id string) {
	s.updateView(func() { s.currentFolder = id })
}

func (s *Store) updateView(apply func()) {
	s.mu.Lock()
	apply()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.eventBus.Publish(NewViewChangedEvent(snap))
}

// AddFile appends rec to the current list, replacing a record with the
// same id.
func (s *Store) AddFile(rec models.FileRecord) {
	s.addFile(rec, nil)
}

// AddUploaded adds a freshly uploaded record when the active view lists
// the user's own uploads (my-drive or recent). It reports whether the
// record was added.
func (s *Store) AddUploaded(rec models.FileRecord) bool {
	return s.addFile(rec, func(v View) bool { return v == ViewMyDrive || v == ViewRecent })
}

func (s *Store) addFile(rec models.FileRecord, accept func(View) bool) bool {
	s.mu.Lock()
	if accept != nil && !accept(s.activeView) {
		s.mu.Unlock()
		return false
	}
	if i := s.indexLocked(rec.ID); i >= 0 {
		s.files[i] = rec
	} else {
		s.files = append(s.files, rec)
	}
	view := s.activeView
	filesCopy := s.filesLocked()
	s.mu.Unlock()

	s.eventBus.Publish(NewFileListChangedEvent(view, filesCopy))
	return true
}

// RemoveFile drops id from the list and the selection.
func (s *Store) RemoveFile(id string) bool {
	return s.removeFiles([]string{id}) > 0
}

// UpdateFile replaces the record with rec.ID.
func (s *Store) UpdateFile(rec models.FileRecord) error {
	s.mu.Lock()
	i := s.indexLocked(rec.ID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFileNotFound, rec.ID)
	}
	s.files[i] = rec
	view := s.activeView
	filesCopy := s.filesLocked()
	s.mu.Unlock()

	s.eventBus.Publish(NewFileListChangedEvent(view, filesCopy))
	return nil
}

func (s *Store) removeFiles(ids []string) int {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	kept := s.files[:0:0]
	for _, f := range s.files {
		if !drop[f.ID] {
			kept = append(kept, f)
		}
	}
	removed := len(s.files) - len(kept)
	s.files = kept
	selChanged := false
	for id := range drop {
		if s.selected[id] {
			delete(s.selected, id)
			selChanged = true
		}
	}
	view := s.activeView
	filesCopy := s.filesLocked()
	sel := s.selectedLocked()
	s.mu.Unlock()

	if removed > 0 {
		s.eventBus.Publish(NewFileListChangedEvent(view, filesCopy))
	}
	if selChanged {
		s.eventBus.Publish(NewSelectionChangedEvent(sel))
	}
	return removed
}

// --- selection ---

// Selected returns the selected ids, sorted.
func (s *Store) Selected() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedLocked()
}

// SelectedFiles returns the selected records in list order.
func (s *Store) SelectedFiles() []models.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FileRecord, 0, len(s.selected))
	for _, f := range s.files {
		if s.selected[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

// IsSelected reports whether id is selected.
func (s *Store) IsSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected[id]
}

func (s *Store) selectedLocked() []string {
	return sortedKeys(s.selected)
}

// ToggleSelection flips id in the selection. Ids not in the list are ignored.
func (s *Store) ToggleSelection(id string) bool {
	return s.changeSelection(func() bool {
		if s.indexLocked(id) < 0 {
			return false
		}
		if s.selected[id] {
			delete(s.selected, id)
		} else {
			s.selected[id] = true
		}
		return true
	})
}

// Select adds ids to the selection. Ids not in the list are ignored.
func (s *Store) Select(ids ...string) bool {
	return s.changeSelection(func() bool {
		changed := false
		for _, id := range ids {
			if !s.selected[id] && s.indexLocked(id) >= 0 {
				s.selected[id] = true
				changed = true
			}
		}
		return changed
	})
}

// SetSelection replaces the selection. Ids not in the list are dropped.
func (s *Store) SetSelection(ids []string) {
	s.changeSelection(func() bool {
		clear(s.selected)
		for _, id := range ids {
			if s.indexLocked(id) >= 0 {
				s.selected[id] = true
			}
		}
		return true
	})
}

// ClearSelection empties the selection.
func (s *Store) ClearSelection() {
	s.changeSelection(func() bool {
		changed := len(s.selected) > 0
		clear(s.selected)
		return changed
	})
}

func (s *Store) changeSelection(apply func() bool) bool {
	s.mu.Lock()
	changed := apply()
	sel := s.selectedLocked()
	s.mu.Unlock()

	if changed {
		s.eventBus.Publish(NewSelectionChangedEvent(sel))
	}
	return changed
}

// --- account ---

// FetchUserStoragePlanAndConsumption loads the plan and usage.
func (s *Store) FetchUserStoragePlanAndConsumption(ctx context.Context) error {
	plan, err := s.backend.GetStoragePlan(ctx)
	if err != nil {
		s.notifier.Error("Failed to load storage plan", err)
		return fmt.Errorf("storage plan: %w", err)
	}

	s.mu.Lock()
	s.storagePlan = plan.Plan
	s.storageUsed = plan.StorageConsumed
	s.storageTotal = plan.TotalBytes()
	name, used, total := s.storagePlan, s.storageUsed, s.storageTotal
	s.mu.Unlock()

	s.eventBus.Publish(NewStorageChangedEvent(name, used, total))
	return nil
}

// FetchTagsAndCategories loads the tags and categories.
func (s *Store) FetchTagsAndCategories(ctx context.Context) error {
	tc, err := s.backend.GetTagsAndCategories(ctx)
	if err != nil {
		s.notifier.Error("Failed to load tags", err)
		return fmt.Errorf("tags and categories: %w", err)
	}

	s.mu.Lock()
	s.tags = append([]string(nil), tc.Tags...)
	s.categories = append([]string(nil), tc.Categories...)
	s.mu.Unlock()
	return nil
}

// Checkout starts a payment session for planName and returns the hosted
// checkout URL to open.
func (s *Store) Checkout(ctx context.Context, planName string) (string, error) {
	plan, err := models.LookupPlan(planName)
	if err != nil {
		return "", err
	}

	resp, err := s.backend.Checkout(ctx, models.CheckoutRequest{Plan: plan.Name, Amount: plan.PriceUSD})
	if err != nil {
		s.notifier.Error("Checkout failed", err)
		return "", fmt.Errorf("checkout %s: %w", plan.Name, err)
	}
	s.logger.Info().Str("plan", plan.Name).Msg("checkout session created")
	return resp.SessionURL, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
