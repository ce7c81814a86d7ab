package stats

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"cameramodules/internal/resolution"
)

const DefaultHistorySize = 200

// SelectionRecord is one resolved selection.
type SelectionRecord struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	CameraID    string          `json:"camera_id"`
	UseCase     string          `json:"use_case"`
	Target      resolution.Size `json:"target"`
	Chosen      resolution.Size `json:"chosen"`
	Distance    int             `json:"distance"`
	Fallback    bool            `json:"fallback"`
	CatalogSize int             `json:"catalog_size"`
}

// SelectionLog keeps the most recent selections in a fixed-size ring.
type SelectionLog struct {
	mu        sync.RWMutex
	entries   []SelectionRecord
	pos       int
	size      int
	full      bool
	total     int
	fallbacks int
}

func NewSelectionLog(size int) *SelectionLog {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &SelectionLog{
		entries: make([]SelectionRecord, size),
		size:    size,
	}
}

// Record stores sel and returns the stored entry.
func (l *SelectionLog) Record(sel resolution.Selection) SelectionRecord {
	rec := SelectionRecord{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		CameraID:    sel.CameraID,
		UseCase:     sel.UseCase,
		Target:      sel.Target,
		Chosen:      sel.Chosen,
		Distance:    sel.Distance,
		Fallback:    sel.Fallback,
		CatalogSize: len(sel.Catalog),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.pos] = rec
	l.pos = (l.pos + 1) % l.size
	if l.pos == 0 {
		l.full = true
	}
	l.total++
	if rec.Fallback {
		l.fallbacks++
	}
	return rec
}

// GetAll returns the retained records, oldest first.
func (l *SelectionLog) GetAll() []SelectionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []SelectionRecord
	if l.full {
		result = make([]SelectionRecord, l.size)
		copy(result, l.entries[l.pos:])
		copy(result[l.size-l.pos:], l.entries[:l.pos])
	} else {
		result = make([]SelectionRecord, l.pos)
		copy(result, l.entries[:l.pos])
	}
	return result
}

// GetRecent returns at most n of the newest records, oldest first.
func (l *SelectionLog) GetRecent(n int) []SelectionRecord {
	all := l.GetAll()
	if n < 0 || len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}

// Counts returns how many selections were recorded and how many fell back.
func (l *SelectionLog) Counts() (total, fallbacks int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total, l.fallbacks
}

func (l *SelectionLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]SelectionRecord, l.size)
	l.pos = 0
	l.full = false
	l.total = 0
	l.fallbacks = 0
}
