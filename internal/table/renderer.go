package table

import (
	"sync"

	"github.com/sortflow/backend/internal/models"
)

// Renderer holds the rows currently displayed in each region.
type Renderer struct {
	mu      sync.RWMutex
	regions map[string]models.TableData
}

// NewRenderer creates an empty renderer.
func NewRenderer() *Renderer {
	return &Renderer{regions: make(map[string]models.TableData)}
}

// Render replaces the contents of region with the non-empty rows of data.
func (r *Renderer) Render(region string, data models.TableData) {
	rows := FilterEmpty(data).Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.regions[region] = rows
}

// RenderText splits raw and renders it into region.
func (r *Renderer) RenderText(region, raw string) {
	r.Render(region, Split(raw))
}

// Rows returns a copy of the rows shown in region.
func (r *Renderer) Rows(region string) (models.TableData, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows, ok := r.regions[region]
	if !ok {
		return nil, false
	}
	return rows.Clone(), true
}

// Clear empties a region.
func (r *Renderer) Clear(region string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.regions, region)
}

// Snapshot copies every region.
func (r *Renderer) Snapshot() map[string]models.TableData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.TableData, len(r.regions))
	for name, rows := range r.regions {
		out[name] = rows.Clone()
	}
	return out
}
