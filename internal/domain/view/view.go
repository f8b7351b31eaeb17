// Package view defines saved presentations over a collection's records:
// the seven view kinds with their configuration shapes, and the shared
// filter, sort, and group primitives the query engine reuses.
package view

import (
	"github.com/google/uuid"

	"github.com/gridbase/gridbase/internal/domain"
	"github.com/gridbase/gridbase/internal/domain/field"
)

// Type is a view's kind.
type Type string

// View kinds.
const (
	TypeTable    Type = "table"
	TypeKanban   Type = "kanban"
	TypeCalendar Type = "calendar"
	TypeGallery  Type = "gallery"
	TypeList     Type = "list"
	TypeTimeline Type = "timeline"
	TypeChart    Type = "chart"
)

// IsValid reports whether t is a supported view kind.
func (t Type) IsValid() bool {
	switch t {
	case TypeTable, TypeKanban, TypeCalendar, TypeGallery, TypeList, TypeTimeline, TypeChart:
		return true
	default:
		return false
	}
}

// TableConfig configures a table (grid) view.
type TableConfig struct {
	PageSize       int    `json:"page_size"`
	RowHeight      string `json:"row_height,omitempty"` // compact, medium, tall
	ShowRowNumbers bool   `json:"show_row_numbers,omitempty"`
	WrapCells      bool   `json:"wrap_cells,omitempty"`
}

// KanbanConfig configures a kanban board view.
type KanbanConfig struct {
	GroupFieldID     string   `json:"group_field_id"`
	ColumnOrder      []string `json:"column_order,omitempty"`
	ShowEmptyColumns bool     `json:"show_empty_columns,omitempty"`
	CardCoverFieldID string   `json:"card_cover_field_id,omitempty"`
}

// CalendarConfig configures a calendar view.
type CalendarConfig struct {
	DateFieldID    string `json:"date_field_id"`
	EndDateFieldID string `json:"end_date_field_id,omitempty"`
	DefaultZoom    string `json:"default_zoom,omitempty"` // month, week, day
}

// GalleryConfig configures a gallery view.
type GalleryConfig struct {
	CoverFieldID string `json:"cover_field_id,omitempty"`
	CardSize     string `json:"card_size,omitempty"` // small, medium, large
	FitCover     bool   `json:"fit_cover,omitempty"`
}

// ListConfig configures a list view.
type ListConfig struct {
	TitleFieldID string `json:"title_field_id,omitempty"`
	ShowIcons    bool   `json:"show_icons,omitempty"`
}

// TimelineConfig configures a timeline view.
type TimelineConfig struct {
	StartFieldID string `json:"start_field_id"`
	EndFieldID   string `json:"end_field_id,omitempty"`
	Zoom         string `json:"zoom,omitempty"` // year, quarter, month, week
}

// ChartConfig configures a chart view.
type ChartConfig struct {
	ChartType     string `json:"chart_type"` // bar, line, pie
	XFieldID      string `json:"x_field_id"`
	YFieldID      string `json:"y_field_id,omitempty"`
	AggregateFunc string `json:"aggregate_func,omitempty"` // count, sum, avg
}

// Config is the kind-specific configuration payload; the member matching
// the view's type is populated.
type Config struct {
	Table    *TableConfig    `json:"table,omitempty"`
	Kanban   *KanbanConfig   `json:"kanban,omitempty"`
	Calendar *CalendarConfig `json:"calendar,omitempty"`
	Gallery  *GalleryConfig  `json:"gallery,omitempty"`
	List     *ListConfig     `json:"list,omitempty"`
	Timeline *TimelineConfig `json:"timeline,omitempty"`
	Chart    *ChartConfig    `json:"chart,omitempty"`
}

// View is a saved presentation over a collection's records.
type View struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Type          Type     `json:"type"`
	CollectionID  string   `json:"collection_id"`
	Config        Config   `json:"config"`
	Filters       []Filter `json:"filters,omitempty"`
	Sorts         []Sort   `json:"sorts,omitempty"`
	Groups        []Group  `json:"groups,omitempty"`
	VisibleFields []string `json:"visible_fields,omitempty"`
	HiddenFields  []string `json:"hidden_fields,omitempty"`
	FieldOrder    []string `json:"field_order,omitempty"`
	IsDefault     bool     `json:"is_default,omitempty"`
	IsPublic      bool     `json:"is_public,omitempty"`
	Permissions   []string `json:"permissions,omitempty"`
}

// New validates and creates a View.
func New(collectionID, name string, t Type) (View, error) {
	if name == "" {
		return View{}, domain.NewValidationError("", "view name is required")
	}
	if !t.IsValid() {
		return View{}, domain.NewValidationError("", "unknown view type %q", t)
	}
	return View{
		ID:           uuid.NewString(),
		Name:         name,
		Type:         t,
		CollectionID: collectionID,
	}, nil
}

// NewDefault produces the table view auto-created with a collection:
// sane pagination and every column visible.
func NewDefault(collectionID string, fields []field.Field) View {
	visible := make([]string, 0, len(fields))
	for _, f := range fields {
		if !f.Hidden {
			visible = append(visible, f.ID)
		}
	}
	return View{
		ID:            uuid.NewString(),
		Name:          "Table",
		Type:          TypeTable,
		CollectionID:  collectionID,
		Config:        Config{Table: &TableConfig{PageSize: 25, RowHeight: "medium"}},
		VisibleFields: visible,
		FieldOrder:    append([]string(nil), visible...),
		IsDefault:     true,
	}
}

// Validate checks view invariants against the owning collection's
// schema: disjoint visible/hidden lists, every referenced field exists,
// and the config payload matches the view kind.
func (v View) Validate(fields []field.Field) error {
	if !v.Type.IsValid() {
		return domain.NewValidationError("", "unknown view type %q", v.Type)
	}
	known := make(map[string]field.Type, len(fields))
	for _, f := range fields {
		known[f.ID] = f.Type
	}

	visible := make(map[string]bool, len(v.VisibleFields))
	for _, id := range v.VisibleFields {
		visible[id] = true
	}
	for _, id := range v.HiddenFields {
		if visible[id] {
			return domain.NewValidationError(id, "field is both visible and hidden")
		}
	}

	for _, id := range v.referencedFields() {
		if id == "" {
			continue
		}
		if _, ok := known[id]; !ok {
			return domain.NewValidationError(id, "view references unknown field")
		}
	}

	for _, flt := range v.Filters {
		t, ok := known[flt.FieldID]
		if !ok {
			return domain.NewValidationError(flt.FieldID, "filter references unknown field")
		}
		if !OperatorSupported(t, flt.Operator) {
			return domain.NewValidationError(flt.FieldID, "operator %q not supported for %s fields", flt.Operator, t)
		}
	}

	return v.validateConfig()
}

func (v View) validateConfig() error {
	switch v.Type {
	case TypeKanban:
		if v.Config.Kanban == nil || v.Config.Kanban.GroupFieldID == "" {
			return domain.NewValidationError("", "kanban view requires a group field")
		}
	case TypeCalendar:
		if v.Config.Calendar == nil || v.Config.Calendar.DateFieldID == "" {
			return domain.NewValidationError("", "calendar view requires a date field")
		}
	case TypeTimeline:
		if v.Config.Timeline == nil || v.Config.Timeline.StartFieldID == "" {
			return domain.NewValidationError("", "timeline view requires a start field")
		}
	case TypeChart:
		if v.Config.Chart == nil || v.Config.Chart.ChartType == "" || v.Config.Chart.XFieldID == "" {
			return domain.NewValidationError("", "chart view requires a chart type and x field")
		}
	}
	return nil
}

// referencedFields collects every field id a view mentions outside its
// filter list (filters carry their own operator check).
func (v View) referencedFields() []string {
	ids := make([]string, 0, len(v.VisibleFields)+len(v.HiddenFields)+len(v.FieldOrder)+len(v.Sorts)+len(v.Groups)+8)
	ids = append(ids, v.VisibleFields...)
	ids = append(ids, v.HiddenFields...)
	ids = append(ids, v.FieldOrder...)
	for _, s := range v.Sorts {
		ids = append(ids, s.FieldID)
	}
	for _, g := range v.Groups {
		ids = append(ids, g.FieldID)
	}
	if c := v.Config.Kanban; c != nil {
		ids = append(ids, c.GroupFieldID, c.CardCoverFieldID)
	}
	if c := v.Config.Calendar; c != nil {
		ids = append(ids, c.DateFieldID, c.EndDateFieldID)
	}
	if c := v.Config.Gallery; c != nil {
		ids = append(ids, c.CoverFieldID)
	}
	if c := v.Config.List; c != nil {
		ids = append(ids, c.TitleFieldID)
	}
	if c := v.Config.Timeline; c != nil {
		ids = append(ids, c.StartFieldID, c.EndFieldID)
	}
	if c := v.Config.Chart; c != nil {
		ids = append(ids, c.XFieldID, c.YFieldID)
	}
	return ids
}
