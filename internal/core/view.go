package core

import (
	"slices"
	"time"

	"github.com/JonMunkholm/foodops/internal/tabular"
)

// SessionView is a read-only snapshot of a session for display.
type SessionView struct {
	ID              string                `json:"id"`
	Kind            string                `json:"kind"`
	Stage           Stage                 `json:"stage"`
	FileName        string                `json:"fileName,omitempty"`
	Format          tabular.Format        `json:"format,omitempty"`
	Encoding        string                `json:"encoding,omitempty"`
	Headers         []string              `json:"headers,omitempty"`
	RowCount        int                   `json:"rowCount"`
	Mapping         ColumnMapping         `json:"mapping"`
	Required        []Field               `json:"required"`
	Missing         []Field               `json:"missing,omitempty"`
	MappingComplete bool                  `json:"mappingComplete"`
	Stats           *PreviewStats         `json:"stats,omitempty"`
	Unmatched       []UnmatchedEntity     `json:"unmatched,omitempty"`
	Resolutions     map[string]Resolution `json:"resolutions,omitempty"`
	LastError       string                `json:"lastError,omitempty"`
	Result          *CommitResult         `json:"result,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

// View returns the current state of the session.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	required := s.def.RequiredFields()
	v := SessionView{
		ID:              s.id,
		Kind:            s.def.Info.Key,
		Stage:           s.stage,
		FileName:        s.fileName,
		Format:          s.format,
		Mapping:         s.mapping.Clone(),
		Required:        required,
		Missing:         s.mapping.Missing(required),
		MappingComplete: s.mapping.IsComplete(required),
		Unmatched:       slices.Clone(s.unmatched),
		LastError:       s.lastErr,
		Result:          s.result,
		CreatedAt:       s.createdAt,
		UpdatedAt:       s.updatedAt,
	}
	if s.data != nil {
		v.Encoding = s.encoding.String()
		v.Headers = slices.Clone(s.data.Headers)
		v.RowCount = len(s.data.Rows)
	}
	if s.records != nil {
		st := Stats(s.records)
		v.Stats = &st
	}
	if len(s.unmatched) > 0 {
		v.Resolutions = make(map[string]Resolution)
		for _, u := range s.unmatched {
			if r, ok := s.resolutions[resolutionKey(u.ExternalCode)]; ok {
				v.Resolutions[u.ExternalCode] = r
			}
		}
	}
	return v
}

// RecordsPage returns up to limit records starting at offset, and the total.
func (s *Session) RecordsPage(offset, limit int) ([]CandidateRecord, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.records)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	out := make([]CandidateRecord, 0, end-offset)
	for _, r := range s.records[offset:end] {
		out = append(out, cloneRecord(r))
	}
	return out, total
}
