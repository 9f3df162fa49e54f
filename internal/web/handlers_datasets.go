package web

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/core"
	"github.com/JonMunkholm/foodops/internal/logging"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	csvContentType  = "text/csv; charset=utf-8"
)

// kindResponse describes an import kind for clients building mapping UIs.
type kindResponse struct {
	Key       string          `json:"key"`
	Label     string          `json:"label"`
	Entity    catalog.Kind    `json:"entity,omitempty"`
	Reference catalog.Kind    `json:"reference,omitempty"`
	Fields    []fieldResponse `json:"fields"`
}

type fieldResponse struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Required bool     `json:"required"`
	Type     string   `json:"type"`
	Synonyms []string `json:"synonyms,omitempty"`
}

func fieldTypeName(t core.FieldType) string {
	switch t {
	case core.TypeNumeric:
		return "numeric"
	case core.TypeDate:
		return "date"
	}
	return "text"
}

func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	defs := s.service.ListKinds()
	out := make([]kindResponse, 0, len(defs))
	for _, def := range defs {
		k := kindResponse{
			Key:       def.Info.Key,
			Label:     def.Info.Label,
			Entity:    def.Info.Entity,
			Reference: def.Info.Reference,
			Fields:    make([]fieldResponse, 0, len(def.Fields)),
		}
		for _, f := range def.Fields {
			k.Fields = append(k.Fields, fieldResponse{
				Name:     string(f.Field),
				Label:    f.DisplayName(),
				Required: f.Required,
				Type:     fieldTypeName(f.Field.Type()),
				Synonyms: f.Synonyms,
			})
		}
		out = append(out, k)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListDatasets(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	if list == nil {
		list = []catalog.DatasetInfo{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := s.service.GetDataset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// handleExportDataset streams the dataset as an xlsx workbook, or as CSV
// with ?format=csv. The file is built in memory first so failures still
// produce a JSON error.
func (s *Server) handleExportDataset(w http.ResponseWriter, r *http.Request) {
	format, err := core.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	ds, err := s.service.ExportDataset(r.Context(), chi.URLParam(r, "id"), format, &buf)
	if err != nil {
		fail(w, r, err)
		return
	}

	filename := ds.Name
	if filename == "" {
		filename = ds.Kind
	}
	contentType := xlsxContentType
	if format == core.ExportCSV {
		contentType = csvContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename + "." + string(format)}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logging.FromContext(r.Context()).Warn("export write failed", "dataset_id", ds.ID, "error", err)
	}
}

// referenceResponse names the current reference dataset, empty when none.
type referenceResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleSetReference(w http.ResponseWriter, r *http.Request) {
	var req referenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.service.SetReferenceDataset(r.Context(), req.ID); err != nil {
		fail(w, r, err)
		return
	}
	id, err := s.service.ReferenceDataset(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, referenceResponse{ID: id})
}
