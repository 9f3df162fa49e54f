package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/foodops/internal/charset"
	"github.com/JonMunkholm/foodops/internal/core"
	"github.com/JonMunkholm/foodops/internal/logging"
	"github.com/JonMunkholm/foodops/internal/tabular"
)

// maxMultipartMemory is how much of an upload is held in memory before
// spilling to temp files.
const maxMultipartMemory = 32 << 20

// maxPageSize caps the records page a client may request.
const maxPageSize = 1000

// session loads the import session named by the {id} URL param.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*core.Session, bool) {
	sess, err := s.service.Session(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return nil, false
	}
	return sess, true
}

// handleCreateImport starts a session from a multipart upload.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if _, ok := core.Get(kind); !ok {
		fail(w, r, fmt.Errorf("%w: %s", core.ErrUnknownKind, kind))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+1<<20)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			fail(w, r, fmt.Errorf("%w: limit is %d bytes", tabular.ErrFileTooLarge, s.cfg.Upload.MaxFileSize))
			return
		}
		fail(w, r, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}

	raw, err := readUpload(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	opts, err := s.uploadOptions(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	sess, err := s.service.StartImport(r.Context(), kind, raw, opts)
	if err != nil {
		if sess == nil {
			fail(w, r, err)
			return
		}
		// The session exists and stays in the upload stage; return it so
		// the client can retry with different options.
		respondErrorDetails(w, r, err, statusFor(err), sess.View())
		return
	}

	logging.WithFields(r.Context(), "session_id", sess.ID(), "kind", kind).
		Info("import started", "file", raw.Name, "bytes", len(raw.Data))
	writeJSON(w, http.StatusCreated, sess.View())
}

// readUpload reads the "file" form field.
func readUpload(r *http.Request) (tabular.RawFile, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return tabular.RawFile{}, errNoFile
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return tabular.RawFile{}, fmt.Errorf("read upload: %w", err)
	}
	return tabular.RawFile{Name: header.Filename, Data: buf.Bytes()}, nil
}

// uploadOptions builds parse options from the form, falling back to the
// configured defaults.
func (s *Server) uploadOptions(r *http.Request) (tabular.Options, error) {
	form := uploadForm{
		Delimiter: r.FormValue("delimiter"),
		HasHeader: r.FormValue("hasHeader"),
		Encoding:  r.FormValue("encoding"),
	}
	if err := validateRequest(form); err != nil {
		return tabular.Options{}, err
	}

	opts := tabular.DefaultOptions()
	opts.MaxSize = s.cfg.Upload.MaxFileSize

	delim := form.Delimiter
	if delim == "" {
		delim = s.cfg.Upload.DefaultDelimiter
	}
	d, err := tabular.ParseDelimiter(delim)
	if err != nil {
		return tabular.Options{}, fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	opts.Delimiter = d

	if form.HasHeader != "" {
		opts.HasHeader, _ = strconv.ParseBool(form.HasHeader)
	}
	if form.Encoding != "" {
		enc, err := charset.Parse(form.Encoding)
		if err != nil {
			return tabular.Options{}, fmt.Errorf("%w: %v", errInvalidRequest, err)
		}
		opts.Encoding = &enc
	}
	return opts, nil
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

// handleDiscardImport cancels the session if needed and forgets it.
func (s *Server) handleDiscardImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Discard(chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetMapping applies manual column overrides.
func (s *Server) handleSetMapping(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req mappingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}

	names := make([]string, 0, len(req.Columns))
	for name := range req.Columns {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		field, ok := core.ParseField(name)
		if !ok {
			fail(w, r, fmt.Errorf("%w: %s", core.ErrUnknownField, name))
			return
		}
		if err := sess.SetColumn(field, req.Columns[name]); err != nil {
			fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleBackToMapping(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.BackToMapping(); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.GeneratePreview(r.Context()); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

// recordsResponse is one page of candidate records.
type recordsResponse struct {
	Records []core.CandidateRecord `json:"records"`
	Total   int                    `json:"total"`
	Offset  int                    `json:"offset"`
	Limit   int                    `json:"limit"`
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", s.cfg.Import.PreviewPageSize)
	if err != nil {
		fail(w, r, err)
		return
	}
	if offset < 0 || limit < 1 {
		fail(w, r, fmt.Errorf("%w: offset must be >= 0 and limit >= 1", errInvalidRequest))
		return
	}
	limit = min(limit, maxPageSize)

	records, total := sess.RecordsPage(offset, limit)
	writeJSON(w, http.StatusOK, recordsResponse{
		Records: records,
		Total:   total,
		Offset:  offset,
		Limit:   limit,
	})
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errInvalidRequest, name)
	}
	return n, nil
}

// handleUpdateRecord edits cells and/or toggles selection of one record.
// Edits are applied first so the selection sees the revalidated record.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		fail(w, r, fmt.Errorf("%w: record index must be an integer", errInvalidRequest))
		return
	}
	var req recordUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}

	if len(req.Edits) > 0 {
		edits := make(map[core.Field]string, len(req.Edits))
		for name, value := range req.Edits {
			field, ok := core.ParseField(name)
			if !ok {
				fail(w, r, fmt.Errorf("%w: %s", core.ErrUnknownField, name))
				return
			}
			edits[field] = value
		}
		if err := sess.EditRecord(index, edits); err != nil {
			fail(w, r, err)
			return
		}
	}
	if req.Selected != nil {
		if err := sess.SetSelected(index, *req.Selected); err != nil {
			fail(w, r, err)
			return
		}
	}

	page, _ := sess.RecordsPage(index, 1)
	if len(page) == 0 {
		fail(w, r, fmt.Errorf("%w: %d", core.ErrRecordNotFound, index))
		return
	}
	writeJSON(w, http.StatusOK, page[0])
}

func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := sess.SelectAll(*req.Selected); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Stats())
}

// unmatchedResponse lists unresolved codes with the choices made so far.
type unmatchedResponse struct {
	Unmatched   []core.UnmatchedEntity     `json:"unmatched"`
	Resolutions map[string]core.Resolution `json:"resolutions"`
}

func (s *Server) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, unmatchedResponse{
		Unmatched:   sess.Unmatched(),
		Resolutions: sess.Resolutions(),
	})
}

// handleResolve records a resolution for each listed code. It stops at the
// first rejected entry; earlier entries stay recorded.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var list []resolutionRequest
	if err := readJSON(w, r, &list); err != nil {
		fail(w, r, err)
		return
	}
	if err := validateRequest(resolutionsRequest{Resolutions: list}); err != nil {
		fail(w, r, err)
		return
	}

	for _, res := range list {
		err := sess.Resolve(res.Code, core.Resolution{
			Action:   core.ResolutionAction(res.Action),
			EntityID: res.EntityID,
			Name:     res.Name,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, unmatchedResponse{
		Unmatched:   sess.Unmatched(),
		Resolutions: sess.Resolutions(),
	})
}

// handleCommit writes the approved rows. The body is optional.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req commitRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
	}

	res, err := sess.Commit(r.Context(), req.Name)
	if err != nil {
		fail(w, r, err)
		return
	}
	logging.WithFields(r.Context(), "session_id", sess.ID(), "kind", sess.Kind().Info.Key).
		Info("import committed", "dataset_id", res.DatasetID, "rows", res.Committed)
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if _, err := sess.Cancel(); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}
