package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/postwriter/internal/apperr"
	"github.com/starford/postwriter/internal/document"
	"github.com/starford/postwriter/internal/models"
	"github.com/starford/postwriter/internal/preview"
	"github.com/starford/postwriter/internal/serializer"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	store    *document.Store
	renderer *preview.Renderer
	legacy   bool
}

// NewHandler creates a new Handler. legacy selects the unescaped markdown
// output when a request does not ask for either mode.
func NewHandler(store *document.Store, renderer *preview.Renderer, legacy bool) *Handler {
	if renderer == nil {
		renderer = preview.New()
	}
	return &Handler{store: store, renderer: renderer, legacy: legacy}
}

// fieldID extracts the {id} URL parameter.
func fieldID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid field id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

// itemIndex extracts the {index} URL parameter.
func itemIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, fmt.Errorf("invalid item index %q", chi.URLParam(r, "index"))
	}
	return i, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// writeStoreError maps store errors onto status codes.
func writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("revision mismatch"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrInvalidType):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrMalformedImport):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrImportShape):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func (h *Handler) documentResponse() DocumentResponse {
	snap := h.store.Snapshot()
	return DocumentResponse{
		Fields:       snap.Fields,
		Body:         snap.Body,
		FieldsHidden: snap.FieldsHidden,
		Revision:     h.store.Revision(),
	}
}

func (h *Handler) writeDocument(w http.ResponseWriter, status int) {
	doc := h.documentResponse()
	setRevision(w, doc.Revision)
	writeJSON(w, status, doc)
}

func (h *Handler) writeField(w http.ResponseWriter, status int, id int64) {
	f, ok := h.store.Field(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	rev := h.store.Revision()
	setRevision(w, rev)
	writeJSON(w, status, FieldResponse{Field: f, Revision: rev})
}

// useLegacy resolves the ?legacy= query parameter against the configured default.
func (h *Handler) useLegacy(r *http.Request) bool {
	if v, err := strconv.ParseBool(r.URL.Query().Get("legacy")); err == nil {
		return v
	}
	return h.legacy
}

// GetDocument handles GET /api/document.
//
//	@Summary		Get the document
//	@Tags			document
//	@Produce		json
//	@Success		200		{object}	DocumentResponse
//	@Security		BearerAuth
//	@Router			/document [get]
func (h *Handler) GetDocument(w http.ResponseWriter, _ *http.Request) {
	h.writeDocument(w, http.StatusOK)
}

// UpdateBody handles PUT /api/document/body.
//
//	@Summary		Replace the markdown body
//	@Tags			document
//	@Accept			json
//	@Produce		json
//	@Param			If-Match	header	string				false	"Document revision for optimistic concurrency"
//	@Param			body		body	UpdateBodyRequest	true	"New body"
//	@Success		200		{object}	DocumentResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/document/body [put]
func (h *Handler) UpdateBody(w http.ResponseWriter, r *http.Request) {
	var req UpdateBodyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := document.WithIfMatch(r.Context(), IfMatch(r))
	if err := h.store.SetBody(ctx, req.Body); err != nil {
		writeStoreError(w, "set body", err)
		return
	}
	h.writeDocument(w, http.StatusOK)
}

// SetVisibility handles PUT /api/document/visibility.
//
//	@Summary		Show or hide the properties panel
//	@Tags			document
//	@Accept			json
//	@Produce		json
//	@Param			body	body		VisibilityRequest	true	"Visibility flag"
//	@Success		200		{object}	DocumentResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/document/visibility [put]
func (h *Handler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ctx := document.WithIfMatch(r.Context(), IfMatch(r))
	if err := h.store.SetFieldsHidden(ctx, *req.Hidden); err != nil {
		writeStoreError(w, "set visibility", err)
		return
	}
	h.writeDocument(w, http.StatusOK)
}

// ToggleVisibility handles POST /api/document/visibility/toggle.
//
//	@Summary		Toggle the properties panel
//	@Tags			document
//	@Produce		json
//	@Success		200		{object}	DocumentResponse
//	@Security		BearerAuth
//	@Router			/document/visibility/toggle [post]
func (h *Handler) ToggleVisibility(w http.ResponseWriter, r *http.Request) {
	ctx := document.WithIfMatch(r.Context(), IfMatch(r))
	if _, err := h.store.ToggleFieldsHidden(ctx); err != nil {
		writeStoreError(w, "toggle visibility", err)
		return
	}
	h.writeDocument(w, http.StatusOK)
}

// AddField handles POST /api/fields.
//
//	@Summary		Append an empty text field
//	@Tags			fields
//	@Produce		json
//	@Success		201		{object}	FieldResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/fields [post]
func (h *Handler) AddField(w http.ResponseWriter, r *http.Request) {
	ctx := document.WithIfMatch(r.Context(), IfMatch(r))
	f, err := h.store.AddField(ctx)
	if err != nil {
		writeStoreError(w, "add field", err)
		return
	}
	h.writeField(w, http.StatusCreated, f.ID)
}

// UpdateField handles PATCH /api/fields/{id}.
//
//	@Summary		Change the label, type or value of a field
//	@Tags			fields
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"Field id"
//	@Param			body	body		UpdateFieldRequest	true	"Attributes to replace"
//	@Success		200		{object}	FieldResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/fields/{id} [patch]
func (h *Handler) UpdateField(w http.ResponseWriter, r *http.Request) {
	id, err := fieldID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	var req UpdateFieldRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if req.empty() {
		writeJSON(w, http.StatusBadRequest, errorBody("nothing to update"))
		return
	}
	value, err := req.decodeValue()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	u := document.FieldUpdate{Label: req.Label, Value: value}
	if req.Type != nil {
		t := models.FieldType(*req.Type)
		u.Type = &t
	}
	ctx := document.WithIfMatch(r.Context(), IfMatch(r))
	f, err := h.store.UpdateField(ctx, id, u)
	if err != nil {
		writeStoreError(w, "update field", err)
		return
	}
	h.writeField(w, http.StatusOK, f.ID)
}

// DeleteField handles DELETE /api/fields/{id}.
//
//	@Summary		Remove a field
//	@Tags			fields
//	@Param			id	path	int	true	"Field id"
//	@Success		204		"Field removed or absent"
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/fields/{id} [delete]
func (h *Handler) DeleteField(w http.ResponseWriter, r *http.Request) {
	id, err := fieldID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ctx := document.WithIfMatch(r.Context(), IfMatch(r))
	if _, err := h.store.RemoveField(ctx, id); err != nil {
		writeStoreError(w, "remove field", err)
		return
	}
	setRevision(w, h.store.Revision())
	w.WriteHeader(http.StatusNoContent)
}

// AddListItem handles POST /api/fields/{id}/items.
//
//	@Summary		Append an empty item to a list field
//	@Tags			fields
//	@Produce		json
//	@Param			id	path		int	true	"Field id"
//	@Success		200		{object}	FieldResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/fields/{id}/items [post]
func (h *Handler) AddListItem(w http.ResponseWriter, r *http.Request) {
	id, err := fieldID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ctx := document.WithIfMatch(r.Context(), IfMatch(r))
	if _, err := h.store.AddListItem(ctx, id); err != nil {
		writeStoreError(w, "add list item", err)
		return
	}
	h.writeField(w, http.StatusOK, id)
}

// SetListItem handles PUT /api/fields/{id}/items/{index}.
//
//	@Summary		Replace the text of a list item
//	@Tags			fields
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int				true	"Field id"
//	@Param			index	path		int				true	"Item index"
//	@Param			body	body		ListItemRequest	true	"Item text"
//	@Success		200		{object}	FieldResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/fields/{id}/items/{index} [put]
func (h *Handler) SetListItem(w http.ResponseWriter, r *http.Request) {
	id, err := fieldID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	index, err := itemIndex(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	var req ListItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := document.WithIfMatch(r.Context(), IfMatch(r))
	if _, err := h.store.SetListItem(ctx, id, index, req.Text); err != nil {
		writeStoreError(w, "set list item", err)
		return
	}
	h.writeField(w, http.StatusOK, id)
}

// RemoveListItem handles DELETE /api/fields/{id}/items/{index}.
//
//	@Summary		Remove a list item
//	@Tags			fields
//	@Produce		json
//	@Param			id		path		int	true	"Field id"
//	@Param			index	path		int	true	"Item index"
//	@Success		200		{object}	FieldResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/fields/{id}/items/{index} [delete]
func (h *Handler) RemoveListItem(w http.ResponseWriter, r *http.Request) {
	id, err := fieldID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	index, err := itemIndex(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ctx := document.WithIfMatch(r.Context(), IfMatch(r))
	if _, err := h.store.RemoveListItem(ctx, id, index); err != nil {
		writeStoreError(w, "remove list item", err)
		return
	}
	h.writeField(w, http.StatusOK, id)
}

// MoveField handles POST /api/fields/move.
//
//	@Summary		Move a field onto the slot of another
//	@Tags			fields
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveFieldRequest	true	"Source and drop target"
//	@Success		200		{object}	DocumentResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/fields/move [post]
func (h *Handler) MoveField(w http.ResponseWriter, r *http.Request) {
	var req MoveFieldRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if req.Target != nil {
		ctx := document.WithIfMatch(r.Context(), IfMatch(r))
		if _, err := h.store.MoveField(ctx, req.Source, *req.Target); err != nil {
			writeStoreError(w, "move field", err)
			return
		}
	}
	h.writeDocument(w, http.StatusOK)
}

// ExportMarkdown handles GET /api/export/markdown.
//
//	@Summary		Render the clipboard payload
//	@Tags			export
//	@Produce		plain
//	@Param			legacy	query	bool	false	"Unescaped legacy output"
//	@Success		200		{string}	string
//	@Security		BearerAuth
//	@Router			/export/markdown [get]
func (h *Handler) ExportMarkdown(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	out := serializer.Markdown(snap.Fields, snap.Body, serializer.Options{Legacy: h.useLegacy(r)})
	setRevision(w, h.store.Revision())
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out)
}

// ExportJSON handles GET /api/export/json.
//
//	@Summary		Download the field list
//	@Tags			export
//	@Produce		json
//	@Success		200
//	@Security		BearerAuth
//	@Router			/export/json [get]
func (h *Handler) ExportJSON(w http.ResponseWriter, _ *http.Request) {
	snap := h.store.Snapshot()
	data, err := serializer.ExportJSON(snap.Fields)
	if err != nil {
		slog.Error("export json failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename=%q`, serializer.ExportFilename(snap.Fields)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// LintExport handles GET /api/export/lint.
//
//	@Summary		Check the frontmatter of the clipboard payload
//	@Tags			export
//	@Produce		json
//	@Param			legacy	query	bool	false	"Lint the unescaped legacy output"
//	@Success		200		{object}	serializer.Report
//	@Security		BearerAuth
//	@Router			/export/lint [get]
func (h *Handler) LintExport(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	out := serializer.Markdown(snap.Fields, snap.Body, serializer.Options{Legacy: h.useLegacy(r)})
	writeJSON(w, http.StatusOK, serializer.Lint(out))
}

// Preview handles GET /api/preview.
//
//	@Summary		Render the body as HTML
//	@Tags			document
//	@Produce		json
//	@Success		200		{object}	PreviewResponse
//	@Security		BearerAuth
//	@Router			/preview [get]
func (h *Handler) Preview(w http.ResponseWriter, _ *http.Request) {
	snap := h.store.Snapshot()
	html, err := h.renderer.Render(snap.Body)
	if err != nil {
		slog.Error("preview failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{HTML: html, Revision: h.store.Revision()})
}

// Import handles POST /api/import.
//
//	@Summary		Replace all fields with an exported field list
//	@Tags			import
//	@Accept			json
//	@Produce		json
//	@Success		200		{object}	ImportResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	ctx := document.WithIfMatch(r.Context(), IfMatch(r))
	n, err := h.store.Import(ctx, data)
	if err != nil {
		writeStoreError(w, "import", err)
		return
	}
	doc := h.documentResponse()
	setRevision(w, doc.Revision)
	writeJSON(w, http.StatusOK, ImportResponse{Imported: n, Document: doc})
}
