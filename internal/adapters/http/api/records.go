package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/rostersync/internal/domain/engine"
	"github.com/okian/rostersync/internal/domain/types"
)

const maxBody = 1 << 20

// RecordsHandler serves collection reads and mutations.
type RecordsHandler struct {
	deps     Dependencies
	validate *validator.Validate
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(deps Dependencies, v *validator.Validate) *RecordsHandler {
	return &RecordsHandler{deps: deps, validate: v}
}

type bulkRequest struct {
	Edits []types.Edit `json:"edits" validate:"required,min=1,dive"`
}

func (h *RecordsHandler) handle(op string, w http.ResponseWriter, r *http.Request) (engine.Handle, bool) {
	c, err := h.deps.Collection(r.PathValue("collection"))
	if err != nil {
		writeFailure(w, WrapKind(op, ErrUnknownCollection, err))
		return nil, false
	}
	return c, true
}

func (h *RecordsHandler) decode(op string, w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return false
	}
	return true
}

// HandleList handles GET /v1/{collection}.
func (h *RecordsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	c, ok := h.handle("api.list", w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.List(r.Context()))
}

// HandleGet handles GET /v1/{collection}/{id}.
func (h *RecordsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get"
	c, ok := h.handle(op, w, r)
	if !ok {
		return
	}
	row, found := c.Get(r.Context(), r.PathValue("id"))
	if !found {
		writeFailure(w, NewKind(op, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// HandleCreate handles POST /v1/{collection}. The body is one wire row; an
// id is generated when it has none.
func (h *RecordsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create"
	c, ok := h.handle(op, w, r)
	if !ok {
		return
	}
	var row types.Row
	if !h.decode(op, w, r, &row) {
		return
	}
	if err := h.validate.Var(row, "required,min=1"); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	created, err := c.Create(r.Context(), row)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// HandleUpdate handles PATCH /v1/{collection}/{id}. Only the fields present
// in the body are written.
func (h *RecordsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update"
	c, ok := h.handle(op, w, r)
	if !ok {
		return
	}
	var patch types.Row
	if !h.decode(op, w, r, &patch) {
		return
	}
	if err := h.validate.Var(patch, "required,min=1"); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	row, err := c.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if row == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// HandleDelete handles DELETE /v1/{collection}/{id}.
func (h *RecordsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	c, ok := h.handle("api.delete", w, r)
	if !ok {
		return
	}
	if err := c.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, Wrap("api.delete", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleBulkUpdate handles POST /v1/{collection}/bulk.
func (h *RecordsHandler) HandleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.bulk_update"
	c, ok := h.handle(op, w, r)
	if !ok {
		return
	}
	var req bulkRequest
	if !h.decode(op, w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	if err := c.BulkUpdate(r.Context(), req.Edits); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
