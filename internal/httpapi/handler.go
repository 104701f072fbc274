package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"division-service/internal/apperror"
	"division-service/internal/service"
)

type Handler struct {
	service service.Manager
	logger  *zap.Logger
}

func NewHandler(svc service.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		service: svc,
		logger:  logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "route not found")
		return
	}

	switch parts[0] {
	case "divisions":
		h.routeDivisions(w, r, parts[1:])
	case "users":
		h.routeUsers(w, r, parts[1:])
	default:
		writeError(w, http.StatusNotFound, "route not found")
	}
}

func (h *Handler) routeDivisions(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0:
		switch r.Method {
		case http.MethodPost:
			h.handleAddDivision(w, r)
		case http.MethodGet:
			h.handleGetHierarchy(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return

	case len(parts) == 1 && parts[0] == "stats":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleGetUserCounts(w, r)
		return

	case len(parts) == 1:
		divisionID, err := parseUintID(parts[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid division id")
			return
		}

		switch r.Method {
		case http.MethodGet:
			h.handleGetDivision(w, r, divisionID)
		case http.MethodPatch:
			h.handleUpdateDivision(w, r, divisionID)
		case http.MethodDelete:
			h.handleDeleteDivision(w, r, divisionID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return

	case len(parts) == 2 && parts[1] == "tree":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		divisionID, err := parseUintID(parts[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid division id")
			return
		}

		h.handleGetSubtree(w, r, divisionID)
		return
	}

	writeError(w, http.StatusNotFound, "route not found")
}

func (h *Handler) routeUsers(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0:
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleCreateUser(w, r)
		return

	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		userID, err := parseUintID(parts[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		h.handleGetUser(w, r, userID)
		return
	}

	writeError(w, http.StatusNotFound, "route not found")
}

type addDivisionRequest struct {
	Name     string `json:"name"`
	ParentID *uint  `json:"parent_id"`
}

type updateDivisionRequest struct {
	Name     *string      `json:"name"`
	ParentID optionalUint `json:"parent_id"`
}

type createUserRequest struct {
	Name       string `json:"name"`
	DivisionID *uint  `json:"division_id"`
}

func (h *Handler) handleAddDivision(w http.ResponseWriter, r *http.Request) {
	var req addDivisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	division, err := h.service.AddDivision(r.Context(), service.CreateDivisionInput{
		Name:     req.Name,
		ParentID: req.ParentID,
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, division)
}

func (h *Handler) handleGetHierarchy(w http.ResponseWriter, r *http.Request) {
	forest, err := h.service.GetDivisionsHierarchy(r.Context())
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, forest)
}

func (h *Handler) handleGetUserCounts(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.GetDivisionsWithUserCount(r.Context())
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleGetDivision(w http.ResponseWriter, r *http.Request, divisionID uint) {
	division, err := h.service.GetDivisionByID(r.Context(), divisionID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if division == nil {
		writeError(w, http.StatusNotFound, "division not found")
		return
	}

	writeJSON(w, http.StatusOK, division)
}

func (h *Handler) handleGetSubtree(w http.ResponseWriter, r *http.Request, divisionID uint) {
	depth, err := parseDepth(r.URL.Query().Get("depth"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	subtree, err := h.service.GetDivisionSubtree(r.Context(), divisionID, depth)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, subtree)
}

func (h *Handler) handleUpdateDivision(w http.ResponseWriter, r *http.Request, divisionID uint) {
	var req updateDivisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updatedDivision, err := h.service.UpdateDivision(r.Context(), divisionID, service.UpdateDivisionInput{
		Name:        req.Name,
		ParentIDSet: req.ParentID.Set,
		ParentID:    req.ParentID.Value,
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updatedDivision)
}

func (h *Handler) handleDeleteDivision(w http.ResponseWriter, r *http.Request, divisionID uint) {
	deleted, err := h.service.DeleteDivision(r.Context(), divisionID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "division not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.CreateUser(r.Context(), service.CreateUserInput{
		Name:       req.Name,
		DivisionID: req.DivisionID,
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request, userID uint) {
	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) respondWithError(w http.ResponseWriter, err error) {
	switch apperror.GetCode(err) {
	case apperror.CodeValidation:
		writeError(w, http.StatusBadRequest, err.Error())
	case apperror.CodeNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case apperror.CodeConflict, apperror.CodeCycle:
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("unexpected error", zap.Error(err), zap.String("code", string(apperror.GetCode(err))))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, target interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return errors.New("invalid JSON body")
	}

	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != io.EOF {
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func parseUintID(raw string) (uint, error) {
	id64, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id64 == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id64), nil
}

func parseDepth(raw string) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 1, nil
	}
	depth, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New("depth must be an integer")
	}
	if depth < 0 || depth > service.MaxSubtreeDepth {
		return 0, errors.New("depth must be between 0 and 5")
	}
	return depth, nil
}

type optionalUint struct {
	Set   bool
	Value *uint
}

func (o *optionalUint) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Value = nil
		return nil
	}

	var value uint
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	o.Value = &value
	return nil
}
