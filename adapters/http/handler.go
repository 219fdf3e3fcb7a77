// Package http provides the read-only HTTP API over the live schema snapshot.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/artpar/schemagate/app"
	"github.com/artpar/schemagate/core/checker"
	"github.com/artpar/schemagate/core/registry"
	"github.com/artpar/schemagate/core/schema"
	"github.com/artpar/schemagate/pkg/jsonapi"
	"github.com/artpar/schemagate/ports"
)

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version       string `json:"version" example:"1.0.0"`
	Service       string `json:"service" example:"schemagate"`
	SchemaVersion string `json:"schema_version,omitempty" example:"9f2c1e..."`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
	Error  string `json:"error,omitempty"`
}

// FieldView is the API representation of a struct field.
type FieldView struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional,omitempty"`
	Nullable bool   `json:"nullable,omitempty"`
	Override string `json:"override,omitempty"`
	Doc      string `json:"doc,omitempty"`
}

// VariantView is the API representation of a union variant.
type VariantView struct {
	Tag     string      `json:"tag"`
	Payload string      `json:"payload,omitempty"`
	Fields  []FieldView `json:"fields,omitempty"`
	Doc     string      `json:"doc,omitempty"`
}

// Handler serves the schema API.
type Handler struct {
	service     *app.GeneratorService
	toolVersion string
	logger      zerolog.Logger
}

// NewHandler creates a schema API handler.
func NewHandler(service *app.GeneratorService, toolVersion string, logger zerolog.Logger) *Handler {
	return &Handler{
		service:     service,
		toolVersion: toolVersion,
		logger:      logger,
	}
}

// Liveness returns a simple liveness check.
//
//	@Summary		Liveness check
//	@Description	Returns OK if the service is running
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readiness reports whether a snapshot is loaded.
//
//	@Summary		Readiness check
//	@Description	Ready once a schema snapshot has been loaded
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/health/ready [get]
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.service.Current() == nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: app.ErrNoSnapshot.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Version returns the service and schema versions.
//
//	@Summary		Get service version
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	VersionResponse
//	@Router			/version [get]
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	resp := VersionResponse{Version: h.toolVersion, Service: "schemagate"}
	if snap := h.service.Current(); snap != nil {
		resp.SchemaVersion = snap.Version()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Schema describes the current snapshot.
//
//	@Summary		Current schema snapshot
//	@Tags			Schema
//	@Produce		json
//	@Success		200	{object}	jsonapi.Document
//	@Failure		503	{object}	jsonapi.Document
//	@Router			/api/schema [get]
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}

	kinds := make(map[string]int)
	var recursive []string
	for _, n := range snap.AllNodes() {
		kinds[string(n.Kind)]++
		if snap.IsRecursive(n.Name) {
			recursive = append(recursive, n.Name)
		}
	}

	res := jsonapi.NewResource("schemas", snap.Version()).
		Attr("version", snap.Version()).
		Attr("short_version", snap.ShortVersion()).
		Attr("types", snap.Len()).
		Attr("kinds", kinds).
		Attr("recursive", recursive).
		Link("/api/schema").
		Build()
	jsonapi.WriteResource(w, http.StatusOK, res)
}

// ListTypes lists types in declaration order.
//
//	@Summary		List types
//	@Tags			Schema
//	@Produce		json
//	@Param			kind			query		string	false	"Filter by kind"
//	@Param			page[number]	query		int		false	"Page number"
//	@Param			page[size]		query		int		false	"Page size"
//	@Success		200				{object}	jsonapi.Document
//	@Router			/api/types [get]
func (h *Handler) ListTypes(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}

	kind := r.URL.Query().Get("kind")
	var nodes []schema.TypeNode
	for _, n := range snap.AllNodes() {
		if kind == "" || string(n.Kind) == kind {
			nodes = append(nodes, n)
		}
	}

	page, perPage := jsonapi.ParsePaginationParams(r.URL.Query(), 50)
	pagination := jsonapi.NewPagination(len(nodes), page, perPage, r.URL.String())
	start, end := pagination.Window()

	resources := make([]jsonapi.Resource, 0, end-start)
	for _, n := range nodes[start:end] {
		resources = append(resources, typeSummary(snap, n))
	}
	jsonapi.WriteCollection(w, http.StatusOK, resources, pagination)
}

// GetType returns one type with its members and reference graph.
//
//	@Summary		Get type
//	@Tags			Schema
//	@Produce		json
//	@Param			name	path		string	true	"Type name"
//	@Success		200		{object}	jsonapi.Document
//	@Failure		404		{object}	jsonapi.Document
//	@Router			/api/types/{name} [get]
func (h *Handler) GetType(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	node, found := snap.Node(name)
	if !found {
		jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("type", name))
		return
	}

	res := typeSummary(snap, node)
	res.Attributes["references"] = snap.References(name)
	res.Attributes["cycle"] = snap.Cycle(name)
	if node.Doc != "" {
		res.Attributes["doc"] = node.Doc
	}
	if node.Target != nil {
		res.Attributes["target"] = node.Target.String()
	}
	if len(node.Fields) > 0 {
		res.Attributes["fields"] = fieldViews(node.Fields)
	}
	if len(node.Variants) > 0 {
		res.Attributes["tagging"] = node.Tagging
		variants := make([]VariantView, 0, len(node.Variants))
		for _, v := range node.Variants {
			view := VariantView{Tag: v.Tag, Doc: v.Doc, Fields: fieldViews(v.Fields)}
			if v.Payload != nil {
				view.Payload = v.Payload.String()
			}
			variants = append(variants, view)
		}
		res.Attributes["variants"] = variants
	}

	jsonapi.WriteResource(w, http.StatusOK, res)
}

// TypeSource returns the generated declaration file of a type.
//
//	@Summary		Generated source of a type
//	@Tags			Schema
//	@Produce		plain
//	@Param			name	path		string	true	"Type name"
//	@Success		200		{string}	string
//	@Failure		404		{object}	jsonapi.Document
//	@Failure		422		{object}	jsonapi.Document
//	@Router			/api/types/{name}/source [get]
func (h *Handler) TypeSource(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	if _, found := snap.Node(name); !found {
		jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("type", name))
		return
	}

	rendering, err := h.service.Render(r.Context(), snap)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	unit, _ := rendering.Batch.Unit(name)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Schema-Version", snap.Version())
	w.Header().Set("X-Unit-Path", unit.Path)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(unit.Content))
}

// Manifest returns the manifest the current snapshot generates.
//
//	@Summary		Generated manifest
//	@Tags			Schema
//	@Produce		json
//	@Success		200	{object}	output.Manifest
//	@Router			/api/manifest [get]
func (h *Handler) Manifest(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}

	rendering, err := h.service.Render(r.Context(), snap)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	data, err := rendering.Manifest.Encode()
	if err != nil {
		jsonapi.WriteInternalError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ListSnapshots lists published snapshots, newest first.
//
//	@Summary		Published snapshot history
//	@Tags			History
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum number of entries"
//	@Success		200		{object}	jsonapi.Document
//	@Router			/api/snapshots [get]
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("limit", "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	history, err := h.service.History(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resources := make([]jsonapi.Resource, 0, len(history))
	for _, s := range history {
		resources = append(resources, jsonapi.NewResource("snapshots", s.ID).
			Attr("version", s.Version).
			Attr("label", s.Label).
			Attr("types", s.TypeCount).
			Attr("created_at", s.CreatedAt).
			Build())
	}
	jsonapi.WriteCollection(w, http.StatusOK, resources, nil)
}

// Changes diffs a published snapshot against the current one.
//
//	@Summary		Schema changes since a published version
//	@Tags			History
//	@Produce		json
//	@Param			base		query		string	true	"Published version, version prefix, or latest"
//	@Param			breaking	query		bool	false	"Only list breaking changes"
//	@Success		200		{object}	jsonapi.Document
//	@Failure		400		{object}	jsonapi.Document
//	@Failure		404		{object}	jsonapi.Document
//	@Router			/api/changes [get]
func (h *Handler) Changes(w http.ResponseWriter, r *http.Request) {
	head, ok := h.snapshot(w)
	if !ok {
		return
	}

	baseVersion := r.URL.Query().Get("base")
	if baseVersion == "" {
		jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("base", "base version is required"))
		return
	}

	onlyBreaking := false
	if v := r.URL.Query().Get("breaking"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			jsonapi.WriteBadRequest(w, "breaking must be a boolean")
			return
		}
		onlyBreaking = b
	}

	base, err := h.service.Published(r.Context(), baseVersion)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	report, err := h.service.Check(r.Context(), app.CheckRequest{Base: base, Head: head})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	breaking := checker.BreakingChanges(report.Changes)
	changes := report.Changes
	if onlyBreaking {
		changes = breaking
	}

	resources := make([]jsonapi.Resource, 0, len(changes))
	for i, c := range changes {
		resources = append(resources, jsonapi.NewResource("changes", strconv.Itoa(i)).
			Attr("classification", c.Classification()).
			Attr("subject", c.Subject()).
			Attr("old", c.Old).
			Attr("new", c.New).
			Attr("breaking", c.Breaking).
			Attr("detail", c.Detail).
			Build())
	}

	doc := jsonapi.NewDocument().
		DataCollection(resources).
		Meta("base", report.BaseVersion).
		Meta("head", report.HeadVersion).
		Meta("breaking", report.Breaking).
		Meta("total_changes", len(report.Changes)).
		Meta("breaking_changes", len(breaking)).
		Meta("gate_failed", report.GateFailed).
		Build()
	jsonapi.WriteDocument(w, http.StatusOK, doc)
}

func (h *Handler) snapshot(w http.ResponseWriter) (*registry.Snapshot, bool) {
	snap := h.service.Current()
	if snap == nil {
		jsonapi.WriteError(w, jsonapi.ErrServiceUnavailable(app.ErrNoSnapshot.Error()))
		return nil, false
	}
	return snap, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var failed *app.ExportFailedError
	switch {
	case errors.Is(err, ports.ErrNotFound):
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusNotFound, "not_found", "Not Found").Detail(err.Error()).Build())
	case errors.Is(err, ports.ErrAmbiguousVersion):
		jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("base", err.Error()))
	case errors.Is(err, app.ErrNoStore), errors.Is(err, app.ErrNoSnapshot):
		jsonapi.WriteError(w, jsonapi.ErrServiceUnavailable(err.Error()))
	case errors.As(err, &failed):
		errs := make([]jsonapi.Error, 0, len(failed.Failures))
		for _, f := range failed.Failures {
			errs = append(errs, jsonapi.NewError(http.StatusUnprocessableEntity, "unsupported_shape", "Unsupported Shape").Detail(f.Error()).Build())
		}
		jsonapi.WriteError(w, errs...)
	default:
		h.logger.Error().Err(err).Msg("request failed")
		jsonapi.WriteInternalError(w, err.Error())
	}
}

func typeSummary(snap *registry.Snapshot, n schema.TypeNode) jsonapi.Resource {
	b := jsonapi.NewResource("types", n.Name).
		Attr("kind", n.Kind).
		Attr("position", snap.Position(n.Name)).
		Attr("dependencies", snap.Dependencies(n.Name)).
		Attr("recursive", snap.IsRecursive(n.Name)).
		Link("/api/types/" + n.Name)
	if len(n.Generics) > 0 {
		b.Attr("generics", n.Generics)
	}
	if n.ExportTo != "" {
		b.Attr("export_to", n.ExportTo)
	}
	if n.Retired {
		b.Attr("retired", true)
	}
	return b.Build()
}

func fieldViews(fields []schema.FieldSpec) []FieldView {
	if len(fields) == 0 {
		return nil
	}
	views := make([]FieldView, 0, len(fields))
	for _, f := range fields {
		views = append(views, FieldView{
			Name:     f.Name,
			Type:     f.Type.String(),
			Optional: f.Optional,
			Nullable: f.Nullable,
			Override: f.Override,
			Doc:      f.Doc,
		})
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
