package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/artpar/schemagate/adapters/clock"
	apihttp "github.com/artpar/schemagate/adapters/http"
	"github.com/artpar/schemagate/adapters/idgen"
	"github.com/artpar/schemagate/adapters/memory"
	"github.com/artpar/schemagate/adapters/metrics"
	"github.com/artpar/schemagate/app"
	"github.com/artpar/schemagate/core/exporter"
)

const walletSchema = `
types:
  - name: WalletEvent
    kind: tagged-union
    variants:
      - { tag: Received, payload: Output }
      - { tag: Spent, payload: Output }
      - { tag: Reorg }
  - name: Output
    kind: struct
    export_to: wallet
    fields:
      - { name: commitment, type: string }
      - { name: value, type: u64 }
      - { name: status, type: OutputStatus }
  - name: OutputStatus
    kind: tagged-union
    variants:
      - { tag: Unspent }
      - { tag: Spent }
`

type document struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Status string `json:"status"`
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
	Meta  map[string]any    `json:"meta"`
	Links map[string]string `json:"links"`
}

type resource struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

type testServer struct {
	svc    *app.GeneratorService
	router http.Handler
	dir    string
}

func setupTestServer(t *testing.T, load bool) *testServer {
	t.Helper()

	e, err := exporter.New(exporter.DefaultOptions(), zerolog.Nop())
	if err != nil {
		t.Fatalf("exporter.New error: %v", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	svc := app.NewGeneratorService(e, memory.NewSnapshotStore(),
		clock.NewFake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
		idgen.NewSequential("snap-"), m, zerolog.Nop())

	ts := &testServer{svc: svc, dir: t.TempDir()}
	ts.writeSchema(t, walletSchema)
	if load {
		if _, err := svc.Load(context.Background(), ts.dir); err != nil {
			t.Fatalf("Load error: %v", err)
		}
	}

	h := apihttp.NewHandler(svc, "1.2.3", zerolog.Nop())
	ts.router = apihttp.NewRouter(h, zerolog.Nop(), apihttp.RouterConfig{
		Metrics:       m,
		Gatherer:      reg,
		EnableOpenAPI: true,
	})
	return ts
}

func (ts *testServer) writeSchema(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(ts.dir, "wallet.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (ts *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeDocument(t *testing.T, rec *httptest.ResponseRecorder) document {
	t.Helper()
	var doc document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
	}
	return doc
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		load   bool
		path   string
		status int
	}{
		{"liveness", false, "/health", http.StatusOK},
		{"live alias", false, "/health/live", http.StatusOK},
		{"ready without snapshot", false, "/health/ready", http.StatusServiceUnavailable},
		{"ready with snapshot", true, "/health/ready", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t, tt.load)
			rec := ts.get(t, tt.path)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	ts := setupTestServer(t, true)

	rec := ts.get(t, "/version")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp apihttp.VersionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Version != "1.2.3" || resp.Service != "schemagate" {
		t.Errorf("version = %+v", resp)
	}
	if resp.SchemaVersion != ts.svc.Current().Version() {
		t.Errorf("schema_version = %q, want %q", resp.SchemaVersion, ts.svc.Current().Version())
	}
}

func TestSchema_NoSnapshot(t *testing.T) {
	ts := setupTestServer(t, false)

	for _, path := range []string{"/api/schema", "/api/types", "/api/manifest", "/api/changes?base=latest"} {
		rec := ts.get(t, path)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestSchema(t *testing.T) {
	ts := setupTestServer(t, true)

	rec := ts.get(t, "/api/schema")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	doc := decodeDocument(t, rec)
	var res resource
	if err := json.Unmarshal(doc.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Type != "schemas" || res.ID != ts.svc.Current().Version() {
		t.Errorf("resource = %s/%s", res.Type, res.ID)
	}
	if res.Attributes["types"] != float64(3) {
		t.Errorf("types = %v, want 3", res.Attributes["types"])
	}
}

func TestListTypes(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantIDs []string
		wantTot float64
	}{
		{"all in declaration order", "", []string{"WalletEvent", "Output", "OutputStatus"}, 3},
		{"kind filter", "?kind=struct", []string{"Output"}, 1},
		{"first page", "?page[size]=2", []string{"WalletEvent", "Output"}, 3},
		{"second page", "?page[size]=2&page[number]=2", []string{"OutputStatus"}, 3},
		{"past the end", "?page[size]=2&page[number]=9", []string{}, 3},
		{"unknown kind", "?kind=alias", []string{}, 0},
	}

	ts := setupTestServer(t, true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.get(t, "/api/types"+tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}

			doc := decodeDocument(t, rec)
			var resources []resource
			if err := json.Unmarshal(doc.Data, &resources); err != nil {
				t.Fatal(err)
			}
			ids := make([]string, 0, len(resources))
			for _, r := range resources {
				ids = append(ids, r.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
			if doc.Meta["total"] != tt.wantTot {
				t.Errorf("meta total = %v, want %v", doc.Meta["total"], tt.wantTot)
			}
		})
	}
}

func TestGetType(t *testing.T) {
	ts := setupTestServer(t, true)

	rec := ts.get(t, "/api/types/Output")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	doc := decodeDocument(t, rec)
	var res resource
	if err := json.Unmarshal(doc.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Attributes["kind"] != "struct" || res.Attributes["export_to"] != "wallet" {
		t.Errorf("attributes = %v", res.Attributes)
	}
	fields, ok := res.Attributes["fields"].([]any)
	if !ok || len(fields) != 3 {
		t.Fatalf("fields = %v", res.Attributes["fields"])
	}
	if f := fields[2].(map[string]any); f["name"] != "status" || f["type"] != "OutputStatus" {
		t.Errorf("third field = %v", f)
	}

	rec = ts.get(t, "/api/types/WalletEvent")
	doc = decodeDocument(t, rec)
	if err := json.Unmarshal(doc.Data, &res); err != nil {
		t.Fatal(err)
	}
	if variants, ok := res.Attributes["variants"].([]any); !ok || len(variants) != 3 {
		t.Errorf("variants = %v", res.Attributes["variants"])
	}

	rec = ts.get(t, "/api/types/Missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing type status = %d, want 404", rec.Code)
	}
}

func TestTypeSource(t *testing.T) {
	ts := setupTestServer(t, true)

	rec := ts.get(t, "/api/types/Output/source")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Unit-Path"); got != "wallet/Output.ts" {
		t.Errorf("X-Unit-Path = %q", got)
	}
	if got := rec.Header().Get("X-Schema-Version"); got != ts.svc.Current().Version() {
		t.Errorf("X-Schema-Version = %q", got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "export type Output = {") {
		t.Errorf("body missing declaration:\n%s", body)
	}
	if !strings.Contains(body, `import type { OutputStatus } from "../OutputStatus";`) {
		t.Errorf("body missing import:\n%s", body)
	}

	if rec := ts.get(t, "/api/types/Missing/source"); rec.Code != http.StatusNotFound {
		t.Errorf("missing type status = %d, want 404", rec.Code)
	}
}

func TestTypeSource_UnsupportedShape(t *testing.T) {
	ts := setupTestServer(t, false)
	ts.writeSchema(t, `
types:
  - name: Loop
    kind: struct
    fields:
      - { name: next, type: Loop }
`)
	if _, err := ts.svc.Load(context.Background(), ts.dir); err != nil {
		t.Fatal(err)
	}

	rec := ts.get(t, "/api/types/Loop/source")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
	doc := decodeDocument(t, rec)
	if len(doc.Errors) != 1 || doc.Errors[0].Code != "unsupported_shape" {
		t.Errorf("errors = %+v", doc.Errors)
	}
}

func TestManifest(t *testing.T) {
	ts := setupTestServer(t, true)

	rec := ts.get(t, "/api/manifest")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var m struct {
		SchemaVersion string `json:"schema_version"`
		Types         []any  `json:"types"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	if m.SchemaVersion != ts.svc.Current().Version() || len(m.Types) != 3 {
		t.Errorf("manifest = %+v", m)
	}
}

func TestSnapshotsAndChanges(t *testing.T) {
	ts := setupTestServer(t, true)
	ctx := context.Background()

	rec := ts.get(t, "/api/snapshots")
	doc := decodeDocument(t, rec)
	if rec.Code != http.StatusOK || string(doc.Data) != "[]" {
		t.Fatalf("empty history = %d %s", rec.Code, doc.Data)
	}

	base := ts.svc.Current()
	if _, err := ts.svc.Publish(ctx, base, "v1"); err != nil {
		t.Fatal(err)
	}

	// Dropping a union variant is breaking for consumers; an optional field is not.
	edited := strings.Replace(walletSchema, "      - { tag: Spent }\n", "", 1)
	edited = strings.Replace(edited, "      - { name: status, type: OutputStatus }\n",
		"      - { name: status, type: OutputStatus }\n      - { name: memo, type: string, optional: true }\n", 1)
	ts.writeSchema(t, edited)
	head, err := ts.svc.Load(ctx, ts.dir)
	if err != nil {
		t.Fatal(err)
	}
	if head.Version() == base.Version() {
		t.Fatal("edited schema should change the version")
	}

	rec = ts.get(t, "/api/snapshots?limit=5")
	doc = decodeDocument(t, rec)
	var snapshots []resource
	if err := json.Unmarshal(doc.Data, &snapshots); err != nil {
		t.Fatal(err)
	}
	if len(snapshots) != 1 || snapshots[0].ID != "snap-1" || snapshots[0].Attributes["label"] != "v1" {
		t.Errorf("snapshots = %+v", snapshots)
	}

	tests := []struct {
		name    string
		query   string
		status  int
		changes int
	}{
		{"missing base", "", http.StatusBadRequest, 0},
		{"unknown base", "?base=ffff", http.StatusNotFound, 0},
		{"bad breaking flag", "?base=latest&breaking=sometimes", http.StatusBadRequest, 0},
		{"latest", "?base=latest", http.StatusOK, 2},
		{"full version", "?base=" + base.Version(), http.StatusOK, 2},
		{"short version", "?base=" + base.ShortVersion(), http.StatusOK, 2},
		{"only breaking", "?base=latest&breaking=true", http.StatusOK, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.get(t, "/api/changes"+tt.query)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}

			doc := decodeDocument(t, rec)
			if doc.Meta["base"] != base.Version() || doc.Meta["head"] != head.Version() {
				t.Errorf("meta = %v", doc.Meta)
			}
			if doc.Meta["breaking"] != true {
				t.Errorf("breaking = %v, want true", doc.Meta["breaking"])
			}
			if doc.Meta["total_changes"] != float64(2) || doc.Meta["breaking_changes"] != float64(1) {
				t.Errorf("change counts = %v / %v", doc.Meta["total_changes"], doc.Meta["breaking_changes"])
			}

			var changes []resource
			if err := json.Unmarshal(doc.Data, &changes); err != nil {
				t.Fatal(err)
			}
			if len(changes) != tt.changes {
				t.Fatalf("changes = %+v, want %d", changes, tt.changes)
			}
			found := false
			for _, c := range changes {
				if c.Attributes["subject"] == "OutputStatus.Spent" && c.Attributes["breaking"] == true {
					found = true
				}
			}
			if !found {
				t.Errorf("OutputStatus.Spent missing from %+v", changes)
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := setupTestServer(t, true)

	rec := ts.get(t, "/api/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	doc := decodeDocument(t, rec)
	if len(doc.Errors) != 1 || doc.Errors[0].Code != "not_found" || !strings.Contains(doc.Errors[0].Detail, "route") {
		t.Errorf("errors = %+v", doc.Errors)
	}
}

func TestListSnapshots_InvalidLimit(t *testing.T) {
	ts := setupTestServer(t, true)
	if rec := ts.get(t, "/api/snapshots?limit=-1"); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListSnapshots_NoStore(t *testing.T) {
	e, _ := exporter.New(exporter.DefaultOptions(), zerolog.Nop())
	svc := app.NewGeneratorService(e, nil, clock.Real{}, idgen.UUID{}, nil, zerolog.Nop())
	router := apihttp.NewRouter(apihttp.NewHandler(svc, "dev", zerolog.Nop()), zerolog.Nop(), apihttp.RouterConfig{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("metrics without collector status = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t, true)

	ts.get(t, "/api/types/Output")
	ts.get(t, "/api/types/Missing")

	rec := ts.get(t, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`schemagate_http_requests_total{method="GET",route="/api/types/{name}",status="2xx"} 1`,
		`schemagate_http_requests_total{method="GET",route="/api/types/{name}",status="4xx"} 1`,
		"schemagate_schema_types 3",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
	if strings.Contains(string(body), `route="/health`) {
		t.Error("health checks should not be instrumented")
	}
}

func TestOpenAPIEndpoint(t *testing.T) {
	ts := setupTestServer(t, false)

	rec := ts.get(t, "/.well-known/openapi.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var spec struct {
		Swagger string         `json:"swagger"`
		Paths   map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &spec); err != nil {
		t.Fatalf("openapi document is not JSON: %v", err)
	}
	for _, path := range []string{"/api/types", "/api/types/{name}/source", "/api/changes"} {
		if _, ok := spec.Paths[path]; !ok {
			t.Errorf("openapi document missing %s", path)
		}
	}
}
