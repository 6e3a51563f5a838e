package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markercompare/internal/compare"
	"markercompare/internal/intake"
	"markercompare/internal/metrics"
	"markercompare/internal/persistence"
	"markercompare/internal/report"
	"markercompare/internal/repository"
	"markercompare/pkg/domain"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	repo    *repository.Repository
	metrics *metrics.Prometheus
	router  *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rec := metrics.NewPrometheus("")
	repo := repository.New(persistence.NewMemoryStore(), repository.Options{Metrics: rec})
	srv := New(Options{
		Comparer: compare.New(repo, compare.Options{Metrics: rec}),
		Ingester: intake.NewIngestor(repo, intake.Options{Metrics: rec}),
		Cases:    repo,
		Metrics:  rec.Handler(),
	})
	return &fixture{repo: repo, metrics: rec, router: srv.Router()}
}

func reportText(header string, rows ...[3]string) string {
	var b strings.Builder
	b.WriteString("Sample File\tSample Name\tMarker\tAllele 1\tAllele 2\n")
	for _, r := range rows {
		b.WriteString("f\t" + header + "\t" + r[0] + "\t" + r[1] + "\t" + r[2] + "\n")
	}
	return b.String()
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	require.NoError(t, f.repo.UploadCases(context.Background(), "12-03-2025", []domain.Case{
		{BaseCode: "V2445", Samples: []domain.Sample{
			{Code: "V2445A", Name: "Father", Markers: map[string]domain.AllelePair{"vWA": {"16", "17"}, "FGA": {"20", "22"}}},
			{Code: "V2445B", Name: "Child", Markers: map[string]domain.AllelePair{"vWA": {"17", "18"}, "FGA": {"22", "24"}}},
		}},
		{BaseCode: "V2446", Samples: []domain.Sample{
			{Code: "V2446A", Name: "Other", Markers: map[string]domain.AllelePair{"vWA": {"10", "11"}, "FGA": {"30", "31"}}},
		}},
	}))
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthAndRequestID(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = f.do(t, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestCompareFamily(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	w := f.do(t, jsonRequest(http.MethodPost, "/api/compare", gin.H{"type": "family", "params": gin.H{"code": "V2445"}}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var results []domain.ComparisonResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "V2445B", results[0].Sample2.Code)
	assert.Equal(t, domain.ConclusionBloodRelation, results[0].Conclusion)
}

func TestCompareStrategies(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	w := f.do(t, jsonRequest(http.MethodPost, "/api/compare", gin.H{"type": "sameDay", "params": gin.H{"code": "V2445A"}}))
	require.Equal(t, http.StatusOK, w.Code)
	var results []domain.ComparisonResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "V2446A", results[0].Sample2.Code)

	w = f.do(t, jsonRequest(http.MethodPost, "/api/compare", gin.H{"type": "all", "params": gin.H{"code": "V2445A"}}))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	assert.Len(t, results, 2)

	w = f.do(t, jsonRequest(http.MethodPost, "/api/compare", gin.H{"type": "two", "params": gin.H{"code1": "V2445B", "code2": "V2446A"}}))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, domain.ConclusionNoBloodRelation, results[0].Conclusion)
}

func TestCompareErrors(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	cases := []struct {
		name   string
		body   any
		status int
	}{
		{"unknown type", gin.H{"type": "cousins", "params": gin.H{"code": "V2445"}}, http.StatusBadRequest},
		{"missing code", gin.H{"type": "family"}, http.StatusBadRequest},
		{"blank sample code", gin.H{"type": "sameDay", "params": gin.H{"code": "  "}}, http.StatusBadRequest},
		{"missing second code", gin.H{"type": "two", "params": gin.H{"code1": "V2445A"}}, http.StatusBadRequest},
		{"malformed code", gin.H{"type": "two", "params": gin.H{"code1": "nope", "code2": "V2445A"}}, http.StatusNotFound},
		{"base code for sample strategy", gin.H{"type": "sameDay", "params": gin.H{"code": "V2445"}}, http.StatusNotFound},
		{"unknown sample same day", gin.H{"type": "sameDay", "params": gin.H{"code": "X9999Z"}}, http.StatusNotFound},
		{"unknown sample all", gin.H{"type": "all", "params": gin.H{"code": "v2445a"}}, http.StatusNotFound},
		{"unknown sample", gin.H{"type": "two", "params": gin.H{"code1": "V2445A", "code2": "X9999Z"}}, http.StatusNotFound},
		{"unknown case", gin.H{"type": "family", "params": gin.H{"code": "V9999"}}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, jsonRequest(http.MethodPost, "/api/compare", tc.body))
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func multipartUpload(t *testing.T, dateFolder string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if dateFolder != "" {
		require.NoError(t, mw.WriteField("dateFolder", dateFolder))
	}
	for name, content := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		h.Set("Content-Type", "text/plain")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadThenCheckCase(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, multipartUpload(t, "14-03-2025", map[string]string{
		"V2450 Tran/a.txt": reportText("V2450A Tran A", [3]string{"vWA", "16", "17"}),
		"V2450 Tran/b.txt": reportText("V2450B Tran B", [3]string{"vWA", "17", "18"}),
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Success bool   `json:"success"`
		Batch   string `json:"batch"`
		Cases   int    `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Cases)
	assert.NotEmpty(t, resp.Batch)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/check-case?dateFolder=14-03-2025&baseCode=V2450", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"exists":true}`, w.Body.String())

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/check-case?dateFolder=15-03-2025&baseCode=V2450", nil))
	assert.JSONEq(t, `{"exists":false}`, w.Body.String())

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/check-case?dateFolder=15-03-2025", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/cases", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var cases []domain.Case
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cases))
	require.Len(t, cases, 1)
	assert.Equal(t, []string{"V2450A", "V2450B"}, cases[0].Codes())

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	assert.JSONEq(t, `{"tables":["14-03-2025"]}`, w.Body.String())
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, multipartUpload(t, "", map[string]string{"a.txt": "x"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, multipartUpload(t, "d1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, jsonRequest(http.MethodPost, "/api/upload", gin.H{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadTooLarge(t *testing.T) {
	repo := repository.New(persistence.NewMemoryStore(), repository.Options{})
	srv := New(Options{
		Comparer:       compare.New(repo, compare.Options{}),
		Ingester:       intake.NewIngestor(repo, intake.Options{}),
		Cases:          repo,
		MaxUploadBytes: 64,
	})
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, multipartUpload(t, "d1", map[string]string{"a.txt": strings.Repeat("x", 1024)}))
	assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, w.Code)
}

func TestReportAndExport(t *testing.T) {
	f := newFixture(t)
	res := domain.ComparisonResult{
		Sample1:    domain.Sample{Code: "V2445B", Name: "Child", Markers: map[string]domain.AllelePair{"vWA": {"17", "18"}}},
		Sample2:    domain.Sample{Code: "V2445A", Name: "Father", Markers: map[string]domain.AllelePair{"vWA": {"16", "17"}}},
		Matches:    []string{"vWA"},
		Mismatches: []string{"Yindel"},
		Conclusion: domain.ConclusionBloodRelation,
	}
	w := f.do(t, jsonRequest(http.MethodPost, "/api/report", res))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data report.Data
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	assert.Equal(t, "V2445A Father_Child.docx", data.Filename)
	assert.True(t, data.ShowPercentage)
	assert.Equal(t, "18", data.Fields["vWA_values1_1"])

	w = f.do(t, jsonRequest(http.MethodPost, "/api/report", gin.H{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, jsonRequest(http.MethodPost, "/api/export", []domain.ComparisonResult{res}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "V2445B,Child,V2445A,Father,1,1,Yindel,Blood Relation"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.do(t, jsonRequest(http.MethodPost, "/api/compare", gin.H{"type": "family", "params": gin.H{"code": "V2445"}}))

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "markercompare_comparisons_total")
	assert.Contains(t, w.Body.String(), `operation="compare.family"`)
}

type brokenCases struct{}

func (brokenCases) CheckCase(context.Context, string, string) (bool, error) {
	return false, errors.New("backend down")
}
func (brokenCases) AllCases(context.Context) ([]domain.Case, error) { return nil, errors.New("backend down") }
func (brokenCases) Tables(context.Context) ([]string, error)        { return nil, errors.New("backend down") }

func TestBackendFailuresMapTo500(t *testing.T) {
	srv := New(Options{Cases: brokenCases{}, Comparer: compare.New(brokenCases{}, compare.Options{})})
	r := srv.Router()
	for _, path := range []string{"/api/cases", "/api/tables", "/api/check-case?dateFolder=d&baseCode=V2445"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code, path)
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrNotFound{Entity: domain.EntitySample, ID: "x"}))
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.ErrInvalidInput{Reason: "x"}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("x")))
}
