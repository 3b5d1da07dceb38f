package wizard_test

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"

	"campreg/internal/adapters/wizard"
	"campreg/internal/blob"
	"campreg/internal/catalog"
	"campreg/internal/core"
	"campreg/internal/infra/persistence/memory"
	"campreg/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	handler   *wizard.Handler
	store     *memory.Store
	transport *blob.S3MockTransport
}

func setup(t *testing.T) fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := core.NewMetrics(reg)
	store := memory.NewStore()
	remote, transport := blob.NewMockS3ForTests()
	engine, err := core.NewSyncEngine(remote, core.WithSyncMetrics(metrics))
	require.NoError(t, err)
	cat := catalog.Default()
	w, err := core.NewWizard(store, engine, core.WithCampAvailability(cat), core.WithMetrics(metrics))
	require.NoError(t, err)
	return fixture{
		handler:   wizard.NewHandler(w, cat, wizard.WithGatherer(reg)),
		store:     store,
		transport: transport,
	}
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	return resp
}

func decodeView(t *testing.T, resp *httptest.ResponseRecorder) core.WizardView {
	t.Helper()
	var v core.WizardView
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v))
	return v
}

func (f fixture) completeSteps(t *testing.T) {
	t.Helper()
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/api/v1/wizard/record", `{"personalInfo":{"age":"10"}}`).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/wizard/advance", "").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/v1/wizard/camps/Swimming", `{"selected":true}`).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/wizard/advance", "").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/api/v1/wizard/record",
		`{"email":"a@b.com","guardianName":"Jane Doe","consent":true}`).Code)
}

func TestViewStartsAtFirstStep(t *testing.T) {
	f := setup(t)
	resp := f.do(t, http.MethodGet, "/api/v1/wizard", "")
	require.Equal(t, http.StatusOK, resp.Code)
	v := decodeView(t, resp)
	assert.Equal(t, 0, v.Index)
	assert.Equal(t, "Personal Information", v.Label)
	assert.Equal(t, core.SyncIdle, v.Sync.State)
}

func TestAdvanceWithoutCampIsUnprocessable(t *testing.T) {
	f := setup(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/wizard/advance", "").Code)
	resp := f.do(t, http.MethodPost, "/api/v1/wizard/advance", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Contains(t, resp.Body.String(), string(domain.KindStepIncomplete))
}

func TestRetreatAtFirstStepConflicts(t *testing.T) {
	f := setup(t)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/v1/wizard/retreat", "").Code)
}

func TestFullCampIsRefused(t *testing.T) {
	f := setup(t)
	resp := f.do(t, http.MethodPut, "/api/v1/wizard/camps/Basketball", `{"selected":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Contains(t, resp.Body.String(), string(domain.KindCampUnavailable))
}

func TestFullCampIsRefusedInRecordPatch(t *testing.T) {
	f := setup(t)
	resp := f.do(t, http.MethodPatch, "/api/v1/wizard/record", `{"selectedCamps":{"Basketball":true}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Contains(t, resp.Body.String(), string(domain.KindCampUnavailable))

	v := decodeView(t, f.do(t, http.MethodGet, "/api/v1/wizard", ""))
	assert.Empty(t, v.Record.SelectedCamps)
}

func TestPersonalInfoAcceptsScalars(t *testing.T) {
	f := setup(t)
	resp := f.do(t, http.MethodPatch, "/api/v1/wizard/record",
		`{"personalInfo":{"age":10,"member":true,"shirt":"M","notes":null}}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	v := decodeView(t, resp)
	assert.Equal(t, map[string]string{"age": "10", "member": "true", "shirt": "M", "notes": ""}, v.Record.PersonalInfo)

	nested := f.do(t, http.MethodPatch, "/api/v1/wizard/record", `{"personalInfo":{"address":{"city":"Austin"}}}`)
	assert.Equal(t, http.StatusBadRequest, nested.Code)
	assert.Contains(t, nested.Body.String(), "personalInfo.address")
}

func TestBadBodies(t *testing.T) {
	f := setup(t)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, "/api/v1/wizard/record", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/v1/wizard/camps/Art", `nope`).Code)
}

func TestSubmitSyncedAndMetrics(t *testing.T) {
	f := setup(t)
	f.completeSteps(t)

	resp := f.do(t, http.MethodPost, "/api/v1/wizard/submit", "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var body struct {
		Saved  bool `json:"saved"`
		Synced bool `json:"synced"`
		Result struct {
			Record domain.RegistrationRecord `json:"record"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.True(t, body.Saved)
	assert.True(t, body.Synced)
	assert.NotEmpty(t, body.Result.Record.ID)
	assert.Equal(t, 1, f.transport.Objects(core.DefaultKeyPrefix))

	metrics := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), `campreg_submits_total{result="staged"} 1`)
	assert.Contains(t, metrics.Body.String(), `campreg_sync_attempts_total{outcome="succeeded"} 1`)
}

func TestSubmitOfflineIsAcceptedThenResynced(t *testing.T) {
	f := setup(t)
	f.completeSteps(t)
	f.transport.FailNext(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED})

	resp := f.do(t, http.MethodPost, "/api/v1/wizard/submit", "")
	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.Contains(t, resp.Body.String(), `"saved":true`)
	assert.Contains(t, resp.Body.String(), `"synced":false`)

	status := f.do(t, http.MethodGet, "/api/v1/sync", "")
	assert.Contains(t, status.Body.String(), `"state":"failed"`)
	assert.Contains(t, status.Body.String(), string(domain.KindNetworkUnavailable))

	retry := f.do(t, http.MethodPost, "/api/v1/sync", "")
	require.Equal(t, http.StatusOK, retry.Code, retry.Body.String())
	assert.Equal(t, 1, f.transport.Objects(core.DefaultKeyPrefix))
}

func TestSubmitStoreUnavailable(t *testing.T) {
	f := setup(t)
	f.completeSteps(t)
	f.store.FailNext(syscall.EACCES)
	resp := f.do(t, http.MethodPost, "/api/v1/wizard/submit", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), `"retryable":true`)
}

func TestResyncWithNothingStaged(t *testing.T) {
	f := setup(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/v1/sync", "").Code)
}

func TestResetReturnsToStart(t *testing.T) {
	f := setup(t)
	f.completeSteps(t)
	v := decodeView(t, f.do(t, http.MethodPost, "/api/v1/wizard/reset", ""))
	assert.Equal(t, 0, v.Index)
	assert.Empty(t, v.Record.Email)
}

func TestCatalogAndHealth(t *testing.T) {
	f := setup(t)
	resp := f.do(t, http.MethodGet, "/api/v1/catalog", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"spanish"`)
	assert.Contains(t, resp.Body.String(), `"name":"Basketball"`)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[domain.ErrorKind]int{
		domain.KindStepIncomplete:       http.StatusUnprocessableEntity,
		domain.KindSubmissionInProgress: http.StatusConflict,
		domain.KindStoreUnavailable:     http.StatusServiceUnavailable,
		domain.KindRemoteRejected:       http.StatusBadGateway,
		domain.KindTimeout:              http.StatusGatewayTimeout,
	}
	for kind, want := range cases {
		assert.Equal(t, want, wizard.StatusFor(domain.NewError(kind, "x")), kind)
	}
	assert.Equal(t, http.StatusInternalServerError, wizard.StatusFor(assert.AnError))
}
