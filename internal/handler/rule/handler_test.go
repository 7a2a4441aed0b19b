package rule_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	rulehandler "github.com/berth-ops/notify-api/internal/handler/rule"
	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/internal/service/rule"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
)

type fakeService struct {
	created   *model.Rule
	createErr error
	rule      *model.Rule
	getErr    error
	rules     []*model.Rule
	updated   *model.Rule
	updateErr error
	deletedID uuid.UUID
	deleteErr error
	matrix    model.RuleMatrix
}

func (f *fakeService) CreateRule(ctx context.Context, r *model.Rule) error {
	if f.createErr != nil {
		return f.createErr
	}
	r.ID = uuid.New()
	f.created = r
	return nil
}

func (f *fakeService) GetRule(ctx context.Context, id uuid.UUID) (*model.Rule, error) {
	return f.rule, f.getErr
}

func (f *fakeService) ListRules(ctx context.Context) ([]*model.Rule, error) {
	return f.rules, nil
}

func (f *fakeService) UpdateRule(ctx context.Context, r *model.Rule) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = r
	return nil
}

func (f *fakeService) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedID = id
	return nil
}

func (f *fakeService) Matrix(ctx context.Context) (model.RuleMatrix, error) {
	return f.matrix, nil
}

var _ rule.RuleServicer = (*fakeService)(nil)

func setupRouter(svc rule.RuleServicer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rulehandler.NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestCreateRule(t *testing.T) {
	svc := &fakeService{}
	r := setupRouter(svc)
	channelID := uuid.New()

	w := doJSON(r, http.MethodPost, "/api/v1/rules", `{
		"event_type": "container.crashed",
		"channel_id": "`+channelID.String()+`",
		"min_severity": "critical",
		"cooldown_minutes": 15
	}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	env := decodeEnvelope(t, w)
	assert.Equal(t, "success", env.Status)

	assert.Equal(t, model.EventContainerCrashed, svc.created.EventType)
	assert.Equal(t, channelID, svc.created.ChannelID)
	assert.Equal(t, model.SeverityCritical, svc.created.MinSeverity)
	assert.Equal(t, 15, svc.created.CooldownMinutes)
	assert.True(t, svc.created.Enabled)
}

func TestCreateRuleValidation(t *testing.T) {
	channelID := uuid.NewString()
	cases := []struct {
		name string
		body string
	}{
		{"missing event type", `{"channel_id": "` + channelID + `"}`},
		{"missing channel id", `{"event_type": "deploy.failed"}`},
		{"channel id not a uuid", `{"event_type": "deploy.failed", "channel_id": "abc"}`},
		{"unknown severity", `{"event_type": "deploy.failed", "channel_id": "` + channelID + `", "min_severity": "loud"}`},
		{"negative cooldown", `{"event_type": "deploy.failed", "channel_id": "` + channelID + `", "cooldown_minutes": -1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{}
			r := setupRouter(svc)

			w := doJSON(r, http.MethodPost, "/api/v1/rules", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Nil(t, svc.created)
		})
	}
}

func TestCreateRuleConflict(t *testing.T) {
	svc := &fakeService{createErr: apperrors.NewConflict("rule already exists for this event type and channel", nil)}
	r := setupRouter(svc)

	w := doJSON(r, http.MethodPost, "/api/v1/rules", `{"event_type": "deploy.failed", "channel_id": "`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "rule already exists for this event type and channel", decodeEnvelope(t, w).Message)
}

func TestGetRule(t *testing.T) {
	stored := &model.Rule{Base: model.Base{ID: uuid.New()}, EventType: model.EventDiskSpaceLow, ChannelID: uuid.New(), MinSeverity: model.SeverityWarning}
	svc := &fakeService{rule: stored}
	r := setupRouter(svc)

	w := doJSON(r, http.MethodGet, "/api/v1/rules/"+stored.ID.String(), "")
	assert.Equal(t, http.StatusOK, w.Code)

	var got model.Rule
	assert.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &got))
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, model.SeverityWarning, got.MinSeverity)
}

func TestGetRuleInvalidID(t *testing.T) {
	r := setupRouter(&fakeService{})

	w := doJSON(r, http.MethodGet, "/api/v1/rules/nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid rule ID", decodeEnvelope(t, w).Message)
}

func TestListRules(t *testing.T) {
	svc := &fakeService{rules: []*model.Rule{
		{Base: model.Base{ID: uuid.New()}, EventType: model.EventContainerCrashed},
		{Base: model.Base{ID: uuid.New()}, EventType: model.EventBackupFailed},
	}}
	r := setupRouter(svc)

	w := doJSON(r, http.MethodGet, "/api/v1/rules", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var got []*model.Rule
	assert.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &got))
	assert.Len(t, got, 2)
}

// The static matrix route must win over the :id parameter route.
func TestMatrixRoute(t *testing.T) {
	svc := &fakeService{matrix: model.RuleMatrix{
		model.EventContainerCrashed: {
			{Base: model.Base{ID: uuid.New()}, EventType: model.EventContainerCrashed},
			{Base: model.Base{ID: uuid.New()}, EventType: model.EventContainerCrashed},
		},
	}}
	r := setupRouter(svc)

	w := doJSON(r, http.MethodGet, "/api/v1/rules/matrix", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var got model.RuleMatrix
	assert.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &got))
	assert.Len(t, got[model.EventContainerCrashed], 2)
}

func TestUpdateRule(t *testing.T) {
	svc := &fakeService{}
	r := setupRouter(svc)
	id := uuid.New()
	channelID := uuid.New()

	w := doJSON(r, http.MethodPut, "/api/v1/rules/"+id.String(), `{
		"event_type": "container.crashed",
		"channel_id": "`+channelID.String()+`",
		"enabled": false,
		"min_severity": "info"
	}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, svc.updated.ID)
	assert.Equal(t, channelID, svc.updated.ChannelID)
	assert.False(t, svc.updated.Enabled)
}

func TestUpdateRuleRequiresEnabled(t *testing.T) {
	svc := &fakeService{}
	r := setupRouter(svc)

	w := doJSON(r, http.MethodPut, "/api/v1/rules/"+uuid.NewString(), `{"event_type": "deploy.failed", "channel_id": "`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.updated)
}

func TestDeleteRule(t *testing.T) {
	svc := &fakeService{}
	r := setupRouter(svc)
	id := uuid.New()

	w := doJSON(r, http.MethodDelete, "/api/v1/rules/"+id.String(), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, svc.deletedID)
}

func TestDeleteRuleNotFound(t *testing.T) {
	svc := &fakeService{deleteErr: apperrors.NewNotFound("rule", nil)}
	r := setupRouter(svc)

	w := doJSON(r, http.MethodDelete, "/api/v1/rules/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "rule not found", decodeEnvelope(t, w).Message)
}
