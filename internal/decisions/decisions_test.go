package decisions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chibuike-kt/risk-engine/internal/audit"
	"github.com/chibuike-kt/risk-engine/internal/events"
	"github.com/chibuike-kt/risk-engine/internal/profiles"
	"github.com/chibuike-kt/risk-engine/internal/risk"
	"github.com/chibuike-kt/risk-engine/internal/sanctions"
	"github.com/chibuike-kt/risk-engine/internal/txn"
	"github.com/chibuike-kt/risk-engine/internal/validation"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []events.Message
	keys []string
}

func (r *recordingPublisher) Publish(_ context.Context, key string, msg events.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

type fixture struct {
	service   *Service
	store     *MemoryStore
	profiles  *profiles.MemoryStore
	sanctions *sanctions.Service
	ledger    *audit.Ledger
	events    *audit.MemoryStore
	published *recordingPublisher
}

func newFixtureWithStore(store Store, mem *MemoryStore) *fixture {
	clock := func() time.Time { return testNow }
	tx := txn.NewMemoryManager()
	auditStore := audit.NewMemoryStore()
	ledger := audit.NewLedger(auditStore, tx).WithClock(clock)
	profileStore := profiles.NewMemoryStore()
	sanctionsSvc := sanctions.NewService(sanctions.NewMemoryStore(), ledger, tx)
	engine := risk.NewEngine(risk.DefaultConfig()).WithClock(clock)
	pub := &recordingPublisher{}

	svc := NewService(store, profileStore, sanctionsSvc, engine, ledger, tx).
		WithClock(clock).
		WithPublisher(pub)

	return &fixture{
		service:   svc,
		store:     mem,
		profiles:  profileStore,
		sanctions: sanctionsSvc,
		ledger:    ledger,
		events:    auditStore,
		published: pub,
	}
}

func newFixture() *fixture {
	store := NewMemoryStore()
	return newFixtureWithStore(store, store)
}

func (f *fixture) auditTypes(t *testing.T) []string {
	t.Helper()
	var out []string
	require.NoError(t, f.events.Scan(context.Background(), func(e *audit.Event) error {
		out = append(out, e.EventType)
		return nil
	}))
	return out
}

func (f *fixture) auditEvents(t *testing.T) []*audit.Event {
	t.Helper()
	var out []*audit.Event
	require.NoError(t, f.events.Scan(context.Background(), func(e *audit.Event) error {
		out = append(out, e)
		return nil
	}))
	return out
}

func sampleInput() Input {
	return Input{
		UserID:       "u_1",
		Action:       "transfer",
		AmountMinor:  5000,
		Currency:     "NGN",
		Counterparty: "acct_42",
	}
}

func strPtr(s string) *string { return &s }

func decode(t *testing.T, body []byte) Response {
	t.Helper()
	var r Response
	require.NoError(t, json.Unmarshal(body, &r))
	return r
}

func TestEvaluate_AllowsOrdinaryAction(t *testing.T) {
	f := newFixture()

	res, err := f.service.Evaluate(context.Background(), "k1", sampleInput())
	require.NoError(t, err)
	assert.False(t, res.Replayed)

	resp := decode(t, res.Body)
	assert.Equal(t, res.DecisionID, resp.DecisionID)
	assert.Nil(t, resp.CaseID)
	assert.Equal(t, risk.OutcomeAllow, resp.Outcome)
	assert.Equal(t, 0, resp.RiskScore)
	assert.Equal(t, risk.TierLow, resp.RiskTier)
	assert.Empty(t, resp.Reasons)

	// Absent fields are explicit in the wire format.
	assert.Contains(t, string(res.Body), `"case_id":null`)
	assert.Contains(t, string(res.Body), `"reasons":[]`)
	assert.Contains(t, string(res.Body), `"signals":{"recent_count_in_window":0,"daily_total_before":0,"z_score":5000}`)

	assert.Len(t, f.store.Decisions(), 1)
	assert.Equal(t, []string{audit.EventDecisionCreated}, f.auditTypes(t))
	assert.Equal(t, 1, f.published.count())
	assert.Equal(t, events.TypeDecisionEvaluated, f.published.msgs[0].Type)
	assert.Equal(t, "u_1", f.published.keys[0])
}

func TestEvaluate_ReplayIsByteIdentical(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.service.Evaluate(ctx, "k1", sampleInput())
	require.NoError(t, err)

	second, err := f.service.Evaluate(ctx, "k1", sampleInput())
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, first.DecisionID, second.DecisionID)
	assert.Len(t, f.store.Decisions(), 1)
	assert.Len(t, f.auditTypes(t), 1, "replay appends no audit events")
	assert.Equal(t, 1, f.published.count(), "replay publishes nothing")
}

func TestEvaluate_ConflictOnChangedPayload(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.service.Evaluate(ctx, "k1", sampleInput())
	require.NoError(t, err)

	changed := sampleInput()
	changed.AmountMinor = 5001
	_, err = f.service.Evaluate(ctx, "k1", changed)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)

	withDevice := sampleInput()
	withDevice.DeviceID = strPtr("dev_1")
	_, err = f.service.Evaluate(ctx, "k1", withDevice)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)

	assert.Len(t, f.store.Decisions(), 1)
	assert.Len(t, f.auditTypes(t), 1)
}

func TestEvaluate_SanctionedCounterpartyIsBlocked(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.sanctions.Add(ctx, "", "0xBAD")
	require.NoError(t, err)

	in := sampleInput()
	in.Counterparty = "0xBAD"
	res, err := f.service.Evaluate(ctx, "k-bad", in)
	require.NoError(t, err)

	resp := decode(t, res.Body)
	assert.Equal(t, risk.OutcomeBlock, resp.Outcome)
	assert.Equal(t, risk.TierHigh, resp.RiskTier)
	assert.Equal(t, 100, resp.RiskScore)
	require.NotEmpty(t, resp.Reasons)
	assert.Equal(t, risk.ReasonSanctionsHit, resp.Reasons[0].Code)
	assert.Nil(t, resp.CaseID, "blocked actions are not queued for review")

	assert.Equal(t, []string{audit.EventSanctionsAdded, audit.EventDecisionCreated}, f.auditTypes(t))
}

func TestEvaluate_HoldOpensCase(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := sampleInput()
	in.AmountMinor = 300000
	res, err := f.service.Evaluate(ctx, "k-big", in)
	require.NoError(t, err)

	resp := decode(t, res.Body)
	assert.Equal(t, risk.OutcomeHold, resp.Outcome)
	assert.Equal(t, 70, resp.RiskScore)
	require.NotNil(t, resp.CaseID)

	c, err := f.service.GetCase(ctx, *resp.CaseID)
	require.NoError(t, err)
	assert.Equal(t, CaseOpen, c.Status)
	assert.Equal(t, res.DecisionID, c.DecisionID)
	assert.Equal(t, "u_1", c.UserID)
	assert.Equal(t, risk.OutcomeHold, c.Outcome)
	assert.Equal(t, testNow, c.OpenedAt)

	evts := f.auditEvents(t)
	require.Len(t, evts, 2)
	assert.Equal(t, audit.EventDecisionCreated, evts[0].EventType)
	assert.Equal(t, res.DecisionID, evts[0].SubjectID)
	assert.Equal(t, audit.EventCaseOpened, evts[1].EventType)
	assert.Equal(t, *resp.CaseID, evts[1].SubjectID)
	assert.Equal(t, audit.ActorSystem, *evts[1].Actor)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(evts[0].Payload, &payload))
	assert.Equal(t, *resp.CaseID, payload["case_id"])
	assert.Equal(t, "HOLD", payload["outcome"])
	assert.EqualValues(t, 300000, payload["amount_minor"])

	res2, err := f.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, res2.OK)
}

func TestEvaluate_DeviceAndGeoChangeNeedsReview(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first := sampleInput()
	first.DeviceID = strPtr("dev_a")
	first.Country = strPtr("NG")
	_, err := f.service.Evaluate(ctx, "k1", first)
	require.NoError(t, err)

	second := sampleInput()
	second.DeviceID = strPtr("dev_b")
	second.Country = strPtr("GH")
	res, err := f.service.Evaluate(ctx, "k2", second)
	require.NoError(t, err)

	resp := decode(t, res.Body)
	assert.Equal(t, risk.OutcomeReview, resp.Outcome)
	assert.Equal(t, 50, resp.RiskScore)
	assert.NotNil(t, resp.CaseID)

	p, err := f.profiles.Get(ctx, "u_1")
	require.NoError(t, err)
	assert.Equal(t, "dev_b", *p.LastDeviceID)
	assert.Equal(t, "GH", *p.LastCountry)
	assert.Equal(t, 50, p.RiskScore)
	assert.Equal(t, risk.TierMedium, p.RiskTier)
}

func TestEvaluate_VelocityCountsPriorDecisions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := f.service.Evaluate(ctx, fmt.Sprintf("k%d", i), sampleInput())
		require.NoError(t, err)
	}

	res, err := f.service.Evaluate(ctx, "k-final", sampleInput())
	require.NoError(t, err)

	resp := decode(t, res.Body)
	assert.Equal(t, int64(6), resp.Signals.RecentCountInWindow)
	assert.Equal(t, int64(30000), resp.Signals.DailyTotalBefore)
	require.Len(t, resp.Reasons, 1)
	assert.Equal(t, risk.ReasonVelocity, resp.Reasons[0].Code)
	assert.Equal(t, "too_many_actions_in_window count=6", resp.Reasons[0].Detail)
}

func TestEvaluate_UpdatesRollingBaseline(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := sampleInput()
	in.AmountMinor = 100
	_, err := f.service.Evaluate(ctx, "k1", in)
	require.NoError(t, err)

	in.AmountMinor = 300
	_, err = f.service.Evaluate(ctx, "k2", in)
	require.NoError(t, err)

	p, err := f.profiles.Get(ctx, "u_1")
	require.NoError(t, err)
	assert.InDelta(t, 200.0, p.BaselineMean, 1e-9)
	assert.InDelta(t, 100.0, p.BaselineStd, 1e-9)
}

func TestEvaluate_BaselineWindowLimitsHistory(t *testing.T) {
	f := newFixture()
	f.service.WithBaselineWindow(1)
	ctx := context.Background()

	for i, amount := range []int64{1000, 10, 30} {
		in := sampleInput()
		in.AmountMinor = amount
		_, err := f.service.Evaluate(ctx, fmt.Sprintf("k%d", i), in)
		require.NoError(t, err)
	}

	p, err := f.profiles.Get(ctx, "u_1")
	require.NoError(t, err)
	assert.InDelta(t, 20.0, p.BaselineMean, 1e-9, "only the latest prior amount plus the current one")
	assert.InDelta(t, 10.0, p.BaselineStd, 1e-9)
}

func TestEvaluate_ValidationHappensBeforePersistence(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.service.Evaluate(ctx, "", sampleInput())
	var verrs validation.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "idempotency_key", verrs[0].Field)

	neg := sampleInput()
	neg.AmountMinor = -1
	_, err = f.service.Evaluate(ctx, "k1", neg)
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "amount_minor", verrs[0].Field)

	missing := sampleInput()
	missing.Counterparty = "  "
	_, err = f.service.Evaluate(ctx, "k1", missing)
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "counterparty", verrs[0].Field)

	assert.Empty(t, f.store.Decisions())
	assert.Empty(t, f.auditTypes(t))
}

func TestEvaluate_ConcurrentSameKeyProducesOneDecision(t *testing.T) {
	f := newFixture()

	const n = 10
	bodies := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.service.Evaluate(context.Background(), "same-key", sampleInput())
			if assert.NoError(t, err) {
				bodies[i] = res.Body
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.store.Decisions(), 1)
	for i := 1; i < n; i++ {
		assert.Equal(t, bodies[0], bodies[i])
	}
}

type failingIdempotencyStore struct {
	*MemoryStore
}

func (s failingIdempotencyStore) SaveIdempotency(context.Context, *IdempotencyRecord) error {
	return errors.New("disk full")
}

func TestEvaluate_FailureLeavesNoPartialState(t *testing.T) {
	mem := NewMemoryStore()
	f := newFixtureWithStore(failingIdempotencyStore{mem}, mem)
	ctx := context.Background()

	in := sampleInput()
	in.AmountMinor = 300000 // opens a case before the failure
	_, err := f.service.Evaluate(ctx, "k1", in)
	require.ErrorContains(t, err, "disk full")

	assert.Empty(t, mem.Decisions())
	cases, err := mem.ListCases(ctx, CaseOpen, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, cases)

	_, err = f.profiles.Get(ctx, "u_1")
	assert.ErrorIs(t, err, profiles.ErrProfileNotFound)
	assert.Empty(t, f.auditTypes(t))
	assert.Equal(t, 0, f.published.count())
}

func openCase(t *testing.T, f *fixture, key string) string {
	t.Helper()
	in := sampleInput()
	in.AmountMinor = 300000
	res, err := f.service.Evaluate(context.Background(), key, in)
	require.NoError(t, err)
	resp := decode(t, res.Body)
	require.NotNil(t, resp.CaseID)
	return *resp.CaseID
}

func TestResolveCase_ExactlyOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := openCase(t, f, "k1")

	require.NoError(t, f.service.ResolveCase(ctx, id, "approve", "looks fine", ""))

	err := f.service.ResolveCase(ctx, id, "DENY", "", "bob")
	assert.ErrorIs(t, err, ErrCaseNotOpen)

	c, err := f.service.GetCase(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, CaseResolved, c.Status)
	require.NotNil(t, c.Resolution)
	assert.Equal(t, ResolutionApprove, *c.Resolution)
	assert.Equal(t, "looks fine", *c.Notes)
	assert.Equal(t, testNow, *c.ResolvedAt)

	evts := f.auditEvents(t)
	last := evts[len(evts)-1]
	assert.Equal(t, audit.EventCaseResolved, last.EventType)
	assert.Equal(t, id, last.SubjectID)
	assert.Equal(t, DefaultResolveActor, *last.Actor)
	assert.JSONEq(t, `{"notes":"looks fine","resolution":"APPROVE"}`, string(last.Payload))
}

func TestResolveCase_Errors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	assert.ErrorIs(t, f.service.ResolveCase(ctx, "nope", "APPROVE", "", ""), ErrCaseNotOpen)

	var verrs validation.ValidationErrors
	assert.ErrorAs(t, f.service.ResolveCase(ctx, "nope", "MAYBE", "", ""), &verrs)
	assert.ErrorAs(t, f.service.ResolveCase(ctx, "nope", "", "", ""), &verrs)
}

func TestListCases(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := openCase(t, f, "k1")
	openCase(t, f, "k2")
	require.NoError(t, f.service.ResolveCase(ctx, a, "DENY", "", "alice"))

	open, err := f.service.ListCases(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, open.Cases, 1)
	assert.False(t, open.HasMore)

	resolved, err := f.service.ListCases(ctx, "resolved", "")
	require.NoError(t, err)
	require.Len(t, resolved.Cases, 1)
	assert.Equal(t, a, resolved.Cases[0].ID)

	var verrs validation.ValidationErrors
	_, err = f.service.ListCases(ctx, "pending", "")
	assert.ErrorAs(t, err, &verrs)
	_, err = f.service.ListCases(ctx, "open", "%%%")
	assert.ErrorAs(t, err, &verrs)
}

func TestListCases_Paginates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.service.WithCaseListLimit(2)

	want := map[string]bool{}
	for _, key := range []string{"k1", "k2", "k3"} {
		want[openCase(t, f, key)] = true
	}

	first, err := f.service.ListCases(ctx, "OPEN", "")
	require.NoError(t, err)
	require.Len(t, first.Cases, 2)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextCursor)

	second, err := f.service.ListCases(ctx, "open", first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Cases, 1)
	assert.False(t, second.HasMore)
	assert.Empty(t, second.NextCursor)

	got := map[string]bool{}
	for _, c := range append(first.Cases, second.Cases...) {
		got[c.ID] = true
	}
	assert.Equal(t, want, got)
	// Same opened_at everywhere, so ties fall back to ID descending.
	assert.Greater(t, first.Cases[0].ID, first.Cases[1].ID)
	assert.Greater(t, first.Cases[1].ID, second.Cases[0].ID)
}

func TestRequestHash_NullOptionals(t *testing.T) {
	h1, err := sampleInput().RequestHash()
	require.NoError(t, err)

	in := sampleInput()
	in.Country = strPtr("")
	h2, err := in.RequestHash()
	require.NoError(t, err)

	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, h2, "absent and empty optionals fingerprint differently")
}

// --- HTTP ---

func setupRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(f.service).RegisterRoutes(r.Group(""))
	return r
}

func doJSON(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const evaluateBody = `{"user_id":"u_1","action":"transfer","amount_minor":5000,"currency":"NGN","counterparty":"acct_42"}`

func TestHandler_EvaluateAndReplay(t *testing.T) {
	r := setupRouter(newFixture())

	w1 := doJSON(r, http.MethodPost, "/evaluate", evaluateBody, map[string]string{IdempotencyHeader: "h-1"})
	require.Equal(t, http.StatusOK, w1.Code)
	assert.Empty(t, w1.Header().Get("Idempotent-Replayed"))

	w2 := doJSON(r, http.MethodPost, "/evaluate", evaluateBody, map[string]string{IdempotencyHeader: "h-1"})
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "true", w2.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, w1.Body.String(), w2.Body.String())
}

func TestHandler_HeaderKeyWinsOverBody(t *testing.T) {
	f := newFixture()
	r := setupRouter(f)

	body := strings.TrimSuffix(evaluateBody, "}") + `,"idempotency_key":"body-key"}`
	w := doJSON(r, http.MethodPost, "/evaluate", body, map[string]string{IdempotencyHeader: "header-key"})
	require.Equal(t, http.StatusOK, w.Code)

	_, err := f.store.GetIdempotency(context.Background(), "header-key")
	assert.NoError(t, err)
	_, err = f.store.GetIdempotency(context.Background(), "body-key")
	assert.ErrorIs(t, err, ErrIdempotencyNotFound)

	// Body key alone is honoured.
	w = doJSON(r, http.MethodPost, "/evaluate", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, err = f.store.GetIdempotency(context.Background(), "body-key")
	assert.NoError(t, err)
}

func TestHandler_EvaluateErrors(t *testing.T) {
	r := setupRouter(newFixture())

	w := doJSON(r, http.MethodPost, "/evaluate", evaluateBody, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"idempotency_key"`)

	noAmount := `{"user_id":"u_1","action":"transfer","currency":"NGN","counterparty":"acct_42"}`
	w = doJSON(r, http.MethodPost, "/evaluate", noAmount, map[string]string{IdempotencyHeader: "k"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"amount_minor"`)

	w = doJSON(r, http.MethodPost, "/evaluate", `{not json`, map[string]string{IdempotencyHeader: "k"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(r, http.MethodPost, "/evaluate", evaluateBody, map[string]string{IdempotencyHeader: "k"})
	require.Equal(t, http.StatusOK, w.Code)
	changed := strings.Replace(evaluateBody, "5000", "6000", 1)
	w = doJSON(r, http.MethodPost, "/evaluate", changed, map[string]string{IdempotencyHeader: "k"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"idempotency_conflict"`)
}

func TestHandler_Cases(t *testing.T) {
	f := newFixture()
	r := setupRouter(f)
	id := openCase(t, f, "k1")

	w := doJSON(r, http.MethodGet, "/cases", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Cases []Case `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Cases, 1)
	assert.Equal(t, id, list.Cases[0].ID)

	w = doJSON(r, http.MethodGet, "/cases?status=bogus", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(r, http.MethodGet, "/cases?status=resolved", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cases":[],"has_more":false}`, w.Body.String())

	w = doJSON(r, http.MethodGet, "/cases/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"not_found"`)

	w = doJSON(r, http.MethodGet, "/cases/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"OPEN"`)
}

func TestHandler_Resolve(t *testing.T) {
	f := newFixture()
	r := setupRouter(f)
	id := openCase(t, f, "k1")

	w := doJSON(r, http.MethodPost, "/cases/"+id+"/resolve", `{"resolution":"later"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(r, http.MethodPost, "/cases/"+id+"/resolve", `{"resolution":"deny","notes":"mule"}`,
		map[string]string{ActorHeader: "carol"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	evts := f.auditEvents(t)
	assert.Equal(t, "carol", *evts[len(evts)-1].Actor)

	w = doJSON(r, http.MethodPost, "/cases/"+id+"/resolve", `{"resolution":"APPROVE"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"case_not_open_or_missing"`)
}
