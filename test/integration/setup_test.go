// Package integration exercises the assembled HTTP service: real routing,
// real middleware chain, real token validation, in-memory session store.
// Nothing is mocked below the transport, so these tests catch wiring
// mistakes the package-level tests cannot.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dr-abraham74/paracetamol-OD/internal/domain/assessment"
	"github.com/dr-abraham74/paracetamol-OD/internal/platform/auth"
	"github.com/dr-abraham74/paracetamol-OD/internal/platform/middleware"
	"github.com/dr-abraham74/paracetamol-OD/internal/platform/telemetry"
)

const (
	testSigningKey = "integration-test-signing-key-0123456789"
	testIssuer     = "https://auth.test.local"
	testAudience   = "paracetamol-od-api"
)

// testObserver mirrors the production metrics wiring.
type testObserver struct {
	m *telemetry.Metrics
}

func (o *testObserver) DecisionMade(rec assessment.Recommendation) { o.m.IncDecision(string(rec)) }
func (o *testObserver) IndicationEvaluated(indicated bool)         { o.m.IncIndication(indicated) }
func (o *testObserver) ContinuationEvaluated(continued bool)       { o.m.IncContinuation(continued) }

type testApp struct {
	e       *echo.Echo
	svc     *assessment.Service
	metrics *telemetry.Metrics
}

// newTestApp assembles the service the way the serve command does, with a
// memory store and token auth.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	engine, err := assessment.NewEngine(assessment.DefaultParameters())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	store := assessment.NewMemoryFlowStore(time.Hour)
	t.Cleanup(store.Close)
	svc := assessment.NewService(engine, store)

	metrics := telemetry.New(telemetry.Config{
		ServiceName:    "paracetamol-od",
		ServiceVersion: "test",
		Environment:    "test",
	})
	svc.SetObserver(&testObserver{m: metrics})

	logger := zerolog.Nop()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     testIssuer,
		Audience:   testAudience,
		SigningKey: []byte(testSigningKey),
	}))
	apiV1.Use(middleware.Audit(logger))
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: 1000,
		BurstSize:         1000,
	}))
	assessment.NewHandler(svc).RegisterRoutes(apiV1)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", metrics.Handler())

	return &testApp{e: e, svc: svc, metrics: metrics}
}

// signToken issues a bearer token the app's JWT middleware accepts.
func signToken(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	now := time.Now()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Roles: roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// expiredToken issues a token whose lifetime has already passed.
func expiredToken(t *testing.T) string {
	t.Helper()
	past := time.Now().Add(-2 * time.Hour)
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "dr-late",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
		},
		Roles: []string{"physician"},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// request runs one HTTP request through the app. A nil body sends no
// payload; token "" sends no Authorization header.
func (a *testApp) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// newRawRequest builds a request with a literal body, for payloads the
// json marshaller would refuse or normalise.
func newRawRequest(method, path, body, token string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

func (a *testApp) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// Response shapes as the API serialises them.

type decisionResponse struct {
	ID         uuid.UUID            `json:"id"`
	State      assessment.FlowState `json:"state"`
	Decision   assessment.Decision  `json:"decision"`
	Guidance   []string             `json:"guidance"`
	Disclaimer string               `json:"disclaimer"`
}

type indicationResponse struct {
	ID             uuid.UUID                  `json:"id"`
	State          assessment.FlowState       `json:"state"`
	Indication     assessment.NacIndication   `json:"indication"`
	DosingProtocol *assessment.DosingProtocol `json:"dosing_protocol"`
	Disclaimer     string                     `json:"disclaimer"`
}

type continuationResponse struct {
	ID           uuid.UUID                  `json:"id"`
	State        assessment.FlowState       `json:"state"`
	Continuation assessment.NacContinuation `json:"continuation"`
	Disclaimer   string                     `json:"disclaimer"`
}

type dosingProtocolResponse struct {
	Phase    assessment.Phase          `json:"phase"`
	Protocol assessment.DosingProtocol `json:"protocol"`
}

type listResponse struct {
	Data    []assessment.FlowSession `json:"data"`
	Total   int                      `json:"total"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
	HasMore bool                     `json:"has_more"`
}

// Shared intake fixtures.

func staggeredIntake() assessment.PatientIntake {
	return assessment.PatientIntake{
		AgeYears:       30,
		WeightKg:       70,
		DoseMg:         14000,
		TimeHours:      3,
		IsSelfHarm:     true,
		IsStaggered:    true,
		IsDoseReliable: true,
	}
}

func acuteIntake(timeHours float64) assessment.PatientIntake {
	return assessment.PatientIntake{
		AgeYears:       30,
		WeightKg:       70,
		DoseMg:         10000,
		TimeHours:      timeHours,
		IsSelfHarm:     true,
		IsDoseReliable: true,
	}
}

func cleanBloods() assessment.BloodPanel {
	return assessment.BloodPanel{
		ParacetamolLevelMgL: 2,
		INR:                 1.0,
		ALTIuL:              20,
		CreatinineUmolL:     80,
	}
}
