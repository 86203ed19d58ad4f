package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cs2kz-api/internal/api/middleware"
	"cs2kz-api/internal/auth"
	"cs2kz-api/internal/store/storetest"
)

const testSecret = "middleware-test-secret-0123456789"

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	db    *gorm.DB
	codec *auth.Codec
	authn *middleware.Authenticator
	now   time.Time

	// Subtests using the fixture must not run in parallel.
	logs *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	codec := auth.NewCodec(testSecret)
	codec.Now = func() time.Time { return now }

	db := storetest.New(t)
	logs := &bytes.Buffer{}
	return &fixture{
		db:    db,
		codec: codec,
		now:   now,
		logs:  logs,
		authn: &middleware.Authenticator{
			DB:     db,
			Codec:  codec,
			Logger: slog.New(slog.NewTextHandler(logs, nil)),
		},
	}
}

// checkReason asserts the logged rejection reason. An empty want means
// nothing may have been rejected.
func (f *fixture) checkReason(t *testing.T, want string) {
	t.Helper()

	logs := f.logs.String()
	if want == "" {
		if strings.Contains(logs, "reason=") {
			t.Errorf("unexpected rejection logged: %s", logs)
		}
		return
	}
	if !strings.Contains(logs, "reason="+strconv.Quote(want)) {
		t.Errorf("log does not contain reason %q: %s", want, logs)
	}
}

func (f *fixture) token(t *testing.T, subject string, payload any, ttl time.Duration) string {
	t.Helper()

	token, err := f.codec.Encode(subject, payload, ttl)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return token
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
