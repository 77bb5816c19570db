package apiserver

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"sifter/internal/db/dbtest"
	"sifter/internal/models"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHandleHealth(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/health", nil)

	handleHealth(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHandleGetDigestFound(t *testing.T) {
	store := dbtest.New()
	store.Digests["d1"] = &models.Digest{ID: "d1", Status: models.DigestStatusReady}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/digests/d1", nil)
	c.Params = gin.Params{{Key: "id", Value: "d1"}}

	handleGetDigest(store)(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleGetDigestNotFound(t *testing.T) {
	store := dbtest.New()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/digests/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handleGetDigest(store)(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAuth0MiddlewareNoopWhenUnconfigured(t *testing.T) {
	os.Unsetenv("AUTH0_DOMAIN")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/digests/users/u1/trigger", nil)

	Auth0Middleware()(c)
	if c.IsAborted() {
		t.Fatal("expected middleware to pass through when AUTH0_DOMAIN is unset")
	}
}
