package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/quotedesk/backend/config"
	"github.com/quotedesk/backend/internal/infrastructure/cache"
	"github.com/quotedesk/backend/internal/infrastructure/store"
	"github.com/quotedesk/backend/internal/usecase"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// setupTestRouter wires the full stack over an in-memory database
func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"*"},
		},
		Matching:  config.MatchingConfig{ConfidenceThreshold: 0.6, BatchWorkers: 2},
		Pricing:   config.PricingConfig{MarginThreshold: 0.15},
		Cache:     config.CacheConfig{TTL: time.Minute},
		RateLimit: config.RateLimitConfig{PerIP: 1000, Burst: 1000},
	}

	db, err := store.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), false)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	orgs := store.NewOrganizationStore(db)
	catalogStore := store.NewCatalogStore(db)
	customers := store.NewCustomerStore(db)
	quotes := store.NewQuoteStore(db)
	snapshots := cache.NewSnapshotCache()

	log := zerolog.Nop()
	matcher := usecase.NewMatchingService(usecase.MatchConfig{
		ConfidenceThreshold: cfg.Matching.ConfidenceThreshold,
		BatchWorkers:        cfg.Matching.BatchWorkers,
	}, log)
	totals := usecase.NewTotalsService(usecase.TotalsConfig{
		MarginThreshold: cfg.Pricing.MarginThreshold,
		DefaultTaxRate:  cfg.Pricing.DefaultTaxRate,
	})
	catalogSvc := usecase.NewCatalogService(catalogStore, snapshots, log)
	quoteSvc := usecase.NewQuoteService(orgs, catalogStore, customers, quotes, snapshots, matcher, totals, cfg.Cache.TTL, log)

	handler := NewHandler(orgs, catalogSvc, matcher, quoteSvc, catalogStore)
	return SetupRouter(cfg, handler, log)
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
			t.Fatalf("%s %s: invalid JSON response %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, response
}

// seedOrgAndCatalog creates an organization and imports a small catalog,
// returning the org id path segment
func seedOrgAndCatalog(t *testing.T, router *gin.Engine) string {
	t.Helper()

	w, org := doJSON(t, router, "POST", "/api/v1/orgs",
		`{"name":"Acme Supply","defaultTaxRate":"0.08"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create org: status %d body %s", w.Code, w.Body.String())
	}
	orgID := fmt.Sprintf("%v", org["id"])

	csv := "sku,name,unit_price,cost\n" +
		"PVC-640,6 in Schedule 40 PVC Pipe,12.50,9.75\n" +
		"BV-2,2 in Brass Ball Valve,45.00,43.00\n"
	req := httptest.NewRequest("POST", "/api/v1/orgs/"+orgID+"/catalog/import", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)
	if w2.Code != http.StatusOK {
		t.Fatalf("import catalog: status %d body %s", w2.Code, w2.Body.String())
	}
	return orgID
}

func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		router := setupTestRouter(t)

		w, response := doJSON(t, router, "GET", "/health", "")
		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if response["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", response["status"])
		}
		if response["service"] != "quotedesk-backend" {
			t.Errorf("service = %v, want quotedesk-backend", response["service"])
		}
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		router := setupTestRouter(t)
		for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
			w, _ := doJSON(t, router, method, "/health", "")
			if w.Code != http.StatusNotFound {
				t.Errorf("Method %s: Status = %d, want %d", method, w.Code, http.StatusNotFound)
			}
		}
	})
}

func TestMatchEndpoints(t *testing.T) {
	t.Run("single item match resolves against the imported catalog", func(t *testing.T) {
		router := setupTestRouter(t)
		orgID := seedOrgAndCatalog(t, router)

		w, response := doJSON(t, router, "POST", "/api/v1/orgs/"+orgID+"/match",
			`{"name":"6 inch Schedule 40 PVC Pipe"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
		}
		if response["matchType"] != "fuzzy_token" {
			t.Errorf("matchType = %v, want fuzzy_token", response["matchType"])
		}
		if response["score"].(float64) < 0.6 {
			t.Errorf("score = %v, want >= 0.6", response["score"])
		}
	})

	t.Run("sku hint wins as exact_sku", func(t *testing.T) {
		router := setupTestRouter(t)
		orgID := seedOrgAndCatalog(t, router)

		w, response := doJSON(t, router, "POST", "/api/v1/orgs/"+orgID+"/match",
			`{"name":"some valve","skuHint":"bv-2"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
		}
		if response["matchType"] != "exact_sku" {
			t.Errorf("matchType = %v, want exact_sku", response["matchType"])
		}
	})

	t.Run("competitor ref dominates the cascade", func(t *testing.T) {
		router := setupTestRouter(t)
		orgID := seedOrgAndCatalog(t, router)

		// Point ACME-100 at the ball valve, then match by the competitor code
		w, catalog := doJSON(t, router, "GET", "/api/v1/orgs/"+orgID+"/catalog", "")
		if w.Code != http.StatusOK {
			t.Fatalf("list catalog: %d", w.Code)
		}
		items := catalog["items"].([]any)
		valveID := items[1].(map[string]any)["id"].(float64)

		w, _ = doJSON(t, router, "POST", "/api/v1/orgs/"+orgID+"/competitor-refs",
			fmt.Sprintf(`{"refs":[{"competitorSku":"ACME-100","productId":%d}]}`, int(valveID)))
		if w.Code != http.StatusOK {
			t.Fatalf("upload refs: %d body %s", w.Code, w.Body.String())
		}

		w, response := doJSON(t, router, "POST", "/api/v1/orgs/"+orgID+"/match",
			`{"name":"whatever","skuHint":"ACME-100"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
		}
		if response["matchType"] != "competitor_xref" {
			t.Errorf("matchType = %v, want competitor_xref", response["matchType"])
		}
		if response["productId"].(float64) != valveID {
			t.Errorf("productId = %v, want %v", response["productId"], valveID)
		}
	})

	t.Run("batch match preserves input order", func(t *testing.T) {
		router := setupTestRouter(t)
		orgID := seedOrgAndCatalog(t, router)

		w, response := doJSON(t, router, "POST", "/api/v1/orgs/"+orgID+"/match/batch",
			`{"items":[{"name":"nothing matches this zzz"},{"name":"2 in brass ball valve"}]}`)
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
		}
		results := response["results"].([]any)
		if len(results) != 2 {
			t.Fatalf("results = %d, want 2", len(results))
		}
		if results[0].(map[string]any)["matchType"] != "none" {
			t.Errorf("results[0].matchType = %v, want none", results[0].(map[string]any)["matchType"])
		}
		if results[1].(map[string]any)["matchType"] != "fuzzy_token" {
			t.Errorf("results[1].matchType = %v, want fuzzy_token", results[1].(map[string]any)["matchType"])
		}
	})

	t.Run("suggestions require a query", func(t *testing.T) {
		router := setupTestRouter(t)
		orgID := seedOrgAndCatalog(t, router)

		w, _ := doJSON(t, router, "GET", "/api/v1/orgs/"+orgID+"/suggestions", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}

		w, response := doJSON(t, router, "GET", "/api/v1/orgs/"+orgID+"/suggestions?q=pvc+pipe", "")
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
		}
		if response["suggestions"] == nil {
			t.Error("expected suggestions field")
		}
	})
}

func TestQuoteLifecycle(t *testing.T) {
	router := setupTestRouter(t)
	orgID := seedOrgAndCatalog(t, router)
	base := "/api/v1/orgs/" + orgID + "/quotes"

	createBody := `{
		"customerName": "Jones Plumbing",
		"sourceEmailId": "msg-001",
		"items": [
			{"name": "6 inch Schedule 40 PVC Pipe", "quantity": "100"},
			{"name": "mystery widget deluxe", "unitPriceGuess": "3.00"}
		]
	}`

	w, response := doJSON(t, router, "POST", base, createBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("create quote: status %d body %s", w.Code, w.Body.String())
	}
	quote := response["quote"].(map[string]any)
	quoteID := fmt.Sprintf("%v", quote["id"])
	if quote["subtotal"] != "1253" {
		t.Errorf("subtotal = %v, want 1253", quote["subtotal"])
	}
	if quote["total"] != "1353.24" {
		t.Errorf("total = %v, want 1353.24", quote["total"])
	}

	t.Run("replay returns 200 with the existing quote", func(t *testing.T) {
		w, response := doJSON(t, router, "POST", base, createBody)
		if w.Code != http.StatusOK {
			t.Errorf("replay status = %d, want %d", w.Code, http.StatusOK)
		}
		if response["created"] != false {
			t.Errorf("created = %v, want false", response["created"])
		}
		replayed := response["quote"].(map[string]any)
		if fmt.Sprintf("%v", replayed["id"]) != quoteID {
			t.Errorf("replay quote id = %v, want %s", replayed["id"], quoteID)
		}
	})

	t.Run("get returns quote with margin flags", func(t *testing.T) {
		w, response := doJSON(t, router, "GET", base+"/"+quoteID, "")
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
		}
		if response["quote"] == nil {
			t.Error("expected quote field")
		}
	})

	t.Run("item add, edit and delete recompute totals", func(t *testing.T) {
		w, quote := doJSON(t, router, "POST", base+"/"+quoteID+"/items",
			`{"description":"freight","quantity":"1","unitPrice":"47.00"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("add item: %d body %s", w.Code, w.Body.String())
		}
		if quote["subtotal"] != "1300" {
			t.Errorf("subtotal after add = %v, want 1300", quote["subtotal"])
		}

		items := quote["items"].([]any)
		freightID := fmt.Sprintf("%v", items[len(items)-1].(map[string]any)["id"])

		w, quote = doJSON(t, router, "PUT", base+"/"+quoteID+"/items/"+freightID,
			`{"description":"freight","quantity":"2","unitPrice":"47.00"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("update item: %d body %s", w.Code, w.Body.String())
		}
		if quote["subtotal"] != "1347" {
			t.Errorf("subtotal after edit = %v, want 1347", quote["subtotal"])
		}

		items = quote["items"].([]any)
		freightID = fmt.Sprintf("%v", items[len(items)-1].(map[string]any)["id"])
		w, quote = doJSON(t, router, "DELETE", base+"/"+quoteID+"/items/"+freightID, "")
		if w.Code != http.StatusOK {
			t.Fatalf("delete item: %d body %s", w.Code, w.Body.String())
		}
		if quote["subtotal"] != "1253" {
			t.Errorf("subtotal after delete = %v, want 1253", quote["subtotal"])
		}
	})

	t.Run("invalid quantity is a 400 with field", func(t *testing.T) {
		w, response := doJSON(t, router, "POST", base+"/"+quoteID+"/items",
			`{"description":"bad","quantity":"-5","unitPrice":"1.00"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if response["field"] != "quantity" {
			t.Errorf("field = %v, want quantity", response["field"])
		}
	})

	t.Run("auto-match applies cascade to unmatched items", func(t *testing.T) {
		w, response := doJSON(t, router, "POST", base+"/"+quoteID+"/auto-match", "")
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
		}
		// The mystery widget stays unmatched and is flagged for review
		if response["flagged"].(float64) != 1 {
			t.Errorf("flagged = %v, want 1", response["flagged"])
		}
		if response["applied"].(float64) != 0 {
			t.Errorf("applied = %v, want 0", response["applied"])
		}
	})

	t.Run("unknown quote is a 404", func(t *testing.T) {
		w, _ := doJSON(t, router, "GET", base+"/99999", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestOrganizationValidation(t *testing.T) {
	router := setupTestRouter(t)

	t.Run("missing name rejected", func(t *testing.T) {
		w, _ := doJSON(t, router, "POST", "/api/v1/orgs", `{"confidenceThreshold":0.7}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("bad tax rate rejected", func(t *testing.T) {
		w, _ := doJSON(t, router, "POST", "/api/v1/orgs", `{"name":"X","defaultTaxRate":"lots"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("quote for unknown org is a 404", func(t *testing.T) {
		w, _ := doJSON(t, router, "POST", "/api/v1/orgs/424242/quotes",
			`{"customerName":"Jones","items":[{"name":"thing"}]}`)
		if w.Code != http.StatusNotFound {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestRecoveryMiddlewareIntegration(t *testing.T) {
	router := setupTestRouter(t)
	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	req := httptest.NewRequest("GET", "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "trace-me-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "trace-me-123" {
		t.Errorf("X-Request-ID = %q, want trace-me-123", got)
	}
}
