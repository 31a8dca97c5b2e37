package rest_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/formulapm/access-management/internal/transport/rest"
	"github.com/go-chi/chi"
)

func TestRest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "REST Router Suite")
}

var _ = Describe("Router CORS", func() {
	newRouter := func(allowedOrigins string) *chi.Mux {
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		router := chi.NewRouter()
		rest.RegisterAllRoutes(router, nil, nil, rest.Handlers{}, allowedOrigins, lg)
		return router
	}

	preflight := func(router *chi.Mux, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/ping", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	Context("with a configured origin list", func() {
		It("should answer preflight for a listed origin", func() {
			router := newRouter("https://app.formulapm.dev, https://admin.formulapm.dev")

			rec := preflight(router, "https://app.formulapm.dev")

			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://app.formulapm.dev"))
		})

		It("should not grant an origin outside the list", func() {
			router := newRouter("https://app.formulapm.dev")

			rec := preflight(router, "https://evil.example.com")

			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
		})

		It("should mark actual responses as origin-dependent", func() {
			router := newRouter("https://app.formulapm.dev")

			req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
			req.Header.Set("Origin", "https://app.formulapm.dev")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://app.formulapm.dev"))
			Expect(rec.Header().Values("Vary")).To(ContainElement("Origin"))
		})
	})

	Context("with no origin configuration", func() {
		It("should allow any origin", func() {
			router := newRouter("")

			rec := preflight(router, "https://anywhere.example.com")

			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})
})
