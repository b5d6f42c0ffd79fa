package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	Enabled  bool
	SpecPath string
	// ValidateResponses checks handler output too; mismatches are only logged.
	ValidateResponses bool
	// SkipPaths are exact paths, or prefixes when they end in "/", that bypass validation
	SkipPaths []string
}

// NewOpenAPIValidatorConfig validates requests and responses against specPath
// outside production.
func NewOpenAPIValidatorConfig(specPath string, production bool) *OpenAPIValidatorConfig {
	return &OpenAPIValidatorConfig{
		Enabled:           !production,
		SpecPath:          specPath,
		ValidateResponses: !production,
		SkipPaths: []string{
			"/health",
			"/health/ready",
			"/metrics",
			"/ws/",
		},
	}
}

type openAPIValidator struct {
	router routers.Router
	config *OpenAPIValidatorConfig
	opts   *openapi3filter.Options
}

// OpenAPIValidator rejects requests to documented routes that do not match
// the OpenAPI document. It passes everything through when disabled or when
// the document cannot be loaded.
func OpenAPIValidator(config *OpenAPIValidatorConfig) func(next http.Handler) http.Handler {
	passthrough := func(next http.Handler) http.Handler { return next }

	if !config.Enabled {
		slog.Info("OpenAPI validation disabled")
		return passthrough
	}

	router, err := loadRouter(config.SpecPath)
	if err != nil {
		slog.Error("OpenAPI validation unavailable",
			slog.String("path", config.SpecPath),
			slog.String("error", err.Error()))
		return passthrough
	}

	slog.Info("OpenAPI validation enabled",
		slog.Bool("validate_responses", config.ValidateResponses),
		slog.String("spec_path", config.SpecPath))

	v := &openAPIValidator{
		router: router,
		config: config,
		opts:   &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc},
	}
	return v.middleware
}

func loadRouter(specPath string) (routers.Router, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid spec: %w", err)
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	return router, nil
}

func (v *openAPIValidator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSkipPath(r.URL.Path, v.config.SkipPaths) {
			next.ServeHTTP(w, r)
			return
		}

		// Undocumented routes fall through to the router's 404/405
		route, pathParams, err := v.router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options:    v.opts,
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			slog.Warn("request validation failed",
				slog.String("method", r.Method),
				slog.String("route", route.Path),
				slog.String("error", err.Error()))
			writeJSONError(w, http.StatusBadRequest, "Request validation failed: "+describeValidationError(err))
			return
		}

		if !v.config.ValidateResponses {
			next.ServeHTTP(w, r)
			return
		}

		recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)
		v.checkResponse(r, input, recorder)
	})
}

func (v *openAPIValidator) checkResponse(r *http.Request, input *openapi3filter.RequestValidationInput, rec *responseRecorder) {
	err := openapi3filter.ValidateResponse(r.Context(), &openapi3filter.ResponseValidationInput{
		RequestValidationInput: input,
		Status:                 rec.statusCode,
		Header:                 rec.Header(),
		Body:                   io.NopCloser(bytes.NewReader(rec.body.Bytes())),
		Options:                v.opts,
	})
	if err != nil {
		slog.Warn("response does not match OpenAPI document",
			slog.String("method", r.Method),
			slog.String("route", input.Route.Path),
			slog.Int("status", rec.statusCode),
			slog.String("error", err.Error()))
	}
}

// describeValidationError trims kin-openapi's multi-line errors to the part
// worth showing a client.
func describeValidationError(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.Error()
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
		return msg
	}
	return err.Error()
}

// shouldSkipPath checks if a path should skip validation
func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if path == skipPath || (strings.HasSuffix(skipPath, "/") && strings.HasPrefix(path, skipPath)) {
			return true
		}
	}
	return false
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// responseRecorder tees the response so it can be validated after the handler ran.
type responseRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	if !r.wroteHeader {
		r.statusCode = statusCode
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
