package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	rh "github.com/meinedokbox/dokbox/route-handlers"
	"github.com/meinedokbox/dokbox/webutil"
)

const (
	apiBasePath         = "/api"
	authBasePath        = "/auth"
	whitelistBasePath   = "/whitelist"
	inboundBasePath     = "/inbound-address"
	documentsBasePath   = "/documents"
	uploadsBasePath     = "/uploads"
	preferencesBasePath = "/preferences"
)

const (
	paramID  = "id"
	paramKey = "key"
)

// Handlers bundles everything SetupRoutes mounts.
type Handlers struct {
	Auth       *rh.AuthHandler
	Whitelist  *rh.WhitelistHandler
	Inbound    *rh.InboundHandler
	Documents  *rh.DocumentHandler
	Uploads    *rh.UploadHandler
	Onboarding *rh.OnboardingHandler

	InboundEmail  webutil.AppHandler
	SchedulerTick http.HandlerFunc
}

type Options struct {
	Sessions             SessionReader
	LoginRatePerMinute   int
	WebhookRatePerMinute int
	// RequestTimeout does not apply to uploads and webhooks, which carry
	// their own limits.
	RequestTimeout time.Duration
}

func SetupRoutes(h Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route(apiBasePath, func(r chi.Router) {
		r.Use(SetHeader("Cache-Control", "no-store"))

		r.Group(func(r chi.Router) {
			r.Use(RateLimitPerMinute(opts.LoginRatePerMinute))
			r.Post(authBasePath+"/register", webutil.MakeHandler(h.Auth.HandleRegister))
			r.Post(authBasePath+"/login", webutil.MakeHandler(h.Auth.HandleLogin))
		})
		r.Get("/categories", webutil.MakeHandler(rh.HandleCategories))

		r.Group(func(r chi.Router) {
			r.Use(RequireSession(opts.Sessions))
			r.Post(authBasePath+"/logout", webutil.MakeHandler(h.Auth.HandleLogout))

			r.Group(func(r chi.Router) {
				if opts.RequestTimeout > 0 {
					r.Use(middleware.Timeout(opts.RequestTimeout))
				}
				r.Get("/me", webutil.MakeHandler(h.Auth.HandleMe))
				configureWhitelistRoutes(r, h.Whitelist)
				configureInboundRoutes(r, h.Inbound)
				r.Get("/onboarding", webutil.MakeHandler(h.Onboarding.HandleOnboarding))
				r.Put(preferencesBasePath+"/reminders"+pathWithParam("", paramKey), webutil.MakeHandler(h.Onboarding.HandleDismissReminder))
			})

			configureDocumentRoutes(r, h.Documents)
			configureUploadRoutes(r, h.Uploads)
		})
	})

	r.With(RateLimitPerMinute(opts.WebhookRatePerMinute)).
		Post("/webhooks/inbound-email", webutil.MakeHandler(h.InboundEmail))
	if h.SchedulerTick != nil {
		r.Post("/scheduler/tick", h.SchedulerTick)
	}
	r.Get("/healthz", handleHealthCheck)

	return r
}

// Helper for constructing paths with a parameter
func pathWithParam(basePath string, paramName string) string {
	if basePath == "" {
		return "/{" + paramName + "}"
	}
	return basePath + "/{" + paramName + "}"
}

func configureWhitelistRoutes(r chi.Router, h *rh.WhitelistHandler) {
	r.Route(whitelistBasePath, func(r chi.Router) {
		r.Get("/", webutil.MakeHandler(h.HandleList))
		r.Post("/", webutil.MakeHandler(h.HandleAdd))
		r.Delete(pathWithParam("", paramID), webutil.MakeHandler(h.HandleRemove))
	})
}

func configureInboundRoutes(r chi.Router, h *rh.InboundHandler) {
	r.Route(inboundBasePath, func(r chi.Router) {
		r.Get("/", webutil.MakeHandler(h.HandleGet))
		r.Post("/regenerate", webutil.MakeHandler(h.HandleRegenerate))
	})
}

func configureDocumentRoutes(r chi.Router, h *rh.DocumentHandler) {
	specificDocumentPath := pathWithParam("", paramID)

	r.Route(documentsBasePath, func(r chi.Router) {
		r.Get("/", webutil.MakeHandler(h.HandleList))
		r.Post("/duplicate-check", webutil.MakeHandler(h.HandleDuplicateCheck))
		r.Route(specificDocumentPath, func(r chi.Router) {
			r.Get("/", webutil.MakeHandler(h.HandleGet))
			r.Get("/download", webutil.MakeHandler(h.HandleDownload))
			r.Delete("/", webutil.MakeHandler(h.HandleDelete))
		})
	})
}

func configureUploadRoutes(r chi.Router, h *rh.UploadHandler) {
	specificUploadPath := pathWithParam("", paramID)

	r.Route(uploadsBasePath, func(r chi.Router) {
		r.Post("/", webutil.MakeHandler(h.HandleBegin))
		r.Route(specificUploadPath, func(r chi.Router) {
			r.Get("/", webutil.MakeHandler(h.HandleGet))
			r.Post("/confirm", webutil.MakeHandler(h.HandleConfirm))
			r.Post("/cancel", webutil.MakeHandler(h.HandleCancel))
			r.Post("/retry", webutil.MakeHandler(h.HandleRetry))
		})
	})
}

// handleHealthCheck responds to a health check request.
func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(webutil.HeaderContentType, webutil.ContentTypeTextPlainUTF8)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
