// Package http is the REST surface. Handlers decode and validate transport
// concerns, then delegate to the services; all tenancy and audit semantics
// live below this layer.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	formsservice "worksafe/internal/forms/service"
	"worksafe/internal/library"
	"worksafe/internal/platform/config"
	"worksafe/internal/risk"
	worksiteservice "worksafe/internal/worksite/service"
)

// Handler bundles the services the routes dispatch to.
type Handler struct {
	worksite *worksiteservice.Service
	forms    *formsservice.Service
	library  *library.Service
	explain  *risk.Explainer
	logger   *slog.Logger
}

func NewHandler(worksite *worksiteservice.Service, forms *formsservice.Service,
	lib *library.Service, explain *risk.Explainer, logger *slog.Logger) *Handler {
	return &Handler{
		worksite: worksite,
		forms:    forms,
		library:  lib,
		explain:  explain,
		logger:   logger,
	}
}

// NewRouter assembles the middleware chain and the route tree.
func NewRouter(h *Handler, cfg config.Config, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestMeta)
	r.Use(recoverer(logger))
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticate(cfg.JWTSigningKey, cfg.TenantResolution))

		r.Route("/work-packages", func(r chi.Router) {
			r.Post("/", h.createWorkPackage)
			r.Get("/", h.listWorkPackages)
			r.Route("/{workPackageID}", func(r chi.Router) {
				r.Get("/", h.getWorkPackage)
				r.Patch("/", h.updateWorkPackage)
				r.Put("/", h.editWorkPackage)
				r.Post("/archive", h.archiveWorkPackage)
				r.Get("/audit-trail", h.projectAuditTrail)
				r.Post("/locations", h.createLocation)
				r.Get("/locations", h.listLocations)
			})
		})

		r.Route("/locations/{locationID}", func(r chi.Router) {
			r.Get("/", h.getLocation)
			r.Patch("/", h.updateLocation)
			r.Post("/archive", h.archiveLocation)
			r.Post("/activities", h.createActivity)
			r.Get("/activities", h.listActivities)
			r.Get("/tasks", h.listTasks)
			r.Post("/site-conditions", h.createSiteCondition)
			r.Get("/site-conditions", h.listSiteConditions)
			r.Post("/site-conditions/evaluated", h.recordEvaluatedSiteCondition)
			r.Get("/forms/{formType}", h.listFormsForLocation)
		})

		r.Route("/activities/{activityID}", func(r chi.Router) {
			r.Patch("/", h.updateActivity)
			r.Post("/archive", h.archiveActivity)
			r.Post("/tasks", h.createTask)
		})

		r.Route("/tasks/{taskID}", func(r chi.Router) {
			r.Get("/", h.getTask)
			r.Get("/hazards", h.listTaskHazards)
			r.Post("/archive", h.archiveTask)
			r.Delete("/", h.deleteTask)
		})

		r.Patch("/hazards/{hazardID}/applicability", h.setHazardApplicability)

		r.Route("/site-conditions/{siteConditionID}", func(r chi.Router) {
			r.Patch("/score", h.updateEvaluatedScore)
			r.Post("/archive", h.archiveSiteCondition)
		})

		r.Route("/contractors", func(r chi.Router) {
			r.Post("/", h.createContractor)
			r.Get("/", h.listContractors)
			r.Get("/{contractorID}", h.getContractor)
			r.Patch("/{contractorID}/rating", h.updateContractorRating)
			r.Get("/{contractorID}/incidents", h.listIncidents)
		})
		r.Post("/supervisors", h.createSupervisor)
		r.Get("/supervisors", h.listSupervisors)
		r.Post("/crews", h.createCrew)
		r.Post("/incidents", h.recordIncident)

		r.Route("/forms/{formType}", func(r chi.Router) {
			r.Post("/", h.createForm)
			r.Route("/{formID}", func(r chi.Router) {
				r.Get("/", h.getForm)
				r.Put("/contents", h.updateFormContents)
				r.Post("/complete", h.completeForm)
				r.Post("/reopen", h.reopenForm)
				r.Post("/archive", h.archiveForm)
			})
		})

		r.Route("/library", func(r chi.Router) {
			r.Get("/{kind}", h.listLibrary)
			r.Post("/", h.createLibraryRow)
			r.Post("/{rowID}/archive", h.archiveLibraryRow)
			r.Put("/{rowID}/setting", h.setLibrarySetting)
		})

		r.Get("/risk/{metric}/{entityID}", h.explainMetric)
		r.Get("/objects/{objectType}/{objectID}/audit-trail", h.objectAuditTrail)
	})

	return r
}
