package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/camdencbrown/relay/infrastructure/logging"
	"github.com/camdencbrown/relay/infrastructure/metrics"
	"github.com/camdencbrown/relay/internal/relay/service"
)

// NewRouter builds the full /api/v1 REST surface,
// wired to svc. requireAuth controls whether the auth middleware rejects
// unauthenticated callers or treats every request as admin. m may be nil, in
// which case no Prometheus metrics are collected or exposed. allowedOrigins
// configures CORS; an empty slice disables CORS handling entirely.
func NewRouter(svc *service.Service, logger *logging.Logger, requireAuth bool, m *metrics.Metrics, allowedOrigins []string) http.Handler {
	h := newHandler(svc, logger, requireAuth)
	mux := http.NewServeMux()

	if m != nil {
		mux.Handle("/metrics", promhttp.Handler())
	}

	mountRoutes(mux,
		// Discovery
		route{"/capabilities", http.MethodGet, h.capabilities},
		route{"/health", http.MethodGet, h.health},

		// Pipelines
		route{"/pipeline/create", http.MethodPost, h.createPipeline},
		route{"/pipeline/create-transformation", http.MethodPost, h.createTransformation},
		route{"/pipeline/list", http.MethodGet, h.listPipelines},
		route{"/pipeline/{id}", http.MethodGet, h.getPipeline},
		route{"/pipeline/{id}/run", http.MethodPost, h.runPipeline},
		route{"/pipeline/{id}/run/{run_id}", http.MethodGet, h.getRun},
		route{"/pipeline/{id}", http.MethodDelete, h.deletePipeline},
		route{"/test/source", http.MethodPost, h.testSource},

		// Query
		route{"/query", http.MethodPost, h.query},
		route{"/schema", http.MethodPost, h.schema},
		route{"/export", http.MethodPost, h.export},

		// Metadata
		route{"/metadata/{id}", http.MethodGet, h.metadata},
		route{"/metadata/review/pending", http.MethodGet, h.pendingReview},
		route{"/metadata/review/approve", http.MethodPost, h.approveReview},

		// Datasets
		route{"/datasets/search", http.MethodGet, h.searchDatasets},
		route{"/datasets/join-suggestions", http.MethodGet, h.joinSuggestions},

		// Connections
		route{"/connection", http.MethodPost, h.createConnection},
		route{"/connection/list", http.MethodGet, h.listConnections},
		route{"/connection/{id}", http.MethodGet, h.getConnection},
		route{"/connection/{id}/update", http.MethodPost, h.updateConnection},
		route{"/connection/{id}", http.MethodDelete, h.deleteConnection},
		route{"/connection/{id}/test", http.MethodPost, h.testConnection},

		// Ontology
		route{"/ontology", http.MethodGet, h.ontologySnapshot},
		route{"/ontology/propose", http.MethodPost, h.propose},
		route{"/ontology/proposal/list", http.MethodGet, h.listProposals},
		route{"/ontology/proposal/{id}/review", http.MethodPost, h.reviewProposal},
		route{"/ontology/query", http.MethodPost, h.ontologyQuery},
		route{"/ontology/lineage/{name}", http.MethodGet, h.lineage},
		route{"/ontology/entity", http.MethodPost, h.createEntity},
		route{"/ontology/entity/list", http.MethodGet, h.listEntities},
		route{"/ontology/entity/{id}", http.MethodDelete, h.deleteEntity},
		route{"/ontology/relationship", http.MethodPost, h.createRelationship},
		route{"/ontology/relationship/list", http.MethodGet, h.listRelationships},
		route{"/ontology/relationship/{id}", http.MethodDelete, h.deleteRelationship},
		route{"/ontology/metric", http.MethodPost, h.createMetric},
		route{"/ontology/metric/list", http.MethodGet, h.listMetrics},
		route{"/ontology/metric/{id}", http.MethodDelete, h.deleteMetric},
		route{"/ontology/dimension", http.MethodPost, h.createDimension},
		route{"/ontology/dimension/list", http.MethodGet, h.listDimensions},
		route{"/ontology/dimension/{id}", http.MethodDelete, h.deleteDimension},

		// Admin
		route{"/admin/api-keys", http.MethodPost, h.createAPIKey},
		route{"/admin/api-keys", http.MethodGet, h.listAPIKeys},
		route{"/admin/api-keys", http.MethodDelete, h.deleteAPIKey},

		// Analytics
		route{"/analytics/summary", http.MethodGet, h.analyticsSummary},
		route{"/analytics/events", http.MethodGet, h.analyticsEvents},
	)

	return withRecovery(withRequestLogging(logger, withMetrics("relay", m, withCORS(corsConfig{AllowedOrigins: allowedOrigins}, mux))))
}
