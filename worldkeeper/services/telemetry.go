package services

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	entityListMetric     = promauto.NewSummary(prometheus.SummaryOpts{Name: "worldkeeper_entity_list", Help: "Entity list queries"})
	entityCreateMetric   = promauto.NewSummary(prometheus.SummaryOpts{Name: "worldkeeper_entity_create", Help: "Entity creations"})
	locationListMetric   = promauto.NewSummary(prometheus.SummaryOpts{Name: "worldkeeper_location_list", Help: "Location list queries"})
	locationCreateMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "worldkeeper_location_create", Help: "Location creations"})
)

type TelemetryService struct{}

func (s *TelemetryService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Handle("/metrics", promhttp.Handler())

	return r
}
