package metrics

import (
	"net/http"

	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/gorilla/mux"
	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats/view"
	"golang.org/x/xerrors"

	logging "github.com/memoio/go-mefs-pre/lib/log"
)

var logger = logging.Logger("metrics")

// Exporter registers DefaultViews and returns a prometheus handler for them.
func Exporter(namespace string) (http.Handler, error) {
	registry, ok := promclient.DefaultRegisterer.(*promclient.Registry)
	if !ok {
		logger.Warnf("failed to export default prometheus registry; some metrics will be unavailable; unexpected type: %T", promclient.DefaultRegisterer)
	}
	exporter, err := prometheus.NewExporter(prometheus.Options{
		Registry:  registry,
		Namespace: namespace,
	})
	if err != nil {
		return nil, xerrors.Errorf("could not create the prometheus stats exporter: %w", err)
	}

	err = view.Register(DefaultViews...)
	if err != nil {
		return nil, xerrors.Errorf("register views: %w", err)
	}

	return exporter, nil
}

// NewRouter serves the exporter at /debug/metrics and a liveness probe.
func NewRouter(exporter http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/debug/metrics", exporter).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}
