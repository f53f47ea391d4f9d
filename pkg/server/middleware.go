package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

var (
	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "traceqa_http_request_duration_seconds",
		Help:    "http request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "path", "status"})
	responseSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "traceqa_http_response_size_bytes",
		Help:    "http response size in bytes",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"method", "path", "status"})
)

func init() {
	// registering in init keeps `go test -count=N` from failing on duplicates
	prometheus.MustRegister(requestDuration, responseSize)
}

// responseRecorder remembers the first status code and the body size written.
type responseRecorder struct {
	http.ResponseWriter
	status     int
	size       int
	headerSent bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.headerSent {
		r.status = code
		r.headerSent = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.headerSent = true
	n, err := r.ResponseWriter.Write(p)
	r.size += n
	return n, err
}

// endpoint is a route handler that is handed a logger scoped to its request.
type endpoint func(*logrus.Entry, http.ResponseWriter, *http.Request, httprouter.Params)

// withRequestLogger tags the request with a UID and logs the response once it is written.
func withRequestLogger(next endpoint) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		l := logrus.WithFields(logrus.Fields{"UID": uuid.NewV1().String(), "path": r.URL.Path, "method": r.Method})
		recorder := newResponseRecorder(w)
		start := time.Now()
		defer func() {
			l := l.WithFields(logrus.Fields{"status": recorder.status, "size": recorder.size, "duration": time.Since(start).String()})
			if recorder.status >= http.StatusInternalServerError {
				l.Error("responded")
				return
			}
			l.Debug("responded")
		}()
		next(l, recorder, r, p)
	}
}

// logged is withRequestLogger for handlers that do not log themselves.
func logged(next httprouter.Handle) httprouter.Handle {
	return withRequestLogger(func(_ *logrus.Entry, w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		next(w, r, p)
	})
}

// router records latency and response size of every route registered through handle.
type router struct {
	*httprouter.Router
	duration *prometheus.HistogramVec
	size     *prometheus.HistogramVec
}

func newRouter() *router {
	return &router{Router: httprouter.New(), duration: requestDuration, size: responseSize}
}

func (rt *router) handle(method, path string, next httprouter.Handle) {
	rt.Router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		recorder := newResponseRecorder(w)
		start := time.Now()
		next(recorder, r, p)
		status := strconv.Itoa(recorder.status)
		rt.duration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		rt.size.WithLabelValues(method, path, status).Observe(float64(recorder.size))
	})
}
