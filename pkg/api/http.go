package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	apirouter "chatdesk/pkg/api/router"
	adminRoutes "chatdesk/pkg/api/routes/admin"
	backendRoutes "chatdesk/pkg/api/routes/backend"
	frontendRoutes "chatdesk/pkg/api/routes/frontend"
	"chatdesk/pkg/router"
	"chatdesk/pkg/store/messages"
)

var (
	gcPauseTotal = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "chatdesk_gc_pause_total_ns",
			Help: "Total GC pause time in nanoseconds.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.PauseTotalNs)
		},
	)

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "chatdesk_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)
)

func init() {
	// go_goroutines is already exported by the default Go collector
	prometheus.MustRegister(gcPauseTotal)
	prometheus.MustRegister(heapAlloc)
}

// Deps are the components the routes call into.
type Deps struct {
	Log        *messages.Log
	Summaries  adminRoutes.SummarySource
	Reconciler adminRoutes.Rebuilder
	Issuer     backendRoutes.TokenIssuer
	TokenTTL   time.Duration
}

func wrapHTTPHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}

// RegisterRoutes wires the chat, token and admin routes onto r.
func RegisterRoutes(r *router.Router, d Deps) {
	user := &frontendRoutes.Handlers{Log: d.Log}
	admin := &adminRoutes.Handlers{Log: d.Log, Summaries: d.Summaries, Reconciler: d.Reconciler}
	backend := &backendRoutes.Handlers{Issuer: d.Issuer, TTL: d.TokenTTL}

	r.POST("/v1/sign", backend.Sign)

	r.POST("/v1/chat/send", user.SendMessage)
	r.GET("/v1/chat/messages", user.ReadMessages)

	r.POST("/v1/chat/admin/send", admin.SendMessage)
	r.GET("/v1/chat/admin/users", admin.ListUsers)
	r.GET("/v1/chat/admin/messages/{userId}", admin.ReadConversation)

	r.POST("/admin/jobs/reconcile", admin.RunReconcile)
	r.GET("/admin/debug/prometheus", wrapHTTPHandler(promhttp.Handler()))

	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		apirouter.WriteJSONError(ctx, fasthttp.StatusNotFound, apirouter.CodeNotFound, "not found")
	})
	r.MethodNotAllowed(func(ctx *fasthttp.RequestCtx) {
		apirouter.WriteJSONError(ctx, fasthttp.StatusMethodNotAllowed, apirouter.CodeMethodNotAllowed, "method not allowed")
	})
}

// Handler returns a router with only the API routes registered.
func Handler(d Deps) fasthttp.RequestHandler {
	r := router.New()
	RegisterRoutes(r, d)
	return r.Handler
}
