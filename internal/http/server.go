package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"cassa/internal/cache"
	"cassa/internal/core"
	"cassa/internal/log"
	"cassa/internal/middleware/ratelimit"
	"cassa/internal/middleware/security"
	"cassa/internal/middleware/trace"
	"cassa/internal/services"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the application services behind the API.
type Services struct {
	Inventory *services.InventoryService
	Cart      *services.CartService
	Expenses  *services.ExpenseService
	Income    *services.IncomeService
	Analytics *services.AnalyticsService
	Reports   *services.ReportService
	// Outbox is nil when event publishing is disabled.
	Outbox *services.OutboxProcessor
}

// Options tunes the server.
type Options struct {
	// DashboardCacheTTL of zero disables dashboard caching.
	DashboardCacheTTL  time.Duration
	RateLimitPerMinute int
	Logger             *log.Logger
}

type appMetrics struct {
	startedAt   time.Time
	mutations   atomic.Int64
	checkouts   atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

type Server struct {
	http.Server
	store  Pinger
	svc    Services
	logger *log.Logger
	events *log.StructuredLogger

	// Dashboard payloads keyed by window length. Cleared on every mutation.
	dashboardCache *cache.LRUCache[core.Dashboard]
	cacheManager   *cache.Manager
	// cacheGen changes on every mutation so a dashboard computed before a
	// write is never stored after it.
	cacheGen atomic.Int64

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, store Pinger, svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		store:            store,
		svc:              svc,
		logger:           logger,
		events:           log.NewStructuredLogger(logger),
		cacheManager:     cache.NewManager(),
		securityDetector: security.NewDetector(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			Methods:           []string{http.MethodPost},
		}),
	}
	s.appMetrics.startedAt = time.Now()
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger)

	if opts.DashboardCacheTTL > 0 {
		s.dashboardCache = cache.NewLRUCache[core.Dashboard](64, opts.DashboardCacheTTL)
		s.cacheManager.Register(s.dashboardCache)
		s.cacheManager.StartCleanup(10 * time.Minute)
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(),
			"Rate limit exceeded",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/health", s.handleAPIHealth)

	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/visualization-data", s.handleVisualizationData)
	mux.HandleFunc("GET /api/report", s.handleReport)

	mux.HandleFunc("GET /api/products", s.handleListProducts)
	mux.HandleFunc("POST /api/products", s.handleCreateProduct)
	mux.HandleFunc("GET /api/products/{id}", s.handleGetProduct)
	mux.HandleFunc("PUT /api/products/{id}", s.handleUpdateProduct)
	mux.HandleFunc("DELETE /api/products/{id}", s.handleDeleteProduct)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/expenses/export.csv", s.handleExportExpensesCSV)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /api/income", s.handleListIncome)
	mux.HandleFunc("POST /api/income", s.handleCreateIncome)
	mux.HandleFunc("DELETE /api/income/{id}", s.handleDeleteIncome)

	mux.HandleFunc("GET /api/analytics/summary", s.handleSummary)
	mux.HandleFunc("GET /api/analytics/expenses", s.handleExpenseBreakdown)
	mux.HandleFunc("GET /api/analytics/income", s.handleIncomeBreakdown)
	mux.HandleFunc("GET /api/analytics/top-expenses", s.handleTopExpenses)
	mux.HandleFunc("GET /api/analytics/top-income", s.handleTopIncome)
	mux.HandleFunc("GET /api/analytics/products", s.handleProductAnalytics)
	mux.HandleFunc("GET /api/analytics/trend", s.handleTrend)
	mux.HandleFunc("GET /api/analytics/daily", s.handleDaily)

	mux.HandleFunc("GET /api/cart", s.handleGetCart)
	mux.HandleFunc("POST /api/cart", s.handleAddToCart)
	mux.HandleFunc("DELETE /api/cart", s.handleClearCart)
	mux.HandleFunc("GET /api/cart/summary", s.handleCartSummary)
	mux.HandleFunc("PUT /api/cart/{id}", s.handleUpdateCartLine)
	mux.HandleFunc("DELETE /api/cart/{id}", s.handleRemoveFromCart)
	mux.HandleFunc("POST /api/cart/checkout", s.handleCheckout)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)

	mux.HandleFunc("GET /api/outbox/stats", s.handleOutboxStats)
	mux.HandleFunc("POST /api/outbox/retry", s.handleOutboxRetry)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	// Ensure shutdown logic runs only once
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// mutated drops cached analytics after any successful write.
func (s *Server) mutated() {
	s.appMetrics.mutations.Add(1)
	s.cacheGen.Add(1)
	if s.dashboardCache != nil {
		s.dashboardCache.Clear()
	}
}

func (s *Server) getDashboard(ctx context.Context, days int) (core.Dashboard, error) {
	key := "dashboard:" + strconv.Itoa(days)

	if s.dashboardCache != nil {
		if d, found := s.dashboardCache.Get(key); found {
			s.appMetrics.cacheHits.Add(1)
			log.FromContext(ctx).DebugContext(ctx, "Dashboard cache hit", log.FieldDays, days)
			return d, nil
		}
	}
	s.appMetrics.cacheMisses.Add(1)

	gen := s.cacheGen.Load()
	d, err := s.svc.Analytics.Dashboard(ctx, days)
	if err != nil {
		return core.Dashboard{}, err
	}

	if s.dashboardCache != nil && s.cacheGen.Load() == gen {
		s.dashboardCache.Set(key, d)
	}
	return d, nil
}
