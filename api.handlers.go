package main

import (
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Statistics holds app stats for ops.
type Statistics struct {
	version   string
	container bool
	runtime   string
	platform  string
	called    uint64
	started   time.Time
	status    map[int]uint64
	mu        *sync.RWMutex
}

// NewStatistics provides the stats of a process started now.
func NewStatistics(config *Config) *Statistics {
	version := config.GitTag
	if version == "" {
		version = config.GitCommit
	}
	return &Statistics{
		version:   version,
		container: IsAppRunningInDocker(),
		started:   time.Now(),
		runtime:   runtime.Version(),
		platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// record counts one more response sent with the given status code.
func (s *Statistics) record(code int) {
	s.mu.Lock()
	s.status[code]++
	s.mu.Unlock()
}

// Maintenance holds app maintenance mode infos.
type Maintenance struct {
	enabled atomic.Bool
	mu      sync.RWMutex
	message string
	started time.Time
}

// APIHandler defines the API handler.
type APIHandler struct {
	logger      *zap.Logger
	config      *Config
	stats       *Statistics
	mode        *Maintenance
	auth        Authorizer
	ids         UIDHandler
	bookService BookServiceProvider
	mirror      BookMirror
}

// NewAPIHandler provides a new instance of APIHandler.
func NewAPIHandler(logger *zap.Logger, config *Config, stats *Statistics, bs BookServiceProvider) *APIHandler {
	stats.status = make(map[int]uint64)
	stats.mu = &sync.RWMutex{}
	return &APIHandler{
		logger:      logger,
		config:      config,
		stats:       stats,
		mode:        &Maintenance{},
		auth:        NewJWTAuthorizer(config),
		ids:         NewIDsHandler(),
		bookService: bs,
	}
}

func (api *APIHandler) maxBodyBytes() int64 {
	if api.config == nil || api.config.Server.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return api.config.Server.MaxBodyBytes
}

// writeJSON sends an ops payload. Ops endpoints always answer in json.
func (api *APIHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	if err := jsonCodec.NewEncoder(w).Encode(data); err != nil {
		api.logger.Error("failed to send response", zap.String("request.id", requestID), zap.String("request.path", r.URL.Path), zap.Error(err))
	}
}

// Index provides same details like `Status` handler by redirecting the request.
func (api *APIHandler) Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	http.Redirect(w, r, "/status", http.StatusSeeOther)
}

// Status provides basics details about the application to the public users.
func (api *APIHandler) Status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	api.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"requestid": GetValueFromContext(r.Context(), RequestIDContextKey),
		"status":    fmt.Sprintf("up & running since %.0f mins", time.Since(api.stats.started).Minutes()),
		"message":   "Hello. Books catalog api is available. Enjoy :)",
	})
}

// NotFound answers requests which do not match any route.
func (api *APIHandler) NotFound(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	api.writeJSON(w, r, http.StatusNotFound, map[string]interface{}{
		"requestid": GetValueFromContext(r.Context(), RequestIDContextKey),
		"message":   "route does not exist",
		"path":      r.Method + " " + r.URL.Path,
	})
}

// Maintenance handles request to enable or disable the maintenance mode of the service.
// Enable the maintenance mode : /ops/maintenance?status=enable&msg=message-to-be-displayed-to-users
// Disable the maintenance mode: /ops/maintenance?status=disable
// Any other status shows the current mode.
func (api *APIHandler) Maintenance(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	q := r.URL.Query()

	switch q.Get("status") {
	case "enable":
		message, started := q.Get("msg"), time.Now().UTC()
		api.mode.mu.Lock()
		api.mode.message = message
		api.mode.started = started
		api.mode.mu.Unlock()
		api.mode.enabled.Store(true)
		api.logger.Info("maintenance mode enabled", zap.String("request.id", requestID))
		api.writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"requestid":           requestID,
			"maintenance.started": started.Format(time.RFC1123),
			"maintenance.message": message,
			"message":             "Maintenance mode enabled successfully.",
		})

	case "disable":
		api.mode.enabled.Store(false)
		api.mode.mu.Lock()
		api.mode.started = time.Time{}
		api.mode.message = ""
		api.mode.mu.Unlock()
		api.logger.Info("maintenance mode disabled", zap.String("request.id", requestID))
		api.writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"requestid": requestID,
			"message":   "Maintenance mode disabled successfully.",
		})

	default:
		api.mode.mu.RLock()
		defer api.mode.mu.RUnlock()
		api.writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"requestid": requestID,
			"enabled":   api.mode.enabled.Load(),
			"message":   api.mode.message,
		})
	}
}

// GetStatistics provides useful details about the application to the internal ops users.
// The stats returns by this handler do not contain the ops request which triggered that.
// That is why we remove 1 from the called field value in order to match the status stats.
func (api *APIHandler) GetStatistics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	api.mode.mu.RLock()
	maintenanceStarted := ""
	if !api.mode.started.IsZero() {
		maintenanceStarted = api.mode.started.Format(time.RFC1123)
	}
	maintenance := map[string]interface{}{
		"enabled": api.mode.enabled.Load(),
		"started": maintenanceStarted,
		"message": api.mode.message,
	}
	api.mode.mu.RUnlock()

	api.stats.mu.RLock()
	status := make(map[int]uint64, len(api.stats.status))
	for code, count := range api.stats.status {
		status[code] = count
	}
	api.stats.mu.RUnlock()

	called := atomic.LoadUint64(&api.stats.called)
	if called > 0 {
		called--
	}
	api.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"requestid":     GetValueFromContext(r.Context(), RequestIDContextKey),
		"app.version":   api.stats.version,
		"app.container": api.stats.container,
		"app.platform":  api.stats.platform,
		"go.version":    api.stats.runtime,
		"called":        called,
		"started":       api.stats.started.Format(time.RFC1123),
		"uptime":        fmt.Sprintf("%.0f mins", time.Since(api.stats.started).Minutes()),
		"maintenance":   maintenance,
		"status":        status,
	})
}

// GetConfigs serves current in-use configurations. Secrets are tagged to be skipped.
func (api *APIHandler) GetConfigs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	api.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"requestid": GetValueFromContext(r.Context(), RequestIDContextKey),
		"configs":   api.config,
	})
}

// GetMirrorBooks lists the books replicated into the bolt mirror.
func (api *APIHandler) GetMirrorBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	if api.mirror == nil {
		api.writeJSON(w, r, http.StatusNotFound, map[string]interface{}{"requestid": requestID, "message": "mirror is disabled"})
		return
	}

	books, err := api.mirror.GetAll(r.Context())
	if err != nil {
		api.logger.Error("failed to read mirror", zap.String("request.id", requestID), zap.Error(err))
		api.writeJSON(w, r, http.StatusInternalServerError, map[string]interface{}{"requestid": requestID, "message": "failed to read the mirror"})
		return
	}
	api.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"requestid": requestID,
		"total":     len(books),
		"books":     books,
	})
}

// GetMirrorBook returns the mirrored snapshot of a single book.
func (api *APIHandler) GetMirrorBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	if api.mirror == nil {
		api.writeJSON(w, r, http.StatusNotFound, map[string]interface{}{"requestid": requestID, "message": "mirror is disabled"})
		return
	}

	id, err := ParseBookID(ps.ByName("id"))
	if err != nil {
		api.writeJSON(w, r, http.StatusNotFound, map[string]interface{}{"requestid": requestID, "message": "book not mirrored"})
		return
	}
	book, err := api.mirror.Get(r.Context(), id)
	if errors.Is(err, ErrBookNotFound) {
		api.writeJSON(w, r, http.StatusNotFound, map[string]interface{}{"requestid": requestID, "message": "book not mirrored"})
		return
	}
	if err != nil {
		api.logger.Error("failed to read mirror", zap.String("request.id", requestID), zap.Int64("book.id", id), zap.Error(err))
		api.writeJSON(w, r, http.StatusInternalServerError, map[string]interface{}{"requestid": requestID, "message": "failed to read the mirror"})
		return
	}
	api.writeJSON(w, r, http.StatusOK, map[string]interface{}{"requestid": requestID, "book": book})
}

// export goroutines to be used by expvar handler.
var goroutines = expvar.NewInt("goroutines")

// GetMemStats returns memory statistics with number of goroutines in json.
func GetMemStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	goroutines.Set(int64(runtime.NumGoroutine()))
	expvar.Handler().ServeHTTP(w, r)
}

// RunGC forces the run of the garbage collector asynchronously.
func (api *APIHandler) RunGC(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	go runtime.GC()
	api.writeJSON(w, r, http.StatusOK, map[string]string{"called": "go runtime.GC()"})
}

// FreeOSMemory forces the garbage collector to run and tries to return the memory
// back to the operating system in an asynchronous fashion.
func (api *APIHandler) FreeOSMemory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	go debug.FreeOSMemory()
	api.writeJSON(w, r, http.StatusOK, map[string]string{"called": "go debug.FreeOSMemory()"})
}

// OpsHandlerWrapper adapts a standard handler to the router signature.
func OpsHandlerWrapper(h http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}

// ProfilerHandlers lists the pprof endpoints exposed under /ops/debug/pprof.
func ProfilerHandlers() map[string]httprouter.Handle {
	handlers := map[string]httprouter.Handle{
		"/":        OpsHandlerWrapper(http.HandlerFunc(pprof.Index)),
		"/profile": OpsHandlerWrapper(http.HandlerFunc(pprof.Profile)),
		"/trace":   OpsHandlerWrapper(http.HandlerFunc(pprof.Trace)),
		"/symbol":  OpsHandlerWrapper(http.HandlerFunc(pprof.Symbol)),
		"/cmdline": OpsHandlerWrapper(http.HandlerFunc(pprof.Cmdline)),
	}
	for _, name := range []string{"heap", "allocs", "goroutine", "threadcreate", "block", "mutex"} {
		handlers["/"+name] = OpsHandlerWrapper(pprof.Handler(name))
	}
	return handlers
}
