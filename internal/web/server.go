package web

import (
	"bytes"
	"context"
	"crypto/rand"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"

	"github.com/hourwatch/hourwatch/internal/config"
	"github.com/hourwatch/hourwatch/internal/email"
	"github.com/hourwatch/hourwatch/internal/inbox"
	"github.com/hourwatch/hourwatch/internal/llm"
	"github.com/hourwatch/hourwatch/internal/notify"
	"github.com/hourwatch/hourwatch/internal/pipeline"
	"github.com/hourwatch/hourwatch/internal/report"
	"github.com/hourwatch/hourwatch/internal/roster"
)

//go:embed static/*
var staticFS embed.FS

//go:embed templates/*
var templatesFS embed.FS

const (
	defaultRateLimit  = 10
	defaultRateWindow = time.Minute
	defaultSessionTTL = 30 * time.Minute

	// Uploaded spreadsheets are small; a week of records for even a
	// large company fits comfortably under this.
	maxUploadBytes = 16 << 20

	runRetention = 24 * time.Hour
)

// RateLimiter throttles actions that trigger outbound email.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) filterRecent(times []time.Time, windowStart time.Time) []time.Time {
	n := 0
	for _, t := range times {
		if t.After(windowStart) {
			times[n] = t
			n++
		}
	}
	return times[:n]
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	recent := rl.filterRecent(rl.requests[key], now.Add(-rl.window))

	if len(recent) >= rl.limit {
		rl.requests[key] = recent
		return false
	}
	rl.requests[key] = append(recent, now)
	return true
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		windowStart := time.Now().Add(-rl.window)
		for key, times := range rl.requests {
			recent := rl.filterRecent(times, windowStart)
			if len(recent) == 0 {
				delete(rl.requests, key)
			} else {
				rl.requests[key] = recent
			}
		}
		rl.mu.Unlock()
	}
}

type Server struct {
	config      *config.Config
	configPath  string
	templates   map[string]*template.Template
	httpServer  *http.Server
	port        int
	csrfKey     []byte
	sessions    *SessionStore
	rateLimiter *RateLimiter
	runs        *RunManager
}

func NewServer(port int, cfg *config.Config, configPath string) (*Server, error) {
	csrfKey := make([]byte, 32)
	if _, err := rand.Read(csrfKey); err != nil {
		return nil, fmt.Errorf("failed to generate CSRF key: %w", err)
	}

	s := &Server{
		config:      cfg,
		configPath:  configPath,
		port:        port,
		csrfKey:     csrfKey,
		sessions:    NewSessionStore(defaultSessionTTL),
		rateLimiter: NewRateLimiter(defaultRateLimit, defaultRateWindow),
		runs:        NewRunManager(),
	}

	tmpl, err := s.parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	s.templates = tmpl
	return s, nil
}

// parseTemplates loads and parses all HTML templates
// Each page gets its own template set to avoid "content" block conflicts
func (s *Server) parseTemplates() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"formatTime": func(t time.Time) string {
			return t.Format("Jan 2, 2006 3:04 PM")
		},
		"formatHours": func(h float64) string {
			return strconv.FormatFloat(h, 'f', -1, 64)
		},
		"add": func(a, b int) int {
			return a + b
		},
	}

	layoutContent, err := templatesFS.ReadFile("templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to read layout template: %w", err)
	}

	templates := make(map[string]*template.Template)

	err = fs.WalkDir(templatesFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path == "templates/layout.html" || !strings.HasSuffix(path, ".html") {
			return nil
		}

		content, err := templatesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", path, err)
		}

		name := path[len("templates/"):]
		pageTmpl := template.New(name).Funcs(funcs)

		if _, err := pageTmpl.Parse(string(layoutContent)); err != nil {
			return fmt.Errorf("failed to parse layout for %s: %w", name, err)
		}

		// The page defines the "content" block for this set
		if _, err := pageTmpl.Parse(string(content)); err != nil {
			return fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		templates[name] = pageTmpl
		return nil
	})
	if err != nil {
		return nil, err
	}

	return templates, nil
}

// Start starts the web server and opens the browser
func (s *Server) Start() error {
	router := s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			s.runs.Cleanup(runRetention)
		}
	}()

	// Open browser after a short delay
	go func() {
		time.Sleep(500 * time.Millisecond)
		openBrowser(fmt.Sprintf("http://localhost:%d", s.port))
	}()

	fmt.Printf("Starting Hourwatch web UI at http://localhost:%d\n", s.port)
	fmt.Println("Press Ctrl+C to stop")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// setupRouter configures all routes
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(securityHeaders)

	// CSRF protection - secure for localhost only
	csrfMiddleware := csrf.Protect(
		s.csrfKey,
		csrf.Secure(false), // Allow HTTP for localhost
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.RequestHeader("X-CSRF-Token"),
		csrf.TrustedOrigins([]string{"localhost", "127.0.0.1", fmt.Sprintf("localhost:%d", s.port), fmt.Sprintf("127.0.0.1:%d", s.port)}),
	)
	r.Use(csrfMiddleware)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/", s.handleDashboard)
	r.Post("/runs", s.handleUpload)
	r.Get("/runs/{runID}", s.handleRun)
	r.Get("/runs/{runID}/export.xlsx", s.handleExport)
	r.Get("/settings", s.handleSettings)
	r.Post("/settings/tracker", s.handleSettingsTracker)
	r.Post("/settings/inbox", s.handleSettingsInbox)

	// Setup wizard routes
	r.Route("/setup", func(r chi.Router) {
		r.Get("/", s.handleSetupWelcome)
		r.Get("/email", s.handleSetupEmail)
		r.Post("/email", s.handleSetupEmail)
		r.Get("/classifier", s.handleSetupClassifier)
		r.Post("/classifier", s.handleSetupClassifier)
		r.Get("/test", s.handleSetupTest)
		r.Post("/test/send", s.handleSetupTestSend)
		r.Get("/complete", s.handleSetupComplete)
	})

	// API routes (polled by the run page)
	r.Route("/api", func(r chi.Router) {
		r.Get("/runs/{runID}/status", s.handleAPIRunStatus)
		r.Post("/inbox/scan", s.handleAPIInboxScan)
	})

	return r
}

// securityHeaders adds security headers to all responses
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// 'unsafe-inline' needed for Tailwind CSS and the inline poll script
		csp := "default-src 'self'; " +
			"script-src 'self' 'unsafe-inline' https://cdn.tailwindcss.com; " +
			"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; " +
			"img-src 'self' data:; " +
			"font-src 'self' https://fonts.gstatic.com; " +
			"connect-src 'self'; " +
			"frame-ancestors 'none'; " +
			"form-action 'self'; " +
			"base-uri 'self'"
		w.Header().Set("Content-Security-Policy", csp)

		// Pages can show addresses and credentials forms; keep them out of caches
		if !strings.HasPrefix(r.URL.Path, "/static/") {
			w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
		}

		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()")

		next.ServeHTTP(w, r)
	})
}

// openBrowser opens the default browser to the specified URL
func openBrowser(url string) {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		return
	}

	exec.Command(cmd, args...).Start()
}

// Handler implementations

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	// Redirect to setup until email is configured
	if s.config == nil || s.config.Email.Provider == "" {
		http.Redirect(w, r, "/setup", http.StatusFound)
		return
	}

	s.renderDashboard(w, r, "")
}

func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, uploadError string) {
	data := map[string]interface{}{
		"Title":       "Dashboard",
		"Threshold":   s.config.Tracker.Threshold,
		"Mode":        s.config.Tracker.ClassifierMode,
		"RecentRuns":  s.runs.Recent(10),
		"UploadError": uploadError,
	}
	s.renderWithCSRF(w, r, "dashboard.html", data)
}

// handleUpload parses an uploaded spreadsheet and starts a background
// run. A file that cannot be parsed never starts a run.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.config == nil || s.config.Email.Provider == "" {
		http.Redirect(w, r, "/setup", http.StatusFound)
		return
	}

	if !s.rateLimiter.Allow("run") {
		s.renderDashboard(w, r, "Too many runs started; wait a moment before uploading again.")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.renderDashboard(w, r, "Upload too large or malformed.")
		return
	}

	file, header, err := r.FormFile("roster")
	if err != nil {
		s.renderDashboard(w, r, "Choose a spreadsheet to upload.")
		return
	}
	defer file.Close()

	records, err := roster.Load(file)
	if err != nil {
		s.renderDashboard(w, r, fmt.Sprintf("Could not read %s: %v", header.Filename, err))
		return
	}

	p, err := s.buildPipeline()
	if err != nil {
		s.renderDashboard(w, r, fmt.Sprintf("Configuration problem: %v", err))
		return
	}

	run := s.runs.Create(header.Filename, len(records))
	p.OnProgress = run.UpdateProgress

	go func() {
		summary := p.Run(context.Background(), records)
		run.Complete(summary)
		log.Printf("web: run %s finished: %d flagged, %d notified, %d warnings",
			run.ID, summary.Flagged(), len(summary.Notified), len(summary.Warnings))
	}()

	http.Redirect(w, r, "/runs/"+run.ID, http.StatusFound)
}

// buildPipeline assembles the sender and composer from current config.
func (s *Server) buildPipeline() (*pipeline.Pipeline, error) {
	sender, err := email.NewSender(s.config.Email)
	if err != nil {
		return nil, err
	}

	var composer notify.Composer
	if s.config.Tracker.ClassifierMode == config.ModeGenerative {
		client, err := llm.NewClient(s.config.LLM)
		if err != nil {
			return nil, err
		}
		composer = notify.NewGenerativeComposer(client)
	} else {
		composer, err = notify.NewTemplateComposer(s.config.Tracker.Threshold)
		if err != nil {
			return nil, err
		}
	}

	return &pipeline.Pipeline{
		Composer:  composer,
		Sender:    sender,
		From:      s.config.Email.From,
		Threshold: s.config.Tracker.Threshold,
		SendAll:   s.config.Tracker.SendPolicy == config.PolicyAll,
	}, nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run := s.runs.Get(chi.URLParam(r, "runID"))
	if run == nil {
		http.NotFound(w, r)
		return
	}

	status, done, total, errMsg := run.Snapshot()

	data := map[string]interface{}{
		"Title":    "Run " + run.FileName,
		"Run":      run,
		"Status":   string(status),
		"Done":     done,
		"Total":    total,
		"Progress": run.Progress(),
		"Error":    errMsg,
	}

	if status == RunStatusCompleted {
		data["Summary"] = run.Summary
	}

	s.renderWithCSRF(w, r, "run.html", data)
}

// handleExport serves the results spreadsheet for a completed run. The
// workbook is built in memory first so a generation failure can still
// produce a clean error response.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	run := s.runs.Get(chi.URLParam(r, "runID"))
	if run == nil {
		http.NotFound(w, r)
		return
	}

	status, _, _, _ := run.Snapshot()
	if status != RunStatusCompleted {
		http.Error(w, "Run has not completed", http.StatusConflict)
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, run.Summary); err != nil {
		log.Printf("web: export failed for run %s: %v", run.ID, err)
		http.Error(w, "Failed to generate spreadsheet: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.ExportFileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"Title":  "Settings",
		"Config": s.config,
	}
	s.renderWithCSRF(w, r, "settings.html", data)
}

func (s *Server) handleSettingsTracker(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderSettingsWithMessage(w, r, "Failed to parse form", false)
		return
	}

	threshold, err := strconv.ParseFloat(r.FormValue("threshold"), 64)
	if err != nil || threshold <= 0 {
		s.renderSettingsWithMessage(w, r, "Threshold must be a positive number of hours", false)
		return
	}

	mode := r.FormValue("classifier_mode")
	if mode != config.ModeKeyword && mode != config.ModeGenerative {
		s.renderSettingsWithMessage(w, r, "Unknown classifier mode", false)
		return
	}

	policy := r.FormValue("send_policy")
	if policy != config.PolicyFlaggedOnly && policy != config.PolicyAll {
		s.renderSettingsWithMessage(w, r, "Unknown send policy", false)
		return
	}

	s.config.Tracker = config.TrackerConfig{
		Threshold:      threshold,
		ClassifierMode: mode,
		SendPolicy:     policy,
	}

	if err := config.Save(s.configPath, s.config); err != nil {
		s.renderSettingsWithMessage(w, r, "Failed to save configuration: "+err.Error(), false)
		return
	}

	s.renderSettingsWithMessage(w, r, "Tracker settings saved", true)
}

func (s *Server) handleSettingsInbox(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderSettingsWithMessage(w, r, "Failed to parse form", false)
		return
	}

	addr := strings.TrimSpace(r.FormValue("inbox_email"))
	password := r.FormValue("inbox_password")
	server := strings.TrimSpace(r.FormValue("inbox_server"))
	port, _ := strconv.Atoi(r.FormValue("inbox_port"))

	if addr == "" || password == "" {
		s.renderSettingsWithMessage(w, r, "Email and app password are required", false)
		return
	}
	if server == "" {
		server = "imap.gmail.com"
	}
	if port == 0 {
		port = 993
	}

	s.config.Inbox = config.InboxConfig{
		Enabled:  true,
		Server:   server,
		Port:     port,
		Email:    addr,
		Password: password,
		Folder:   "INBOX",
	}

	if err := config.Save(s.configPath, s.config); err != nil {
		s.renderSettingsWithMessage(w, r, "Failed to save configuration: "+err.Error(), false)
		return
	}

	s.renderSettingsWithMessage(w, r, "Bounce scanning enabled", true)
}

func (s *Server) renderSettingsWithMessage(w http.ResponseWriter, r *http.Request, message string, success bool) {
	data := map[string]interface{}{
		"Title":   "Settings",
		"Config":  s.config,
		"Message": message,
		"Success": success,
	}
	s.renderWithCSRF(w, r, "settings.html", data)
}

// API handlers

func (s *Server) handleAPIRunStatus(w http.ResponseWriter, r *http.Request) {
	run := s.runs.Get(chi.URLParam(r, "runID"))
	if run == nil {
		http.NotFound(w, r)
		return
	}

	status, done, total, errMsg := run.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   string(status),
		"done":     done,
		"total":    total,
		"progress": run.Progress(),
		"error":    errMsg,
	})
}

func (s *Server) handleAPIInboxScan(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := s.config.ValidateInbox(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	days := 7
	if d, err := strconv.Atoi(r.FormValue("days")); err == nil && d > 0 {
		days = d
	}

	monitor := inbox.NewMonitor(s.config.Inbox)
	if err := monitor.Connect(); err != nil {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "IMAP connection failed: " + err.Error()})
		return
	}
	defer monitor.Disconnect()

	bounces, err := monitor.ScanBounces(days)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	type bounceJSON struct {
		Recipient  string `json:"recipient"`
		Subject    string `json:"subject"`
		ReceivedAt string `json:"received_at"`
	}
	out := make([]bounceJSON, 0, len(bounces))
	for _, b := range bounces {
		out = append(out, bounceJSON{
			Recipient:  b.Recipient,
			Subject:    b.Subject,
			ReceivedAt: b.ReceivedAt.Format(time.RFC3339),
		})
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"days":    days,
		"bounces": out,
	})
}

// Rendering helpers

func (s *Server) renderWithCSRF(w http.ResponseWriter, r *http.Request, name string, data map[string]interface{}) {
	data["CSRFToken"] = csrf.Token(r)
	data["CSRFField"] = template.HTML(fmt.Sprintf(`<input type="hidden" name="gorilla.csrf.Token" value="%s">`, csrf.Token(r)))

	tmpl, ok := s.templates[name]
	if !ok {
		http.Error(w, "Template not found: "+name, http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		http.Error(w, "Template error: "+err.Error(), http.StatusInternalServerError)
	}
}
