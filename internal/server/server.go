package server

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/TobiSchelling/geopages/internal/command"
	"github.com/TobiSchelling/geopages/internal/database"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// maxCommandBody caps the size of a command request.
const maxCommandBody = 1 << 20

// Server serves the command endpoint and live page previews.
type Server struct {
	db       *database.DB
	commands *command.Handler
	pages    map[string]*template.Template
	engine   *gin.Engine
}

// New creates a new Server.
func New(db *database.DB, commands *command.Handler) (*Server, error) {
	funcMap := template.FuncMap{
		"safeHTML": func(s string) template.HTML {
			return template.HTML(s) //nolint: gosec
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pageNames := []string{"index.html", "page.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, commands: commands, pages: pages}
	s.engine = s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s\" %s\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/api/health"},
	}))
	r.Use(gin.Recovery())

	staticSub, _ := fs.Sub(staticFS, "static")
	r.StaticFS("/static", http.FS(staticSub))

	r.GET("/", s.handleIndex)
	r.GET("/pages/:type/:slug", s.handlePage)

	api := r.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/command", s.handleCommand)
	}
	return r
}

// handleCommand answers 200 for a successful command, 422 for a failed one
// and 400 when the request itself cannot be read.
func (s *Server) handleCommand(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCommandBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest("reading request: " + err.Error()))
		return
	}

	var req command.Request
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, badRequest("malformed request: " + err.Error()))
		return
	}
	if req.Action == "" {
		c.JSON(http.StatusBadRequest, badRequest("missing action"))
		return
	}

	resp := s.commands.Dispatch(c.Request.Context(), req)
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, resp)
}

func badRequest(msg string) command.Response {
	return command.Response{RequestID: uuid.NewString(), Error: msg}
}

func (s *Server) handleHealth(c *gin.Context) {
	if _, err := s.db.GetSettings(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleIndex(c *gin.Context) {
	pages, err := s.db.ListSeoPages("")
	if err != nil {
		log.Printf("Error listing pages: %v", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	s.render(c, http.StatusOK, "index.html", map[string]any{"Pages": pages})
}

func (s *Server) handlePage(c *gin.Context) {
	pageType := database.PageType(c.Param("type"))
	if !pageType.Valid() {
		c.String(http.StatusNotFound, "Page not found")
		return
	}

	page, err := s.db.GetSeoPage(pageType, strings.ToLower(c.Param("slug")))
	if err != nil {
		log.Printf("Error loading page %s/%s: %v", pageType, c.Param("slug"), err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	if page == nil {
		c.String(http.StatusNotFound, "Page not found")
		return
	}

	body, err := page.Content.HTML()
	if err != nil {
		log.Printf("Error rendering page %d: %v", page.ID, err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	s.render(c, http.StatusOK, "page.html", map[string]any{
		"Page": page,
		"Body": body,
	})
}

func (s *Server) render(c *gin.Context, status int, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	if err := tmpl.ExecuteTemplate(c.Writer, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, commands *command.Handler, port int) error {
	srv, err := New(db, commands)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	log.Printf("Server listening on http://%s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
