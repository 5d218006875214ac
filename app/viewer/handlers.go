package viewer

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jmlb/ai-news-engine/app/database"
)

const recentItemsLimit = 20

type Options struct {
	Dir     string
	Runs    RunReader   // optional
	Items   ItemReader  // optional
	BaseUrl string
	Port    string
	Version string
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		library:   NewLibrary(opts.Dir),
		renderer:  NewRenderer(),
		generator: NewGenerator(),
		runs:      opts.Runs,
		items:     opts.Items,
		baseUrl:   opts.BaseUrl,
		port:      opts.Port,
		version:   opts.Version,
	}
}

func (h *Handler) GetIndex(c *gin.Context) {
	reports, err := h.library.List()
	if err != nil {
		slog.Error("Failed to list reports", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	var recent []database.Item
	if h.items != nil {
		recent, err = h.items.Recent(c.Request.Context(), recentItemsLimit)
		if err != nil {
			slog.Warn("Failed to load recent items", "error", err)
		}
	}

	h.renderHTML(c, indexTemplate, map[string]any{
		"Title":   "AI News Reports",
		"Reports": reports,
		"Recent":  recent,
	})
}

func (h *Handler) GetReportView(c *gin.Context) {
	name := c.Param("filename")

	data, _, err := h.library.Open(name)
	if err != nil {
		h.reportError(c, name, err)
		return
	}

	content, err := h.renderer.Run(data)
	if err != nil {
		slog.Error("Markdown rendering error", "report", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	h.renderHTML(c, viewTemplate, map[string]any{
		"Name":    name,
		"Content": content,
	})
}

func (h *Handler) GetReportRaw(c *gin.Context) {
	name := c.Param("filename")

	data, report, err := h.library.Open(name)
	if err != nil {
		h.reportError(c, name, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Name))
	c.Header("Last-Modified", report.ModTime.UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", data)
}

func (h *Handler) GetFeed(c *gin.Context) {
	reports, err := h.library.List()
	if err != nil {
		slog.Error("Failed to list reports", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(Channel{
		Title:   "AI News Summary",
		Link:    h.selfBase(),
		Version: h.version,
	}, reports)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(reports)))
	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]any{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if reports, err := h.library.List(); err == nil {
		health["reports"] = len(reports)
	}

	if h.items != nil {
		if count, err := h.items.Count(c.Request.Context(), ""); err == nil {
			health["items"] = count
		}
	}

	if h.runs != nil {
		if run, err := h.runs.Latest(c.Request.Context()); err == nil && run != nil {
			lastRun := map[string]any{
				"id":         run.ID,
				"started_at": run.StartedAt.Format(time.RFC3339),
				"report":     run.ReportPath,
				"counts":     run.Counts,
			}
			if run.FinishedAt != nil {
				lastRun["finished_at"] = run.FinishedAt.Format(time.RFC3339)
			}
			health["last_run"] = lastRun
		}
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) reportError(c *gin.Context, name string, err error) {
	switch {
	case errors.Is(err, ErrInvalidName):
		c.String(http.StatusBadRequest, "Invalid report name")
	case errors.Is(err, ErrNotFound):
		c.String(http.StatusNotFound, "Report not found")
	default:
		slog.Error("Failed to read report", "report", name, "error", err)
		c.Status(http.StatusInternalServerError)
	}
}

func (h *Handler) renderHTML(c *gin.Context, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		slog.Error("Template rendering error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (h *Handler) selfBase() string {
	if h.baseUrl != "" {
		return h.baseUrl
	}
	return fmt.Sprintf("http://localhost:%s", h.port)
}
