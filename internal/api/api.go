// Package api serves the persisted collection read-only to the web front-end.
package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/galois26/event-feed/internal/config"
	"github.com/galois26/event-feed/internal/dates"
	"github.com/galois26/event-feed/internal/metrics"
	"github.com/galois26/event-feed/internal/model"
	"github.com/galois26/event-feed/internal/store"
)

const defaultLimit = 50

type Server struct {
	store  store.Store
	cfg    config.APIConfig
	router *gin.Engine
}

func New(st store.Store, m *metrics.Metrics, cfg config.APIConfig) *Server {
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 200
	}
	s := &Server{store: st, cfg: cfg}

	r := gin.New()
	r.Use(gin.Recovery())
	cc := cors.Config{
		AllowOrigins:  cfg.AllowOrigins,
		AllowMethods:  []string{"GET", "OPTIONS", "HEAD"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Cache-Control"},
		ExposeHeaders: []string{"Content-Length", "Content-Type", "X-Total-Count"},
		MaxAge:        12 * time.Hour,
	}
	if len(cc.AllowOrigins) == 0 {
		cc.AllowAllOrigins = true
	}
	r.Use(cors.New(cc))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	api := r.Group("/api")
	api.GET("/events", s.listEvents)
	api.GET("/events/:id", s.getEvent)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// HTTPServer wraps the router with the configured listener and timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
}

// Filter is the query accepted by GET /api/events.
type Filter struct {
	Category string
	Status   model.Status
	Free     *bool
	From     time.Time
	To       time.Time
	Query    string
}

type listResponse struct {
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
	Events []model.Event `json:"events"`
}

func (s *Server) listEvents(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, err := intParam(c, "limit", defaultLimit)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	limit = min(limit, s.cfg.MaxPageSize)
	offset, err := intParam(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	events, err := s.store.Load(c.Request.Context())
	if err != nil {
		log.Printf("[api] load: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "collection unavailable"})
		return
	}
	matched := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if f.Match(ev) {
			matched = append(matched, ev)
		}
	}

	page := []model.Event{}
	if offset < len(matched) {
		page = matched[offset:min(offset+limit, len(matched))]
	}
	c.Header("X-Total-Count", strconv.Itoa(len(matched)))
	c.JSON(http.StatusOK, listResponse{Total: len(matched), Limit: limit, Offset: offset, Events: page})
}

func (s *Server) getEvent(c *gin.Context) {
	events, err := s.store.Load(c.Request.Context())
	if err != nil {
		log.Printf("[api] load: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "collection unavailable"})
		return
	}
	ev, err := store.Find(events, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	c.JSON(http.StatusOK, ev)
}

func intParam(c *gin.Context, name string, def int) (int, error) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func parseFilter(c *gin.Context) (Filter, error) {
	f := Filter{
		Category: strings.TrimSpace(c.Query("category")),
		Status:   model.Status(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Query:    strings.ToLower(strings.TrimSpace(c.Query("q"))),
	}
	switch f.Status {
	case "", model.StatusUpcoming, model.StatusCancelled, model.StatusMoved:
	default:
		return f, errors.New("status must be UPCOMING, CANCELLED or MOVED")
	}
	if v := strings.TrimSpace(c.Query("free")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("free must be true or false")
		}
		f.Free = &b
	}
	var err error
	if f.From, err = parseBound(c.Query("from"), false); err != nil {
		return f, errors.New("from must be a date (2006-01-02) or a zoned timestamp")
	}
	if f.To, err = parseBound(c.Query("to"), true); err != nil {
		return f, errors.New("to must be a date (2006-01-02) or a zoned timestamp")
	}
	return f, nil
}

// parseBound reads a civil date or a canonical timestamp. A bare date used
// as an upper bound covers the whole day.
func parseBound(v string, upper bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, ok := dates.ParseCanonical(v); ok {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation("2006-01-02", v, dates.Civil())
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return d, nil
}

// Match reports whether ev passes every set criterion. Date bounds need a
// resolvable start date.
func (f Filter) Match(ev model.Event) bool {
	if f.Category != "" && !hasCategoryFold(ev.Categories, f.Category) {
		return false
	}
	if f.Status != "" {
		status := ev.Status
		if status == "" {
			status = model.StatusUpcoming
		}
		if status != f.Status {
			return false
		}
	}
	if f.Free != nil {
		free := ev.PriceAmount != nil && *ev.PriceAmount == 0
		if free != *f.Free {
			return false
		}
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		start, ok := dates.ParseCanonical(ev.Date)
		if !ok {
			return false
		}
		if !f.From.IsZero() && start.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && start.After(f.To) {
			return false
		}
	}
	if f.Query != "" {
		hay := strings.ToLower(ev.Title + "\n" + ev.Description + "\n" + ev.Location)
		if !strings.Contains(hay, f.Query) {
			return false
		}
	}
	return true
}

func hasCategoryFold(cats []string, want string) bool {
	for _, c := range cats {
		if strings.EqualFold(c, want) {
			return true
		}
	}
	return false
}
