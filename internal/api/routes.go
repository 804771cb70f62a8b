package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"intertexe/backend/internal/catalog"
	"intertexe/backend/internal/fabric"
	"intertexe/backend/internal/match"
	"intertexe/backend/internal/store"
	"intertexe/backend/internal/telemetry"
)

// Config defines server dependencies.
type Config struct {
	DBPath         string
	FiberTablePath string
	AllowedOrigins []string
	SilentDB       bool
	// Metrics is optional; a fresh registry is created when nil.
	Metrics *telemetry.Metrics
}

// Server wires HTTP handlers with persistence and fabric evaluation.
type Server struct {
	db             *store.Database
	catalog        *catalog.Service
	metrics        *telemetry.Metrics
	tablePath      string
	allowedOrigins []string
	notifier       *ReevaluationNotifier
	jobMu          sync.Mutex
	activeJob      *reevaluationJob
}

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}

	table := fabric.DefaultTable()
	if path := strings.TrimSpace(cfg.FiberTablePath); path != "" {
		loaded, err := fabric.LoadTable(path)
		if err != nil {
			return nil, fmt.Errorf("fiber table: %w", err)
		}
		table = loaded
		logrus.WithField("path", path).Info("loaded fiber table")
	}

	db, err := store.Open(cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.New()
	}

	return &Server{
		db:             db,
		catalog:        catalog.NewService(db, table, metrics),
		metrics:        metrics,
		tablePath:      cfg.FiberTablePath,
		allowedOrigins: cfg.AllowedOrigins,
		notifier:       NewReevaluationNotifier(),
	}, nil
}

// Close cancels any running job and releases the database.
func (s *Server) Close() error {
	s.jobMu.Lock()
	job := s.activeJob
	s.jobMu.Unlock()
	if job != nil {
		job.cancel()
		<-job.done
	}
	return s.db.Close()
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	{
		api.POST("/classify", s.handleClassify)
		api.POST("/parse", s.handleParse)
		api.POST("/evaluate", s.handleEvaluate)

		api.GET("/designers", s.handleListDesigners)
		api.POST("/designers", s.handleSaveDesigner)
		api.GET("/designers/summary", s.handleDesignerSummary)
		api.GET("/designers/:slug", s.handleGetDesigner)

		api.GET("/products", s.handleListProducts)
		api.POST("/products", s.handleAddProduct)
		api.GET("/products/:id", s.handleGetProduct)
		api.POST("/products/:id/evaluate", s.handleReevaluateProduct)
		api.POST("/upload", s.handleUpload)

		api.POST("/reevaluate", s.handleStartReevaluation)
		api.GET("/reevaluate/status", s.handleReevaluationStatus)
		api.DELETE("/reevaluate/:jobID", s.handleCancelReevaluation)
		api.GET("/reevaluate/stream", s.handleReevaluationStream)

		api.GET("/export.csv", s.handleExportCSV)
		api.GET("/export.json", s.handleExportJSON)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfig(c *gin.Context) {
	products, err := s.db.CountProducts()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	table := s.catalog.Table()
	c.JSON(http.StatusOK, ConfigResponse{
		Policy: table.Policy(),
		Categories: map[fabric.Category][]string{
			fabric.Natural:       table.Terms(fabric.Natural),
			fabric.SemiSynthetic: table.Terms(fabric.SemiSynthetic),
			fabric.Banned:        table.Terms(fabric.Banned),
		},
		LiningExceptions: table.LiningExceptions(),
		FiberTablePath:   s.tablePath,
		Products:         products,
	})
}

func (s *Server) handleClassify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Fiber) == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("fiber is required"))
		return
	}
	table := s.catalog.Table()
	profile := match.NormalizeFiber(table, req.Fiber)
	result := table.Lookup(profile.Canonical)
	c.JSON(http.StatusOK, ClassifyResponse{
		Fiber:           req.Fiber,
		Canonical:       profile.Canonical,
		Category:        profile.Category,
		Matched:         result.Matched,
		Recognized:      result.Recognized,
		LiningException: table.IsLiningException(req.Fiber),
	})
}

func (s *Server) handleParse(c *gin.Context) {
	var req ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	result := fabric.ParseDetailed(req.Text)
	s.metrics.RecordUnparsed(len(result.Unparsed))
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleEvaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	var (
		entries  []fabric.FiberEntry
		unparsed []string
	)
	switch {
	case len(req.Compositions) > 0:
		if err := catalog.ValidateEntries(req.Compositions); err != nil {
			s.renderError(c, http.StatusBadRequest, err)
			return
		}
		entries = req.Compositions
	case strings.TrimSpace(req.Text) != "":
		entries, unparsed = s.catalog.ParseComposition(req.Text)
	default:
		s.renderError(c, http.StatusBadRequest, errors.New("text or compositions required"))
		return
	}

	result := s.catalog.Evaluate(fabric.Composition{ProductName: req.ProductName, Compositions: entries})
	c.JSON(http.StatusOK, EvaluateResponse{
		Evaluation:  result,
		ProductName: req.ProductName,
		Entries:     entries,
		Unparsed:    unparsed,
	})
}

func (s *Server) handleListDesigners(c *gin.Context) {
	offset, limit := pagination(c)
	rows, total, err := s.db.ListDesigners(offset, limit)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]DesignerDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, DesignerFromModel(row))
	}
	c.JSON(http.StatusOK, DesignersResponse{Items: dtos, Total: total})
}

func (s *Server) handleSaveDesigner(c *gin.Context) {
	var req DesignerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	designer := &store.Designer{
		Name:        req.Name,
		Slug:        req.Slug,
		Website:     strings.TrimSpace(req.Website),
		Description: strings.TrimSpace(req.Description),
	}
	if err := s.db.SaveDesigner(designer); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, DesignerFromModel(*designer))
}

func (s *Server) handleDesignerSummary(c *gin.Context) {
	rows, err := s.db.DesignerSummaries()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]DesignerSummaryDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, SummaryFromModel(row))
	}
	c.JSON(http.StatusOK, gin.H{"items": dtos})
}

func (s *Server) handleGetDesigner(c *gin.Context) {
	designer, err := s.db.GetDesigner(c.Param("slug"))
	if err != nil {
		s.renderStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, DesignerFromModel(*designer))
}

func (s *Server) handleListProducts(c *gin.Context) {
	offset, limit := pagination(c)
	query := store.ProductQuery{
		Query:  strings.TrimSpace(c.Query("q")),
		Sort:   c.Query("sort"),
		Offset: offset,
		Limit:  limit,
	}
	if slug := strings.TrimSpace(c.Query("designer")); slug != "" {
		designer, err := s.db.GetDesigner(slug)
		if err != nil {
			s.renderStoreError(c, err)
			return
		}
		query.DesignerID = designer.ID
	}
	if value := strings.TrimSpace(c.Query("approved")); value != "" {
		approved, err := strconv.ParseBool(value)
		if err != nil {
			s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid approved: %s", value))
			return
		}
		query.Approved = &approved
	}
	if value := strings.TrimSpace(c.Query("minNatural")); value != "" {
		minNatural, err := strconv.ParseFloat(value, 64)
		if err != nil {
			s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid minNatural: %s", value))
			return
		}
		query.MinNatural = minNatural
	}

	rows, total, err := s.db.ListProducts(query)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, ProductFromModel(row))
	}
	c.JSON(http.StatusOK, ProductsResponse{Items: dtos, Total: total})
}

func (s *Server) handleAddProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	product, _, err := s.catalog.AddProduct(catalog.ProductInput{
		DesignerSlug: req.Designer,
		DesignerName: req.DesignerName,
		Name:         req.Name,
		URL:          req.URL,
		Composition:  req.Composition,
		Entries:      req.Compositions,
	})
	if err != nil {
		s.renderStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ProductFromModel(*product))
}

func (s *Server) handleGetProduct(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	product, err := s.db.GetProduct(id)
	if err != nil {
		s.renderStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProductFromModel(*product))
}

func (s *Server) handleReevaluateProduct(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	product, _, err := s.catalog.ReevaluateProduct(id)
	if err != nil {
		s.renderStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProductFromModel(*product))
}

func (s *Server) handleUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("products")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			s.renderError(c, http.StatusBadRequest, errors.New("products csv file is required"))
		} else {
			s.renderError(c, http.StatusBadRequest, err)
		}
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	defer src.Close()

	result, err := s.catalog.ImportCSV(src)
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if result.Rows == 0 {
		s.renderError(c, http.StatusBadRequest, errors.New("no products detected in csv"))
		return
	}
	c.JSON(http.StatusOK, UploadResponse{ImportResult: result, Filename: fileHeader.Filename})
}

func (s *Server) handleStartReevaluation(c *gin.Context) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job, err := s.startReevaluation()
	if err != nil {
		if errors.Is(err, ErrJobRunning) {
			s.renderError(c, http.StatusConflict, err)
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusAccepted, StartReevaluationResponse{
		JobID:     job.id,
		Total:     job.total,
		StartedAt: job.startedAt,
	})
}

func (s *Server) handleCancelReevaluation(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("jobID"))

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.activeJob == nil {
		s.renderError(c, http.StatusNotFound, errors.New("no re-evaluation running"))
		return
	}
	if s.activeJob.id != jobID {
		s.renderError(c, http.StatusNotFound, errors.New("job not found"))
		return
	}

	s.activeJob.cancel()
	logrus.WithField("job", jobID).Info("re-evaluation cancellation requested")
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

func (s *Server) handleReevaluationStatus(c *gin.Context) {
	s.jobMu.Lock()
	job := s.activeJob
	s.jobMu.Unlock()

	resp := ReevaluationStatusResponse{Running: job != nil}
	if job != nil {
		resp.JobID = job.id
		resp.Total = job.total
	}
	if status := s.notifier.LastStatus(); status != nil {
		if job == nil || status.JobID == job.id {
			resp.JobID = status.JobID
			resp.State = status.Type
			resp.Message = status.Message
			resp.Processed = status.Processed
			resp.Approved = status.Approved
			if status.Total != 0 {
				resp.Total = status.Total
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleReevaluationStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.notifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("re-evaluation websocket connected")
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("re-evaluation websocket closed")
			} else {
				logrus.WithError(err).Warn("re-evaluation websocket unexpected close")
			}
			break
		}
	}
}

func (s *Server) exportRows(c *gin.Context) ([]store.Product, bool) {
	query := store.ProductQuery{Sort: "name_asc"}
	if value := strings.TrimSpace(c.Query("approved")); value != "" {
		approved, err := strconv.ParseBool(value)
		if err != nil {
			s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid approved: %s", value))
			return nil, false
		}
		query.Approved = &approved
	}
	rows, _, err := s.db.ListProducts(query)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return nil, false
	}
	return rows, true
}

// designerNames resolves designer display names by ID, caching each lookup.
func (s *Server) designerNames(rows []store.Product) (map[uint]string, error) {
	names := make(map[uint]string)
	for _, row := range rows {
		if _, ok := names[row.DesignerID]; ok {
			continue
		}
		designer, err := s.db.GetDesignerByID(row.DesignerID)
		if errors.Is(err, store.ErrNotFound) {
			names[row.DesignerID] = ""
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("designer %d: %w", row.DesignerID, err)
		}
		names[row.DesignerID] = designer.Name
	}
	return names, nil
}

func (s *Server) handleExportCSV(c *gin.Context) {
	rows, ok := s.exportRows(c)
	if !ok {
		return
	}
	designers, err := s.designerNames(rows)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=intertexe-products.csv")
	c.Header("Content-Type", "text/csv")

	writer := csv.NewWriter(c.Writer)
	headers := []string{"designer", "product", "composition", "approved", "natural_percent", "synthetic_percent", "reasons", "url"}
	if err := writer.Write(headers); err != nil {
		logrus.WithError(err).Warn("write csv export header")
		return
	}
	for _, row := range rows {
		dto := ProductFromModel(row)
		line := []string{
			designers[dto.DesignerID],
			dto.Name,
			formatEntries(dto.Entries),
			strconv.FormatBool(dto.Approved),
			strconv.FormatFloat(dto.NaturalPercent, 'f', -1, 64),
			strconv.FormatFloat(dto.SyntheticPercent, 'f', -1, 64),
			strings.Join(dto.Reasons, "|"),
			dto.URL,
		}
		if err := writer.Write(line); err != nil {
			logrus.WithError(err).WithField("product_id", dto.ID).Warn("write csv export row")
			return
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		logrus.WithError(err).WithField("rows", len(rows)).Warn("flush csv export")
	}
}

func (s *Server) handleExportJSON(c *gin.Context) {
	rows, ok := s.exportRows(c)
	if !ok {
		return
	}
	dtos := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, ProductFromModel(row))
	}
	c.Header("Content-Disposition", "attachment; filename=intertexe-products.json")
	c.JSON(http.StatusOK, dtos)
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

// renderStoreError maps catalog and store sentinel errors onto HTTP statuses.
func (s *Server) renderStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidInput):
		s.renderError(c, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrNotFound):
		s.renderError(c, http.StatusNotFound, err)
	default:
		s.renderError(c, http.StatusInternalServerError, err)
	}
}

func formatEntries(entries []fabric.FiberEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		part := strconv.FormatFloat(e.Percent, 'f', -1, 64) + "% " + match.CanonicalFiber(e.Fiber)
		if e.IsLining {
			part += " (lining)"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize <= 0 {
		pageSize = 25
	}
	if pageSize > 500 {
		pageSize = 500
	}
	return page * pageSize, pageSize
}

func parseUintParam(value string) (uint, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("identifier is required")
	}
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier: %w", err)
	}
	if parsed == 0 {
		return 0, errors.New("identifier must be greater than zero")
	}
	return uint(parsed), nil
}
