package handlers

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"welfare-server-go/auth"
	"welfare-server-go/models"
	"welfare-server-go/service"
)

const (
	xlsxMime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	pdfMime  = "application/pdf"
)

// Pinger reports whether a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// APIHandler holds the dependencies for API handlers
type APIHandler struct {
	Households *service.Households
	Auth       *auth.Service
	Redis      Pinger
	log        *zap.Logger
	now        func() time.Time
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(households *service.Households, authService *auth.Service, redis Pinger, log *zap.Logger) *APIHandler {
	return &APIHandler{
		Households: households,
		Auth:       authService,
		Redis:      redis,
		log:        log,
		now:        time.Now,
	}
}

// NewRouter registers every route on a fresh gin engine
func NewRouter(h *APIHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(h.log))
	router.MaxMultipartMemory = 8 << 20

	api := router.Group("/api")
	{
		api.GET("/ping", h.Ping)
		api.POST("/login", h.Login)
		api.GET("/options", Options)

		private := api.Group("", h.RequireAuth)
		{
			private.POST("/logout", h.Logout)
			private.GET("/me", h.Me)

			// Household routes
			private.GET("/households", h.ListHouseholds)
			private.POST("/households", h.CreateHousehold)
			private.DELETE("/households", h.DeleteHouseholdsByName)
			private.GET("/households/:id", h.GetHousehold)
			private.PUT("/households/:id", h.UpdateHousehold)
			private.DELETE("/households/:id", h.DeleteHousehold)
			private.POST("/households/:id/photo", h.UploadPhoto)
			private.GET("/households/:id/photo", h.GetPhoto)

			private.GET("/summary", h.Summary)
			private.POST("/classify", h.Classify)

			// Import / export
			private.POST("/import/households", h.ImportHouseholds)
			private.GET("/export/excel", h.ExportExcel)
			private.GET("/export/pdf", h.ExportPDF)

			admin := private.Group("", h.RequireRole(models.RoleAdmin))
			{
				admin.GET("/users", h.ListUsers)
				admin.POST("/users", h.CreateUser)
			}
		}
	}
	return router
}

// --- Auth Handlers ---

// Login handles POST /api/login
func (h *APIHandler) Login(c *gin.Context) {
	var creds auth.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if err := models.Validate(creds); err != nil {
		h.respondError(c, err, "Failed to log in")
		return
	}

	sess, err := h.Auth.Login(c.Request.Context(), creds)
	if err != nil {
		h.respondError(c, err, "Failed to log in")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, sess.Token, 0, "/", "", false, true)
	c.JSON(http.StatusOK, sess)
}

// Logout handles POST /api/logout
func (h *APIHandler) Logout(c *gin.Context) {
	sess, _ := currentSession(c)
	if err := h.Auth.Logout(c.Request.Context(), sess.Token); err != nil {
		h.respondError(c, err, "Failed to log out")
		return
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me handles GET /api/me
func (h *APIHandler) Me(c *gin.Context) {
	sess, _ := currentSession(c)
	c.JSON(http.StatusOK, gin.H{"username": sess.Username, "role": sess.Role})
}

// --- Household Handlers ---

// ListHouseholds handles GET /api/households?search=&classification=
func (h *APIHandler) ListHouseholds(c *gin.Context) {
	f, ok := filterFrom(c)
	if !ok {
		return
	}
	households, err := h.Households.List(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err, "Failed to retrieve households")
		return
	}
	c.JSON(http.StatusOK, households)
}

// GetHousehold handles GET /api/households/:id
func (h *APIHandler) GetHousehold(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	household, err := h.Households.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to retrieve household")
		return
	}
	c.JSON(http.StatusOK, household)
}

// CreateHousehold handles POST /api/households
func (h *APIHandler) CreateHousehold(c *gin.Context) {
	var in models.HouseholdInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	household, err := h.Households.Create(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err, "Failed to add household")
		return
	}
	c.JSON(http.StatusCreated, household)
}

// UpdateHousehold handles PUT /api/households/:id
func (h *APIHandler) UpdateHousehold(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var in models.HouseholdInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	household, err := h.Households.Update(c.Request.Context(), id, in)
	if err != nil {
		h.respondError(c, err, "Failed to update household")
		return
	}
	c.JSON(http.StatusOK, household)
}

// DeleteHousehold handles DELETE /api/households/:id
func (h *APIHandler) DeleteHousehold(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.Households.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err, "Failed to delete household")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Household deleted", "id": id})
}

// DeleteHouseholdsByName handles DELETE /api/households?name=
func (h *APIHandler) DeleteHouseholdsByName(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		badRequest(c, "Query parameter 'name' is required")
		return
	}
	n, err := h.Households.DeleteByName(c.Request.Context(), name)
	if err != nil {
		h.respondError(c, err, "Failed to delete households")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Households deleted", "name": name, "deletedCount": n})
}

// UploadPhoto handles POST /api/households/:id/photo
func (h *APIHandler) UploadPhoto(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	header, err := c.FormFile("photo")
	if err != nil {
		badRequest(c, "Error retrieving uploaded photo: "+err.Error())
		return
	}
	file, err := header.Open()
	if err != nil {
		badRequest(c, "Error opening uploaded photo: "+err.Error())
		return
	}
	defer file.Close()

	household, err := h.Households.AttachPhoto(c.Request.Context(), id, file)
	if err != nil {
		h.respondError(c, err, "Failed to store photo")
		return
	}
	c.JSON(http.StatusOK, household)
}

// GetPhoto handles GET /api/households/:id/photo
func (h *APIHandler) GetPhoto(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	f, mtype, err := h.Households.Photo(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to load photo")
		return
	}
	defer f.Close()

	c.Header("Content-Type", mtype)
	http.ServeContent(c.Writer, c.Request, "", time.Time{}, f)
}

// Summary handles GET /api/summary?search=
func (h *APIHandler) Summary(c *gin.Context) {
	f, ok := filterFrom(c)
	if !ok {
		return
	}
	sum, err := h.Households.Summary(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err, "Failed to compute summary")
		return
	}
	c.JSON(http.StatusOK, sum)
}

// Classify handles POST /api/classify
func (h *APIHandler) Classify(c *gin.Context) {
	var in models.HouseholdInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if in.Name == "" {
		// a preview needs no name
		in.Name = "-"
	}
	res, err := h.Households.Preview(in)
	if err != nil {
		h.respondError(c, err, "Failed to classify")
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Import / Export Handlers ---

// ImportHouseholds handles POST /api/import/households
func (h *APIHandler) ImportHouseholds(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "Error retrieving uploaded file: "+err.Error())
		return
	}
	file, err := header.Open()
	if err != nil {
		badRequest(c, "Error opening uploaded file: "+err.Error())
		return
	}
	defer file.Close()

	h.log.Info("received import upload", zap.String("file", header.Filename), zap.Int64("size", header.Size))

	res, err := h.Households.Import(c.Request.Context(), file)
	if err != nil {
		h.respondError(c, err, "Failed to import households")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Import finished",
		"inserted": res.Inserted,
		"failed":   res.Failed,
	})
}

// ExportExcel handles GET /api/export/excel?note=
func (h *APIHandler) ExportExcel(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.Households.ExportExcel(c.Request.Context(), &buf, c.Query("note")); err != nil {
		h.respondError(c, err, "Failed to export Excel")
		return
	}
	attachment(c, service.ExportFileName(h.now(), "xlsx"), xlsxMime, buf.Bytes())
}

// ExportPDF handles GET /api/export/pdf?note=
func (h *APIHandler) ExportPDF(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.Households.ExportPDF(c.Request.Context(), &buf, c.Query("note")); err != nil {
		h.respondError(c, err, "Failed to export PDF")
		return
	}
	attachment(c, service.ExportFileName(h.now(), "pdf"), pdfMime, buf.Bytes())
}

// --- User Handlers ---

// ListUsers handles GET /api/users
func (h *APIHandler) ListUsers(c *gin.Context) {
	users, err := h.Auth.ListUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to retrieve users")
		return
	}
	c.JSON(http.StatusOK, users)
}

// CreateUser handles POST /api/users
func (h *APIHandler) CreateUser(c *gin.Context) {
	var nu auth.NewUser
	if err := c.ShouldBindJSON(&nu); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	u, err := h.Auth.CreateUser(c.Request.Context(), nu)
	if err != nil {
		h.respondError(c, err, "Failed to create user")
		return
	}
	c.JSON(http.StatusCreated, u)
}

// --- Misc Handlers ---

// Ping handles GET /api/ping
func (h *APIHandler) Ping(c *gin.Context) {
	if h.Redis != nil {
		if err := h.Redis.Ping(c.Request.Context()); err != nil {
			h.log.Warn("redis ping failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Session store unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pong!"})
}

// Options handles GET /api/options
func Options(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"education":       models.EducationLevels,
		"occupations":     models.Occupations,
		"classifications": models.Classifications,
	})
}

// --- Helpers ---

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Household ID must be a positive integer")
		return 0, false
	}
	return id, true
}

func filterFrom(c *gin.Context) (models.Filter, bool) {
	f := models.Filter{Search: c.Query("search")}
	if class := c.Query("classification"); class != "" {
		f.Classification = models.Classification(class)
		if !f.Classification.Valid() {
			badRequest(c, "Unknown classification: "+class)
			return models.Filter{}, false
		}
	}
	return f, true
}

func attachment(c *gin.Context, filename, mime string, data []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, mime, data)
}
