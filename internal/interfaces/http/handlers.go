package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/deed-approval/internal/application/workflow"
	"github.com/garyjia/deed-approval/internal/domain/entity"
)

// Handlers contains HTTP handlers for the approval workflow API
type Handlers struct {
	engine workflow.WorkflowEngine
	health func() error
	logger Logger
}

// NewHandlers creates handlers backed by the workflow engine.
// health may be nil.
func NewHandlers(engine workflow.WorkflowEngine, health func() error, logger Logger) *Handlers {
	return &Handlers{engine: engine, health: health, logger: logger}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if h.health != nil {
		if err := h.health(); err != nil {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			h.logger.Error("Health check failed", "error", err)
		}
	}
	c.JSON(code, Response{
		Success: code == http.StatusOK,
		Data: gin.H{
			"status": status,
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// ListForms handles GET /api/forms
func (h *Handlers) ListForms(c *gin.Context) {
	filter := entity.FormFilter{
		ServiceType:   entity.ServiceType(c.Query("service_type")),
		Status:        entity.Status(c.Query("status")),
		SubmitterID:   c.Query("submitter_id"),
		AssignedTo:    c.Query("assigned_to"),
		Search:        c.Query("search"),
		IncludeLegacy: c.DefaultQuery("include_legacy", "true") != "false",
	}
	var ok bool
	if filter.Limit, ok = h.intQuery(c, "limit"); !ok {
		return
	}
	if filter.Offset, ok = h.intQuery(c, "offset"); !ok {
		return
	}

	forms, err := h.engine.ListUnified(c.Request.Context(), actorFrom(c), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: forms})
}

// GetForm handles GET /api/forms/:id
func (h *Handlers) GetForm(c *gin.Context) {
	form, err := h.engine.GetForm(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: form})
}

// SaveDraft handles POST /api/forms/draft
func (h *Handlers) SaveDraft(c *gin.Context) {
	var in workflow.SaveDraftInput
	if !h.bind(c, &in) {
		return
	}
	h.mutation(c, http.StatusOK, func() (*workflow.Result, error) {
		return h.engine.SaveDraft(c.Request.Context(), actorFrom(c), in)
	})
}

// Submit handles POST /api/forms
func (h *Handlers) Submit(c *gin.Context) {
	var in workflow.SubmitInput
	if !h.bind(c, &in) {
		return
	}
	status := http.StatusOK
	if in.FormID == "" {
		status = http.StatusCreated
	}
	h.mutation(c, status, func() (*workflow.Result, error) {
		return h.engine.Submit(c.Request.Context(), actorFrom(c), in)
	})
}

// Resubmit handles POST /api/forms/:id/submit
func (h *Handlers) Resubmit(c *gin.Context) {
	var in workflow.SubmitInput
	if !h.bind(c, &in) {
		return
	}
	in.FormID = c.Param("id")
	h.mutation(c, http.StatusOK, func() (*workflow.Result, error) {
		return h.engine.Submit(c.Request.Context(), actorFrom(c), in)
	})
}

// Assign handles POST /api/forms/:id/assign
func (h *Handlers) Assign(c *gin.Context) {
	var in workflow.AssignInput
	if !h.bind(c, &in) {
		return
	}
	in.FormID = c.Param("id")
	h.mutation(c, http.StatusOK, func() (*workflow.Result, error) {
		return h.engine.Assign(c.Request.Context(), actorFrom(c), in)
	})
}

// Correct handles POST /api/forms/:id/correct
func (h *Handlers) Correct(c *gin.Context) {
	var in workflow.CorrectInput
	if !h.bind(c, &in) {
		return
	}
	in.FormID = c.Param("id")
	h.mutation(c, http.StatusOK, func() (*workflow.Result, error) {
		return h.engine.Correct(c.Request.Context(), actorFrom(c), in)
	})
}

// Verify handles POST /api/forms/:id/verify
func (h *Handlers) Verify(c *gin.Context) {
	var in workflow.VerifyInput
	if !h.bind(c, &in) {
		return
	}
	in.FormID = c.Param("id")
	h.mutation(c, http.StatusOK, func() (*workflow.Result, error) {
		return h.engine.Verify(c.Request.Context(), actorFrom(c), in)
	})
}

// RequestCorrection handles POST /api/forms/:id/request-correction
func (h *Handlers) RequestCorrection(c *gin.Context) {
	var in workflow.RequestCorrectionInput
	if !h.bind(c, &in) {
		return
	}
	in.FormID = c.Param("id")
	h.mutation(c, http.StatusOK, func() (*workflow.Result, error) {
		return h.engine.RequestCorrection(c.Request.Context(), actorFrom(c), in)
	})
}

// StampDuty handles POST /api/forms/:id/stamp-duty
func (h *Handlers) StampDuty(c *gin.Context) {
	var in workflow.StampDutyInput
	if !h.bind(c, &in) {
		return
	}
	in.FormID = c.Param("id")
	h.mutation(c, http.StatusOK, func() (*workflow.Result, error) {
		return h.engine.CalculateStampDuty(c.Request.Context(), actorFrom(c), in)
	})
}

// FinalApproval handles POST /api/forms/:id/final-approval
func (h *Handlers) FinalApproval(c *gin.Context) {
	var in workflow.FinalApprovalInput
	if !h.bind(c, &in) {
		return
	}
	in.FormID = c.Param("id")
	h.mutation(c, http.StatusOK, func() (*workflow.Result, error) {
		return h.engine.FinalApproval(c.Request.Context(), actorFrom(c), in)
	})
}

// DeleteForm handles DELETE /api/forms/:id?expected_version=N
func (h *Handlers) DeleteForm(c *gin.Context) {
	expected, ok := h.intQuery(c, "expected_version")
	if !ok {
		return
	}
	h.mutation(c, http.StatusOK, func() (*workflow.Result, error) {
		return h.engine.Delete(c.Request.Context(), actorFrom(c), c.Param("id"), expected)
	})
}

// GetAuditTrail handles GET /api/forms/:id/audit
func (h *Handlers) GetAuditTrail(c *gin.Context) {
	after, ok := h.intQuery(c, "after")
	if !ok {
		return
	}
	limit, ok := h.intQuery(c, "limit")
	if !ok {
		return
	}

	entries, err := h.engine.GetAuditTrail(c.Request.Context(), actorFrom(c), c.Param("id"), int64(after), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// GetReport handles GET /api/forms/:id/report
func (h *Handlers) GetReport(c *gin.Context) {
	report, err := h.engine.GetReport(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

// DownloadReport handles GET /api/forms/:id/report/document
func (h *Handlers) DownloadReport(c *gin.Context) {
	doc, err := h.engine.RenderReport(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	c.Data(http.StatusOK, doc.ContentType, doc.Content)
}

// ListStaffReports handles GET /api/staff/reports
func (h *Handlers) ListStaffReports(c *gin.Context) {
	pendingOnly := c.Query("pending") == "true"
	reports, err := h.engine.ListStaffReports(c.Request.Context(), actorFrom(c), pendingOnly)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: reports})
}

// SubmitWorkReports handles POST /api/staff/reports/submit
func (h *Handlers) SubmitWorkReports(c *gin.Context) {
	count, err := h.engine.SubmitWorkReports(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"submitted": count}})
}

func (h *Handlers) mutation(c *gin.Context, status int, run func() (*workflow.Result, error)) {
	result, err := run()
	if err != nil {
		h.writeError(c, err)
		return
	}
	if result.Degraded() {
		h.logger.Info("Mutation committed with warnings", "path", c.FullPath(), "warnings", result.Warnings)
	}
	c.JSON(status, Response{Success: true, Data: result})
}

func (h *Handlers) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// intQuery parses an optional non-negative integer query parameter
func (h *Handlers) intQuery(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		h.badRequest(c, "invalid "+name+" parameter")
		return 0, false
	}
	return n, true
}
