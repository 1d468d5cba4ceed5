package booking

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/salon-booking/internal/middleware"
	"github.com/jwalitptl/salon-booking/internal/model"
	"github.com/jwalitptl/salon-booking/internal/service/bookingform"
	"github.com/jwalitptl/salon-booking/pkg/errors"
	"github.com/jwalitptl/salon-booking/pkg/httputil"
)

// FormFactory builds a fresh booking form for a new visitor.
type FormFactory func() *bookingform.Controller

// Handler keeps one booking form per visitor. Idle forms expire after ttl.
type Handler struct {
	forms   *cache.Cache
	newForm FormFactory
}

func NewHandler(newForm FormFactory, ttl, cleanupInterval time.Duration) *Handler {
	return &Handler{
		forms:   cache.New(ttl, cleanupInterval),
		newForm: newForm,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/services", h.ListServices)

	form := r.Group("/form")
	{
		form.GET("", h.GetForm)
		form.PUT("", h.UpdateForm)
		form.POST("/refresh", h.RefreshTimes)
		form.POST("/submit", h.Submit)
	}
}

// UpdateFormRequest carries the fields being changed. Absent fields are left
// alone; an empty date clears it.
type UpdateFormRequest struct {
	Name    *string `json:"name"`
	Phone   *string `json:"phone"`
	Service *string `json:"service"`
	Date    *string `json:"date"`
	Time    *string `json:"time"`
}

func (h *Handler) ListServices(c *gin.Context) {
	httputil.RespondWithSuccess(c, model.Services)
}

func (h *Handler) GetForm(c *gin.Context) {
	httputil.RespondWithSuccess(c, h.form(c).Snapshot())
}

func (h *Handler) UpdateForm(c *gin.Context) {
	var req UpdateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid request body", err))
		return
	}

	var date time.Time
	if req.Date != nil && *req.Date != "" {
		d, err := time.ParseInLocation(model.DateLayout, *req.Date, time.Local)
		if err != nil {
			httputil.RespondWithError(c, errors.BadRequest("date must be YYYY-MM-DD", err))
			return
		}
		date = d
	}

	form := h.form(c)
	ctx := c.Request.Context()

	if req.Name != nil {
		form.SetName(*req.Name)
	}
	if req.Phone != nil {
		form.SetPhone(*req.Phone)
	}
	if req.Time != nil {
		form.SetTime(*req.Time)
	}
	// slot refresh failures keep the previous slots and are logged by the form
	if req.Service != nil {
		_ = form.SelectService(ctx, model.ServiceName(*req.Service))
	}
	if req.Date != nil {
		_ = form.SelectDate(ctx, date)
	}

	httputil.RespondWithSuccess(c, form.Snapshot())
}

func (h *Handler) RefreshTimes(c *gin.Context) {
	form := h.form(c)
	if err := form.RefreshAvailableTimes(c.Request.Context()); err != nil {
		httputil.RespondWithErrorData(c, err, form.Snapshot())
		return
	}
	httputil.RespondWithSuccess(c, form.Snapshot())
}

func (h *Handler) Submit(c *gin.Context) {
	form := h.form(c)
	if err := form.Submit(c.Request.Context()); err != nil {
		httputil.RespondWithErrorData(c, err, form.Snapshot())
		return
	}
	c.JSON(http.StatusCreated, httputil.Response{Success: true, Data: form.Snapshot()})
}

// form returns the visitor's form, creating it on first use. Every access
// pushes the expiry out again.
func (h *Handler) form(c *gin.Context) *bookingform.Controller {
	id := c.GetString(middleware.ContextVisitorID)

	if v, ok := h.forms.Get(id); ok {
		form := v.(*bookingform.Controller)
		h.forms.SetDefault(id, form)
		return form
	}

	form := h.newForm()
	if err := h.forms.Add(id, form, cache.DefaultExpiration); err != nil {
		// another request for the same visitor won the race
		if v, ok := h.forms.Get(id); ok {
			return v.(*bookingform.Controller)
		}
		h.forms.SetDefault(id, form)
	}
	return form
}
