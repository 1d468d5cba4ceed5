package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/salon-booking/internal/model"
	adminsvc "github.com/jwalitptl/salon-booking/internal/service/admin"
	"github.com/jwalitptl/salon-booking/pkg/errors"
	"github.com/jwalitptl/salon-booking/pkg/httputil"
)

// APIFactory returns a booking API client acting with the given Cookie header.
type APIFactory func(cookie string) adminsvc.API

// Handler builds a console per request. The admin session lives in the
// visitor's cookies, so nothing is kept between requests.
type Handler struct {
	newAPI APIFactory
	opts   []adminsvc.Option
}

func NewHandler(newAPI APIFactory, opts ...adminsvc.Option) *Handler {
	return &Handler{newAPI: newAPI, opts: opts}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET(model.LoginPath, h.LoginPage)

	g := r.Group("/admin")
	{
		g.GET("", h.Console)
		g.DELETE("/bookings/:id", h.CancelBooking)
		g.POST("/available-times", h.SetAvailableTimes)
		g.POST("/logout", h.Logout)
	}
}

type SetAvailableTimesRequest struct {
	Date  string `json:"date"`
	Times string `json:"times"`
}

// ConsoleView is what every admin endpoint returns.
type ConsoleView struct {
	State   adminsvc.State `json:"state"`
	Notices []string       `json:"notices,omitempty"`
}

// navigator and notifier collect what the console asked for during one
// request; the handler turns them into the response.
type navigator struct{ path string }

func (n *navigator) Redirect(path string) { n.path = path }

type notifier struct{ messages []string }

func (n *notifier) Acknowledge(message string) { n.messages = append(n.messages, message) }

// cookieSource is implemented by API clients that hand back the cookies the
// booking API set, such as a refreshed session or a logout clearing it.
type cookieSource interface {
	SetCookies() []string
}

type session struct {
	api      adminsvc.API
	console  *adminsvc.Controller
	nav      *navigator
	notifier *notifier
	relayed  int
}

func (h *Handler) open(c *gin.Context) *session {
	s := &session{nav: &navigator{}, notifier: &notifier{}}
	s.api = h.newAPI(c.GetHeader("Cookie"))
	s.console = adminsvc.NewController(s.api, s.nav, s.notifier, h.opts...)
	return s
}

// relayCookies copies upstream Set-Cookie headers not yet written onto the
// visitor's response. It must run before the response is written.
func (s *session) relayCookies(c *gin.Context) {
	src, ok := s.api.(cookieSource)
	if !ok {
		return
	}
	values := src.SetCookies()
	for _, v := range values[s.relayed:] {
		c.Writer.Header().Add("Set-Cookie", v)
	}
	s.relayed = len(values)
}

func (s *session) view() ConsoleView {
	return ConsoleView{State: s.console.Snapshot(), Notices: s.notifier.messages}
}

// gate runs the session check and writes the rejection when there is no
// session. It reports whether the handler may go on.
func (h *Handler) gate(c *gin.Context, s *session) bool {
	state, _ := s.console.CheckSession(c.Request.Context())
	if state == model.AuthAuthenticated {
		return true
	}
	s.relayCookies(c)
	c.JSON(http.StatusUnauthorized, httputil.Response{
		Success: false,
		Data:    gin.H{"redirect": s.nav.path},
		Error:   &httputil.Error{Code: http.StatusUnauthorized, Message: "unauthorized"},
	})
	return false
}

func (h *Handler) Console(c *gin.Context) {
	s := h.open(c)
	state, _ := s.console.CheckSession(c.Request.Context())
	s.relayCookies(c)
	if state != model.AuthAuthenticated {
		c.Redirect(http.StatusFound, s.nav.path)
		return
	}
	httputil.RespondWithSuccess(c, s.view())
}

func (h *Handler) CancelBooking(c *gin.Context) {
	s := h.open(c)
	if !h.gate(c, s) {
		return
	}

	id := model.BookingID(c.Param("id"))
	err := s.console.CancelBooking(c.Request.Context(), id)
	s.relayCookies(c)
	if err != nil {
		httputil.RespondWithErrorData(c, err, s.view())
		return
	}
	httputil.RespondWithSuccess(c, s.view())
}

func (h *Handler) SetAvailableTimes(c *gin.Context) {
	var req SetAvailableTimesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid request body", err))
		return
	}

	s := h.open(c)
	if !h.gate(c, s) {
		return
	}

	err := s.console.SetAvailableTimes(c.Request.Context(), req.Date, req.Times)
	s.relayCookies(c)
	if err != nil {
		httputil.RespondWithErrorData(c, err, s.view())
		return
	}
	httputil.RespondWithSuccess(c, s.view())
}

func (h *Handler) Logout(c *gin.Context) {
	s := h.open(c)
	_ = s.console.Logout(c.Request.Context())
	s.relayCookies(c)
	c.Redirect(http.StatusSeeOther, s.nav.path)
}

// LoginPage stands in for the login form, which the booking API serves.
func (h *Handler) LoginPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "login required"})
}
