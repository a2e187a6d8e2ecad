package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mtc-tools/neos-proxy/internal/logging"
	"github.com/mtc-tools/neos-proxy/internal/neosapi"
	"github.com/mtc-tools/neos-proxy/internal/report"
	"github.com/mtc-tools/neos-proxy/internal/sessionwatch"
	"github.com/mtc-tools/neos-proxy/internal/telemetry"
	"github.com/mtc-tools/neos-proxy/internal/usercache"
)

var log = logging.L("server")

// POST bodies carry a single integer; anything bigger is abuse.
const maxRegisterBody = 16 * 1024

// Directory lists the current sessions from the remote directory.
type Directory interface {
	Sessions(ctx context.Context) ([]neosapi.Session, error)
}

// ProfileSource resolves a user id to an abridged profile.
type ProfileSource interface {
	Lookup(ctx context.Context, userID string) (usercache.AbridgedUser, error)
}

// Server owns the HTTP surface. All shared state (registers, known-id
// set, profile cache) is injected, nothing is ambient.
type Server struct {
	directory Directory
	profiles  ProfileSource
	watcher   *sessionwatch.Watcher
	formatter *report.Formatter
	telemetry *telemetry.Collector

	counter  Register
	initTime Register

	now func() time.Time
}

func New(directory Directory, profiles ProfileSource, watcher *sessionwatch.Watcher, formatter *report.Formatter, collector *telemetry.Collector) *Server {
	return &Server{
		directory: directory,
		profiles:  profiles,
		watcher:   watcher,
		formatter: formatter,
		telemetry: collector,
		now:       time.Now,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods:    []string{"GET", "POST"},
		AllowHeaders:    []string{"Origin", "Content-Type"},
	}))

	r.GET("/hello", s.hello)
	r.GET("/hello/:name", s.helloName)

	r.POST("/initTime", s.initTimeSet)
	r.POST("/initTimeForce", s.initTimeForce)
	r.POST("/initTimeReset", s.initTimeReset)
	r.GET("/initTimePeek", s.initTimePeek)
	r.GET("/counter", s.counterBump)

	r.GET("/systemstat", s.systemStat)
	r.GET("/sessionlist", s.sessionList)
	r.GET("/userlist", s.userList)
	r.GET("/user/:id", s.userRegistration)

	r.GET("/echo", s.echoWS)
	r.GET("/wshello", s.helloWS)

	return r
}

func (s *Server) hello(c *gin.Context) {
	c.String(http.StatusOK, "Hello!")
}

func (s *Server) helloName(c *gin.Context) {
	c.String(http.StatusOK, "Hello, %s!", c.Param("name"))
}

func (s *Server) initTimeSet(c *gin.Context) {
	n, ok := readRegisterBody(c)
	if !ok {
		return
	}
	stored := s.initTime.SetIfUnset(n)
	c.String(http.StatusOK, strconv.FormatInt(stored, 10))
}

func (s *Server) initTimeForce(c *gin.Context) {
	n, ok := readRegisterBody(c)
	if !ok {
		return
	}
	s.initTime.Force(n)
	c.String(http.StatusOK, strconv.FormatInt(n, 10))
}

func (s *Server) initTimeReset(c *gin.Context) {
	s.initTime.Reset()
	c.Status(http.StatusOK)
}

func (s *Server) initTimePeek(c *gin.Context) {
	c.String(http.StatusOK, renderOption(s.initTime.Peek()))
}

func (s *Server) counterBump(c *gin.Context) {
	c.String(http.StatusOK, renderOption(s.counter.Increment(), true))
}

func (s *Server) systemStat(c *gin.Context) {
	c.String(http.StatusOK, s.telemetry.Snapshot())
}

// sessionList runs the whole pipeline for one report request: fresh
// directory poll, filter and enrich, swap the known-id set, render. A
// failed list fetch fails the request and mutates nothing.
func (s *Server) sessionList(c *gin.Context) {
	ctx := c.Request.Context()

	sessions, err := s.directory.Sessions(ctx)
	if err != nil {
		log.Error("session list fetch failed", logging.KeyError, err)
		c.String(http.StatusInternalServerError, "Error reading session api response: %v", err)
		return
	}

	now := s.now()
	surviving, notify := s.watcher.Filter(ctx, sessions, now)
	c.String(http.StatusOK, s.formatter.SessionReport(ctx, surviving, notify, now))
}

func (s *Server) userList(c *gin.Context) {
	sessions, err := s.directory.Sessions(c.Request.Context())
	if err != nil {
		log.Error("session list fetch failed", logging.KeyError, err)
		c.String(http.StatusInternalServerError, "Error reading session api response: %v", err)
		return
	}
	c.String(http.StatusOK, report.UserNames(sessions))
}

func (s *Server) userRegistration(c *gin.Context) {
	userID := c.Param("id")
	entry, err := s.profiles.Lookup(c.Request.Context(), userID)
	if err != nil {
		log.Warn("registration lookup failed", logging.KeyUserID, userID, logging.KeyError, err)
		c.String(http.StatusNotFound, "user %s could not be resolved: %v", userID, err)
		return
	}
	c.String(http.StatusOK, report.RegistrationStamp(entry))
}

func readRegisterBody(c *gin.Context) (int64, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRegisterBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			c.String(http.StatusRequestEntityTooLarge, "reading body: %v", err)
			return 0, false
		}
		c.String(http.StatusBadRequest, "reading body: %v", err)
		return 0, false
	}
	n, err := strconv.ParseInt(string(body), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return 0, false
	}
	return n, true
}
