// Package admin serves a small HTTP status surface next to the CoAP server.
package admin

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	coap "github.com/ironzhang/go-mcoap"
)

// Lister 列出当前提供服务的资源
type Lister interface {
	Resources() []coap.Resource
}

// ResourceInfo /resources接口返回的资源描述
type ResourceInfo struct {
	Path    string   `json:"path"`
	Title   string   `json:"title,omitempty"`
	Methods []string `json:"methods"`
}

// Server HTTP状态服务
type Server struct {
	lister Lister
	ready  atomic.Bool
	srv    *http.Server
}

func New(addr string, lister Lister) *Server {
	s := &Server{lister: lister}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router 返回HTTP路由
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Get("/livez", s.handleLivenessCheck)
	r.Get("/readyz", s.handleReadinessCheck)
	r.Get("/resources", s.handleResources)
	return r
}

// SetReady 设置/readyz的返回状态
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) ListenAndServe() error {
	log.Printf("admin listen and serve on %q", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "admin listen and serve")
	}
	return nil
}

func (s *Server) Close() error {
	return s.srv.Close()
}

func (s *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	resources := s.lister.Resources()
	infos := make([]ResourceInfo, 0, len(resources))
	for _, res := range resources {
		info := ResourceInfo{Path: "/" + res.Path(), Title: res.Title()}
		for _, m := range coap.Methods(res) {
			info.Methods = append(info.Methods, m.String())
		}
		infos = append(infos, info)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		log.Printf("encode resources: %v", err)
	}
}
