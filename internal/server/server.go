// Package server owns the read-only admin HTTP surface of a realm group.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/eventport/internal/eventport"
	"github.com/danmuck/eventport/internal/logging"
	"github.com/danmuck/eventport/internal/observability"
	"github.com/danmuck/eventport/internal/realm"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const Version = "0.1.0"

type Admin struct {
	Name     string
	Addr     string
	Appeared time.Time

	group  *realm.Group
	router *gin.Engine
	srv    *http.Server
}

// RealmInfo joins a realm's scheduler state with its eventport runtime.
type RealmInfo struct {
	realm.Status
	Instrumented bool             `json:"instrumented"`
	Runtime      *eventport.Stats `json:"runtime,omitempty"`
}

func New(name, addr string, group *realm.Group, corsOrigins []string) *Admin {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminRequests(name, logging.Component("admin")))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Admin{
		Name:     name,
		Addr:     addr,
		Appeared: time.Now(),
		group:    group,
		router:   r,
	}
}

func (a *Admin) HTTPRouter() *gin.Engine {
	return a.router
}

// Realms reports every realm of the group in creation order.
func (a *Admin) Realms() []RealmInfo {
	realms := a.group.Realms()
	status := a.group.Status()
	out := make([]RealmInfo, 0, len(status))
	for i, st := range status {
		info := RealmInfo{Status: st}
		if i < len(realms) {
			if rt, ok := eventport.For(realms[i]); ok {
				stats := rt.Stats()
				info.Instrumented = true
				info.Runtime = &stats
			}
		}
		out = append(out, info)
	}
	return out
}

// Serve registers routes and blocks until ctx is done or the listener fails.
func (a *Admin) Serve(ctx context.Context) error {
	a.RegisterRoutes()
	a.srv = &http.Server{Addr: a.Addr, Handler: a.router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- a.srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
