// Package router assembles the versioned API from per-area route groups.
package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

const defaultAPIVersion = "v1"

// Router mounts route groups under /api/<version>
type Router struct {
	engine  *gin.Engine
	version string
	groups  []*DomainGroup
}

type RouterOption func(*Router)

// WithAPIVersion replaces the default "v1" prefix
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) { r.version = version }
}

func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, version: defaultAPIVersion}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register queues groups for Setup
func (r *Router) Register(groups ...*DomainGroup) *Router {
	r.groups = append(r.groups, groups...)
	return r
}

// Setup installs every registered group on the engine
func (r *Router) Setup() {
	base := r.engine.Group(path.Join("/api", r.version))
	for _, g := range r.groups {
		g.mount(base)
	}
}

// DomainGroup is one API area: a path prefix, the middleware guarding it,
// its routes and nested groups. Nested groups run the parent's middleware
// before their own.
type DomainGroup struct {
	name       string
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
	children   []*DomainGroup
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

func (g *DomainGroup) Name() string { return g.name }

// Use appends middleware run before every route of the group
func (g *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	g.middleware = append(g.middleware, middleware...)
	return g
}

func (g *DomainGroup) Handle(method, relativePath string, handlers ...gin.HandlerFunc) *DomainGroup {
	g.routes = append(g.routes, route{method: method, path: relativePath, handlers: handlers})
	return g
}

func (g *DomainGroup) GET(p string, h ...gin.HandlerFunc) *DomainGroup {
	return g.Handle(http.MethodGet, p, h...)
}

func (g *DomainGroup) POST(p string, h ...gin.HandlerFunc) *DomainGroup {
	return g.Handle(http.MethodPost, p, h...)
}

func (g *DomainGroup) PUT(p string, h ...gin.HandlerFunc) *DomainGroup {
	return g.Handle(http.MethodPut, p, h...)
}

func (g *DomainGroup) DELETE(p string, h ...gin.HandlerFunc) *DomainGroup {
	return g.Handle(http.MethodDelete, p, h...)
}

// Group adds a nested group and returns it
func (g *DomainGroup) Group(name, prefix string) *DomainGroup {
	child := NewDomainGroup(name, prefix)
	g.children = append(g.children, child)
	return child
}

func (g *DomainGroup) mount(parent *gin.RouterGroup) {
	rg := parent.Group(g.prefix, g.middleware...)
	for _, rt := range g.routes {
		rg.Handle(rt.method, rt.path, rt.handlers...)
	}
	for _, child := range g.children {
		child.mount(rg)
	}
}

// Paths lists "METHOD /path" of every route relative to the API root
func (g *DomainGroup) Paths() []string {
	return g.collect("/", nil)
}

func (g *DomainGroup) collect(parent string, out []string) []string {
	prefix := path.Join(parent, g.prefix)
	for _, rt := range g.routes {
		out = append(out, rt.method+" "+path.Join(prefix, rt.path))
	}
	for _, child := range g.children {
		out = child.collect(prefix, out)
	}
	return out
}
