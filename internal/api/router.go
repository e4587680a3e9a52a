// Package api serves the read-only HTTP interface over the song corpus and
// the artist graph.
package api

import (
	"log/slog"
	"net/http"

	"github.com/sydlexius/anisongdb/internal/api/middleware"
	"github.com/sydlexius/anisongdb/internal/artist"
	"github.com/sydlexius/anisongdb/internal/event"
	"github.com/sydlexius/anisongdb/internal/maintenance"
	"github.com/sydlexius/anisongdb/internal/resolver"
	"github.com/sydlexius/anisongdb/internal/search"
	"github.com/sydlexius/anisongdb/internal/song"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	ArtistStore *artist.Store
	Corpus      *song.Cache
	Resolver    *resolver.Resolver
	// Maintenance is optional; without it health omits database stats.
	Maintenance *maintenance.Service
	// SearchLimiter is optional; without it search routes are unlimited.
	SearchLimiter *middleware.RateLimiter
	// EventBus is optional; health reports its dropped event count.
	EventBus   *event.Bus
	Logger     *slog.Logger
	BasePath   string
	MaxResults int
}

// Router sets up all HTTP routes for the application.
type Router struct {
	artistStore   *artist.Store
	corpus        *song.Cache
	resolver      *resolver.Resolver
	maintenance   *maintenance.Service
	searchLimiter *middleware.RateLimiter
	eventBus      *event.Bus
	logger        *slog.Logger
	basePath      string
	maxResults    int
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	maxResults := deps.MaxResults
	if maxResults <= 0 {
		maxResults = search.DefaultMaxResults
	}
	return &Router{
		artistStore:   deps.ArtistStore,
		corpus:        deps.Corpus,
		resolver:      deps.Resolver,
		maintenance:   deps.Maintenance,
		searchLimiter: deps.SearchLimiter,
		eventBus:      deps.EventBus,
		logger:        deps.Logger.With("component", "api"),
		basePath:      deps.BasePath,
		maxResults:    maxResults,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	bp := r.basePath

	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)

	mux.Handle("GET "+bp+"/api/v1/anime", r.limited(r.handleSearchAnime))
	mux.Handle("POST "+bp+"/api/v1/search", r.limited(r.handleSearch))

	mux.HandleFunc("GET "+bp+"/api/v1/artists/{id}", r.handleGetArtist)
	mux.HandleFunc("GET "+bp+"/api/v1/artists/{id}/members", r.handleArtistMembers)
	mux.HandleFunc("GET "+bp+"/api/v1/artists/{id}/groups", r.handleArtistGroups)
	mux.HandleFunc("GET "+bp+"/api/v1/artists/{id}/songs", r.handleArtistSongs)
	mux.Handle("POST "+bp+"/api/v1/artists/resolve", r.limited(r.handleResolveArtist))

	return middleware.Logging(r.logger)(middleware.SecurityHeaders(mux))
}

func (r *Router) limited(fn http.HandlerFunc) http.Handler {
	if r.searchLimiter == nil {
		return fn
	}
	return r.searchLimiter.Middleware(fn)
}
