// Package server provides the HTTP server and JSON API handlers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"skimmer/internal/database"
	"skimmer/internal/model"
	"skimmer/internal/opml"
	"skimmer/internal/rss"
	"skimmer/internal/scrape"
	"skimmer/internal/sse"
)

// recentArticlesPerFeed is how many articles each feed carries in the
// feed list response.
const recentArticlesPerFeed = 20

// backfillTimeout bounds the synchronous ingestion attempted on subscribe
// and on lazy backfill.
const backfillTimeout = time.Minute

// Server is the main HTTP server.
type Server struct {
	db        database.Store
	ingester  *rss.Ingester
	poller    *rss.Poller
	hub       *sse.Hub
	extractor *scrape.Extractor
	router    chi.Router
}

// New creates a new server.
func New(db database.Store) *Server {
	hub := sse.NewHub()
	ingester := rss.NewIngester(db)
	s := &Server{
		db:        db,
		ingester:  ingester,
		poller:    rss.NewPoller(db, ingester, hub),
		hub:       hub,
		extractor: scrape.NewExtractor(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Route("/feeds", func(r chi.Router) {
			r.Post("/", s.handleCreateFeed)
			r.Get("/", s.handleListFeeds)
			r.Post("/refresh", s.handleRefresh)
			r.Put("/{feedID}", s.handleUpdateFeed)
			r.Delete("/{feedID}", s.handleDeleteFeed)
		})
		r.Route("/articles", func(r chi.Router) {
			r.Get("/", s.handleListArticles)
			r.Get("/{articleID}", s.handleGetArticle)
			r.Patch("/{articleID}/read", s.handleSetRead)
			r.Post("/bypass", s.handleBypass)
		})
		r.Get("/events", s.hub.ServeHTTP)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleSaveSettings)
		r.Post("/opml/import", s.handleImportOPML)
		r.Get("/opml/export", s.handleExportOPML)
		r.Post("/cleanup", s.handleCleanup)
	})

	s.router = r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the hub, the poller, and the HTTP listener.
func (s *Server) Start(addr string) error {
	s.hub.Start()
	s.poller.Start()
	log.Printf("Server starting on %s (database: %s)", addr, s.db.DatabaseType())
	return http.ListenAndServe(addr, s.router)
}

// Stop stops the poller and disconnects event subscribers.
func (s *Server) Stop() {
	s.poller.Stop()
	s.hub.Stop()
}

// --- Feed Handlers ---

func (s *Server) handleCreateFeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		respondError(w, http.StatusBadRequest, "A valid feed url is required")
		return
	}
	if _, err := s.db.GetFeedByURL(req.URL); err == nil {
		respondError(w, http.StatusConflict, "Feed already subscribed")
		return
	}

	// The name defaults to the URL; the backfill replaces it with the
	// parsed feed title when one is available.
	name := req.Name
	if name == "" {
		name = req.URL
	}
	feed, err := s.db.CreateFeed(name, req.URL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create feed")
		return
	}

	// Subscribing succeeds even when the initial backfill does not; a
	// transient fetch error must not cost the user their subscription.
	ctx, cancel := context.WithTimeout(r.Context(), backfillTimeout)
	defer cancel()
	report, err := s.ingester.Ingest(ctx, *feed)
	if err != nil {
		log.Printf("Backfill failed for %s: %v", feed.URL, err)
	} else {
		s.hub.Publish("feed-added", map[string]interface{}{"feedId": feed.ID, "added": report.Added})
	}

	// Re-read to pick up the backfill's name and lastRefreshed updates.
	if fresh, err := s.db.GetFeedByID(feed.ID); err == nil {
		feed = fresh
	}
	respondJSON(w, http.StatusCreated, feed)
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.db.GetAllFeeds()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list feeds")
		return
	}
	out := make([]model.FeedWithArticles, 0, len(feeds))
	for _, feed := range feeds {
		id := feed.ID
		articles, err := s.db.GetArticles(database.ArticleFilter{FeedID: &id, Limit: recentArticlesPerFeed})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to list feeds")
			return
		}
		if articles == nil {
			articles = []model.Article{}
		}
		out = append(out, model.FeedWithArticles{Feed: feed, Articles: articles})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateFeed(w http.ResponseWriter, r *http.Request) {
	feedID, err := strconv.ParseInt(chi.URLParam(r, "feedID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid feed id")
		return
	}
	var req struct {
		URL  *string `json:"url"`
		Name *string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.URL == nil && req.Name == nil {
		respondError(w, http.StatusBadRequest, "Nothing to update")
		return
	}
	if req.URL != nil {
		if _, err := url.ParseRequestURI(*req.URL); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid feed url")
			return
		}
	}

	// Metadata only; changing the URL does not trigger a re-ingest.
	feed, err := s.db.UpdateFeed(feedID, req.Name, req.URL)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Feed not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update feed")
		return
	}
	respondJSON(w, http.StatusOK, feed)
}

func (s *Server) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	feedID, err := strconv.ParseInt(chi.URLParam(r, "feedID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid feed id")
		return
	}
	err = s.db.DeleteFeed(feedID)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Feed not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete feed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	results, err := s.ingester.IngestAll(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Refresh failed")
		return
	}

	var total rss.Report
	for _, report := range results {
		total.Added += report.Added
		total.Skipped += report.Skipped
	}
	s.hub.Publish("refresh", total)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"added":   total.Added,
		"skipped": total.Skipped,
		"feeds":   len(results),
	})
}

// --- Article Handlers ---

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	filter := database.ArticleFilter{
		OnlyUnread: r.URL.Query().Get("unread") == "true",
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	if v := r.URL.Query().Get("feedId"); v != "" {
		feedID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid feed id")
			return
		}
		feed, err := s.db.GetFeedByID(feedID)
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Feed not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to load feed")
			return
		}

		// Lazy backfill: a feed with nothing stored gets ingested on demand.
		if n, err := s.db.CountArticles(feedID); err == nil && n == 0 {
			ctx, cancel := context.WithTimeout(r.Context(), backfillTimeout)
			if _, err := s.ingester.Ingest(ctx, *feed); err != nil {
				log.Printf("Lazy backfill failed for %s: %v", feed.URL, err)
			}
			cancel()
		}
		filter.FeedID = &feedID
	}

	articles, err := s.db.GetArticles(filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list articles")
		return
	}
	if articles == nil {
		articles = []model.Article{}
	}
	respondJSON(w, http.StatusOK, articles)
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	articleID, err := strconv.ParseInt(chi.URLParam(r, "articleID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid article id")
		return
	}
	article, err := s.db.GetArticleByID(articleID)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Article not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load article")
		return
	}
	respondJSON(w, http.StatusOK, article)
}

func (s *Server) handleSetRead(w http.ResponseWriter, r *http.Request) {
	articleID, err := strconv.ParseInt(chi.URLParam(r, "articleID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid article id")
		return
	}
	var req struct {
		IsRead bool `json:"isRead"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	article, err := s.db.SetArticleRead(articleID, req.IsRead)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Article not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update read status")
		return
	}
	respondJSON(w, http.StatusOK, article)
}

func (s *Server) handleBypass(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		respondError(w, http.StatusBadRequest, "A valid url is required")
		return
	}
	content, err := s.extractor.FetchContent(req.URL)
	if err != nil {
		log.Printf("Content extraction failed for %s: %v", req.URL, err)
		respondError(w, http.StatusBadGateway, "Failed to extract article content")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"content": content})
}

// --- Settings Handlers ---

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.loadPreferences())
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	prefs := s.loadPreferences()
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if prefs.PollingInterval < rss.MinPollingIntervalMinutes {
		prefs.PollingInterval = rss.MinPollingIntervalMinutes
	}
	if prefs.PageSize <= 0 {
		prefs.PageSize = 20
	}
	switch prefs.Theme {
	case "light", "dark", "system":
	default:
		respondError(w, http.StatusBadRequest, "Theme must be light, dark or system")
		return
	}

	pairs := map[string]string{
		model.SettingTheme:           prefs.Theme,
		model.SettingShowImages:      strconv.FormatBool(prefs.ShowImages),
		model.SettingPageSize:        strconv.Itoa(prefs.PageSize),
		model.SettingPollingInterval: strconv.Itoa(prefs.PollingInterval),
	}
	for key, value := range pairs {
		if err := s.db.SetSetting(key, value); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
	}
	respondJSON(w, http.StatusOK, prefs)
}

func (s *Server) loadPreferences() model.Preferences {
	prefs := model.Preferences{
		Theme:      "system",
		ShowImages: true,
		PageSize:   20,
	}
	if v, err := s.db.GetSetting(model.SettingTheme); err == nil && v != "" {
		prefs.Theme = v
	}
	if v, err := s.db.GetSetting(model.SettingShowImages); err == nil && v != "" {
		prefs.ShowImages = v == "true"
	}
	if v, err := s.db.GetSetting(model.SettingPageSize); err == nil {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			prefs.PageSize = n
		}
	}
	prefs.PollingInterval, _ = s.db.GetPollingInterval()
	return prefs
}

// --- OPML Handlers ---

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("opml")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	subs, err := opml.Parse(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to parse OPML")
		return
	}

	imported := 0
	for _, sub := range subs {
		if _, err := s.db.GetFeedByURL(sub.URL); err == nil {
			continue
		}
		name := sub.Title
		if name == "" {
			name = sub.URL
		}
		if _, err := s.db.CreateFeed(name, sub.URL); err != nil {
			log.Printf("Error importing feed %s: %v", sub.URL, err)
			continue
		}
		imported++
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"imported": imported,
		"total":    len(subs),
	})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.db.GetAllFeeds()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get feeds")
		return
	}

	subs := make([]opml.Subscription, 0, len(feeds))
	for _, feed := range feeds {
		subs = append(subs, opml.Subscription{Title: feed.Name, URL: feed.URL})
	}

	data, err := opml.Export("Skimmer Feeds", subs)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to export")
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=skimmer-feeds.opml")
	w.Write(data)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.db.CleanupReadArticles()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Cleanup failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"deleted": deleted,
	})
}

// --- Helpers ---

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Response encode error: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
