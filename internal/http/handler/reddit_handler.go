package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lurkd/lurkd/internal/domain"
	"github.com/lurkd/lurkd/internal/domain/listing"
	"github.com/lurkd/lurkd/internal/gateway"
	"github.com/lurkd/lurkd/internal/middleware"
	"github.com/lurkd/lurkd/internal/redact"
)

// namePattern constrains subreddit and username path segments before they are
// concatenated into an upstream path. The gateway re-checks the assembled
// path, but rejecting junk here gives the caller a precise 400.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

var articlePattern = regexp.MustCompile(`^[a-z0-9]{1,16}$`)

// RedditHandler relays browser requests to the upstream API through the
// gateway proxy. Callers never supply credentials; the proxy substitutes the
// server-held token.
type RedditHandler struct {
	proxy  *gateway.Proxy
	logger *zap.Logger
}

// NewRedditHandler wires the relay endpoints.
func NewRedditHandler(proxy *gateway.Proxy, logger *zap.Logger) *RedditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedditHandler{proxy: proxy, logger: logger}
}

// Popular serves the front-page listing. Works anonymously.
func (h *RedditHandler) Popular(c *gin.Context) {
	sort := sortOrDefault(c.Query("sort"))
	query := url.Values{}
	copyQuery(c, query, "after", "limit", "t")

	h.relayListing(c, fmt.Sprintf("/r/popular/%s.json", sort), query)
}

// Subreddit serves one subreddit's listing. Works anonymously.
func (h *RedditHandler) Subreddit(c *gin.Context) {
	name := c.Query("subreddit")
	if !namePattern.MatchString(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subreddit"})
		return
	}
	sort := sortOrDefault(c.Query("sort"))
	query := url.Values{}
	copyQuery(c, query, "after", "limit", "t")

	h.relayListing(c, fmt.Sprintf("/r/%s/%s.json", name, sort), query)
}

// Comments serves one post's comment tree.
func (h *RedditHandler) Comments(c *gin.Context) {
	name := c.Query("subreddit")
	article := c.Query("article")
	if !namePattern.MatchString(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subreddit"})
		return
	}
	if !articlePattern.MatchString(article) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid article"})
		return
	}
	query := url.Values{}
	copyQuery(c, query, "sort", "limit")

	h.relayListing(c, fmt.Sprintf("/r/%s/comments/%s.json", name, article), query)
}

// User serves a user's overview, submitted, or comments section.
func (h *RedditHandler) User(c *gin.Context) {
	name := c.Query("username")
	if !namePattern.MatchString(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid username"})
		return
	}
	section := c.DefaultQuery("section", "overview")
	switch section {
	case "overview", "submitted", "comments":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid section"})
		return
	}
	query := url.Values{}
	copyQuery(c, query, "after", "limit", "sort")

	h.relayListing(c, fmt.Sprintf("/user/%s/%s.json", name, section), query)
}

// Saved serves the authenticated user's saved items. Requires a session.
func (h *RedditHandler) Saved(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	query := url.Values{}
	copyQuery(c, query, "after", "limit")

	h.relayListing(c, fmt.Sprintf("/user/%s/saved.json", sess.Username), query)
}

// About serves subreddit metadata.
func (h *RedditHandler) About(c *gin.Context) {
	name := c.Query("subreddit")
	if !namePattern.MatchString(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subreddit"})
		return
	}

	sess, _ := middleware.GetSession(c)
	res, err := h.proxy.Forward(c.Request.Context(), sess, http.MethodGet, fmt.Sprintf("/r/%s/about.json", name), nil, nil)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if res.Status != http.StatusOK {
		c.Data(res.Status, res.ContentType, res.Body)
		return
	}
	if _, err := listing.DecodeAbout(res.Body); err != nil {
		h.respondMalformed(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", res.Body)
}

type voteRequest struct {
	ID  string `json:"id"`
	Dir *int   `json:"dir"`
}

// Vote relays an authenticated vote. Toggle semantics live in the browser's
// local state; upstream receives the absolute direction.
func (h *RedditHandler) Vote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !listing.ValidFullname(req.ID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return
	}
	if req.Dir == nil || *req.Dir < -1 || *req.Dir > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid dir"})
		return
	}

	sess, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	form := url.Values{
		"id":  {req.ID},
		"dir": {fmt.Sprintf("%d", *req.Dir)},
	}
	res, err := h.proxy.Forward(c.Request.Context(), sess, http.MethodPost, "/api/vote", nil, form)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if res.Status != http.StatusOK {
		c.Data(res.Status, res.ContentType, res.Body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// relayListing forwards a read, validates the listing envelope, and mirrors
// the upstream response. Anonymous callers are served with the shared
// application token; the proxy handles the distinction.
func (h *RedditHandler) relayListing(c *gin.Context, path string, query url.Values) {
	sess, _ := middleware.GetSession(c)
	res, err := h.proxy.Forward(c.Request.Context(), sess, http.MethodGet, path, query, nil)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if res.Status != http.StatusOK {
		c.Data(res.Status, res.ContentType, res.Body)
		return
	}
	if err := validateListingPayload(res.Body); err != nil {
		h.respondMalformed(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", res.Body)
}

// validateListingPayload accepts a single listing envelope or the two-element
// array comment endpoints serve (post listing + comment listing).
func validateListingPayload(raw []byte) error {
	trimmed := firstNonSpace(raw)
	if trimmed == '[' {
		var envelopes []json.RawMessage
		if err := json.Unmarshal(raw, &envelopes); err != nil {
			return fmt.Errorf("decode listing array: %w", err)
		}
		if len(envelopes) == 0 {
			return listing.ErrUnexpectedShape
		}
		for _, envelope := range envelopes {
			if _, err := listing.Decode(envelope); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := listing.Decode(raw)
	return err
}

func firstNonSpace(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

func (h *RedditHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	case errors.Is(err, gateway.ErrUnsafePath):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad request"})
	default:
		h.logger.Error("relay failed", zap.String("error", redact.Error(err)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upstream request failed"})
	}
}

func (h *RedditHandler) respondMalformed(c *gin.Context, err error) {
	h.logger.Error("malformed upstream payload", zap.String("error", redact.Error(err)))
	c.JSON(http.StatusBadGateway, gin.H{"error": "Invalid upstream response"})
}

func sortOrDefault(sort string) string {
	switch sort {
	case "hot", "new", "top", "rising", "controversial", "best":
		return sort
	default:
		return "hot"
	}
}

func copyQuery(c *gin.Context, dst url.Values, keys ...string) {
	for _, key := range keys {
		if value := c.Query(key); value != "" {
			dst.Set(key, value)
		}
	}
}
