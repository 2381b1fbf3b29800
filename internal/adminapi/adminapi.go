// Package adminapi is the operator-facing REST surface (spec §6 "operator
// REST endpoints"; SPEC_FULL domain-stack wiring), built with gin the way
// codeready-toolchain-tarsy's pkg/api/handlers.go and
// intelligencedev-manifold wire their HTTP layers. The webhook POST path
// itself deliberately stays on net/http + gorilla/websocket
// (internal/gateway.Server) so signature verification keeps operating on
// raw, unparsed bytes — gin's JSON binding has no role there.
package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/anna0613/linebot-control-plane/internal/knowledge"
	"github.com/anna0613/linebot-control-plane/internal/store"
)

// LineChecker pings LINE's bot-info endpoint for reachability, the same
// contract internal/gateway.LineInfoChecker uses.
type LineChecker interface {
	CheckAccessible(ctx context.Context, channelToken string) bool
}

// Router builds the operator API's gin engine.
type Router struct {
	bots      store.BotStore
	knowledge knowledge.Store
	checker   LineChecker
	publicURL string
}

// New builds a Router. checker may be nil (reachability always reported
// false); knowledge may be nil (document listing returns an empty set).
func New(bots store.BotStore, know knowledge.Store, checker LineChecker, publicBaseURL string) *Router {
	return &Router{bots: bots, knowledge: know, checker: checker, publicURL: publicBaseURL}
}

// Handler returns the gin engine as an http.Handler, mountable on the
// gateway's mux under a path prefix (e.g. "/admin/").
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	bots := engine.Group("/admin/bots/:botID")
	bots.GET("/status", r.getStatus)
	bots.GET("/knowledge/documents", r.listDocuments)

	return engine
}

type statusResponse struct {
	Status            string    `json:"status"`
	IsConfigured      bool      `json:"is_configured"`
	LineAPIAccessible bool      `json:"line_api_accessible"`
	WebhookURL        string    `json:"webhook_url"`
	CheckedAt         time.Time `json:"checked_at"`
}

// getStatus mirrors gateway.Server's GET .../status computation for
// operator tooling that talks to the admin surface instead of the public
// webhook mux (e.g. an internal dashboard behind auth).
func (r *Router) getStatus(c *gin.Context) {
	botID := c.Param("botID")
	now := time.Now().UTC()

	bot, err := r.bots.Get(c.Request.Context(), botID)
	if err != nil || bot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
		return
	}

	configured := bot.ChannelToken != "" && bot.ChannelSecret != ""
	resp := statusResponse{
		IsConfigured: configured,
		WebhookURL:   r.publicURL + "/api/v1/webhooks/" + botID,
		CheckedAt:    now,
	}
	switch {
	case !configured:
		resp.Status = "configuration_error"
	case r.checker != nil && r.checker.CheckAccessible(c.Request.Context(), bot.ChannelToken):
		resp.Status = "active"
		resp.LineAPIAccessible = true
	default:
		resp.Status = "inactive"
	}
	c.JSON(http.StatusOK, resp)
}

// listDocuments exposes the knowledge index's document summaries (spec
// §4.4 "document inventory") for operator review.
func (r *Router) listDocuments(c *gin.Context) {
	if r.knowledge == nil {
		c.JSON(http.StatusOK, gin.H{"documents": []knowledge.DocumentSummary{}})
		return
	}
	botID := c.Param("botID")
	docs, err := r.knowledge.DocumentSummaries(c.Request.Context(), botID, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}
