// Package webhooks wires the provider webhook and job trigger endpoints.
package webhooks

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/auroralabs/aurora/internal/config"
	"github.com/auroralabs/aurora/internal/distribution"
	"github.com/auroralabs/aurora/internal/http/api/respond"
	"github.com/auroralabs/aurora/internal/webhook"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// maxPayloadBytes bounds webhook request bodies.
const maxPayloadBytes = 1 << 20

// EventParser verifies a provider delivery and yields the normalized event.
type EventParser interface {
	ParseEvent(payload []byte, signature string) (*webhook.Event, error)
}

// RegisterWebhookRoutes registers provider webhook endpoints and the
// distribution trigger. A nil parser skips that provider's route.
func RegisterWebhookRoutes(r *gin.Engine, processor *webhook.Processor, stripeParser, creemParser EventParser, job *distribution.Job, jobsCfg config.JobsConfig) {
	if r == nil || processor == nil {
		return
	}

	if stripeParser != nil {
		r.POST("/api/webhooks/stripe", handleProviderWebhook(processor, stripeParser, "Stripe-Signature"))
	}
	if creemParser != nil {
		r.POST("/api/webhooks/creem", handleProviderWebhook(processor, creemParser, "creem-signature"))
	}
	if job != nil {
		r.GET("/api/distribute-credits", distributeBasicAuth(jobsCfg), handleDistribute(job))
	}
}

// handleProviderWebhook parses, verifies and processes one delivery. The
// response status steers provider redelivery: 2xx acknowledges, 4xx drops,
// 5xx retries.
func handleProviderWebhook(processor *webhook.Processor, parser EventParser, signatureHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, errRead := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
		if errRead != nil {
			respond.Fail(c, errRead)
			return
		}

		event, errParse := parser.ParseEvent(payload, c.GetHeader(signatureHeader))
		if errParse != nil {
			log.WithError(errParse).Warn("webhooks: delivery rejected")
			respond.Fail(c, errParse)
			return
		}

		outcome, errProcess := processor.Process(c.Request.Context(), event)
		if errProcess != nil {
			log.WithError(errProcess).Warnf("webhooks: processing failed (provider=%s event=%s)", event.Provider, event.ID)
			respond.Fail(c, errProcess)
			return
		}
		respond.OK(c, gin.H{"skipped": outcome.Skipped})
	}
}

// distributeBasicAuth guards the distribution trigger with HTTP Basic Auth.
func distributeBasicAuth(jobsCfg config.JobsConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jobsCfg.DistributeUser == "" || jobsCfg.DistributePassword == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "distribution trigger is not configured"})
			return
		}
		user, password, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(jobsCfg.DistributeUser)) != 1 ||
			subtle.ConstantTimeCompare([]byte(password), []byte(jobsCfg.DistributePassword)) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="distribute-credits"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// handleDistribute runs one distribution pass synchronously and reports the
// counts.
func handleDistribute(job *distribution.Job) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, errRun := job.Run(c.Request.Context())
		if errRun != nil {
			log.WithError(errRun).Error("webhooks: distribution run failed")
			respond.Fail(c, errRun)
			return
		}
		respond.OK(c, result)
	}
}
