package cmd

import (
	"context"

	"nudfans-backend/config"
	"nudfans-backend/handlers/admin"
	"nudfans-backend/handlers/auth"
	"nudfans-backend/handlers/billing"
	"nudfans-backend/handlers/creators"
	"nudfans-backend/handlers/messages"
	"nudfans-backend/handlers/notifications"
	"nudfans-backend/handlers/ping"
	"nudfans-backend/handlers/posts"
	"nudfans-backend/routes"
	"nudfans-backend/services/access"
	"nudfans-backend/services/checkout"
	"nudfans-backend/services/content"
	"nudfans-backend/services/entitlements"
	"nudfans-backend/services/ledger"
	"nudfans-backend/services/locks"
	"nudfans-backend/services/messaging"
	"nudfans-backend/services/notify"
	"nudfans-backend/services/payments"
	"nudfans-backend/services/persona"
	"nudfans-backend/services/reconciler"
	"nudfans-backend/services/social"
	"nudfans-backend/services/storage"
	"nudfans-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// infra groups the external systems the services talk to.
type infra struct {
	provider  payments.Provider
	blobs     storage.BlobStore
	locker    locks.Locker
	generator persona.Generator
	persona   persona.Persona
	cleanup   func()
}

func newInfra(cfg config.Config) (*infra, error) {
	in := &infra{cleanup: func() {}}
	in.provider = payments.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	in.locker = newLocker(cfg, in)

	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		blobs, err := storage.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			in.cleanup()
			return nil, err
		}
		if err := blobs.Ping(context.Background()); err != nil {
			utils.LogWarn("Cloudinary is unreachable, uploads will fail", logrus.Fields{"error": err.Error()})
		}
		in.blobs = blobs
	} else {
		utils.LogWarn("Cloudinary is not configured, media are kept in memory", nil)
		in.blobs = storage.NewMemory("http://localhost:" + cfg.Port + "/media")
	}

	if cfg.LLMAPIKey != "" {
		in.generator = persona.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	} else {
		utils.LogWarn("LLM_API_KEY is not set, AI replies fall back to canned messages", nil)
	}

	p, err := persona.Load(cfg.PersonaFile)
	if err != nil {
		utils.LogWarn("using the default persona", logrus.Fields{"error": err.Error(), "path": cfg.PersonaFile})
		p = persona.Default()
	}
	in.persona = p
	return in, nil
}

// newLocker uses Redis when configured so that every API instance shares the locks.
func newLocker(cfg config.Config, in *infra) locks.Locker {
	if cfg.RedisAddr == "" {
		utils.LogWarn("REDIS_ADDR is not set, checkout locks are local to this process", nil)
		return locks.NewLocal()
	}
	client := locks.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
	in.cleanup = func() {
		if err := client.Close(); err != nil {
			utils.LogError(err, "closing redis client")
		}
	}
	return locks.NewRedis(client, func(key string, err error) {
		utils.LogWarn("could not release lock", logrus.Fields{"key": key, "error": err.Error()})
	})
}

func newRouter(cfg config.Config, database *gorm.DB, in *infra) *gin.Engine {
	billingCfg := cfg.Billing
	evaluator := access.NewEvaluator(billingCfg.SubscriptionGrace)
	store := entitlements.New(database)
	l := ledger.New(database, billingCfg.PlatformFeeRate)
	notifier := notify.New(database)

	contentService := content.New(database, store, evaluator, in.blobs)
	socialService := social.New(database, store, evaluator, notifier)
	messagingService := messaging.New(database, persona.NewAgent(in.generator, cfg.LLMTimeout), in.persona, notifier)
	checkoutService := checkout.New(database, in.provider, l, store, in.locker, notifier, checkout.Settings{
		Currency:    billingCfg.Currency,
		MinTipCents: billingCfg.MinTipCents,
		SuccessURL:  cfg.CheckoutSuccessURL,
		CancelURL:   cfg.CheckoutCancelURL,
	})
	rec := reconciler.New(database, in.provider, l, notifier, reconciler.Settings{
		Currency:               billingCfg.Currency,
		LargeTipThresholdCents: billingCfg.LargeTipThresholdCents,
	})

	return routes.SetupRouter(routes.Deps{
		Handlers: routes.Handlers{
			Ping:          ping.New(database),
			Auth:          auth.New(database, cfg.JWTSecret, cfg.JWTTTLHours),
			Creators:      creators.New(database, store, l, socialService, billingCfg.MinSubscriptionPriceCents),
			Posts:         posts.New(contentService, socialService),
			Billing:       billing.New(database, checkoutService, store, rec),
			Messages:      messages.New(messagingService),
			Notifications: notifications.New(notifier),
			Admin:         admin.New(database, l, socialService),
		},
		Store:       store,
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
	})
}
