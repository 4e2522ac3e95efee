package http

import (
	"github.com/dashboard-api/internal/application/fallback/metrics"
	jwtinfra "github.com/dashboard-api/internal/infrastructure/jwt"
	"github.com/dashboard-api/internal/infrastructure/postgres"
	"github.com/dashboard-api/internal/infrastructure/smtp"
	"github.com/dashboard-api/internal/infrastructure/sns"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo    *postgres.UserRepo
	Mailer      smtp.Mailer
	SMSSender   sns.SMSSender // nil when SNS is not configured
	JWTProvider *jwtinfra.Provider
	Metrics     *metrics.Metrics
}
