package app

import (
	"github.com/marlowe/storefront-backend/internal/platform/envutil"
)

type Config struct {
	Port          string
	Environment   string
	Version       string
	JWTSecretKey  string
	SecureCookies bool
	ServiceName   string
}

func LoadConfig() Config {
	return Config{
		Port:          envutil.String("PORT", "8080"),
		Environment:   envutil.String("APP_ENV", "development"),
		Version:       envutil.String("APP_VERSION", "dev"),
		JWTSecretKey:  envutil.String("JWT_SECRET_KEY", "defaultsecret"),
		SecureCookies: envutil.Bool("SECURE_COOKIES", false),
		ServiceName:   envutil.String("SERVICE_NAME", "storefront-backend"),
	}
}
