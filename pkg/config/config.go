// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// APL selects the credential store backend (memory|file|redis|upstash|postgres|cloudflare-kv|s3).
	APL string

	// file
	FileAPLPath string

	// redis / upstash
	RedisURL       string
	RedisKeyPrefix string

	// postgres
	DatabaseURL string

	// cloudflare-kv
	CloudflareAccountID   string
	CloudflareNamespaceID string
	CloudflareAPIToken    string
	CloudflareAPIBaseURL  string

	// s3
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3Prefix          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// Manifest
	AppID          string
	AppName        string
	AppVersion     string
	AppAuthor      string
	AppIDUnique    bool
	AppPermissions []string
	ManifestFile   string

	// Registration admission
	AllowedTenantURLs  []string
	RegisterPolicyFile string

	// Outbound calls to tenant APIs (token verification, JWKS)
	TenantHTTPTimeout time.Duration

	CORSAllowedOrigins []string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                   env("APP_ENV", "dev"),
		HTTPAddr:              env("APP_HTTP_ADDR", ":3000"),
		APL:                   strings.ToLower(strings.TrimSpace(env("APL", ""))),
		FileAPLPath:           env("FILE_APL_PATH", ".auth-data.json"),
		RedisURL:              env("REDIS_URL", os.Getenv("UPSTASH_URL")),
		RedisKeyPrefix:        env("REDIS_KEY_PREFIX", ""),
		DatabaseURL:           env("DATABASE_URL", ""),
		CloudflareAccountID:   env("CF_ACCOUNT_ID", ""),
		CloudflareNamespaceID: env("CF_KV_NAMESPACE_ID", ""),
		CloudflareAPIToken:    env("CF_API_TOKEN", ""),
		CloudflareAPIBaseURL:  env("CF_API_BASE_URL", "https://api.cloudflare.com/client/v4"),
		S3Bucket:              env("S3_BUCKET", ""),
		S3Region:              env("S3_REGION", "us-east-1"),
		S3Endpoint:            env("S3_ENDPOINT", ""),
		S3Prefix:              env("S3_PREFIX", "auth-data/"),
		S3AccessKeyID:         env("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:     env("S3_SECRET_ACCESS_KEY", ""),
		AppID:                 env("APP_ID", "storeapp"),
		AppName:               env("APP_NAME", "Store App"),
		AppVersion:            env("APP_VERSION", "0.1.0"),
		AppAuthor:             env("APP_AUTHOR", ""),
		AppIDUnique:           envBool("APP_ID_UNIQUE", false),
		AppPermissions:        envList("APP_PERMISSIONS", []string{"MANAGE_ORDERS"}),
		ManifestFile:          env("MANIFEST_FILE", ""),
		AllowedTenantURLs:     envList("ALLOWED_TENANT_URLS", nil),
		RegisterPolicyFile:    env("REGISTER_POLICY_FILE", ""),
		TenantHTTPTimeout:     envDur("TENANT_HTTP_TIMEOUT_SEC", 10) * time.Second,
		CORSAllowedOrigins:    envList("CORS_ALLOWED_ORIGINS", nil),
	}
	if cfg.APL == "" {
		log.Println("[WARN] APL not set; the service will refuse to start until a credential store is selected")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}

// envDur falls back to def for unparsable or non-positive values.
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && i > 0 {
			return time.Duration(i)
		}
	}
	return time.Duration(def)
}

// envList splits a comma-separated variable, dropping blanks.
func envList(k string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
