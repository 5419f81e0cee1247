// pkg/apl/factory.go
package apl

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"storeapp/pkg/apperr"
	"storeapp/pkg/config"
	"storeapp/pkg/db"
)

// CheckConfig validates the selected mode and its required settings without
// touching the network. Unknown or empty modes are rejected; there is no
// fallback backend.
func CheckConfig(cfg config.Config) error {
	mode := Mode(strings.ToLower(strings.TrimSpace(cfg.APL)))
	missing := func(names ...string) error {
		return apperr.Config("apl: missing settings for mode "+string(mode)+": "+strings.Join(names, ", "),
			map[string]any{"mode": string(mode), "missing": names})
	}
	switch mode {
	case ModeMemory:
		return nil
	case ModeFile:
		if cfg.FileAPLPath == "" {
			return missing("FILE_APL_PATH")
		}
	case ModeRedis, ModeUpstash:
		if cfg.RedisURL == "" {
			if mode == ModeUpstash {
				return missing("UPSTASH_URL")
			}
			return missing("REDIS_URL")
		}
	case ModePostgres:
		if cfg.DatabaseURL == "" {
			return missing("DATABASE_URL")
		}
	case ModeCloudflareKV:
		var names []string
		if cfg.CloudflareAccountID == "" {
			names = append(names, "CF_ACCOUNT_ID")
		}
		if cfg.CloudflareNamespaceID == "" {
			names = append(names, "CF_KV_NAMESPACE_ID")
		}
		if cfg.CloudflareAPIToken == "" {
			names = append(names, "CF_API_TOKEN")
		}
		if len(names) > 0 {
			return missing(names...)
		}
	case ModeS3:
		if cfg.S3Bucket == "" {
			return missing("S3_BUCKET")
		}
		if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey == "" {
			return missing("S3_SECRET_ACCESS_KEY")
		}
	case "":
		return apperr.Config("apl: APL is not set; choose one of "+modeList(), nil)
	default:
		return apperr.Config("apl: unknown mode "+string(mode)+"; choose one of "+modeList(),
			map[string]any{"mode": string(mode)})
	}
	return nil
}

func modeList() string {
	names := make([]string, 0, len(Modes()))
	for _, m := range Modes() {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}

// New resolves the configured backend. The returned close function releases
// connections and is safe to call once at shutdown. Every store is wrapped
// with metrics and debug logging.
func New(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (APL, func(), error) {
	if err := CheckConfig(cfg); err != nil {
		return nil, nil, err
	}
	mode := Mode(strings.ToLower(strings.TrimSpace(cfg.APL)))
	noop := func() {}

	var (
		store   APL
		closeFn = noop
	)
	switch mode {
	case ModeMemory:
		log.Warnw("apl: memory store selected, installations are lost on restart")
		store = NewMemory()
	case ModeFile:
		store = NewFile(cfg.FileAPLPath)
	case ModeRedis, ModeUpstash:
		cli, err := db.Redis(ctx, cfg.RedisURL, log)
		if err != nil {
			return nil, nil, apperr.Config("apl: redis connection failed: "+err.Error(), map[string]any{"mode": string(mode)})
		}
		store = NewRedis(cli, cfg.RedisKeyPrefix)
		closeFn = func() { _ = cli.Close() }
	case ModePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, nil, apperr.Config("apl: postgres connection failed: "+err.Error(), map[string]any{"mode": string(mode)})
		}
		if err := EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, apperr.Config("apl: postgres schema: "+err.Error(), map[string]any{"mode": string(mode)})
		}
		store = NewPostgres(pool)
		closeFn = pool.Close
	case ModeCloudflareKV:
		timeout := cfg.TenantHTTPTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		store = NewCloudflareKV(CloudflareKVConfig{
			BaseURL:     cfg.CloudflareAPIBaseURL,
			AccountID:   cfg.CloudflareAccountID,
			NamespaceID: cfg.CloudflareNamespaceID,
			APIToken:    cfg.CloudflareAPIToken,
			HTTPClient:  &http.Client{Timeout: timeout},
		})
	case ModeS3:
		cli, err := NewS3Client(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, nil, apperr.Config("apl: s3 client: "+err.Error(), map[string]any{"mode": string(mode)})
		}
		store = NewS3(cli, cfg.S3Bucket, cfg.S3Prefix)
	}

	if res := store.IsConfigured(ctx); !res.Configured {
		closeFn()
		msg := "apl: backend reports it is not configured"
		if res.Reason != nil {
			msg += ": " + res.Reason.Error()
		}
		return nil, nil, apperr.Config(msg, map[string]any{"mode": string(mode)})
	}
	log.Infow("apl ready", "mode", string(mode))
	return NewInstrumented(store, mode, log), closeFn, nil
}
