package business

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"

	"github.com/hoppermq/streamly-console/internal/business/server"
	"github.com/hoppermq/streamly-console/internal/config"
	"github.com/hoppermq/streamly-console/internal/guard"
	"github.com/hoppermq/streamly-console/internal/oidc"
	"github.com/hoppermq/streamly-console/internal/preferences"
	"github.com/hoppermq/streamly-console/internal/preferences/preferencessql"
	"github.com/hoppermq/streamly-console/internal/renewal"
	"github.com/hoppermq/streamly-console/internal/session"
	sessionvalkey "github.com/hoppermq/streamly-console/internal/session/valkey"
	"github.com/hoppermq/streamly-console/internal/userinfo"
)

const minCSRFSecretLength = 32

// Main starts the console HTTP server and the renewal of the live sessions.
func Main(ctx context.Context, cfg *config.Config) error {
	csrfSecret, err := loadCSRFSecret(cfg)
	if err != nil {
		return err
	}

	frontend, _, err := cfg.Frontend.Resolve(ctx, nil)
	if err != nil {
		return fmt.Errorf("resolving the frontend configuration: %w", err)
	}

	valkeyClient, err := newValkeyClient(cfg)
	if err != nil {
		return fmt.Errorf("initialising valkey: %w", err)
	}
	defer valkeyClient.Close()

	db, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the preferences database: %w", err)
	}
	defer db.Close()

	sessionRepo := sessionvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix, cfg.Session.Namespace)

	manager, err := newManager(cfg, frontend, sessionRepo)
	if err != nil {
		return err
	}

	scheduler := renewal.NewScheduler(manager,
		renewal.WithLead(cfg.Session.RenewBefore),
		renewal.WithRetryInterval(cfg.Session.RenewRetryInterval),
	)
	defer scheduler.Stop()

	registry := session.NewRegistry(sessionRepo, cfg.Session.Duration,
		session.WithOpenHook(scheduler.Track),
		session.WithEvictHook(func(store *session.Store) {
			scheduler.Untrack(store.ClientID())
		}),
	)

	return server.StartHTTPServer(ctx, cfg, server.Deps{
		Sessions:    registry,
		Auth:        manager,
		UserInfo:    userinfo.NewClient(manager, cfg.UserInfo.StaleTime),
		Preferences: preferences.NewService(preferencessql.NewRepository(db)),
		Guard:       guard.New(),
		CSRFSecret:  csrfSecret,
		NewClientID: uuid.NewString,
	})
}

func newManager(cfg *config.Config, frontend config.Frontend, states session.Repository) (*oidc.Manager, error) {
	oidcCfg, err := oidc.ConfigFromFrontend(frontend, cfg.Session.LoginStateTTL)
	if err != nil {
		return nil, fmt.Errorf("making the oidc client configuration: %w", err)
	}

	auditLogger, err := otlpaudit.NewLogger(&cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("creating audit logger: %w", err)
	}

	manager, err := oidc.NewManager(oidcCfg, states,
		oidc.WithAuditLogger(auditLogger),
		oidc.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating the oidc session manager: %w", err)
	}

	return manager, nil
}

func loadCSRFSecret(cfg *config.Config) ([]byte, error) {
	secret, err := commoncfg.LoadValueFromSourceRef(cfg.Session.CSRFSecret)
	if err != nil {
		return nil, fmt.Errorf("loading csrf token from source ref: %w", err)
	}

	secret = []byte(strings.TrimSpace(string(secret)))
	if len(secret) < minCSRFSecretLength {
		return nil, errors.New("CSRF secret must be at least 32 bytes")
	}

	return secret, nil
}

func newValkeyClient(cfg *config.Config) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Host)
	if err != nil {
		return nil, fmt.Errorf("loading valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.User)
	if err != nil {
		return nil, fmt.Errorf("loading valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Password)
	if err != nil {
		return nil, fmt.Errorf("loading valkey password: %w", err)
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	}

	if cfg.ValKey.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.ValKey.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return client, nil
}

// newPool opens the preferences database with tracing of every query.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("making dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing pgxpool config: %w", err)
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	return db, nil
}
