// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP HTTPServer `yaml:"http"`

	Database    Database        `yaml:"database"`
	ValKey      ValKey          `yaml:"valkey"`
	Audit       commoncfg.Audit `yaml:"audit"`
	Frontend    Frontend        `yaml:"frontend"`
	Session     Session         `yaml:"session"`
	UserInfo    UserInfo        `yaml:"userInfo"`
	Housekeeper Housekeeper     `yaml:"housekeeper"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	SSLMode  string              `yaml:"sslMode"`
}

type ValKey struct {
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	Prefix   string              `yaml:"prefix" default:"streamly-console"`
	// SecretRef enables mTLS towards valkey when its type is mtls.
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

// Frontend is the configuration surface shared with the dashboard. Every value
// may be overridden from the environment, see Frontend.Resolve.
type Frontend struct {
	IssuerURL   string `yaml:"issuerURL" env:"STREAMLY_ZITADEL_ISSUER"`
	ClientID    string `yaml:"clientID" env:"STREAMLY_ZITADEL_CLIENT_ID"`
	ProjectID   string `yaml:"projectID" env:"STREAMLY_ZITADEL_PROJECT_ID"`
	APIURL      string `yaml:"apiURL" env:"STREAMLY_API_URL"`
	Environment string `yaml:"environment" env:"STREAMLY_APP_ENV"`
	Origin      string `yaml:"origin" env:"STREAMLY_ORIGIN"`
}

type Session struct {
	Namespace          string              `yaml:"namespace" default:"streamly-auth"`
	Duration           time.Duration       `yaml:"duration" default:"12h"`
	LoginStateTTL      time.Duration       `yaml:"loginStateTTL" default:"10m"`
	RenewBefore        time.Duration       `yaml:"renewBefore" default:"1m"`
	RenewRetryInterval time.Duration       `yaml:"renewRetryInterval" default:"30s"`
	CSRFSecret         commoncfg.SourceRef `yaml:"csrfSecret"`
	ClientCookie       CookieTemplate      `yaml:"clientCookie"`
	CSRFCookie         CookieTemplate      `yaml:"csrfCookie"`
}

type UserInfo struct {
	StaleTime time.Duration `yaml:"staleTime" default:"5m"`
}

type Housekeeper struct {
	TriggerInterval time.Duration `yaml:"triggerInterval" default:"10m"`
}

type CookieSameSite string

const (
	CookieSameSiteNone   CookieSameSite = "None"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteStrict CookieSameSite = "Strict"
)

type CookieTemplate struct {
	Name     string         `yaml:"name"`
	MaxAge   int            `yaml:"maxAge"`
	Path     string         `yaml:"path"`
	Domain   string         `yaml:"domain"`
	Secure   bool           `yaml:"secure"`
	HTTPOnly bool           `yaml:"httpOnly"`
	SameSite CookieSameSite `yaml:"sameSite"`
}
