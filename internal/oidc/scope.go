package oidc

import (
	"fmt"
	"strings"

	"github.com/zitadel/oidc/v3/pkg/oidc"
)

// Scope returns the authorization scope. A configured project id adds the
// zitadel project audience so that the access token is accepted by the API.
func Scope(projectID string) string {
	scopes := []string{oidc.ScopeOpenID, oidc.ScopeProfile, oidc.ScopeEmail, oidc.ScopeOfflineAccess}

	if projectID = strings.TrimSpace(projectID); projectID != "" {
		scopes = append(scopes, fmt.Sprintf("urn:zitadel:iam:org:project:id:%s:aud", projectID))
	}

	return strings.Join(scopes, " ")
}
