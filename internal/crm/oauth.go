package crm

import (
	"realtorvoice/internal/config"

	"golang.org/x/oauth2"
)

type endpointDefaults struct {
	authURL   string
	tokenURL  string
	apiURL    string
	scopes    []string
	authStyle oauth2.AuthStyle
}

var defaults = map[ProviderID]endpointDefaults{
	WiseAgent: {
		authURL:   "https://sync.thewiseagent.com/WiseAuth/auth",
		tokenURL:  "https://sync.thewiseagent.com/WiseAuth/token",
		apiURL:    "https://sync.thewiseagent.com/http/webconnect.asp",
		scopes:    []string{"profile", "contacts", "calendar", "team"},
		authStyle: oauth2.AuthStyleInParams,
	},
	FollowUpBoss: {
		authURL:   "https://app.followupboss.com/oauth/authorize",
		tokenURL:  "https://app.followupboss.com/oauth/token",
		apiURL:    "https://api.followupboss.com/v1",
		authStyle: oauth2.AuthStyleInHeader,
	},
	RealGeeks: {
		authURL:   "https://auth.realgeeks.com/oauth/authorize",
		tokenURL:  "https://auth.realgeeks.com/oauth/token",
		apiURL:    "https://api.realgeeks.com/v1",
		scopes:    []string{"leads:read", "leads:write", "activities:write"},
		authStyle: oauth2.AuthStyleInParams,
	},
}

// Settings is the resolved OAuth and API configuration for one provider
type Settings struct {
	OAuth  *oauth2.Config
	APIURL string
}

// ResolveSettings merges environment overrides with the provider's public endpoints.
// Missing client credentials produce a *ConfigError.
func ResolveSettings(id ProviderID, pc config.ProviderConfig) (Settings, error) {
	var missing []string
	if pc.ClientID == "" {
		missing = append(missing, "client id")
	}
	if pc.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	if len(missing) > 0 {
		return Settings{}, &ConfigError{Provider: id, Missing: missing}
	}

	d, ok := defaults[id]
	if !ok {
		return Settings{}, ErrUnknownProvider
	}

	return Settings{
		OAuth: &oauth2.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			Scopes:       d.scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   firstNonEmpty(pc.AuthURL, d.authURL),
				TokenURL:  firstNonEmpty(pc.TokenURL, d.tokenURL),
				AuthStyle: d.authStyle,
			},
		},
		APIURL: firstNonEmpty(pc.APIURL, d.apiURL),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
