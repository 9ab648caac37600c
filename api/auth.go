package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/jellydator/ttlcache/v3"
	log "github.com/sirupsen/logrus"

	"github.com/jpirok/cleanarchitecture/identity"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	// DefaultRole is granted to every authenticated subject.
	DefaultRole = "user"
)

// AuthConfig selects between HS256 tokens signed with TestSecret and RS256
// tokens verified against the JWKS of Domain.
type AuthConfig struct {
	Audience    string
	Domain      string
	TestSecret  string
	KeyCacheTTL time.Duration
}

// Auth validates incoming JWT tokens.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte

	parser      *jwt.Parser
	keyCache    *ttlcache.Cache[string, any]
	keyCacheTTL time.Duration
}

// NewAuth creates an Auth for cfg. jwks may be nil in test mode.
func NewAuth(cfg AuthConfig, jwks *keyfunc.JWKS) *Auth {
	a := &Auth{JWKS: jwks, Audience: cfg.Audience, keyCacheTTL: cfg.KeyCacheTTL}
	if a.keyCacheTTL <= 0 {
		a.keyCacheTTL = defaultJWKSCacheTTL
	}
	a.keyCache = ttlcache.New(
		ttlcache.WithTTL[string, any](a.keyCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, any](),
	)
	if cfg.Domain != "" {
		a.Issuer = "https://" + cfg.Domain + "/"
	}
	if cfg.TestSecret != "" {
		a.TestMode = true
		a.TestSecret = []byte(cfg.TestSecret)
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

// FetchJWKS loads the signing keys published by domain and refreshes them in
// the background.
func FetchJWKS(domain string, logger *log.Logger) (*keyfunc.JWKS, error) {
	url := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	return keyfunc.Get(url, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.WithError(err).Warn("jwks refresh failed")
		},
	})
}

// UserFromHeader authenticates the caller from the Authorization header.
func (a *Auth) UserFromHeader(h http.Header) (identity.User, error) {
	token, err := bearerToken(h)
	if err != nil {
		return identity.User{}, err
	}
	return a.UserFromBearer(token)
}

// UserFromBearer authenticates a bearer token presented as raw bytes.
func (a *Auth) UserFromBearer(token []byte) (identity.User, error) {
	if len(token) == 0 {
		return identity.User{}, errBadAuthorization
	}

	tokenStr := readOnlyString(token)
	var parsedToken *jwt.Token
	var err error
	if a.TestMode {
		parsedToken, err = a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.TestSecret, nil
		})
	} else {
		parsedToken, err = a.parser.Parse(tokenStr, a.keyForToken)
	}
	if err != nil {
		return identity.User{}, err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return identity.User{}, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return identity.User{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return identity.User{}, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return identity.User{}, errors.New("token used before issued")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return identity.User{}, errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return identity.User{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return identity.User{}, errors.New("missing sub")
	}

	return identity.User{ID: sub, Roles: rolesFromClaims(claims)}, nil
}

// rolesFromClaims collects the "roles" and "permissions" claims on top of
// DefaultRole.
func rolesFromClaims(claims jwt.MapClaims) []string {
	roles := []string{DefaultRole}
	seen := map[string]bool{DefaultRole: true}
	for _, name := range []string{"roles", "permissions"} {
		list, _ := claims[name].([]any)
		for _, v := range list {
			s, ok := v.(string)
			if !ok || s == "" || seen[s] {
				continue
			}
			seen[s] = true
			roles = append(roles, s)
		}
	}
	return roles
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" {
		if item := a.keyCache.Get(kid); item != nil {
			return item.Value(), nil
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" {
		a.keyCache.Set(kid, key, ttlcache.DefaultTTL)
	}
	return key, nil
}
