package echoapi

import (
	"context"
	"sort"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/attendance"
	"github.com/syaifulazham/techlympics/core/user"
)

const (
	userTokenKey   = "userToken"
	agentTokenKey  = "agentToken"
	contextUserKey = "user"

	userAudience  = "Organizer"
	agentAudience = "AttendanceAgent"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsAdmin      bool     `json:"is_admin,omitempty"`
	Roles        []string `json:"roles,omitempty"`
}

// AgentClaims bind an attendance agent session to one endpoint of an event.
type AgentClaims struct {
	jwt.StandardClaims
	EventID      int    `json:"event_id"`
	Endpointhash string `json:"endpointhash"`
}

// authenticator issues and checks the user and agent JWTs.
type authenticator struct {
	conf       *core.Config
	signingKey []byte
	method     string
}

func newAuthenticator(conf *core.Config) *authenticator {
	return &authenticator{
		conf:       conf,
		signingKey: []byte(conf.SecretKey),
		method:     middleware.AlgorithmHS256,
	}
}

func (a *authenticator) jwtConfig(contextKey string, claims jwt.Claims) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    a.signingKey,
		SigningMethod: a.method,
		ContextKey:    contextKey,
		Claims:        claims,
	}
}

func (a *authenticator) userMiddleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(a.jwtConfig(userTokenKey, new(Claims)))
}

// optionalUserMiddleware authenticates the user only when an Authorization header is sent.
func (a *authenticator) optionalUserMiddleware() echo.MiddlewareFunc {
	conf := a.jwtConfig(userTokenKey, new(Claims))
	conf.Skipper = func(ctx echo.Context) bool {
		return ctx.Request().Header.Get(echo.HeaderAuthorization) == ""
	}
	return middleware.JWTWithConfig(conf)
}

func (a *authenticator) agentMiddleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(a.jwtConfig(agentTokenKey, new(AgentClaims)))
}

func (a *authenticator) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(a.method), claims)
	ss, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func (a *authenticator) userClaims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			Audience:  userAudience,
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Email:        usr.Email,
		IsAdmin:      usr.IsAdmin(),
		Roles:        usr.Roles,
	}
}

// agentToken opens an agent session on the endpoint. It returns the token and its expiry.
func (a *authenticator) agentToken(ep attendance.Endpoint) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(a.conf.Attendance.AgentSessionTTL)
	token, err := a.sign(&AgentClaims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   ep.Endpointhash,
			Audience:  agentAudience,
			ExpiresAt: exp.Unix(),
			IssuedAt:  now.Unix(),
		},
		EventID:      ep.EventID,
		Endpointhash: ep.Endpointhash,
	})
	return token, exp, err
}

// GetUserClaims returns the claims of a user token.
func GetUserClaims(conf *core.Config, usr user.User) *Claims {
	return newAuthenticator(conf).userClaims(usr)
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	return newAuthenticator(conf).sign(claims)
}

func authenticate(ctx context.Context, a *authenticator, uname, pwd string, svc user.Service) (*Claims, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if !usr.IsActive {
		return nil, errAccountDeactivated
	}
	usr, err = svc.SetLastLogin(ctx, usr)
	if err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return a.userClaims(usr), nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(userTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok && claims.VerifyAudience(userAudience, true) {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getAgentSession(ctx echo.Context) (attendance.AgentSession, error) {
	if token, ok := ctx.Get(agentTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*AgentClaims); ok && claims.VerifyAudience(agentAudience, true) {
			return attendance.AgentSession{EventID: claims.EventID, Endpointhash: claims.Endpointhash}, nil
		}
	}
	return attendance.AgentSession{}, errInvalidSession
}

func getContextUser(ctx echo.Context, svc user.Service, clms ...Claims) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else {
		claims, err = getContextClaims(ctx)
		if err != nil {
			return user.User{}, errors.Wrap(err, "getting context claims")
		}
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	if claims, err := getContextClaims(ctx); err == nil {
		sort.Strings(claims.Roles)
		for _, role := range roles {
			if i := sort.SearchStrings(claims.Roles, role); i < len(claims.Roles) {
				if match := claims.Roles[i]; role == match {
					return true
				}
			}
		}
	}
	return false
}

func refreshToken(ctx echo.Context, a *authenticator, svc user.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	usr, err := getContextUser(ctx, svc, claims)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}

	// check if user is still active
	if !usr.IsActive {
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := a.sign(a.userClaims(usr, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}
