// Package auth verifies bearer tokens issued by the identity provider and
// resolves them to an owner id (the token subject).
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	"resumeforge/internal/apperr"
	"resumeforge/internal/config"
	"resumeforge/internal/retry"
)

// Verifier 把 bearer token 解析为 owner id。
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Claims 是身份提供方令牌中用到的字段，Subject 即 owner id。
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier 在本地校验签名与时效。
type JWTVerifier struct {
	keyfunc  jwt.Keyfunc
	methods  []string
	issuer   string
	audience string
	jwks     *keyfunc.JWKS
	policy   retry.Policy
}

// NewVerifier 按配置选择密钥来源：RSA 公钥、共享密钥或远程 JWKS。
func NewVerifier(cfg config.AuthConfig, logger *slog.Logger) (*JWTVerifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := &JWTVerifier{
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		policy:   retry.Auth,
	}
	switch {
	case strings.TrimSpace(cfg.PublicKeyPEM) != "":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse rsa public key: %w", err)
		}
		v.keyfunc = func(*jwt.Token) (any, error) { return key, nil }
		v.methods = []string{jwt.SigningMethodRS256.Alg()}
	case cfg.JWTSecret != "":
		secret := []byte(cfg.JWTSecret)
		v.keyfunc = func(*jwt.Token) (any, error) { return secret, nil }
		v.methods = []string{jwt.SigningMethodHS256.Alg()}
	case strings.TrimSpace(cfg.JWKSURL) != "":
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshTimeout:    10 * time.Second,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				logger.Warn("refresh jwks failed", slog.String("error", err.Error()))
			},
		})
		if err != nil {
			return nil, fmt.Errorf("load jwks: %w", err)
		}
		v.jwks = jwks
		v.keyfunc = jwks.Keyfunc
		v.methods = []string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}
	default:
		return nil, errors.New("no token verification key configured")
	}
	return v, nil
}

// Verify 校验令牌并返回 subject。令牌缺失为 AuthMissing，其余失败为 AuthInvalid；
// 瞬时错误（如 JWKS 刷新时的网络错误）重试一次。
func (v *JWTVerifier) Verify(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.New(apperr.KindAuthMissing, "missing bearer token")
	}
	claims, err := retry.Value(ctx, v.policy, func(context.Context) (*Claims, error) {
		return v.parse(raw)
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindAuthInvalid, "invalid token", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", apperr.New(apperr.KindAuthInvalid, "token has no subject")
	}
	return claims.Subject, nil
}

func (v *JWTVerifier) parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, v.keyfunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Close 停止 JWKS 后台刷新。
func (v *JWTVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// BearerToken 从 Authorization 头中取出令牌，格式不对时返回空串。
func BearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
