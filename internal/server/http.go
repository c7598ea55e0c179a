package server

import (
	"context"
	"crypto/subtle"

	v1 "docflow-service/api/docflow/v1"
	"docflow-service/internal/conf"
	"docflow-service/internal/constants"
	appErrors "docflow-service/internal/errors"
	"docflow-service/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/auth/jwt"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/middleware/selector"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	userOperationPrefix     = "/docflow.v1.DocflowService/"
	internalOperationPrefix = "/docflow.v1.DocflowInternalService/"
)

// NewHTTPServer 创建 HTTP 服务器
func NewHTTPServer(
	c *conf.Bootstrap,
	docflow *service.DocflowService,
	webhook *service.PaymentWebhookService,
	internal *service.DocflowInternalService,
	logger log.Logger,
) *http.Server {
	var jwtSecret, internalToken string
	if c.Auth != nil {
		jwtSecret = c.Auth.JwtSecret
		internalToken = c.Auth.InternalToken
	}

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			logging.Server(logger),
			// 用户接口校验会话 token，支付回调依靠签名校验
			selector.Server(userAuth(jwtSecret)).Prefix(userOperationPrefix).Build(),
			selector.Server(internalAuth(internalToken)).Prefix(internalOperationPrefix).Build(),
		),
	}
	if c.Server != nil && c.Server.HTTP != nil {
		if c.Server.HTTP.Network != "" {
			opts = append(opts, http.Network(c.Server.HTTP.Network))
		}
		if c.Server.HTTP.Addr != "" {
			opts = append(opts, http.Address(c.Server.HTTP.Addr))
		}
		if c.Server.HTTP.Timeout != nil {
			opts = append(opts, http.Timeout(c.Server.HTTP.Timeout.AsDuration()))
		}
	}
	srv := http.NewServer(opts...)
	srv.Handle("/metrics", promhttp.Handler())

	v1.RegisterDocflowServiceHTTPServer(srv, docflow)
	v1.RegisterPaymentWebhookServiceHTTPServer(srv, webhook)
	v1.RegisterDocflowInternalServiceHTTPServer(srv, internal)
	return srv
}

// userAuth HS256 会话 token，claims 为 RegisteredClaims（sub 为用户 id）
func userAuth(secret string) middleware.Middleware {
	return jwt.Server(
		func(token *jwtv5.Token) (interface{}, error) {
			return []byte(secret), nil
		},
		jwt.WithSigningMethod(jwtv5.SigningMethodHS256),
		jwt.WithClaims(func() jwtv5.Claims {
			return &jwtv5.RegisteredClaims{}
		}),
	)
}

// internalAuth 校验内部调用方的共享 token
func internalAuth(token string) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			tr, ok := transport.FromServerContext(ctx)
			if !ok || token == "" {
				return nil, appErrors.ErrUnauthorized
			}
			got := tr.RequestHeader().Get(constants.HeaderInternalToken)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return nil, appErrors.ErrUnauthorized
			}
			return handler(ctx, req)
		}
	}
}
