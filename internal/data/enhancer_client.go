package data

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"docflow-service/internal/conf"
	"docflow-service/internal/constants"
	appErrors "docflow-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

const processPaperPath = "/process_paper"

type processPaperRequest struct {
	Text string `json:"text"`
}

type processPaperReply struct {
	ProcessedText string `json:"processed_text"`
}

// EnhancerClient 外部文本增强服务的 HTTP 客户端
type EnhancerClient struct {
	conn *khttp.Client
	log  *log.Helper
}

// NewEnhancerClient 创建增强服务客户端
func NewEnhancerClient(c *conf.Bootstrap, logger log.Logger) (*EnhancerClient, func(), error) {
	if c.Enhancer == nil || c.Enhancer.Endpoint == "" {
		return nil, nil, fmt.Errorf("enhancer config is nil")
	}
	timeout := c.Enhancer.Timeout.AsDuration()
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	opts := []khttp.ClientOption{
		khttp.WithEndpoint(c.Enhancer.Endpoint),
		khttp.WithTimeout(timeout),
		khttp.WithMiddleware(apiKeyMiddleware(c.Enhancer.APIKey)),
	}
	if c.Enhancer.InsecureSkipVerify {
		// 内网自签证书
		opts = append(opts, khttp.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}
	conn, err := khttp.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("init enhancer client: %w", err)
	}

	helper := log.NewHelper(logger)
	cleanup := func() {
		if err := conn.Close(); err != nil {
			helper.Warnf("failed to close enhancer client: %v", err)
		}
	}
	return &EnhancerClient{conn: conn, log: helper}, cleanup, nil
}

// Enhance 调用 POST /process_paper
func (c *EnhancerClient) Enhance(ctx context.Context, text string) (string, error) {
	var reply processPaperReply
	if err := c.conn.Invoke(ctx, http.MethodPost, processPaperPath, &processPaperRequest{Text: text}, &reply); err != nil {
		return "", appErrors.ErrUpstreamFailed.WithCause(err)
	}
	return reply.ProcessedText, nil
}

func apiKeyMiddleware(key string) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if tr, ok := transport.FromClientContext(ctx); ok && key != "" {
				tr.RequestHeader().Set(constants.HeaderEnhancerAPIKey, key)
			}
			return handler(ctx, req)
		}
	}
}
