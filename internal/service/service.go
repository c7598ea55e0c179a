package service

import (
	"context"
	"time"

	v1 "docflow-service/api/docflow/v1"
	"docflow-service/internal/biz"
	appErrors "docflow-service/internal/errors"

	"github.com/go-kratos/kratos/v2/middleware/auth/jwt"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewDocflowService, NewPaymentWebhookService, NewDocflowInternalService)

// currentUser 从 jwt claims 中取当前用户（sub）
func currentUser(ctx context.Context) (string, error) {
	claims, ok := jwt.FromContext(ctx)
	if !ok {
		return "", appErrors.ErrUnauthorized
	}
	registered, ok := claims.(*jwtv5.RegisteredClaims)
	if !ok || registered.Subject == "" {
		return "", appErrors.ErrUnauthorized
	}
	return registered.Subject, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func toContent(c *biz.Content) *v1.Content {
	return &v1.Content{
		Id:             c.ID,
		Kind:           string(c.Kind),
		Status:         string(c.Status),
		WordCount:      int32(c.WordCount),
		Stuck:          c.Stuck,
		EnhancedText:   c.EnhancedText,
		OutputUrl:      c.OutputURL,
		OutputExpireAt: formatTimePtr(c.OutputExpireAt),
		ExpireAt:       formatTimePtr(c.ExpireAt),
		SubmittedAt:    formatTimePtr(c.SubmittedAt),
		ProcessedAt:    formatTimePtr(c.ProcessedAt),
		CreatedAt:      formatTime(c.CreatedAt),
	}
}

func toContentSummary(c *biz.Content) *v1.ContentSummary {
	return &v1.ContentSummary{
		Id:        c.ID,
		Status:    string(c.Status),
		WordCount: int32(c.WordCount),
		Stuck:     c.Stuck,
		OutputUrl: c.OutputURL,
		CreatedAt: formatTime(c.CreatedAt),
	}
}

func toSubmissionReply(c *biz.Content, balance int64) *v1.SubmissionReply {
	return &v1.SubmissionReply{
		ContentId: c.ID,
		Kind:      string(c.Kind),
		Status:    string(c.Status),
		WordCount: int32(c.WordCount),
		Balance:   balance,
	}
}
