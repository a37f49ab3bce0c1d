package llm

import (
	"context"

	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/pkg/circuitbreaker"
)

// breakerLLM 是一个带熔断器的 LLM 装饰器。
// 上游持续不可用时快速失败，避免每个任务都等待完整的超时周期。
type breakerLLM struct {
	inner LLM
	cb    circuitbreaker.CircuitBreaker
}

// WithBreaker 用熔断器包装一个 LLM 客户端。
func WithBreaker(inner LLM, cb circuitbreaker.CircuitBreaker) LLM {
	return &breakerLLM{inner: inner, cb: cb}
}

func (b *breakerLLM) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GenerateContent(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*models.GenerateContentResponse), nil
}
