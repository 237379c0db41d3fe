package executor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Paper 是干跑适配器: 不触达链上, 只记录订单并返回合成签名。
// 用于在接入真实资金前验证整条复制管线。
type Paper struct {
	logger zerolog.Logger
}

// NewPaper 构造干跑适配器。
func NewPaper(logger zerolog.Logger) *Paper {
	return &Paper{logger: logger.With().Str("component", "paper_executor").Logger()}
}

// PlaceOrder 记录订单并返回 "paper-" 前缀的合成签名。
func (p *Paper) PlaceOrder(ctx context.Context, order Order) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	signature := fmt.Sprintf("paper-%s", uuid.NewString())
	p.logger.Info().
		Str("order", order.String()).
		Str("signature", signature).
		Msg("纸面订单已记录")
	return signature, nil
}

var _ Adapter = (*Paper)(nil)
