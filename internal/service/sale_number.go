package service

import (
	"context"
	"fmt"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"

	"github.com/redis/go-redis/v9"
)

// saleNumberTTL keeps a day's counter around past midnight in every timezone.
const saleNumberTTL = 48 * time.Hour

// SaleNumberGenerator hands out <prefix>-YYYYMMDD-NNNN numbers from a per-day
// Redis counter. INCR is atomic, so concurrent sales never share a number.
type SaleNumberGenerator interface {
	Next(ctx context.Context, day time.Time) (string, error)
	Generate(ctx context.Context, p dto.GenerateSaleNumberParams) (*dto.SaleNumberResponse, error)
}

type saleNumberGenerator struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewSaleNumberGenerator(rdb *redis.Client, prefix string) SaleNumberGenerator {
	if prefix == "" {
		prefix = "INV"
	}
	return &saleNumberGenerator{rdb: rdb, prefix: prefix, now: time.Now}
}

func (g *saleNumberGenerator) Next(ctx context.Context, day time.Time) (string, error) {
	date := day.Format("20060102")
	key := "sale_number:" + date
	n, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("sale number: incr %s: %w", key, err)
	}
	if n == 1 {
		if err := g.rdb.Expire(ctx, key, saleNumberTTL).Err(); err != nil {
			return "", fmt.Errorf("sale number: expire %s: %w", key, err)
		}
	}
	return fmt.Sprintf("%s-%s-%04d", g.prefix, date, n), nil
}

func (g *saleNumberGenerator) Generate(ctx context.Context, p dto.GenerateSaleNumberParams) (*dto.SaleNumberResponse, error) {
	day := g.now()
	if p.Date != "" {
		d, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: date: %v", ErrValidation, err)
		}
		day = d
	}
	num, err := g.Next(ctx, day)
	if err != nil {
		return nil, err
	}
	return &dto.SaleNumberResponse{SaleNumber: num}, nil
}
