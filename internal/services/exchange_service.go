package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"finitefield.org/manual/internal/content"
	"finitefield.org/manual/internal/exchange"
)

// ExchangeServiceDeps bundles collaborators required by the exchange service.
type ExchangeServiceDeps struct {
	Store  *content.Store
	Logger *zap.Logger
}

type exchangeService struct {
	store  *content.Store
	logger *zap.Logger
}

var _ ExchangeService = (*exchangeService)(nil)

// NewExchangeService constructs the CSV exchange service.
func NewExchangeService(deps ExchangeServiceDeps) (ExchangeService, error) {
	if deps.Store == nil {
		return nil, errors.New("exchange service: store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &exchangeService{store: deps.Store, logger: logger}, nil
}

func (s *exchangeService) Export(ctx context.Context, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return exchange.Export(s.store, w)
}

// Import applies the sheet to a scratch copy first so a bad row leaves the live store untouched.
func (s *exchangeService) Import(ctx context.Context, r io.Reader) (exchange.Result, error) {
	if err := ctx.Err(); err != nil {
		return exchange.Result{}, err
	}
	scratch := content.NewStore(content.WithSnapshot(s.store.Snapshot()))
	result, err := exchange.Import(scratch, r)
	if err != nil {
		return exchange.Result{}, fmt.Errorf("exchange service: import: %w", err)
	}
	s.store.Apply(scratch.Snapshot())
	s.logger.Info("csv imported",
		zap.Int("rows", result.Rows),
		zap.Int("categories_created", result.CategoriesCreated),
		zap.Int("pages_created", result.PagesCreated),
		zap.Int("keys_written", result.KeysWritten),
	)
	return result, nil
}
