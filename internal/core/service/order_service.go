package service

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
)

const instrumentationName = "github.com/rl1809/order-engine/internal/core/service"

type OrderLimits struct {
	MaxItems    int
	MaxQuantity int
}

func DefaultOrderLimits() OrderLimits {
	return OrderLimits{MaxItems: 10, MaxQuantity: 999}
}

type OrderService struct {
	store    port.InventoryStore
	strategy LockingStrategy
	shipping domain.ShippingPolicy
	limits   OrderLimits
	logger   zerolog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	metrics  orderMetrics
	now      func() time.Time
	newID    func() string
}

type OrderOption func(*OrderService)

func WithOrderLogger(logger zerolog.Logger) OrderOption {
	return func(s *OrderService) { s.logger = logger }
}

func WithLimits(limits OrderLimits) OrderOption {
	return func(s *OrderService) { s.limits = limits }
}

func WithTracerProvider(tp trace.TracerProvider) OrderOption {
	return func(s *OrderService) { s.tracer = tp.Tracer(instrumentationName) }
}

func WithMeterProvider(mp metric.MeterProvider) OrderOption {
	return func(s *OrderService) { s.meter = mp.Meter(instrumentationName) }
}

func WithOrderClock(now func() time.Time) OrderOption {
	return func(s *OrderService) { s.now = now }
}

func WithOrderNumberGenerator(newID func() string) OrderOption {
	return func(s *OrderService) { s.newID = newID }
}

func NewOrderService(store port.InventoryStore, strategy LockingStrategy, shipping domain.ShippingPolicy, opts ...OrderOption) (*OrderService, error) {
	s := &OrderService{
		store:    store,
		strategy: strategy,
		shipping: shipping,
		limits:   DefaultOrderLimits(),
		logger:   zerolog.Nop(),
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	metrics, err := newOrderMetrics(s.meter)
	if err != nil {
		return nil, err
	}
	s.metrics = metrics
	s.logger = s.logger.With().Str("strategy", string(strategy.Name())).Logger()
	return s, nil
}

func (s *OrderService) Strategy() StrategyName {
	return s.strategy.Name()
}

func (s *OrderService) ShippingPolicy() domain.ShippingPolicy {
	return s.shipping
}

// PlaceOrder validates items, reserves stock through the configured strategy
// and persists the order. Either every item is reserved and the order stored,
// or nothing changes.
func (s *OrderService) PlaceOrder(ctx context.Context, items []ItemRequest) (*domain.Order, error) {
	strategy := attribute.String("strategy", string(s.strategy.Name()))
	ctx, span := s.tracer.Start(ctx, "order.place", trace.WithAttributes(
		strategy,
		attribute.Int("order.item_count", len(items)),
	))
	defer span.End()

	order, err := s.place(ctx, items, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.failed.Add(ctx, 1, metric.WithAttributes(strategy, attribute.String("reason", failureReason(err))))
		s.logger.Warn().Err(err).Int("items", len(items)).Msg("place order failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("order.number", order.OrderNumber))
	s.metrics.placed.Add(ctx, 1, metric.WithAttributes(strategy))
	s.logger.Info().
		Str("order_number", order.OrderNumber).
		Int("quantity", order.TotalQuantity()).
		Str("payment_amount", order.PaymentAmount.String()).
		Msg("order placed")
	return order, nil
}

func (s *OrderService) place(ctx context.Context, items []ItemRequest, span trace.Span) (*domain.Order, error) {
	if err := s.validate(items); err != nil {
		return nil, err
	}

	strategy := attribute.String("strategy", string(s.strategy.Name()))
	attempt := 1
	return s.strategy.Place(ctx, s.store, Reservation{
		Items: sortItems(items),
		OnRetry: func(err error, next time.Duration) {
			attempt++
			span.AddEvent("order.retry", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.String("error", err.Error()),
			))
			s.metrics.retries.Add(ctx, 1, metric.WithAttributes(strategy))
			s.logger.Debug().Err(err).Int("attempt", attempt).Dur("backoff", next).Msg("retrying order placement")
		},
		build: s.buildOrder,
	})
}

func (s *OrderService) buildOrder(lines []domain.OrderLine) domain.Order {
	return domain.NewOrder(s.newID(), s.now(), lines, s.shipping)
}

func (s *OrderService) validate(items []ItemRequest) error {
	if len(items) == 0 {
		return domain.InvalidOrder("order has no items")
	}
	if len(items) > s.limits.MaxItems {
		return domain.InvalidOrder("%d items exceeds the limit of %d", len(items), s.limits.MaxItems)
	}

	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if item.ProductNumber <= 0 {
			return domain.InvalidOrder("invalid product number %d", item.ProductNumber)
		}
		if item.Quantity < 1 || item.Quantity > s.limits.MaxQuantity {
			return domain.InvalidOrder("quantity %d for product %d must be between 1 and %d",
				item.Quantity, item.ProductNumber, s.limits.MaxQuantity)
		}
		if _, dup := seen[item.ProductNumber]; dup {
			return domain.InvalidOrder("duplicate product number %d", item.ProductNumber)
		}
		seen[item.ProductNumber] = struct{}{}
	}
	return nil
}

// sortItems returns a copy ordered by product number; every strategy takes
// its locks in this order.
func sortItems(items []ItemRequest) []ItemRequest {
	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b ItemRequest) int {
		return cmp.Compare(a.ProductNumber, b.ProductNumber)
	})
	return sorted
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

type orderMetrics struct {
	placed  metric.Int64Counter
	failed  metric.Int64Counter
	retries metric.Int64Counter
}

func newOrderMetrics(meter metric.Meter) (orderMetrics, error) {
	placed, err := meter.Int64Counter("orders.placed", metric.WithDescription("Orders persisted"))
	if err != nil {
		return orderMetrics{}, err
	}
	failed, err := meter.Int64Counter("orders.failed", metric.WithDescription("Order placements that returned an error"))
	if err != nil {
		return orderMetrics{}, err
	}
	retries, err := meter.Int64Counter("orders.retries", metric.WithDescription("Placement attempts retried after contention"))
	if err != nil {
		return orderMetrics{}, err
	}
	return orderMetrics{placed: placed, failed: failed, retries: retries}, nil
}
