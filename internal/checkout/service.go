package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
	"github.com/Priya8975/checkout-webhooks/internal/worker"
)

// Queue accepts events for background fan-out.
type Queue interface {
	TrySubmit(req worker.DispatchRequest) bool
}

// Service runs the checkout flow. Webhook delivery is always queued, so
// neither call ever waits on a subscriber endpoint.
type Service struct {
	orders   *OrderStore
	queue    Queue
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(orders *OrderStore, queue Queue, logger *slog.Logger) *Service {
	return &Service{
		orders:   orders,
		queue:    queue,
		validate: newValidator(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start records that a customer opened the checkout for productID.
func (s *Service) Start(ctx context.Context, productID string) (Product, error) {
	product, ok := FindProduct(productID)
	if !ok {
		return Product{}, &domain.NotFoundError{Resource: "product", ID: productID}
	}

	s.emit(domain.EventCheckoutStarted, map[string]any{
		"product_id":   product.ID,
		"product_name": product.Name,
		"price":        product.Price,
	})
	return product, nil
}

// Complete validates the customer, stores an approved order and queues
// checkout.completed and payment.success. The order is returned whatever
// happens to the webhooks.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (*Order, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	product, ok := FindProduct(req.ProductID)
	if !ok {
		return nil, &domain.NotFoundError{Resource: "product", ID: req.ProductID}
	}

	id, err := s.orders.NextID(ctx)
	if err != nil {
		return nil, err
	}

	method := req.PaymentMethod
	if method == "" {
		method = PaymentCreditCard
	}

	order := &Order{
		ID:            id,
		Product:       product,
		Customer:      req.Customer,
		PaymentMethod: method,
		Total:         Total(product, req.OrderBump),
		Status:        StatusApproved,
		CreatedAt:     s.now(),
	}
	if req.OrderBump {
		bump := OrderBump
		order.OrderBump = &bump
	}

	if err := s.orders.Save(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("order completed", "order_id", order.ID, "product_id", product.ID, "total", order.Total)

	s.emit(domain.EventCheckoutCompleted, order)
	s.emit(domain.EventPaymentSuccess, map[string]any{
		"order_id":       order.ID,
		"amount":         order.Total,
		"payment_method": order.PaymentMethod,
		"customer_email": order.Customer.Email,
	})
	return order, nil
}

// Order returns a stored order.
func (s *Service) Order(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// RecentOrders lists unexpired orders, newest first.
func (s *Service) RecentOrders(ctx context.Context, limit int) ([]Order, error) {
	return s.orders.Recent(ctx, limit)
}

func (s *Service) emit(eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to encode event payload", "error", err, "event_type", eventType)
		return
	}
	if !s.queue.TrySubmit(worker.DispatchRequest{EventType: eventType, Payload: payload}) {
		s.logger.Warn("event not queued", "event_type", eventType)
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domain.ValidationError{Reason: err.Error()}
	}

	fe := verrs[0]
	field := fe.Namespace()
	// CompleteRequest.customer.email -> customer.email
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	reason := "is invalid"
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "email":
		reason = "must be a valid email address"
	case "oneof":
		reason = fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return &domain.ValidationError{Field: field, Reason: reason}
}
