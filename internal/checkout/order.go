package checkout

import "time"

// Payment methods accepted at checkout.
const (
	PaymentCreditCard = "credit_card"
	PaymentPix        = "pix"
	PaymentBoleto     = "boleto"
)

// StatusApproved is the only status the simulated payment produces.
const StatusApproved = "approved"

type Customer struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Document string `json:"document" validate:"required"`
	Phone    string `json:"phone,omitempty"`
}

type Order struct {
	ID            string    `json:"id"`
	Product       Product   `json:"product"`
	Customer      Customer  `json:"customer"`
	OrderBump     *Product  `json:"order_bump"`
	PaymentMethod string    `json:"payment_method"`
	Total         float64   `json:"total"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type CompleteRequest struct {
	ProductID     string   `json:"product_id" validate:"required"`
	Customer      Customer `json:"customer"`
	OrderBump     bool     `json:"order_bump"`
	PaymentMethod string   `json:"payment_method" validate:"omitempty,oneof=credit_card pix boleto"`
}

// Total returns the product price plus the bump when selected.
func Total(p Product, withBump bool) float64 {
	total := p.Price
	if withBump {
		total += OrderBump.Price
	}
	return total
}
