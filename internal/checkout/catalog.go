package checkout

// Product is an item offered on the checkout page.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Products is the demo catalog.
var Products = []Product{
	{ID: "prod-1", Name: "Curso de Marketing Digital", Description: "Online course on digital marketing", Price: 297.00},
	{ID: "prod-2", Name: "Mentoria de Negócios", Description: "Business mentoring programme", Price: 997.00},
	{ID: "prod-3", Name: "E-book: Vendas na Internet", Description: "E-book on selling online", Price: 47.00},
}

// OrderBump is the add-on offered next to every product.
var OrderBump = Product{
	ID:          "bump-1",
	Name:        "Garantia Estendida",
	Description: "Extends the warranty by 12 months at 50% off",
	Price:       47.00,
}

// FindProduct looks a product up by id.
func FindProduct(id string) (Product, bool) {
	for _, p := range Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
