package gateway

// wireEnvelope is the {success, data} shape every storefront endpoint returns.
type wireEnvelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type wireProduct struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Slug             string   `json:"slug"`
	Description      *string  `json:"description"`
	ShortDescription *string  `json:"shortDescription"`
	Price            float64  `json:"price"`
	DiscountPrice    *float64 `json:"discountPrice"`
	SKU              string   `json:"sku"`
	Stock            int      `json:"stock"`
	ProfileImgURL    *string  `json:"profileImgUrl"`
	IsActive         bool     `json:"isActive"`
}

type wireCartItem struct {
	ID        string       `json:"id"`
	CartID    string       `json:"cartId"`
	ProductID string       `json:"productId"`
	Quantity  int          `json:"quantity"`
	Price     float64      `json:"price"`
	AddedAt   string       `json:"addedAt"`
	UpdatedAt string       `json:"updatedAt"`
	Product   *wireProduct `json:"product"`
}

type wireCart struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Items      []wireCartItem `json:"items"`
	TotalItems int            `json:"totalItems"`
	Subtotal   float64        `json:"subtotal"`
	CreatedAt  string         `json:"createdAt"`
	UpdatedAt  string         `json:"updatedAt"`
}

type addToCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity,omitempty"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// DeliveryFee is the active delivery fee configured by the store admin.
type DeliveryFee struct {
	ID     string  `json:"id"`
	Fee    float64 `json:"fee"`
	Status string  `json:"status"`
}

// errorBody covers the error shapes the storefront API sends.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (b errorBody) text() string {
	if b.Message != "" {
		return b.Message
	}
	return b.Error
}

type wireUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// sessionResponse accepts both {user: ...} and {success, data: ...} bodies.
type sessionResponse struct {
	User *wireUser `json:"user"`
	Data *wireUser `json:"data"`
}
