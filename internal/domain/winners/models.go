package winners

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Winner is the append-only record of a settled auction
type Winner struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	ProductID     uuid.UUID       `json:"productId" db:"product_id"`
	UserID        uuid.UUID       `json:"userId" db:"user_id"`
	BidID         uuid.UUID       `json:"bidId" db:"bid_id"`
	WinningAmount decimal.Decimal `json:"winningAmount" db:"winning_amount"`
	WonAt         time.Time       `json:"wonAt" db:"won_at"`

	User    *UserRef    `json:"user,omitempty" db:"-"`
	Product *ProductRef `json:"product,omitempty" db:"-"`
}

type UserRef struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type ProductRef struct {
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}
