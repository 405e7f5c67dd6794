package domain

import "time"

// Account is a rider or driver as far as trips are concerned.
type Account struct {
	ID               string
	Name             string
	WalletAddress    string
	RidesAsPassenger int
	RidesAsDriver    int
	CreatedAt        time.Time
}
