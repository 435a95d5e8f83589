package entity

type IPRecord struct {
	ID        int64    `json:"id" db:"id"`
	IPAddress string   `json:"ip_address" db:"ip_address"`
	Timezone  *string  `json:"timezone,omitempty" db:"timezone"`
	Provider  *string  `json:"provider,omitempty" db:"provider"`
	Country   *string  `json:"country,omitempty" db:"country"`
	Region    *string  `json:"region,omitempty" db:"region"`
	City      *string  `json:"city,omitempty" db:"city"`
	Latitude  *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64 `json:"longitude,omitempty" db:"longitude"`
	IsProxy   bool     `json:"is_proxy" db:"is_proxy"`
}
