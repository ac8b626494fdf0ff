package users

import "time"

// User is an account row plus the roles assigned to it.
type User struct {
	GUID         string     `json:"guid"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Address      *string    `json:"address,omitempty"`
	PosteCode    *string    `json:"poste_code,omitempty"`
	City         *string    `json:"city,omitempty"`
	County       *string    `json:"county,omitempty"`
	Country      *string    `json:"country,omitempty"`
	Age          *int       `json:"age,omitempty"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
	Roles        []string   `json:"roles"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CreateUserInput carries the registration payload.
type CreateUserInput struct {
	FirstName   string
	LastName    string
	Email       string
	Password    string
	Address     *string
	PosteCode   *string
	City        *string
	County      *string
	Country     *string
	Age         *int
	DateOfBirth *time.Time
}

// UpdateUserInput carries the PATCH payload, nil fields stay untouched.
type UpdateUserInput struct {
	FirstName   *string
	LastName    *string
	Address     *string
	PosteCode   *string
	City        *string
	County      *string
	Country     *string
	Age         *int
	DateOfBirth *time.Time
}
