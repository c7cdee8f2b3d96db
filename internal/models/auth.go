package models

// LoginRequest defines the structure for operator login requests
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Operator is a console user allowed to trigger reconciliation and recovery.
// Operators are provisioned through configuration, not a collection.
type Operator struct {
	Username     string `mapstructure:"username" json:"username"`
	PasswordHash string `mapstructure:"passwordhash" json:"-"` // bcrypt
	Role         string `mapstructure:"role" json:"role"`
}
