// Package connection owns registered database connections: their stored
// profiles and the live pools opened from them.
package connection

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/errs"
)

// MaskedPassword replaces passwords in listings.
const MaskedPassword = "***"

// Profile is a stored endpoint and its credentials for one server.
type Profile struct {
	ID       string          `json:"id,omitempty" yaml:"id,omitempty"`
	Name     string          `json:"name" yaml:"name" validate:"required"`
	DBType   database.Driver `json:"db_type" yaml:"db_type" validate:"required,oneof=mysql postgres oracle mssql"`
	Host     string          `json:"host" yaml:"host" validate:"required"`
	Port     int             `json:"port" yaml:"port" validate:"min=1,max=65535"`
	Username string          `json:"username" yaml:"username" validate:"required"`
	Password string          `json:"password" yaml:"password"`
	Database string          `json:"database,omitempty" yaml:"database,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names so messages match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the profile's fields and returns an invalid_input error
// naming every failed field.
func (p *Profile) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, fieldErr := range validationErrors {
			messages = append(messages, fmt.Sprintf("Field: %s, Tag: %s", fieldErr.Field(), fieldErr.Tag()))
		}
		return errs.Newf(errs.ErrKindInvalidInput, "validation failed: %s", strings.Join(messages, "; "))
	}
	return errs.Wrap(errs.ErrKindInvalidInput, "validation error", err)
}

// Masked returns a copy with the password hidden.
func (p Profile) Masked() Profile {
	p.Password = MaskedPassword
	return p
}

// DatabaseConfig converts the profile into driver settings.
func (p Profile) DatabaseConfig(connectTimeout time.Duration) *database.Config {
	cfg := database.DefaultConfig(p.DBType)
	cfg.Host = p.Host
	if p.Port > 0 {
		cfg.Port = p.Port
	}
	cfg.User = p.Username
	cfg.Password = p.Password
	cfg.Database = p.Database
	if connectTimeout > 0 {
		cfg.ConnectTimeout = connectTimeout
	}
	return cfg
}
