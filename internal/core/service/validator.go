package service

import (
	"context"
	"strings"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
)

// BasicValidator checks request shape and that no proposed member already
// belongs to an expedition known to this zone.
type BasicValidator struct {
	registry Registry
	clients  Clients
}

// NewBasicValidator creates the default request validator.
func NewBasicValidator(registry Registry, clients Clients) *BasicValidator {
	return &BasicValidator{registry: registry, clients: clients}
}

// Validate implements RequestValidator.
func (v *BasicValidator) Validate(_ context.Context, req *domain.CreateRequest) error {
	if req == nil {
		return domain.ErrMissingArgument.WithDetails("request is required")
	}
	if err := req.Validate(); err != nil {
		return err
	}

	var assigned []string
	for _, m := range req.Members {
		if _, ok := v.registry.FindByCharacterID(m.CharacterID); ok {
			assigned = append(assigned, m.CharacterName)
			continue
		}
		if c, ok := v.clients.Character(m.CharacterID); ok && c.ExpeditionID != 0 {
			assigned = append(assigned, m.CharacterName)
		}
	}
	if len(assigned) > 0 {
		return domain.ErrValidationRejected.WithDetails(
			"already in an expedition: " + strings.Join(assigned, ", "))
	}
	return nil
}
