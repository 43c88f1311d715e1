package main

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tmalira/shule/core"
	"github.com/tmalira/shule/core/principal"
)

// createAdmin creates an active admin account. The email must not belong to
// an existing live account.
func (cli *commandLine) createAdmin(email, first, last, pwd string, super bool) error {
	ctx := context.Background()

	role := principal.RoleAdmin
	if super {
		role = principal.RoleSuperAdmin
	}

	now := time.Now().UTC()
	p := principal.Principal{
		ID:        uuid.New().String(),
		Code:      principal.NewCode(role),
		FirstName: core.CleanString(first),
		LastName:  core.CleanString(last),
		Email:     core.CleanString(email, true /* lower */),
		Role:      role,
		Status:    principal.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.SetPassword(pwd, cli.conf.BcryptCost); err != nil {
		return err
	}
	if _, err := cli.repo.CreatePrincipal(ctx, p); err != nil {
		return err
	}
	return nil
}
