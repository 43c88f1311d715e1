package main

import (
	"context"
	"time"

	"github.com/tmalira/shule/core"
	"github.com/tmalira/shule/core/principal"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	p, err := cli.repo.GetPrincipal(ctx, principal.GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	hash, err := principal.HashPassword(pwd, cli.conf.BcryptCost)
	if err != nil {
		return err
	}
	return cli.repo.UpdatePasswordHash(ctx, p.ID, hash, time.Now().UTC())
}
