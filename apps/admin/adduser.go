package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/user"
)

// addUser updates or creates an active user.User. Admins get every role, others are operators.
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Name:     uname,
			Username: uname,
			Email:    email,
			Roles:    []string{user.RoleOperator},
		}
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.IsActive = true
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
