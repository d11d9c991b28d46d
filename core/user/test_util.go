package user

import (
	"context"

	"github.com/syaifulazham/techlympics/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service that sends password reset emails synchronously.
func NewServiceMock(conf *core.Config, repo Repository, mailSvc core.EmailService) Service {
	return &serviceMock{
		service: *NewService(conf, repo, mailSvc),
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	// mail services mocks run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
