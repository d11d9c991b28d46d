package attendance

import (
	"context"
	"fmt"
	"net/mail"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/syaifulazham/techlympics/core"
)

const (
	managerCodeTemplate = "manager_qr"
	sendConcurrency     = 4
)

// SendManagerCodes emails their check-in code to the PENDING managers of the event.
// A manager becomes SENT once delivery succeeds, FAILED when it fails or the address is unusable.
func (svc *service) SendManagerCodes(ctx context.Context, eventID int) (SendCodesResult, error) {
	ev, err := svc.events.Get(ctx, eventID)
	if err != nil {
		return SendCodesResult{}, err
	}
	managers, err := svc.repo.PendingManagers(ctx, eventID)
	if err != nil {
		return SendCodesResult{}, errors.Wrap(err, "loading pending managers")
	}

	contingentNames, err := svc.contingentNames(ctx, managers)
	if err != nil {
		return SendCodesResult{}, err
	}

	var (
		mu     sync.Mutex
		sent   []int
		failed []int
	)
	markFailed := func(id int) {
		mu.Lock()
		failed = append(failed, id)
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(sendConcurrency)
	for _, mgr := range managers {
		mgr := mgr
		addr, err := mail.ParseAddress(mgr.Email)
		if err != nil {
			markFailed(mgr.ID)
			continue
		}
		addr.Name = mgr.Name
		msg := &core.EmailMessage{
			To:           []mail.Address{*addr},
			Subject:      "Your check-in code for " + ev.Name,
			TemplateName: managerCodeTemplate,
			TemplateData: map[string]interface{}{
				"Name":           mgr.Name,
				"ContingentName": contingentNames[mgr.ContingentID],
				"EventName":      ev.Name,
				"Hashcode":       mgr.Hashcode,
			},
		}
		g.Go(func() error {
			if err := svc.mailSvc.SendMessage(msg); err != nil {
				svc.logger.Error(fmt.Sprintf("sending code to manager %d: %v", mgr.ID, err), err)
				markFailed(mgr.ID)
				return nil
			}
			mu.Lock()
			sent = append(sent, mgr.ID)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	err = svc.runInTx(ctx, func(tx core.DBExecutor) error {
		if len(sent) > 0 {
			if err := svc.repo.SetManagerEmailStatus(ctx, sent, EmailSent, tx); err != nil {
				return errors.Wrap(err, "marking codes sent")
			}
		}
		if len(failed) > 0 {
			if err := svc.repo.SetManagerEmailStatus(ctx, failed, EmailFailed, tx); err != nil {
				return errors.Wrap(err, "marking codes failed")
			}
		}
		return nil
	})
	if err != nil {
		return SendCodesResult{}, err
	}
	return SendCodesResult{Sent: len(sent), Failed: len(failed)}, nil
}

func (svc *service) contingentNames(ctx context.Context, managers []ManagerRecord) (map[int]string, error) {
	names := make(map[int]string)
	for _, mgr := range managers {
		if _, ok := names[mgr.ContingentID]; ok {
			continue
		}
		c, err := svc.participants.GetContingent(ctx, mgr.ContingentID)
		if err != nil {
			return nil, errors.Wrapf(err, "loading contingent %d", mgr.ContingentID)
		}
		names[mgr.ContingentID] = c.DisplayName()
	}
	return names, nil
}
