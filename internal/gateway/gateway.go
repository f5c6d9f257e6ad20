// Package gateway presents one uniform contract per entity type so the UI
// layer never branches on connectivity.
//
// Every mutating call follows the same algorithm: attempt the remote write
// when the device looks online, and on success persist the server's
// canonical answer locally. A validation rejection (422) surfaces to the
// caller untouched. Any other failure, including being offline to begin
// with, falls back to an optimistic local write plus a mutation-queue entry for
// the sync engine to replay later.
//
// Reads prefer the server and opportunistically refresh the local cache,
// falling back to cached state when the network fails. A server 404 is
// authoritative and is never masked by a stale local copy.
package gateway

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldware/fieldsync/internal/connectivity"
	"github.com/fieldware/fieldsync/internal/record"
	"github.com/fieldware/fieldsync/internal/remote"
	"github.com/fieldware/fieldsync/internal/store"
)

// Deps carries the collaborators every gateway shares.
type Deps struct {
	Store  *store.DB
	Remote *remote.Client
	Oracle connectivity.Oracle
	IDs    record.IDGenerator
	Logger *logrus.Logger
	Now    func() time.Time
}

// Gateways bundles one gateway per synchronized entity type.
type Gateways struct {
	Tasks      *TaskGateway
	Stores     *StoreGateway
	Products   *ProductGateway
	Schedules  *ScheduleGateway
	Recordings *RecordingGateway
}

// New wires the gateways. Store, Remote, and Oracle are required; IDs, Now,
// and Logger get production defaults when nil.
func New(deps Deps) (*Gateways, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if deps.Remote == nil {
		return nil, fmt.Errorf("remote client cannot be nil")
	}
	if deps.Oracle == nil {
		return nil, fmt.Errorf("connectivity oracle cannot be nil")
	}
	if deps.IDs == nil {
		deps.IDs = record.NewIDGenerator()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
		deps.Logger.SetOutput(io.Discard)
	}

	base := &base{
		store:  deps.Store,
		remote: deps.Remote,
		oracle: deps.Oracle,
		ids:    deps.IDs,
		now:    deps.Now,
		logger: deps.Logger.WithField("component", "gateway"),
	}

	return &Gateways{
		Tasks:      &TaskGateway{base},
		Stores:     &StoreGateway{base},
		Products:   &ProductGateway{base},
		Schedules:  &ScheduleGateway{base},
		Recordings: &RecordingGateway{base},
	}, nil
}

// base is the shared state behind every gateway. Gateways themselves hold
// no record state; the local store owns all persisted data.
type base struct {
	store  *store.DB
	remote *remote.Client
	oracle connectivity.Oracle
	ids    record.IDGenerator
	now    func() time.Time
	logger *logrus.Entry
}

// fellBack decides whether a failed remote write takes the offline path.
// Validation rejections and authoritative 404s are definitive verdicts and
// must surface; everything else is connectivity trouble.
func (b *base) fellBack(op string, err error) bool {
	if err == nil || !remote.IsTransient(err) {
		return false
	}
	b.logger.WithError(err).WithField("op", op).Debug("remote call failed, falling back to local state")
	return true
}
