// Package nodeadmin hosts cafnode's own auxiliary service actors: the stats
// reporter that cafnode queries over Ask once a minute, built with
// internal/baselib/actor and serving as the host process's own control
// plane rather than a product feature.
// These are deliberately NOT implemented on top of the caf package: they
// are plain request/response services internal to one process, not CAF
// actors with mailboxes, links, or BASP addressability.
package nodeadmin

import (
	"context"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/cafgo/caf/internal/actorutil"
	baseactor "github.com/cafgo/caf/internal/baselib/actor"
	"github.com/cafgo/caf/system"
)

// StatsQuery is the (empty) request for a StatsSnapshot.
type StatsQuery struct {
	baseactor.BaseMessage
}

// MessageType implements actor.Message.
func (StatsQuery) MessageType() string { return "nodeadmin.StatsQuery" }

// StatsSnapshot reports a point-in-time view of the node's CAF actor system.
type StatsSnapshot struct {
	NodeID          string
	ActorCount      int
	RegisteredCount int64
}

// StatsServiceKey is the receptionist key the reporter is registered under.
var StatsServiceKey = baseactor.NewServiceKey[StatsQuery, StatsSnapshot]("cafnode-stats")

// NewStatsReporter returns a behavior that answers StatsQuery with a live
// snapshot of cafSys.
func NewStatsReporter(cafSys *system.ActorSystem) baseactor.ActorBehavior[StatsQuery, StatsSnapshot] {
	return baseactor.NewFunctionBehavior(
		func(_ context.Context, _ StatsQuery) fn.Result[StatsSnapshot] {
			return fn.Ok(StatsSnapshot{
				NodeID:          cafSys.NodeID().String(),
				ActorCount:      cafSys.ActorCount(),
				RegisteredCount: cafSys.Pool().RegisteredCount(),
			})
		},
	)
}

// Spawn registers the stats reporter on baseSys under StatsServiceKey.
func Spawn(
	baseSys *baseactor.ActorSystem, cafSys *system.ActorSystem,
) baseactor.ActorRef[StatsQuery, StatsSnapshot] {

	return StatsServiceKey.Spawn(baseSys, "stats-reporter", NewStatsReporter(cafSys))
}

// Query asks ref for a snapshot, awaiting the result.
func Query(
	ctx context.Context, ref baseactor.ActorRef[StatsQuery, StatsSnapshot],
) (StatsSnapshot, error) {

	snapshot, err := actorutil.AskAwait(ctx, ref, StatsQuery{})
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("querying node stats: %w", err)
	}
	return snapshot, nil
}
