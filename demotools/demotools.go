// Package demotools provides a handful of illustrative tool bodies —
// current_time, forge_execute, contract_fetch — matching the scenarios used
// to exercise the scheduler end to end. They are deliberately simple: none
// of them talks to a real clock, chain, or registry.
package demotools

import (
	"context"
	"strconv"
	"time"

	"github.com/sessiontools/toolsched/channel"
	"github.com/sessiontools/toolsched/toolerrors"
	"github.com/sessiontools/toolsched/toolregistry"
)

// Clock abstracts the current-time source so tests can supply a fixed
// value without monkeypatching time.Now.
type Clock func() time.Time

// RegisterCurrentTime adds a single-step "current_time" tool in namespace
// "time" that emits the Unix timestamp from clock. A nil clock defaults to
// time.Now.
func RegisterCurrentTime(registry *toolregistry.Registry, clock Clock) error {
	if clock == nil {
		clock = time.Now
	}
	return registry.Register(toolregistry.Descriptor{
		Name:        "current_time",
		Namespace:   "time",
		Description: "Returns the current Unix timestamp.",
		MultiStep:   false,
		Invoke: func(ctx context.Context, sender channel.Sender, args map[string]any) {
			ts := clock().Unix()
			sender.Send(ctx, channel.Ok(strconv.FormatInt(ts, 10)))
			sender.Close()
		},
	})
}

// RegisterForgeExecute adds a multi-step "forge_execute" tool in namespace
// "forge" that emits three progress chunks then closes, modeling a
// long-running build/deploy pipeline.
func RegisterForgeExecute(registry *toolregistry.Registry) error {
	return registry.Register(toolregistry.Descriptor{
		Name:        "forge_execute",
		Namespace:   "forge",
		Description: "Runs a multi-step build pipeline, emitting one chunk per stage.",
		MultiStep:   true,
		Invoke: func(ctx context.Context, sender channel.Sender, args map[string]any) {
			stages := []string{"step 1", "step 2", "done"}
			for _, stage := range stages {
				if err := sender.Send(ctx, channel.Ok(stage)); err != nil {
					return
				}
			}
			sender.Close()
		},
	})
}

// RegisterContractFetch adds a single-step "contract_fetch" tool in
// namespace "forge" that looks up a contract address in a caller-supplied
// directory, failing with a ToolError-shaped message when the id argument
// is missing or unknown.
func RegisterContractFetch(registry *toolregistry.Registry, directory map[string]string) error {
	return registry.Register(toolregistry.Descriptor{
		Name:        "contract_fetch",
		Namespace:   "forge",
		Description: "Resolves a contract id to its deployed address.",
		MultiStep:   false,
		Invoke: func(ctx context.Context, sender channel.Sender, args map[string]any) {
			id, _ := args["id"].(string)
			if id == "" {
				sender.Send(ctx, channel.Err(toolerrors.Errorf("contract_fetch: missing required arg %q", "id")))
				sender.Close()
				return
			}
			address, ok := directory[id]
			if !ok {
				sender.Send(ctx, channel.Err(toolerrors.Errorf("contract_fetch: unknown contract id %q", id)))
				sender.Close()
				return
			}
			sender.Send(ctx, channel.Ok(address))
			sender.Close()
		},
	})
}
