package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sessiontools/toolsched/adapter"
	"github.com/sessiontools/toolsched/demotools"
	"github.com/sessiontools/toolsched/persistence"
	"github.com/sessiontools/toolsched/schedconfig"
	"github.com/sessiontools/toolsched/scheduler"
	"github.com/sessiontools/toolsched/toolregistry"
)

// bootstrapYAML is the scheduler bootstrap document this demo loads through
// schedconfig rather than hand-building scheduler.Options: namespace
// visibility, channel capacity, and the quiesce/concurrency tunables all
// come from here.
const bootstrapYAML = `
quiesce_deadline: 5s
multi_capacity: 16
max_concurrent_tool_calls: 4
persistence:
  backend: memory
toolsets:
  - namespace: time
    tools: [current_time]
  - namespace: forge
    tools: [forge_execute, contract_fetch]
`

func main() {
	ctx := context.Background()

	cfg, err := schedconfig.Parse([]byte(bootstrapYAML))
	if err != nil {
		panic(err)
	}

	// 1) Registry, populated with the illustrative demo tools.
	registry := toolregistry.New()
	if err := demotools.RegisterCurrentTime(registry, nil); err != nil {
		panic(err)
	}
	if err := demotools.RegisterForgeExecute(registry); err != nil {
		panic(err)
	}
	if err := demotools.RegisterContractFetch(registry, map[string]string{
		"usdc": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	}); err != nil {
		panic(err)
	}

	// 2) Scheduler service, parameterized entirely from the loaded config.
	svc := scheduler.New(registry, scheduler.Options{
		MultiCapacity:          cfg.MultiCapacity,
		QuiesceDeadline:        cfg.QuiesceDeadline,
		MaxConcurrentToolCalls: cfg.MaxConcurrentToolCalls,
		Persistence:            persistenceFor(cfg.Persistence),
	})

	namespaces := make([]string, 0, len(cfg.Toolsets))
	for _, ts := range cfg.Toolsets {
		namespaces = append(namespaces, ts.Namespace)
	}
	svc.OpenSession("alice", namespaces)
	fmt.Printf("session alice opened with tools: %v\n", cfg.ToolsForNamespaces(namespaces))

	// 3) The model loop only ever talks to the narrow adapter.
	a := adapter.New(svc)

	queued, err := a.Submit(ctx, "alice", "current_time", "ext-1", map[string]any{})
	if err != nil {
		panic(err)
	}
	fmt.Printf("queued: %+v\n", queued)

	for {
		n, err := a.Tick(ctx, "alice")
		if err != nil {
			panic(err)
		}
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	completions, err := a.DrainCompletions(ctx, "alice")
	if err != nil {
		panic(err)
	}
	for _, c := range completions {
		fmt.Printf("completion: tool=%s final=%t value=%q err=%v\n", c.Metadata.Name, c.IsFinal, c.Result.Value, c.Result.Err)
	}

	if err := a.Cleanup(ctx, "alice", cfg.QuiesceDeadline); err != nil {
		panic(err)
	}
}

// persistenceFor selects a persistence.Bridge per the config's backend
// selection. Only the in-memory backend needs no external client to
// construct; mongo/redis deployments build their *mongo.Client /
// *redis.Client from cfg.Persistence.Mongo/Redis and pass it to
// persistence/mongo.New or persistence/redis.New instead.
func persistenceFor(cfg schedconfig.Persistence) persistence.Bridge {
	switch cfg.Backend {
	case schedconfig.BackendMemory, "":
		return persistence.NewInMemory()
	default:
		panic(fmt.Sprintf("toolsched-demo: backend %q requires a configured client; see persistence/mongo and persistence/redis", cfg.Backend))
	}
}
