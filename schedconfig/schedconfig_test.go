package schedconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`toolsets: []`))
	require.NoError(t, err)
	assert.Equal(t, DefaultQuiesceDeadline, cfg.QuiesceDeadline)
	assert.Equal(t, DefaultQuiescePollInterval, cfg.QuiescePollInterval)
	assert.Equal(t, DefaultMultiCapacity, cfg.MultiCapacity)
	assert.Equal(t, BackendMemory, cfg.Persistence.Backend)
}

func TestParseOverridesAndToolsets(t *testing.T) {
	raw := []byte(`
quiesce_deadline: 5s
multi_capacity: 16
toolsets:
  - namespace: time
    tools: [current_time]
  - namespace: forge
    tools: [forge_execute, contract_fetch]
persistence:
  backend: redis
  redis:
    addr: "localhost:6379"
    ttl: 1h
`)
	cfg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.QuiesceDeadline)
	assert.Equal(t, 16, cfg.MultiCapacity)
	assert.Equal(t, BackendRedis, cfg.Persistence.Backend)
	assert.Equal(t, "localhost:6379", cfg.Persistence.Redis.Addr)

	tools := cfg.ToolsForNamespaces([]string{"forge"})
	assert.Equal(t, []string{"forge_execute", "contract_fetch"}, tools)
}

func TestParseRejectsDuplicateNamespace(t *testing.T) {
	raw := []byte(`
toolsets:
  - namespace: time
    tools: [current_time]
  - namespace: time
    tools: [other_time]
`)
	_, err := Parse(raw)
	assert.Error(t, err)
}

func TestParseRejectsMongoWithoutURI(t *testing.T) {
	raw := []byte(`
persistence:
  backend: mongo
`)
	_, err := Parse(raw)
	assert.Error(t, err)
}
