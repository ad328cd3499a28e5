package mission

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/houston/internal/mission/budget"
	"github.com/autopeer-io/houston/internal/mission/report"
	"github.com/autopeer-io/houston/pkg/mqtt/mqtttest"
	"github.com/autopeer-io/houston/pkg/mqtt/topic"
	"github.com/autopeer-io/houston/pkg/options"
)

func sinkNames(sinks []report.Sink) []string {
	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	return names
}

func TestSinksFollowOptions(t *testing.T) {
	cfg := testConfig(t, testingclock.NewFakeClock(time.Now()))
	topics := topic.NewBuilder(cfg.MqttOptions.TopicRoot)
	client := mqtttest.NewBroker().Client()

	sinks, err := cfg.newSinks(context.Background(), client, topics)
	require.NoError(t, err)
	assert.Equal(t, []string{"file"}, sinkNames(sinks))

	cfg.Quiet = false
	cfg.Out = &bytes.Buffer{}
	cfg.ReportOptions.PublishMQTT = true
	sinks, err = cfg.newSinks(context.Background(), client, topics)
	require.NoError(t, err)
	assert.Equal(t, []string{"file", "mqtt", "table"}, sinkNames(sinks))

	cfg.ReportOptions.File = ""
	cfg.ReportOptions.Table = false
	sinks, err = cfg.newSinks(context.Background(), nil, topics)
	require.NoError(t, err)
	assert.Empty(t, sinks, "mqtt sink needs a client")
}

func TestOpenStore(t *testing.T) {
	cfg := testConfig(t, testingclock.NewFakeClock(time.Now()))
	ctx := context.Background()

	store, err := cfg.OpenStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &budget.MemoryStore{}, store)
	require.NoError(t, store.Close())

	cfg.StoreOptions.Backend = options.StoreSQLite
	cfg.SQLiteOptions.Path = filepath.Join(t.TempDir(), "samples.db")
	store, err = cfg.OpenStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &budget.SQLiteStore{}, store)
	require.NoError(t, store.Append(ctx, budget.Battery, 0.05))
	require.NoError(t, store.Close())

	store, err = cfg.OpenStore(ctx)
	require.NoError(t, err)
	defer store.Close()
	samples, err := store.Samples(ctx, budget.Battery, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.05}, samples, "samples survive a reopen")
}

func TestRedisStoreNeedsServer(t *testing.T) {
	cfg := testConfig(t, testingclock.NewFakeClock(time.Now()))
	cfg.StoreOptions.Backend = options.StoreRedis
	cfg.RedisOptions.Addr = "127.0.0.1:1"
	cfg.RedisOptions.DialTimeout = 100 * time.Millisecond

	_, err := cfg.OpenStore(context.Background())
	assert.ErrorContains(t, err, "redis not reachable")
}

func TestSimConfigFromOptions(t *testing.T) {
	cfg := testConfig(t, testingclock.NewFakeClock(time.Now()))
	cfg.VehicleOptions.SimSpeed = 8
	cfg.VehicleOptions.HomeLatitude = 10

	c := cfg.simConfig()
	assert.Equal(t, 8.0, c.Speed)
	assert.Equal(t, 10.0, c.Home.Latitude)
	assert.Equal(t, tick, c.Step)
	assert.Equal(t, 100.0, c.InitialBattery)
}
