package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/stackforge/internal/config"
	"github.com/imamik/stackforge/internal/engine"
	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
	providerfake "github.com/imamik/stackforge/internal/provider/fake"
	"github.com/imamik/stackforge/internal/provisioning/certificate"
	certfake "github.com/imamik/stackforge/internal/provisioning/certificate/fake"
	"github.com/imamik/stackforge/internal/provisioning/network"
	"github.com/imamik/stackforge/internal/state"
	"github.com/imamik/stackforge/internal/util/errdefs"
)

const testZoneID = "Z0EXAMPLE"

type harness struct {
	cloud   *providerfake.Provider
	zone    *certfake.Zone
	ca      *certfake.Authority
	backend *state.MemoryBackend
	locker  *state.MemoryLocker
}

func newHarness() *harness {
	zone := certfake.NewZone("example.com", testZoneID)
	return &harness{
		cloud:   providerfake.New(),
		zone:    zone,
		ca:      certfake.NewAuthority(zone),
		backend: state.NewMemoryBackend(),
		locker:  state.NewMemoryLocker(),
	}
}

func testTimeouts() *config.Timeouts {
	return &config.Timeouts{
		CertificateValidation: 200 * time.Millisecond,
		CertificateOptions:    time.Second,
		ValidationPoll:        5 * time.Millisecond,
		LockWait:              100 * time.Millisecond,
		RetryMaxAttempts:      1,
		RetryInitialDelay:     time.Millisecond,
	}
}

func (h *harness) stack(env config.Environment, opts ...Option) *Stack {
	router := provider.NewRouter(h.cloud)
	certificate.Register(router, certificate.NewWorkflow(h.ca, h.zone, certificate.WithTimeouts(*testTimeouts())))
	deps := Dependencies{Provider: router, Backend: h.backend, Locker: h.locker, Zones: h.zone}
	return New(env, deps, append([]Option{WithTimeouts(testTimeouts())}, opts...)...)
}

func devEnv() config.Environment {
	env := config.Environment{Tier: config.TierDev, Domain: "example.com"}
	config.ApplyDefaults(&env)
	return env
}

func TestBuildGraph_WiresModules(t *testing.T) {
	t.Parallel()
	g, err := BuildGraph(devEnv(), testZoneID)
	require.NoError(t, err)

	assert.Len(t, g.Outputs(), 3)
	for _, name := range []string{OutputLoadBalancerDNSName, OutputClusterName, OutputCertificateARN} {
		assert.Contains(t, g.Outputs(), name)
	}

	service := g.Node(graph.Addr("compute", "service"))
	require.NotNil(t, service)
	assert.Contains(t, service.Dependencies(), graph.Addr("certificate", "https_listener"))

	subnets := 0
	for _, n := range g.TopologicalOrder() {
		if n.Addr.Module == "network" && n.Addr.Name == "subnet" {
			subnets++
		}
	}
	assert.Equal(t, 2, subnets)
}

func TestBuildGraph_ProdProtectsRepository(t *testing.T) {
	t.Parallel()
	env := devEnv()
	env.Tier = config.TierProd
	g, err := BuildGraph(env, testZoneID)
	require.NoError(t, err)
	assert.True(t, g.Node(graph.Addr("registry", "repository")).Lifecycle.PreventDestroy)
}

func TestBuildGraph_TargetPortFollowsContainerPort(t *testing.T) {
	t.Parallel()
	g, err := BuildGraph(devEnv(), testZoneID)
	require.NoError(t, err)
	assert.Equal(t, 3000, g.Node(graph.Addr("loadbalancer", "target_group")).Attrs["Port"])

	env := devEnv()
	env.Container.Port = 8080
	g, err = BuildGraph(env, testZoneID)
	require.NoError(t, err)
	assert.Equal(t, 8080, g.Node(graph.Addr("loadbalancer", "target_group")).Attrs["Port"])
}

func TestBuildGraph_RequiresZone(t *testing.T) {
	t.Parallel()
	_, err := BuildGraph(devEnv(), "")
	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestStack_ApplyDevScenario(t *testing.T) {
	t.Parallel()
	h := newHarness()
	env := devEnv()
	ctx := context.Background()

	res, err := h.stack(env).Apply(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Report.Count(engine.StatusFailed))
	assert.Equal(t, "dev-tv-devops-cluster", res.Outputs[OutputClusterName])
	assert.NotEmpty(t, res.Outputs[OutputLoadBalancerDNSName])
	assert.NotEmpty(t, res.Outputs[OutputCertificateARN])
	assert.Equal(t, 1, h.ca.Requests())
	assert.False(t, h.locker.Held(env.LockID()))

	var alias bool
	for _, rec := range h.zone.Records() {
		if rec.Type == "A" && rec.Name == "dev.example.com" {
			alias = true
		}
	}
	assert.True(t, alias, "alias record for dev.example.com")

	before := h.cloud.MutatingCalls()
	res, err = h.stack(env).Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Plan.Empty())
	assert.Equal(t, before, h.cloud.MutatingCalls())
	assert.Equal(t, 1, h.ca.Requests())

	outputs, err := h.stack(env).Outputs(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Outputs, outputs)
}

func TestStack_PlanDoesNotMutate(t *testing.T) {
	t.Parallel()
	h := newHarness()

	res, err := h.stack(devEnv()).Plan(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Plan.Empty())
	assert.Zero(t, h.cloud.MutatingCalls())
	assert.Zero(t, h.backend.Saves())
}

func TestStack_LockContentionFailsFast(t *testing.T) {
	t.Parallel()
	h := newHarness()
	env := devEnv()
	env.Backend.LockMode = config.LockModeFailFast
	require.NoError(t, h.locker.Lock(context.Background(), state.NewLockInfo(env.LockID(), "apply")))

	_, err := h.stack(env).Apply(context.Background())
	require.Error(t, err)
	assert.True(t, errdefs.IsLockContention(err))
	assert.Zero(t, h.cloud.MutatingCalls())
	assert.True(t, h.locker.Held(env.LockID()), "a foreign lock is never released")
}

func TestStack_BlockingLockGivesUp(t *testing.T) {
	t.Parallel()
	h := newHarness()
	env := devEnv()
	require.NoError(t, h.locker.Lock(context.Background(), state.NewLockInfo(env.LockID(), "apply")))

	_, err := h.stack(env).Plan(context.Background())
	require.Error(t, err)
	assert.True(t, errdefs.IsLockContention(err))
}

func TestStack_DeclinedConfirmationChangesNothing(t *testing.T) {
	t.Parallel()
	h := newHarness()
	env := devEnv()
	var asked *engine.Plan

	_, err := h.stack(env, WithConfirm(func(p *engine.Plan) (bool, error) {
		asked = p
		return false, nil
	})).Apply(context.Background())

	assert.ErrorIs(t, err, ErrAborted)
	require.NotNil(t, asked)
	assert.Zero(t, h.cloud.MutatingCalls())
	assert.False(t, h.locker.Held(env.LockID()))
}

func TestStack_DestroyRemovesEverything(t *testing.T) {
	t.Parallel()
	h := newHarness()
	env := devEnv()
	ctx := context.Background()

	_, err := h.stack(env).Apply(ctx)
	require.NoError(t, err)

	res, err := h.stack(env).Destroy(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Report.Count(engine.StatusFailed))
	assert.Empty(t, res.Outputs)
	assert.Empty(t, h.ca.Live())
	assert.Empty(t, h.zone.Records())
	for _, typ := range []string{provider.TypeVPC, provider.TypeService, provider.TypeLoadBalancer} {
		assert.Zero(t, h.cloud.Live(typ), typ)
	}
}

func TestStack_DestroyProdFailsBeforeProviderCalls(t *testing.T) {
	t.Parallel()
	h := newHarness()
	env := devEnv()
	env.Tier = config.TierProd
	ctx := context.Background()

	_, err := h.stack(env).Apply(ctx)
	require.NoError(t, err)
	before := len(h.cloud.Calls())

	_, err = h.stack(env).Destroy(ctx)
	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err))
	assert.Len(t, h.cloud.Calls(), before)
	assert.False(t, h.locker.Held(env.LockID()))
}

func TestStack_RefreshPlansDriftedAttribute(t *testing.T) {
	t.Parallel()
	h := newHarness()
	env := devEnv()
	ctx := context.Background()
	_, err := h.stack(env).Apply(ctx)
	require.NoError(t, err)

	st, err := h.backend.Load(ctx)
	require.NoError(t, err)
	vpcAddr := graph.Addr(network.Module, "vpc").String()
	vpc, ok := st.Get(vpcAddr)
	require.True(t, ok)
	h.cloud.Drift(vpc.ID, graph.Attrs{"EnableDnsSupport": false})

	res, err := h.stack(env).Plan(ctx)
	require.NoError(t, err)
	assert.True(t, res.Plan.Empty(), "drift is only seen with refresh")

	res, err = h.stack(env, WithRefresh(true)).Plan(ctx)
	require.NoError(t, err)
	c, ok := res.Plan.Change(vpcAddr)
	require.True(t, ok)
	assert.Equal(t, engine.ActionUpdate, c.Action)
	assert.Equal(t, []string{"EnableDnsSupport"}, c.Attrs)
	sum := res.Plan.Summary()
	assert.Equal(t, 1, sum.Update)
	assert.Zero(t, sum.Create+sum.Replace+sum.Delete)

	_, err = h.stack(env, WithRefresh(true)).Apply(ctx)
	require.NoError(t, err)
	res, err = h.stack(env, WithRefresh(true)).Plan(ctx)
	require.NoError(t, err)
	assert.True(t, res.Plan.Empty())
}

type unreachableZones struct{ calls int }

func (z *unreachableZones) LookupZone(context.Context, string) (string, error) {
	z.calls++
	return "", certificate.ErrZoneNotFound
}

func TestStack_DestroyUsesZoneFromState(t *testing.T) {
	t.Parallel()
	h := newHarness()
	env := devEnv()
	ctx := context.Background()
	_, err := h.stack(env).Apply(ctx)
	require.NoError(t, err)

	zones := &unreachableZones{}
	s := h.stack(env)
	s.deps.Zones = zones

	res, err := s.Destroy(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Report.Count(engine.StatusFailed))
	assert.Zero(t, zones.calls)
	assert.Empty(t, h.ca.Live())
	assert.Zero(t, h.cloud.Live(provider.TypeVPC))
}

func TestStack_DestroyWithoutAnyZone(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := h.stack(devEnv())
	s.deps.Zones = &unreachableZones{}

	res, err := s.Destroy(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Plan.Empty())
}

func TestStack_OpenReportsParallelTasks(t *testing.T) {
	t.Parallel()
	h := newHarness()
	obs := &recordingObserver{}

	_, err := h.stack(devEnv(), WithObserver(obs)).Plan(context.Background())
	require.NoError(t, err)
	assert.True(t, obs.contains("[state lock] Starting"))
	assert.True(t, obs.contains("[dns zone] Completed"))
}

type recordingObserver struct {
	mu    sync.Mutex
	lines []string
}

func (o *recordingObserver) Printf(format string, v ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lines = append(o.lines, fmt.Sprintf(format, v...))
}

func (o *recordingObserver) Event(e engine.Event) {
	o.Printf("%s %s", e.Type, e.Message)
}

func (o *recordingObserver) WithFields(map[string]string) engine.Observer {
	return o
}

func (o *recordingObserver) contains(substr string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, l := range o.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func TestStack_ZoneLookupFailure(t *testing.T) {
	t.Parallel()
	h := newHarness()
	env := devEnv()
	env.Domain = "example.org"

	_, err := h.stack(env).Apply(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, certificate.ErrZoneNotFound))
	assert.False(t, h.locker.Held(env.LockID()))
}

func TestStack_ConfiguredZoneSkipsLookup(t *testing.T) {
	t.Parallel()
	h := newHarness()
	env := devEnv()
	env.DNS.ZoneID = testZoneID
	s := h.stack(env)
	s.deps.Zones = nil

	res, err := s.Plan(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Plan.Empty())
}

func TestStack_Unlock(t *testing.T) {
	t.Parallel()
	h := newHarness()
	env := devEnv()
	require.NoError(t, h.locker.Lock(context.Background(), state.NewLockInfo(env.LockID(), "apply")))

	require.NoError(t, h.stack(env).Unlock(context.Background(), ""))
	assert.False(t, h.locker.Held(env.LockID()))
}
