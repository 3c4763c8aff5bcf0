package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attrengine/core/cache"
	"github.com/attrengine/core/contextbuilder"
	"github.com/attrengine/core/domain/attribute"
	"github.com/attrengine/core/domain/dependency"
	"github.com/attrengine/core/internal/obs/errors"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{
		Cache: cache.Config{CleanupInterval: time.Hour},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func ctxFor(targetID string) *contextbuilder.Context {
	return &contextbuilder.Context{TargetID: targetID, TargetKind: attribute.TargetUser}
}

func TestEngine_Register_RejectsDuplicate(t *testing.T) {
	e := newTestEngine(t)
	def := attribute.Definition{ID: "age", TargetKind: attribute.TargetUser, Compute: constCompute(1)}

	require.NoError(t, e.Register(def))
	err := e.Register(def)
	assert.True(t, errors.Is(err, errors.KindValidation))
}

func TestEngine_Register_WiresDeclaredDependencies(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Register(attribute.Definition{
		ID: "first_name", TargetKind: attribute.TargetUser, Compute: constCompute("Ada"),
	}))
	require.NoError(t, e.Register(attribute.Definition{
		ID: "full_name", TargetKind: attribute.TargetUser, Compute: constCompute("Ada Lovelace"),
		DeclaredDependencies: []dependency.Dependency{
			{ToAttributeID: "first_name", Kind: dependency.KindComputedAttribute},
		},
	}))

	assert.Contains(t, e.Tracker().Affected("first_name"), "full_name")
}

func TestEngine_Register_RollsBackOnCycle(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Register(attribute.Definition{
		ID: "a", TargetKind: attribute.TargetUser, Compute: constCompute(1),
		DeclaredDependencies: []dependency.Dependency{{ToAttributeID: "b", Kind: dependency.KindComputedAttribute}},
	}))
	err := e.Register(attribute.Definition{
		ID: "b", TargetKind: attribute.TargetUser, Compute: constCompute(2),
		DeclaredDependencies: []dependency.Dependency{{ToAttributeID: "a", Kind: dependency.KindComputedAttribute}},
	})
	assert.True(t, errors.Is(err, errors.KindCircularDependency))

	_, ok := e.Get("b")
	assert.False(t, ok, "b must not be registered after a rolled-back cycle")
}

func TestEngine_Unregister_ClearsDefinitionAndCache(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Register(attribute.Definition{
		ID: "age", TargetKind: attribute.TargetUser, Compute: constCompute(42),
		Caching: attribute.CachePolicy{Enabled: true, TTL: time.Minute},
	}))

	_, err := e.Compute(context.Background(), "age", ctxFor("u1"))
	require.NoError(t, err)

	require.NoError(t, e.Unregister("age"))
	_, ok := e.Get("age")
	assert.False(t, ok)
	assert.Equal(t, 0, e.Cache().Size())

	_, err = e.Compute(context.Background(), "age", ctxFor("u1"))
	assert.True(t, errors.Is(err, errors.KindAttributeNotFound))
}

func TestEngine_Compute_CachesSuccessfulResult(t *testing.T) {
	e := newTestEngine(t)
	var calls int64
	require.NoError(t, e.Register(attribute.Definition{
		ID: "age", TargetKind: attribute.TargetUser,
		Caching: attribute.CachePolicy{Enabled: true, TTL: time.Minute},
		Compute: func(ctx context.Context, cc interface{}) (attribute.Value, error) {
			atomic.AddInt64(&calls, 1)
			return 42, nil
		},
	}))

	v1, err := e.Compute(context.Background(), "age", ctxFor("u1"))
	require.NoError(t, err)
	assert.Equal(t, 42, v1)

	v2, err := e.Compute(context.Background(), "age", ctxFor("u1"))
	require.NoError(t, err)
	assert.Equal(t, 42, v2)

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "second call should be served from cache")
}

func TestEngine_Compute_DoesNotCacheFailure(t *testing.T) {
	e := newTestEngine(t)
	var calls int64
	require.NoError(t, e.Register(attribute.Definition{
		ID: "age", TargetKind: attribute.TargetUser,
		Caching: attribute.CachePolicy{Enabled: true, TTL: time.Minute},
		Compute: func(ctx context.Context, cc interface{}) (attribute.Value, error) {
			atomic.AddInt64(&calls, 1)
			return nil, assertErr
		},
	}))

	_, err := e.Compute(context.Background(), "age", ctxFor("u1"))
	assert.Error(t, err)
	_, err = e.Compute(context.Background(), "age", ctxFor("u1"))
	assert.Error(t, err)

	assert.Equal(t, int64(2), atomic.LoadInt64(&calls), "a failed compute must not be cached")
}

func TestEngine_Compute_TimesOut(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Register(attribute.Definition{
		ID: "slow", TargetKind: attribute.TargetUser,
		Security: attribute.SecurityPolicy{Timeout: 10 * time.Millisecond},
		Compute: func(ctx context.Context, cc interface{}) (attribute.Value, error) {
			time.Sleep(200 * time.Millisecond)
			return 1, nil
		},
	}))

	_, err := e.Compute(context.Background(), "slow", ctxFor("u1"))
	assert.True(t, errors.Is(err, errors.KindComputationTimeout))
}

func TestEngine_Compute_SingleFlightCoalescesConcurrentCallers(t *testing.T) {
	e := newTestEngine(t)
	var calls int64
	release := make(chan struct{})
	require.NoError(t, e.Register(attribute.Definition{
		ID: "age", TargetKind: attribute.TargetUser,
		Caching: attribute.CachePolicy{Enabled: true, TTL: time.Minute},
		Compute: func(ctx context.Context, cc interface{}) (attribute.Value, error) {
			atomic.AddInt64(&calls, 1)
			<-release
			return 7, nil
		},
	}))

	const n = 10
	var wg sync.WaitGroup
	results := make([]attribute.Value, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Compute(context.Background(), "age", ctxFor("u1"))
		}(i)
	}

	// Give every goroutine a chance to register with singleflight before the
	// body is allowed to return.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 7, results[i])
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "expected single-flight to coalesce concurrent callers")
}

func TestEngine_ComputeMany_AggregatesPerItemErrors(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Register(attribute.Definition{ID: "ok", TargetKind: attribute.TargetUser, Compute: constCompute(1)}))
	require.NoError(t, e.Register(attribute.Definition{
		ID: "bad", TargetKind: attribute.TargetUser,
		Compute: func(ctx context.Context, cc interface{}) (attribute.Value, error) { return nil, assertErr },
	}))

	results, err := e.ComputeMany(context.Background(), []string{"ok", "bad", "missing"}, ctxFor("u1"))
	assert.Error(t, err)
	assert.Equal(t, 1, results["ok"])
	_, hasBad := results["bad"]
	assert.False(t, hasBad)
}

func TestEngine_ComputeAllForTarget_FiltersByTargetKind(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Register(attribute.Definition{ID: "age", TargetKind: attribute.TargetUser, Compute: constCompute(1)}))
	require.NoError(t, e.Register(attribute.Definition{ID: "height", TargetKind: attribute.TargetDocument,
		TargetCollection: "docs", Compute: constCompute(2)}))

	results, err := e.ComputeAllForTarget(context.Background(), ctxFor("u1"))
	require.NoError(t, err)
	assert.Contains(t, results, "age")
	assert.NotContains(t, results, "height")
}

func TestEngine_Invalidate_RemovesCachedValue(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Register(attribute.Definition{
		ID: "age", TargetKind: attribute.TargetUser, Compute: constCompute(1),
		Caching: attribute.CachePolicy{Enabled: true, TTL: time.Minute},
	}))
	_, err := e.Compute(context.Background(), "age", ctxFor("u1"))
	require.NoError(t, err)

	_, err = e.Invalidate(context.Background(), "age", "u1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return e.Cache().Size() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestEngine_Health_HealthyWhenIdle(t *testing.T) {
	e := newTestEngine(t)
	h := e.Health()
	assert.True(t, h.Initialised)
	assert.True(t, h.Healthy)
}

func TestEngine_Shutdown_RejectsFurtherCompute(t *testing.T) {
	e, err := New(Config{Cache: cache.Config{CleanupInterval: time.Hour}})
	require.NoError(t, err)
	require.NoError(t, e.Register(attribute.Definition{ID: "age", TargetKind: attribute.TargetUser, Compute: constCompute(1)}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	_, err = e.Compute(context.Background(), "age", ctxFor("u1"))
	assert.True(t, errors.Is(err, errors.KindConfigurationError))
}

func constCompute(v attribute.Value) attribute.ComputeFunc {
	return func(ctx context.Context, cc interface{}) (attribute.Value, error) { return v, nil }
}

var assertErr = errors.New(errors.KindComputationFailed, errors.CodeComputationFailed, "boom")
