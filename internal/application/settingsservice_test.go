package application_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ericfisherdev/modeldesk/internal/application"
	"github.com/ericfisherdev/modeldesk/internal/domain/model"
)

func newSettingsService() (*application.SettingsService, *mockRemoteStore, *mockSettingsStore) {
	remote := newMockRemoteStore()
	local := newMockSettingsStore()
	return application.NewSettingsService(remote, local, discardLogger()), remote, local
}

func TestSettingsService_ReadPrefersRemote(t *testing.T) {
	svc, remote, local := newSettingsService()
	ctx := context.Background()

	remote.values[model.SettingHost] = "remote.example"
	local.values[model.SettingHost] = "local.example"

	got := svc.Lookup(ctx, model.SettingHost)
	assert.Equal(t, "remote.example", got.Value)
	assert.Equal(t, model.SettingSourceRemote, got.Source)
}

func TestSettingsService_ReadFallsBackToLocal(t *testing.T) {
	svc, remote, local := newSettingsService()
	ctx := context.Background()

	local.values[model.SettingHost] = "local.example"
	assert.Equal(t, "local.example", svc.String(ctx, model.SettingHost))

	remote.failGet = true
	local.values[model.SettingBasePath] = "/proxy"
	assert.Equal(t, "/proxy", svc.String(ctx, model.SettingBasePath), "remote read errors fall through to local")
}

func TestSettingsService_Defaults(t *testing.T) {
	svc, _, _ := newSettingsService()
	ctx := context.Background()

	assert.Equal(t, "https", svc.String(ctx, model.SettingScheme))
	assert.Equal(t, "alloy", svc.String(ctx, model.SettingDefaultVoice))
	assert.Equal(t, "", svc.String(ctx, model.SettingHost))
	assert.Equal(t, 0, svc.Int(ctx, model.SettingPort))
	assert.Equal(t, model.SettingSourceDefault, svc.Lookup(ctx, model.SettingScheme).Source)
}

func TestSettingsService_RemoteZeroIntIsUnset(t *testing.T) {
	svc, remote, local := newSettingsService()
	ctx := context.Background()

	remote.values[model.SettingPort] = "0"
	local.values[model.SettingPort] = "8443"
	assert.Equal(t, 8443, svc.Int(ctx, model.SettingPort))

	remote.values[model.SettingPort] = "not-a-number"
	assert.Equal(t, 8443, svc.Int(ctx, model.SettingPort))
}

func TestSettingsService_WriteMirrorsBothBackends(t *testing.T) {
	svc, remote, local := newSettingsService()
	ctx := context.Background()

	require.NoError(t, svc.SetString(ctx, model.SettingHost, "llm.example"))
	require.NoError(t, svc.SetInt(ctx, model.SettingPort, 8080))

	for _, store := range []*mockSettingsStore{remote.mockSettingsStore, local} {
		host, ok := store.raw(model.SettingHost)
		assert.True(t, ok)
		assert.Equal(t, "llm.example", host)

		port, ok := store.raw(model.SettingPort)
		assert.True(t, ok)
		assert.Equal(t, "8080", port)
	}
}

func TestSettingsService_RemoteWriteFailureStillWritesLocal(t *testing.T) {
	svc, remote, local := newSettingsService()
	remote.failSet = true
	ctx := context.Background()

	require.NoError(t, svc.SetString(ctx, model.SettingDefaultVoice, "verse"))

	v, ok := local.raw(model.SettingDefaultVoice)
	assert.True(t, ok)
	assert.Equal(t, "verse", v)
	assert.Equal(t, "verse", svc.String(ctx, model.SettingDefaultVoice))
}

func TestSettingsService_LocalWriteFailureIsReturned(t *testing.T) {
	svc, _, local := newSettingsService()
	local.failSet = true

	err := svc.SetString(context.Background(), model.SettingHost, "llm.example")
	require.Error(t, err)
	assert.ErrorIs(t, err, errBackend)
}

func TestSettingsService_SentinelsRemoveFromBoth(t *testing.T) {
	svc, remote, local := newSettingsService()
	ctx := context.Background()

	require.NoError(t, svc.SetString(ctx, model.SettingScheme, "http"))
	require.NoError(t, svc.SetInt(ctx, model.SettingPort, 8080))

	require.NoError(t, svc.SetString(ctx, model.SettingScheme, ""))
	require.NoError(t, svc.SetInt(ctx, model.SettingPort, -1))

	for _, store := range []*mockSettingsStore{remote.mockSettingsStore, local} {
		_, ok := store.raw(model.SettingScheme)
		assert.False(t, ok)
		_, ok = store.raw(model.SettingPort)
		assert.False(t, ok)
	}
	assert.Equal(t, "https", svc.String(ctx, model.SettingScheme))
	assert.Equal(t, 0, svc.Int(ctx, model.SettingPort))
}

func TestSettingsService_SetParsesByKind(t *testing.T) {
	svc, _, _ := newSettingsService()
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, model.SettingPort, "9000"))
	assert.Equal(t, 9000, svc.Int(ctx, model.SettingPort))

	require.NoError(t, svc.Set(ctx, model.SettingPort, ""))
	assert.Equal(t, 0, svc.Int(ctx, model.SettingPort))

	err := svc.Set(ctx, model.SettingPort, "ninety")
	assert.ErrorIs(t, err, model.ErrInvalidSetting)

	err = svc.Set(ctx, model.SettingKey("theme"), "dark")
	assert.ErrorIs(t, err, model.ErrUnknownSetting)
}

func TestSettingsService_All(t *testing.T) {
	svc, _, local := newSettingsService()
	local.values[model.SettingHost] = "llm.example"

	all := svc.All(context.Background())
	require.Len(t, all, len(model.SettingSpecs()))

	byKey := make(map[model.SettingKey]model.SettingValue, len(all))
	for _, v := range all {
		byKey[v.Key] = v
	}
	assert.Equal(t, model.SettingSourceLocal, byKey[model.SettingHost].Source)
	assert.Equal(t, "https", byKey[model.SettingScheme].Value)
}

func TestSettingsService_WithoutRemote(t *testing.T) {
	local := newMockSettingsStore()
	svc := application.NewSettingsService(nil, local, discardLogger())
	ctx := context.Background()

	assert.False(t, svc.HasRemote())
	require.NoError(t, svc.SetString(ctx, model.SettingHost, "llm.example"))
	assert.Equal(t, "llm.example", svc.String(ctx, model.SettingHost))
	require.NoError(t, svc.Synchronize(ctx))

	watchCtx, cancel := context.WithCancel(ctx)
	cancel()
	assert.NoError(t, svc.Watch(watchCtx))
}

func TestSettingsService_Synchronize(t *testing.T) {
	svc, remote, _ := newSettingsService()
	ctx := context.Background()

	require.True(t, svc.LastSync().IsZero())
	require.NoError(t, svc.Synchronize(ctx))
	assert.False(t, svc.LastSync().IsZero())
	assert.Equal(t, int32(1), remote.syncs.Load())

	remote.syncErr = errBackend
	assert.ErrorIs(t, svc.Synchronize(ctx), errBackend)
}

func receiveChange(t *testing.T, ch <-chan model.SettingsChange) model.SettingsChange {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "subscription closed unexpectedly")
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for settings change")
		return model.SettingsChange{}
	}
}

func TestSettingsService_WatchRebroadcastsExternalChanges(t *testing.T) {
	svc, remote, _ := newSettingsService()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := svc.Subscribe(ctx)
	second := svc.Subscribe(ctx)

	done := make(chan error, 1)
	go func() { done <- svc.Watch(ctx) }()

	remote.push(model.RemoteChange{Reason: model.ChangeReasonQuotaViolation})
	remote.push(model.RemoteChange{Reason: model.ChangeReasonServer, Keys: []model.SettingKey{model.SettingHost}})

	for _, ch := range []<-chan model.SettingsChange{first, second} {
		c := receiveChange(t, ch)
		assert.Equal(t, model.ChangeReasonServer, c.Reason, "quota violations are not re-announced")
		assert.Equal(t, []model.SettingKey{model.SettingHost}, c.Keys)
		assert.False(t, c.At.IsZero())
	}
	assert.False(t, svc.LastSync().IsZero())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestSettingsService_WatchRetriesUnreachableRemote(t *testing.T) {
	svc, remote, _ := newSettingsService()
	remote.subFailures.Store(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := svc.Subscribe(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Watch(ctx) }()

	require.Eventually(t, func() bool { return remote.subCalls.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("Watch returned while the remote was recovering: %v", err)
	default:
	}

	remote.push(model.RemoteChange{Reason: model.ChangeReasonInitialSync})
	assert.Equal(t, model.ChangeReasonInitialSync, receiveChange(t, ch).Reason)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestSettingsService_WatchStopsWhileRemoteIsDown(t *testing.T) {
	svc, remote, _ := newSettingsService()
	remote.subFailures.Store(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.Watch(ctx) }()

	require.Eventually(t, func() bool { return remote.subCalls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestSettingsService_SubscribeClosesOnCancel(t *testing.T) {
	svc, _, _ := newSettingsService()
	ctx, cancel := context.WithCancel(context.Background())

	ch := svc.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestProperty_SettingsRoundTrip(t *testing.T) {
	specs := model.SettingSpecs()

	rapid.Check(t, func(t *rapid.T) {
		svc, remote, _ := newSettingsService()
		remote.failSet = rapid.Bool().Draw(t, "remoteFails")
		ctx := context.Background()

		spec := rapid.SampledFrom(specs).Draw(t, "spec")

		if spec.Kind == model.SettingKindInt {
			n := rapid.IntRange(1, 65535).Draw(t, "n")
			if err := svc.SetInt(ctx, spec.Key, n); err != nil {
				t.Fatalf("SetInt: %v", err)
			}
			if got := svc.Int(ctx, spec.Key); got != n {
				t.Fatalf("Int(%s) = %d, want %d", spec.Key, got, n)
			}

			sentinel := rapid.IntRange(-100, 0).Draw(t, "sentinel")
			if err := svc.SetInt(ctx, spec.Key, sentinel); err != nil {
				t.Fatalf("SetInt sentinel: %v", err)
			}
			if got := svc.String(ctx, spec.Key); got != defaultFor(spec) {
				t.Fatalf("after sentinel %s = %q, want default %q", spec.Key, got, defaultFor(spec))
			}
			return
		}

		v := rapid.StringMatching(`[a-z0-9./:-]{1,40}`).Draw(t, "v")
		if err := svc.SetString(ctx, spec.Key, v); err != nil {
			t.Fatalf("SetString: %v", err)
		}
		if got := svc.String(ctx, spec.Key); got != v {
			t.Fatalf("String(%s) = %q, want %q", spec.Key, got, v)
		}

		if err := svc.SetString(ctx, spec.Key, ""); err != nil {
			t.Fatalf("SetString sentinel: %v", err)
		}
		if got := svc.String(ctx, spec.Key); got != defaultFor(spec) {
			t.Fatalf("after sentinel %s = %q, want default %q", spec.Key, got, defaultFor(spec))
		}
	})
}

func defaultFor(spec model.SettingSpec) string {
	if spec.Kind == model.SettingKindInt {
		if spec.DefaultInt > 0 {
			return strconv.Itoa(spec.DefaultInt)
		}
		return ""
	}
	return spec.Default
}
