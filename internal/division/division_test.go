package division

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/sipa/internal/model"
)

// stubBackend はテスト用のUserBackend。
type stubBackend struct {
	fromIPFn func(ctx context.Context, ip string) (Account, error)
}

func (s *stubBackend) FromIP(ctx context.Context, ip string) (Account, error) {
	if s.fromIPFn != nil {
		return s.fromIPFn(ctx, ip)
	}
	return nil, model.ErrUserNotFound
}

func (s *stubBackend) Authenticate(ctx context.Context, username, password string) (Account, error) {
	return nil, model.ErrUserNotFound
}

func (s *stubBackend) Get(ctx context.Context, uid string) (Account, error) {
	return nil, model.ErrUserNotFound
}

func (s *stubBackend) Accepts(acc Account) bool { return false }

func newTestRegistry(t *testing.T, fallback string) *Registry {
	t.Helper()
	r, err := NewRegistry(fallback,
		&Division{Name: "sample", DisplayName: "Beispiel", Backend: &stubBackend{}},
		&Division{Name: "wu", DisplayName: "Wundtstraße", Backend: &stubBackend{}},
		&Division{Name: "hss", DisplayName: "Hochschulstraße", Backend: &stubBackend{}},
	)
	require.NoError(t, err)
	return r
}

func TestRegistry_FromName(t *testing.T) {
	r := newTestRegistry(t, "sample")

	for _, name := range []string{"sample", "wu", "hss"} {
		d, ok := r.FromName(name)
		require.True(t, ok, "FromName(%q)", name)
		assert.Equal(t, name, d.Name)
	}

	d, ok := r.FromName("unknown")
	assert.False(t, ok)
	assert.Nil(t, d)

	_, ok = r.FromName("")
	assert.False(t, ok)
}

func TestRegistry_FromName_ReturnsRegisteredInstance(t *testing.T) {
	wu := &Division{Name: "wu", Backend: &stubBackend{}}
	r, err := NewRegistry("wu", wu)
	require.NoError(t, err)

	d, ok := r.FromName("wu")
	require.True(t, ok)
	assert.Same(t, wu, d)
}

func TestRegistry_All_KeepsOrder(t *testing.T) {
	r := newTestRegistry(t, "sample")

	var names []string
	for _, d := range r.All() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"sample", "wu", "hss"}, names)

	// 返されたスライスを変更してもレジストリには影響しない
	all := r.All()
	all[0] = nil
	assert.NotNil(t, r.All()[0])
}

func TestNewRegistry_Errors(t *testing.T) {
	t.Run("duplicate name", func(t *testing.T) {
		_, err := NewRegistry("wu",
			&Division{Name: "wu", Backend: &stubBackend{}},
			&Division{Name: "wu", Backend: &stubBackend{}},
		)
		assert.Error(t, err)
	})

	t.Run("missing backend", func(t *testing.T) {
		_, err := NewRegistry("wu", &Division{Name: "wu"})
		assert.Error(t, err)
	})

	t.Run("unknown fallback", func(t *testing.T) {
		_, err := NewRegistry("gerok", &Division{Name: "wu", Backend: &stubBackend{}})
		assert.Error(t, err)
	})
}

func TestRegistry_FromIP_AlwaysFallback(t *testing.T) {
	r := newTestRegistry(t, "wu")

	for _, ip := range []string{"141.30.228.39", "10.0.0.1", "", "not-an-ip"} {
		assert.Equal(t, "wu", r.FromIP(ip).Name, "FromIP(%q)", ip)
	}
}

func TestRegistry_UserFromIP(t *testing.T) {
	var gotIP string
	backend := &stubBackend{
		fromIPFn: func(ctx context.Context, ip string) (Account, error) {
			gotIP = ip
			return nil, model.ErrUserNotFound
		},
	}
	r, err := NewRegistry("sample", &Division{Name: "sample", Backend: backend})
	require.NoError(t, err)

	acc, err := r.UserFromIP(context.Background(), "10.0.0.5")
	assert.Nil(t, acc)
	assert.ErrorIs(t, err, model.ErrUserNotFound)
	assert.Equal(t, "10.0.0.5", gotIP)
}

func TestNewDefaultRegistry(t *testing.T) {
	r, err := NewDefaultRegistry("sample", nil, &fakeDirectory{}, &fakeUsageStore{})
	require.NoError(t, err)

	var names []string
	for _, d := range r.All() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{NameSample, NameWu, NameHSS, NameGerok}, names)
	assert.Equal(t, NameSample, r.FromIP("1.2.3.4").Name)
}
