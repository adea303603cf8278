package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/psat-core/internal/state"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode    string
		want    string
		wantErr bool
	}{
		{"", ModeSingle, false},
		{ModeSingle, ModeSingle, false},
		{ModeUnlimited, ModeUnlimited, false},
		{"several", "several", true},
	}
	for _, tt := range tests {
		s := Settings{TabCapacityMode: tt.mode}
		err := s.Validate()
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidMode, tt.mode)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.TabCapacityMode)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	fs, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	got, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Default(), got, "missing file loads defaults")

	want := Settings{TabCapacityMode: ModeUnlimited, UseRichInstrumentation: true}
	require.NoError(t, fs.Save(ctx, want))
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file renamed away")

	got, err = fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFileStoreRejectsBadMode(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tab_capacity_mode: all\n"), 0o600))
	fs, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = fs.Load(context.Background())
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.ErrorIs(t, fs.Save(context.Background(), Settings{TabCapacityMode: "all"}), ErrInvalidMode)
}

func TestFileStoreDefaultPath(t *testing.T) {
	root := t.TempDir()
	t.Setenv(state.StateDirEnv, root)

	fs, err := NewFileStore("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "settings.yaml"), fs.Path())
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ms := NewMemoryStore(Default())
	ctx := context.Background()
	require.NoError(t, ms.Save(ctx, Settings{TabCapacityMode: ModeUnlimited}))
	got, err := ms.Load(ctx)
	require.NoError(t, err)
	assert.False(t, got.Single())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = ms.Load(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}
