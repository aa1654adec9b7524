package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/struk/internal/ble"
	"github.com/chaz8081/struk/internal/store"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "printer.yaml")
	s := store.NewFileStore(path)

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "empty store has no printer")

	want := ble.SavedPrinter{Name: "RPP02N", Address: "86:67:7A:12:34:56"}
	require.NoError(t, s.Save(ctx, want))

	got, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "printer_name: RPP02N")
	assert.Contains(t, string(data), "printer_address: 86:67:7A:12:34:56")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := store.NewFileStore(filepath.Join(t.TempDir(), "printer.yaml"))

	require.NoError(t, s.Clear(ctx), "clearing an empty store")
	require.NoError(t, s.Save(ctx, ble.SavedPrinter{Name: "MTP-II", Address: "AA"}))
	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_Save(t *testing.T) {
	tests := []struct {
		name    string
		printer ble.SavedPrinter
		wantErr bool
	}{
		{name: "Complete", printer: ble.SavedPrinter{Name: "RPP02N", Address: "AA"}},
		{name: "MissingName", printer: ble.SavedPrinter{Address: "AA"}, wantErr: true},
		{name: "MissingAddress", printer: ble.SavedPrinter{Name: "RPP02N"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewFileStore(filepath.Join(t.TempDir(), "printer.yaml"))
			err := s.Save(context.Background(), tt.printer)
			if tt.wantErr {
				assert.Error(t, err)
				_, statErr := os.Stat(s.Path())
				assert.True(t, os.IsNotExist(statErr), "nothing written for an invalid record")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFileStore_Load(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    ble.SavedPrinter
		wantOK  bool
		wantErr bool
	}{
		{
			name:    "BothKeys",
			content: "printer_name: RPP02N\nprinter_address: AA:BB\n",
			want:    ble.SavedPrinter{Name: "RPP02N", Address: "AA:BB"},
			wantOK:  true,
		},
		{name: "OnlyAddress", content: "printer_address: AA:BB\n"},
		{name: "OnlyName", content: "printer_name: RPP02N\n"},
		{name: "Empty", content: ""},
		{name: "Corrupt", content: "printer_name: [unterminated\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "printer.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			got, ok, err := store.NewFileStore(path).Load(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
