package record

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/Norgate-AV/ccbuild/internal/fingerprint"
)

func sampleTarget() *Target {
	return &Target{
		Name: "app",
		Type: Executable,
		Toolchain: ToolchainIdentity{
			ID:          "gcc",
			Name:        "gcc",
			Assembler:   "as",
			CCompiler:   "gcc",
			CppCompiler: "g++",
			Archiver:    "ar",
			Linker:      "ld",
		},
		Sources: fingerprint.NewSet(
			fingerprint.CreateNew("/project/src/main.cpp", 0xdeadbeefcafef00d),
			fingerprint.CreateNew("/project/src dir/with space.cpp", 42),
		),
		Headers:             fingerprint.NewSet(fingerprint.CreateNew("/project/include/app.h", 1)),
		Pchs:                fingerprint.Set{},
		LibDeps:             fingerprint.NewSet(fingerprint.CreateNew("/project/_build/gcc/util/libutil.a", 7)),
		ExternalLibDeps:     []string{"-lpthread", "-lm"},
		IncludeDirs:         []string{"/project/include", "/opt/my libs/include"},
		LibDirs:             []string{"/usr/local/lib"},
		PreprocessorFlags:   []string{"-DNDEBUG"},
		CommonCompileFlags:  []string{"-O2", "-Wall"},
		CppCompileFlags:     []string{"-std=c++17"},
		LinkFlags:           []string{"-flto"},
		CompileDependencies: fingerprint.NewSet(fingerprint.CreateNew("/project/config.h.in", 3)),
		LinkDependencies:    fingerprint.Set{},
		PchCompiled:         false,
		TargetLinked:        true,
	}
}

func TestStore_TargetRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), "app")
	want := sampleTarget()

	require.NoError(t, store.StoreTarget(fingerprint.ModeHash, want))

	got, err := store.LoadTarget(fingerprint.ModeHash)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_GeneratorRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), "gen")
	want := &Generator{
		Name: "gen",
		IDs: map[string]GeneratorID{
			"id1": {
				Inputs:   fingerprint.NewSet(fingerprint.CreateNew("/p/gen.in", 11)),
				Outputs:  []string{"/p/_build/gen/out.c"},
				Commands: []string{"gen /p/gen.in > /p/_build/gen/out.c", "touch done"},
				Blob:     []byte(`{"version":1}`),
			},
			"id2": {
				Inputs:   fingerprint.Set{},
				Outputs:  []string{},
				Commands: []string{},
				Blob:     nil,
			},
		},
	}

	require.NoError(t, store.StoreGenerator(fingerprint.ModeTimestamp, want))

	got, err := store.LoadGenerator(fingerprint.ModeTimestamp)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_Overwrite(t *testing.T) {
	store := NewStore(t.TempDir(), "app")

	first := sampleTarget()
	require.NoError(t, store.StoreTarget(fingerprint.ModeHash, first))

	second := sampleTarget()
	second.LinkFlags = []string{"-static"}
	second.TargetLinked = false
	require.NoError(t, store.StoreTarget(fingerprint.ModeHash, second))

	got, err := store.LoadTarget(fingerprint.ModeHash)
	require.NoError(t, err)
	assert.Equal(t, []string{"-static"}, got.LinkFlags)
	assert.False(t, got.TargetLinked)
}

func TestStore_NotFound(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name  string
		setup func(t *testing.T, path string)
		mode  fingerprint.Mode
	}{
		{
			name:  "missing file",
			setup: func(t *testing.T, path string) {},
		},
		{
			name: "garbage file",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("definitely not a database"), 0o600))
			},
		},
		{
			name: "empty file",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, nil, 0o600))
			},
		},
		{
			name: "schema version mismatch",
			setup: func(t *testing.T, path string) {
				writeRaw(t, path, "99", "hash", []byte(`{"name":"app"}`))
			},
		},
		{
			name: "fingerprint mode mismatch",
			setup: func(t *testing.T, path string) {
				require.NoError(t, (&Store{path: path}).StoreTarget(fingerprint.ModeTimestamp, sampleTarget()))
			},
			mode: fingerprint.ModeHash,
		},
		{
			name: "undecodable record",
			setup: func(t *testing.T, path string) {
				writeRaw(t, path, "1", "hash", []byte(`{"name":`))
			},
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(filepath.Join(dir, "case"+string(rune('a'+i))), "app")
			require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
			tt.setup(t, store.Path())

			_, err := store.LoadTarget(tt.mode)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_RecoversFromCorruptFile(t *testing.T) {
	store := NewStore(t.TempDir(), "app")
	require.NoError(t, os.WriteFile(store.Path(), []byte("corrupt"), 0o600))

	require.NoError(t, store.StoreTarget(fingerprint.ModeHash, sampleTarget()))

	got, err := store.LoadTarget(fingerprint.ModeHash)
	require.NoError(t, err)
	assert.Equal(t, "app", got.Name)
}

func TestStore_LoadDoesNotModifyFile(t *testing.T) {
	store := NewStore(t.TempDir(), "app")
	require.NoError(t, store.StoreTarget(fingerprint.ModeHash, sampleTarget()))

	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := store.LoadTarget(fingerprint.ModeHash)
		require.NoError(t, err)
	}

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStore_Remove(t *testing.T) {
	store := NewStore(t.TempDir(), "app")
	require.NoError(t, store.Remove(), "removing a missing record is not an error")

	require.NoError(t, store.StoreTarget(fingerprint.ModeHash, sampleTarget()))
	require.NoError(t, store.Remove())

	_, err := store.LoadTarget(fingerprint.ModeHash)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseTargetType(t *testing.T) {
	tests := []struct {
		in      string
		want    TargetType
		wantErr bool
	}{
		{"executable", Executable, false},
		{"EXE", Executable, false},
		{"static", StaticLibrary, false},
		{"shared", DynamicLibrary, false},
		{"dynamic_library", DynamicLibrary, false},
		{"generator", GeneratorType, false},
		{"plugin", Undefined, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTargetType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, Executable.IsBuildable())
	assert.False(t, GeneratorType.IsBuildable())
}

func writeRaw(t *testing.T, path, version, mode string, data []byte) {
	t.Helper()

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	defer db.Close()

	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return err
		}

		if err := meta.Put([]byte(versionKey), []byte(version)); err != nil {
			return err
		}

		if err := meta.Put([]byte(modeKey), []byte(mode)); err != nil {
			return err
		}

		b, err := tx.CreateBucketIfNotExists([]byte(recordBucket))
		if err != nil {
			return err
		}

		return b.Put([]byte(targetKey), data)
	})
	require.NoError(t, err)
}
