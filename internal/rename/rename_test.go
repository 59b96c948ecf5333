package rename

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, fs afero.Fs, files ...string) {
	t.Helper()
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fs, f, []byte(f), 0644))
	}
}

func walk(t *testing.T, fs afero.Fs, root string) []string {
	t.Helper()
	var files []string
	err := afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name     string
		pred     Predicate
		file     string
		wantStem string
		wantOK   bool
	}{
		{"extension match", Extension(".js"), "index.js", "index", true},
		{"extension compound", Extension(".js"), "index.min.js", "index.min", true},
		{"extension miss", Extension(".js"), "index.d.ts", "", false},
		{"extension map miss", Extension(".js"), "index.js.map", "", false},
		{"suffix match", Suffix(".es2020.cjs.torename"), "index.es2020.cjs.torename", "index", true},
		{"suffix miss", Suffix(".torename"), "index.js", "", false},
		{"suffix whole name", Suffix(".torename"), ".torename", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stem, ok := tt.pred(tt.file)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStem, stem)
		})
	}
}

func TestMatchingRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs,
		"/tmp/out/index.js",
		"/tmp/out/helper.js",
		"/tmp/out/index.d.ts",
		"/tmp/out/sub/deep.js",
	)

	first, err := Matching(fs, "/tmp/out", Extension(".js"), ".es2019.cjs.torename")
	require.NoError(t, err)
	assert.Len(t, first, 3)
	assert.Equal(t, "/tmp/out/sub/deep.es2019.cjs.torename", first[filepath.FromSlash("/tmp/out/sub/deep.js")])

	second, err := Matching(fs, "/tmp/out", Suffix(".torename"), "")
	require.NoError(t, err)
	assert.Len(t, second, 3)

	assert.Equal(t, []string{
		"/tmp/out/helper.es2019.cjs",
		"/tmp/out/index.d.ts",
		"/tmp/out/index.es2019.cjs",
		"/tmp/out/sub/deep.es2019.cjs",
	}, walk(t, fs, "/tmp/out"))

	assert.Equal(t, []string{
		"/tmp/out/helper.es2019.cjs",
		"/tmp/out/index.es2019.cjs",
		"/tmp/out/sub/deep.es2019.cjs",
	}, second.Renamed())
}

func TestMatchingDoesNotRevisit(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, "/out/a.js", "/out/b.js")

	// The new names still match the predicate; each file must be renamed once.
	mapping, err := Matching(fs, "/out", Extension(".js"), ".x.js")
	require.NoError(t, err)
	assert.Len(t, mapping, 2)
	assert.Equal(t, []string{"/out/a.x.js", "/out/b.x.js"}, walk(t, fs, "/out"))
}

func TestMatchingMissingRoot(t *testing.T) {
	_, err := Matching(afero.NewMemMapFs(), "/nope", Extension(".js"), "")
	assert.Error(t, err)
}
