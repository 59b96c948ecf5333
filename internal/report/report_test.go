package report

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0b"},
		{999, "999b"},
		{1000, "1000b"},
		{1001, "1kb"},
		{1234, "1.23kb"},
		{12345, "12.34kb"},
		{12399, "12.39kb"},
		{1500000, "1500kb"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, HumanSize(tt.n))
		})
	}
}

func TestWeigh(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := []byte(strings.Repeat("const value = 42;\n", 200))
	require.NoError(t, afero.WriteFile(fs, "/dist/a.js", data, 0o644))

	s, err := Weigh(fs, "/dist/a.js")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), s.Raw)
	assert.Greater(t, s.Gzip, int64(0))
	assert.Less(t, s.Gzip, s.Raw)
	assert.Greater(t, s.Brotli, int64(0))
	assert.Less(t, s.Brotli, s.Raw)

	_, err = Weigh(fs, "/dist/missing.js")
	assert.Error(t, err)
}

func TestSizesAdd(t *testing.T) {
	s := Sizes{Raw: 1, Gzip: 2, Brotli: 3}
	s.Add(Sizes{Raw: 10, Gzip: 20, Brotli: 30})
	assert.Equal(t, Sizes{Raw: 11, Gzip: 22, Brotli: 33}, s)
}

func TestBadge(t *testing.T) {
	assert.Equal(t,
		`<svg width="60" height="22" xmlns="http://www.w3.org/2000/svg"><text y="21" font-size="16px" font-family="monospace" fill="green">1.23kb</text></svg>`,
		Badge("1.23kb"),
	)

	fs := afero.NewMemMapFs()
	p, err := WriteBadge(fs, "/pkg", "index.es2017.min.js", 1234)
	require.NoError(t, err)
	assert.Equal(t, "/pkg/bits/index.es2017.min.js.svg", p)

	data, err := afero.ReadFile(fs, p)
	require.NoError(t, err)
	assert.Contains(t, string(data), ">1.23kb<")
}

func TestRowCells(t *testing.T) {
	flat := Row{Input: "src/index.ts", Module: "commonjs", Target: "es2019", Output: "dist/index.es2019.cjs", Files: 2, Sizes: Sizes{Raw: 500, Gzip: 300}}
	assert.Equal(t, []string{"src/index.ts", "commonjs", "es2019", "dist/index.es2019.cjs", "2 files flat", "500b", NotApplicable, NotApplicable}, flat.Cells())

	bundled := Row{Input: "src/index.ts", Module: "commonjs", Target: "es2017", Output: "dist/index.es2017.min.js", Files: 1, Bundled: true, Sizes: Sizes{Raw: 2048, Gzip: 900, Brotli: 800}}
	assert.Equal(t, []string{"src/index.ts", "commonjs", "es2017", "dist/index.es2017.min.js", "1 file bundle", "2.04kb", "900b", "800b"}, bundled.Cells())
	assert.Len(t, bundled.Cells(), len(Headers))
}
