package options

import (
	"encoding/json"
	"testing"
	"time"

	"imagegen-mcp/internal/errors"
	"imagegen-mcp/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestRequiredString(t *testing.T) {
	_, err := RequiredString(map[string]any{}, ArgPrompt)
	require.Error(t, err)
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.True(t, appErr.IsCallerError())

	_, err = RequiredString(map[string]any{ArgPrompt: "   "}, ArgPrompt)
	assert.Error(t, err)

	_, err = RequiredString(map[string]any{ArgPrompt: 42.0}, ArgPrompt)
	assert.Error(t, err)

	v, err := RequiredString(map[string]any{ArgPrompt: "a cat"}, ArgPrompt)
	require.NoError(t, err)
	assert.Equal(t, "a cat", v)
}

func TestOptionalStringStrict(t *testing.T) {
	v, err := OptionalStringStrict(map[string]any{}, ArgMask)
	require.NoError(t, err)
	assert.Empty(t, v)

	v, err = OptionalStringStrict(map[string]any{ArgMask: nil}, ArgMask)
	require.NoError(t, err)
	assert.Empty(t, v)

	v, err = OptionalStringStrict(map[string]any{ArgMask: " mask.png "}, ArgMask)
	require.NoError(t, err)
	assert.Equal(t, "mask.png", v)

	_, err = OptionalStringStrict(map[string]any{ArgMask: 3.0}, ArgMask)
	require.Error(t, err)
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.True(t, appErr.IsCallerError())
}

func TestRequiredStringSlice(t *testing.T) {
	paths, err := RequiredStringSlice(map[string]any{ArgImagePaths: []any{"a.png", "b.png"}}, ArgImagePaths)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png"}, paths)

	_, err = RequiredStringSlice(map[string]any{ArgImagePaths: []any{}}, ArgImagePaths)
	assert.Error(t, err)

	_, err = RequiredStringSlice(map[string]any{ArgImagePaths: []any{"a.png", 3.0}}, ArgImagePaths)
	assert.Error(t, err)

	_, err = RequiredStringSlice(map[string]any{ArgImagePaths: "a.png"}, ArgImagePaths)
	assert.Error(t, err)
}

func TestParseOptions_Defaults(t *testing.T) {
	opts, err := ParseOptions(map[string]any{}, "generated-image", fixedNow)
	require.NoError(t, err)

	assert.Nil(t, opts.Size)
	assert.Equal(t, 1, opts.Count)
	assert.Nil(t, opts.OutputCompression)
	assert.Equal(t, "generated-image-20260314-092653", opts.FileNameBase)
	assert.Equal(t, "png", opts.Extension())
}

func TestParseOptions_AllFields(t *testing.T) {
	opts, err := ParseOptions(map[string]any{
		ArgSize:              "1920x1080",
		ArgQuality:           "high",
		ArgBackground:        "transparent",
		ArgModeration:        "low",
		ArgOutputFormat:      "WEBP",
		ArgOutputCompression: 75.0,
		ArgCount:             json.Number("4"),
		ArgSaveDirPath:       "out",
		ArgFileName:          "nested/dir/sunset.webp",
		"unknown":            true,
	}, "generated-image", fixedNow)
	require.NoError(t, err)

	require.NotNil(t, opts.Size)
	assert.Equal(t, types.SizeSpec{Width: 1536, Height: 1024}, *opts.Size)
	assert.Equal(t, "high", opts.Quality)
	assert.Equal(t, "transparent", opts.Background)
	assert.Equal(t, "low", opts.Moderation)
	assert.Equal(t, "webp", opts.OutputFormat)
	require.NotNil(t, opts.OutputCompression)
	assert.Equal(t, 75, *opts.OutputCompression)
	assert.Equal(t, 4, opts.Count)
	assert.Equal(t, "out", opts.SaveDirPath)
	assert.Equal(t, "sunset", opts.FileNameBase)
}

func TestParseOptions_Count(t *testing.T) {
	for _, bad := range []any{0.0, 11.0, 2.5, "many", true} {
		_, err := ParseOptions(map[string]any{ArgCount: bad}, "x", fixedNow)
		assert.Error(t, err, "count=%v", bad)
	}

	opts, err := ParseOptions(map[string]any{ArgCount: "10"}, "x", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 10, opts.Count)
}

func TestParseOptions_NonIntegralCompressionIsDropped(t *testing.T) {
	opts, err := ParseOptions(map[string]any{ArgOutputCompression: 33.3}, "x", fixedNow)
	require.NoError(t, err)
	assert.Nil(t, opts.OutputCompression)
}

func TestParseOptions_FileNameKeepsUnrelatedExtension(t *testing.T) {
	opts, err := ParseOptions(map[string]any{ArgFileName: "report.v2"}, "x", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "report.v2", opts.FileNameBase)

	opts, err = ParseOptions(map[string]any{ArgFileName: "photo.JPG"}, "x", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "photo", opts.FileNameBase)
}
