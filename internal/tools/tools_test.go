package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"imagegen-mcp/internal/config"
	"imagegen-mcp/internal/openai"
	"imagegen-mcp/internal/service"
	"imagegen-mcp/internal/storage"
	"imagegen-mcp/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	calls int
}

func (p *fakeProvider) Model() string { return "gpt-image-1" }

func (p *fakeProvider) CreateImage(context.Context, types.ProviderRequest) ([]byte, error) {
	p.calls++
	return []byte(`{"data":[{"b64_json":"` + base64.StdEncoding.EncodeToString([]byte("img")) + `"}]}`), nil
}

func (p *fakeProvider) EditImage(context.Context, types.ProviderRequest, types.ImageFile, *types.ImageFile) ([]byte, error) {
	p.calls++
	return nil, nil
}

func (p *fakeProvider) EditImages(context.Context, types.ProviderRequest, []types.ImageFile) ([]byte, error) {
	p.calls++
	return nil, nil
}

func (p *fakeProvider) ValidateKey(context.Context) (openai.KeyStatus, error) {
	p.calls++
	return openai.KeyStatus{Valid: true, ModelCount: 1}, nil
}

func newTestRegistry(t *testing.T) (*Registry, *fakeProvider, string) {
	t.Helper()
	cwd := t.TempDir()
	fs := storage.NewOSFileSystem()
	provider := &fakeProvider{}
	svc := service.NewImageService(service.Deps{
		Provider: provider,
		FS:       fs,
		Resolver: storage.NewResolver(fs, "", config.DirPolicyFallback),
		Getwd:    func() (string, error) { return cwd, nil },
		Now:      time.Now,
	})
	return NewRegistry(svc), provider, cwd
}

func TestRegistry_ListsAllOperations(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	names := make([]string, 0)
	for _, tool := range r.Tools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"edit_image", "generate_image", "image_to_image", "multi_image_edit", "validate_api_key"}, names)
}

func TestDispatch(t *testing.T) {
	r, provider, cwd := newTestRegistry(t)

	res := r.Dispatch(context.Background(), "generate_image", map[string]any{"prompt": "a red ball", "fileName": "ball"})
	assert.False(t, res.IsError, res.Text)
	assert.Contains(t, res.Text, cwd)
	assert.Equal(t, 1, res.Images)
	assert.Equal(t, 1, provider.calls)

	res = r.Dispatch(context.Background(), "validate_api_key", nil)
	assert.False(t, res.IsError)
	assert.Zero(t, res.Images)
	assert.Contains(t, res.Text, "API key is valid")
}

func TestDispatch_UnknownTool(t *testing.T) {
	r, provider, _ := newTestRegistry(t)

	res := r.Dispatch(context.Background(), "upscale_image", nil)
	assert.True(t, res.IsError)
	assert.Equal(t, "Unknown tool: upscale_image", res.Text)
	assert.Zero(t, provider.calls)
}

func TestDispatch_RecoversPanics(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	r.add(Tool{Name: "explode", handler: func(context.Context, map[string]any) Outcome {
		panic("boom")
	}})

	var res CallResult
	require.NotPanics(t, func() {
		res = r.Dispatch(context.Background(), "explode", nil)
	})
	assert.True(t, res.IsError)
	assert.Equal(t, "Error running explode: internal error: boom", res.Text)
}

func TestDispatch_PanicKeepsOperationPrefix(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	r.add(Tool{Name: string(service.OpImageToImage), handler: func(context.Context, map[string]any) Outcome {
		panic("nil image")
	}})

	res := r.Dispatch(context.Background(), "image_to_image", map[string]any{"prompt": "x"})
	assert.True(t, res.IsError)
	assert.Equal(t, "Error in image-to-image transformation: internal error: nil image", res.Text)
}

func TestMCPToolSchema(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	tool, ok := r.Lookup("edit_image")
	require.True(t, ok)

	schema := mcpTool(tool).InputSchema
	assert.ElementsMatch(t, []string{"prompt", "imagePath"}, schema.Required)

	shapes, ok := schema.Properties["mask_shapes"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "array", shapes["type"])

	quality, ok := schema.Properties["quality"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, types.Qualities, quality["enum"])
}

func TestMCPServer_CallTool(t *testing.T) {
	r, provider, _ := newTestRegistry(t)
	s := NewMCPServer(r, "imagegen-mcp", "test")

	call := func(name string, args map[string]any) string {
		msg, err := json.Marshal(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"method":  "tools/call",
			"params":  map[string]any{"name": name, "arguments": args},
		})
		require.NoError(t, err)
		out, err := json.Marshal(s.HandleMessage(context.Background(), msg))
		require.NoError(t, err)
		return string(out)
	}

	out := call("validate_api_key", map[string]any{})
	assert.Contains(t, out, "API key is valid")
	assert.NotContains(t, out, `"isError":true`)
	assert.Equal(t, 1, provider.calls)

	out = call("generate_image", map[string]any{})
	assert.Contains(t, out, "Error generating image: prompt is required")
	assert.Contains(t, out, `"isError":true`)
}
