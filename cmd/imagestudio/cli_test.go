package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhpenta/imagestudio"
	"github.com/mhpenta/imagestudio/provider/gemini"
)

type fakeProvider struct {
	generated []string
	edited    [][]imagestudio.InputImage
	apiKey    string
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, config *imagestudio.GenerateConfig) (*imagestudio.GenerateResult, error) {
	f.generated = append(f.generated, prompt)
	return pngResult(), nil
}

func (f *fakeProvider) Edit(ctx context.Context, image imagestudio.InputImage, instruction string, config *imagestudio.GenerateConfig) (*imagestudio.GenerateResult, error) {
	f.edited = append(f.edited, []imagestudio.InputImage{image})
	return pngResult(), nil
}

func (f *fakeProvider) EditMultiple(ctx context.Context, images []imagestudio.InputImage, instruction string, config *imagestudio.GenerateConfig) (*imagestudio.GenerateResult, error) {
	f.edited = append(f.edited, images)
	return pngResult(), nil
}

func (f *fakeProvider) Models() []imagestudio.ModelInfo {
	return []imagestudio.ModelInfo{gemini.NanoBanana1Info, gemini.NanoBanana2Info}
}

func (f *fakeProvider) Close() error { return nil }

func pngResult() *imagestudio.GenerateResult {
	return &imagestudio.GenerateResult{
		Images: []imagestudio.GeneratedImage{{Data: []byte("png bytes"), MIMEType: "image/png"}},
	}
}

func execute(t *testing.T, fake *fakeProvider, args ...string) (string, error) {
	t.Helper()
	cmd := newCLI(func(ctx context.Context, apiKey string) (imagestudio.ImageGenerator, error) {
		fake.apiKey = apiKey
		return fake, nil
	})

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("image "+name), 0o644))
	return path
}

func TestCreate_SavesImage(t *testing.T) {
	out := t.TempDir()
	fake := &fakeProvider{}

	stdout, err := execute(t, fake, "create", "--api-key", "k", "-o", out, "-f", "sticker", "a", "cat")
	require.NoError(t, err)

	require.Len(t, fake.generated, 1)
	assert.Contains(t, fake.generated[0], "a cat")
	assert.Equal(t, "k", fake.apiKey)

	path := strings.TrimSpace(stdout)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "create-"))
	assert.Equal(t, ".png", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), data)
}

func TestCreate_APIKeyFromEnv(t *testing.T) {
	t.Setenv(apiKeyEnv, "from-env")
	fake := &fakeProvider{}

	_, err := execute(t, fake, "create", "-o", t.TempDir(), "a cat")
	require.NoError(t, err)
	assert.Equal(t, "from-env", fake.apiKey)
}

func TestCreate_MissingAPIKey(t *testing.T) {
	t.Setenv(apiKeyEnv, "")

	_, err := execute(t, &fakeProvider{}, "create", "a cat")
	assert.ErrorIs(t, err, errMissingAPIKey)
}

func TestCreate_EmptyPrompt(t *testing.T) {
	fake := &fakeProvider{}

	_, err := execute(t, fake, "create", "--api-key", "k", "-o", t.TempDir(), "")
	assert.EqualError(t, err, imagestudio.MsgEmptyPrompt)
	assert.Empty(t, fake.generated)

	// whitespace is a prompt; only the empty string is rejected
	_, err = execute(t, fake, "create", "--api-key", "k", "-o", t.TempDir(), "  ")
	require.NoError(t, err)
	assert.Len(t, fake.generated, 1)
}

func TestCreate_RejectsUnknownFunction(t *testing.T) {
	_, err := execute(t, &fakeProvider{}, "create", "--api-key", "k", "-f", "compose", "a cat")
	assert.ErrorIs(t, err, imagestudio.ErrUnknownFunction)
}

func TestEdit_SingleImage(t *testing.T) {
	in := t.TempDir()
	fake := &fakeProvider{}

	_, err := execute(t, fake, "edit", "--api-key", "k", "-o", t.TempDir(),
		"-f", "retouch", "--image", writeImage(t, in, "a.jpg"), "brighten")
	require.NoError(t, err)

	require.Len(t, fake.edited, 1)
	require.Len(t, fake.edited[0], 1)
	assert.Equal(t, "image/jpeg", fake.edited[0][0].MIMEType)
}

func TestEdit_Compose(t *testing.T) {
	in := t.TempDir()
	fake := &fakeProvider{}

	_, err := execute(t, fake, "edit", "--api-key", "k", "-o", t.TempDir(), "-f", "compose",
		"-i", writeImage(t, in, "a.png"), "-i", writeImage(t, in, "b.png"), "put them together")
	require.NoError(t, err)

	require.Len(t, fake.edited, 1)
	require.Len(t, fake.edited[0], 2)
	assert.Equal(t, []byte("image b.png"), fake.edited[0][1].Data)
}

func TestEdit_Failures(t *testing.T) {
	in := t.TempDir()
	img := writeImage(t, in, "a.png")

	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{
			name:    "no image",
			args:    []string{"edit", "--api-key", "k", "fix it"},
			wantMsg: imagestudio.MsgMissingEditImage,
		},
		{
			name:    "compose with one image",
			args:    []string{"edit", "--api-key", "k", "-f", "compose", "-i", img, "merge"},
			wantMsg: imagestudio.MsgComposeNeedsTwo,
		},
		{
			name:    "three images",
			args:    []string{"edit", "--api-key", "k", "-i", img, "-i", img, "-i", img, "fix"},
			wantMsg: "too many",
		},
		{
			name:    "missing file",
			args:    []string{"edit", "--api-key", "k", "-i", filepath.Join(in, "missing.png"), "fix"},
			wantMsg: "missing.png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeProvider{}
			_, err := execute(t, fake, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Empty(t, fake.edited)
		})
	}
}

func TestGlobalFlagValidation(t *testing.T) {
	_, err := execute(t, &fakeProvider{}, "create", "--api-key", "k", "--aspect-ratio", "7:3", "a cat")
	assert.ErrorContains(t, err, "unsupported aspect ratio")

	_, err = execute(t, &fakeProvider{}, "create", "--api-key", "k", "--model", "dall-e", "a cat")
	assert.ErrorIs(t, err, imagestudio.ErrModelNotRegistered)
}

func TestModels(t *testing.T) {
	stdout, err := execute(t, &fakeProvider{}, "models", "--api-key", "k")
	require.NoError(t, err)

	assert.Contains(t, stdout, "NAME")
	assert.Contains(t, stdout, "nano-banana-1 (default)")
	assert.Contains(t, stdout, gemini.APIModelNanoBanana2)
	assert.Less(t, strings.Index(stdout, "nano-banana-1"), strings.Index(stdout, "nano-banana-2"))
}
