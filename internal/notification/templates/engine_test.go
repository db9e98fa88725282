package templates

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() OTPData {
	return OTPData{
		FirstName:        "Ada",
		Code:             "482913",
		ExpiresInMinutes: 15,
		Brand: Brand{
			SiteName:     "Acme Builders",
			PrimaryColor: "#0044ff",
			SupportEmail: "help@acme.test",
		},
	}
}

func TestRenderEmbeddedTemplates(t *testing.T) {
	e := NewEngine(Config{}, nil)
	for _, h := range []Handle[OTPData]{ConfirmSignup, PasswordReset, LoginVerify} {
		out, err := Render(context.Background(), e, h, sample())
		require.NoError(t, err, h.ID())
		assert.Contains(t, out.Subject, "Acme Builders", h.ID())
		assert.Contains(t, out.EmailHTML, "482913", h.ID())
		assert.Contains(t, out.EmailHTML, "#0044ff", h.ID())
		assert.Contains(t, out.EmailText, "expires in 15 minutes", h.ID())
	}
}

func TestRenderEscapesHTML(t *testing.T) {
	data := sample()
	data.FirstName = "<script>alert(1)</script>"
	out, err := Render(context.Background(), NewEngine(Config{}, nil), ConfirmSignup, data)
	require.NoError(t, err)
	assert.NotContains(t, out.EmailHTML, "<script>")
	assert.Contains(t, out.EmailText, "<script>")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := NewEngine(Config{}, nil).RenderAny(context.Background(), "otp.nope", sample())
	assert.Error(t, err)
}

func TestRenderFromDirRequiresBlocks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.tmpl"), []byte(`{{define "subject"}}hi{{end}}`), 0o600))

	_, err := NewEngine(Config{Dir: dir}, nil).RenderAny(context.Background(), "broken", sample())
	assert.ErrorContains(t, err, "missing email_html block")
}

func TestForPurpose(t *testing.T) {
	h, ok := ForPurpose("password_reset")
	require.True(t, ok)
	assert.Equal(t, PasswordReset.ID(), h.ID())

	_, ok = ForPurpose("unknown")
	assert.False(t, ok)
}
