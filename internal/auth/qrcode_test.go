package auth

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRCodeRenderer_RenderDataURL(t *testing.T) {
	r := NewQRCodeRenderer(0)

	dataURL, err := r.RenderDataURL("otpauth://totp/Warden:alice@example.com?secret=JBSWY3DPEHPK3PXP&issuer=Warden")
	require.NoError(t, err)

	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(dataURL, prefix))

	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, prefix))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}
