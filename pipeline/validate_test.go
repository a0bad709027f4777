package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateExternalURL_AcceptsHTTPS(t *testing.T) {
	u, err := ValidateExternalURL("https://anilist.co/manga/1")
	assert.NoError(t, err)
	assert.Equal(t, "anilist.co", u.Host)
}

func TestValidateExternalURL_AcceptsHTTP(t *testing.T) {
	_, err := ValidateExternalURL("http://example.com")
	assert.NoError(t, err)
}

func TestValidateExternalURL_RejectsJavascriptScheme(t *testing.T) {
	_, err := ValidateExternalURL("javascript:alert(1)")
	assert.Error(t, err)
}

func TestValidateExternalURL_RejectsFileScheme(t *testing.T) {
	_, err := ValidateExternalURL("file:///etc/passwd")
	assert.Error(t, err)
}

func TestValidateExternalURL_RejectsDataScheme(t *testing.T) {
	_, err := ValidateExternalURL("data:text/html,<script>alert(1)</script>")
	assert.Error(t, err)
}

func TestValidateExternalURL_RejectsMissingHost(t *testing.T) {
	_, err := ValidateExternalURL("https:///path")
	assert.Error(t, err)
}
