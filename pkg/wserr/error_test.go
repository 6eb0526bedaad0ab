package wserr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omochice/bsc-netlayer/pkg/wserr"
)

func TestCodeOf(t *testing.T) {
	cause := errors.New("no such host")
	err := fmt.Errorf("failed to connect: %w", wserr.New(wserr.CodeDNSResolution, "resolve", cause))

	assert.Equal(t, wserr.CodeDNSNameResolutionFailed, wserr.CodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, wserr.Code(0), wserr.CodeOf(nil))
	assert.Equal(t, wserr.Code(0), wserr.CodeOf(cause))
}

func TestError_IsMatchesCode(t *testing.T) {
	err := wserr.New(wserr.CodeTCPConnectionRefused, "connect", errors.New("refused"))

	assert.ErrorIs(t, err, &wserr.Error{Code: wserr.CodeConnectionRefused})
	assert.NotErrorIs(t, err, &wserr.Error{Code: wserr.CodeTLSHandshake})
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "upgrade: TCP_CONNECTION_REFUSED: bad status",
		wserr.New(wserr.CodeConnectionRefused, "upgrade", errors.New("bad status")).Error())
	assert.Equal(t, "add: UNSUPPORTED_SCHEME",
		wserr.New(wserr.CodeUnsupportedScheme, "add", nil).Error())
}

func TestCode_String(t *testing.T) {
	assert.Equal(t, "NONE", wserr.Code(0).String())
	assert.Equal(t, "TLS_ERROR", wserr.CodeTLSHandshake.String())
	assert.Equal(t, "CODE_7", wserr.Code(7).String())
}
