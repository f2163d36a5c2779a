package handshake

import (
	"fmt"

	rerrors "github.com/alxayo/go-rtmp/internal/errors"
)

var errHandshakeAlreadyDone = rerrors.NewHandshakeError("process_bytes", fmt.Errorf("handshake already completed or failed"))

func errUnsupportedVersion(c0 byte) error {
	return rerrors.NewHandshakeError("validate version", fmt.Errorf("unsupported version 0x%02x", c0))
}
