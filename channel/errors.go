package channel

import "errors"

var ErrUnknownTransport = errors.New("channel: unknown transport")
