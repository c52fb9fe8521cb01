package main

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/srg/rpmlink/internal/device"
	goble "github.com/srg/rpmlink/internal/device/go-ble"
	"github.com/srg/rpmlink/internal/groutine"
)

// newTransport creates the radio transport commands talk through
var newTransport = func(logger *logrus.Logger) device.Transport {
	groutine.PanicLogger = logger
	return goble.NewTransport(logger)
}

// closeTransport releases the radio if the transport holds one.
func closeTransport(t device.Transport, logger *logrus.Logger) {
	c, ok := t.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.WithError(err).Debug("Failed to close transport")
	}
}
