package net

import (
	"context"

	"github.com/mosaicnetworks/bftnode/src/events"
	"github.com/sirupsen/logrus"
)

// Pump performs the requests of a node's network queue on trans until the
// queue is closed, a Shutdown request closes the transport, or ctx is
// cancelled. Send failures are logged; the transport reports them to the node
// as UnableConnectToPeer events.
func Pump(ctx context.Context, requests <-chan events.NetworkRequest, trans Transport, logger *logrus.Entry) error {
	for {
		select {
		case req, ok := <-requests:
			if !ok {
				return nil
			}

			switch req.Type {
			case events.SendMessage:
				if err := trans.Send(req.Addr, req.Message); err != nil {
					logger.WithError(err).WithFields(logrus.Fields{
						"target":  req.Addr,
						"message": req.Message,
					}).Warn("Unable to send message")
				}
			case events.DisconnectWithPeer:
				logger.WithField("peer", req.Addr).Debug("Disconnect")
				trans.Disconnect(req.Addr)
			case events.ShutdownNetwork:
				logger.Debug("Shutting down transport")
				return trans.Close()
			default:
				logger.WithField("type", req.Type).Error("Unknown network request")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
