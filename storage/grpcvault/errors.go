package grpcvault

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kojibai/sigil-ledger/storage"
)

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		// Server uses InvalidArgument for malformed CIDs and for payloads
		// that violate the document contract; the message disambiguates.
		if st.Message() == storage.ErrNotDocument.Error() {
			return storage.ErrNotDocument
		}
		return storage.ErrInvalidCID
	case codes.DataLoss:
		// Server uses DataLoss when bytes do not match the requested CID.
		return storage.ErrCIDMismatch
	case codes.FailedPrecondition:
		if st.Message() == storage.ErrImmutable.Error() {
			return storage.ErrImmutable
		}
		return err
	default:
		// Best-effort: preserve known storage error messages across the wire.
		switch st.Message() {
		case storage.ErrNotFound.Error():
			return storage.ErrNotFound
		case storage.ErrInvalidCID.Error():
			return storage.ErrInvalidCID
		case storage.ErrNotDocument.Error():
			return storage.ErrNotDocument
		case storage.ErrCIDMismatch.Error():
			return storage.ErrCIDMismatch
		case storage.ErrImmutable.Error():
			return storage.ErrImmutable
		default:
			return err
		}
	}
}
