package grpcvault

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/kojibai/sigil-ledger/cidutil"
	"github.com/kojibai/sigil-ledger/storage"
)

// DefaultMaxDocumentBytes caps an accepted document. Segment files are
// bounded by segmentSize and verifying keys are small, so anything larger is
// a caller bug, not a legitimate archive object.
const DefaultMaxDocumentBytes = 4 << 20

// Server exposes a storage.Archive over the Vault gRPC service.
//
// The server enforces the archive document contract at the trust boundary:
// payloads must be JSON documents within the size cap, and every byte slice
// leaving the vault is re-hashed against the requested CID so a corrupted
// backend can never satisfy a read.
type Server struct {
	UnimplementedVaultServer
	Archive storage.Archive

	// MaxDocumentBytes overrides DefaultMaxDocumentBytes when positive.
	MaxDocumentBytes int
}

func (s *Server) maxDocumentBytes() int {
	if s.MaxDocumentBytes > 0 {
		return s.MaxDocumentBytes
	}
	return DefaultMaxDocumentBytes
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	_ = ctx
	if s == nil || s.Archive == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing archive")
	}
	b := in.GetValue()
	if len(b) > s.maxDocumentBytes() {
		return nil, status.Error(codes.ResourceExhausted, "document exceeds vault size cap")
	}
	if !storage.ValidDocument(b) {
		return nil, status.Error(codes.InvalidArgument, storage.ErrNotDocument.Error())
	}
	expected, err := cidutil.SegmentCIDv1(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	id, err := s.Archive.Put(b)
	if err != nil {
		return nil, mapErr(err)
	}
	if id.String() != expected.String() {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if s == nil || s.Archive == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing archive")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	b, err := s.Archive.Get(id)
	if err != nil {
		return nil, mapErr(err)
	}
	// The backend already claims these bytes match the CID; recheck anyway
	// before they cross the wire.
	got, err := cidutil.SegmentCIDv1(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	if got.String() != id.String() {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	_ = ctx
	if s == nil || s.Archive == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing archive")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return wrapperspb.Bool(false), nil
	}
	return wrapperspb.Bool(s.Archive.Has(id)), nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case storage.IsNotFound(err):
		return status.Error(codes.NotFound, storage.ErrNotFound.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	case errors.Is(err, storage.ErrNotDocument):
		return status.Error(codes.InvalidArgument, storage.ErrNotDocument.Error())
	case errors.Is(err, storage.ErrCIDMismatch):
		return status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	case errors.Is(err, storage.ErrImmutable):
		return status.Error(codes.FailedPrecondition, storage.ErrImmutable.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
