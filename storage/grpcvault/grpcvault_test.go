package grpcvault

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/kojibai/sigil-ledger/cidutil"
	"github.com/kojibai/sigil-ledger/storage"
	"github.com/kojibai/sigil-ledger/storage/localfs"
)

func newTestVaultClient(t *testing.T, arc storage.Archive) *Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterVaultServer(srv, &Server{Archive: arc})

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	t.Cleanup(func() { cc.Close() })

	return &Client{cc: cc, client: NewVaultClient(cc), Timeout: 2 * time.Second}
}

func TestVault_LocalFS_RoundTrip(t *testing.T) {
	arc, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	client := newTestVaultClient(t, arc)

	payload := []byte(`{"version":1,"segmentIndex":0,"transfers":[]}`)
	id, err := client.Put(payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !id.Defined() {
		t.Fatalf("expected defined CID")
	}
	if !client.Has(id) {
		t.Fatalf("Has: expected true")
	}
	got, err := client.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestVault_RejectsNonDocument(t *testing.T) {
	arc, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	client := newTestVaultClient(t, arc)

	for _, payload := range [][]byte{nil, []byte("plain text"), []byte(`{"open":`)} {
		if _, err := client.Put(payload); !errors.Is(err, storage.ErrNotDocument) {
			t.Fatalf("Put(%q): got %v, want ErrNotDocument", payload, err)
		}
	}

	// The server enforces the same contract even when a client skips the
	// local check.
	srv := &Server{Archive: arc}
	if _, err := srv.Put(context.Background(), wrapperspb.Bytes([]byte("raw"))); err == nil {
		t.Fatalf("server Put accepted a non-document payload")
	}
}

// corruptArchive hands back tampered bytes while claiming the requested CID.
type corruptArchive struct {
	stored map[string][]byte
}

func (a *corruptArchive) Put(data []byte) (cid.Cid, error) {
	id, err := cidutil.SegmentCIDv1(data)
	if err != nil {
		return cid.Undef, err
	}
	if a.stored == nil {
		a.stored = make(map[string][]byte)
	}
	a.stored[id.String()] = append([]byte(nil), data...)
	return id, nil
}

func (a *corruptArchive) Get(id cid.Cid) ([]byte, error) {
	b, ok := a.stored[id.String()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	flipped := append([]byte(nil), b...)
	flipped[0] ^= 0x01
	return flipped, nil
}

func (a *corruptArchive) Has(id cid.Cid) bool {
	_, ok := a.stored[id.String()]
	return ok
}

func TestVault_ServerRehashesBeforeReturn(t *testing.T) {
	client := newTestVaultClient(t, &corruptArchive{})

	payload := []byte(`{"version":1,"segmentIndex":4}`)
	id, err := client.Put(payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := client.Get(id); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("Get from corrupted backend: got %v, want ErrCIDMismatch", err)
	}
}
