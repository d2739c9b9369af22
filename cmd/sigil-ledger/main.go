package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"

	"github.com/kojibai/sigil-ledger/keys"
	"github.com/kojibai/sigil-ledger/ledger"
	"github.com/kojibai/sigil-ledger/sigilmeta"
	"github.com/kojibai/sigil-ledger/storage/grpcvault"
	"github.com/kojibai/sigil-ledger/storage/localfs"
	"github.com/kojibai/sigil-ledger/zk"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "seal":
		return cmdSeal(args[1:], out, errOut)
	case "status":
		return cmdStatus(args[1:], out, errOut)
	case "send":
		return cmdSend(args[1:], out, errOut)
	case "receive":
		return cmdReceive(args[1:], out, errOut)
	case "hardened":
		return cmdHardened(args[1:], out, errOut)
	case "segment":
		return cmdSegment(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "history":
		return cmdHistory(args[1:], out, errOut)
	case "vault":
		return cmdVault(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "sigil-ledger: offline verifiable transfer ledger for sigil artifacts")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  sigil-ledger key init --name <name>")
	fmt.Fprintln(w, "  sigil-ledger key list")
	fmt.Fprintln(w, "  sigil-ledger key export --name <name>")
	fmt.Fprintln(w, "  sigil-ledger seal <artifact.svg> --owner-key <phi> [--creator <name>]")
	fmt.Fprintln(w, "  sigil-ledger status <artifact.svg> [--owner-key <phi>]")
	fmt.Fprintln(w, "  sigil-ledger send <artifact.svg> --owner-key <phi> --proof <sig> --pulse <n> [--payload <file>]")
	fmt.Fprintln(w, "  sigil-ledger receive <artifact.svg> --owner-key <phi> --proof <sig> --pulse <n> [--segments <dir>]")
	fmt.Fprintln(w, "  sigil-ledger hardened send <artifact.svg> --key <name> --pulse <n> [--zk-bundle <file>]")
	fmt.Fprintln(w, "  sigil-ledger hardened receive <artifact.svg> --key <name> --pulse <n> [--zk-bundle <file>]")
	fmt.Fprintln(w, "  sigil-ledger segment seal <artifact.svg> [--segments <dir>]")
	fmt.Fprintln(w, "  sigil-ledger segment verify <artifact.svg> --file <segment.json> --index <n>")
	fmt.Fprintln(w, "  sigil-ledger verify <artifact.svg> [--owner-key <phi>]")
	fmt.Fprintln(w, "  sigil-ledger history <artifact.svg>")
	fmt.Fprintln(w, "  sigil-ledger history decode <compact>")
	fmt.Fprintln(w, "  sigil-ledger vault serve [--listen <addr>] [--root <dir>]")
	fmt.Fprintln(w, "  sigil-ledger vault put --target <addr> <file>")
	fmt.Fprintln(w, "  sigil-ledger vault get --target <addr> <cid>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - keys live under ~/.sigil/keys (0600 seed files)")
	fmt.Fprintln(w, "  - rolled segments are archived under ~/.sigil/segments unless --segments is set")
	fmt.Fprintln(w, "  - mutating commands rewrite the artifact's embedded metadata in place")
}

// loadArtifact reads the artifact and its embedded ledger metadata.
func loadArtifact(path string) ([]byte, *ledger.Metadata, error) {
	art, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	raw, err := sigilmeta.Extract(art)
	if err != nil {
		return nil, nil, err
	}
	m, err := ledger.ParseMetadata(raw)
	if err != nil {
		return nil, nil, err
	}
	return art, m, nil
}

// saveArtifact embeds m back into the artifact and rewrites path.
func saveArtifact(path string, art []byte, m *ledger.Metadata) error {
	raw, err := ledger.EncodeMetadata(m)
	if err != nil {
		return err
	}
	updated, err := sigilmeta.Embed(art, raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, updated, 0o644)
}

func openSegmentArchive(dir string) (*localfs.Archive, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = home + "/.sigil/segments"
	}
	return localfs.New(dir)
}

// archiveSegment stores a rolled segment and prints its CID.
func archiveSegment(seg *ledger.Segment, dir string, out io.Writer, errOut io.Writer) int {
	data, err := ledger.EncodeSegment(seg)
	if err != nil {
		fmt.Fprintf(errOut, "encode segment: %v\n", err)
		return 1
	}
	arch, err := openSegmentArchive(dir)
	if err != nil {
		fmt.Fprintf(errOut, "open segment archive: %v\n", err)
		return 1
	}
	id, err := arch.Put(data)
	if err != nil {
		fmt.Fprintf(errOut, "archive segment: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Sealed segment %d: %s\n", seg.SegmentIndex, id.String())
	return 0
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: sigil-ledger key <init|list|export> ...")
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n", args[0])
		return 2
	}
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var name string
	var dir string
	fs.StringVar(&name, "name", "", "Identity name (directory-safe)")
	fs.StringVar(&dir, "dir", "", "Keystore directory (default ~/.sigil/keys)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	ks, err := keys.Open(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	id, err := ks.LoadOrCreate(name)
	if err != nil {
		fmt.Fprintf(errOut, "init key: %v\n", err)
		return 1
	}
	pub, err := keys.PublicKeyString(id.Public)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Identity: %s\n", id.Name)
	fmt.Fprintf(out, "Public key: %s\n", pub)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var dir string
	fs.StringVar(&dir, "dir", "", "Keystore directory (default ~/.sigil/keys)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := keys.Open(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	names, err := ks.List()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, n := range names {
		fmt.Fprintln(out, n)
	}
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var name string
	var dir string
	fs.StringVar(&name, "name", "", "Identity name")
	fs.StringVar(&dir, "dir", "", "Keystore directory (default ~/.sigil/keys)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	ks, err := keys.Open(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	id, err := ks.Load(name)
	if err != nil {
		fmt.Fprintf(errOut, "load key: %v\n", err)
		return 1
	}
	pub, err := keys.PublicKeyString(id.Public)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, pub)
	return 0
}

func cmdSeal(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("seal", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ownerKey string
	var creator string
	var keyDir string
	fs.StringVar(&ownerKey, "owner-key", "", "Owner identity (phi)")
	fs.StringVar(&creator, "creator", "", "Optional stored key whose public key anchors the creator")
	fs.StringVar(&keyDir, "dir", "", "Keystore directory (default ~/.sigil/keys)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: sigil-ledger seal <artifact.svg> --owner-key <phi> [--creator <name>]")
		return 2
	}
	if ownerKey == "" {
		fmt.Fprintln(errOut, "missing --owner-key")
		return 2
	}

	var creatorPub string
	if creator != "" {
		ks, err := keys.Open(keyDir)
		if err != nil {
			fmt.Fprintf(errOut, "keys: %v\n", err)
			return 1
		}
		id, err := ks.Load(creator)
		if err != nil {
			fmt.Fprintf(errOut, "load --creator: %v\n", err)
			return 1
		}
		creatorPub, err = keys.PublicKeyString(id.Public)
		if err != nil {
			fmt.Fprintf(errOut, "export --creator: %v\n", err)
			return 1
		}
	}

	path := fs.Arg(0)
	art, m, err := loadArtifact(path)
	if err != nil {
		fmt.Fprintf(errOut, "read artifact: %v\n", err)
		return 1
	}
	sealed, err := ledger.Seal(m, ownerKey, creatorPub)
	if err != nil {
		fmt.Fprintf(errOut, "seal: %v\n", err)
		return 1
	}
	if err := saveArtifact(path, art, sealed); err != nil {
		fmt.Fprintf(errOut, "write artifact: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Sealed: %s\n", sealed.ContentSignature)
	return 0
}

func cmdStatus(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ownerKey string
	fs.StringVar(&ownerKey, "owner-key", "", "Evaluate ownership against this identity")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: sigil-ledger status <artifact.svg> [--owner-key <phi>]")
		return 2
	}
	_, m, err := loadArtifact(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read artifact: %v\n", err)
		return 1
	}
	state := ledger.Evaluate(m, ledger.EvalOptions{OwnerKey: ownerKey})
	_, _ = fmt.Fprintln(out, string(state))
	return 0
}

func cmdSend(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ownerKey string
	var proof string
	var pulse int
	var payloadPath string
	fs.StringVar(&ownerKey, "owner-key", "", "Sender identity (phi)")
	fs.StringVar(&proof, "proof", "", "Sender live identity proof")
	fs.IntVar(&pulse, "pulse", 0, "Current kai pulse")
	fs.StringVar(&payloadPath, "payload", "", "Optional payload descriptor JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: sigil-ledger send <artifact.svg> --owner-key <phi> --proof <sig> --pulse <n>")
		return 2
	}
	if ownerKey == "" || proof == "" {
		fmt.Fprintln(errOut, "missing --owner-key or --proof")
		return 2
	}

	var payload *ledger.TransferPayload
	if payloadPath != "" {
		b, err := os.ReadFile(payloadPath)
		if err != nil {
			fmt.Fprintf(errOut, "read --payload: %v\n", err)
			return 1
		}
		payload = &ledger.TransferPayload{}
		if err := json.Unmarshal(b, payload); err != nil {
			fmt.Fprintf(errOut, "invalid --payload: %v\n", err)
			return 2
		}
	}

	path := fs.Arg(0)
	art, m, err := loadArtifact(path)
	if err != nil {
		fmt.Fprintf(errOut, "read artifact: %v\n", err)
		return 1
	}
	next, err := ledger.SendLegacy(m, ledger.Party{OwnerKey: ownerKey, Proof: proof}, pulse, payload)
	if err != nil {
		fmt.Fprintf(errOut, "send: %v\n", err)
		return 1
	}
	if err := saveArtifact(path, art, next); err != nil {
		fmt.Fprintf(errOut, "write artifact: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Transfer %d opened\n", next.CumulativeTransfers-1)
	return 0
}

func cmdReceive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("receive", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ownerKey string
	var proof string
	var pulse int
	var segDir string
	fs.StringVar(&ownerKey, "owner-key", "", "Receiver identity (phi)")
	fs.StringVar(&proof, "proof", "", "Receiver live identity proof")
	fs.IntVar(&pulse, "pulse", 0, "Current kai pulse")
	fs.StringVar(&segDir, "segments", "", "Segment archive directory (default ~/.sigil/segments)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: sigil-ledger receive <artifact.svg> --owner-key <phi> --proof <sig> --pulse <n>")
		return 2
	}
	if ownerKey == "" || proof == "" {
		fmt.Fprintln(errOut, "missing --owner-key or --proof")
		return 2
	}

	path := fs.Arg(0)
	art, m, err := loadArtifact(path)
	if err != nil {
		fmt.Fprintf(errOut, "read artifact: %v\n", err)
		return 1
	}
	next, seg, err := ledger.ReceiveLegacy(m, ledger.Party{OwnerKey: ownerKey, Proof: proof}, pulse)
	if err != nil {
		fmt.Fprintf(errOut, "receive: %v\n", err)
		return 1
	}
	if err := saveArtifact(path, art, next); err != nil {
		fmt.Fprintf(errOut, "write artifact: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, "Transfer accepted")
	if seg != nil {
		return archiveSegment(seg, segDir, out, errOut)
	}
	return 0
}

func loadZkBundle(path string) (*zk.Bundle, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var bundle zk.Bundle
	if err := json.Unmarshal(b, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

func cmdHardened(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: sigil-ledger hardened <send|receive> ...")
		return 2
	}
	var receiving bool
	switch args[0] {
	case "send":
	case "receive":
		receiving = true
	default:
		fmt.Fprintf(errOut, "unknown hardened subcommand: %s\n", args[0])
		return 2
	}

	fs := flag.NewFlagSet("hardened "+args[0], flag.ContinueOnError)
	fs.SetOutput(errOut)
	var keyName string
	var keyDir string
	var pulse int
	var zkPath string
	fs.StringVar(&keyName, "key", "", "Stored signing identity")
	fs.StringVar(&keyDir, "dir", "", "Keystore directory (default ~/.sigil/keys)")
	fs.IntVar(&pulse, "pulse", 0, "Current kai pulse")
	fs.StringVar(&zkPath, "zk-bundle", "", "Optional zk proof bundle JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(errOut, "usage: sigil-ledger hardened %s <artifact.svg> --key <name> --pulse <n>\n", args[0])
		return 2
	}
	if keyName == "" {
		fmt.Fprintln(errOut, "missing --key")
		return 2
	}

	ks, err := keys.Open(keyDir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	id, err := ks.Load(keyName)
	if err != nil {
		fmt.Fprintf(errOut, "load --key: %v\n", err)
		return 1
	}

	bundle, err := loadZkBundle(zkPath)
	if err != nil {
		fmt.Fprintf(errOut, "read --zk-bundle: %v\n", err)
		return 1
	}
	zkOpts := ledger.ZkOptions{Bundle: bundle, VKeys: zk.InlineVKeys{}}

	path := fs.Arg(0)
	art, m, err := loadArtifact(path)
	if err != nil {
		fmt.Fprintf(errOut, "read artifact: %v\n", err)
		return 1
	}

	ctx := context.Background()
	var next *ledger.Metadata
	if receiving {
		next, err = ledger.ReceiveHardened(ctx, m, id, pulse, zkOpts)
	} else {
		next, err = ledger.SendHardened(ctx, m, id, pulse, zkOpts)
	}
	if err != nil {
		fmt.Fprintf(errOut, "hardened %s: %v\n", args[0], err)
		return 1
	}
	if err := saveArtifact(path, art, next); err != nil {
		fmt.Fprintf(errOut, "write artifact: %v\n", err)
		return 1
	}
	last := next.HardenedTransfers[len(next.HardenedTransfers)-1]
	if receiving {
		fmt.Fprintf(out, "Hardened entry %d accepted: %s\n", len(next.HardenedTransfers)-1, last.TransferLeafHashReceive)
	} else {
		fmt.Fprintf(out, "Hardened entry %d opened: %s\n", len(next.HardenedTransfers)-1, last.TransferLeafHashSend)
	}
	return 0
}

func cmdSegment(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: sigil-ledger segment <seal|verify> ...")
		return 2
	}
	switch args[0] {
	case "seal":
		return cmdSegmentSeal(args[1:], out, errOut)
	case "verify":
		return cmdSegmentVerify(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown segment subcommand: %s\n", args[0])
		return 2
	}
}

func cmdSegmentSeal(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("segment seal", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var segDir string
	fs.StringVar(&segDir, "segments", "", "Segment archive directory (default ~/.sigil/segments)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: sigil-ledger segment seal <artifact.svg>")
		return 2
	}
	path := fs.Arg(0)
	art, m, err := loadArtifact(path)
	if err != nil {
		fmt.Fprintf(errOut, "read artifact: %v\n", err)
		return 1
	}
	next, seg, err := ledger.SealSegment(m)
	if err != nil {
		fmt.Fprintf(errOut, "seal segment: %v\n", err)
		return 1
	}
	if err := saveArtifact(path, art, next); err != nil {
		fmt.Fprintf(errOut, "write artifact: %v\n", err)
		return 1
	}
	return archiveSegment(seg, segDir, out, errOut)
}

func cmdSegmentVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("segment verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var segPath string
	var index int
	fs.StringVar(&segPath, "file", "", "Exported segment JSON file")
	fs.IntVar(&index, "index", -1, "Segment index recorded in the artifact")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || segPath == "" || index < 0 {
		fmt.Fprintln(errOut, "usage: sigil-ledger segment verify <artifact.svg> --file <segment.json> --index <n>")
		return 2
	}

	_, m, err := loadArtifact(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read artifact: %v\n", err)
		return 1
	}
	var entry *ledger.SegmentEntry
	for i := range m.Segments {
		if m.Segments[i].Index == index {
			entry = &m.Segments[i]
			break
		}
	}
	if entry == nil {
		fmt.Fprintf(errOut, "artifact has no segment %d\n", index)
		return 1
	}

	b, err := os.ReadFile(segPath)
	if err != nil {
		fmt.Fprintf(errOut, "read --file: %v\n", err)
		return 1
	}
	var seg ledger.Segment
	if err := json.Unmarshal(b, &seg); err != nil {
		fmt.Fprintf(errOut, "invalid segment file: %v\n", err)
		return 1
	}
	if err := ledger.VerifySegment(&seg, *entry); err != nil {
		fmt.Fprintf(errOut, "invalid: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, "OK")
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ownerKey string
	fs.StringVar(&ownerKey, "owner-key", "", "Evaluate ownership against this identity")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: sigil-ledger verify <artifact.svg> [--owner-key <phi>]")
		return 2
	}
	_, m, err := loadArtifact(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read artifact: %v\n", err)
		return 1
	}

	hw, err := ledger.RefreshHeadWindow(m)
	if err != nil {
		fmt.Fprintf(errOut, "head window: %v\n", err)
		return 1
	}
	if err := ledger.VerifyHardenedChain(m); err != nil {
		fmt.Fprintf(errOut, "hardened chain: %v\n", err)
		return 1
	}
	state := ledger.Evaluate(m, ledger.EvalOptions{OwnerKey: ownerKey})

	fmt.Fprintf(out, "State: %s\n", state)
	fmt.Fprintf(out, "Window root: %s\n", hw.WindowRoot)
	fmt.Fprintf(out, "Window root (hardened): %s\n", hw.WindowRootV14)
	if m.SegmentsMerkleRoot != "" {
		fmt.Fprintf(out, "Segments root: %s (%d segments)\n", m.SegmentsMerkleRoot, len(m.Segments))
	}
	return 0
}

func cmdHistory(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) >= 1 && args[0] == "decode" {
		if len(args) != 2 {
			fmt.Fprintln(errOut, "usage: sigil-ledger history decode <compact>")
			return 2
		}
		entries, err := ledger.DecodeCompactHistory(strings.TrimSpace(args[1]))
		if err != nil {
			fmt.Fprintf(errOut, "decode: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			fmt.Fprintf(errOut, "encode: %v\n", err)
			return 1
		}
		return 0
	}

	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: sigil-ledger history <artifact.svg>")
		return 2
	}
	_, m, err := loadArtifact(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read artifact: %v\n", err)
		return 1
	}
	compact, err := ledger.EncodeCompactHistory(m)
	if err != nil {
		fmt.Fprintf(errOut, "history: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, compact)
	return 0
}

func cmdVault(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: sigil-ledger vault <serve|put|get> ...")
		return 2
	}
	switch args[0] {
	case "serve":
		return cmdVaultServe(args[1:], out, errOut)
	case "put":
		return cmdVaultPut(args[1:], out, errOut)
	case "get":
		return cmdVaultGet(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown vault subcommand: %s\n", args[0])
		return 2
	}
}

func cmdVaultServe(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("vault serve", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var listen string
	var root string
	fs.StringVar(&listen, "listen", "127.0.0.1:7474", "Listen address")
	fs.StringVar(&root, "root", "", "Archive directory (default ~/.sigil/segments)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	arch, err := openSegmentArchive(root)
	if err != nil {
		fmt.Fprintf(errOut, "open archive: %v\n", err)
		return 1
	}
	lis, err := net.Listen("tcp", listen)
	if err != nil {
		fmt.Fprintf(errOut, "listen: %v\n", err)
		return 1
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpcvault.RegisterVaultServer(s, &grpcvault.Server{Archive: arch})

	fmt.Fprintf(errOut, "sigil-ledger vault listening on %s\n", lis.Addr().String())
	if err := s.Serve(lis); err != nil {
		fmt.Fprintf(errOut, "serve: %v\n", err)
		return 1
	}
	return 0
}

func cmdVaultPut(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("vault put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var target string
	fs.StringVar(&target, "target", "127.0.0.1:7474", "Vault address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: sigil-ledger vault put --target <addr> <file>")
		return 2
	}
	b, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read: %v\n", err)
		return 1
	}
	c, err := grpcvault.Dial(target, grpcvault.DialOptions{})
	if err != nil {
		fmt.Fprintf(errOut, "dial: %v\n", err)
		return 1
	}
	defer c.Close()
	id, err := c.Put(b)
	if err != nil {
		fmt.Fprintf(errOut, "put: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdVaultGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("vault get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var target string
	fs.StringVar(&target, "target", "127.0.0.1:7474", "Vault address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: sigil-ledger vault get --target <addr> <cid>")
		return 2
	}
	id, err := cid.Parse(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid cid: %v\n", err)
		return 2
	}
	c, err := grpcvault.Dial(target, grpcvault.DialOptions{})
	if err != nil {
		fmt.Fprintf(errOut, "dial: %v\n", err)
		return 1
	}
	defer c.Close()
	b, err := c.Get(id)
	if err != nil {
		fmt.Fprintf(errOut, "get: %v\n", err)
		return 1
	}
	_, _ = out.Write(b)
	return 0
}
