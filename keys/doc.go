// Package keys manages the sovereign local identity: one asymmetric keypair
// per device, generated once, persisted on the local filesystem, and never
// regenerated behind the caller's back.
//
// The keystore is local-first and offline. Ed25519 is the primary algorithm;
// Dilithium3 is supported as a post-quantum alternative for callers that
// anchor long-lived lineages.
package keys
