// Package stagestore models the shared durable store all machines mount.
//
// The store is plain filesystem with a fixed layout: raw/{source} holds
// producer output, processed/ holds consumed raw records, ready/ holds
// packages awaiting import, ready/imported holds the audit trail of imported
// packages, errors/{source} isolates malformed records, and config/ holds
// per-source manifests and download logs. There is no broker and no RPC
// between workers; file presence is the handoff signal, atomic rename is the
// commit, and manifests serialize cross-machine writers with file locks.
package stagestore
