// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

// Package coredb is the embeddable core of a multi-model database
// engine: a typed catalog, session/capability model, access control,
// async index builder, cluster membership, and query execution entry
// points sitting on a pluggable ordered byte-KV substrate.
//
// Datastore is the single entry point the rest of a server or SDK
// builds on. It owns the KV store, the catalog cache, the
// notification hub, and the execution engine, and exposes them
// through a small, explicit surface (pkg/storage, pkg/catalog,
// pkg/session, pkg/iam, pkg/indexbuild, pkg/cluster, pkg/engine,
// pkg/notify are the components it wires together; each is usable on
// its own, but Datastore is the supported way to assemble them).
//
// The SQL surface grammar, wire protocol framing, concrete
// distributed storage engines, and vector/full-text index algorithms
// are deliberately out of scope: pkg/engine depends only on the
// Statement/Parser seam, so any grammar implementation can drive this
// core without it depending back on that grammar.
package coredb
