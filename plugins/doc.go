// Package plugins hosts the participatory space plugins shipped with agora.
// It contains no runtime code; the architecture test alongside it keeps the
// plugin subpackages away from storage drivers and host wiring.
//
// Plugins depend on agora/internal/core for manifests, agora/pkg/manifestapi
// for the registry primitives, and the persistence and blob facades. Driver
// packages under agora/internal/infra are chosen by the host.
package plugins
