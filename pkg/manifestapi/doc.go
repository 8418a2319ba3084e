// Package manifestapi holds the building blocks plugins use to describe
// themselves: typed attribute schemas coerced with go-cty, a generic
// sub-manifest registry with keyed and list modes, and a reflection-free
// type lookup for resolving configured type names.
//
// The package is public and must not import anything under agora/internal.
package manifestapi
