package core

// ContextManifest describes how a space renders in one context such as
// "public" or "admin".
type ContextManifest struct {
	Key        string
	Layout     string
	Helper     string
	EngineName string
}
