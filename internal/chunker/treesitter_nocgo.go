//go:build !cgo

package chunker

// Without cgo the tree-sitter grammars are unavailable; these languages keep
// their tags but are chunked by lines.
func registerTreeSitter(r *Registry, _ *LineChunker) {
	r.Register("python", nil, "py", "pyi")
	r.Register("javascript", nil, "js", "jsx", "mjs", "cjs")
	r.Register("typescript", nil, "ts", "mts", "cts")
	r.Register("tsx", nil, "tsx")
}
