package chunker

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/dshills/repoindex/pkg/types"
)

// GoChunker chunks Go source at declaration boundaries using go/ast. Every
// chunk carries the package clause and imports as context. Files that do not
// parse are line-chunked instead of failing.
type GoChunker struct {
	lines *LineChunker
}

// NewGoChunker creates a GoChunker that splits oversized declarations with lc.
func NewGoChunker(lc *LineChunker) *GoChunker {
	return &GoChunker{lines: lc}
}

// ChunkCode implements Chunker.
func (c *GoChunker) ChunkCode(content, path, relativePath, language string) ([]types.CodeChunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	lines := splitLines(content)

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil || file == nil || file.Name == nil {
		f := newFileInfo(content, path, relativePath, language, "")
		return c.lines.chunkRange(lines, 1, len(lines), types.ChunkBlock, "", f), nil
	}

	f := newFileInfo(content, path, relativePath, language, buildPackageContext(file))

	spans := []span{{
		start: fset.Position(file.Package).Line,
		end:   fset.Position(file.Name.End()).Line,
		skip:  true,
	}}
	if file.Doc != nil {
		spans[0].start = fset.Position(file.Doc.Pos()).Line
	}

	for _, decl := range file.Decls {
		spans = append(spans, declSpan(fset, decl))
	}

	return assemble(lines, spans, c.lines, f), nil
}

func declSpan(fset *token.FileSet, decl ast.Decl) span {
	s := span{
		start: fset.Position(decl.Pos()).Line,
		end:   fset.Position(decl.End()).Line,
	}

	switch d := decl.(type) {
	case *ast.FuncDecl:
		if d.Doc != nil {
			s.start = fset.Position(d.Doc.Pos()).Line
		}
		s.name = d.Name.Name
		s.kind = types.ChunkFunction
		if d.Recv != nil && len(d.Recv.List) > 0 {
			s.kind = types.ChunkMethod
			if recv := receiverType(d.Recv.List[0].Type); recv != "" {
				s.name = recv + "." + d.Name.Name
			}
		}
	case *ast.GenDecl:
		if d.Doc != nil {
			s.start = fset.Position(d.Doc.Pos()).Line
		}
		switch d.Tok {
		case token.IMPORT:
			s.skip = true
		case token.TYPE:
			s.kind = types.ChunkTypeDecl
		default:
			s.kind = types.ChunkDecl
		}
		s.name = genDeclName(d)
	default:
		s.kind = types.ChunkBlock
	}
	return s
}

// receiverType extracts the receiver type name from a method
func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

// genDeclName names a declaration group after its first spec.
func genDeclName(d *ast.GenDecl) string {
	if len(d.Specs) == 0 {
		return ""
	}
	switch s := d.Specs[0].(type) {
	case *ast.TypeSpec:
		return s.Name.Name
	case *ast.ValueSpec:
		if len(s.Names) > 0 {
			return s.Names[0].Name
		}
	}
	return ""
}

// buildPackageContext builds the context information (package + imports)
func buildPackageContext(file *ast.File) string {
	var context strings.Builder

	context.WriteString(fmt.Sprintf("package %s\n", file.Name.Name))

	if len(file.Imports) > 0 {
		context.WriteString("\nimport (\n")
		for _, imp := range file.Imports {
			if imp.Name != nil {
				context.WriteString(fmt.Sprintf("\t%s %s\n", imp.Name.Name, imp.Path.Value))
			} else {
				context.WriteString(fmt.Sprintf("\t%s\n", imp.Path.Value))
			}
		}
		context.WriteString(")\n")
	}

	return context.String()
}
