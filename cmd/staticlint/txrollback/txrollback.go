package txrollback

import (
	"go/ast"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/analysis"
)

// Analyzer reports functions that open a transaction with BeginTransaction
// but never defer a RollbackTransaction call. Every early return in such a
// function leaves the transaction open until its timeout.
var Analyzer = &analysis.Analyzer{
	Name: "txrollback",
	Doc:  "requires a deferred RollbackTransaction in every function that calls BeginTransaction",
	Run:  run,
}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		filename := pass.Fset.File(file.Pos()).Name()
		if isGoBuildCacheFile(filename) || strings.HasSuffix(filename, "_test.go") {
			continue
		}

		ast.Inspect(file, func(n ast.Node) bool {
			switch node := n.(type) {
			case *ast.FuncDecl:
				if node.Body != nil {
					checkBody(pass, node.Body)
				}
			case *ast.FuncLit:
				checkBody(pass, node.Body)
			}
			return true
		})
	}
	return nil, nil
}

// checkBody looks at one function body. Nested function literals are
// checked on their own.
func checkBody(pass *analysis.Pass, body *ast.BlockStmt) {
	var begins []*ast.CallExpr
	deferredRollback := false

	ast.Inspect(body, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.DeferStmt:
			if callsMethod(node.Call, "RollbackTransaction") {
				deferredRollback = true
			}
			return false
		case *ast.CallExpr:
			if isMethodCall(node, "BeginTransaction") {
				begins = append(begins, node)
			}
		}
		return true
	})

	if deferredRollback {
		return
	}
	for _, call := range begins {
		pass.Reportf(call.Pos(), "transaction opened by BeginTransaction is not rolled back in a defer")
	}
}

func isMethodCall(call *ast.CallExpr, name string) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	return ok && sel.Sel.Name == name
}

func callsMethod(root ast.Node, name string) bool {
	found := false
	ast.Inspect(root, func(n ast.Node) bool {
		if call, ok := n.(*ast.CallExpr); ok && isMethodCall(call, name) {
			found = true
		}
		return !found
	})
	return found
}

func isGoBuildCacheFile(path string) bool {
	path = filepath.ToSlash(path)
	return strings.Contains(path, "/go-build/") || strings.Contains(path, `\go-build\`)
}
