package main

import (
	"golang.org/x/tools/go/analysis"

	"basegraph.app/boardroom/tools/linters/enumvalidator"
)

type AnalyzerPlugin struct{}

func (*AnalyzerPlugin) GetAnalyzers() []*analysis.Analyzer {
	return []*analysis.Analyzer{
		enumvalidator.Analyzer,
	}
}

// New is the golangci-lint module plugin entry point.
func New(conf any) ([]*analysis.Analyzer, error) {
	return []*analysis.Analyzer{enumvalidator.Analyzer}, nil
}

// main is never called; it lets `go build ./...` link this -buildmode=plugin package.
func main() {}
