// Command openapi-compat reports breaking changes between two revisions of
// the Inkwell API document.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"inkwell/docs"

	"gopkg.in/yaml.v3"
)

var httpMethods = map[string]struct{}{
	"get": {}, "put": {}, "post": {}, "delete": {}, "patch": {}, "head": {}, "options": {},
}

type parameter struct {
	Name     string `yaml:"name"`
	In       string `yaml:"in"`
	Required bool   `yaml:"required"`
}

type rawOperation struct {
	Parameters []parameter          `yaml:"parameters"`
	Responses  map[string]yaml.Node `yaml:"responses"`
}

// operation is the part of an operation whose change can break a client.
type operation struct {
	Required  map[string]struct{}
	Responses map[string]struct{}
}

type apiDoc struct {
	Paths map[string]map[string]operation
}

func main() {
	basePath := flag.String("base", "", "base swagger document (yaml or json)")
	revisionPath := flag.String("revision", "", "revision swagger document; defaults to the embedded docs")
	flag.Parse()

	if strings.TrimSpace(*basePath) == "" {
		fmt.Fprintln(os.Stderr, "usage: openapi-compat -base <path> [-revision <path>]")
		os.Exit(2)
	}

	if err := run(*basePath, *revisionPath, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(basePath, revisionPath string, out io.Writer) error {
	base, err := loadFile(basePath)
	if err != nil {
		return fmt.Errorf("load base document: %w", err)
	}

	var revision apiDoc
	if revisionPath == "" {
		revision, err = parseDoc([]byte(docs.SwaggerInfo.ReadDoc()))
	} else {
		revision, err = loadFile(revisionPath)
	}
	if err != nil {
		return fmt.Errorf("load revision document: %w", err)
	}

	issues := compare(base, revision)
	if len(issues) > 0 {
		return fmt.Errorf("backward compatibility check failed:\n- %s", strings.Join(issues, "\n- "))
	}
	_, _ = fmt.Fprintln(out, "openapi compatibility check passed")
	return nil
}

func loadFile(path string) (apiDoc, error) {
	// #nosec G304: path comes from CLI flags in a dev tool
	raw, err := os.ReadFile(path)
	if err != nil {
		return apiDoc{}, err
	}
	return parseDoc(raw)
}

// parseDoc decodes a Swagger 2.0 or OpenAPI 3 document. JSON is valid YAML,
// so both encodings go through the same decoder.
func parseDoc(raw []byte) (apiDoc, error) {
	var doc struct {
		Paths map[string]map[string]yaml.Node `yaml:"paths"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return apiDoc{}, err
	}
	if doc.Paths == nil {
		return apiDoc{}, errors.New("missing top-level paths field")
	}

	out := apiDoc{Paths: make(map[string]map[string]operation, len(doc.Paths))}
	for path, entries := range doc.Paths {
		ops := make(map[string]operation)
		for method, node := range entries {
			method = strings.ToLower(strings.TrimSpace(method))
			if _, ok := httpMethods[method]; !ok {
				continue
			}

			var decoded rawOperation
			if err := node.Decode(&decoded); err != nil {
				return apiDoc{}, fmt.Errorf("%s %s: %w", strings.ToUpper(method), path, err)
			}

			op := operation{Required: map[string]struct{}{}, Responses: map[string]struct{}{}}
			for _, p := range decoded.Parameters {
				if p.Required {
					op.Required[p.In+":"+p.Name] = struct{}{}
				}
			}
			for code := range decoded.Responses {
				op.Responses[strings.ToLower(strings.TrimSpace(code))] = struct{}{}
			}
			ops[method] = op
		}
		if len(ops) > 0 {
			out.Paths[path] = ops
		}
	}
	return out, nil
}

func compare(base, revision apiDoc) []string {
	var issues []string

	for path, baseOps := range base.Paths {
		revOps, ok := revision.Paths[path]
		if !ok {
			issues = append(issues, "removed path: "+path)
			continue
		}

		for method, baseOp := range baseOps {
			name := strings.ToUpper(method) + " " + path
			revOp, ok := revOps[method]
			if !ok {
				issues = append(issues, "removed operation: "+name)
				continue
			}

			for code := range baseOp.Responses {
				if _, ok := revOp.Responses[code]; !ok {
					issues = append(issues, fmt.Sprintf("removed response code: %s -> %s", name, code))
				}
			}
			for param := range revOp.Required {
				if _, ok := baseOp.Required[param]; !ok {
					issues = append(issues, fmt.Sprintf("new required parameter: %s -> %s", name, param))
				}
			}
		}
	}

	sort.Strings(issues)
	return issues
}
