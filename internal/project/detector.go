package project

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// markerFile is one of the fixed set of marker files examined in priority
// order (spec.md §4.4). languageMarkers additionally determine
// primary_language/project_type on first match; auxMarkers only ever
// contribute to the accumulated frameworks set.
type markerFile struct {
	name         string
	language     string
	frameworkTag string // used when language == "" (container/VCS markers)
	projectType  func(content []byte) string
	frameworks   func(content []byte) []string
}

// languageMarkers is the fixed, ordered marker list. Order matters: the
// first one whose file exists determines primary_language/project_type.
var languageMarkers = []markerFile{
	{name: "Cargo.toml", language: "rust", projectType: rustProjectType, frameworks: rustFrameworks},
	{name: "package.json", language: "javascript", projectType: jsProjectType, frameworks: jsFrameworks},
	{name: "pyproject.toml", language: "python", projectType: pyProjectType, frameworks: pyFrameworks},
	{name: "requirements.txt", language: "python", projectType: pyProjectType, frameworks: pyFrameworks},
	{name: "go.mod", language: "go", projectType: goProjectType, frameworks: goFrameworks},
}

// auxMarkers contribute to frameworks only; a container descriptor or VCS
// directory never determines primary_language on its own.
var auxMarkers = []markerFile{
	{name: "Dockerfile", frameworkTag: "docker"},
	{name: "docker-compose.yml", frameworkTag: "docker-compose"},
}

// Detect examines dir's marker files and returns the resulting Context. I/O
// is bounded to reading the marker files themselves — no recursive scan. It
// is pure (same inputs, same output) and respects ctx cancellation between
// marker reads.
func Detect(ctx context.Context, dir string) (Context, error) {
	result := Unknown(dir)

	var hashInputs [][]byte
	matchedLanguage := false

	for _, m := range languageMarkers {
		if err := ctx.Err(); err != nil {
			return Context{}, err
		}

		path := filepath.Join(dir, m.name)
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		hashInputs = append(hashInputs, content)

		if !matchedLanguage {
			result.PrimaryLanguage = m.language
			result.ProjectType = m.projectType(content)
			matchedLanguage = true
		}
		if fws := m.frameworks(content); len(fws) > 0 {
			result.Frameworks = appendUnique(result.Frameworks, fws...)
		}
	}

	for _, m := range auxMarkers {
		if err := ctx.Err(); err != nil {
			return Context{}, err
		}
		if _, err := os.Stat(filepath.Join(dir, m.name)); err == nil {
			result.Frameworks = appendUnique(result.Frameworks, m.frameworkTag)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		result.Frameworks = appendUnique(result.Frameworks, "git")
	}

	if len(hashInputs) > 0 {
		h := sha256.New()
		for _, in := range hashInputs {
			h.Write(in)
		}
		result.DependencyFingerprint = hex.EncodeToString(h.Sum(nil))
	}

	return result, nil
}

func appendUnique(existing []string, values ...string) []string {
	set := make(map[string]bool, len(existing))
	for _, v := range existing {
		set[v] = true
	}
	for _, v := range values {
		if !set[v] {
			existing = append(existing, v)
			set[v] = true
		}
	}
	return existing
}

// --- Rust (Cargo.toml) ---

func rustProjectType(content []byte) string {
	s := string(content)
	switch {
	case strings.Contains(s, "tauri"):
		return "desktop"
	case strings.Contains(s, "actix-web"), strings.Contains(s, "axum"), strings.Contains(s, "rocket"):
		return "api"
	default:
		return "cli"
	}
}

func rustFrameworks(content []byte) []string {
	s := string(content)
	var out []string
	for _, fw := range []string{"actix-web", "axum", "rocket", "tauri", "tokio", "serde"} {
		if strings.Contains(s, fw) {
			out = append(out, fw)
		}
	}
	return out
}

// --- JavaScript/TypeScript (package.json) ---

type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func parsePackageJSON(content []byte) packageJSON {
	var pkg packageJSON
	_ = json.Unmarshal(content, &pkg)
	return pkg
}

func jsProjectType(content []byte) string {
	pkg := parsePackageJSON(content)
	has := func(name string) bool {
		_, a := pkg.Dependencies[name]
		_, b := pkg.DevDependencies[name]
		return a || b
	}
	switch {
	case has("electron"):
		return "desktop"
	case has("express"), has("fastify"), has("koa"), has("@nestjs/core"):
		return "api"
	case has("react"), has("vue"), has("next"), has("@angular/core"), has("svelte"):
		return "web"
	default:
		return "cli"
	}
}

func jsFrameworks(content []byte) []string {
	pkg := parsePackageJSON(content)
	known := []string{
		"react", "vue", "next", "@angular/core", "svelte",
		"express", "fastify", "koa", "@nestjs/core", "electron", "webpack", "vite",
	}
	var out []string
	for _, name := range known {
		if _, ok := pkg.Dependencies[name]; ok {
			out = append(out, name)
			continue
		}
		if _, ok := pkg.DevDependencies[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// --- Python (pyproject.toml / requirements.txt) ---

func pyProjectType(content []byte) string {
	s := strings.ToLower(string(content))
	switch {
	case strings.Contains(s, "fastapi"), strings.Contains(s, "flask"), strings.Contains(s, "django"):
		if strings.Contains(s, "django") && strings.Contains(s, "templates") {
			return "web"
		}
		return "api"
	default:
		return "cli"
	}
}

func pyFrameworks(content []byte) []string {
	s := strings.ToLower(string(content))
	var out []string
	for _, fw := range []string{"fastapi", "flask", "django", "pytest", "numpy"} {
		if strings.Contains(s, fw) {
			out = append(out, fw)
		}
	}
	return out
}

// --- Go (go.mod) ---

func goProjectType(content []byte) string {
	s := string(content)
	switch {
	case strings.Contains(s, "gin-gonic"), strings.Contains(s, "labstack/echo"), strings.Contains(s, "gofiber/fiber"):
		return "api"
	case strings.Contains(s, "fyne.io"), strings.Contains(s, "wailsapp"):
		return "desktop"
	default:
		return "cli"
	}
}

func goFrameworks(content []byte) []string {
	s := string(content)
	var out []string
	for _, fw := range []string{"gin-gonic", "labstack/echo", "gofiber/fiber", "spf13/cobra", "fyne.io", "wailsapp"} {
		if strings.Contains(s, fw) {
			out = append(out, fw)
		}
	}
	return out
}
