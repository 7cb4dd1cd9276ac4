package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"horse.fit/atlas/internal/ingest"
	"horse.fit/atlas/internal/routing"
	payloadschema "horse.fit/atlas/schema"
)

type validateResult struct {
	Scanned int
	Valid   int
	Invalid int
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	dir := fs.String("dir", "", "Directory of classifier payload .json files")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories")
	sourcesFile := fs.String("sources", "", "Sources YAML file to validate")
	sectionsFile := fs.String("sections", "", "Section contracts YAML file to validate")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	root := strings.TrimSpace(*dir)
	sources := strings.TrimSpace(*sourcesFile)
	sections := strings.TrimSpace(*sectionsFile)
	if root == "" && sources == "" && sections == "" {
		fmt.Fprintln(os.Stderr, "nothing to validate: pass --dir, --sources or --sections")
		return 2
	}

	failed := false
	if sources != "" {
		loaded, err := ingest.LoadSources(sources, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", sources, err)
			failed = true
		} else {
			fmt.Printf("validate sources=%d file=%s\n", len(loaded), sources)
		}
	}
	if sections != "" {
		contracts, err := routing.LoadContracts(sections)
		if err != nil {
			fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", sections, err)
			failed = true
		} else {
			fmt.Printf("validate sections=%d file=%s\n", len(contracts), sections)
		}
	}
	if root != "" {
		result, err := validatePayloadDir(root, *recursive)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Validation setup failed: %v\n", err)
			return 1
		}
		fmt.Printf(
			"validate scanned=%d valid=%d invalid=%d dir=%s recursive=%t\n",
			result.Scanned,
			result.Valid,
			result.Invalid,
			root,
			*recursive,
		)
		if result.Scanned == 0 {
			fmt.Fprintf(os.Stderr, "Validation failed: no .json files found under %s\n", root)
			failed = true
		}
		if result.Invalid > 0 {
			failed = true
		}
	}

	if failed {
		return 1
	}
	return 0
}

// validatePayloadDir checks every .json file under root as a classifier
// payload. Files may wrap the JSON in code fences.
func validatePayloadDir(root string, recursive bool) (validateResult, error) {
	files, err := collectJSONFiles(root, recursive)
	if err != nil {
		return validateResult{}, err
	}

	result := validateResult{}
	for _, path := range files {
		result.Scanned++

		raw, err := os.ReadFile(path)
		if err != nil {
			result.Invalid++
			fmt.Fprintf(os.Stderr, "INVALID %s: read failed: %v\n", path, err)
			continue
		}

		payload := json.RawMessage(payloadschema.StripCodeFences(string(raw)))
		if !json.Valid(payload) {
			result.Invalid++
			fmt.Fprintf(os.Stderr, "INVALID %s: malformed JSON\n", path)
			continue
		}

		if _, err := payloadschema.ValidateClassificationPayload(payload); err != nil {
			result.Invalid++
			fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", path, err)
			continue
		}

		result.Valid++
	}
	return result, nil
}

func collectJSONFiles(root string, recursive bool) ([]string, error) {
	cleanRoot := strings.TrimSpace(root)
	if cleanRoot == "" {
		return nil, fmt.Errorf("directory path is empty")
	}

	info, err := os.Stat(cleanRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", cleanRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cleanRoot)
	}

	var files []string
	if !recursive {
		entries, err := os.ReadDir(cleanRoot)
		if err != nil {
			return nil, fmt.Errorf("read directory %s: %w", cleanRoot, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			if strings.EqualFold(filepath.Ext(name), ".json") {
				files = append(files, filepath.Join(cleanRoot, name))
			}
		}
		sort.Strings(files)
		return files, nil
	}

	err = filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != cleanRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", cleanRoot, err)
	}

	sort.Strings(files)
	return files, nil
}
