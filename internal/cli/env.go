// Package cli holds helpers shared by the atlas subcommands.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// EnvFileVar names a .env file that wins over the --env flag.
const EnvFileVar = "ATLAS_ENV_FILE"

// ErrNoEnvFile is returned when none of the candidate files could be loaded.
var ErrNoEnvFile = errors.New("no env file loaded")

// EnvLoader loads a .env file for a subcommand. Candidates are tried in order:
// $ATLAS_ENV_FILE, the --env value, its basename, then the default path.
type EnvLoader struct {
	value       *string
	defaultPath string
	log         zerolog.Logger
}

// AddEnvFlag registers --env on fs.
func AddEnvFlag(fs *flag.FlagSet, defaultPath, description string) *EnvLoader {
	if fs == nil {
		fs = flag.CommandLine
	}
	if defaultPath == "" {
		defaultPath = ".env"
	}
	if description == "" {
		description = "Path to the .env file"
	}
	return &EnvLoader{
		value:       fs.String("env", defaultPath, description),
		defaultPath: defaultPath,
		log:         zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger(),
	}
}

type envCandidate struct {
	origin string
	path   string
}

func (l *EnvLoader) candidates() []envCandidate {
	var out []envCandidate
	seen := make(map[string]struct{})
	add := func(origin, path string) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		out = append(out, envCandidate{origin: origin, path: path})
	}

	add(EnvFileVar, os.Getenv(EnvFileVar))
	requested := ""
	if l.value != nil {
		requested = strings.TrimSpace(*l.value)
	}
	if requested == "" {
		requested = l.defaultPath
	}
	add("flag", requested)
	add("basename", filepath.Base(requested))
	add("default", l.defaultPath)
	return out
}

// Load overloads the process environment from the first readable candidate
// and returns its path.
func (l *EnvLoader) Load() (string, error) {
	if l == nil {
		return "", fmt.Errorf("env loader is nil")
	}

	var tried []string
	for _, c := range l.candidates() {
		if err := godotenv.Overload(c.path); err != nil {
			if c.origin == EnvFileVar {
				l.log.Warn().Err(err).Str("path", c.path).Msgf("%s could not be loaded", EnvFileVar)
			}
			tried = append(tried, c.path)
			continue
		}
		l.log.Debug().Str("path", c.path).Str("origin", c.origin).Msg("loaded environment")
		return c.path, nil
	}
	return "", fmt.Errorf("%w: tried %s", ErrNoEnvFile, strings.Join(tried, ", "))
}
