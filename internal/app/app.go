package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code: 0 success,
// 1 failure, 2 usage error, 3 partial success.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "fetch-sources":
		return runFetchSources(args[1:])
	case "link-entities":
		return runLinkEntities(args[1:])
	case "cluster-articles":
		return runClusterArticles(args[1:])
	case "run-pipeline":
		return runPipeline(args[1:])
	case "runs":
		return runRuns(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "atlas CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  atlas <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health            Verify database (and Redis) connectivity")
	fmt.Fprintln(os.Stderr, "  validate          Validate classifier payloads, sources and section contracts")
	fmt.Fprintln(os.Stderr, "  fetch-sources     Fetch listings and article bodies from configured sources")
	fmt.Fprintln(os.Stderr, "  link-entities     Extract mentions and link them to canonical entities")
	fmt.Fprintln(os.Stderr, "  cluster-articles  Assign window articles to story clusters")
	fmt.Fprintln(os.Stderr, "  run-pipeline      Run every stage once over the window")
	fmt.Fprintln(os.Stderr, "  runs              List recent pipeline runs")
	fmt.Fprintln(os.Stderr, "  serve             Start the read-only ops API")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"atlas <command> -h\" for command-specific flags.")
}
