package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/JonMunkholm/elastic-upload/internal/config"
)

const description = `A simple tool to upload a csv file to an Elasticsearch index.

If index name is not specified, the file name will be used.
Authentication can be done with either a cloud id and api key or a elastic uri and user/password.
Every option can also be set in the environment (shown in brackets) or in a
YAML profile passed with --config; command-line flags take precedence.

Example usage:

elastic-upload -f /tmp/test.csv -e http://localhost:9200 -u elastic -p changeme -b 1000

elastic-upload -f /tmp/test.csv -c cloudid:cloudid -k apikey -b 1000

elastic-upload -f s3://exports/people.csv.gz?region=eu-west-1 -e https://es:9200 -k id:secret -pf Lower
`

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Elastic Uploader")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Uploads a csv file to elastic")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Usage: %s [options]\n\n", name)
	fmt.Fprintln(w, "Options:")

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, opt := range config.Options() {
		help := opt.Usage
		if opt.Default != "" {
			help += fmt.Sprintf(" (default: %s)", opt.Default)
		}
		if opt.Env != "" {
			help += fmt.Sprintf(" [%s]", opt.Env)
		}
		fmt.Fprintf(tw, "  %s\t%s\n", flagNames(opt.Names), help)
	}
	fmt.Fprintf(tw, "  %s\t%s\n", "--config <FILE>", "YAML profile with default options")
	fmt.Fprintf(tw, "  %s\t%s\n", "-?|-h|--help", "Show help information.")
	tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprint(w, description)
}

// flagNames renders "-f|--file" style names; the long name comes first in
// the tag but is listed last.
func flagNames(names []string) string {
	parts := make([]string, 0, len(names))
	for _, n := range names[1:] {
		parts = append(parts, "-"+n)
	}
	parts = append(parts, "--"+names[0])
	return strings.Join(parts, "|")
}
