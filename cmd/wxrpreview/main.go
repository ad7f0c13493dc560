// Command wxrpreview summarizes a WordPress export without importing it.
//
// Usage:
//
//	wxrpreview [-json] export.xml
//	wxrpreview < export.xml
package main

import (
	"encoding/json/jsontext"
	"encoding/json/v2"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/seedhypermedia/wxr-importer/internal/service"
)

func main() {
	asJSON := flag.Bool("json", false, "Print the summary as JSON")
	flag.Parse()

	var in io.Reader = os.Stdin
	if path := flag.Arg(0); path != "" {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "wxrpreview: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	preview, err := service.BuildPreview(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wxrpreview: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		if err := json.MarshalWrite(os.Stdout, preview, jsontext.WithIndent("  ")); err != nil {
			fmt.Fprintf(os.Stderr, "wxrpreview: %v\n", err)
			os.Exit(1)
		}
		fmt.Println()
		return
	}

	fmt.Printf("Site:        %s (%s)\n", preview.SiteTitle, preview.SiteURL)
	fmt.Printf("Posts:       %d\n", preview.Posts)
	fmt.Printf("Pages:       %d\n", preview.Pages)
	fmt.Printf("Attachments: %d\n", preview.Attachments)
	fmt.Printf("Publishable: %d\n", preview.Publishable)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOGIN\tNAME\tEMAIL\tPOSTS\tAUTHORED")
	for _, a := range preview.Authors {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n", a.Login, a.DisplayName, a.Email, a.Posts, a.Eligible)
	}
	_ = w.Flush()
}
