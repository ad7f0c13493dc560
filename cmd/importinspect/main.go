// Command importinspect prints the import sessions stored in a database.
// It opens the database read-only, so stop the server first.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/seedhypermedia/wxr-importer/internal/importfile"
	"github.com/seedhypermedia/wxr-importer/internal/store"
)

func main() {
	dbPath := flag.String("db", os.Getenv("DB_PATH"), "Badger directory (default: $DB_PATH or ~/SeedImporter/data/db)")
	importID := flag.String("id", "", "Show the stored import file of one session")
	password := flag.String("password", "", "Password of an encrypted session")
	raw := flag.Bool("raw", false, "List every key and its value size")
	flag.Parse()

	if *dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to find home directory: %v", err)
		}
		*dbPath = filepath.Join(home, "SeedImporter", "data", "db")
	}

	st, err := store.Open(*dbPath, nil, nil, store.Options{ReadOnly: true})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	ctx := context.Background()

	switch {
	case *raw:
		err = dumpKeys(st)
	case *importID != "":
		err = showImport(ctx, st, *importID, *password)
	default:
		err = listImports(ctx, st)
	}
	if err != nil {
		log.Fatalf("Inspection failed: %v", err)
	}
}

func dumpKeys(st *store.Store) error {
	count := 0
	err := st.Scan("", func(e store.RawEntry) error {
		count++
		fmt.Printf("%s\t%d bytes\n", e.Key, len(e.Value))
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("\n%d keys\n", count)
	return nil
}

func listImports(ctx context.Context, st *store.Store) error {
	states, err := st.ListImportStates(ctx)
	if err != nil {
		return err
	}

	active, _ := st.GetActiveImportID(ctx)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSITE\tPHASE\tPROGRESS\tMODE\tUPDATED\t")
	for _, s := range states {
		mode := "ghostwritten"
		if s.IsAuthored {
			mode = "authored"
		}
		marker := ""
		if s.ImportID == active {
			marker = "active"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			s.ImportID, s.SiteTitle, s.Phase, s.ImportedPosts, s.TotalPosts, mode,
			s.UpdatedAt().Format(time.DateTime), marker)
	}
	return w.Flush()
}

func showImport(ctx context.Context, st *store.Store, id, password string) error {
	state, err := st.GetImportState(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("Session %s: %s, %d/%d posts\n", state.ImportID, state.Phase, state.ImportedPosts, state.TotalPosts)
	if state.Error != "" {
		fmt.Printf("Error: %s\n", state.Error)
	}

	file, err := st.GetImportFile(ctx, id)
	if err != nil {
		return err
	}
	data, err := importfile.Decode(file, password)
	if err != nil {
		return err
	}

	fmt.Printf("Source: %s (%s), exported %s\n", data.Source.SiteTitle, data.Source.SiteURL, data.Source.ExportDate)
	fmt.Printf("Authors: %d, images cached: %d\n\n", len(data.Authors), len(data.ImageCache))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POST\tTITLE\tPATH\tAUTHOR\tIMPORTED")
	for _, p := range data.Posts {
		title := ""
		if post, ok := data.WXRPosts[p.ID]; ok {
			title = post.Title
		}
		fmt.Fprintf(w, "%d\t%s\t/%s\t%s\t%t\n", p.ID, title, strings.Join(p.Path, "/"), p.AuthorLogin, p.Imported)
	}
	return w.Flush()
}
